package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-fulfillment/core"
)

// FulfillmentService is the mutating surface the commands drive. Satisfied by
// core.Service.
type FulfillmentService interface {
	Fulfill(ctx context.Context, purchase core.PurchaseContext) (core.FulfillmentResult, error)
	AdminIssue(ctx context.Context, req core.AdminIssueRequest) (core.FulfillmentResult, error)
}

type FulfillCheckoutCommand struct {
	service FulfillmentService
}

func NewFulfillCheckoutCommand(service FulfillmentService) *FulfillCheckoutCommand {
	return &FulfillCheckoutCommand{service: service}
}

func (c *FulfillCheckoutCommand) Execute(ctx context.Context, msg FulfillCheckoutMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: fulfillment service is required")
	}
	out, err := c.service.Fulfill(ctx, msg.Purchase)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type AdminIssueCommand struct {
	service FulfillmentService
}

func NewAdminIssueCommand(service FulfillmentService) *AdminIssueCommand {
	return &AdminIssueCommand{service: service}
}

func (c *AdminIssueCommand) Execute(ctx context.Context, msg AdminIssueMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: fulfillment service is required")
	}
	out, err := c.service.AdminIssue(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
