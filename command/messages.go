package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-fulfillment/core"
)

const (
	TypeFulfillCheckout = "fulfillment.command.checkout.fulfill"
	TypeAdminIssue      = "fulfillment.command.license.admin_issue"
)

type FulfillCheckoutMessage struct {
	Purchase core.PurchaseContext
}

func (FulfillCheckoutMessage) Type() string { return TypeFulfillCheckout }

func (m FulfillCheckoutMessage) Validate() error {
	if strings.TrimSpace(m.Purchase.EventType) == "" {
		return fmt.Errorf("command: event type is required")
	}
	if strings.TrimSpace(m.Purchase.CustomerEmail) == "" {
		return fmt.Errorf("command: customer email is required")
	}
	return nil
}

type AdminIssueMessage struct {
	Request core.AdminIssueRequest
}

func (AdminIssueMessage) Type() string { return TypeAdminIssue }

func (m AdminIssueMessage) Validate() error {
	if strings.TrimSpace(m.Request.PolicyID) == "" {
		return fmt.Errorf("command: policy id is required")
	}
	return nil
}
