package webhooks

import (
	"context"
	"errors"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-fulfillment/core"
)

const defaultClaimLease = 30 * time.Second

// Processor is the inbound webhook pipeline: verify the raw delivery, claim
// the event in the ledger when one is configured, route, then settle the
// claim. A nil Ledger disables dedupe and every delivery is processed.
type Processor struct {
	Verifier   Verifier
	Router     *Router
	Ledger     core.EventLedger
	Logger     core.Logger
	ClaimLease time.Duration
}

func NewProcessor(verifier Verifier, router *Router, opts ...ProcessorOption) *Processor {
	processor := &Processor{
		Verifier:   verifier,
		Router:     router,
		ClaimLease: defaultClaimLease,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(processor)
		}
	}
	processor.Logger = glog.Ensure(processor.Logger)
	return processor
}

type ProcessorOption func(*Processor)

func WithEventLedger(ledger core.EventLedger) ProcessorOption {
	return func(p *Processor) {
		p.Ledger = ledger
	}
}

func WithProcessorLogger(logger core.Logger) ProcessorOption {
	return func(p *Processor) {
		p.Logger = logger
	}
}

func WithClaimLease(lease time.Duration) ProcessorOption {
	return func(p *Processor) {
		if lease > 0 {
			p.ClaimLease = lease
		}
	}
}

// Process handles one webhook delivery end to end. The returned error carries
// the HTTP status the caller should surface; the result is populated on the
// accept paths (handled, ignored, deduped).
func (p *Processor) Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if p == nil {
		return core.InboundResult{}, internalError("webhooks: processor is nil", nil)
	}
	if p.Verifier == nil {
		return core.InboundResult{}, internalError("webhooks: verifier is required", nil)
	}
	if p.Router == nil {
		return core.InboundResult{}, internalError("webhooks: router is required", nil)
	}

	// A misconfigured verifier surfaces as a 500-class error, not a 400.
	if err := p.Verifier.Verify(ctx, req); err != nil {
		p.logger().WithContext(ctx).Error("webhook signature rejected", "error", err)
		return core.InboundResult{
			Accepted:   false,
			StatusCode: core.HTTPStatus(err),
			Metadata:   map[string]any{"rejected": true},
		}, err
	}

	event, err := ParseEvent(req.Body)
	if err != nil {
		return core.InboundResult{}, err
	}

	claimID := ""
	if p.Ledger != nil && p.Router.Recognizes(event.Type) {
		eventID := EventIDExtractor(event, req)
		if eventID == "" {
			return core.InboundResult{}, badInputError("webhooks: event id is required for dedupe", map[string]any{
				"event_type": event.Type,
			})
		}
		claim, claimed, err := p.Ledger.Claim(ctx, eventID, req.Body, p.claimLease())
		if err != nil {
			return core.InboundResult{}, webhookWrapError(
				err,
				goerrors.CategoryOperation,
				"webhooks: claim event",
				http.StatusInternalServerError,
				core.ErrorInternal,
				map[string]any{"event_id": eventID},
			)
		}
		if !claimed {
			p.logger().WithContext(ctx).Info("webhook event deduped",
				"event_id", eventID,
				"event_type", event.Type,
			)
			return core.InboundResult{
				Accepted:   true,
				StatusCode: http.StatusOK,
				Metadata: map[string]any{
					"deduped":    true,
					"event_id":   eventID,
					"event_type": event.Type,
				},
			}, nil
		}
		claimID = claim.ClaimID
	}

	result, routeErr := p.Router.Route(ctx, event)
	if routeErr != nil {
		if claimID != "" {
			if failErr := p.Ledger.Fail(ctx, claimID, routeErr); failErr != nil {
				return core.InboundResult{}, errors.Join(routeErr, webhookWrapError(
					failErr,
					goerrors.CategoryOperation,
					"webhooks: release event claim",
					http.StatusInternalServerError,
					core.ErrorInternal,
					map[string]any{"claim_id": claimID},
				))
			}
		}
		return core.InboundResult{}, routeErr
	}

	if claimID != "" {
		if err := p.Ledger.Complete(ctx, claimID); err != nil {
			p.logger().WithContext(ctx).Error("complete event claim failed",
				"claim_id", claimID,
				"error", err,
			)
		}
	}
	return result, nil
}

func (p *Processor) claimLease() time.Duration {
	if p != nil && p.ClaimLease > 0 {
		return p.ClaimLease
	}
	return defaultClaimLease
}

func (p *Processor) logger() core.Logger {
	if p != nil && p.Logger != nil {
		return p.Logger
	}
	return glog.Nop()
}
