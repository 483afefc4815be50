package webhooks

import (
	"context"
	"net/http"
	"strings"

	"github.com/goliatone/go-fulfillment/core"
)

// FulfillmentHandler runs the purchase flow for a routed event.
type FulfillmentHandler interface {
	Fulfill(ctx context.Context, purchase core.PurchaseContext) (core.FulfillmentResult, error)
}

// Router decides whether a decoded event triggers fulfillment or is ignored.
// Unrecognized event types are acknowledged without touching any downstream
// dependency; the provider must not retry events the service will never act
// on.
type Router struct {
	Handler FulfillmentHandler

	eventTypes map[string]struct{}
}

func NewRouter(handler FulfillmentHandler, eventTypes []string) *Router {
	recognized := make(map[string]struct{}, len(eventTypes))
	for _, eventType := range eventTypes {
		eventType = strings.TrimSpace(eventType)
		if eventType == "" {
			continue
		}
		recognized[eventType] = struct{}{}
	}
	return &Router{
		Handler:    handler,
		eventTypes: recognized,
	}
}

func (r *Router) Recognizes(eventType string) bool {
	if r == nil {
		return false
	}
	_, ok := r.eventTypes[strings.TrimSpace(eventType)]
	return ok
}

func (r *Router) Route(ctx context.Context, event Event) (core.InboundResult, error) {
	if r == nil {
		return core.InboundResult{}, internalError("webhooks: router is nil", nil)
	}
	if !r.Recognizes(event.Type) {
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata: map[string]any{
				"ignored":    true,
				"event_type": event.Type,
			},
		}, nil
	}
	if r.Handler == nil {
		return core.InboundResult{}, internalError("webhooks: fulfillment handler is nil", map[string]any{
			"event_type": event.Type,
		})
	}

	purchase, err := PurchaseContextFromEvent(event)
	if err != nil {
		return core.InboundResult{}, err
	}
	result, err := r.Handler.Fulfill(ctx, purchase)
	if err != nil {
		return core.InboundResult{}, err
	}
	metadata := map[string]any{
		"event_id":   event.ID,
		"event_type": event.Type,
		"stage":      result.Stage,
		"policy_id":  result.PolicyID,
		"emailed":    result.Emailed,
	}
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata:   metadata,
	}, nil
}
