package webhooks

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/goliatone/go-fulfillment/core"
)

func TestRouter_IgnoresUnrecognizedEventTypes(t *testing.T) {
	handler := &stubFulfillmentHandler{}
	router := NewRouter(handler, []string{"checkout.session.completed"})

	result, err := router.Route(context.Background(), Event{
		ID:   "evt_1",
		Type: "invoice.paid",
	})
	if err != nil {
		t.Fatalf("route ignored event: %v", err)
	}
	if !result.Accepted || result.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 accepted for ignored event, got %+v", result)
	}
	if result.Metadata["ignored"] != true {
		t.Fatalf("expected ignored marker, got %+v", result.Metadata)
	}
	if handler.calls != 0 {
		t.Fatalf("ignored event must not reach the handler")
	}
}

func TestRouter_FulfillsRecognizedEvent(t *testing.T) {
	handler := &stubFulfillmentHandler{
		result: core.FulfillmentResult{
			LicenseKey: "KEY-1",
			PolicyID:   "pol_1",
			Emailed:    true,
			Stage:      "complete",
		},
	}
	router := NewRouter(handler, []string{"checkout.session.completed"})

	event, err := ParseEvent([]byte(checkoutSessionPayload))
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	result, err := router.Route(context.Background(), event)
	if err != nil {
		t.Fatalf("route recognized event: %v", err)
	}
	if handler.calls != 1 {
		t.Fatalf("expected one fulfill call, got %d", handler.calls)
	}
	if handler.lastPurchase.PriceID != "price_123" {
		t.Fatalf("expected parsed purchase context, got %+v", handler.lastPurchase)
	}
	if result.Metadata["emailed"] != true || result.Metadata["stage"] != "complete" {
		t.Fatalf("expected fulfillment outcome in metadata, got %+v", result.Metadata)
	}
}

func TestRouter_PropagatesHandlerError(t *testing.T) {
	handler := &stubFulfillmentHandler{err: errors.New("boom")}
	router := NewRouter(handler, []string{"checkout.session.completed"})

	event, err := ParseEvent([]byte(checkoutSessionPayload))
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if _, err := router.Route(context.Background(), event); err == nil {
		t.Fatalf("expected handler error to propagate")
	}
}

func TestRouter_TrimsConfiguredEventTypes(t *testing.T) {
	router := NewRouter(&stubFulfillmentHandler{}, []string{"  checkout.session.completed ", ""})
	if !router.Recognizes("checkout.session.completed") {
		t.Fatalf("expected trimmed event type to be recognized")
	}
	if router.Recognizes("") {
		t.Fatalf("blank event type must not be recognized")
	}
}

type stubFulfillmentHandler struct {
	result       core.FulfillmentResult
	err          error
	calls        int
	lastPurchase core.PurchaseContext
}

func (s *stubFulfillmentHandler) Fulfill(
	_ context.Context,
	purchase core.PurchaseContext,
) (core.FulfillmentResult, error) {
	s.calls++
	s.lastPurchase = purchase
	if s.err != nil {
		return core.FulfillmentResult{}, s.err
	}
	return s.result, nil
}
