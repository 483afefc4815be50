package webhooks

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-fulfillment/core"
)

func TestProcessor_EndToEnd(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	handler := &stubFulfillmentHandler{
		result: core.FulfillmentResult{LicenseKey: "KEY-1", Stage: "complete"},
	}
	processor := NewProcessor(
		TimestampedHMACVerifier{
			Header: "Stripe-Signature",
			Secret: "whsec_test",
			Now:    func() time.Time { return now },
		},
		NewRouter(handler, []string{"checkout.session.completed"}),
	)

	result, err := processor.Process(context.Background(), signedRequest(now, []byte(checkoutSessionPayload)))
	if err != nil {
		t.Fatalf("process delivery: %v", err)
	}
	if !result.Accepted || result.StatusCode != http.StatusOK {
		t.Fatalf("expected accepted 200, got %+v", result)
	}
	if handler.calls != 1 {
		t.Fatalf("expected one fulfill call, got %d", handler.calls)
	}
}

func TestProcessor_RejectsBadSignatureBeforeAnyWork(t *testing.T) {
	handler := &stubFulfillmentHandler{}
	ledger := core.NewMemoryEventLedger()
	processor := NewProcessor(
		TimestampedHMACVerifier{Header: "Stripe-Signature", Secret: "whsec_test"},
		NewRouter(handler, []string{"checkout.session.completed"}),
		WithEventLedger(ledger),
	)

	req := core.InboundRequest{
		Headers: map[string]string{"Stripe-Signature": "t=100,v1=deadbeef"},
		Body:    []byte(checkoutSessionPayload),
	}
	result, err := processor.Process(context.Background(), req)
	assertSignatureError(t, err)
	if result.Accepted {
		t.Fatalf("rejected delivery must not be accepted")
	}
	if result.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", result.StatusCode)
	}
	if handler.calls != 0 {
		t.Fatalf("rejected delivery must not reach the handler")
	}
}

func TestProcessor_MisconfiguredVerifierIsNotCallerError(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	handler := &stubFulfillmentHandler{}
	processor := NewProcessor(
		TimestampedHMACVerifier{Header: "Stripe-Signature", Secret: "", Now: func() time.Time { return now }},
		NewRouter(handler, []string{"checkout.session.completed"}),
	)

	result, err := processor.Process(context.Background(), signedRequest(now, []byte(checkoutSessionPayload)))
	if err == nil {
		t.Fatalf("expected error for missing signature secret")
	}
	if result.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 for verifier misconfiguration, got %d", result.StatusCode)
	}
	if handler.calls != 0 {
		t.Fatalf("misconfigured verifier must not reach the handler")
	}
}

func TestProcessor_WithoutLedgerProcessesEveryDelivery(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	handler := &stubFulfillmentHandler{result: core.FulfillmentResult{Stage: "complete"}}
	processor := NewProcessor(
		TimestampedHMACVerifier{Header: "Stripe-Signature", Secret: "whsec_test", Now: func() time.Time { return now }},
		NewRouter(handler, []string{"checkout.session.completed"}),
	)

	req := signedRequest(now, []byte(checkoutSessionPayload))
	for i := 0; i < 2; i++ {
		if _, err := processor.Process(context.Background(), req); err != nil {
			t.Fatalf("process delivery %d: %v", i+1, err)
		}
	}
	if handler.calls != 2 {
		t.Fatalf("expected redelivery to be processed twice without a ledger, got %d calls", handler.calls)
	}
}

func TestProcessor_LedgerDedupesRedelivery(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	handler := &stubFulfillmentHandler{result: core.FulfillmentResult{Stage: "complete"}}
	processor := NewProcessor(
		TimestampedHMACVerifier{Header: "Stripe-Signature", Secret: "whsec_test", Now: func() time.Time { return now }},
		NewRouter(handler, []string{"checkout.session.completed"}),
		WithEventLedger(core.NewMemoryEventLedger()),
	)

	req := signedRequest(now, []byte(checkoutSessionPayload))
	first, err := processor.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("process first delivery: %v", err)
	}
	if first.Metadata["deduped"] == true {
		t.Fatalf("first delivery must not be deduped")
	}

	second, err := processor.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("process duplicate delivery: %v", err)
	}
	if second.Metadata["deduped"] != true {
		t.Fatalf("expected deduped marker on redelivery, got %+v", second.Metadata)
	}
	if second.StatusCode != http.StatusOK {
		t.Fatalf("deduped delivery must still be acknowledged, got %d", second.StatusCode)
	}
	if handler.calls != 1 {
		t.Fatalf("expected one fulfill call across redeliveries, got %d", handler.calls)
	}
}

func TestProcessor_FailedFulfillmentReleasesClaim(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	handler := &stubFulfillmentHandler{err: errors.New("licensing API unavailable")}
	processor := NewProcessor(
		TimestampedHMACVerifier{Header: "Stripe-Signature", Secret: "whsec_test", Now: func() time.Time { return now }},
		NewRouter(handler, []string{"checkout.session.completed"}),
		WithEventLedger(core.NewMemoryEventLedger()),
	)

	req := signedRequest(now, []byte(checkoutSessionPayload))
	if _, err := processor.Process(context.Background(), req); err == nil {
		t.Fatalf("expected fulfillment error")
	}

	handler.err = nil
	handler.result = core.FulfillmentResult{Stage: "complete"}
	result, err := processor.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("process retried delivery: %v", err)
	}
	if result.Metadata["deduped"] == true {
		t.Fatalf("failed event must be claimable again, got %+v", result.Metadata)
	}
	if handler.calls != 2 {
		t.Fatalf("expected retry to reach the handler, got %d calls", handler.calls)
	}
}

func TestProcessor_IgnoredEventsSkipLedger(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	handler := &stubFulfillmentHandler{}
	ledger := core.NewMemoryEventLedger()
	processor := NewProcessor(
		TimestampedHMACVerifier{Header: "Stripe-Signature", Secret: "whsec_test", Now: func() time.Time { return now }},
		NewRouter(handler, []string{"checkout.session.completed"}),
		WithEventLedger(ledger),
	)

	body := []byte(`{"id":"evt_ignored","type":"invoice.paid","data":{"object":{}}}`)
	req := signedRequest(now, body)
	for i := 0; i < 2; i++ {
		result, err := processor.Process(context.Background(), req)
		if err != nil {
			t.Fatalf("process ignored delivery %d: %v", i+1, err)
		}
		if result.Metadata["ignored"] != true {
			t.Fatalf("expected ignored marker, got %+v", result.Metadata)
		}
		if result.Metadata["deduped"] == true {
			t.Fatalf("ignored events must not consume ledger claims")
		}
	}
	if handler.calls != 0 {
		t.Fatalf("ignored events must not reach the handler")
	}
}

func signedRequest(now time.Time, body []byte) core.InboundRequest {
	return core.InboundRequest{
		Headers: map[string]string{
			"Stripe-Signature": ComputeSignatureHeader("whsec_test", now, body),
		},
		Body: body,
	}
}
