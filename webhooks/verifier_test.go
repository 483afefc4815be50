package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-fulfillment/core"
)

func TestTimestampedHMACVerifier_AcceptsValidSignature(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	verifier := TimestampedHMACVerifier{
		Header: "Stripe-Signature",
		Secret: "whsec_test",
		Now:    func() time.Time { return now },
	}

	req := core.InboundRequest{
		Headers: map[string]string{
			"Stripe-Signature": ComputeSignatureHeader("whsec_test", now, body),
		},
		Body: body,
	}
	if err := verifier.Verify(context.Background(), req); err != nil {
		t.Fatalf("verify valid signature: %v", err)
	}
}

func TestTimestampedHMACVerifier_HeaderLookupIsCaseInsensitive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{}`)
	verifier := TimestampedHMACVerifier{
		Header: "Stripe-Signature",
		Secret: "whsec_test",
		Now:    func() time.Time { return now },
	}
	req := core.InboundRequest{
		Headers: map[string]string{
			"stripe-signature": ComputeSignatureHeader("whsec_test", now, body),
		},
		Body: body,
	}
	if err := verifier.Verify(context.Background(), req); err != nil {
		t.Fatalf("verify with lowercase header: %v", err)
	}
}

func TestTimestampedHMACVerifier_RejectsTamperedBody(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	verifier := TimestampedHMACVerifier{
		Header: "Stripe-Signature",
		Secret: "whsec_test",
		Now:    func() time.Time { return now },
	}
	req := core.InboundRequest{
		Headers: map[string]string{
			"Stripe-Signature": ComputeSignatureHeader("whsec_test", now, []byte(`{"a":1}`)),
		},
		Body: []byte(`{"a":2}`),
	}
	err := verifier.Verify(context.Background(), req)
	assertSignatureError(t, err)
}

func TestTimestampedHMACVerifier_RejectsWrongSecret(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"id":"evt_1"}`)
	verifier := TimestampedHMACVerifier{
		Header: "Stripe-Signature",
		Secret: "whsec_real",
		Now:    func() time.Time { return now },
	}
	req := core.InboundRequest{
		Headers: map[string]string{
			"Stripe-Signature": ComputeSignatureHeader("whsec_other", now, body),
		},
		Body: body,
	}
	assertSignatureError(t, verifier.Verify(context.Background(), req))
}

func TestTimestampedHMACVerifier_RejectsStaleTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"id":"evt_1"}`)
	verifier := TimestampedHMACVerifier{
		Header:    "Stripe-Signature",
		Secret:    "whsec_test",
		Tolerance: 5 * time.Minute,
		Now:       func() time.Time { return now },
	}
	req := core.InboundRequest{
		Headers: map[string]string{
			"Stripe-Signature": ComputeSignatureHeader("whsec_test", now.Add(-6*time.Minute), body),
		},
		Body: body,
	}
	assertSignatureError(t, verifier.Verify(context.Background(), req))
}

func TestTimestampedHMACVerifier_AcceptsSecondV1Entry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"id":"evt_1"}`)
	verifier := TimestampedHMACVerifier{
		Header: "Stripe-Signature",
		Secret: "whsec_test",
		Now:    func() time.Time { return now },
	}

	valid := ComputeSignatureHeader("whsec_test", now, body)
	stale := "v1=" + hex.EncodeToString(make([]byte, 32))
	req := core.InboundRequest{
		Headers: map[string]string{
			"Stripe-Signature": valid + "," + stale,
		},
		Body: body,
	}
	if err := verifier.Verify(context.Background(), req); err != nil {
		t.Fatalf("verify with rotated signature entries: %v", err)
	}
}

func TestTimestampedHMACVerifier_RejectsMalformedHeader(t *testing.T) {
	verifier := TimestampedHMACVerifier{
		Header: "Stripe-Signature",
		Secret: "whsec_test",
	}
	cases := map[string]string{
		"missing header":    "",
		"missing timestamp": "v1=deadbeef",
		"missing signature": "t=1700000000",
		"garbage timestamp": "t=abc,v1=deadbeef",
	}
	for name, header := range cases {
		req := core.InboundRequest{Body: []byte(`{}`)}
		if header != "" {
			req.Headers = map[string]string{"Stripe-Signature": header}
		}
		if err := verifier.Verify(context.Background(), req); err == nil {
			t.Fatalf("%s: expected verification error", name)
		}
	}
}

func TestHeaderHMACVerifier_HexAndBase64(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write(body)
	digest := mac.Sum(nil)

	hexVerifier := HeaderHMACVerifier{
		Header: "X-Signature",
		Prefix: "sha256=",
		Secret: "secret",
	}
	req := core.InboundRequest{
		Headers: map[string]string{"X-Signature": "sha256=" + hex.EncodeToString(digest)},
		Body:    body,
	}
	if err := hexVerifier.Verify(context.Background(), req); err != nil {
		t.Fatalf("verify hex signature: %v", err)
	}

	req.Headers["X-Signature"] = "sha256=" + hex.EncodeToString(digest[:16])
	if err := hexVerifier.Verify(context.Background(), req); err == nil {
		t.Fatalf("expected truncated signature to fail")
	}
}

func assertSignatureError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected signature error")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected rich error, got %T", err)
	}
	if richErr.TextCode != core.ErrorSignatureInvalid {
		t.Fatalf("expected text code %s, got %s", core.ErrorSignatureInvalid, richErr.TextCode)
	}
	if richErr.Category != goerrors.CategoryAuth {
		t.Fatalf("expected auth category, got %s", richErr.Category)
	}
}
