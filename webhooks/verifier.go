package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-fulfillment/core"
)

type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

// HeaderHMACVerifier checks a single-header HMAC-SHA256 signature computed
// over the exact request body bytes.
type HeaderHMACVerifier struct {
	Header   string
	Prefix   string
	Secret   string
	Encoding string // hex | base64
}

func (v HeaderHMACVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	header := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if header == "" {
		return signatureError(
			fmt.Sprintf("webhooks: %s signature header is required", strings.TrimSpace(v.Header)), nil)
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return internalError("webhooks: signature secret is required", nil)
	}
	signature := strings.TrimPrefix(header, strings.TrimSpace(v.Prefix))
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return signatureError("webhooks: signature value is required", nil)
	}

	expected := computeHMAC(secret, req.Body)

	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		decoded, err := base64.StdEncoding.DecodeString(signature)
		if err != nil {
			return signatureError("webhooks: decode base64 signature: "+err.Error(), nil)
		}
		if subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return signatureError("webhooks: signature verification failed", nil)
		}
	default:
		decoded, err := hex.DecodeString(signature)
		if err != nil {
			return signatureError("webhooks: decode hex signature: "+err.Error(), nil)
		}
		if subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return signatureError("webhooks: signature verification failed", nil)
		}
	}
	return nil
}

const defaultSignatureTolerance = 5 * time.Minute

// TimestampedHMACVerifier checks a payment-provider signature header of the
// form "t=<unix>,v1=<hex>[,v1=<hex>...]" where each v1 value is an HMAC-SHA256
// of "<t>.<raw body>". A timestamp outside the tolerance window is rejected to
// bound replay.
type TimestampedHMACVerifier struct {
	Header    string
	Secret    string
	Tolerance time.Duration
	Now       func() time.Time
}

func (v TimestampedHMACVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	header := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if header == "" {
		return signatureError(
			fmt.Sprintf("webhooks: %s signature header is required", strings.TrimSpace(v.Header)), nil)
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return internalError("webhooks: signature secret is required", nil)
	}

	timestamp, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	tolerance := v.Tolerance
	if tolerance <= 0 {
		tolerance = defaultSignatureTolerance
	}
	now := time.Now().UTC()
	if v.Now != nil {
		now = v.Now().UTC()
	}
	delta := now.Sub(time.Unix(timestamp, 0).UTC())
	if delta < 0 {
		delta = -delta
	}
	if delta > tolerance {
		return signatureError("webhooks: signature timestamp outside tolerance window",
			map[string]any{"timestamp": timestamp})
	}

	signedPayload := make([]byte, 0, len(req.Body)+20)
	signedPayload = append(signedPayload, []byte(strconv.FormatInt(timestamp, 10))...)
	signedPayload = append(signedPayload, '.')
	signedPayload = append(signedPayload, req.Body...)
	expected := computeHMAC(secret, signedPayload)

	for _, signature := range signatures {
		decoded, decodeErr := hex.DecodeString(signature)
		if decodeErr != nil {
			continue
		}
		if subtle.ConstantTimeCompare(decoded, expected) == 1 {
			return nil
		}
	}
	return signatureError("webhooks: signature verification failed", nil)
}

func parseSignatureHeader(header string) (int64, []string, error) {
	var timestamp int64
	var sawTimestamp bool
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		pair := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(pair) != 2 {
			continue
		}
		switch pair[0] {
		case "t":
			parsed, err := strconv.ParseInt(strings.TrimSpace(pair[1]), 10, 64)
			if err != nil {
				return 0, nil, signatureError("webhooks: malformed signature timestamp", nil)
			}
			timestamp = parsed
			sawTimestamp = true
		case "v1":
			if value := strings.TrimSpace(pair[1]); value != "" {
				signatures = append(signatures, value)
			}
		}
	}
	if !sawTimestamp {
		return 0, nil, signatureError("webhooks: signature timestamp is required", nil)
	}
	if len(signatures) == 0 {
		return 0, nil, signatureError("webhooks: signature value is required", nil)
	}
	return timestamp, signatures, nil
}

// ComputeSignatureHeader builds a header value the TimestampedHMACVerifier
// accepts. Intended for tests and local tooling.
func ComputeSignatureHeader(secret string, timestamp time.Time, payload []byte) string {
	ts := strconv.FormatInt(timestamp.Unix(), 10)
	signed := append([]byte(ts+"."), payload...)
	return "t=" + ts + ",v1=" + hex.EncodeToString(computeHMAC(secret, signed))
}

func computeHMAC(secret string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return mac.Sum(nil)
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
