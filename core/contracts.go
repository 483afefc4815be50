package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// InboundRequest carries an inbound HTTP call into the dispatch core. Body is
// the untransformed byte stream exactly as received on the wire; signature
// verification depends on it never being re-encoded.
type InboundRequest struct {
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

// PurchaseContext is derived from a verified webhook event. It is consumed by
// the fulfillment flow and never persisted.
type PurchaseContext struct {
	EventID       string
	EventType     string
	SessionID     string
	PriceID       string
	CustomerEmail string
	CustomerName  string
	Metadata      map[string]any
}

type IssueLicenseRequest struct {
	PolicyID       string
	Name           string
	Email          string
	Metadata       map[string]any
	IdempotencyKey string
}

// LicenseRecord references a license owned by the external licensing API. The
// key is forwarded to the notifier and the HTTP response; nothing here is
// stored locally.
type LicenseRecord struct {
	ID       string
	Key      string
	PolicyID string
	Metadata map[string]any
}

type Notification struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type AdminIssueRequest struct {
	PolicyID string
	Email    string
	Reason   string
}

type FulfillmentResult struct {
	LicenseKey string
	PolicyID   string
	Emailed    bool
	Stage      string
	Metadata   map[string]any
}

type LicenseIssuer interface {
	Issue(ctx context.Context, req IssueLicenseRequest) (LicenseRecord, error)
}

type Notifier interface {
	Send(ctx context.Context, notification Notification) error
}

// PolicyResolver maps a purchased price/item identifier to a licensing policy
// id. Implementations are immutable after construction.
type PolicyResolver interface {
	Resolve(priceID string) (string, bool)
}

// LineItemSource supplies the purchased price id for checkout sessions whose
// webhook payload does not embed line items. No implementation ships here:
// the lookup needs the payment provider's API client, so hosts wire their own
// via WithLineItemSource. When absent, sessions without an embedded or
// metadata price id fail with ErrorMissingPrice.
type LineItemSource interface {
	FirstPriceID(ctx context.Context, sessionID string) (string, error)
}

type EventClaim struct {
	ClaimID   string
	EventID   string
	Status    string
	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EventLedger provides claim/complete/fail idempotency semantics keyed by
// provider event id. Claim returns claimed=false when another delivery of the
// same event already holds or completed the claim.
type EventLedger interface {
	Claim(ctx context.Context, eventID string, payload []byte, lease time.Duration) (EventClaim, bool, error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error) error
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	Idempotency          string
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
