// Package fulfillment turns verified payment webhooks into issued license
// keys: signature verification, event routing, policy resolution, license
// creation against a Keygen-compatible API, and optional email notification.
package fulfillment

import "github.com/goliatone/go-fulfillment/core"

type Config = core.Config

type WebhookConfig = core.WebhookConfig
type AdminConfig = core.AdminConfig
type LicensingConfig = core.LicensingConfig
type MailConfig = core.MailConfig
type PoliciesConfig = core.PoliciesConfig

type Option = core.Option

type Service = core.Service

type PurchaseContext = core.PurchaseContext
type AdminIssueRequest = core.AdminIssueRequest
type FulfillmentResult = core.FulfillmentResult
type IssueLicenseRequest = core.IssueLicenseRequest
type LicenseRecord = core.LicenseRecord
type Notification = core.Notification

type LicenseIssuer = core.LicenseIssuer
type Notifier = core.Notifier
type PolicyResolver = core.PolicyResolver
type LineItemSource = core.LineItemSource
type EventLedger = core.EventLedger
type TransportAdapter = core.TransportAdapter
type MetricsRecorder = core.MetricsRecorder

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithLicenseIssuer   = core.WithLicenseIssuer
	WithNotifier        = core.WithNotifier
	WithPolicyResolver  = core.WithPolicyResolver
	WithLineItemSource  = core.WithLineItemSource
	WithConfigProvider  = core.WithConfigProvider
	WithOptionsResolver = core.WithOptionsResolver
	WithClock           = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
