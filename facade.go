package fulfillment

import (
	"fmt"

	"github.com/goliatone/go-fulfillment/command"
	"github.com/goliatone/go-fulfillment/core"
	"github.com/goliatone/go-fulfillment/keygen"
	"github.com/goliatone/go-fulfillment/mail"
	"github.com/goliatone/go-fulfillment/server"
	"github.com/goliatone/go-fulfillment/transport"
	"github.com/goliatone/go-fulfillment/webhooks"
)

// Commands exposes the dispatchable command handlers backed by the service.
type Commands struct {
	FulfillCheckout *command.FulfillCheckoutCommand
	AdminIssue      *command.AdminIssueCommand
}

// Runtime wires the full fulfillment stack from a single Config: the REST
// transport, licensing client, SMTP notifier, core service, command handlers,
// webhook processor, and HTTP handler. Hosts that need finer control compose
// the packages directly instead.
type Runtime struct {
	service   *core.Service
	processor *webhooks.Processor
	handler   *server.Handler
	commands  Commands
}

type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	httpClient  transport.HTTPDoer
	issuer      core.LicenseIssuer
	notifier    core.Notifier
	ledger      core.EventLedger
	logger      core.Logger
	serviceOpts []core.Option
}

// WithHTTPClient overrides the HTTP client used for outbound licensing calls.
func WithHTTPClient(client transport.HTTPDoer) RuntimeOption {
	return func(o *runtimeOptions) {
		o.httpClient = client
	}
}

// WithIssuer replaces the default keygen-backed license issuer.
func WithIssuer(issuer core.LicenseIssuer) RuntimeOption {
	return func(o *runtimeOptions) {
		o.issuer = issuer
	}
}

// WithRuntimeNotifier replaces the default SMTP notifier.
func WithRuntimeNotifier(notifier core.Notifier) RuntimeOption {
	return func(o *runtimeOptions) {
		o.notifier = notifier
	}
}

// WithEventLedger enables idempotent webhook processing. Without a ledger a
// replayed delivery issues a second license.
func WithEventLedger(ledger core.EventLedger) RuntimeOption {
	return func(o *runtimeOptions) {
		o.ledger = ledger
	}
}

func WithRuntimeLogger(logger core.Logger) RuntimeOption {
	return func(o *runtimeOptions) {
		o.logger = logger
	}
}

// WithServiceOptions forwards additional options to the core service.
func WithServiceOptions(opts ...core.Option) RuntimeOption {
	return func(o *runtimeOptions) {
		o.serviceOpts = append(o.serviceOpts, opts...)
	}
}

func NewRuntime(cfg Config, opts ...RuntimeOption) (*Runtime, error) {
	options := runtimeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&options)
	}

	issuer := options.issuer
	if issuer == nil {
		adapter := transport.NewRESTAdapter(options.httpClient)
		client, err := keygen.NewClientFromConfig(adapter, cfg.Licensing,
			keygen.WithLogger(options.logger))
		if err != nil {
			return nil, fmt.Errorf("fulfillment: build licensing client: %w", err)
		}
		issuer = client
	}

	notifier := options.notifier
	if notifier == nil && cfg.Mail.Host != "" {
		smtpNotifier, err := mail.NewSMTPNotifier(cfg.Mail, mail.WithLogger(options.logger))
		if err != nil {
			return nil, fmt.Errorf("fulfillment: build notifier: %w", err)
		}
		notifier = smtpNotifier
	}

	serviceOpts := []core.Option{core.WithLicenseIssuer(issuer)}
	if notifier != nil {
		serviceOpts = append(serviceOpts, core.WithNotifier(notifier))
	}
	if options.logger != nil {
		serviceOpts = append(serviceOpts, core.WithLogger(options.logger))
	}
	serviceOpts = append(serviceOpts, options.serviceOpts...)

	svc, err := core.NewService(cfg, serviceOpts...)
	if err != nil {
		return nil, err
	}
	resolved := svc.Config()

	verifier := webhooks.TimestampedHMACVerifier{
		Header:    resolved.Webhook.SignatureHeader,
		Secret:    resolved.Webhook.Secret,
		Tolerance: resolved.Webhook.Tolerance,
	}
	router := webhooks.NewRouter(svc, resolved.Webhook.EventTypes)

	procOpts := []webhooks.ProcessorOption{}
	if options.ledger != nil {
		procOpts = append(procOpts, webhooks.WithEventLedger(options.ledger))
	}
	if options.logger != nil {
		procOpts = append(procOpts, webhooks.WithProcessorLogger(options.logger))
	}
	processor := webhooks.NewProcessor(verifier, router, procOpts...)

	commands := Commands{
		FulfillCheckout: command.NewFulfillCheckoutCommand(svc),
		AdminIssue:      command.NewAdminIssueCommand(svc),
	}

	handlerOpts := []server.HandlerOption{}
	if options.logger != nil {
		handlerOpts = append(handlerOpts, server.WithHandlerLogger(options.logger))
	}
	handler := server.NewHandler(processor, commands.AdminIssue, resolved.Admin.Secret, handlerOpts...)

	return &Runtime{
		service:   svc,
		processor: processor,
		handler:   handler,
		commands:  commands,
	}, nil
}

func (r *Runtime) Service() *core.Service {
	if r == nil {
		return nil
	}
	return r.service
}

func (r *Runtime) Processor() *webhooks.Processor {
	if r == nil {
		return nil
	}
	return r.processor
}

func (r *Runtime) Handler() *server.Handler {
	if r == nil {
		return nil
	}
	return r.handler
}

func (r *Runtime) Commands() Commands {
	if r == nil {
		return Commands{}
	}
	return r.commands
}

// Listen builds an HTTP server bound to addr serving the runtime's handler.
func (r *Runtime) Listen(addr string, opts ...server.ServerOption) (*server.Server, error) {
	if r == nil {
		return nil, fmt.Errorf("fulfillment: runtime is nil")
	}
	return server.NewServer(addr, r.handler, opts...)
}
