package core

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	issuer          LicenseIssuer
	notifier        Notifier
	resolver        PolicyResolver
	lineItems       LineItemSource
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	now             func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithLicenseIssuer(issuer LicenseIssuer) Option {
	return func(b *serviceBuilder) {
		b.issuer = issuer
	}
}

func WithNotifier(notifier Notifier) Option {
	return func(b *serviceBuilder) {
		b.notifier = notifier
	}
}

func WithPolicyResolver(resolver PolicyResolver) Option {
	return func(b *serviceBuilder) {
		b.resolver = resolver
	}
}

func WithLineItemSource(source LineItemSource) Option {
	return func(b *serviceBuilder) {
		b.lineItems = source
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	return serviceBuilder{
		runtimeConfig:   runtime,
		metricsRecorder: NopMetricsRecorder{},
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func resolveConfig(builder serviceBuilder) (Config, error) {
	defaults := DefaultConfig()
	loaded := defaults
	if builder.configProvider != nil {
		var err error
		loaded, err = builder.configProvider.Load(context.Background(), defaults)
		if err != nil {
			return Config{}, err
		}
	}
	resolver := builder.optionsResolver
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	return resolver.Resolve(defaults, loaded, builder.runtimeConfig)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// StaticRawConfigLoader wraps an in-memory configuration map, typically built
// from environment variables by the host binary.
func StaticRawConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || cfg.ServiceName != "" {
		layer["service_name"] = cfg.ServiceName
	}

	webhook := map[string]any{}
	if includeZero || cfg.Webhook.Secret != "" {
		webhook["secret"] = cfg.Webhook.Secret
	}
	if includeZero || cfg.Webhook.SignatureHeader != "" {
		webhook["signature_header"] = cfg.Webhook.SignatureHeader
	}
	if includeZero || cfg.Webhook.Tolerance != 0 {
		webhook["tolerance"] = cfg.Webhook.Tolerance
	}
	if includeZero || len(cfg.Webhook.EventTypes) > 0 {
		webhook["event_types"] = append([]string(nil), cfg.Webhook.EventTypes...)
	}
	if len(webhook) > 0 {
		layer["webhook"] = webhook
	}

	if includeZero || cfg.Admin.Secret != "" {
		layer["admin"] = map[string]any{"secret": cfg.Admin.Secret}
	}

	licensing := map[string]any{}
	if includeZero || cfg.Licensing.AccountID != "" {
		licensing["account_id"] = cfg.Licensing.AccountID
	}
	if includeZero || cfg.Licensing.Token != "" {
		licensing["token"] = cfg.Licensing.Token
	}
	if includeZero || cfg.Licensing.PolicyID != "" {
		licensing["policy_id"] = cfg.Licensing.PolicyID
	}
	if includeZero || cfg.Licensing.ProductID != "" {
		licensing["product_id"] = cfg.Licensing.ProductID
	}
	if includeZero || cfg.Licensing.BaseURL != "" {
		licensing["base_url"] = cfg.Licensing.BaseURL
	}
	if len(licensing) > 0 {
		layer["licensing"] = licensing
	}

	mail := map[string]any{}
	if includeZero || cfg.Mail.Host != "" {
		mail["host"] = cfg.Mail.Host
	}
	if includeZero || cfg.Mail.Port != 0 {
		mail["port"] = cfg.Mail.Port
	}
	if includeZero || cfg.Mail.Username != "" {
		mail["username"] = cfg.Mail.Username
	}
	if includeZero || cfg.Mail.Password != "" {
		mail["password"] = cfg.Mail.Password
	}
	if includeZero || cfg.Mail.From != "" {
		mail["from"] = cfg.Mail.From
	}
	if includeZero || cfg.Mail.Subject != "" {
		mail["subject"] = cfg.Mail.Subject
	}
	if len(mail) > 0 {
		layer["mail"] = mail
	}

	if includeZero || len(cfg.Policies.Table) > 0 {
		table := make(map[string]string, len(cfg.Policies.Table))
		for price, policy := range cfg.Policies.Table {
			table[price] = policy
		}
		layer["policies"] = map[string]any{"table": table}
	}

	return layer
}
