package core

import (
	"fmt"
	"strings"
	"time"
)

type WebhookConfig struct {
	Secret          string        `koanf:"secret" mapstructure:"secret"`
	SignatureHeader string        `koanf:"signature_header" mapstructure:"signature_header"`
	Tolerance       time.Duration `koanf:"tolerance" mapstructure:"tolerance"`
	EventTypes      []string      `koanf:"event_types" mapstructure:"event_types"`
}

type AdminConfig struct {
	Secret string `koanf:"secret" mapstructure:"secret"`
}

type LicensingConfig struct {
	AccountID string `koanf:"account_id" mapstructure:"account_id"`
	Token     string `koanf:"token" mapstructure:"token"`
	PolicyID  string `koanf:"policy_id" mapstructure:"policy_id"`
	ProductID string `koanf:"product_id" mapstructure:"product_id"`
	BaseURL   string `koanf:"base_url" mapstructure:"base_url"`
}

type MailConfig struct {
	Host     string `koanf:"host" mapstructure:"host"`
	Port     int    `koanf:"port" mapstructure:"port"`
	Username string `koanf:"username" mapstructure:"username"`
	Password string `koanf:"password" mapstructure:"password"`
	From     string `koanf:"from" mapstructure:"from"`
	Subject  string `koanf:"subject" mapstructure:"subject"`
}

type PoliciesConfig struct {
	// Table maps a purchased price/item identifier to a licensing policy id.
	// Static per deployment; never consulted with a fallback default.
	Table map[string]string `koanf:"table" mapstructure:"table"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Webhook     WebhookConfig   `koanf:"webhook" mapstructure:"webhook"`
	Admin       AdminConfig     `koanf:"admin" mapstructure:"admin"`
	Licensing   LicensingConfig `koanf:"licensing" mapstructure:"licensing"`
	Mail        MailConfig      `koanf:"mail" mapstructure:"mail"`
	Policies    PoliciesConfig  `koanf:"policies" mapstructure:"policies"`
}

const (
	defaultSignatureHeader = "Stripe-Signature"
	defaultTolerance       = 5 * time.Minute
	defaultMailSubject     = "Your License Key"
)

func DefaultEventTypes() []string {
	return []string{
		"checkout.session.completed",
		"checkout.session.async_payment_succeeded",
	}
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "fulfillment",
		Webhook: WebhookConfig{
			SignatureHeader: defaultSignatureHeader,
			Tolerance:       defaultTolerance,
			EventTypes:      DefaultEventTypes(),
		},
		Mail: MailConfig{
			Port:    587,
			Subject: defaultMailSubject,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Webhook.Tolerance < 0 {
		return fmt.Errorf("core: webhook.tolerance must not be negative")
	}
	if strings.TrimSpace(c.Webhook.Secret) != "" && len(c.Policies.Table) == 0 {
		// Webhook fulfillment with an empty policy table can only ever reject
		// events, so surface the misconfiguration at load time.
		return fmt.Errorf("core: policies.table is required when webhook.secret is set")
	}
	for price, policy := range c.Policies.Table {
		if strings.TrimSpace(price) == "" || strings.TrimSpace(policy) == "" {
			return fmt.Errorf("core: policies.table entries must have non-empty price and policy ids")
		}
	}
	return nil
}
