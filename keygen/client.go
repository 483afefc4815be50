// Package keygen issues licenses against a Keygen-compatible JSON:API. The
// service never stores license state; the licensing account is the system of
// record and this client is the only writer.
package keygen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-fulfillment/core"
)

const DefaultBaseURL = "https://api.keygen.sh"

type Client struct {
	adapter   core.TransportAdapter
	accountID string
	token     string
	productID string
	baseURL   string
	logger    core.Logger
}

type ClientOption func(*Client)

func WithLogger(logger core.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithProductID attaches a product relationship to every created license.
// Optional; accounts with a single product can omit it.
func WithProductID(productID string) ClientOption {
	return func(c *Client) {
		c.productID = strings.TrimSpace(productID)
	}
}

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = strings.TrimRight(trimmed, "/")
		}
	}
}

func NewClient(adapter core.TransportAdapter, accountID string, token string, opts ...ClientOption) (*Client, error) {
	if adapter == nil {
		return nil, keygenInternal("keygen: transport adapter is required", nil)
	}
	client := &Client{
		adapter:   adapter,
		accountID: strings.TrimSpace(accountID),
		token:     strings.TrimSpace(token),
		baseURL:   DefaultBaseURL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.accountID == "" {
		return nil, keygenInternal("keygen: account id is required", nil)
	}
	if client.token == "" {
		return nil, keygenInternal("keygen: api token is required", nil)
	}
	client.logger = glog.Ensure(client.logger)
	return client, nil
}

// NewClientFromConfig wires a client from the licensing config section.
func NewClientFromConfig(adapter core.TransportAdapter, cfg core.LicensingConfig, opts ...ClientOption) (*Client, error) {
	base := []ClientOption{
		WithProductID(cfg.ProductID),
		WithBaseURL(cfg.BaseURL),
	}
	return NewClient(adapter, cfg.AccountID, cfg.Token, append(base, opts...)...)
}

type licensePayload struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			Name     string         `json:"name,omitempty"`
			Metadata map[string]any `json:"metadata,omitempty"`
		} `json:"attributes"`
		Relationships map[string]relationship `json:"relationships"`
	} `json:"data"`
}

type relationship struct {
	Data relationshipData `json:"data"`
}

type relationshipData struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type licenseResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Key      string         `json:"key"`
			Metadata map[string]any `json:"metadata"`
		} `json:"attributes"`
	} `json:"data"`
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Code   string `json:"code"`
		Source struct {
			Pointer string `json:"pointer"`
		} `json:"source"`
	} `json:"errors"`
}

// Issue creates a license under the given policy. The request name falls back
// to the email when empty; a missing key in an otherwise 2xx response is a
// hard error.
func (c *Client) Issue(ctx context.Context, req core.IssueLicenseRequest) (core.LicenseRecord, error) {
	if c == nil || c.adapter == nil {
		return core.LicenseRecord{}, keygenInternal("keygen: client is not configured", nil)
	}
	policyID := strings.TrimSpace(req.PolicyID)
	if policyID == "" {
		return core.LicenseRecord{}, keygenBadInput("keygen: policy id is required", nil)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.TrimSpace(req.Email)
	}

	var payload licensePayload
	payload.Data.Type = "licenses"
	payload.Data.Attributes.Name = name
	payload.Data.Attributes.Metadata = req.Metadata
	payload.Data.Relationships = map[string]relationship{
		"policy": {Data: relationshipData{Type: "policies", ID: policyID}},
	}
	if c.productID != "" {
		payload.Data.Relationships["product"] = relationship{
			Data: relationshipData{Type: "products", ID: c.productID},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return core.LicenseRecord{}, keygenWrap(err, goerrors.CategoryInternal,
			"keygen: encode license payload", http.StatusInternalServerError, nil)
	}

	res, err := c.adapter.Do(ctx, core.TransportRequest{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/v1/accounts/%s/licenses", c.baseURL, c.accountID),
		Headers: map[string]string{
			"Authorization": "Bearer " + c.token,
			"Content-Type":  "application/json",
			"Accept":        "application/json",
		},
		Body:        body,
		Idempotency: strings.TrimSpace(req.IdempotencyKey),
	})
	if err != nil {
		return core.LicenseRecord{}, keygenWrap(err, goerrors.CategoryExternal,
			"keygen: create license request failed", http.StatusBadGateway,
			map[string]any{"policy_id": policyID})
	}

	var decoded licenseResponse
	if len(res.Body) > 0 {
		if err := json.Unmarshal(res.Body, &decoded); err != nil {
			return core.LicenseRecord{}, keygenWrap(err, goerrors.CategoryExternal,
				"keygen: decode license response", http.StatusBadGateway,
				map[string]any{"status_code": res.StatusCode})
		}
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return core.LicenseRecord{}, keygenAPIError(res.StatusCode, decoded, policyID)
	}

	key := strings.TrimSpace(decoded.Data.Attributes.Key)
	if key == "" {
		c.logger.WithContext(ctx).Error("license created without key",
			"status_code", res.StatusCode,
			"policy_id", policyID,
		)
		return core.LicenseRecord{}, keygenError(
			"keygen: license response is missing the license key",
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{"status_code": res.StatusCode, "policy_id": policyID},
		)
	}

	return core.LicenseRecord{
		ID:       strings.TrimSpace(decoded.Data.ID),
		Key:      key,
		PolicyID: policyID,
		Metadata: decoded.Data.Attributes.Metadata,
	}, nil
}

func keygenAPIError(statusCode int, decoded licenseResponse, policyID string) error {
	detail := ""
	metadata := map[string]any{
		"status_code": statusCode,
		"policy_id":   policyID,
	}
	if len(decoded.Errors) > 0 {
		first := decoded.Errors[0]
		detail = strings.TrimSpace(first.Detail)
		if detail == "" {
			detail = strings.TrimSpace(first.Title)
		}
		if pointer := strings.TrimSpace(first.Source.Pointer); pointer != "" {
			metadata["source_pointer"] = pointer
		}
		if code := strings.TrimSpace(first.Code); code != "" {
			metadata["api_code"] = code
		}
	}
	message := "keygen: license creation rejected"
	if detail != "" {
		message = message + ": " + detail
	}
	return keygenError(message, goerrors.CategoryExternal, http.StatusBadGateway, metadata)
}

var _ core.LicenseIssuer = (*Client)(nil)
