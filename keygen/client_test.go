package keygen

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-fulfillment/core"
)

func TestClient_IssueCreatesLicense(t *testing.T) {
	adapter := &stubAdapter{
		response: core.TransportResponse{
			StatusCode: 201,
			Body: []byte(`{"data":{"id":"lic_1","attributes":{"key":"ABCD-EFGH","metadata":{"email":"buyer@example.com"}}}}`),
		},
	}
	client, err := NewClient(adapter, "acct_1", "token_1", WithProductID("prod_1"))
	if err != nil {
		t.Fatalf("build client: %v", err)
	}

	record, err := client.Issue(context.Background(), core.IssueLicenseRequest{
		PolicyID:       "pol_1",
		Name:           "Ada Lovelace",
		Email:          "buyer@example.com",
		Metadata:       map[string]any{"event_id": "evt_1"},
		IdempotencyKey: "evt_1",
	})
	if err != nil {
		t.Fatalf("issue license: %v", err)
	}
	if record.Key != "ABCD-EFGH" || record.ID != "lic_1" || record.PolicyID != "pol_1" {
		t.Fatalf("unexpected record %#v", record)
	}

	req := adapter.lastRequest
	if req.Method != "POST" {
		t.Fatalf("expected POST, got %q", req.Method)
	}
	if req.URL != "https://api.keygen.sh/v1/accounts/acct_1/licenses" {
		t.Fatalf("unexpected url %q", req.URL)
	}
	if req.Headers["Authorization"] != "Bearer token_1" {
		t.Fatalf("expected bearer token, got %q", req.Headers["Authorization"])
	}
	if req.Idempotency != "evt_1" {
		t.Fatalf("expected idempotency key, got %q", req.Idempotency)
	}

	var payload map[string]any
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	data := payload["data"].(map[string]any)
	if data["type"] != "licenses" {
		t.Fatalf("expected licenses type, got %v", data["type"])
	}
	attributes := data["attributes"].(map[string]any)
	if attributes["name"] != "Ada Lovelace" {
		t.Fatalf("unexpected name %v", attributes["name"])
	}
	relationships := data["relationships"].(map[string]any)
	policy := relationships["policy"].(map[string]any)["data"].(map[string]any)
	if policy["type"] != "policies" || policy["id"] != "pol_1" {
		t.Fatalf("unexpected policy relationship %v", policy)
	}
	product := relationships["product"].(map[string]any)["data"].(map[string]any)
	if product["type"] != "products" || product["id"] != "prod_1" {
		t.Fatalf("unexpected product relationship %v", product)
	}
}

func TestClient_IssueNameFallsBackToEmail(t *testing.T) {
	adapter := &stubAdapter{
		response: core.TransportResponse{
			StatusCode: 201,
			Body:       []byte(`{"data":{"id":"lic_2","attributes":{"key":"KEY-2"}}}`),
		},
	}
	client, err := NewClient(adapter, "acct_1", "token_1")
	if err != nil {
		t.Fatalf("build client: %v", err)
	}
	if _, err := client.Issue(context.Background(), core.IssueLicenseRequest{
		PolicyID: "pol_1",
		Email:    "buyer@example.com",
	}); err != nil {
		t.Fatalf("issue license: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(adapter.lastRequest.Body, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	attributes := payload["data"].(map[string]any)["attributes"].(map[string]any)
	if attributes["name"] != "buyer@example.com" {
		t.Fatalf("expected email fallback name, got %v", attributes["name"])
	}
	if _, hasProduct := payload["data"].(map[string]any)["relationships"].(map[string]any)["product"]; hasProduct {
		t.Fatalf("expected no product relationship when product id is unset")
	}
}

func TestClient_IssueSurfacesAPIErrorDetail(t *testing.T) {
	adapter := &stubAdapter{
		response: core.TransportResponse{
			StatusCode: 422,
			Body: []byte(`{"errors":[{"title":"Unprocessable resource","detail":"policy not found","code":"POLICY_INVALID","source":{"pointer":"/data/relationships/policy"}}]}`),
		},
	}
	client, err := NewClient(adapter, "acct_1", "token_1")
	if err != nil {
		t.Fatalf("build client: %v", err)
	}
	_, err = client.Issue(context.Background(), core.IssueLicenseRequest{PolicyID: "pol_missing"})
	if err == nil {
		t.Fatalf("expected API error")
	}
	if !strings.Contains(err.Error(), "policy not found") {
		t.Fatalf("expected detail in error, got %v", err)
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected rich error, got %T", err)
	}
	if richErr.TextCode != core.ErrorIssueFailed {
		t.Fatalf("expected %s, got %s", core.ErrorIssueFailed, richErr.TextCode)
	}
	if richErr.Metadata["source_pointer"] != "/data/relationships/policy" {
		t.Fatalf("expected source pointer metadata, got %+v", richErr.Metadata)
	}
}

func TestClient_IssueRejectsMissingKey(t *testing.T) {
	adapter := &stubAdapter{
		response: core.TransportResponse{
			StatusCode: 201,
			Body:       []byte(`{"data":{"id":"lic_3","attributes":{}}}`),
		},
	}
	client, err := NewClient(adapter, "acct_1", "token_1")
	if err != nil {
		t.Fatalf("build client: %v", err)
	}
	if _, err := client.Issue(context.Background(), core.IssueLicenseRequest{PolicyID: "pol_1"}); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient(nil, "acct", "token"); err == nil {
		t.Fatalf("expected error for nil adapter")
	}
	if _, err := NewClient(&stubAdapter{}, "", "token"); err == nil {
		t.Fatalf("expected error for missing account id")
	}
	if _, err := NewClient(&stubAdapter{}, "acct", " "); err == nil {
		t.Fatalf("expected error for missing token")
	}
}

type stubAdapter struct {
	response    core.TransportResponse
	err         error
	lastRequest core.TransportRequest
}

func (s *stubAdapter) Kind() string { return "stub" }

func (s *stubAdapter) Do(_ context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	s.lastRequest = req
	if s.err != nil {
		return core.TransportResponse{}, s.err
	}
	return s.response, nil
}
