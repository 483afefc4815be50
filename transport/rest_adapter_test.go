package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goliatone/go-fulfillment/core"
)

func TestRESTAdapter_DoSendsHeadersAndIdempotencyKey(t *testing.T) {
	var gotAuth, gotIdempotency, gotCustom string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotIdempotency = r.Header.Get("Idempotency-Key")
		gotCustom = r.Header.Get("X-Custom")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	adapter.DefaultHeaders["Authorization"] = "Bearer token-1"

	res, err := adapter.Do(context.Background(), core.TransportRequest{
		Method:      http.MethodPost,
		URL:         server.URL + "/v1/licenses",
		Headers:     map[string]string{"X-Custom": "yes"},
		Body:        []byte(`{"data":{}}`),
		Idempotency: "evt_1",
	})
	if err != nil {
		t.Fatalf("execute request: %v", err)
	}
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.StatusCode)
	}
	if gotAuth != "Bearer token-1" {
		t.Fatalf("expected default authorization header, got %q", gotAuth)
	}
	if gotIdempotency != "evt_1" {
		t.Fatalf("expected idempotency key header, got %q", gotIdempotency)
	}
	if gotCustom != "yes" {
		t.Fatalf("expected per-request header, got %q", gotCustom)
	}
	if string(gotBody) != `{"data":{}}` {
		t.Fatalf("unexpected body %q", gotBody)
	}
	if string(res.Body) != `{"ok":true}` {
		t.Fatalf("unexpected response body %q", res.Body)
	}
	if res.Headers["Content-Type"] != "application/json" {
		t.Fatalf("expected flattened response headers, got %+v", res.Headers)
	}
}

func TestRESTAdapter_DoRejectsOversizedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	_, err := adapter.Do(context.Background(), core.TransportRequest{
		URL:                  server.URL,
		MaxResponseBodyBytes: 16,
	})
	if err == nil {
		t.Fatalf("expected oversized response error")
	}
}

func TestRESTAdapter_DoRequiresURL(t *testing.T) {
	adapter := NewRESTAdapter(nil)
	if _, err := adapter.Do(context.Background(), core.TransportRequest{}); err == nil {
		t.Fatalf("expected error for missing url")
	}
}

func TestRESTAdapter_DoWrapsConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	client := server.Client()
	server.Close()

	adapter := NewRESTAdapter(client)
	if _, err := adapter.Do(context.Background(), core.TransportRequest{URL: server.URL}); err == nil {
		t.Fatalf("expected connection error")
	}
}
