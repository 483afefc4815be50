package server

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	gocmd "github.com/goliatone/go-command"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-fulfillment/command"
	"github.com/goliatone/go-fulfillment/core"
	"github.com/goliatone/go-fulfillment/webhooks"
)

const AdminSecretHeader = "x-admin-issue-secret"

const defaultMaxRequestBodyBytes int64 = 1 << 20 // 1 MiB

// Handler exposes the webhook and admin-issue surfaces. Webhook deliveries go
// through the verification processor; admin requests execute the admin-issue
// command after a constant-time secret check.
type Handler struct {
	processor   *webhooks.Processor
	adminIssue  *command.AdminIssueCommand
	adminSecret string
	logger      core.Logger
	maxBody     int64
}

type HandlerOption func(*Handler)

func WithHandlerLogger(logger core.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

func WithMaxRequestBodyBytes(limit int64) HandlerOption {
	return func(h *Handler) {
		if limit > 0 {
			h.maxBody = limit
		}
	}
}

func NewHandler(
	processor *webhooks.Processor,
	adminIssue *command.AdminIssueCommand,
	adminSecret string,
	opts ...HandlerOption,
) *Handler {
	handler := &Handler{
		processor:   processor,
		adminIssue:  adminIssue,
		adminSecret: strings.TrimSpace(adminSecret),
		maxBody:     defaultMaxRequestBodyBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}
	handler.logger = glog.Ensure(handler.logger)
	return handler
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBody+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
		return
	}
	if int64(len(body)) > h.maxBody {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": "payload too large"})
		return
	}

	result, err := h.processor.Process(r.Context(), core.InboundRequest{
		Headers: flattenRequestHeaders(r.Header),
		Body:    body,
	})
	if err != nil {
		status := core.HTTPStatus(err)
		if result.StatusCode != 0 {
			status = result.StatusCode
		}
		h.logger.WithContext(r.Context()).Error("webhook delivery rejected",
			"status", status,
			"error", err,
		)
		writeJSON(w, status, map[string]any{"error": core.MapError(err).Message})
		return
	}
	writeJSON(w, result.StatusCode, map[string]any{"received": true})
}

type adminIssuePayload struct {
	PolicyID string `json:"policyId"`
	Email    string `json:"email"`
	Reason   string `json:"reason"`
}

type adminIssueResponse struct {
	Success    bool   `json:"success"`
	LicenseKey string `json:"license_key,omitempty"`
	Emailed    bool   `json:"emailed"`
	Error      string `json:"error,omitempty"`
}

func (h *Handler) handleAdminIssue(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeAdmin(r) {
		writeJSON(w, http.StatusForbidden, adminIssueResponse{Success: false, Error: "Forbidden"})
		return
	}

	var payload adminIssuePayload
	decoder := json.NewDecoder(io.LimitReader(r.Body, h.maxBody))
	if err := decoder.Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, adminIssueResponse{Success: false, Error: "invalid JSON body"})
		return
	}

	msg := command.AdminIssueMessage{Request: core.AdminIssueRequest{
		PolicyID: payload.PolicyID,
		Email:    payload.Email,
		Reason:   payload.Reason,
	}}
	if err := msg.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, adminIssueResponse{Success: false, Error: err.Error()})
		return
	}

	collector := gocmd.NewResult[core.FulfillmentResult]()
	ctx := gocmd.ContextWithResult(r.Context(), collector)
	if err := h.adminIssue.Execute(ctx, msg); err != nil {
		status := core.HTTPStatus(err)
		h.logger.WithContext(r.Context()).Error("admin issue failed",
			"policy_id", payload.PolicyID,
			"status", status,
			"error", err,
		)
		writeJSON(w, status, adminIssueResponse{Success: false, Error: core.MapError(err).Message})
		return
	}

	result, ok := collector.Load()
	if !ok {
		writeJSON(w, http.StatusInternalServerError, adminIssueResponse{Success: false, Error: "missing command result"})
		return
	}
	writeJSON(w, http.StatusOK, adminIssueResponse{
		Success:    true,
		LicenseKey: result.LicenseKey,
		Emailed:    result.Emailed,
	})
}

// authorizeAdmin compares the shared secret in constant time. An empty
// configured secret disables the surface entirely.
func (h *Handler) authorizeAdmin(r *http.Request) bool {
	if h.adminSecret == "" {
		return false
	}
	provided := r.Header.Get(AdminSecretHeader)
	if provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.adminSecret)) == 1
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func flattenRequestHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			continue
		}
		flat[key] = values[0]
	}
	return flat
}
