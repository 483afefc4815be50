package webhooks

import (
	"encoding/json"
	"strings"

	"github.com/goliatone/go-fulfillment/core"
)

// Event is the provider envelope decoded from a verified payload. Object holds
// the event's data object untouched so handlers can pull fields lazily.
type Event struct {
	ID     string
	Type   string
	Object json.RawMessage
}

type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSession struct {
	ID              string `json:"id"`
	CustomerDetails struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"customer_details"`
	Metadata  map[string]string `json:"metadata"`
	LineItems struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"line_items"`
}

// ParseEvent decodes the provider envelope. Decoding happens strictly after
// signature verification; the raw bytes passed to the verifier are never the
// product of this function.
func ParseEvent(body []byte) (Event, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Event{}, badInputError("webhooks: malformed event payload: "+err.Error(), nil)
	}
	eventType := strings.TrimSpace(envelope.Type)
	if eventType == "" {
		return Event{}, badInputError("webhooks: event type is required", nil)
	}
	return Event{
		ID:     strings.TrimSpace(envelope.ID),
		Type:   eventType,
		Object: envelope.Data.Object,
	}, nil
}

// PurchaseContextFromEvent extracts the purchase details the fulfillment flow
// needs. The price id is taken from expanded line items when present, then
// from session metadata; when both are absent the flow falls back to its line
// item source.
func PurchaseContextFromEvent(event Event) (core.PurchaseContext, error) {
	var session checkoutSession
	if len(event.Object) > 0 {
		if err := json.Unmarshal(event.Object, &session); err != nil {
			return core.PurchaseContext{}, badInputError(
				"webhooks: malformed checkout session object: "+err.Error(),
				map[string]any{"event_id": event.ID})
		}
	}

	priceID := ""
	if len(session.LineItems.Data) > 0 {
		priceID = strings.TrimSpace(session.LineItems.Data[0].Price.ID)
	}
	if priceID == "" {
		priceID = strings.TrimSpace(session.Metadata["price_id"])
	}

	var metadata map[string]any
	if len(session.Metadata) > 0 {
		metadata = make(map[string]any, len(session.Metadata))
		for key, value := range session.Metadata {
			metadata[key] = value
		}
	}

	return core.PurchaseContext{
		EventID:       event.ID,
		EventType:     event.Type,
		SessionID:     strings.TrimSpace(session.ID),
		PriceID:       priceID,
		CustomerEmail: strings.TrimSpace(session.CustomerDetails.Email),
		CustomerName:  strings.TrimSpace(session.CustomerDetails.Name),
		Metadata:      metadata,
	}, nil
}

// EventIDExtractor resolves the dedupe key for a delivery. The provider event
// id is authoritative; headers are a fallback for providers that resend the
// same event under distinct delivery ids.
func EventIDExtractor(event Event, req core.InboundRequest) string {
	if id := strings.TrimSpace(event.ID); id != "" {
		return id
	}
	if req.Headers != nil {
		for _, key := range []string{"x-delivery-id", "x-request-id"} {
			if value := headerValue(req.Headers, key); value != "" {
				return value
			}
		}
	}
	return ""
}
