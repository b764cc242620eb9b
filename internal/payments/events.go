package payments

import (
	"encoding/json"
	"fmt"
)

// EventKind enumerates the recognized webhook events. Anything else parses to
// EventUnknown instead of being silently defaulted.
type EventKind string

const (
	EventPaymentAuthorized EventKind = "payment.authorized"
	EventPaymentCaptured   EventKind = "payment.captured"
	EventPaymentFailed     EventKind = "payment.failed"
	EventRefundCreated     EventKind = "refund.created"
	EventRefundProcessed   EventKind = "refund.processed"
	EventUnknown           EventKind = "unknown"
)

// PaymentPayload is the payment entity carried by payment.* events.
type PaymentPayload struct {
	PaymentID        string `json:"id"`
	OrderID          string `json:"order_id"`
	Method           string `json:"method"`
	Amount           int    `json:"amount"`
	ErrorDescription string `json:"error_description"`
}

// RefundPayload is the refund entity carried by refund.* events.
type RefundPayload struct {
	RefundID  string `json:"id"`
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
}

// Event is the tagged union over recognized webhook kinds. Exactly one of
// Payment/Refund is set for recognized kinds.
type Event struct {
	Kind    EventKind
	RawKind string
	Payment *PaymentPayload
	Refund  *RefundPayload
}

type rawEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ParseEvent decodes a webhook body into the event union. Unrecognized event
// names yield Kind=EventUnknown, not an error; a malformed body does error.
func ParseEvent(body []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return Event{}, fmt.Errorf("decode webhook body: %w", err)
	}

	event := Event{RawKind: raw.Event}
	switch EventKind(raw.Event) {
	case EventPaymentAuthorized, EventPaymentCaptured, EventPaymentFailed:
		var payload PaymentPayload
		if err := json.Unmarshal(raw.Payload, &payload); err != nil {
			return Event{}, fmt.Errorf("decode payment payload: %w", err)
		}
		event.Kind = EventKind(raw.Event)
		event.Payment = &payload
	case EventRefundCreated, EventRefundProcessed:
		var payload RefundPayload
		if err := json.Unmarshal(raw.Payload, &payload); err != nil {
			return Event{}, fmt.Errorf("decode refund payload: %w", err)
		}
		event.Kind = EventKind(raw.Event)
		event.Refund = &payload
	default:
		event.Kind = EventUnknown
	}
	return event, nil
}
