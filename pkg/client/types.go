package client

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType names a domain event a subscription can listen for.
type EventType string

const (
	EventLeadCreated       EventType = "lead.created"
	EventLeadUpdated       EventType = "lead.updated"
	EventLeadAssigned      EventType = "lead.assigned"
	EventLeadStatusChanged EventType = "lead.status_changed"
	EventLeadNoteAdded     EventType = "lead.note_added"
	EventLeadDeleted       EventType = "lead.deleted"

	// EventWebhookTest is only sent by TestSubscription.
	EventWebhookTest EventType = "webhook.test"
)

func (e EventType) String() string { return string(e) }

// Headers set on every delivery.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderEventType = "X-Webhook-Event"
	HeaderEventID   = "X-Webhook-Event-Id"
)

// Subscription is a registered webhook endpoint. The signing secret is only
// returned by CreateSubscription.
type Subscription struct {
	ID        uuid.UUID   `json:"id"`
	OrgID     uuid.UUID   `json:"org_id"`
	URL       string      `json:"url"`
	Events    []EventType `json:"events"`
	Active    bool        `json:"active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// UpdateRequest changes a subscription. Nil fields are left as they are.
type UpdateRequest struct {
	Active *bool       `json:"active"`
	Events []EventType `json:"events"`
}

// DeliveryAttempt is one recorded delivery attempt.
type DeliveryAttempt struct {
	ID           uuid.UUID `json:"id"`
	WebhookID    uuid.UUID `json:"webhook_id"`
	EventID      string    `json:"event_id"`
	EventType    EventType `json:"event_type"`
	URL          string    `json:"url"`
	RequestBody  string    `json:"request_body"`
	StatusCode   int       `json:"status_code"`
	ResponseBody string    `json:"response_body"`
	ErrorMessage string    `json:"error_message"`
	Attempt      int       `json:"attempt"`
	Success      bool      `json:"success"`
	DurationMs   int64     `json:"duration_ms"`
	DeliveredAt  time.Time `json:"delivered_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Event is the body of a delivery as seen by a receiver.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type createRequest struct {
	URL    string      `json:"url"`
	Events []EventType `json:"events"`
}

type dispatchRequest struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}
