package webhooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownEventType is returned when an event type is outside the fixed vocabulary.
var ErrUnknownEventType = errors.New("unknown webhook event type")

// EventType names a domain occurrence that webhooks can subscribe to.
type EventType string

// Event types dispatched by the system.
const (
	EventLeadCreated       EventType = "lead.created"
	EventLeadUpdated       EventType = "lead.updated"
	EventLeadAssigned      EventType = "lead.assigned"
	EventLeadStatusChanged EventType = "lead.status_changed"
	EventLeadNoteAdded     EventType = "lead.note_added"
	EventLeadDeleted       EventType = "lead.deleted"

	// EventWebhookTest is only sent by SendTest and cannot be subscribed to.
	EventWebhookTest EventType = "webhook.test"
)

var subscribableEvents = map[EventType]bool{
	EventLeadCreated:       true,
	EventLeadUpdated:       true,
	EventLeadAssigned:      true,
	EventLeadStatusChanged: true,
	EventLeadNoteAdded:     true,
	EventLeadDeleted:       true,
}

// ParseEventType validates s against the event vocabulary.
func ParseEventType(s string) (EventType, error) {
	et := EventType(s)
	if et == EventWebhookTest || subscribableEvents[et] {
		return et, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEventType, s)
}

// Subscribable reports whether webhooks may register for this event type.
func (e EventType) Subscribable() bool {
	return subscribableEvents[e]
}

func (e EventType) String() string { return string(e) }

// UnmarshalJSON rejects event types outside the vocabulary.
func (e *EventType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	et, err := ParseEventType(s)
	if err != nil {
		return err
	}
	*e = et
	return nil
}

// WebhookSubscription is one registered outbound endpoint.
type WebhookSubscription struct {
	ID        uuid.UUID   `json:"id"         db:"id"`
	OrgID     uuid.UUID   `json:"org_id"     db:"org_id"`
	URL       string      `json:"url"        db:"url"`
	Events    []EventType `json:"events"     db:"events"`
	Secret    string      `json:"-"          db:"secret"` // never returned in API responses
	Active    bool        `json:"active"     db:"active"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// Subscribes reports whether the subscription listens for et.
func (s *WebhookSubscription) Subscribes(et EventType) bool {
	for _, e := range s.Events {
		if e == et {
			return true
		}
	}
	return false
}

// Envelope is the immutable event body shared by every subscriber of one dispatch.
// body holds the exact bytes that are signed and transmitted.
type Envelope struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`

	body []byte
}

func newEnvelope(id string, et EventType, ts time.Time, data any) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	env := &Envelope{ID: id, Type: et, Timestamp: ts.UTC(), Data: raw}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	env.body = body
	return env, nil
}

// Body returns a copy of the serialized envelope.
func (e *Envelope) Body() []byte {
	out := make([]byte, len(e.body))
	copy(out, e.body)
	return out
}

// DeliveryAttempt records the outcome of one numbered delivery attempt.
type DeliveryAttempt struct {
	ID           uuid.UUID `json:"id"            db:"id"`
	WebhookID    uuid.UUID `json:"webhook_id"    db:"webhook_id"`
	EventID      string    `json:"event_id"      db:"event_id"`
	EventType    EventType `json:"event_type"    db:"event_type"`
	URL          string    `json:"url"           db:"url"`
	RequestBody  string    `json:"request_body"  db:"request_body"`
	StatusCode   int       `json:"status_code"   db:"status_code"`
	ResponseBody string    `json:"response_body" db:"response_body"`
	ErrorMessage string    `json:"error_message" db:"error_message"`
	Attempt      int       `json:"attempt"       db:"attempt"`
	Success      bool      `json:"success"       db:"success"`
	DurationMs   int64     `json:"duration_ms"   db:"duration_ms"`
	DeliveredAt  time.Time `json:"delivered_at"  db:"delivered_at"`
	ExpiresAt    time.Time `json:"expires_at"    db:"expires_at"`
}

// CreateSubscriptionRequest is the payload for creating a webhook subscription.
type CreateSubscriptionRequest struct {
	URL    string      `json:"url"    binding:"required,url"`
	Events []EventType `json:"events" binding:"required,min=1"`
}

// UpdateSubscriptionRequest toggles a subscription or replaces its event set.
type UpdateSubscriptionRequest struct {
	Active *bool       `json:"active"`
	Events []EventType `json:"events"`
}

// DispatchRequest is the payload accepted by the event intake endpoint.
type DispatchRequest struct {
	Type EventType       `json:"type" binding:"required"`
	Data json.RawMessage `json:"data"`
}
