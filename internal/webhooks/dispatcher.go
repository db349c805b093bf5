package webhooks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a webhook subscription is not found.
var ErrNotFound = errors.New("webhook subscription not found")

// Registry resolves the subscriptions an event is delivered to.
type Registry interface {
	ListActiveForEvent(ctx context.Context, eventType EventType) ([]*WebhookSubscription, error)
	Get(ctx context.Context, id uuid.UUID) (*WebhookSubscription, error)
}

// DeliveryStore persists delivery attempt records.
type DeliveryStore interface {
	PutDelivery(ctx context.Context, d *DeliveryAttempt) error
	ListDeliveries(ctx context.Context, webhookID uuid.UUID, limit int) ([]*DeliveryAttempt, error)
}

// IDGenerator returns a new event id. Ids must sort in creation order.
type IDGenerator func() string

// NewEventID returns a UUIDv7 string, which sorts lexicographically by time.
func NewEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// Clock is the time source for timestamps and retry delays.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MetricsRecorder is an optional sink for delivery outcomes.
type MetricsRecorder interface {
	AttemptCompleted(eventType EventType, success bool, elapsed time.Duration)
	DeliveryExhausted(eventType EventType)
	DuplicateSkipped(eventType EventType)
}

// Config tunes delivery behavior. Zero values fall back to defaults.
type Config struct {
	// RetryDelays holds the pre-send delay per attempt; its length is the
	// maximum number of attempts.
	RetryDelays []time.Duration
	// Retention is how long delivery records and dedup markers are kept.
	Retention time.Duration
}

// DefaultRetryDelays waits 0s, 30s and 5m before attempts 1, 2 and 3.
var DefaultRetryDelays = []time.Duration{0, 30 * time.Second, 5 * time.Minute}

// DefaultRetention is the lifetime of delivery records and dedup markers.
const DefaultRetention = 30 * 24 * time.Hour

// Dispatcher fans domain events out to subscribed webhooks.
type Dispatcher struct {
	registry Registry
	records  DeliveryStore
	dedup    *DedupGuard
	client   *Client
	cfg      Config
	newID    IDGenerator
	clock    Clock
	metrics  MetricsRecorder
	logger   *zap.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(registry Registry, records DeliveryStore, markers MarkerStore, client *Client, cfg Config, logger *zap.Logger) *Dispatcher {
	if len(cfg.RetryDelays) == 0 {
		cfg.RetryDelays = DefaultRetryDelays
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if client == nil {
		client = NewClient(DefaultTimeout, DefaultUserAgent)
	}
	d := &Dispatcher{
		registry: registry,
		records:  records,
		dedup:    NewDedupGuard(markers, cfg.Retention, logger),
		client:   client,
		cfg:      cfg,
		newID:    NewEventID,
		logger:   logger,
	}
	d.SetClock(realClock{})
	return d
}

// SetIDGenerator replaces the event id source.
func (d *Dispatcher) SetIDGenerator(fn IDGenerator) {
	d.newID = fn
}

// SetClock replaces the time source used for timestamps and retry delays.
func (d *Dispatcher) SetClock(c Clock) {
	d.clock = c
	d.dedup.now = c.Now
}

// SetMetricsRecorder configures the metrics sink.
func (d *Dispatcher) SetMetricsRecorder(m MetricsRecorder) {
	d.metrics = m
}

// MaxAttempts is the number of attempts made per subscriber.
func (d *Dispatcher) MaxAttempts() int {
	return len(d.cfg.RetryDelays)
}

// Dispatch delivers one event to every active subscription for eventType and
// waits for all deliveries to settle. It returns an error only for an
// unsubscribable event type, a failed subscriber lookup or unencodable data;
// per-subscriber failures are logged.
// Deliveries are not cancelled when ctx is.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType EventType, data any) error {
	if !eventType.Subscribable() {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
	subs, err := d.registry.ListActiveForEvent(ctx, eventType)
	if err != nil {
		d.logger.Error("webhook: list subscribers", zap.String("event_type", eventType.String()), zap.Error(err))
		return fmt.Errorf("list subscribers: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	env, err := newEnvelope(d.newID(), eventType, d.clock.Now(), data)
	if err != nil {
		d.logger.Error("webhook: build envelope", zap.String("event_type", eventType.String()), zap.Error(err))
		return err
	}

	runCtx := context.WithoutCancel(ctx)
	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *WebhookSubscription) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("webhook: delivery panicked",
						zap.String("webhook_id", sub.ID.String()),
						zap.String("event_id", env.ID),
						zap.Any("panic", r),
					)
				}
			}()
			d.deliver(runCtx, env, sub)
		}(sub)
	}
	wg.Wait()
	return nil
}

// SendTest makes a single un-retried delivery of a synthetic test event to sub.
// It bypasses dedup and returns the recorded attempt.
func (d *Dispatcher) SendTest(ctx context.Context, sub *WebhookSubscription) (*DeliveryAttempt, error) {
	env, err := newEnvelope(d.newID(), EventWebhookTest, d.clock.Now(), map[string]string{
		"message":    "This is a test webhook delivery",
		"webhook_id": sub.ID.String(),
	})
	if err != nil {
		return nil, err
	}
	return d.attempt(ctx, env, sub, 1), nil
}
