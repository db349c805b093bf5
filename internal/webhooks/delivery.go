package webhooks

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome is the terminal state of one subscriber's delivery sequence.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota + 1
	OutcomeExhausted
	// OutcomeSkipped means every attempt number had already been made.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Stored field bounds.
const (
	maxRequestBodyStored  = 2000
	maxResponseBodyStored = 500
	maxErrorStored        = 500
)

// deliver runs the attempt sequence for one subscriber. Attempts are strictly
// sequential; an attempt number that already has a dedup marker is skipped
// without delay.
func (d *Dispatcher) deliver(ctx context.Context, env *Envelope, sub *WebhookSubscription) Outcome {
	sent := false
	for attempt := 1; attempt <= d.MaxAttempts(); attempt++ {
		key := DedupKey(env.ID, sub.ID, attempt)
		if d.dedup.IsDuplicate(ctx, key) {
			d.logger.Info("webhook: attempt already made, skipping",
				zap.String("webhook_id", sub.ID.String()),
				zap.String("event_id", env.ID),
				zap.Int("attempt", attempt),
			)
			if d.metrics != nil {
				d.metrics.DuplicateSkipped(env.Type)
			}
			continue
		}

		if err := d.clock.Sleep(ctx, d.cfg.RetryDelays[attempt-1]); err != nil {
			d.logger.Warn("webhook: retry delay interrupted", zap.Error(err))
			return OutcomeExhausted
		}

		rec := d.attempt(ctx, env, sub, attempt)
		d.dedup.Record(ctx, key)
		sent = true

		if rec.Success {
			d.logger.Info("webhook: delivered",
				zap.String("webhook_id", sub.ID.String()),
				zap.String("event_id", env.ID),
				zap.String("event_type", env.Type.String()),
				zap.Int("attempt", attempt),
				zap.Int("status_code", rec.StatusCode),
			)
			return OutcomeSucceeded
		}

		d.logger.Warn("webhook: delivery failed",
			zap.String("webhook_id", sub.ID.String()),
			zap.String("url", sub.URL),
			zap.String("event_id", env.ID),
			zap.Int("attempt", attempt),
			zap.Int("status_code", rec.StatusCode),
			zap.String("error", rec.ErrorMessage),
		)
	}

	if !sent {
		return OutcomeSkipped
	}
	d.logger.Error("webhook: delivery exhausted",
		zap.String("webhook_id", sub.ID.String()),
		zap.String("url", sub.URL),
		zap.String("event_id", env.ID),
		zap.String("event_type", env.Type.String()),
		zap.Int("attempts", d.MaxAttempts()),
	)
	if d.metrics != nil {
		d.metrics.DeliveryExhausted(env.Type)
	}
	return OutcomeExhausted
}

// attempt signs and sends env once and persists the resulting record.
// Persistence errors are logged only.
func (d *Dispatcher) attempt(ctx context.Context, env *Envelope, sub *WebhookSubscription, n int) *DeliveryAttempt {
	body := env.Body()
	headers := map[string]string{
		HeaderSignature: Sign(body, sub.Secret),
		HeaderEventType: env.Type.String(),
		HeaderEventID:   env.ID,
	}

	start := time.Now()
	resp, err := d.client.Post(ctx, sub.URL, body, headers)
	elapsed := time.Since(start)
	now := d.clock.Now()

	rec := &DeliveryAttempt{
		ID:          uuid.New(),
		WebhookID:   sub.ID,
		EventID:     env.ID,
		EventType:   env.Type,
		URL:         sub.URL,
		RequestBody: truncate(string(body), maxRequestBodyStored),
		Attempt:     n,
		DurationMs:  elapsed.Milliseconds(),
		DeliveredAt: now,
		ExpiresAt:   now.Add(d.cfg.Retention),
	}
	if err != nil {
		rec.ErrorMessage = truncate(err.Error(), maxErrorStored)
	} else {
		rec.StatusCode = resp.StatusCode
		rec.ResponseBody = truncate(resp.Body, maxResponseBodyStored)
		rec.Success = resp.Success()
	}

	if err := d.records.PutDelivery(ctx, rec); err != nil {
		d.logger.Warn("webhook: record delivery", zap.String("webhook_id", sub.ID.String()), zap.Error(err))
	}
	if d.metrics != nil {
		d.metrics.AttemptCompleted(env.Type, rec.Success, elapsed)
	}
	return rec
}

// truncate makes s storable as text: invalid UTF-8 and NUL bytes are dropped
// and the result is cut to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(strings.ReplaceAll(s, "\x00", ""), "")
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
