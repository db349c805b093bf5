package webhooks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MarkerStore persists dedup markers with an expiry.
type MarkerStore interface {
	HasMarker(ctx context.Context, key string) (bool, error)
	PutMarker(ctx context.Context, key string, expiresAt time.Time) error
}

// DedupKey identifies one numbered attempt of one event to one webhook.
func DedupKey(eventID string, webhookID uuid.UUID, attempt int) string {
	return fmt.Sprintf("%s:%s:%d", eventID, webhookID, attempt)
}

// DedupGuard suppresses re-sending an attempt that was already made.
// Lookups fail open and writes are best-effort: a storage outage may cause a
// duplicate delivery but never blocks one.
type DedupGuard struct {
	store     MarkerStore
	retention time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewDedupGuard creates a DedupGuard whose markers live for retention.
func NewDedupGuard(store MarkerStore, retention time.Duration, logger *zap.Logger) *DedupGuard {
	return &DedupGuard{
		store:     store,
		retention: retention,
		now:       time.Now,
		logger:    logger,
	}
}

// IsDuplicate reports whether key has already been attempted.
func (g *DedupGuard) IsDuplicate(ctx context.Context, key string) bool {
	found, err := g.store.HasMarker(ctx, key)
	if err != nil {
		g.logger.Warn("webhook: dedup lookup failed, proceeding", zap.String("key", key), zap.Error(err))
		return false
	}
	return found
}

// Record marks key as attempted.
func (g *DedupGuard) Record(ctx context.Context, key string) {
	if err := g.store.PutMarker(ctx, key, g.now().Add(g.retention)); err != nil {
		g.logger.Warn("webhook: dedup record failed", zap.String("key", key), zap.Error(err))
	}
}
