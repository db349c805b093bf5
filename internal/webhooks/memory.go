package webhooks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory, thread-safe implementation of the subscription
// registry, the delivery record store and the dedup marker store. It is
// useful for tests and single-process deployments without Postgres.
type MemoryStore struct {
	mu         sync.RWMutex
	subs       map[uuid.UUID]*WebhookSubscription
	deliveries []*DeliveryAttempt
	markers    map[string]time.Time
	now        func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs:    make(map[uuid.UUID]*WebhookSubscription),
		markers: make(map[string]time.Time),
		now:     time.Now,
	}
}

func cloneSub(s *WebhookSubscription) *WebhookSubscription {
	c := *s
	c.Events = append([]EventType(nil), s.Events...)
	return &c
}

// Create implements SubscriptionStore.
func (m *MemoryStore) Create(_ context.Context, sub *WebhookSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	sub.ID = uuid.New()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	sub.Active = true
	m.subs[sub.ID] = cloneSub(sub)
	return nil
}

// Get implements Registry.
func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*WebhookSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSub(s), nil
}

// ListByOrg implements SubscriptionStore.
func (m *MemoryStore) ListByOrg(_ context.Context, orgID uuid.UUID) ([]*WebhookSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*WebhookSubscription
	for _, s := range m.subs {
		if s.OrgID == orgID {
			out = append(out, cloneSub(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ListActiveForEvent implements Registry by filtering every subscription in-process.
func (m *MemoryStore) ListActiveForEvent(_ context.Context, eventType EventType) ([]*WebhookSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*WebhookSubscription
	for _, s := range m.subs {
		if s.Active && s.Subscribes(eventType) {
			out = append(out, cloneSub(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Update implements SubscriptionStore.
func (m *MemoryStore) Update(_ context.Context, sub *WebhookSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[sub.ID]; !ok {
		return ErrNotFound
	}
	sub.UpdatedAt = m.now().UTC()
	m.subs[sub.ID] = cloneSub(sub)
	return nil
}

// Delete implements SubscriptionStore.
func (m *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return ErrNotFound
	}
	delete(m.subs, id)
	return nil
}

// PutDelivery implements DeliveryStore.
func (m *MemoryStore) PutDelivery(_ context.Context, d *DeliveryAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *d
	m.deliveries = append(m.deliveries, &c)
	return nil
}

// ListDeliveries implements DeliveryStore, newest first.
func (m *MemoryStore) ListDeliveries(_ context.Context, webhookID uuid.UUID, limit int) ([]*DeliveryAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	var out []*DeliveryAttempt
	for i := len(m.deliveries) - 1; i >= 0; i-- {
		d := m.deliveries[i]
		if d.WebhookID != webhookID || now.After(d.ExpiresAt) {
			continue
		}
		c := *d
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// HasMarker implements MarkerStore.
func (m *MemoryStore) HasMarker(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exp, ok := m.markers[key]
	return ok && m.now().Before(exp), nil
}

// PutMarker implements MarkerStore.
func (m *MemoryStore) PutMarker(_ context.Context, key string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers[key] = expiresAt
	return nil
}

// DeleteExpired drops expired delivery records and markers.
func (m *MemoryStore) DeleteExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var n int64
	kept := m.deliveries[:0]
	for _, d := range m.deliveries {
		if now.After(d.ExpiresAt) {
			n++
			continue
		}
		kept = append(kept, d)
	}
	m.deliveries = kept
	for k, exp := range m.markers {
		if !now.Before(exp) {
			delete(m.markers, k)
			n++
		}
	}
	return n, nil
}
