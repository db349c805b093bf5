package webhooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryStore_subscriptionCRUD(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	org := uuid.New()

	sub := &WebhookSubscription{OrgID: org, URL: "https://a.test", Events: []EventType{EventLeadCreated}, Secret: "s"}
	if err := m.Create(ctx, sub); err != nil {
		t.Fatal(err)
	}
	if sub.ID == uuid.Nil || !sub.Active || sub.CreatedAt.IsZero() {
		t.Fatalf("Create did not populate fields: %+v", sub)
	}

	// mutating the caller's copy must not leak into the store
	sub.Events[0] = EventLeadDeleted
	got, err := m.Get(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Events[0] != EventLeadCreated || got.Secret != "s" {
		t.Errorf("stored subscription changed: %+v", got)
	}

	got.Active = false
	if err := m.Update(ctx, got); err != nil {
		t.Fatal(err)
	}
	if subs, _ := m.ListActiveForEvent(ctx, EventLeadCreated); len(subs) != 0 {
		t.Error("inactive subscription listed as active")
	}
	if subs, _ := m.ListByOrg(ctx, org); len(subs) != 1 {
		t.Errorf("ListByOrg: got %d", len(subs))
	}

	if err := m.Delete(ctx, sub.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(ctx, sub.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: %v", err)
	}
	if err := m.Delete(ctx, sub.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete: %v", err)
	}
	if err := m.Update(ctx, sub); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update of deleted: %v", err)
	}
}

func TestMemoryStore_deliveriesNewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	hook, other := uuid.New(), uuid.New()
	now := time.Now()

	for i := 1; i <= 5; i++ {
		_ = m.PutDelivery(ctx, &DeliveryAttempt{WebhookID: hook, Attempt: i, ExpiresAt: now.Add(time.Hour)})
	}
	_ = m.PutDelivery(ctx, &DeliveryAttempt{WebhookID: other, Attempt: 1, ExpiresAt: now.Add(time.Hour)})
	_ = m.PutDelivery(ctx, &DeliveryAttempt{WebhookID: hook, Attempt: 9, ExpiresAt: now.Add(-time.Minute)})

	got, _ := m.ListDeliveries(ctx, hook, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3, got %d", len(got))
	}
	for i, want := range []int{5, 4, 3} {
		if got[i].Attempt != want {
			t.Errorf("position %d: attempt %d, want %d", i, got[i].Attempt, want)
		}
	}
	if all, _ := m.ListDeliveries(ctx, hook, 0); len(all) != 5 {
		t.Errorf("expired record listed: got %d", len(all))
	}
}

func TestMemoryStore_markersExpire(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	now := time.Now()
	m.now = func() time.Time { return now }

	_ = m.PutMarker(ctx, "live", now.Add(time.Minute))
	_ = m.PutMarker(ctx, "stale", now.Add(-time.Minute))

	if ok, _ := m.HasMarker(ctx, "live"); !ok {
		t.Error("live marker not found")
	}
	if ok, _ := m.HasMarker(ctx, "stale"); ok {
		t.Error("expired marker reported present")
	}
	if ok, _ := m.HasMarker(ctx, "missing"); ok {
		t.Error("missing marker reported present")
	}
}

func TestMemoryStore_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	now := time.Now()
	m.now = func() time.Time { return now }
	hook := uuid.New()

	_ = m.PutDelivery(ctx, &DeliveryAttempt{WebhookID: hook, ExpiresAt: now.Add(-time.Second)})
	_ = m.PutDelivery(ctx, &DeliveryAttempt{WebhookID: hook, ExpiresAt: now.Add(time.Hour)})
	_ = m.PutMarker(ctx, "old", now.Add(-time.Second))
	_ = m.PutMarker(ctx, "new", now.Add(time.Hour))

	n, err := m.DeleteExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("swept %d, want 2", n)
	}
	if recs, _ := m.ListDeliveries(ctx, hook, 0); len(recs) != 1 {
		t.Errorf("remaining deliveries: %d", len(recs))
	}
	if ok, _ := m.HasMarker(ctx, "new"); !ok {
		t.Error("unexpired marker swept")
	}
}
