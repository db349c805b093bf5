//go:build integration

package webhooks_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leadforge/leadhooks/internal/webhooks"
	"go.uber.org/zap"
)

func setupPostgres(t *testing.T) *webhooks.PostgresStore {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect to postgres: %v", err)
	}
	t.Cleanup(db.Close)
	if err := db.Ping(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join("..", "..", "migrations", "*.up.sql"))
	sort.Strings(files)
	for _, f := range files {
		sql, err := os.ReadFile(f)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := db.Exec(ctx, string(sql)); err != nil {
			t.Fatalf("apply %s: %v", f, err)
		}
	}

	// Clean tables for deterministic tests
	for _, table := range []string{"webhook_deliveries", "webhook_dedup_markers", "webhook_subscriptions"} {
		if _, err := db.Exec(ctx, "DELETE FROM "+table); err != nil {
			t.Fatal(err)
		}
	}
	return webhooks.NewPostgresStore(db)
}

func TestPostgresStore_subscriptions(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	org := uuid.New()

	sub := &webhooks.WebhookSubscription{
		OrgID:  org,
		URL:    "https://crm.example.com/hooks",
		Events: []webhooks.EventType{webhooks.EventLeadCreated, webhooks.EventLeadAssigned},
		Secret: "s3cret",
	}
	if err := store.Create(ctx, sub); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Secret != "s3cret" || len(got.Events) != 2 || !got.Active {
		t.Errorf("round trip: %+v", got)
	}

	active, _ := store.ListActiveForEvent(ctx, webhooks.EventLeadAssigned)
	if len(active) != 1 || active[0].ID != sub.ID {
		t.Errorf("ListActiveForEvent: %+v", active)
	}
	if none, _ := store.ListActiveForEvent(ctx, webhooks.EventLeadDeleted); len(none) != 0 {
		t.Errorf("unsubscribed event matched: %+v", none)
	}

	got.Active = false
	if err := store.Update(ctx, got); err != nil {
		t.Fatal(err)
	}
	if active, _ := store.ListActiveForEvent(ctx, webhooks.EventLeadCreated); len(active) != 0 {
		t.Error("inactive subscription listed")
	}

	if err := store.Delete(ctx, sub.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, sub.ID); !errors.Is(err, webhooks.ErrNotFound) {
		t.Errorf("Get after delete: %v", err)
	}
}

func TestPostgresStore_markersAndSweep(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	_ = store.PutMarker(ctx, "live", time.Now().Add(time.Hour))
	_ = store.PutMarker(ctx, "stale", time.Now().Add(-time.Hour))

	if ok, err := store.HasMarker(ctx, "live"); err != nil || !ok {
		t.Errorf("live marker: %v %v", ok, err)
	}
	if ok, _ := store.HasMarker(ctx, "stale"); ok {
		t.Error("stale marker reported present")
	}

	// refreshing an expired marker makes it live again
	_ = store.PutMarker(ctx, "stale", time.Now().Add(time.Hour))
	if ok, _ := store.HasMarker(ctx, "stale"); !ok {
		t.Error("refreshed marker not present")
	}

	hook := uuid.New()
	_ = store.PutDelivery(ctx, &webhooks.DeliveryAttempt{
		ID: uuid.New(), WebhookID: hook, EventID: "evt", EventType: webhooks.EventLeadCreated,
		URL: "https://x", Attempt: 1, DeliveredAt: time.Now().Add(-2 * time.Hour), ExpiresAt: time.Now().Add(-time.Hour),
	})
	_ = store.PutMarker(ctx, "gone", time.Now().Add(-time.Minute))

	n, err := store.DeleteExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("swept %d, want 2", n)
	}
}

func TestPostgresStore_dispatchEndToEnd(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub := &webhooks.WebhookSubscription{OrgID: uuid.New(), URL: srv.URL, Events: []webhooks.EventType{webhooks.EventLeadUpdated}, Secret: "k"}
	if err := store.Create(ctx, sub); err != nil {
		t.Fatal(err)
	}

	d := webhooks.NewDispatcher(store, store, store, webhooks.NewClient(time.Second, ""),
		webhooks.Config{RetryDelays: []time.Duration{0, 10 * time.Millisecond, 10 * time.Millisecond}}, zap.NewNop())
	if err := d.Dispatch(ctx, webhooks.EventLeadUpdated, map[string]string{"leadId": "L1"}); err != nil {
		t.Fatal(err)
	}

	recs, err := store.ListDeliveries(ctx, sub.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || !recs[0].Success || recs[0].Attempt != 2 || recs[1].StatusCode != http.StatusBadGateway {
		t.Errorf("unexpected history: %+v", recs)
	}
}
