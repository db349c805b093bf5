package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Requires a reachable Redis; set REDIS_URL to run.
func newTestStore(t *testing.T) *MarkerStore {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	s, err := New(context.Background(), url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMarkerStore_roundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := "evt_" + uuid.NewString() + ":" + uuid.NewString() + ":1"

	if ok, err := s.HasMarker(ctx, key); err != nil || ok {
		t.Fatalf("fresh key: ok=%v err=%v", ok, err)
	}
	if err := s.PutMarker(ctx, key, time.Now().Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if ok, err := s.HasMarker(ctx, key); err != nil || !ok {
		t.Fatalf("after put: ok=%v err=%v", ok, err)
	}
	ttl, err := s.rdb.TTL(ctx, keyPrefix+key).Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("ttl: %v", ttl)
	}
	_ = s.rdb.Del(ctx, keyPrefix+key)
}

func TestMarkerStore_skipsExpiredMarker(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := "evt_" + uuid.NewString() + ":expired:1"

	if err := s.PutMarker(ctx, key, time.Now().Add(-time.Second)); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.HasMarker(ctx, key); ok {
		t.Error("expired marker was written")
	}
}

func TestNew_badURL(t *testing.T) {
	if _, err := New(context.Background(), "://nope"); err == nil {
		t.Fatal("expected parse error")
	}
}
