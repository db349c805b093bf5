package webhooks

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	d := newTestDispatcher(store, store, store, newFakeClock(), time.Second)
	return NewService(store, store, d, zap.NewNop()), store
}

func TestService_SubscribeGeneratesSecret(t *testing.T) {
	svc, _ := newTestService(t)
	org := uuid.New()

	a, err := svc.Subscribe(context.Background(), org, &CreateSubscriptionRequest{URL: "https://a.test", Events: []EventType{EventLeadCreated}})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := svc.Subscribe(context.Background(), org, &CreateSubscriptionRequest{URL: "https://b.test", Events: []EventType{EventLeadCreated}})

	if len(a.Secret) != 64 {
		t.Errorf("secret length: %d", len(a.Secret))
	}
	if a.Secret == b.Secret {
		t.Error("two subscriptions share a secret")
	}
	if !a.Active || a.OrgID != org {
		t.Errorf("unexpected subscription: %+v", a)
	}
}

func TestService_SubscribeRejectsBadEvents(t *testing.T) {
	svc, _ := newTestService(t)
	for _, events := range [][]EventType{nil, {EventWebhookTest}, {EventLeadCreated, "lead.bogus"}} {
		_, err := svc.Subscribe(context.Background(), uuid.New(), &CreateSubscriptionRequest{URL: "https://a.test", Events: events})
		if !errors.Is(err, ErrUnknownEventType) {
			t.Errorf("events %v: expected ErrUnknownEventType, got %v", events, err)
		}
	}
}

func TestService_ownershipEnforced(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner, intruder := uuid.New(), uuid.New()

	sub, _ := svc.Subscribe(ctx, owner, &CreateSubscriptionRequest{URL: "https://a.test", Events: []EventType{EventLeadCreated}})

	off := false
	if _, err := svc.Update(ctx, intruder, sub.ID, &UpdateSubscriptionRequest{Active: &off}); !errors.Is(err, ErrForbidden) {
		t.Errorf("Update: %v", err)
	}
	if err := svc.Unsubscribe(ctx, intruder, sub.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("Unsubscribe: %v", err)
	}
	if _, err := svc.Deliveries(ctx, intruder, sub.ID, 10); !errors.Is(err, ErrForbidden) {
		t.Errorf("Deliveries: %v", err)
	}
	if _, err := svc.SendTest(ctx, intruder, sub.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("SendTest: %v", err)
	}
	if _, err := svc.SendTest(ctx, owner, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("SendTest unknown id: %v", err)
	}
}

func TestService_UpdateTogglesAndReplacesEvents(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	org := uuid.New()
	sub, _ := svc.Subscribe(ctx, org, &CreateSubscriptionRequest{URL: "https://a.test", Events: []EventType{EventLeadCreated}})

	off := false
	got, err := svc.Update(ctx, org, sub.ID, &UpdateSubscriptionRequest{Active: &off, Events: []EventType{EventLeadDeleted}})
	if err != nil {
		t.Fatal(err)
	}
	if got.Active || len(got.Events) != 1 || got.Events[0] != EventLeadDeleted {
		t.Errorf("unexpected update result: %+v", got)
	}
	if subs, _ := store.ListActiveForEvent(ctx, EventLeadDeleted); len(subs) != 0 {
		t.Error("disabled subscription still active")
	}

	if _, err := svc.Update(ctx, org, sub.ID, &UpdateSubscriptionRequest{Events: []EventType{}}); !errors.Is(err, ErrUnknownEventType) {
		t.Errorf("empty event set accepted: %v", err)
	}
}

func TestService_DispatchAndHistory(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	org := uuid.New()
	ep := newEndpoint(t, nil, http.StatusOK)

	sub, _ := svc.Subscribe(ctx, org, &CreateSubscriptionRequest{URL: ep.srv.URL, Events: []EventType{EventLeadAssigned}})
	svc.Dispatch(ctx, EventLeadAssigned, map[string]string{"leadId": "L7", "assignee": "u1"})

	recs, err := svc.Deliveries(ctx, org, sub.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || !recs[0].Success || recs[0].EventType != EventLeadAssigned {
		t.Fatalf("unexpected history: %+v", recs)
	}
	if !Verify([]byte(ep.calls()[0].body), sub.Secret, ep.calls()[0].signature) {
		t.Error("delivery not signed with the subscription secret")
	}
}

func TestService_DispatchSwallowsRegistryErrors(t *testing.T) {
	store := NewMemoryStore()
	d := newTestDispatcher(failingRegistry{}, store, store, newFakeClock(), time.Second)
	svc := NewService(store, store, d, zap.NewNop())
	svc.Dispatch(context.Background(), EventLeadCreated, nil) // must not panic
}
