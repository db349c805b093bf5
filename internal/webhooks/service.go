package webhooks

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrForbidden is returned when an organization touches a subscription it does not own.
var ErrForbidden = errors.New("subscription belongs to another organization")

// SubscriptionStore is the registry plus the CRUD operations behind the admin API.
type SubscriptionStore interface {
	Registry
	Create(ctx context.Context, sub *WebhookSubscription) error
	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*WebhookSubscription, error)
	Update(ctx context.Context, sub *WebhookSubscription) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Service manages webhook subscriptions and exposes dispatch to callers.
type Service struct {
	subs       SubscriptionStore
	records    DeliveryStore
	dispatcher *Dispatcher
	logger     *zap.Logger
}

// NewService creates a new webhook Service.
func NewService(subs SubscriptionStore, records DeliveryStore, dispatcher *Dispatcher, logger *zap.Logger) *Service {
	return &Service{
		subs:       subs,
		records:    records,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func validateEvents(events []EventType) error {
	if len(events) == 0 {
		return fmt.Errorf("%w: at least one event type is required", ErrUnknownEventType)
	}
	for _, e := range events {
		if !e.Subscribable() {
			return fmt.Errorf("%w: %q", ErrUnknownEventType, e)
		}
	}
	return nil
}

// Subscribe creates a new webhook subscription with a generated HMAC secret.
func (s *Service) Subscribe(ctx context.Context, orgID uuid.UUID, req *CreateSubscriptionRequest) (*WebhookSubscription, error) {
	if err := validateEvents(req.Events); err != nil {
		return nil, err
	}
	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	sub := &WebhookSubscription{
		OrgID:  orgID,
		URL:    req.URL,
		Events: req.Events,
		Secret: secret,
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return sub, nil
}

// owned loads a subscription and checks that orgID owns it.
func (s *Service) owned(ctx context.Context, orgID, subID uuid.UUID) (*WebhookSubscription, error) {
	sub, err := s.subs.Get(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub.OrgID != orgID {
		return nil, ErrForbidden
	}
	return sub, nil
}

// Update toggles a subscription's active flag or replaces its event set.
func (s *Service) Update(ctx context.Context, orgID, subID uuid.UUID, req *UpdateSubscriptionRequest) (*WebhookSubscription, error) {
	sub, err := s.owned(ctx, orgID, subID)
	if err != nil {
		return nil, err
	}
	if req.Events != nil {
		if err := validateEvents(req.Events); err != nil {
			return nil, err
		}
		sub.Events = req.Events
	}
	if req.Active != nil {
		sub.Active = *req.Active
	}
	if err := s.subs.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}
	return sub, nil
}

// Unsubscribe deletes a subscription, checking ownership.
func (s *Service) Unsubscribe(ctx context.Context, orgID, subID uuid.UUID) error {
	if _, err := s.owned(ctx, orgID, subID); err != nil {
		return err
	}
	return s.subs.Delete(ctx, subID)
}

// ListByOrg returns all subscriptions for an organization.
func (s *Service) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*WebhookSubscription, error) {
	return s.subs.ListByOrg(ctx, orgID)
}

// Deliveries returns the recent delivery history of one subscription.
func (s *Service) Deliveries(ctx context.Context, orgID, subID uuid.UUID, limit int) ([]*DeliveryAttempt, error) {
	if _, err := s.owned(ctx, orgID, subID); err != nil {
		return nil, err
	}
	return s.records.ListDeliveries(ctx, subID, limit)
}

// SendTest performs one connectivity check delivery against a subscription.
func (s *Service) SendTest(ctx context.Context, orgID, subID uuid.UUID) (*DeliveryAttempt, error) {
	sub, err := s.owned(ctx, orgID, subID)
	if err != nil {
		return nil, err
	}
	return s.dispatcher.SendTest(ctx, sub)
}

// Dispatch fans an event out to its subscribers. It never returns an error;
// resolution failures are logged by the dispatcher.
func (s *Service) Dispatch(ctx context.Context, eventType EventType, data any) {
	_ = s.dispatcher.Dispatch(ctx, eventType, data)
}

// generateSecret creates a random 32-byte hex-encoded secret.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
