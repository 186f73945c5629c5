package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// EventType names an order lifecycle event.
type EventType string

const (
	EventPlaced        EventType = "order.placed"
	EventStatusChanged EventType = "order.status_changed"
)

// Event is emitted after an order was created or changed status.
type Event struct {
	Type     EventType
	Order    Order
	Previous Status
	At       time.Time
}

// Publisher delivers order events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Service owns order persistence and the status lifecycle.
type Service struct {
	orders    Repository
	publisher Publisher
	now       func() time.Time
}

// NewService creates an order Service.
func NewService(orders Repository, publisher Publisher) *Service {
	return &Service{
		orders:    orders,
		publisher: publisher,
		now:       time.Now,
	}
}

// Place persists a new order and announces it.
func (s *Service) Place(ctx context.Context, o *Order) error {
	now := s.now()
	o.CreatedAt, o.UpdatedAt = now, now
	if err := s.orders.Create(ctx, o); err != nil {
		return errors.Wrap(err, "create order")
	}
	s.publish(ctx, Event{Type: EventPlaced, Order: *o, At: now})
	return nil
}

// Get returns one order.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// ListForUser returns a customer's order history, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	list, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list user orders")
	}
	return list, nil
}

// ListForAdmin returns orders within r, optionally filtered by status.
func (s *Service) ListForAdmin(ctx context.Context, r Range, status Status) ([]Order, error) {
	list, err := s.orders.ListSince(ctx, r.Since(s.now()), status)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return list, nil
}

// Transition moves order id to the next status after checking the lifecycle.
// paymentID is stored when non-empty.
func (s *Service) Transition(ctx context.Context, id string, next Status, paymentID string) (*Order, error) {
	if !next.Valid() {
		return nil, errors.Errorf("unknown status %q", next)
	}
	cur, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if !cur.Status.CanTransition(next) {
		return nil, &InvalidTransitionError{From: cur.Status, To: next}
	}

	updated, err := s.orders.UpdateStatus(ctx, id, StatusUpdate{
		From:              cur.Status,
		To:                next,
		ProviderPaymentID: paymentID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "update status")
	}
	s.publish(ctx, Event{Type: EventStatusChanged, Order: *updated, Previous: cur.Status, At: s.now()})
	return updated, nil
}

// publish never fails the caller: the order change is already committed.
func (s *Service) publish(ctx context.Context, e Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		zctx.From(ctx).Warn("Publish order event",
			zap.String("order_id", e.Order.ID),
			zap.String("event", string(e.Type)),
			zap.Error(err),
		)
	}
}
