package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/nursery-kart/internal/domain/cart"
)

// Sentinel errors for order persistence and state changes.
var (
	ErrNotFound       = errors.New("order not found")
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// Status is the lifecycle state of an order.
type Status string

// Order statuses. Online orders go created, awaiting_payment, paid,
// delivered. Cash-on-delivery orders go created, confirmed, delivered.
const (
	StatusCreated         Status = "created"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusPaid            Status = "paid"
	StatusConfirmed       Status = "confirmed"
	StatusDelivered       Status = "delivered"
	StatusCancelled       Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusCreated:         {StatusAwaitingPayment, StatusConfirmed, StatusCancelled},
	StatusAwaitingPayment: {StatusPaid, StatusCancelled},
	StatusPaid:            {StatusDelivered},
	StatusConfirmed:       {StatusDelivered, StatusCancelled},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusAwaitingPayment, StatusPaid, StatusConfirmed, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether an order in s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Pending reports whether the order still awaits payment or delivery.
func (s Status) Pending() bool {
	switch s {
	case StatusCreated, StatusAwaitingPayment, StatusConfirmed:
		return true
	}
	return false
}

// InvalidTransitionError is returned for a status change the lifecycle forbids.
type InvalidTransitionError struct {
	From, To Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentOnline PaymentMethod = "online"
	PaymentCOD    PaymentMethod = "cod"
)

// Order is a placed order. Items are a snapshot taken at submission and never
// change afterwards.
type Order struct {
	ID                string
	UserID            string
	Items             []cart.Item
	TotalAmount       decimal.Decimal
	Status            Status
	PaymentMethod     PaymentMethod
	AddressID         string
	ProviderOrderID   string
	ProviderPaymentID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Range selects orders by age for the admin listing.
type Range string

const (
	RangeMonth   Range = "1m"
	RangeQuarter Range = "3m"
	RangeYear    Range = "1y"
	RangeAll     Range = "all"
)

// ParseRange parses an admin range, defaulting to one month when empty.
func ParseRange(s string) (Range, error) {
	switch r := Range(s); r {
	case "":
		return RangeMonth, nil
	case RangeMonth, RangeQuarter, RangeYear, RangeAll:
		return r, nil
	}
	return "", errors.Errorf("unknown range %q", s)
}

// Since returns the earliest creation time the range covers, or the zero time
// for RangeAll.
func (r Range) Since(now time.Time) time.Time {
	switch r {
	case RangeMonth:
		return now.AddDate(0, -1, 0)
	case RangeQuarter:
		return now.AddDate(0, -3, 0)
	case RangeYear:
		return now.AddDate(-1, 0, 0)
	}
	return time.Time{}
}

// StatusUpdate moves an order from one status to another, optionally
// recording the provider payment id.
type StatusUpdate struct {
	From              Status
	To                Status
	ProviderPaymentID string
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// ListSince returns all orders created at or after since, newest first.
	// A zero since lists every order.
	ListSince(ctx context.Context, since time.Time, status Status) ([]Order, error)
	// UpdateStatus applies u only when the stored status equals u.From and
	// returns ErrStatusConflict otherwise.
	UpdateStatus(ctx context.Context, id string, u StatusUpdate) (*Order, error)
}
