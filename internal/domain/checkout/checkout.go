// Package checkout drives order submission from the storefront: it freezes
// the cart into a snapshot, and submits the snapshot's total on both the
// online and the cash-on-delivery path.
package checkout

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/nursery-kart/internal/domain/address"
	"github.com/xenking/nursery-kart/internal/domain/cart"
	"github.com/xenking/nursery-kart/internal/domain/order"
)

// Sentinel errors for checkout.
var (
	ErrEmptyCart = errors.New("cart is empty")
	ErrNoAddress = errors.New("no delivery address on profile")
)

// TotalDriftError means the backend stored a total other than the one the
// shopper was shown.
type TotalDriftError struct {
	Shown  decimal.Decimal
	Stored decimal.Decimal
}

func (e *TotalDriftError) Error() string {
	return fmt.Sprintf("order total %s differs from displayed total %s",
		e.Stored.StringFixed(2), e.Shown.StringFixed(2))
}

// Snapshot is the cart as it was displayed at checkout. Its total is
// computed once and reused for every submission.
type Snapshot struct {
	UserID string
	Items  []cart.Item
	Total  decimal.Decimal
}

// NewSnapshot freezes items and computes their total.
func NewSnapshot(userID string, items []cart.Item) Snapshot {
	frozen := slices.Clone(items)
	for i := range frozen {
		frozen[i].Options = maps.Clone(frozen[i].Options)
	}
	return Snapshot{
		UserID: userID,
		Items:  frozen,
		Total:  cart.ComputeTotal(frozen),
	}
}

// AmountMinor is the snapshot total in the currency's minor unit.
func (s Snapshot) AmountMinor() int64 {
	return cart.MinorUnits(s.Total)
}

// Submission is one checkout call to the backend.
type Submission struct {
	UserID    string
	AddressID string
	Items     []cart.Item
	Total     decimal.Decimal
}

// PaymentOrder is the backend's answer to an online checkout.
type PaymentOrder struct {
	OrderID         string
	ProviderOrderID string
	AmountMinor     int64
	Currency        string
	KeyID           string
}

// ProviderCallback is what the provider's checkout widget reports on success.
type ProviderCallback struct {
	PaymentID       string
	ProviderOrderID string
	Signature       string
}

// Gateway is the backend payment API.
type Gateway interface {
	CreatePaymentOrder(ctx context.Context, s Submission) (*PaymentOrder, error)
	VerifyPayment(ctx context.Context, userID, orderID string, cb ProviderCallback) (*order.Order, error)
	PlaceCODOrder(ctx context.Context, s Submission) (*order.Order, error)
}

// Service runs the storefront side of checkout.
type Service struct {
	gw Gateway
}

// NewService creates a checkout Service.
func NewService(gw Gateway) *Service {
	return &Service{gw: gw}
}

// PendingPayment is an online checkout waiting for the provider callback.
type PendingPayment struct {
	Snapshot Snapshot
	Order    PaymentOrder
}

// PlaceCOD submits the snapshot as a cash-on-delivery order.
func (s *Service) PlaceCOD(ctx context.Context, snap Snapshot, addressID string) (*order.Order, error) {
	sub, err := submission(snap, addressID)
	if err != nil {
		return nil, err
	}
	o, err := s.gw.PlaceCODOrder(ctx, sub)
	if err != nil {
		return nil, errors.Wrap(err, "place cod order")
	}
	if err := checkTotal(snap, o); err != nil {
		return nil, err
	}
	return o, nil
}

// StartOnline asks the backend for a provider order sized to the snapshot
// total. The result carries everything the provider widget needs.
func (s *Service) StartOnline(ctx context.Context, snap Snapshot, addressID string) (*PendingPayment, error) {
	sub, err := submission(snap, addressID)
	if err != nil {
		return nil, err
	}
	po, err := s.gw.CreatePaymentOrder(ctx, sub)
	if err != nil {
		return nil, errors.Wrap(err, "create payment order")
	}
	if po.AmountMinor != snap.AmountMinor() {
		return nil, &TotalDriftError{Shown: snap.Total, Stored: decimal.New(po.AmountMinor, -2)}
	}
	return &PendingPayment{Snapshot: snap, Order: *po}, nil
}

// ConfirmOnline forwards the provider callback for server-side verification.
// The order is paid only when the backend accepted the signature.
func (s *Service) ConfirmOnline(ctx context.Context, p *PendingPayment, cb ProviderCallback) (*order.Order, error) {
	if cb.ProviderOrderID == "" {
		cb.ProviderOrderID = p.Order.ProviderOrderID
	}
	o, err := s.gw.VerifyPayment(ctx, p.Snapshot.UserID, p.Order.OrderID, cb)
	if err != nil {
		return nil, errors.Wrap(err, "verify payment")
	}
	if err := checkTotal(p.Snapshot, o); err != nil {
		return nil, err
	}
	return o, nil
}

// SelectAddress picks the address with id, or the first saved one when id is
// empty.
func SelectAddress(addrs []address.Address, id string) (address.Address, error) {
	if len(addrs) == 0 {
		return address.Address{}, ErrNoAddress
	}
	if id == "" {
		return addrs[0], nil
	}
	for _, a := range addrs {
		if a.ID == id {
			return a, nil
		}
	}
	return address.Address{}, address.ErrNotFound
}

func submission(snap Snapshot, addressID string) (Submission, error) {
	if snap.UserID == "" {
		return Submission{}, cart.ErrNoIdentity
	}
	if len(snap.Items) == 0 {
		return Submission{}, ErrEmptyCart
	}
	return Submission{
		UserID:    snap.UserID,
		AddressID: addressID,
		Items:     snap.Items,
		Total:     snap.Total,
	}, nil
}

func checkTotal(snap Snapshot, o *order.Order) error {
	if !o.TotalAmount.Equal(snap.Total) {
		return &TotalDriftError{Shown: snap.Total, Stored: o.TotalAmount}
	}
	return nil
}
