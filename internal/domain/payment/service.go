// Package payment turns a checked-out cart into an order, either paid online
// through the payment provider or placed as cash on delivery.
package payment

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/nursery-kart/internal/domain/address"
	"github.com/xenking/nursery-kart/internal/domain/cart"
	"github.com/xenking/nursery-kart/internal/domain/order"
	"github.com/xenking/nursery-kart/internal/domain/product"
)

// Sentinel errors for checkout.
var (
	ErrEmptyItems       = errors.New("items required")
	ErrAddressRequired  = errors.New("delivery address required")
	ErrInvalidSignature = errors.New("payment signature mismatch")
)

// TotalMismatchError is returned when the submitted total differs from the
// total of the same items at catalog prices.
type TotalMismatchError struct {
	Submitted decimal.Decimal
	Computed  decimal.Decimal
}

func (e *TotalMismatchError) Error() string {
	return fmt.Sprintf("submitted total %s does not match computed total %s",
		e.Submitted.StringFixed(2), e.Computed.StringFixed(2))
}

// ProviderOrder is the payment provider's handle for one payment attempt.
type ProviderOrder struct {
	ID          string
	AmountMinor int64
	Currency    string
}

// Provider is the online payment provider.
type Provider interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*ProviderOrder, error)
	VerifySignature(providerOrderID, paymentID, signature string) bool
	KeyID() string
}

// CartClearer empties a user's server cart once an order is placed.
type CartClearer interface {
	Clear(ctx context.Context, userID string) error
}

// CheckoutRequest is what the storefront submits at checkout.
type CheckoutRequest struct {
	UserID    string
	AddressID string
	// Items carry product, quantity and options; prices are re-read from
	// the catalog.
	Items []cart.Item
	// Total is the amount the shopper was shown.
	Total decimal.Decimal
}

// OnlineOrder is an order awaiting payment together with what the client
// needs to open the provider checkout.
type OnlineOrder struct {
	Order         *order.Order
	ProviderOrder ProviderOrder
	KeyID         string
}

// VerifyRequest is the provider callback payload forwarded by the client.
type VerifyRequest struct {
	UserID          string
	OrderID         string
	ProviderOrderID string
	PaymentID       string
	Signature       string
}

// Service implements checkout on the server.
type Service struct {
	products  product.Repository
	addresses address.Repository
	orders    *order.Service
	carts     CartClearer
	provider  Provider
	currency  string
	newID     func() string
}

// NewService creates a payment Service charging in currency (e.g. "INR").
func NewService(
	products product.Repository,
	addresses address.Repository,
	orders *order.Service,
	carts CartClearer,
	provider Provider,
	currency string,
) *Service {
	return &Service{
		products:  products,
		addresses: addresses,
		orders:    orders,
		carts:     carts,
		provider:  provider,
		currency:  currency,
		newID:     func() string { return uuid.New().String() },
	}
}

// CreateOnlineOrder validates the checkout, opens a provider order for the
// total in minor units and stores the order as awaiting payment.
func (s *Service) CreateOnlineOrder(ctx context.Context, req CheckoutRequest) (*OnlineOrder, error) {
	o, err := s.prepare(ctx, req, order.PaymentOnline)
	if err != nil {
		return nil, err
	}

	po, err := s.provider.CreateOrder(ctx, cart.MinorUnits(o.TotalAmount), s.currency, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "create provider order")
	}
	o.ProviderOrderID = po.ID
	o.Status = order.StatusAwaitingPayment

	if err := s.orders.Place(ctx, o); err != nil {
		return nil, err
	}
	return &OnlineOrder{Order: o, ProviderOrder: *po, KeyID: s.provider.KeyID()}, nil
}

// Verify checks the provider signature and marks the order paid. A failed
// check leaves the order awaiting payment. Replaying a successful
// verification returns the paid order.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (*order.Order, error) {
	o, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != req.UserID {
		return nil, order.ErrNotFound
	}
	if o.Status == order.StatusPaid && o.ProviderPaymentID == req.PaymentID {
		return o, nil
	}
	if o.ProviderOrderID != req.ProviderOrderID ||
		!s.provider.VerifySignature(req.ProviderOrderID, req.PaymentID, req.Signature) {
		return nil, ErrInvalidSignature
	}

	paid, err := s.orders.Transition(ctx, o.ID, order.StatusPaid, req.PaymentID)
	if err != nil {
		return nil, err
	}
	s.clearCart(ctx, paid.UserID)
	return paid, nil
}

// PlaceCOD stores a confirmed cash-on-delivery order. The provider is not
// involved.
func (s *Service) PlaceCOD(ctx context.Context, req CheckoutRequest) (*order.Order, error) {
	o, err := s.prepare(ctx, req, order.PaymentCOD)
	if err != nil {
		return nil, err
	}
	o.Status = order.StatusConfirmed

	if err := s.orders.Place(ctx, o); err != nil {
		return nil, err
	}
	s.clearCart(ctx, o.UserID)
	return o, nil
}

// prepare validates the request and builds a created order priced from the
// catalog.
func (s *Service) prepare(ctx context.Context, req CheckoutRequest, method order.PaymentMethod) (*order.Order, error) {
	if req.UserID == "" {
		return nil, cart.ErrNoIdentity
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if req.AddressID == "" {
		return nil, ErrAddressRequired
	}
	if err := s.checkAddress(ctx, req.UserID, req.AddressID); err != nil {
		return nil, err
	}

	ids := make([]string, len(req.Items))
	for i, it := range req.Items {
		if it.Quantity < 1 {
			return nil, errors.Wrapf(cart.ErrInvalidQuantity, "product %s", it.ProductID)
		}
		ids[i] = it.ProductID
	}

	// Batch fetch all products in a single query.
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	items := make([]cart.Item, len(req.Items))
	for i, it := range req.Items {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, &cart.ProductNotFoundError{ProductID: it.ProductID}
		}
		items[i] = cart.Item{
			ProductID:     p.ID,
			Name:          p.Name,
			Quantity:      it.Quantity,
			UnitPrice:     p.Price,
			DiscountPrice: p.DiscountPrice,
			Options:       it.Options,
		}
	}

	total := cart.ComputeTotal(items)
	if !total.Equal(req.Total.Round(2)) {
		return nil, &TotalMismatchError{Submitted: req.Total, Computed: total}
	}

	return &order.Order{
		ID:            s.newID(),
		UserID:        req.UserID,
		Items:         items,
		TotalAmount:   total,
		Status:        order.StatusCreated,
		PaymentMethod: method,
		AddressID:     req.AddressID,
	}, nil
}

func (s *Service) checkAddress(ctx context.Context, userID, addressID string) error {
	list, err := s.addresses.List(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "list addresses")
	}
	for _, a := range list {
		if a.ID == addressID {
			return nil
		}
	}
	return address.ErrNotFound
}

// clearCart is best effort: the order is already stored.
func (s *Service) clearCart(ctx context.Context, userID string) {
	if err := s.carts.Clear(ctx, userID); err != nil {
		zctx.From(ctx).Warn("Clear cart after checkout", zap.String("user_id", userID), zap.Error(err))
	}
}
