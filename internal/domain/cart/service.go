package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/nursery-kart/internal/domain/product"
)

// Store persists server carts. Mutations that carry an idempotency key must
// record the key in the same transaction and become no-ops when the key was
// already recorded.
type Store interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	// Add inserts the line or, when the product is already in the cart, adds
	// to its quantity.
	Add(ctx context.Context, userID string, req AddRequest) error
	// SetQuantity returns *ItemNotFoundError when the product is not in the cart.
	SetQuantity(ctx context.Context, userID, productID string, quantity int, idempotencyKey string) error
	// Remove deletes the line; a missing line is not an error.
	Remove(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
}

var _ Backend = (*Service)(nil)

// Service is the server-side cart API. It satisfies Backend, so the merge and
// line editing flows can run in-process as well as over HTTP.
type Service struct {
	store    Store
	products product.Repository
}

// NewService creates a cart Service.
func NewService(store Store, products product.Repository) *Service {
	return &Service{store: store, products: products}
}

// GetCart returns the user's cart; a user without a cart gets an empty one.
func (s *Service) GetCart(ctx context.Context, userID string) (*Cart, error) {
	if userID == "" {
		return nil, ErrNoIdentity
	}
	c, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return c, nil
}

// AddItem validates the product and quantity, then adds the line.
func (s *Service) AddItem(ctx context.Context, userID string, req AddRequest) (*Cart, error) {
	if userID == "" {
		return nil, ErrNoIdentity
	}
	if req.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	if _, err := s.products.GetByID(ctx, req.ProductID); err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, &ProductNotFoundError{ProductID: req.ProductID}
		}
		return nil, errors.Wrap(err, "get product")
	}
	if err := s.store.Add(ctx, userID, req); err != nil {
		return nil, errors.Wrap(err, "add item")
	}
	return s.GetCart(ctx, userID)
}

// UpdateItem sets the absolute quantity of a line.
func (s *Service) UpdateItem(ctx context.Context, userID, productID string, quantity int, idempotencyKey string) (*Cart, error) {
	if userID == "" {
		return nil, ErrNoIdentity
	}
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	if err := s.store.SetQuantity(ctx, userID, productID, quantity, idempotencyKey); err != nil {
		return nil, errors.Wrap(err, "set quantity")
	}
	return s.GetCart(ctx, userID)
}

// RemoveItem deletes a line. Removing an absent product returns the cart
// unchanged.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (*Cart, error) {
	if userID == "" {
		return nil, ErrNoIdentity
	}
	if err := s.store.Remove(ctx, userID, productID); err != nil {
		return nil, errors.Wrap(err, "remove item")
	}
	return s.GetCart(ctx, userID)
}

// Clear empties the user's cart after an order was placed.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.store.Clear(ctx, userID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}
