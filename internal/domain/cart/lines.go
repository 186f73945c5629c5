package cart

import (
	"context"
	"slices"
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// LineEditor keeps the signed-in shopper's view of the cart and applies
// quantity changes through the backend. The view changes only after the
// backend acknowledged a mutation, and is replaced with the cart the backend
// returned rather than patched locally.
type LineEditor struct {
	backend Backend
	userID  string

	mu       sync.Mutex
	items    []Item
	inFlight map[string]struct{}
}

// NewLineEditor creates an editor for userID's cart.
func NewLineEditor(backend Backend, userID string) *LineEditor {
	return &LineEditor{
		backend:  backend,
		userID:   userID,
		inFlight: make(map[string]struct{}),
	}
}

// Load replaces the view with the server cart.
func (e *LineEditor) Load(ctx context.Context) error {
	if e.userID == "" {
		return ErrNoIdentity
	}
	c, err := e.backend.GetCart(ctx, e.userID)
	if err != nil {
		return errors.Wrap(err, "get cart")
	}
	e.mu.Lock()
	e.items = slices.Clone(c.Items)
	e.mu.Unlock()
	return nil
}

// Items returns a copy of the current view.
func (e *LineEditor) Items() []Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.items)
}

// Total is ComputeTotal over the current view.
func (e *LineEditor) Total() decimal.Decimal {
	return ComputeTotal(e.Items())
}

// Increment raises the quantity of productID by one.
func (e *LineEditor) Increment(ctx context.Context, productID string) (Item, error) {
	return e.step(ctx, productID, 1)
}

// Decrement lowers the quantity of productID by one, never below 1. At 1 it
// returns the line unchanged without calling the backend.
func (e *LineEditor) Decrement(ctx context.Context, productID string) (Item, error) {
	return e.step(ctx, productID, -1)
}

func (e *LineEditor) step(ctx context.Context, productID string, delta int) (Item, error) {
	if e.userID == "" {
		return Item{}, ErrNoIdentity
	}
	if err := e.acquire(productID); err != nil {
		return Item{}, err
	}
	defer e.release(productID)

	cur, ok := e.find(productID)
	if !ok {
		return Item{}, &ItemNotFoundError{ProductID: productID}
	}
	next := max(cur.Quantity+delta, 1)
	if next == cur.Quantity {
		return cur, nil
	}

	c, err := e.backend.UpdateItem(ctx, e.userID, productID, next, "")
	if err != nil {
		return Item{}, errors.Wrapf(err, "update %s", productID)
	}
	e.replace(c)

	updated, ok := c.Find(productID)
	if !ok {
		return Item{}, &ItemNotFoundError{ProductID: productID}
	}
	return updated, nil
}

// Remove deletes productID from the cart. Removing a product that is not in
// the cart is not an error.
func (e *LineEditor) Remove(ctx context.Context, productID string) error {
	if e.userID == "" {
		return ErrNoIdentity
	}
	if err := e.acquire(productID); err != nil {
		return err
	}
	defer e.release(productID)

	c, err := e.backend.RemoveItem(ctx, e.userID, productID)
	if err != nil {
		return errors.Wrapf(err, "remove %s", productID)
	}
	e.replace(c)
	return nil
}

func (e *LineEditor) acquire(productID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[productID]; busy {
		return ErrMutationInFlight
	}
	e.inFlight[productID] = struct{}{}
	return nil
}

func (e *LineEditor) release(productID string) {
	e.mu.Lock()
	delete(e.inFlight, productID)
	e.mu.Unlock()
}

func (e *LineEditor) find(productID string) (Item, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, it := range e.items {
		if it.ProductID == productID {
			return it, true
		}
	}
	return Item{}, false
}

func (e *LineEditor) replace(c *Cart) {
	e.mu.Lock()
	e.items = slices.Clone(c.Items)
	e.mu.Unlock()
}
