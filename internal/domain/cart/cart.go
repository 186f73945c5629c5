// Package cart holds the shopping cart model, the checkout total rules and the
// guest-to-account reconciliation flow.
package cart

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for cart operations.
var (
	ErrNoIdentity       = errors.New("user identity required")
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
	ErrMutationInFlight = errors.New("another change to this item is in progress")
)

// ProductNotFoundError indicates a cart mutation referenced an unknown product.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// ItemNotFoundError indicates the product is not a line of the cart.
type ItemNotFoundError struct {
	ProductID string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("product %s is not in the cart", e.ProductID)
}

// Options are the purchase variations chosen for a line (size, pot, planter,
// color). Keys are free-form and absent keys mean "default".
type Options map[string]string

// Item is a single cart line with the prices the storefront displays.
type Item struct {
	ProductID     string
	Name          string
	Quantity      int
	UnitPrice     decimal.Decimal
	DiscountPrice decimal.NullDecimal
	Options       Options
}

// Cart is the server-side cart owned by one user.
type Cart struct {
	UserID string
	Items  []Item
}

// Find returns the line for productID.
func (c *Cart) Find(productID string) (Item, bool) {
	if c == nil {
		return Item{}, false
	}
	for _, it := range c.Items {
		if it.ProductID == productID {
			return it, true
		}
	}
	return Item{}, false
}

// Quantities returns product id to quantity for every line.
func (c *Cart) Quantities() map[string]int {
	out := make(map[string]int)
	if c == nil {
		return out
	}
	for _, it := range c.Items {
		out[it.ProductID] += it.Quantity
	}
	return out
}

// AddRequest describes an add-to-cart call.
type AddRequest struct {
	ProductID string
	Quantity  int
	Options   Options
	// IdempotencyKey, when set, makes the backend apply the call at most once.
	IdempotencyKey string
}

// Backend is the authoritative cart API. Every mutation returns the cart as
// the backend sees it after the change.
type Backend interface {
	GetCart(ctx context.Context, userID string) (*Cart, error)
	AddItem(ctx context.Context, userID string, req AddRequest) (*Cart, error)
	UpdateItem(ctx context.Context, userID, productID string, quantity int, idempotencyKey string) (*Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (*Cart, error)
}
