package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-faster/jx"

	"github.com/xenking/nursery-kart/internal/domain/address"
	"github.com/xenking/nursery-kart/internal/domain/cart"
	"github.com/xenking/nursery-kart/internal/domain/checkout"
	"github.com/xenking/nursery-kart/internal/domain/order"
	"github.com/xenking/nursery-kart/internal/domain/product"
	"github.com/xenking/nursery-kart/internal/wire"
)

var _ checkout.Gateway = (*Client)(nil)

// CreatePaymentOrder implements checkout.Gateway. It is never retried: a
// repeat would open a second provider order.
func (c *Client) CreatePaymentOrder(ctx context.Context, s checkout.Submission) (*checkout.PaymentOrder, error) {
	var out *checkout.PaymentOrder
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   []string{"api", "payment", "create-order"},
		body:   func(e *jx.Encoder) { wire.EncodeSubmission(e, s) },
		decode: decodeInto(&out, wire.DecodePaymentOrder),
	})
	return out, err
}

// VerifyPayment implements checkout.Gateway. Verification of an already paid
// order succeeds again, so it is retried.
func (c *Client) VerifyPayment(ctx context.Context, userID, orderID string, cb checkout.ProviderCallback) (*order.Order, error) {
	v := wire.Verification{UserID: userID, OrderID: orderID, Callback: cb}
	var out *order.Order
	err := c.do(ctx, request{
		method:     http.MethodPost,
		path:       []string{"api", "payment", "verify"},
		body:       v.Encode,
		repeatable: true,
		decode:     decodeInto(&out, wire.DecodeOrder),
	})
	return out, err
}

// PlaceCODOrder implements checkout.Gateway.
func (c *Client) PlaceCODOrder(ctx context.Context, s checkout.Submission) (*order.Order, error) {
	var out *order.Order
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   []string{"api", "payment", "place-cod-order"},
		body:   func(e *jx.Encoder) { wire.EncodeSubmission(e, s) },
		decode: decodeInto(&out, wire.DecodeOrder),
	})
	return out, err
}

// Addresses returns the user's saved addresses.
func (c *Client) Addresses(ctx context.Context, userID string) ([]address.Address, error) {
	if userID == "" {
		return nil, cart.ErrNoIdentity
	}
	var out []address.Address
	err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       []string{"api", "auth", userID, "addresses"},
		repeatable: true,
		decode:     decodeInto(&out, wire.DecodeAddresses),
	})
	return out, err
}

// SaveAddresses replaces the user's address book.
func (c *Client) SaveAddresses(ctx context.Context, userID string, list []address.Address) ([]address.Address, error) {
	if userID == "" {
		return nil, cart.ErrNoIdentity
	}
	var out []address.Address
	err := c.do(ctx, request{
		method:     http.MethodPut,
		path:       []string{"api", "auth", userID, "addresses"},
		body:       func(e *jx.Encoder) { wire.EncodeAddresses(e, list) },
		repeatable: true,
		decode:     decodeInto(&out, wire.DecodeAddresses),
	})
	return out, err
}

// Products searches the catalog.
func (c *Client) Products(ctx context.Context, f product.Filter) ([]product.Product, error) {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	var out []product.Product
	err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       []string{"api", "products"},
		query:      q,
		repeatable: true,
		decode:     decodeInto(&out, wire.DecodeProducts),
	})
	return out, err
}

// Product returns one catalog entry.
func (c *Client) Product(ctx context.Context, id string) (product.Product, error) {
	var out product.Product
	err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       []string{"api", "products", "id", id},
		repeatable: true,
		decode:     decodeInto(&out, wire.DecodeProduct),
	})
	if reasonOf(err) == wire.ReasonNotFound {
		return product.Product{}, product.ErrNotFound
	}
	return out, err
}
