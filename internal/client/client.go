// Package client is the storefront's HTTP client for the nursery API.
//
// Every call goes through one retry policy: transport failures, 429 and 5xx
// answers are retried with exponential backoff, but only for requests that
// are safe to repeat (reads, absolute updates, deletes and mutations that
// carry an idempotency key). Each attempt has its own timeout.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/nursery-kart/internal/domain/cart"
	"github.com/xenking/nursery-kart/internal/domain/order"
	"github.com/xenking/nursery-kart/internal/domain/payment"
	"github.com/xenking/nursery-kart/internal/wire"
)

const (
	// IdempotencyKeyHeader carries the key of a repeatable mutation.
	IdempotencyKeyHeader = "Idempotency-Key"
	// RequestIDHeader and AttemptHeader let the server correlate the retries
	// of one call: the id is fixed per call, the attempt counts from 1.
	RequestIDHeader = "X-Request-ID"
	AttemptHeader   = "X-Request-Attempt"
)

// RetryPolicy bounds retries of repeatable requests.
type RetryPolicy struct {
	MaxRetries      uint64        `default:"3" usage:"Retries after the first attempt"`
	InitialInterval time.Duration `default:"200ms" usage:"First backoff interval"`
	MaxInterval     time.Duration `default:"2s" usage:"Backoff interval cap"`
	AttemptTimeout  time.Duration `default:"10s" usage:"Timeout of a single attempt"`
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx)
}

// Config configures a Client.
type Config struct {
	BaseURL string
	// Token is the bearer token sent with every request.
	Token string
	Retry RetryPolicy
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Reason  string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Unwrap maps reasons with a domain sentinel to that sentinel.
func (e *APIError) Unwrap() error {
	switch e.Reason {
	case wire.ReasonNoIdentity, wire.ReasonUnauthorized:
		return cart.ErrNoIdentity
	case wire.ReasonInvalidQuantity:
		return cart.ErrInvalidQuantity
	case wire.ReasonEmptyItems:
		return payment.ErrEmptyItems
	case wire.ReasonAddressRequired:
		return payment.ErrAddressRequired
	case wire.ReasonInvalidSignature:
		return payment.ErrInvalidSignature
	default:
		return nil
	}
}

func (e *APIError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Client calls the nursery API.
type Client struct {
	base  *url.URL
	token string
	retry RetryPolicy
	http  *http.Client
}

var _ cart.Backend = (*Client)(nil)

// New creates a Client. Requests are traced with the given providers.
func New(cfg Config, tp trace.TracerProvider, mp metric.MeterProvider) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	if cfg.Retry.AttemptTimeout == 0 {
		cfg.Retry.AttemptTimeout = 10 * time.Second
	}
	return &Client{
		base:  base,
		token: cfg.Token,
		retry: cfg.Retry,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithTracerProvider(tp),
				otelhttp.WithMeterProvider(mp),
			),
		},
	}, nil
}

type request struct {
	method string
	path   []string
	query  url.Values
	body   func(e *jx.Encoder)
	header http.Header
	// repeatable marks the request as safe to retry.
	repeatable bool
	decode     func(d *jx.Decoder) error
}

func (c *Client) url(r request) string {
	u := *c.base
	escaped := make([]string, len(r.path))
	for i, s := range r.path {
		escaped[i] = url.PathEscape(s)
	}
	u.RawPath = c.base.EscapedPath() + "/" + strings.Join(escaped, "/")
	u.Path = c.base.Path + "/" + strings.Join(r.path, "/")
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}
	return u.String()
}

// do runs r under the retry policy.
func (c *Client) do(ctx context.Context, r request) error {
	var body []byte
	if r.body != nil {
		var e jx.Encoder
		r.body(&e)
		body = e.Bytes()
	}

	var (
		callID = uuid.NewString()
		n      int
	)
	op := func() error {
		n++
		err := c.attempt(ctx, r, body, callID, n)
		if err == nil {
			return nil
		}
		if !r.repeatable {
			return backoff.Permanent(err)
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return backoff.Permanent(err)
		}
		var decErr *wire.DecodeError
		if errors.As(err, &decErr) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, c.retry.backOff(ctx)); err != nil {
		return errors.Wrapf(err, "%s /%s", r.method, strings.Join(r.path, "/"))
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, r request, body []byte, callID string, n int) error {
	ctx, cancel := context.WithTimeout(ctx, c.retry.AttemptTimeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.url(r), rd)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set(RequestIDHeader, callID)
	req.Header.Set(AttemptHeader, strconv.Itoa(n))
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "send")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if resp.StatusCode/100 != 2 {
		return decodeError(resp.StatusCode, data)
	}
	if r.decode == nil {
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &wire.DecodeError{Object: "response", Field: "body", Err: errors.New("empty body")}
	}
	return r.decode(jx.DecodeBytes(data))
}

func decodeError(status int, data []byte) error {
	apiErr := &APIError{Status: status}
	var body wire.Error
	if err := body.Decode(jx.DecodeBytes(data)); err == nil {
		apiErr.Reason = body.Reason
		apiErr.Message = body.Message
	}
	return apiErr
}

func reasonOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Reason
	}
	return ""
}

// GetCart implements cart.Backend.
func (c *Client) GetCart(ctx context.Context, userID string) (*cart.Cart, error) {
	if userID == "" {
		return nil, cart.ErrNoIdentity
	}
	var out *cart.Cart
	err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       []string{"api", "cart", userID},
		repeatable: true,
		decode:     decodeInto(&out, wire.DecodeCart),
	})
	return out, err
}

// AddItem implements cart.Backend. Only keyed adds are retried.
func (c *Client) AddItem(ctx context.Context, userID string, req cart.AddRequest) (*cart.Cart, error) {
	if userID == "" {
		return nil, cart.ErrNoIdentity
	}
	var out *cart.Cart
	err := c.do(ctx, request{
		method:     http.MethodPost,
		path:       []string{"api", "cart", userID, "items"},
		body:       func(e *jx.Encoder) { wire.EncodeAddRequest(e, req) },
		header:     idempotency(req.IdempotencyKey),
		repeatable: req.IdempotencyKey != "",
		decode:     decodeInto(&out, wire.DecodeCart),
	})
	if reasonOf(err) == wire.ReasonProductNotFound {
		return nil, &cart.ProductNotFoundError{ProductID: req.ProductID}
	}
	return out, err
}

// UpdateItem implements cart.Backend. Setting an absolute quantity is
// repeatable.
func (c *Client) UpdateItem(ctx context.Context, userID, productID string, quantity int, idempotencyKey string) (*cart.Cart, error) {
	if userID == "" {
		return nil, cart.ErrNoIdentity
	}
	var out *cart.Cart
	err := c.do(ctx, request{
		method:     http.MethodPut,
		path:       []string{"api", "cart", userID, "items", productID},
		body:       func(e *jx.Encoder) { wire.EncodeQuantity(e, quantity) },
		header:     idempotency(idempotencyKey),
		repeatable: true,
		decode:     decodeInto(&out, wire.DecodeCart),
	})
	if reasonOf(err) == wire.ReasonItemNotFound {
		return nil, &cart.ItemNotFoundError{ProductID: productID}
	}
	return out, err
}

// RemoveItem implements cart.Backend.
func (c *Client) RemoveItem(ctx context.Context, userID, productID string) (*cart.Cart, error) {
	if userID == "" {
		return nil, cart.ErrNoIdentity
	}
	var out *cart.Cart
	err := c.do(ctx, request{
		method:     http.MethodDelete,
		path:       []string{"api", "cart", userID, "items", productID},
		repeatable: true,
		decode:     decodeInto(&out, wire.DecodeCart),
	})
	return out, err
}

// Orders lists the user's orders, newest first.
func (c *Client) Orders(ctx context.Context, userID string) ([]order.Order, error) {
	if userID == "" {
		return nil, cart.ErrNoIdentity
	}
	var out []order.Order
	err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       []string{"api", "orders", "get", userID},
		repeatable: true,
		decode:     decodeInto(&out, wire.DecodeOrders),
	})
	return out, err
}

// AdminOrders lists every order placed within r. Requires an admin token.
func (c *Client) AdminOrders(ctx context.Context, r order.Range, status order.Status) ([]order.Order, error) {
	q := url.Values{"range": {string(r)}}
	if status != "" {
		q.Set("status", string(status))
	}
	var out []order.Order
	err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       []string{"api", "orders", "admin", "orders"},
		query:      q,
		repeatable: true,
		decode:     decodeInto(&out, wire.DecodeOrders),
	})
	return out, err
}

// UpdateOrderStatus moves an order to next. Requires an admin token.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID string, next order.Status) (*order.Order, error) {
	var out *order.Order
	err := c.do(ctx, request{
		method: http.MethodPatch,
		path:   []string{"api", "orders", orderID, "status"},
		body:   func(e *jx.Encoder) { wire.EncodeStatus(e, next) },
		// Repeating an applied transition fails instead of applying twice.
		repeatable: true,
		decode:     decodeInto(&out, wire.DecodeOrder),
	})
	return out, err
}

func idempotency(key string) http.Header {
	if key == "" {
		return nil
	}
	return http.Header{IdempotencyKeyHeader: {key}}
}

// decodeInto adapts a codec to the request decode hook.
func decodeInto[T any](dst *T, fn func(d *jx.Decoder) (T, error)) func(d *jx.Decoder) error {
	return func(d *jx.Decoder) error {
		v, err := fn(d)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
}
