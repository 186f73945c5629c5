package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/nursery-kart/internal/client"
	"github.com/xenking/nursery-kart/internal/domain/address"
	"github.com/xenking/nursery-kart/internal/domain/cart"
	"github.com/xenking/nursery-kart/internal/domain/checkout"
	"github.com/xenking/nursery-kart/internal/domain/order"
	"github.com/xenking/nursery-kart/internal/domain/payment"
	"github.com/xenking/nursery-kart/internal/domain/product"
	"github.com/xenking/nursery-kart/internal/identity"
	"github.com/xenking/nursery-kart/internal/razorpay"
	"github.com/xenking/nursery-kart/internal/wire"
)

const (
	jwtSecret      = "test-secret"
	providerSecret = "provider-secret"
)

// --- In-memory backends ---

type memCarts struct {
	mu    sync.Mutex
	items map[string][]cart.Item
	keys  map[string]bool
}

func (m *memCarts) Get(_ context.Context, userID string) (*cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &cart.Cart{UserID: userID, Items: slices.Clone(m.items[userID])}, nil
}

// seen records key and reports whether it was recorded before.
func (m *memCarts) seen(userID, key string) bool {
	if key == "" {
		return false
	}
	k := userID + "/" + key
	if m.keys[k] {
		return true
	}
	m.keys[k] = true
	return false
}

func (m *memCarts) Add(_ context.Context, userID string, req cart.AddRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen(userID, req.IdempotencyKey) {
		return nil
	}
	items := m.items[userID]
	for i := range items {
		if items[i].ProductID == req.ProductID {
			items[i].Quantity += req.Quantity
			return nil
		}
	}
	m.items[userID] = append(items, cart.Item{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		UnitPrice: decimal.RequireFromString("100"),
		Options:   req.Options,
	})
	return nil
}

func (m *memCarts) SetQuantity(_ context.Context, userID, productID string, quantity int, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items[userID]
	i := slices.IndexFunc(items, func(it cart.Item) bool { return it.ProductID == productID })
	if i < 0 {
		return &cart.ItemNotFoundError{ProductID: productID}
	}
	if m.seen(userID, key) {
		return nil
	}
	items[i].Quantity = quantity
	return nil
}

func (m *memCarts) Remove(_ context.Context, userID, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[userID] = slices.DeleteFunc(m.items[userID], func(it cart.Item) bool { return it.ProductID == productID })
	return nil
}

func (m *memCarts) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, userID)
	return nil
}

type memProducts struct {
	byID map[string]product.Product
}

func (m *memProducts) List(_ context.Context, f product.Filter) ([]product.Product, error) {
	var out []product.Product
	for _, id := range []string{"fern", "pot"} {
		p := m.byID[id]
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *memProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *memProducts) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memProducts) Upsert(context.Context, product.Product) error { return nil }

type memAddresses struct {
	mu     sync.Mutex
	byUser map[string][]address.Address
}

func (m *memAddresses) List(_ context.Context, userID string) ([]address.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.byUser[userID]), nil
}

func (m *memAddresses) Replace(_ context.Context, userID string, addrs []address.Address) ([]address.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(addrs)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = "generated"
		}
	}
	m.byUser[userID] = out
	return slices.Clone(out), nil
}

type memOrders struct {
	mu   sync.Mutex
	byID map[string]order.Order
}

func (m *memOrders) Create(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[o.ID] = *o
	return nil
}

func (m *memOrders) Get(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (m *memOrders) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.byID {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memOrders) ListSince(_ context.Context, since time.Time, status order.Status) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.byID {
		if o.CreatedAt.Before(since) || (status != "" && o.Status != status) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (m *memOrders) UpdateStatus(_ context.Context, id string, u order.StatusUpdate) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	if o.Status != u.From {
		return nil, order.ErrStatusConflict
	}
	o.Status = u.To
	if u.ProviderPaymentID != "" {
		o.ProviderPaymentID = u.ProviderPaymentID
	}
	m.byID[id] = o
	return &o, nil
}

type fakeProvider struct{}

func (fakeProvider) CreateOrder(_ context.Context, amountMinor int64, currency, _ string) (*payment.ProviderOrder, error) {
	return &payment.ProviderOrder{ID: "order_P1", AmountMinor: amountMinor, Currency: currency}, nil
}

func (fakeProvider) VerifySignature(providerOrderID, paymentID, signature string) bool {
	return razorpay.VerifySignature(providerSecret, providerOrderID, paymentID, signature)
}

func (fakeProvider) KeyID() string { return "rzp_test" }

// --- Helpers ---

type env struct {
	srv      *httptest.Server
	verifier *identity.Verifier
	carts    *memCarts
	orders   *memOrders
}

func newEnv(t *testing.T) *env {
	t.Helper()

	products := &memProducts{byID: map[string]product.Product{
		"fern": {ID: "fern", Name: "Boston Fern", Category: "plants", Price: decimal.RequireFromString("100"), DiscountPrice: decimal.NewNullDecimal(decimal.RequireFromString("80"))},
		"pot":  {ID: "pot", Name: "Clay Pot", Category: "pots", Price: decimal.RequireFromString("150")},
	}}
	addresses := &memAddresses{byUser: map[string][]address.Address{
		"u1": {{ID: "a1", Name: "U", Line1: "1 Main", City: "Pune", Pincode: "411001", Phone: "99"}},
	}}
	carts := &memCarts{items: map[string][]cart.Item{}, keys: map[string]bool{}}
	orders := &memOrders{byID: map[string]order.Order{}}

	cartSvc := cart.NewService(carts, products)
	orderSvc := order.NewService(orders, nil)
	verifier := identity.NewVerifier(jwtSecret)

	h, err := NewHandler(Deps{
		Carts:     cartSvc,
		Payments:  payment.NewService(products, addresses, orderSvc, cartSvc, fakeProvider{}, "INR"),
		Orders:    orderSvc,
		Products:  products,
		Addresses: addresses,
		Verifier:  verifier,
	}, metricnoop.NewMeterProvider())
	require.NoError(t, err)

	r := chi.NewRouter()
	h.Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &env{srv: srv, verifier: verifier, carts: carts, orders: orders}
}

func (e *env) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := e.verifier.Issue(userID, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *env) client(t *testing.T, userID, role string) *client.Client {
	t.Helper()
	c, err := client.New(client.Config{
		BaseURL: e.srv.URL,
		Token:   e.token(t, userID, role),
	}, tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	require.NoError(t, err)
	return c
}

func (e *env) do(t *testing.T, method, path, token, body string) (int, wire.Error) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var apiErr wire.Error
	if resp.StatusCode >= 400 {
		d := jx.Decode(resp.Body, 512)
		require.NoError(t, apiErr.Decode(d))
	}
	return resp.StatusCode, apiErr
}

func reasonOf(t *testing.T, err error) string {
	t.Helper()
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	return apiErr.Reason
}

// --- Tests ---

func TestCart(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.client(t, "u1", "")

	req := cart.AddRequest{ProductID: "fern", Quantity: 2, Options: cart.Options{"pot": "clay"}, IdempotencyKey: "merge:m1:fern"}
	got, err := c.AddItem(ctx, "u1", req)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)

	// A replayed merge call does not add again.
	got, err = c.AddItem(ctx, "u1", req)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.Equal(t, "clay", got.Items[0].Options["pot"])

	got, err = c.UpdateItem(ctx, "u1", "fern", 5, "")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Items[0].Quantity)

	_, err = c.UpdateItem(ctx, "u1", "pot", 1, "")
	var inf *cart.ItemNotFoundError
	require.ErrorAs(t, err, &inf)

	_, err = c.AddItem(ctx, "u1", cart.AddRequest{ProductID: "ghost", Quantity: 1})
	var pnf *cart.ProductNotFoundError
	require.ErrorAs(t, err, &pnf)

	_, err = c.AddItem(ctx, "u1", cart.AddRequest{ProductID: "fern", Quantity: 0})
	require.ErrorIs(t, err, cart.ErrInvalidQuantity)

	got, err = c.RemoveItem(ctx, "u1", "pot")
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)

	got, err = c.RemoveItem(ctx, "u1", "fern")
	require.NoError(t, err)
	assert.Empty(t, got.Items)
}

func TestAuthorization(t *testing.T) {
	e := newEnv(t)
	user := e.token(t, "u1", "")
	admin := e.token(t, "root", identity.RoleAdmin)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		status int
		reason string
	}{
		{name: "missing token", method: http.MethodGet, path: "/api/cart/u1", status: http.StatusUnauthorized, reason: wire.ReasonUnauthorized},
		{name: "bad token", method: http.MethodGet, path: "/api/cart/u1", token: "not-a-jwt", status: http.StatusUnauthorized, reason: wire.ReasonUnauthorized},
		{name: "own cart", method: http.MethodGet, path: "/api/cart/u1", token: user, status: http.StatusOK},
		{name: "foreign cart", method: http.MethodGet, path: "/api/cart/u2", token: user, status: http.StatusForbidden, reason: wire.ReasonForbidden},
		{name: "admin reads any cart", method: http.MethodGet, path: "/api/cart/u2", token: admin, status: http.StatusOK},
		{name: "foreign orders", method: http.MethodGet, path: "/api/orders/get/u2", token: user, status: http.StatusForbidden, reason: wire.ReasonForbidden},
		{name: "admin listing as user", method: http.MethodGet, path: "/api/orders/admin/orders", token: user, status: http.StatusForbidden, reason: wire.ReasonForbidden},
		{name: "admin listing", method: http.MethodGet, path: "/api/orders/admin/orders?range=3m", token: admin, status: http.StatusOK},
		{name: "admin bad range", method: http.MethodGet, path: "/api/orders/admin/orders?range=2w", token: admin, status: http.StatusBadRequest, reason: wire.ReasonBadRequest},
		{name: "catalog is public", method: http.MethodGet, path: "/api/products?category=plants", status: http.StatusOK},
		{name: "unknown product", method: http.MethodGet, path: "/api/products/id/ghost", status: http.StatusNotFound, reason: wire.ReasonNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, apiErr := e.do(t, tt.method, tt.path, tt.token, "")
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.reason, apiErr.Reason)
		})
	}
}

func TestBadRequests(t *testing.T) {
	e := newEnv(t)
	user := e.token(t, "u1", "")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		reason string
	}{
		{name: "empty body", method: http.MethodPost, path: "/api/cart/u1/items", status: http.StatusBadRequest, reason: wire.ReasonBadRequest},
		{name: "malformed json", method: http.MethodPost, path: "/api/cart/u1/items", body: `{"productId":`, status: http.StatusBadRequest, reason: wire.ReasonBadRequest},
		{name: "missing quantity", method: http.MethodPut, path: "/api/cart/u1/items/fern", body: `{}`, status: http.StatusBadRequest, reason: wire.ReasonBadRequest},
		{name: "checkout for someone else", method: http.MethodPost, path: "/api/payment/place-cod-order", body: `{"userId":"u2","addressId":"a1","items":[],"totalAmount":0}`, status: http.StatusForbidden, reason: wire.ReasonForbidden},
		{name: "checkout without items", method: http.MethodPost, path: "/api/payment/place-cod-order", body: `{"userId":"u1","addressId":"a1","items":[],"totalAmount":0}`, status: http.StatusBadRequest, reason: wire.ReasonEmptyItems},
		{name: "invalid address", method: http.MethodPut, path: "/api/auth/u1/addresses", body: `[{"name":"U","line1":"","city":"Pune","pincode":"1","phone":"2"}]`, status: http.StatusUnprocessableEntity, reason: wire.ReasonInvalidAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, apiErr := e.do(t, tt.method, tt.path, user, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.reason, apiErr.Reason)
		})
	}
}

func TestPlaceCOD(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.client(t, "u1", "")

	_, err := c.AddItem(ctx, "u1", cart.AddRequest{ProductID: "fern", Quantity: 2})
	require.NoError(t, err)

	items := []cart.Item{{ProductID: "fern", Quantity: 2}}
	_, err = c.PlaceCODOrder(ctx, checkout.Submission{UserID: "u1", AddressID: "a1", Items: items, Total: decimal.RequireFromString("200")})
	assert.Equal(t, wire.ReasonTotalMismatch, reasonOf(t, err))

	_, err = c.PlaceCODOrder(ctx, checkout.Submission{UserID: "u1", AddressID: "missing", Items: items, Total: decimal.RequireFromString("160")})
	assert.Equal(t, wire.ReasonInvalidAddress, reasonOf(t, err))

	o, err := c.PlaceCODOrder(ctx, checkout.Submission{UserID: "u1", AddressID: "a1", Items: items, Total: decimal.RequireFromString("160")})
	require.NoError(t, err)
	assert.Equal(t, order.PaymentCOD, o.PaymentMethod)
	assert.True(t, o.Status.Pending())
	assert.Equal(t, "160.00", o.TotalAmount.StringFixed(2))

	got, err := c.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got.Items)

	history, err := c.Orders(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, o.ID, history[0].ID)
}

func TestOnlinePayment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.client(t, "u1", "")

	po, err := c.CreatePaymentOrder(ctx, checkout.Submission{
		UserID:    "u1",
		AddressID: "a1",
		Items:     []cart.Item{{ProductID: "fern", Quantity: 1}, {ProductID: "pot", Quantity: 1}},
		Total:     decimal.RequireFromString("230"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(23000), po.AmountMinor)
	assert.Equal(t, "INR", po.Currency)
	assert.Equal(t, "rzp_test", po.KeyID)
	assert.Equal(t, "order_P1", po.ProviderOrderID)

	stored, err := e.orders.Get(ctx, po.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusAwaitingPayment, stored.Status)

	cb := checkout.ProviderCallback{PaymentID: "pay_1", ProviderOrderID: po.ProviderOrderID, Signature: "forged"}
	_, err = c.VerifyPayment(ctx, "u1", po.OrderID, cb)
	require.ErrorIs(t, err, payment.ErrInvalidSignature)

	cb.Signature = razorpay.Sign(providerSecret, po.ProviderOrderID, "pay_1")
	paid, err := c.VerifyPayment(ctx, "u1", po.OrderID, cb)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, paid.Status)
	assert.Equal(t, "pay_1", paid.ProviderPaymentID)

	// Replaying the same verification returns the paid order.
	again, err := c.VerifyPayment(ctx, "u1", po.OrderID, cb)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, again.Status)

	// Another shopper cannot see the order.
	_, err = e.client(t, "u2", "").VerifyPayment(ctx, "u2", po.OrderID, cb)
	assert.Equal(t, wire.ReasonNotFound, reasonOf(t, err))
}

func TestAdminStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.orders.Create(ctx, &order.Order{
		ID:            "o1",
		UserID:        "u1",
		Status:        order.StatusConfirmed,
		PaymentMethod: order.PaymentCOD,
		CreatedAt:     time.Now(),
	}))

	admin := e.client(t, "root", identity.RoleAdmin)

	_, err := admin.UpdateOrderStatus(ctx, "o1", order.StatusPaid)
	assert.Equal(t, wire.ReasonInvalidTransition, reasonOf(t, err))

	o, err := admin.UpdateOrderStatus(ctx, "o1", order.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, o.Status)

	_, err = admin.UpdateOrderStatus(ctx, "missing", order.StatusDelivered)
	assert.Equal(t, wire.ReasonNotFound, reasonOf(t, err))

	list, err := admin.AdminOrders(ctx, order.RangeMonth, order.StatusDelivered)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = e.client(t, "u1", "").UpdateOrderStatus(ctx, "o1", order.StatusCancelled)
	assert.Equal(t, wire.ReasonForbidden, reasonOf(t, err))
}

func TestAddresses(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.client(t, "u1", "")

	saved, err := c.SaveAddresses(ctx, "u1", []address.Address{
		{Label: "home", Name: "U", Line1: "1 Main", City: "Pune", Pincode: "411001", Phone: "99"},
	})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "generated", saved[0].ID)

	list, err := c.Addresses(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, saved, list)
}

func TestUserFromRequest(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, ok := UserFromRequest(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "Bearer "+e.token(t, "u7", ""))
	id, ok := UserFromRequest(req)
	require.True(t, ok)
	assert.Equal(t, "u7", id)

	req.Header.Set("Authorization", "Bearer garbage")
	_, ok = UserFromRequest(req)
	assert.False(t, ok)
}
