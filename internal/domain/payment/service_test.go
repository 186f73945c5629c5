package payment

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/nursery-kart/internal/domain/address"
	"github.com/xenking/nursery-kart/internal/domain/cart"
	"github.com/xenking/nursery-kart/internal/domain/order"
	"github.com/xenking/nursery-kart/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID map[string]product.Product
}

func (m *mockProductRepo) List(context.Context, product.Filter) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) Upsert(context.Context, product.Product) error { return nil }

type mockAddressRepo struct {
	list []address.Address
}

func (m *mockAddressRepo) List(context.Context, string) ([]address.Address, error) {
	return m.list, nil
}

func (m *mockAddressRepo) Replace(_ context.Context, _ string, addrs []address.Address) ([]address.Address, error) {
	m.list = addrs
	return addrs, nil
}

type mockOrderRepo struct {
	byID map[string]*order.Order
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	cp := *o
	m.byID[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) ListByUser(context.Context, string) ([]order.Order, error) { return nil, nil }

func (m *mockOrderRepo) ListSince(context.Context, time.Time, order.Status) ([]order.Order, error) {
	return nil, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, u order.StatusUpdate) (*order.Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	if o.Status != u.From {
		return nil, order.ErrStatusConflict
	}
	o.Status = u.To
	o.ProviderPaymentID = u.ProviderPaymentID
	cp := *o
	return &cp, nil
}

type mockCarts struct {
	cleared []string
	err     error
}

func (m *mockCarts) Clear(_ context.Context, userID string) error {
	m.cleared = append(m.cleared, userID)
	return m.err
}

type mockProvider struct {
	created   []int64
	createErr error
	validSig  string
}

func (m *mockProvider) CreateOrder(_ context.Context, amountMinor int64, currency, _ string) (*ProviderOrder, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created = append(m.created, amountMinor)
	return &ProviderOrder{ID: "order_P1", AmountMinor: amountMinor, Currency: currency}, nil
}

func (m *mockProvider) VerifySignature(_, _, signature string) bool {
	return signature == m.validSig
}

func (m *mockProvider) KeyID() string { return "rzp_test" }

// --- Helpers ---

type fixture struct {
	svc      *Service
	orders   *mockOrderRepo
	carts    *mockCarts
	provider *mockProvider
}

func newFixture() *fixture {
	products := &mockProductRepo{byID: map[string]product.Product{
		"fern":  {ID: "fern", Name: "Boston Fern", Price: decimal.RequireFromString("100"), DiscountPrice: decimal.NewNullDecimal(decimal.RequireFromString("80"))},
		"cacti": {ID: "cacti", Name: "Cactus", Price: decimal.RequireFromString("100"), DiscountPrice: decimal.NewNullDecimal(decimal.Zero)},
	}}
	addrs := &mockAddressRepo{list: []address.Address{{ID: "a1", Name: "Home"}}}
	orders := &mockOrderRepo{byID: make(map[string]*order.Order)}
	carts := &mockCarts{}
	provider := &mockProvider{validSig: "good"}

	svc := NewService(products, addrs, order.NewService(orders, nil), carts, provider, "INR")
	svc.newID = func() string { return "o1" }
	return &fixture{svc: svc, orders: orders, carts: carts, provider: provider}
}

func checkoutReq(total string) CheckoutRequest {
	return CheckoutRequest{
		UserID:    "u1",
		AddressID: "a1",
		Items:     []cart.Item{{ProductID: "fern", Quantity: 2}},
		Total:     decimal.RequireFromString(total),
	}
}

// --- Tests ---

func TestPlaceCOD_TotalMatchesComputed(t *testing.T) {
	f := newFixture()

	o, err := f.svc.PlaceCOD(context.Background(), checkoutReq("160"))
	require.NoError(t, err)

	assert.Equal(t, "160.00", o.TotalAmount.StringFixed(2))
	assert.Equal(t, order.StatusConfirmed, o.Status)
	assert.Equal(t, order.PaymentCOD, o.PaymentMethod)
	assert.Empty(t, f.provider.created, "cod must not touch the provider")
	assert.Equal(t, []string{"u1"}, f.carts.cleared)
	assert.Equal(t, "Boston Fern", f.orders.byID["o1"].Items[0].Name)
}

func TestPlaceCOD_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *CheckoutRequest)
		check  func(t *testing.T, err error)
	}{
		{
			name:   "empty items",
			mutate: func(r *CheckoutRequest) { r.Items = nil },
			check:  func(t *testing.T, err error) { require.ErrorIs(t, err, ErrEmptyItems) },
		},
		{
			name:   "missing address",
			mutate: func(r *CheckoutRequest) { r.AddressID = "" },
			check:  func(t *testing.T, err error) { require.ErrorIs(t, err, ErrAddressRequired) },
		},
		{
			name:   "foreign address",
			mutate: func(r *CheckoutRequest) { r.AddressID = "a9" },
			check:  func(t *testing.T, err error) { require.ErrorIs(t, err, address.ErrNotFound) },
		},
		{
			name:   "zero quantity",
			mutate: func(r *CheckoutRequest) { r.Items[0].Quantity = 0 },
			check:  func(t *testing.T, err error) { require.ErrorIs(t, err, cart.ErrInvalidQuantity) },
		},
		{
			name:   "unknown product",
			mutate: func(r *CheckoutRequest) { r.Items[0].ProductID = "orchid" },
			check: func(t *testing.T, err error) {
				var pnf *cart.ProductNotFoundError
				require.ErrorAs(t, err, &pnf)
			},
		},
		{
			name:   "total mismatch",
			mutate: func(r *CheckoutRequest) { r.Total = decimal.RequireFromString("200") },
			check: func(t *testing.T, err error) {
				var tm *TotalMismatchError
				require.ErrorAs(t, err, &tm)
				assert.Equal(t, "160.00", tm.Computed.StringFixed(2))
			},
		},
		{
			name:   "no identity",
			mutate: func(r *CheckoutRequest) { r.UserID = "" },
			check:  func(t *testing.T, err error) { require.ErrorIs(t, err, cart.ErrNoIdentity) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			req := checkoutReq("160")
			tt.mutate(&req)

			_, err := f.svc.PlaceCOD(context.Background(), req)
			tt.check(t, err)
			assert.Empty(t, f.orders.byID)
			assert.Empty(t, f.carts.cleared)
		})
	}
}

func TestCreateOnlineOrder(t *testing.T) {
	f := newFixture()
	req := checkoutReq("460")
	req.Items = append(req.Items, cart.Item{ProductID: "cacti", Quantity: 3})

	res, err := f.svc.CreateOnlineOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []int64{46000}, f.provider.created)
	assert.Equal(t, "order_P1", res.ProviderOrder.ID)
	assert.Equal(t, "rzp_test", res.KeyID)
	assert.Equal(t, order.StatusAwaitingPayment, f.orders.byID["o1"].Status)
	assert.Empty(t, f.carts.cleared, "cart stays until payment is verified")
}

func TestCreateOnlineOrder_ProviderFailure(t *testing.T) {
	f := newFixture()
	f.provider.createErr = errors.New("gateway timeout")

	_, err := f.svc.CreateOnlineOrder(context.Background(), checkoutReq("160"))
	require.Error(t, err)
	assert.Empty(t, f.orders.byID)
}

func TestVerify(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.CreateOnlineOrder(ctx, checkoutReq("160"))
	require.NoError(t, err)

	vr := VerifyRequest{UserID: "u1", OrderID: "o1", ProviderOrderID: "order_P1", PaymentID: "pay_1", Signature: "bad"}
	_, err = f.svc.Verify(ctx, vr)
	require.ErrorIs(t, err, ErrInvalidSignature)
	assert.Equal(t, order.StatusAwaitingPayment, f.orders.byID["o1"].Status)

	vr.Signature = "good"
	o, err := f.svc.Verify(ctx, vr)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, o.Status)
	assert.Equal(t, "pay_1", o.ProviderPaymentID)
	assert.Equal(t, []string{"u1"}, f.carts.cleared)

	// Replay returns the paid order.
	again, err := f.svc.Verify(ctx, vr)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, again.Status)
}

func TestVerify_ForeignOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.CreateOnlineOrder(ctx, checkoutReq("160"))
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, VerifyRequest{UserID: "u2", OrderID: "o1", ProviderOrderID: "order_P1", PaymentID: "p", Signature: "good"})
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestVerify_ProviderOrderMismatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.CreateOnlineOrder(ctx, checkoutReq("160"))
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, VerifyRequest{UserID: "u1", OrderID: "o1", ProviderOrderID: "order_X", PaymentID: "p", Signature: "good"})
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestPlaceCOD_CartClearFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	f.carts.err = errors.New("db down")

	o, err := f.svc.PlaceCOD(context.Background(), checkoutReq("160"))
	require.NoError(t, err)
	assert.Equal(t, "o1", o.ID)
}
