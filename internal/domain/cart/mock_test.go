package cart

import (
	"context"
	"slices"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/nursery-kart/internal/domain/product"
)

// --- Mock implementations ---

// mockBackend is an in-memory cart server with idempotency keys, a call log
// and per-call failure injection.
type mockBackend struct {
	mu      sync.Mutex
	items   []Item
	applied map[string]bool
	calls   []string
	// failOn returns an error for the named call ("get", "add:<id>",
	// "update:<id>", "remove:<id>") when non-nil.
	failOn func(call string) error
	// block, when set, is waited on inside UpdateItem.
	block chan struct{}
}

func newMockBackend(items ...Item) *mockBackend {
	return &mockBackend{items: items, applied: make(map[string]bool)}
}

func (m *mockBackend) record(call string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	if m.failOn != nil {
		return m.failOn(call)
	}
	return nil
}

func (m *mockBackend) snapshot(userID string) *Cart {
	return &Cart{UserID: userID, Items: slices.Clone(m.items)}
}

func (m *mockBackend) seen(key string) bool {
	if key == "" {
		return false
	}
	if m.applied[key] {
		return true
	}
	m.applied[key] = true
	return false
}

func (m *mockBackend) GetCart(_ context.Context, userID string) (*Cart, error) {
	if err := m.record("get"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot(userID), nil
}

func (m *mockBackend) AddItem(_ context.Context, userID string, req AddRequest) (*Cart, error) {
	if err := m.record("add:" + req.ProductID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen(req.IdempotencyKey) {
		return m.snapshot(userID), nil
	}
	for i := range m.items {
		if m.items[i].ProductID == req.ProductID {
			m.items[i].Quantity += req.Quantity
			return m.snapshot(userID), nil
		}
	}
	m.items = append(m.items, Item{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		UnitPrice: dec("10"),
		Options:   req.Options,
	})
	return m.snapshot(userID), nil
}

func (m *mockBackend) UpdateItem(_ context.Context, userID, productID string, quantity int, key string) (*Cart, error) {
	if m.block != nil {
		<-m.block
	}
	if err := m.record("update:" + productID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen(key) {
		return m.snapshot(userID), nil
	}
	for i := range m.items {
		if m.items[i].ProductID == productID {
			m.items[i].Quantity = quantity
			return m.snapshot(userID), nil
		}
	}
	return nil, &ItemNotFoundError{ProductID: productID}
}

func (m *mockBackend) RemoveItem(_ context.Context, userID, productID string) (*Cart, error) {
	if err := m.record("remove:" + productID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = slices.DeleteFunc(m.items, func(it Item) bool { return it.ProductID == productID })
	return m.snapshot(userID), nil
}

func (m *mockBackend) quantities() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&Cart{Items: m.items}).Quantities()
}

func (m *mockBackend) callLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

type mockGuestStore struct {
	cart     GuestCart
	saveErr  error
	clearErr error
	cleared  bool
}

func (m *mockGuestStore) Load(_ context.Context) (GuestCart, error) {
	return GuestCart{MergeID: m.cart.MergeID, Items: slices.Clone(m.cart.Items)}, nil
}

func (m *mockGuestStore) Save(_ context.Context, c GuestCart) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.cart = c
	return nil
}

func (m *mockGuestStore) Clear(_ context.Context) error {
	if m.clearErr != nil {
		return m.clearErr
	}
	m.cart = GuestCart{}
	m.cleared = true
	return nil
}

type mockProductRepo struct {
	byID map[string]product.Product
}

func newProductRepo(ids ...string) *mockProductRepo {
	m := &mockProductRepo{byID: make(map[string]product.Product, len(ids))}
	for _, id := range ids {
		m.byID[id] = product.Product{ID: id, Name: "Plant " + id, Price: dec("100")}
	}
	return m
}

func (m *mockProductRepo) List(_ context.Context, _ product.Filter) ([]product.Product, error) {
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

func (m *mockProductRepo) Upsert(_ context.Context, p product.Product) error {
	m.byID[p.ID] = p
	return nil
}

// mockStore is an in-memory Store.
type mockStore struct {
	carts   map[string][]Item
	applied map[string]bool
	getErr  error
}

func newMockStore() *mockStore {
	return &mockStore{carts: make(map[string][]Item), applied: make(map[string]bool)}
}

func (m *mockStore) once(key string) bool {
	if key == "" {
		return true
	}
	if m.applied[key] {
		return false
	}
	m.applied[key] = true
	return true
}

func (m *mockStore) Get(_ context.Context, userID string) (*Cart, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return &Cart{UserID: userID, Items: slices.Clone(m.carts[userID])}, nil
}

func (m *mockStore) Add(_ context.Context, userID string, req AddRequest) error {
	if !m.once(req.IdempotencyKey) {
		return nil
	}
	items := m.carts[userID]
	for i := range items {
		if items[i].ProductID == req.ProductID {
			items[i].Quantity += req.Quantity
			return nil
		}
	}
	m.carts[userID] = append(items, Item{ProductID: req.ProductID, Quantity: req.Quantity, UnitPrice: dec("100"), Options: req.Options})
	return nil
}

func (m *mockStore) SetQuantity(_ context.Context, userID, productID string, quantity int, key string) error {
	if !m.once(key) {
		return nil
	}
	items := m.carts[userID]
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity = quantity
			return nil
		}
	}
	return &ItemNotFoundError{ProductID: productID}
}

func (m *mockStore) Remove(_ context.Context, userID, productID string) error {
	m.carts[userID] = slices.DeleteFunc(m.carts[userID], func(it Item) bool { return it.ProductID == productID })
	return nil
}

func (m *mockStore) Clear(_ context.Context, userID string) error {
	delete(m.carts, userID)
	return nil
}

var errBoom = errors.New("boom")
