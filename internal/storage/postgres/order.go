package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/nursery-kart/internal/domain/order"
	"github.com/xenking/nursery-kart/internal/wire"
)

const (
	orderColumns = `id, user_id, items, total_amount, status, payment_method, address_id,
		provider_order_id, provider_payment_id, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC, id`

	listOrdersSinceSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE created_at >= $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id`

	updateOrderStatusSQL = `UPDATE orders SET
			status = $3,
			provider_payment_id = CASE WHEN $4 = '' THEN provider_payment_id ELSE $4 END,
			updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING ` + orderColumns
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Order
// lines are stored as a JSONB snapshot of the checked-out cart.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	var items jx.Encoder
	wire.EncodeItems(&items, o.Items)

	_, err := r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, items.Bytes(), o.TotalAmount, string(o.Status), string(o.PaymentMethod),
		o.AddressID, o.ProviderOrderID, o.ProviderPaymentID, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns the order with id or order.ErrNotFound.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ListSince returns orders created at or after since, newest first.
func (r *OrderRepository) ListSince(ctx context.Context, since time.Time, status order.Status) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSinceSQL, since, string(status))
	if err != nil {
		return nil, fmt.Errorf("listing orders since %s: %w", since.Format(time.DateOnly), err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// UpdateStatus compares and swaps the order status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, u order.StatusUpdate) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, updateOrderStatusSQL, id, string(u.From), string(u.To), u.ProviderPaymentID)
	if err != nil {
		return nil, fmt.Errorf("updating order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err == nil {
		return &o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("updating order %q: %w", id, err)
	}
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	return nil, order.ErrStatusConflict
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		items         []byte
		status        string
		paymentMethod string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &items, &o.TotalAmount, &status, &paymentMethod, &o.AddressID,
		&o.ProviderOrderID, &o.ProviderPaymentID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return order.Order{}, err
	}
	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(paymentMethod)
	if o.Items, err = wire.DecodeItems(jx.DecodeBytes(items)); err != nil {
		return order.Order{}, fmt.Errorf("decoding items of order %q: %w", o.ID, err)
	}
	return o, nil
}
