package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/nursery-kart/internal/domain/cart"
	"github.com/xenking/nursery-kart/internal/wire"
)

const (
	getCartSQL = `SELECT c.product_id, p.name, c.quantity, p.price, p.discount_price, c.options
		FROM cart_items c JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.added_at, c.product_id`

	recordMutationSQL = `INSERT INTO cart_mutations (user_id, idempotency_key)
		VALUES ($1, $2) ON CONFLICT (user_id, idempotency_key) DO NOTHING`

	addCartItemSQL = `INSERT INTO cart_items (user_id, product_id, quantity, options)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = cart_items.quantity + excluded.quantity`

	setCartItemQuantitySQL = `UPDATE cart_items SET quantity = $3 WHERE user_id = $1 AND product_id = $2`

	removeCartItemSQL = `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`

	clearCartSQL = `DELETE FROM cart_items WHERE user_id = $1`
)

var _ cart.Store = (*CartRepository)(nil)

// CartRepository implements cart.Store backed by PostgreSQL. Keyed mutations
// record their key in cart_mutations within the same transaction.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get returns the user's cart with current catalog prices.
func (r *CartRepository) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	rows, err := r.pool.Query(ctx, getCartSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("getting cart of %q: %w", userID, err)
	}
	items, err := pgx.CollectRows(rows, scanCartItem)
	if err != nil {
		return nil, fmt.Errorf("getting cart of %q: %w", userID, err)
	}
	return &cart.Cart{UserID: userID, Items: items}, nil
}

// Add inserts the line or adds to its quantity.
func (r *CartRepository) Add(ctx context.Context, userID string, req cart.AddRequest) error {
	return r.mutate(ctx, userID, req.IdempotencyKey, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, addCartItemSQL, userID, req.ProductID, req.Quantity, encodeOptions(req.Options))
		if err != nil {
			return fmt.Errorf("adding %q to cart: %w", req.ProductID, err)
		}
		return nil
	})
}

// SetQuantity sets the absolute quantity of an existing line.
func (r *CartRepository) SetQuantity(ctx context.Context, userID, productID string, quantity int, idempotencyKey string) error {
	return r.mutate(ctx, userID, idempotencyKey, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, setCartItemQuantitySQL, userID, productID, quantity)
		if err != nil {
			return fmt.Errorf("setting quantity of %q: %w", productID, err)
		}
		if tag.RowsAffected() == 0 {
			return &cart.ItemNotFoundError{ProductID: productID}
		}
		return nil
	})
}

// Remove deletes the line if present.
func (r *CartRepository) Remove(ctx context.Context, userID, productID string) error {
	if _, err := r.pool.Exec(ctx, removeCartItemSQL, userID, productID); err != nil {
		return fmt.Errorf("removing %q from cart: %w", productID, err)
	}
	return nil
}

// Clear deletes every line of the user's cart.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart of %q: %w", userID, err)
	}
	return nil
}

// mutate runs fn in a transaction. With a key, fn is skipped when the key
// was already recorded.
func (r *CartRepository) mutate(ctx context.Context, userID, key string, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if key != "" {
			tag, err := tx.Exec(ctx, recordMutationSQL, userID, key)
			if err != nil {
				return fmt.Errorf("recording mutation %q: %w", key, err)
			}
			if tag.RowsAffected() == 0 {
				return nil
			}
		}
		return fn(tx)
	})
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var (
		it      cart.Item
		options []byte
	)
	if err := row.Scan(&it.ProductID, &it.Name, &it.Quantity, &it.UnitPrice, &it.DiscountPrice, &options); err != nil {
		return cart.Item{}, err
	}
	opts, err := wire.DecodeOptions(jx.DecodeBytes(options))
	if err != nil {
		return cart.Item{}, fmt.Errorf("decoding options of %q: %w", it.ProductID, err)
	}
	it.Options = opts
	return it, nil
}

func encodeOptions(o cart.Options) []byte {
	var e jx.Encoder
	wire.EncodeOptions(&e, o)
	return e.Bytes()
}
