package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/nursery-kart/internal/domain/address"
)

const (
	listAddressesSQL = `SELECT id, label, name, line1, city, state, pincode, phone
		FROM addresses WHERE user_id = $1 ORDER BY position`

	deleteAddressesSQL = `DELETE FROM addresses WHERE user_id = $1`

	insertAddressSQL = `INSERT INTO addresses (user_id, id, position, label, name, line1, city, state, pincode, phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
)

var _ address.Repository = (*AddressRepository)(nil)

// AddressRepository implements address.Repository backed by PostgreSQL.
type AddressRepository struct {
	pool *pgxpool.Pool
}

// NewAddressRepository returns an AddressRepository that uses the given pool.
func NewAddressRepository(pool *pgxpool.Pool) *AddressRepository {
	return &AddressRepository{pool: pool}
}

// List returns the user's address book in saved order.
func (r *AddressRepository) List(ctx context.Context, userID string) ([]address.Address, error) {
	rows, err := r.pool.Query(ctx, listAddressesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing addresses of %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (address.Address, error) {
		var a address.Address
		err := row.Scan(&a.ID, &a.Label, &a.Name, &a.Line1, &a.City, &a.State, &a.Pincode, &a.Phone)
		return a, err
	})
}

// Replace swaps the address book in one transaction. Addresses without an
// id get a fresh one.
func (r *AddressRepository) Replace(ctx context.Context, userID string, addrs []address.Address) ([]address.Address, error) {
	out := make([]address.Address, len(addrs))
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, deleteAddressesSQL, userID); err != nil {
			return fmt.Errorf("deleting addresses of %q: %w", userID, err)
		}
		batch := &pgx.Batch{}
		for i, a := range addrs {
			if a.ID == "" {
				a.ID = uuid.NewString()
			}
			out[i] = a
			batch.Queue(insertAddressSQL, userID, a.ID, i, a.Label, a.Name, a.Line1, a.City, a.State, a.Pincode, a.Phone)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting addresses of %q: %w", userID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
