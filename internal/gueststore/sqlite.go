package gueststore

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	_ "modernc.org/sqlite"

	"github.com/xenking/nursery-kart/internal/domain/cart"
	"github.com/xenking/nursery-kart/internal/wire"
)

const (
	sqliteSchema = `
CREATE TABLE IF NOT EXISTS guest_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS guest_items (
	position   INTEGER PRIMARY KEY,
	product_id TEXT    NOT NULL,
	quantity   INTEGER NOT NULL CHECK (quantity > 0),
	options    TEXT    NOT NULL DEFAULT '{}',
	merge_key  TEXT    NOT NULL DEFAULT ''
);`

	selectMergeIDSQL = `SELECT value FROM guest_meta WHERE key = 'merge_id'`
	selectItemsSQL   = `SELECT product_id, quantity, options, merge_key FROM guest_items ORDER BY position`
	upsertMergeIDSQL = `INSERT INTO guest_meta (key, value) VALUES ('merge_id', ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`
	deleteMergeIDSQL = `DELETE FROM guest_meta WHERE key = 'merge_id'`
	deleteItemsSQL   = `DELETE FROM guest_items`
	insertItemSQL    = `INSERT INTO guest_items (position, product_id, quantity, options, merge_key) VALUES (?, ?, ?, ?, ?)`
)

var _ cart.GuestStore = (*SQLite)(nil)

// SQLite keeps the guest cart in a local database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the store at path. Use ":memory:" for
// a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// One writer; also keeps a ":memory:" database on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create schema")
	}
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Load implements cart.GuestStore.
func (s *SQLite) Load(ctx context.Context) (cart.GuestCart, error) {
	var g cart.GuestCart
	err := s.db.QueryRowContext(ctx, selectMergeIDSQL).Scan(&g.MergeID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return cart.GuestCart{}, errors.Wrap(err, "select merge id")
	}

	rows, err := s.db.QueryContext(ctx, selectItemsSQL)
	if err != nil {
		return cart.GuestCart{}, errors.Wrap(err, "select items")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			it      cart.GuestItem
			options string
		)
		if err := rows.Scan(&it.ProductID, &it.Quantity, &options, &it.MergeKey); err != nil {
			return cart.GuestCart{}, errors.Wrap(err, "scan item")
		}
		if it.Options, err = decodeOptions(options); err != nil {
			return cart.GuestCart{}, errors.Wrapf(err, "decode options of %s", it.ProductID)
		}
		g.Items = append(g.Items, it)
	}
	if err := rows.Err(); err != nil {
		return cart.GuestCart{}, errors.Wrap(err, "iterate items")
	}
	return g, nil
}

// Save implements cart.GuestStore. The whole cart is replaced atomically.
func (s *SQLite) Save(ctx context.Context, g cart.GuestCart) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if g.MergeID != "" {
			if _, err := tx.ExecContext(ctx, upsertMergeIDSQL, g.MergeID); err != nil {
				return errors.Wrap(err, "save merge id")
			}
		} else if _, err := tx.ExecContext(ctx, deleteMergeIDSQL); err != nil {
			return errors.Wrap(err, "delete merge id")
		}
		if _, err := tx.ExecContext(ctx, deleteItemsSQL); err != nil {
			return errors.Wrap(err, "delete items")
		}
		for i, it := range g.Items {
			if _, err := tx.ExecContext(ctx, insertItemSQL, i, it.ProductID, it.Quantity, encodeOptions(it.Options), it.MergeKey); err != nil {
				return errors.Wrapf(err, "insert %s", it.ProductID)
			}
		}
		return nil
	})
}

// Clear implements cart.GuestStore.
func (s *SQLite) Clear(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, deleteMergeIDSQL); err != nil {
			return errors.Wrap(err, "delete merge id")
		}
		if _, err := tx.ExecContext(ctx, deleteItemsSQL); err != nil {
			return errors.Wrap(err, "delete items")
		}
		return nil
	})
}

func (s *SQLite) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit")
}

func encodeOptions(o cart.Options) string {
	var e jx.Encoder
	wire.EncodeOptions(&e, o)
	return e.String()
}

func decodeOptions(s string) (cart.Options, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return wire.DecodeOptions(jx.DecodeStr(s))
}
