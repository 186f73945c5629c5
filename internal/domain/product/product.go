package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog entry: a plant, pot, planter or accessory.
type Product struct {
	ID            string
	Slug          string
	Name          string
	Description   string
	Category      string
	Type          string
	Price         decimal.Decimal
	DiscountPrice decimal.NullDecimal
	Images        []string
}

// Filter narrows a catalog listing. Zero values mean "no constraint".
type Filter struct {
	Search   string
	Category string
	Limit    int
}

// Repository defines catalog persistence.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Upsert(ctx context.Context, p Product) error
}
