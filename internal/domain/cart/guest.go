package cart

import (
	"context"

	"github.com/go-faster/errors"
)

// GuestItem is a line added before the shopper signed in. Prices are not
// stored; the server cart is the price authority.
type GuestItem struct {
	ProductID string
	Quantity  int
	Options   Options
	// MergeKey is the idempotency key pinned to this line by a merge attempt.
	// Empty until the line takes part in a merge.
	MergeKey string
}

// GuestCart is the client-held cart of an anonymous shopper.
type GuestCart struct {
	// MergeID identifies the latest merge attempt. It is assigned before the
	// first server call and kept until the merge succeeds.
	MergeID string
	Items   []GuestItem
}

// Empty reports whether the guest cart has no lines.
func (g GuestCart) Empty() bool {
	return len(g.Items) == 0
}

// GuestStore persists the guest cart between sessions.
type GuestStore interface {
	// Load returns the stored guest cart, or an empty one when nothing is stored.
	Load(ctx context.Context) (GuestCart, error)
	Save(ctx context.Context, c GuestCart) error
	Clear(ctx context.Context) error
}

// Unpinned reports whether some line has no merge key yet.
func (g GuestCart) Unpinned() bool {
	for _, it := range g.Items {
		if it.MergeKey == "" {
			return true
		}
	}
	return false
}

// Coalesce folds lines of the same product and merge key together, adding
// quantities and keeping the first line's options. Lines pinned by different
// merge attempts stay apart. Order of first appearance is preserved.
func Coalesce(items []GuestItem) []GuestItem {
	type lineKey struct{ product, merge string }
	idx := make(map[lineKey]int, len(items))
	out := make([]GuestItem, 0, len(items))
	for _, it := range items {
		k := lineKey{it.ProductID, it.MergeKey}
		if i, ok := idx[k]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[k] = len(out)
		out = append(out, it)
	}
	return out
}

// AddToGuest records an add-to-cart made while signed out. The new quantity
// never joins a line pinned by an earlier merge attempt.
func AddToGuest(ctx context.Context, store GuestStore, item GuestItem) (GuestCart, error) {
	if item.Quantity < 1 {
		return GuestCart{}, ErrInvalidQuantity
	}
	item.MergeKey = ""
	g, err := store.Load(ctx)
	if err != nil {
		return GuestCart{}, errors.Wrap(err, "load guest cart")
	}
	g.Items = Coalesce(append(g.Items, item))
	if err := store.Save(ctx, g); err != nil {
		return GuestCart{}, errors.Wrap(err, "save guest cart")
	}
	return g, nil
}
