package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// MergeReport summarizes a successful guest cart merge.
type MergeReport struct {
	MergeID string
	// Updated lists products whose server quantity was increased.
	Updated []string
	// Added lists products that were new to the server cart.
	Added []string
	// Cart is the server cart after the last mutation.
	Cart *Cart
}

// Reconciler folds a guest cart into the signed-in user's server cart.
type Reconciler struct {
	backend Backend
	guest   GuestStore
	newID   func() string
}

// NewReconciler creates a Reconciler over the given backend and guest store.
func NewReconciler(backend Backend, guest GuestStore) *Reconciler {
	return &Reconciler{
		backend: backend,
		guest:   guest,
		newID:   func() string { return uuid.New().String() },
	}
}

// MergeKey is the idempotency key of the mutation a merge issues for one product.
func MergeKey(mergeID, productID string) string {
	return "merge:" + mergeID + ":" + productID
}

// Merge sums guest quantities into the server cart: products already on the
// server get server+guest, new products are added with the guest quantity.
//
// Before the first server call every unpinned line gets the key
// MergeKey(MergeID, productID) of a fresh MergeID, and the guest cart is
// saved. The guest cart is cleared only after every mutation succeeded. On
// failure it is kept with its keys; mutations already applied are not rolled
// back, and a later Merge replays them under the same keys, which the server
// skips. Lines added after the failure get a new MergeID on the next attempt.
func (r *Reconciler) Merge(ctx context.Context, userID string) (*MergeReport, error) {
	if userID == "" {
		return nil, ErrNoIdentity
	}

	g, err := r.guest.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load guest cart")
	}
	if g.Empty() {
		return &MergeReport{MergeID: g.MergeID}, nil
	}

	// Pin keys before talking to the server.
	if g.Unpinned() {
		g.MergeID = r.newID()
		for i := range g.Items {
			if g.Items[i].MergeKey == "" {
				g.Items[i].MergeKey = MergeKey(g.MergeID, g.Items[i].ProductID)
			}
		}
		g.Items = Coalesce(g.Items)
		if err := r.guest.Save(ctx, g); err != nil {
			return nil, errors.Wrap(err, "save merge keys")
		}
	}

	server, err := r.backend.GetCart(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get server cart")
	}
	existing := server.Quantities()

	report := &MergeReport{MergeID: g.MergeID, Cart: server}
	for _, it := range g.Items {
		if it.Quantity < 1 {
			continue
		}

		var next *Cart
		if qty, ok := existing[it.ProductID]; ok {
			next, err = r.backend.UpdateItem(ctx, userID, it.ProductID, qty+it.Quantity, it.MergeKey)
			if err != nil {
				return nil, errors.Wrapf(err, "update %s", it.ProductID)
			}
			report.Updated = append(report.Updated, it.ProductID)
		} else {
			next, err = r.backend.AddItem(ctx, userID, AddRequest{
				ProductID:      it.ProductID,
				Quantity:       it.Quantity,
				Options:        it.Options,
				IdempotencyKey: it.MergeKey,
			})
			if err != nil {
				return nil, errors.Wrapf(err, "add %s", it.ProductID)
			}
			report.Added = append(report.Added, it.ProductID)
		}
		if next != nil {
			report.Cart = next
			// A replayed key leaves the server unchanged; the next line of the
			// same product builds on what the server actually holds.
			existing = next.Quantities()
		}
	}

	if err := r.guest.Clear(ctx); err != nil {
		return nil, errors.Wrap(err, "clear guest cart")
	}
	return report, nil
}
