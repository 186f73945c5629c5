package main

import (
	"context"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/nursery-kart/internal/client"
	"github.com/xenking/nursery-kart/internal/domain/cart"
	"github.com/xenking/nursery-kart/internal/domain/checkout"
	"github.com/xenking/nursery-kart/internal/domain/product"
	"github.com/xenking/nursery-kart/internal/wire"
)

// shop is what every command runs against.
type shop struct {
	api    *client.Client
	guest  cart.GuestStore
	userID string
	out    io.Writer
}

type command struct {
	help string
	run  func(ctx context.Context, s *shop, args []string) error
}

var commands = map[string]command{
	"products":        {"[search] list the catalog", listProducts},
	"guest-add":       {"<product> <qty> [key=value...] add to the guest cart", guestAdd},
	"merge":           {"fold the guest cart into the signed-in cart", merge},
	"cart":            {"show the cart and its total", showCart},
	"inc":             {"<product> raise a line by one", inc},
	"dec":             {"<product> lower a line by one, not below one", dec},
	"rm":              {"<product> remove a line", remove},
	"addresses":       {"list saved delivery addresses", addresses},
	"checkout-cod":    {"[address] place a cash-on-delivery order", checkoutCOD},
	"checkout-online": {"[address] open an online payment", checkoutOnline},
	"confirm":         {"<order> <provider-order> <payment> <signature> confirm an online payment", confirm},
	"orders":          {"list placed orders", orders},
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (s *shop) print(fn func(e *jx.Encoder)) error {
	var e jx.Encoder
	fn(&e)
	_, err := s.out.Write(append(e.Bytes(), '\n'))
	return err
}

func needArgs(args []string, n int, what string) error {
	if len(args) < n {
		return errors.Errorf("missing %s", what)
	}
	return nil
}

func listProducts(ctx context.Context, s *shop, args []string) error {
	var f product.Filter
	if len(args) > 0 {
		f.Search = strings.Join(args, " ")
	}
	list, err := s.api.Products(ctx, f)
	if err != nil {
		return err
	}
	return s.print(func(e *jx.Encoder) { wire.EncodeProducts(e, list) })
}

func guestAdd(ctx context.Context, s *shop, args []string) error {
	if err := needArgs(args, 2, "product and quantity"); err != nil {
		return err
	}
	qty, err := strconv.Atoi(args[1])
	if err != nil {
		return errors.Wrap(err, "parse quantity")
	}
	item := cart.GuestItem{ProductID: args[0], Quantity: qty}
	for _, kv := range args[2:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return errors.Errorf("option %q is not key=value", kv)
		}
		if item.Options == nil {
			item.Options = cart.Options{}
		}
		item.Options[k] = v
	}

	g, err := cart.AddToGuest(ctx, s.guest, item)
	if err != nil {
		return err
	}
	return s.print(func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("items")
		e.ArrStart()
		for _, it := range g.Items {
			e.ObjStart()
			e.FieldStart("productId")
			e.Str(it.ProductID)
			e.FieldStart("quantity")
			e.Int(it.Quantity)
			e.FieldStart("options")
			wire.EncodeOptions(e, it.Options)
			e.ObjEnd()
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}

func merge(ctx context.Context, s *shop, _ []string) error {
	report, err := cart.NewReconciler(s.api, s.guest).Merge(ctx, s.userID)
	if err != nil {
		return err
	}
	zctx.From(ctx).Info("Guest cart merged",
		zap.String("merge_id", report.MergeID),
		zap.Strings("added", report.Added),
		zap.Strings("updated", report.Updated),
	)
	if report.Cart == nil {
		return showCart(ctx, s, nil)
	}
	return s.print(func(e *jx.Encoder) { wire.EncodeCart(e, report.Cart) })
}

func (s *shop) editor(ctx context.Context) (*cart.LineEditor, error) {
	ed := cart.NewLineEditor(s.api, s.userID)
	if err := ed.Load(ctx); err != nil {
		return nil, err
	}
	return ed, nil
}

func (s *shop) printView(ed *cart.LineEditor) error {
	return s.print(func(e *jx.Encoder) {
		wire.EncodeCart(e, &cart.Cart{UserID: s.userID, Items: ed.Items()})
	})
}

func showCart(ctx context.Context, s *shop, _ []string) error {
	ed, err := s.editor(ctx)
	if err != nil {
		return err
	}
	return s.printView(ed)
}

func step(fn func(ed *cart.LineEditor, ctx context.Context, productID string) (cart.Item, error)) func(context.Context, *shop, []string) error {
	return func(ctx context.Context, s *shop, args []string) error {
		if err := needArgs(args, 1, "product"); err != nil {
			return err
		}
		ed, err := s.editor(ctx)
		if err != nil {
			return err
		}
		if _, err := fn(ed, ctx, args[0]); err != nil {
			return err
		}
		return s.printView(ed)
	}
}

var (
	inc = step((*cart.LineEditor).Increment)
	dec = step((*cart.LineEditor).Decrement)
)

func remove(ctx context.Context, s *shop, args []string) error {
	if err := needArgs(args, 1, "product"); err != nil {
		return err
	}
	ed, err := s.editor(ctx)
	if err != nil {
		return err
	}
	if err := ed.Remove(ctx, args[0]); err != nil {
		return err
	}
	return s.printView(ed)
}

func addresses(ctx context.Context, s *shop, _ []string) error {
	list, err := s.api.Addresses(ctx, s.userID)
	if err != nil {
		return err
	}
	return s.print(func(e *jx.Encoder) { wire.EncodeAddresses(e, list) })
}

// prepare snapshots the server cart and resolves the delivery address.
func (s *shop) prepare(ctx context.Context, args []string) (checkout.Snapshot, string, error) {
	ed, err := s.editor(ctx)
	if err != nil {
		return checkout.Snapshot{}, "", err
	}
	addrs, err := s.api.Addresses(ctx, s.userID)
	if err != nil {
		return checkout.Snapshot{}, "", errors.Wrap(err, "load addresses")
	}
	var want string
	if len(args) > 0 {
		want = args[0]
	}
	a, err := checkout.SelectAddress(addrs, want)
	if err != nil {
		return checkout.Snapshot{}, "", err
	}
	return checkout.NewSnapshot(s.userID, ed.Items()), a.ID, nil
}

func checkoutCOD(ctx context.Context, s *shop, args []string) error {
	snap, addressID, err := s.prepare(ctx, args)
	if err != nil {
		return err
	}
	o, err := checkout.NewService(s.api).PlaceCOD(ctx, snap, addressID)
	if err != nil {
		return err
	}
	return s.print(func(e *jx.Encoder) { wire.EncodeOrder(e, o) })
}

func checkoutOnline(ctx context.Context, s *shop, args []string) error {
	snap, addressID, err := s.prepare(ctx, args)
	if err != nil {
		return err
	}
	p, err := checkout.NewService(s.api).StartOnline(ctx, snap, addressID)
	if err != nil {
		return err
	}
	return s.print(func(e *jx.Encoder) { wire.EncodePaymentOrder(e, p.Order) })
}

// confirm rebuilds the pending payment from the server cart, which stays
// untouched until the payment is verified.
func confirm(ctx context.Context, s *shop, args []string) error {
	if err := needArgs(args, 4, "order, provider order, payment and signature"); err != nil {
		return err
	}
	ed, err := s.editor(ctx)
	if err != nil {
		return err
	}
	pending := &checkout.PendingPayment{
		Snapshot: checkout.NewSnapshot(s.userID, ed.Items()),
		Order:    checkout.PaymentOrder{OrderID: args[0], ProviderOrderID: args[1]},
	}
	o, err := checkout.NewService(s.api).ConfirmOnline(ctx, pending, checkout.ProviderCallback{
		ProviderOrderID: args[1],
		PaymentID:       args[2],
		Signature:       args[3],
	})
	if err != nil {
		return err
	}
	return s.print(func(e *jx.Encoder) { wire.EncodeOrder(e, o) })
}

func orders(ctx context.Context, s *shop, _ []string) error {
	list, err := s.api.Orders(ctx, s.userID)
	if err != nil {
		return err
	}
	return s.print(func(e *jx.Encoder) { wire.EncodeOrders(e, list) })
}
