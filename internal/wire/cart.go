package wire

import (
	"github.com/go-faster/jx"

	"github.com/xenking/nursery-kart/internal/domain/cart"
)

// EncodeItem writes a cart or order line.
func EncodeItem(e *jx.Encoder, it cart.Item) {
	e.ObjStart()
	e.FieldStart("productId")
	e.Str(it.ProductID)
	optStr(e, "name", it.Name)
	e.FieldStart("quantity")
	e.Int(it.Quantity)
	e.FieldStart("price")
	encodeDecimal(e, it.UnitPrice)
	e.FieldStart("discountPrice")
	encodeNullDecimal(e, it.DiscountPrice)
	if len(it.Options) > 0 {
		e.FieldStart("options")
		encodeStringMap(e, it.Options)
	}
	e.ObjEnd()
}

// DecodeItem reads a priced line; productId, quantity and price are required.
func DecodeItem(d *jx.Decoder) (cart.Item, error) {
	var it cart.Item
	req := need("productId", "quantity", "price")
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			it.ProductID, err = d.Str()
		case "name":
			it.Name, err = d.Str()
		case "quantity":
			it.Quantity, err = d.Int()
		case "price":
			it.UnitPrice, err = decodeDecimal(d)
		case "discountPrice":
			it.DiscountPrice, err = decodeNullDecimal(d)
		case "options":
			it.Options, err = decodeStringMap(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return invalid("item", key, err)
		}
		req[key] = true
		return nil
	})
	if err != nil {
		return cart.Item{}, err
	}
	return it, req.check("item")
}

func decodeItems(d *jx.Decoder, object string) ([]cart.Item, error) {
	if d.Next() != jx.Array {
		return nil, invalid(object, "items", errExpectedArray)
	}
	items := []cart.Item{}
	err := d.Arr(func(d *jx.Decoder) error {
		it, err := DecodeItem(d)
		if err != nil {
			return err
		}
		items = append(items, it)
		return nil
	})
	return items, err
}

// EncodeCart writes a cart with its computed total.
func EncodeCart(e *jx.Encoder, c *cart.Cart) {
	e.ObjStart()
	e.FieldStart("userId")
	e.Str(c.UserID)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range c.Items {
		EncodeItem(e, it)
	}
	e.ArrEnd()
	e.FieldStart("total")
	encodeDecimal(e, cart.ComputeTotal(c.Items))
	e.ObjEnd()
}

// DecodeCart reads a cart. A response without an items array is an error.
func DecodeCart(d *jx.Decoder) (*cart.Cart, error) {
	c := &cart.Cart{}
	req := need("items")
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "userId":
			v, err := d.Str()
			if err != nil {
				return invalid("cart", key, err)
			}
			c.UserID = v
		case "items":
			items, err := decodeItems(d, "cart")
			if err != nil {
				return err
			}
			c.Items = items
			req[key] = true
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, req.check("cart")
}

// EncodeAddRequest writes the add-to-cart body.
func EncodeAddRequest(e *jx.Encoder, r cart.AddRequest) {
	e.ObjStart()
	e.FieldStart("productId")
	e.Str(r.ProductID)
	e.FieldStart("quantity")
	e.Int(r.Quantity)
	if len(r.Options) > 0 {
		e.FieldStart("options")
		encodeStringMap(e, r.Options)
	}
	e.ObjEnd()
}

// DecodeAddRequest reads the add-to-cart body. The idempotency key travels
// in a header and is not part of it.
func DecodeAddRequest(d *jx.Decoder) (cart.AddRequest, error) {
	var r cart.AddRequest
	req := need("productId", "quantity")
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			r.ProductID, err = d.Str()
		case "quantity":
			r.Quantity, err = d.Int()
		case "options":
			r.Options, err = decodeStringMap(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return invalid("addItem", key, err)
		}
		req[key] = true
		return nil
	})
	if err != nil {
		return cart.AddRequest{}, err
	}
	return r, req.check("addItem")
}

// EncodeQuantity writes {"quantity": n}.
func EncodeQuantity(e *jx.Encoder, qty int) {
	e.ObjStart()
	e.FieldStart("quantity")
	e.Int(qty)
	e.ObjEnd()
}

// DecodeQuantity reads {"quantity": n}.
func DecodeQuantity(d *jx.Decoder) (int, error) {
	var (
		qty  int
		seen bool
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		v, err := d.Int()
		if err != nil {
			return invalid("updateItem", key, err)
		}
		qty, seen = v, true
		return nil
	})
	if err != nil {
		return 0, err
	}
	if !seen {
		return 0, missing("updateItem", "quantity")
	}
	return qty, nil
}

// EncodeItems writes a bare array of lines.
func EncodeItems(e *jx.Encoder, items []cart.Item) {
	e.ArrStart()
	for _, it := range items {
		EncodeItem(e, it)
	}
	e.ArrEnd()
}

// DecodeItems reads a bare array of lines.
func DecodeItems(d *jx.Decoder) ([]cart.Item, error) {
	return decodeItems(d, "items")
}

// EncodeOptions writes line options as an object.
func EncodeOptions(e *jx.Encoder, o cart.Options) {
	encodeStringMap(e, o)
}

// DecodeOptions reads line options. An empty object yields nil.
func DecodeOptions(d *jx.Decoder) (cart.Options, error) {
	m, err := decodeStringMap(d)
	if err != nil || len(m) == 0 {
		return nil, err
	}
	return m, nil
}
