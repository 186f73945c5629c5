package wire

import (
	"github.com/go-faster/jx"

	"github.com/xenking/nursery-kart/internal/domain/address"
	"github.com/xenking/nursery-kart/internal/domain/product"
)

// EncodeProduct writes a catalog entry.
func EncodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	optStr(e, "slug", p.Slug)
	e.FieldStart("name")
	e.Str(p.Name)
	optStr(e, "description", p.Description)
	optStr(e, "category", p.Category)
	optStr(e, "type", p.Type)
	e.FieldStart("price")
	encodeDecimal(e, p.Price)
	e.FieldStart("discountPrice")
	encodeNullDecimal(e, p.DiscountPrice)
	e.FieldStart("images")
	e.ArrStart()
	for _, img := range p.Images {
		e.Str(img)
	}
	e.ArrEnd()
	e.ObjEnd()
}

// DecodeProduct reads a catalog entry; id, name and price are required.
func DecodeProduct(d *jx.Decoder) (product.Product, error) {
	var p product.Product
	req := need("id", "name", "price")
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "slug":
			p.Slug, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "category":
			p.Category, err = d.Str()
		case "type":
			p.Type, err = d.Str()
		case "price":
			p.Price, err = decodeDecimal(d)
		case "discountPrice":
			p.DiscountPrice, err = decodeNullDecimal(d)
		case "images":
			p.Images, err = decodeStrings(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return invalid("product", key, err)
		}
		req[key] = true
		return nil
	})
	if err != nil {
		return product.Product{}, err
	}
	return p, req.check("product")
}

// EncodeProducts writes an array of products.
func EncodeProducts(e *jx.Encoder, list []product.Product) {
	e.ArrStart()
	for _, p := range list {
		EncodeProduct(e, p)
	}
	e.ArrEnd()
}

// EncodeAddress writes one address.
func EncodeAddress(e *jx.Encoder, a address.Address) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(a.ID)
	optStr(e, "label", a.Label)
	e.FieldStart("name")
	e.Str(a.Name)
	e.FieldStart("line1")
	e.Str(a.Line1)
	e.FieldStart("city")
	e.Str(a.City)
	optStr(e, "state", a.State)
	e.FieldStart("pincode")
	e.Str(a.Pincode)
	e.FieldStart("phone")
	e.Str(a.Phone)
	e.ObjEnd()
}

// DecodeAddress reads one address. "zip" is accepted as an alias of
// "pincode". Field presence is checked by address.Validate, not here.
func DecodeAddress(d *jx.Decoder) (address.Address, error) {
	var a address.Address
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			a.ID, err = d.Str()
		case "label":
			a.Label, err = d.Str()
		case "name":
			a.Name, err = d.Str()
		case "line1":
			a.Line1, err = d.Str()
		case "city":
			a.City, err = d.Str()
		case "state":
			a.State, err = d.Str()
		case "pincode", "zip":
			a.Pincode, err = d.Str()
		case "phone":
			a.Phone, err = d.Str()
		default:
			return d.Skip()
		}
		if err != nil {
			return invalid("address", key, err)
		}
		return nil
	})
	return a, err
}

// EncodeAddresses writes an address book.
func EncodeAddresses(e *jx.Encoder, list []address.Address) {
	e.ArrStart()
	for _, a := range list {
		EncodeAddress(e, a)
	}
	e.ArrEnd()
}

// DecodeAddresses reads an address book.
func DecodeAddresses(d *jx.Decoder) ([]address.Address, error) {
	if d.Next() != jx.Array {
		return nil, invalid("addresses", "", errExpectedArray)
	}
	list := []address.Address{}
	err := d.Arr(func(d *jx.Decoder) error {
		a, err := DecodeAddress(d)
		if err != nil {
			return err
		}
		list = append(list, a)
		return nil
	})
	return list, err
}

// DecodeProducts reads an array of products.
func DecodeProducts(d *jx.Decoder) ([]product.Product, error) {
	if d.Next() != jx.Array {
		return nil, invalid("products", "", errExpectedArray)
	}
	list := []product.Product{}
	err := d.Arr(func(d *jx.Decoder) error {
		p, err := DecodeProduct(d)
		if err != nil {
			return err
		}
		list = append(list, p)
		return nil
	})
	return list, err
}
