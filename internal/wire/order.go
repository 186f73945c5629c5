package wire

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/nursery-kart/internal/domain/checkout"
	"github.com/xenking/nursery-kart/internal/domain/order"
)

var errExpectedArray = errors.New("expected array")

// EncodeOrder writes an order.
func EncodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("userId")
	e.Str(o.UserID)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		EncodeItem(e, it)
	}
	e.ArrEnd()
	e.FieldStart("totalAmount")
	encodeDecimal(e, o.TotalAmount)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("paymentMethod")
	e.Str(string(o.PaymentMethod))
	optStr(e, "addressId", o.AddressID)
	optStr(e, "providerOrderId", o.ProviderOrderID)
	optStr(e, "providerPaymentId", o.ProviderPaymentID)
	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, o.UpdatedAt)
	e.ObjEnd()
}

// DecodeOrder reads an order; id, items, totalAmount and status are required.
func DecodeOrder(d *jx.Decoder) (*order.Order, error) {
	o := &order.Order{}
	req := need("id", "items", "totalAmount", "status")
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			o.ID, err = d.Str()
		case "userId":
			o.UserID, err = d.Str()
		case "items":
			o.Items, err = decodeItems(d, "order")
			if err != nil {
				return err
			}
		case "totalAmount":
			o.TotalAmount, err = decodeDecimal(d)
		case "status":
			var s string
			s, err = d.Str()
			o.Status = order.Status(s)
		case "paymentMethod":
			var s string
			s, err = d.Str()
			o.PaymentMethod = order.PaymentMethod(s)
		case "addressId":
			o.AddressID, err = d.Str()
		case "providerOrderId":
			o.ProviderOrderID, err = d.Str()
		case "providerPaymentId":
			o.ProviderPaymentID, err = d.Str()
		case "createdAt":
			o.CreatedAt, err = decodeTime(d)
		case "updatedAt":
			o.UpdatedAt, err = decodeTime(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return invalid("order", key, err)
		}
		req[key] = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := req.check("order"); err != nil {
		return nil, err
	}
	if !o.Status.Valid() {
		return nil, invalid("order", "status", errors.Errorf("unknown status %q", o.Status))
	}
	return o, nil
}

// EncodeOrders writes an array of orders.
func EncodeOrders(e *jx.Encoder, list []order.Order) {
	e.ArrStart()
	for i := range list {
		EncodeOrder(e, &list[i])
	}
	e.ArrEnd()
}

// DecodeOrders reads an array of orders.
func DecodeOrders(d *jx.Decoder) ([]order.Order, error) {
	if d.Next() != jx.Array {
		return nil, invalid("orders", "", errExpectedArray)
	}
	list := []order.Order{}
	err := d.Arr(func(d *jx.Decoder) error {
		o, err := DecodeOrder(d)
		if err != nil {
			return err
		}
		list = append(list, *o)
		return nil
	})
	return list, err
}

// EncodeStatus writes {"status": s}.
func EncodeStatus(e *jx.Encoder, s order.Status) {
	e.ObjStart()
	e.FieldStart("status")
	e.Str(string(s))
	e.ObjEnd()
}

// DecodeStatus reads {"status": s}.
func DecodeStatus(d *jx.Decoder) (order.Status, error) {
	var s string
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		v, err := d.Str()
		if err != nil {
			return invalid("statusUpdate", key, err)
		}
		s = v
		return nil
	})
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", missing("statusUpdate", "status")
	}
	return order.Status(s), nil
}

// EncodeSubmission writes a checkout body.
func EncodeSubmission(e *jx.Encoder, s checkout.Submission) {
	e.ObjStart()
	e.FieldStart("userId")
	e.Str(s.UserID)
	optStr(e, "addressId", s.AddressID)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range s.Items {
		EncodeItem(e, it)
	}
	e.ArrEnd()
	e.FieldStart("totalAmount")
	encodeDecimal(e, s.Total)
	e.ObjEnd()
}

// DecodeSubmission reads a checkout body; userId, items and totalAmount are
// required.
func DecodeSubmission(d *jx.Decoder) (checkout.Submission, error) {
	var s checkout.Submission
	req := need("userId", "items", "totalAmount")
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "userId":
			s.UserID, err = d.Str()
		case "addressId":
			s.AddressID, err = d.Str()
		case "items":
			s.Items, err = decodeItems(d, "checkout")
			if err != nil {
				return err
			}
		case "totalAmount":
			s.Total, err = decodeDecimal(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return invalid("checkout", key, err)
		}
		req[key] = true
		return nil
	})
	if err != nil {
		return checkout.Submission{}, err
	}
	return s, req.check("checkout")
}

// EncodePaymentOrder writes the create-order response. amount is in minor
// units.
func EncodePaymentOrder(e *jx.Encoder, p checkout.PaymentOrder) {
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(p.OrderID)
	e.FieldStart("providerOrderId")
	e.Str(p.ProviderOrderID)
	e.FieldStart("amount")
	e.Int64(p.AmountMinor)
	e.FieldStart("currency")
	e.Str(p.Currency)
	e.FieldStart("keyId")
	e.Str(p.KeyID)
	e.ObjEnd()
}

// DecodePaymentOrder reads the create-order response.
func DecodePaymentOrder(d *jx.Decoder) (*checkout.PaymentOrder, error) {
	p := &checkout.PaymentOrder{}
	req := need("orderId", "providerOrderId", "amount")
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "orderId":
			p.OrderID, err = d.Str()
		case "providerOrderId":
			p.ProviderOrderID, err = d.Str()
		case "amount":
			p.AmountMinor, err = d.Int64()
		case "currency":
			p.Currency, err = d.Str()
		case "keyId":
			p.KeyID, err = d.Str()
		default:
			return d.Skip()
		}
		if err != nil {
			return invalid("paymentOrder", key, err)
		}
		req[key] = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, req.check("paymentOrder")
}

// Verification is the verify-payment body. Provider fields keep the names
// the provider's checkout widget reports.
type Verification struct {
	UserID   string
	OrderID  string
	Callback checkout.ProviderCallback
}

// Encode writes the verify-payment body.
func (v Verification) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("userId")
	e.Str(v.UserID)
	e.FieldStart("orderId")
	e.Str(v.OrderID)
	e.FieldStart("razorpay_order_id")
	e.Str(v.Callback.ProviderOrderID)
	e.FieldStart("razorpay_payment_id")
	e.Str(v.Callback.PaymentID)
	e.FieldStart("razorpay_signature")
	e.Str(v.Callback.Signature)
	e.ObjEnd()
}

// Decode reads the verify-payment body; every field is required.
func (v *Verification) Decode(d *jx.Decoder) error {
	req := need("userId", "orderId", "razorpay_order_id", "razorpay_payment_id", "razorpay_signature")
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "userId":
			v.UserID, err = d.Str()
		case "orderId":
			v.OrderID, err = d.Str()
		case "razorpay_order_id":
			v.Callback.ProviderOrderID, err = d.Str()
		case "razorpay_payment_id":
			v.Callback.PaymentID, err = d.Str()
		case "razorpay_signature":
			v.Callback.Signature, err = d.Str()
		default:
			return d.Skip()
		}
		if err != nil {
			return invalid("verification", key, err)
		}
		req[key] = true
		return nil
	})
	if err != nil {
		return err
	}
	return req.check("verification")
}
