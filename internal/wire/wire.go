// Package wire holds the JSON codecs shared by the HTTP handlers and the
// storefront client. Decoders fail on missing required fields instead of
// defaulting them, so a malformed response never turns into an empty cart.
package wire

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// DecodeError describes a payload that could not be decoded.
type DecodeError struct {
	Object string
	Field  string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s.%s: %v", e.Object, e.Field, e.Err)
	}
	return fmt.Sprintf("decode %s: missing required field %q", e.Object, e.Field)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func missing(object, field string) error {
	return &DecodeError{Object: object, Field: field}
}

func invalid(object, field string, err error) error {
	return &DecodeError{Object: object, Field: field, Err: err}
}

// required tracks which required fields of an object were seen.
type required map[string]bool

func (r required) check(object string) error {
	for field, seen := range r {
		if !seen {
			return missing(object, field)
		}
	}
	return nil
}

func need(fields ...string) required {
	r := make(required, len(fields))
	for _, f := range fields {
		r[f] = false
	}
	return r
}

func encodeDecimal(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func encodeNullDecimal(e *jx.Encoder, d decimal.NullDecimal) {
	if !d.Valid {
		e.Null()
		return
	}
	encodeDecimal(e, d.Decimal)
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(string(n))
	default:
		return decimal.Zero, errors.Errorf("expected number, got %s", d.Next())
	}
}

func decodeNullDecimal(d *jx.Decoder) (decimal.NullDecimal, error) {
	if d.Next() == jx.Null {
		return decimal.NullDecimal{}, d.Null()
	}
	v, err := decodeDecimal(d)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(v), nil
}

func decodeStringMap(d *jx.Decoder) (map[string]string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	out := make(map[string]string)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if d.Next() != jx.String {
			// Non-string option values are dropped.
			return d.Skip()
		}
		v, err := d.Str()
		if err != nil {
			return err
		}
		out[key] = v
		return nil
	})
	return out, err
}

func encodeStringMap(e *jx.Encoder, m map[string]string) {
	e.ObjStart()
	for k, v := range m {
		e.FieldStart(k)
		e.Str(v)
	}
	e.ObjEnd()
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	out := []string{}
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func encodeTime(e *jx.Encoder, t time.Time) {
	if t.IsZero() {
		e.Null()
		return
	}
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	if d.Next() == jx.Null {
		return time.Time{}, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, s)
}

// optStr writes a string field only when it is not empty.
func optStr(e *jx.Encoder, field, v string) {
	if v == "" {
		return
	}
	e.FieldStart(field)
	e.Str(v)
}

// Error reasons shared by the server and the client.
const (
	ReasonBadRequest        = "bad_request"
	ReasonUnauthorized      = "unauthorized"
	ReasonForbidden         = "forbidden"
	ReasonNotFound          = "not_found"
	ReasonNoIdentity        = "no_identity"
	ReasonInvalidQuantity   = "invalid_quantity"
	ReasonProductNotFound   = "product_not_found"
	ReasonItemNotFound      = "item_not_found"
	ReasonEmptyItems        = "empty_items"
	ReasonAddressRequired   = "address_required"
	ReasonInvalidAddress    = "invalid_address"
	ReasonTotalMismatch     = "total_mismatch"
	ReasonInvalidSignature  = "invalid_signature"
	ReasonInvalidTransition = "invalid_transition"
	ReasonConflict          = "conflict"
	ReasonRateLimited       = "rate_limited"
	ReasonInternal          = "internal"
)

// Error is the error body every endpoint returns. Reason is a stable machine
// readable code such as "total_mismatch".
type Error struct {
	Code    int
	Reason  string
	Message string
}

// Encode writes the error object.
func (v Error) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("code")
	e.Int(v.Code)
	optStr(e, "reason", v.Reason)
	e.FieldStart("message")
	e.Str(v.Message)
	e.ObjEnd()
}

// Decode reads an error object.
func (v *Error) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			v.Code, err = d.Int()
		case "reason":
			v.Reason, err = d.Str()
		case "message":
			v.Message, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
}
