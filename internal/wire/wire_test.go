package wire

import (
	"testing"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/nursery-kart/internal/domain/cart"
	"github.com/xenking/nursery-kart/internal/domain/order"
)

func TestDecodeCart(t *testing.T) {
	c, err := DecodeCart(jx.DecodeStr(`{
		"userId": "u1",
		"items": [
			{"productId": "fern", "quantity": 2, "price": 100, "discountPrice": "80.00", "options": {"pot": "clay", "n": 1}},
			{"productId": "pot", "quantity": 1, "price": 49.99, "discountPrice": null}
		],
		"extra": {"ignored": true}
	}`))
	require.NoError(t, err)

	require.Len(t, c.Items, 2)
	assert.Equal(t, "clay", c.Items[0].Options["pot"])
	assert.NotContains(t, c.Items[0].Options, "n")
	assert.True(t, c.Items[0].DiscountPrice.Valid)
	assert.False(t, c.Items[1].DiscountPrice.Valid)
	assert.Equal(t, "209.99", cart.ComputeTotal(c.Items).StringFixed(2))
}

func TestDecodeCart_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{name: "missing items", input: `{"userId": "u1"}`, field: "items"},
		{name: "items not array", input: `{"items": null}`, field: "items"},
		{name: "item without price", input: `{"items": [{"productId": "a", "quantity": 1}]}`, field: "price"},
		{name: "item without product", input: `{"items": [{"quantity": 1, "price": 1}]}`, field: "productId"},
		{name: "bad price", input: `{"items": [{"productId": "a", "quantity": 1, "price": true}]}`, field: "price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCart(jx.DecodeStr(tt.input))
			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.field, de.Field)
		})
	}
}

func TestEncodeCart_IncludesTotal(t *testing.T) {
	var e jx.Encoder
	EncodeCart(&e, &cart.Cart{UserID: "u1", Items: []cart.Item{
		{ProductID: "fern", Quantity: 2, UnitPrice: decimal.RequireFromString("100"), DiscountPrice: decimal.NewNullDecimal(decimal.RequireFromString("80"))},
	}})

	var total string
	err := jx.DecodeBytes(e.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		if key != "total" {
			return d.Skip()
		}
		n, err := d.Num()
		total = string(n)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "160.00", total)

	back, err := DecodeCart(jx.DecodeBytes(e.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, back.Items[0].Quantity)
}

func TestDecodeOrder(t *testing.T) {
	o, err := DecodeOrder(jx.DecodeStr(`{
		"id": "o1", "userId": "u1", "items": [], "totalAmount": "160.00",
		"status": "confirmed", "paymentMethod": "cod", "createdAt": "2026-01-02T03:04:05Z"
	}`))
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, o.Status)
	assert.Equal(t, 2026, o.CreatedAt.Year())

	_, err = DecodeOrder(jx.DecodeStr(`{"id": "o1", "items": [], "totalAmount": 1, "status": "lost"}`))
	require.Error(t, err)

	_, err = DecodeOrder(jx.DecodeStr(`{"id": "o1", "items": [], "status": "paid"}`))
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "totalAmount", de.Field)
}

func TestVerification(t *testing.T) {
	var v Verification
	err := v.Decode(jx.DecodeStr(`{
		"userId": "u1", "orderId": "o1",
		"razorpay_order_id": "order_1", "razorpay_payment_id": "pay_1", "razorpay_signature": "sig"
	}`))
	require.NoError(t, err)
	assert.Equal(t, "pay_1", v.Callback.PaymentID)

	err = (&Verification{}).Decode(jx.DecodeStr(`{"userId": "u1", "orderId": "o1"}`))
	require.Error(t, err)
}

func TestDecodeQuantity(t *testing.T) {
	q, err := DecodeQuantity(jx.DecodeStr(`{"quantity": 4}`))
	require.NoError(t, err)
	assert.Equal(t, 4, q)

	_, err = DecodeQuantity(jx.DecodeStr(`{}`))
	require.Error(t, err)
}

func TestDecodeAddress_ZipAlias(t *testing.T) {
	a, err := DecodeAddress(jx.DecodeStr(`{"name": "Home", "zip": "560001"}`))
	require.NoError(t, err)
	assert.Equal(t, "560001", a.Pincode)
}

func TestError(t *testing.T) {
	var e jx.Encoder
	Error{Code: 422, Reason: "total_mismatch", Message: "bad"}.Encode(&e)

	var got Error
	require.NoError(t, got.Decode(jx.DecodeBytes(e.Bytes())))
	assert.Equal(t, Error{Code: 422, Reason: "total_mismatch", Message: "bad"}, got)
}
