package cart

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_AddItem(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		req     AddRequest
		wantErr error
		wantPNF bool
	}{
		{name: "ok", userID: "u1", req: AddRequest{ProductID: "A", Quantity: 2}},
		{name: "no identity", req: AddRequest{ProductID: "A", Quantity: 1}, wantErr: ErrNoIdentity},
		{name: "zero quantity", userID: "u1", req: AddRequest{ProductID: "A"}, wantErr: ErrInvalidQuantity},
		{name: "unknown product", userID: "u1", req: AddRequest{ProductID: "Z", Quantity: 1}, wantPNF: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(newMockStore(), newProductRepo("A"))

			c, err := svc.AddItem(context.Background(), tt.userID, tt.req)
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.wantPNF:
				var pnf *ProductNotFoundError
				require.ErrorAs(t, err, &pnf)
				assert.Equal(t, "Z", pnf.ProductID)
			default:
				require.NoError(t, err)
				assert.Equal(t, map[string]int{"A": 2}, c.Quantities())
			}
		})
	}
}

func TestService_AddExistingSumsQuantity(t *testing.T) {
	svc := NewService(newMockStore(), newProductRepo("A"))
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "u1", AddRequest{ProductID: "A", Quantity: 1})
	require.NoError(t, err)
	c, err := svc.AddItem(ctx, "u1", AddRequest{ProductID: "A", Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 3}, c.Quantities())
}

func TestService_IdempotentAdd(t *testing.T) {
	svc := NewService(newMockStore(), newProductRepo("A"))
	ctx := context.Background()
	req := AddRequest{ProductID: "A", Quantity: 2, IdempotencyKey: "k1"}

	_, err := svc.AddItem(ctx, "u1", req)
	require.NoError(t, err)
	c, err := svc.AddItem(ctx, "u1", req)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 2}, c.Quantities())
}

func TestService_UpdateItem(t *testing.T) {
	store := newMockStore()
	store.carts["u1"] = []Item{{ProductID: "A", Quantity: 1}}
	svc := NewService(store, newProductRepo("A"))
	ctx := context.Background()

	c, err := svc.UpdateItem(ctx, "u1", "A", 4, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 4}, c.Quantities())

	_, err = svc.UpdateItem(ctx, "u1", "A", 0, "")
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.UpdateItem(ctx, "u1", "B", 1, "")
	var nf *ItemNotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestService_RemoveAbsentIsNoop(t *testing.T) {
	store := newMockStore()
	store.carts["u1"] = []Item{{ProductID: "A", Quantity: 1}}
	svc := NewService(store, newProductRepo("A"))

	c, err := svc.RemoveItem(context.Background(), "u1", "B")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 1}, c.Quantities())
}

func TestService_GetCartError(t *testing.T) {
	store := newMockStore()
	store.getErr = errBoom
	svc := NewService(store, newProductRepo())

	_, err := svc.GetCart(context.Background(), "u1")
	require.ErrorIs(t, err, errBoom)
}
