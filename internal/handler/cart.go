package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/nursery-kart/internal/domain/cart"
	"github.com/xenking/nursery-kart/internal/wire"
)

// IdempotencyKeyHeader makes a cart mutation apply at most once.
const IdempotencyKeyHeader = "Idempotency-Key"

func writeCart(w http.ResponseWriter, c *cart.Cart) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { wire.EncodeCart(e, c) })
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.Carts.GetCart(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeCart(w, c)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	req, err := decode(r, wire.DecodeAddRequest)
	if err != nil {
		fail(w, r, err)
		return
	}
	req.IdempotencyKey = r.Header.Get(IdempotencyKeyHeader)

	c, err := h.Carts.AddItem(r.Context(), chi.URLParam(r, "userID"), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeCart(w, c)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	qty, err := decode(r, wire.DecodeQuantity)
	if err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.Carts.UpdateItem(r.Context(),
		chi.URLParam(r, "userID"),
		chi.URLParam(r, "productID"),
		qty,
		r.Header.Get(IdempotencyKeyHeader),
	)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeCart(w, c)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.Carts.RemoveItem(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "productID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeCart(w, c)
}
