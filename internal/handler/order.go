package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/nursery-kart/internal/domain/order"
	"github.com/xenking/nursery-kart/internal/wire"
)

func (h *Handler) userOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.Orders.ListForUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { wire.EncodeOrders(e, list) })
}

func (h *Handler) adminOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := order.ParseRange(q.Get("range"))
	if err != nil {
		fail(w, r, &badRequestError{err: err})
		return
	}
	status := order.Status(q.Get("status"))
	if status != "" && !status.Valid() {
		fail(w, r, badRequest("unknown status %q", status))
		return
	}

	list, err := h.Orders.ListForAdmin(r.Context(), rng, status)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { wire.EncodeOrders(e, list) })
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	next, err := decode(r, wire.DecodeStatus)
	if err != nil {
		fail(w, r, err)
		return
	}
	if !next.Valid() {
		fail(w, r, badRequest("unknown status %q", next))
		return
	}

	o, err := h.Orders.Transition(r.Context(), chi.URLParam(r, "orderID"), next, "")
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { wire.EncodeOrder(e, o) })
}
