package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/nursery-kart/internal/domain/product"
	"github.com/xenking/nursery-kart/internal/wire"
)

// maxProductsPage bounds one catalog listing.
const maxProductsPage = 200

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := product.Filter{
		Search:   q.Get("search"),
		Category: q.Get("category"),
		Limit:    maxProductsPage,
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			fail(w, r, badRequest("invalid limit %q", s))
			return
		}
		f.Limit = min(n, maxProductsPage)
	}

	list, err := h.Products.List(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { wire.EncodeProducts(e, list) })
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.GetByID(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { wire.EncodeProduct(e, *p) })
}

func (h *Handler) listAddresses(w http.ResponseWriter, r *http.Request) {
	list, err := h.Addresses.List(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { wire.EncodeAddresses(e, list) })
}

func (h *Handler) replaceAddresses(w http.ResponseWriter, r *http.Request) {
	list, err := decode(r, wire.DecodeAddresses)
	if err != nil {
		fail(w, r, err)
		return
	}
	for _, a := range list {
		if err := a.Validate(); err != nil {
			fail(w, r, err)
			return
		}
	}

	saved, err := h.Addresses.Replace(r.Context(), chi.URLParam(r, "userID"), list)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { wire.EncodeAddresses(e, saved) })
}

