// Package handler serves the nursery REST API on a chi router. Bodies are
// encoded with the wire codecs; domain errors map to stable status codes and
// reasons.
package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/nursery-kart/internal/domain/address"
	"github.com/xenking/nursery-kart/internal/domain/cart"
	"github.com/xenking/nursery-kart/internal/domain/order"
	"github.com/xenking/nursery-kart/internal/domain/payment"
	"github.com/xenking/nursery-kart/internal/domain/product"
	"github.com/xenking/nursery-kart/internal/identity"
)

// maxBodySize caps request bodies.
const maxBodySize = 1 << 20

// Deps are the services the handler delegates to.
type Deps struct {
	Carts     *cart.Service
	Payments  *payment.Service
	Orders    *order.Service
	Products  product.Repository
	Addresses address.Repository
	Verifier  *identity.Verifier
}

// Handler holds the HTTP endpoints.
type Handler struct {
	Deps

	checkouts metric.Int64Counter
	rejected  metric.Int64Counter
	verified  metric.Int64Counter
}

// NewHandler creates a Handler with its metric instruments.
func NewHandler(d Deps, mp metric.MeterProvider) (*Handler, error) {
	meter := mp.Meter("github.com/xenking/nursery-kart/internal/handler")

	h := &Handler{Deps: d}
	var err error
	if h.checkouts, err = meter.Int64Counter("nursery.checkout.orders",
		metric.WithDescription("Orders placed, by payment method"),
	); err != nil {
		return nil, errors.Wrap(err, "checkout counter")
	}
	if h.rejected, err = meter.Int64Counter("nursery.checkout.rejected",
		metric.WithDescription("Checkouts rejected, by reason"),
	); err != nil {
		return nil, errors.Wrap(err, "rejected counter")
	}
	if h.verified, err = meter.Int64Counter("nursery.payment.verifications",
		metric.WithDescription("Payment verifications, by outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "verification counter")
	}
	return h, nil
}

// Register mounts the API under /api.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.listProducts)
		r.Get("/products/id/{productID}", h.getProduct)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)

			r.Route("/cart/{userID}", func(r chi.Router) {
				r.Use(requireOwner)
				r.Get("/", h.getCart)
				r.Post("/items", h.addItem)
				r.Put("/items/{productID}", h.updateItem)
				r.Delete("/items/{productID}", h.removeItem)
			})

			r.Post("/payment/create-order", h.createPaymentOrder)
			r.Post("/payment/verify", h.verifyPayment)
			r.Post("/payment/place-cod-order", h.placeCODOrder)

			r.With(requireOwner).Get("/orders/get/{userID}", h.userOrders)
			r.With(requireOwner).Get("/auth/{userID}/addresses", h.listAddresses)
			r.With(requireOwner).Put("/auth/{userID}/addresses", h.replaceAddresses)

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/orders/admin/orders", h.adminOrders)
				r.Patch("/orders/{orderID}/status", h.updateOrderStatus)
			})
		})
	})
}

// decode reads the request body with fn.
func decode[T any](r *http.Request, fn func(d *jx.Decoder) (T, error)) (T, error) {
	var zero T
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return zero, errors.Wrap(err, "read body")
	}
	if len(data) == 0 {
		return zero, &badRequestError{err: errEmptyBody}
	}
	v, err := fn(jx.DecodeBytes(data))
	if err != nil {
		return zero, &badRequestError{err: err}
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
