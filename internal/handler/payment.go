package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/nursery-kart/internal/domain/checkout"
	"github.com/xenking/nursery-kart/internal/domain/order"
	"github.com/xenking/nursery-kart/internal/domain/payment"
	"github.com/xenking/nursery-kart/internal/wire"
)

// checkoutRequest decodes a checkout body placed by the signed-in user.
func checkoutRequest(r *http.Request) (payment.CheckoutRequest, error) {
	s, err := decode(r, wire.DecodeSubmission)
	if err != nil {
		return payment.CheckoutRequest{}, err
	}
	if err := checkSelf(r.Context(), s.UserID); err != nil {
		return payment.CheckoutRequest{}, err
	}
	return payment.CheckoutRequest{
		UserID:    s.UserID,
		AddressID: s.AddressID,
		Items:     s.Items,
		Total:     s.Total,
	}, nil
}

// notSelfError is answered with 403.
type notSelfError struct{}

func (notSelfError) Error() string { return "userId does not match the token" }

func checkSelf(ctx context.Context, userID string) error {
	if id, _ := principal(ctx); id.UserID != userID {
		return notSelfError{}
	}
	return nil
}

func (h *Handler) reject(ctx context.Context, method order.PaymentMethod, err error) {
	_, reason := classify(err)
	h.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("payment_method", string(method)),
		attribute.String("reason", reason),
	))
}

func (h *Handler) placed(ctx context.Context, method order.PaymentMethod) {
	h.checkouts.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", string(method))))
}

func (h *Handler) createPaymentOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := checkoutRequest(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	res, err := h.Payments.CreateOnlineOrder(ctx, req)
	if err != nil {
		h.reject(ctx, order.PaymentOnline, err)
		fail(w, r, err)
		return
	}
	h.placed(ctx, order.PaymentOnline)

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		wire.EncodePaymentOrder(e, checkout.PaymentOrder{
			OrderID:         res.Order.ID,
			ProviderOrderID: res.ProviderOrder.ID,
			AmountMinor:     res.ProviderOrder.AmountMinor,
			Currency:        res.ProviderOrder.Currency,
			KeyID:           res.KeyID,
		})
	})
}

func (h *Handler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v, err := decode(r, func(d *jx.Decoder) (wire.Verification, error) {
		var v wire.Verification
		return v, v.Decode(d)
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := checkSelf(ctx, v.UserID); err != nil {
		fail(w, r, err)
		return
	}

	o, err := h.Payments.Verify(ctx, payment.VerifyRequest{
		UserID:          v.UserID,
		OrderID:         v.OrderID,
		ProviderOrderID: v.Callback.ProviderOrderID,
		PaymentID:       v.Callback.PaymentID,
		Signature:       v.Callback.Signature,
	})
	outcome := "paid"
	if err != nil {
		_, outcome = classify(err)
	}
	h.verified.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { wire.EncodeOrder(e, o) })
}

func (h *Handler) placeCODOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := checkoutRequest(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.Payments.PlaceCOD(ctx, req)
	if err != nil {
		h.reject(ctx, order.PaymentCOD, err)
		fail(w, r, err)
		return
	}
	h.placed(ctx, order.PaymentCOD)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { wire.EncodeOrder(e, o) })
}
