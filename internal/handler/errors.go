package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/nursery-kart/internal/domain/address"
	"github.com/xenking/nursery-kart/internal/domain/cart"
	"github.com/xenking/nursery-kart/internal/domain/order"
	"github.com/xenking/nursery-kart/internal/domain/payment"
	"github.com/xenking/nursery-kart/internal/domain/product"
	"github.com/xenking/nursery-kart/internal/wire"
)

var errEmptyBody = errors.New("request body is empty")

// badRequestError marks a request the server could not parse.
type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &badRequestError{err: errors.Errorf(format, args...)}
}

// classify maps err to a status code and reason. Unknown errors are 500.
func classify(err error) (int, string) {
	var (
		badErr        *badRequestError
		productErr    *cart.ProductNotFoundError
		itemErr       *cart.ItemNotFoundError
		mismatchErr   *payment.TotalMismatchError
		transitionErr *order.InvalidTransitionError
		fieldErr      *address.MissingFieldError
	)
	switch {
	case errors.As(err, &badErr):
		return http.StatusBadRequest, wire.ReasonBadRequest
	case errors.As(err, new(notSelfError)):
		return http.StatusForbidden, wire.ReasonForbidden
	case errors.Is(err, cart.ErrNoIdentity):
		return http.StatusUnauthorized, wire.ReasonNoIdentity
	case errors.Is(err, cart.ErrInvalidQuantity):
		return http.StatusBadRequest, wire.ReasonInvalidQuantity
	case errors.As(err, &productErr):
		return http.StatusNotFound, wire.ReasonProductNotFound
	case errors.As(err, &itemErr):
		return http.StatusNotFound, wire.ReasonItemNotFound
	case errors.Is(err, payment.ErrEmptyItems):
		return http.StatusBadRequest, wire.ReasonEmptyItems
	case errors.Is(err, payment.ErrAddressRequired):
		return http.StatusBadRequest, wire.ReasonAddressRequired
	case errors.As(err, &fieldErr), errors.Is(err, address.ErrNotFound):
		return http.StatusUnprocessableEntity, wire.ReasonInvalidAddress
	case errors.As(err, &mismatchErr):
		return http.StatusConflict, wire.ReasonTotalMismatch
	case errors.Is(err, payment.ErrInvalidSignature):
		return http.StatusBadRequest, wire.ReasonInvalidSignature
	case errors.As(err, &transitionErr):
		return http.StatusConflict, wire.ReasonInvalidTransition
	case errors.Is(err, order.ErrStatusConflict):
		return http.StatusConflict, wire.ReasonConflict
	case errors.Is(err, order.ErrNotFound), errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound, wire.ReasonNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, wire.ReasonInternal
	default:
		return http.StatusInternalServerError, wire.ReasonInternal
	}
}

// fail writes the error response for err. Server-side failures are logged and
// their details hidden.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, reason := classify(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("reason", reason),
			zap.Error(err),
		)
		msg = http.StatusText(status)
	}
	writeError(w, status, reason, msg)
}

func writeError(w http.ResponseWriter, status int, reason, msg string) {
	writeJSON(w, status, wire.Error{Code: status, Reason: reason, Message: msg}.Encode)
}
