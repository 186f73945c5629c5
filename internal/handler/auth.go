package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/nursery-kart/internal/identity"
	"github.com/xenking/nursery-kart/internal/wire"
)

type principalKey struct{}

func withPrincipal(ctx context.Context, id identity.Identity) context.Context {
	return context.WithValue(ctx, principalKey{}, id)
}

// principal returns the identity authenticate stored on the request.
func principal(ctx context.Context) (identity.Identity, bool) {
	id, ok := ctx.Value(principalKey{}).(identity.Identity)
	return id, ok
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// authenticate requires a valid bearer token.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, wire.ReasonUnauthorized, "missing bearer token")
			return
		}
		id, err := h.Verifier.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, wire.ReasonUnauthorized, err.Error())
			return
		}
		ctx := zctx.With(withPrincipal(r.Context(), id), zap.String("user_id", id.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireOwner allows the user named by the {userID} parameter and admins.
func requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := principal(r.Context())
		if !id.IsAdmin() && id.UserID != chi.URLParam(r, "userID") {
			writeError(w, http.StatusForbidden, wire.ReasonForbidden, "resource belongs to another user")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, _ := principal(r.Context()); !id.IsAdmin() {
			writeError(w, http.StatusForbidden, wire.ReasonForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserFromRequest reports the user id carried by the request's bearer token
// without verifying it. It suits request bucketing, not authorization.
func UserFromRequest(r *http.Request) (string, bool) {
	return identity.UserIDFromToken(bearerToken(r))
}
