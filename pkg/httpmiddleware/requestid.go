package httpmiddleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the request id in both directions. The
	// storefront client keeps it stable across retries of one call.
	RequestIDHeader = "X-Request-ID"
	// AttemptHeader numbers the retries of one request id, starting at 1.
	AttemptHeader = "X-Request-Attempt"

	maxRequestIDLen = 128
	maxAttempt      = 100
)

type requestInfo struct {
	id      string
	attempt int
}

type requestInfoKey struct{}

func requestInfoFrom(ctx context.Context) requestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(requestInfo)
	return info
}

// RequestIDFromContext returns the request id, or "" outside a request.
func RequestIDFromContext(ctx context.Context) string {
	return requestInfoFrom(ctx).id
}

// AttemptFromContext returns the client's attempt number, 1 when the client
// sent none and 0 outside a request.
func AttemptFromContext(ctx context.Context) int {
	return requestInfoFrom(ctx).attempt
}

// RequestID tags the request with an id and attempt number and echoes the id.
// Malformed incoming ids are replaced with a fresh UUID.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := requestInfo{
				id:      r.Header.Get(RequestIDHeader),
				attempt: parseAttempt(r.Header.Get(AttemptHeader)),
			}
			if !printableASCII(info.id) {
				info = requestInfo{id: uuid.NewString(), attempt: 1}
			}
			w.Header().Set(RequestIDHeader, info.id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)))
		})
	}
}

func parseAttempt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > maxAttempt {
		return 1
	}
	return n
}

func printableASCII(s string) bool {
	if s == "" || len(s) > maxRequestIDLen {
		return false
	}
	return strings.IndexFunc(s, func(c rune) bool { return c < ' ' || c > '~' }) < 0
}
