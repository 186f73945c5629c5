package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window limiter.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	// KeyFunc picks the bucket of a request. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
}

// window counts requests of one key in the current and previous windows.
type window struct {
	prev, curr float64
	start      time.Time
}

type limiter struct {
	max    float64
	size   time.Duration
	mu     sync.Mutex
	counts map[string]*window
}

// take records a request for key at now. The previous window is weighted by
// how much of it still overlaps the sliding window ending at now.
func (l *limiter) take(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.counts[key]
	if w == nil {
		w = &window{start: now.Truncate(l.size)}
		l.counts[key] = w
	}
	switch elapsed := now.Sub(w.start); {
	case elapsed >= 2*l.size:
		w.prev, w.curr, w.start = 0, 0, now.Truncate(l.size)
	case elapsed >= l.size:
		w.prev, w.curr, w.start = w.curr, 0, w.start.Add(l.size)
	}

	overlap := 1 - float64(now.Sub(w.start))/float64(l.size)
	used := w.prev*math.Max(overlap, 0) + w.curr
	reset = w.start.Add(l.size)
	if used >= l.max {
		return 0, reset, false
	}
	w.curr++
	return max(int(l.max-used-1), 0), reset, true
}

func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, w := range l.counts {
		if now.Sub(w.start) >= 2*l.size {
			delete(l.counts, k)
		}
	}
}

// RateLimit limits requests per key. Over the limit it answers 429 with the
// API error body and a Retry-After header.
func RateLimit(cfg RateLimitConfig) Middleware {
	_, mw := newLimiter(cfg)
	return mw
}

// RateLimitWithCleanup is RateLimit plus a goroutine that drops idle keys
// until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l, mw := newLimiter(cfg)
	go func() {
		t := time.NewTicker(2 * l.size)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				l.evict(now)
			}
		}
	}()
	return mw
}

func newLimiter(cfg RateLimitConfig) (*limiter, Middleware) {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	l := &limiter{
		max:    float64(cfg.Max),
		size:   cfg.Window,
		counts: make(map[string]*window),
	}
	return l, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, reset, ok := l.take(cfg.KeyFunc(r), time.Now())

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				wait := max(time.Until(reset), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP keys by the first X-Forwarded-For hop, then X-Real-IP, then the
// peer address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// KeyByUser buckets signed-in shoppers by the user id userID extracts and
// everyone else by ClientIP.
func KeyByUser(userID func(*http.Request) (string, bool)) func(*http.Request) string {
	return func(r *http.Request) string {
		if id, ok := userID(r); ok {
			return "user:" + id
		}
		return "ip:" + ClientIP(r)
	}
}
