package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probe struct {
	Status string
	Checks map[string]string
}

func serve(t *testing.T, fn http.HandlerFunc) (int, probe) {
	t.Helper()
	w := httptest.NewRecorder()
	fn(w, httptest.NewRequest(http.MethodGet, "/", nil))

	p := probe{Checks: map[string]string{}}
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			v, err := d.Str()
			p.Status = v
			return err
		case "checks":
			return d.Obj(func(d *jx.Decoder, name string) error {
				v, err := d.Str()
				p.Checks[name] = v
				return err
			})
		default:
			return d.Skip()
		}
	}))
	return w.Code, p
}

func TestCheck_Thresholds(t *testing.T) {
	var fail atomic.Bool
	c := newCheck("db", time.Second, func(context.Context) error {
		if fail.Load() {
			return errors.New("connection refused")
		}
		return nil
	})

	fail.Store(true)
	for range FailureThreshold - 1 {
		c.run(context.Background())
	}
	_, failed := c.failure()
	assert.False(t, failed, "below threshold")

	c.run(context.Background())
	msg, failed := c.failure()
	assert.True(t, failed)
	assert.Equal(t, "connection refused", msg)

	fail.Store(false)
	c.run(context.Background())
	_, failed = c.failure()
	assert.False(t, failed, "one success recovers")
}

func TestLiveEndpoint(t *testing.T) {
	h := New()
	code, body := serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)

	h.AddLivenessCheck("goroutines", time.Second, GoroutineCountCheck(0))
	for _, c := range h.live {
		for range FailureThreshold {
			c.run(context.Background())
		}
	}
	code, body = serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Contains(t, body.Checks["goroutines"], "exceeds threshold")
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, PingCheck(pingerFunc(func(context.Context) error { return nil })))

	code, body := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "service is not ready", body.Checks["_readiness"])
	assert.False(t, h.IsReady())

	h.SetReady(true)
	code, body = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.True(t, h.IsReady())

	h.SetReady(false)
	assert.False(t, h.IsReady())
}

func TestStartStop(t *testing.T) {
	var calls atomic.Int32
	h := New()
	h.AddReadinessCheck("counter", time.Second, func(context.Context) error {
		calls.Add(1)
		return errors.New("down")
	})
	h.SetReady(true)

	h.Start(context.Background(), 5*time.Millisecond)
	assert.Eventually(t, func() bool { return !h.IsReady() }, time.Second, 5*time.Millisecond)
	h.Stop()
	h.Stop()

	n := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, calls.Load(), n+1)
}

func TestKafkaCheck_NoBrokers(t *testing.T) {
	require.Error(t, KafkaCheck(nil)(context.Background()))
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }
