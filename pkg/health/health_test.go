package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type body struct {
	Status string
	Checks map[string]string
}

func decode(t *testing.T, w *httptest.ResponseRecorder) body {
	t.Helper()
	var b body
	err := jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			s, err := d.Str()
			b.Status = s
			return err
		case "checks":
			b.Checks = map[string]string{}
			return d.Obj(func(d *jx.Decoder, name string) error {
				s, err := d.Str()
				b.Checks[name] = s
				return err
			})
		default:
			return d.Skip()
		}
	})
	require.NoError(t, err)
	return b
}

func passing(context.Context) error { return nil }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func get(h http.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func runN(p *probe, n int) {
	for range n {
		p.run(context.Background())
	}
}

func TestLiveEndpoint(t *testing.T) {
	t.Run("no checks", func(t *testing.T) {
		w := get(New().LiveEndpoint)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.Equal(t, "ok", decode(t, w).Status)
	})

	t.Run("failing past threshold", func(t *testing.T) {
		h := New()
		h.Register(Liveness, "goroutines", failing("too many"))
		runN(h.probes[0], defaultFailureThreshold)

		w := get(h.LiveEndpoint)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		b := decode(t, w)
		assert.Equal(t, "unhealthy", b.Status)
		assert.Equal(t, "too many", b.Checks["goroutines"])
	})

	t.Run("below threshold stays healthy", func(t *testing.T) {
		h := New()
		h.Register(Liveness, "flaky", failing("temporary"))
		runN(h.probes[0], defaultFailureThreshold-1)

		assert.Equal(t, http.StatusOK, get(h.LiveEndpoint).Code)
	})

	t.Run("readiness checks do not affect liveness", func(t *testing.T) {
		h := New()
		h.Register(Readiness, "postgres", failing("down"))
		runN(h.probes[0], defaultFailureThreshold)

		assert.Equal(t, http.StatusOK, get(h.LiveEndpoint).Code)
	})
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("not marked ready", func(t *testing.T) {
		h := New()
		h.Register(Readiness, "postgres", passing)

		w := get(h.ReadyEndpoint)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, decode(t, w).Checks, "_readiness")
	})

	t.Run("ready and passing", func(t *testing.T) {
		h := New()
		h.Register(Readiness, "postgres", passing)
		h.SetReady(true)

		assert.Equal(t, http.StatusOK, get(h.ReadyEndpoint).Code)

		h.SetReady(false)
		assert.Equal(t, http.StatusServiceUnavailable, get(h.ReadyEndpoint).Code)
	})

	t.Run("only failing checks reported", func(t *testing.T) {
		h := New()
		h.Register(Readiness, "postgres", passing)
		h.Register(Readiness, "rabbitmq", failing("connection closed"))
		h.SetReady(true)
		runN(h.probes[1], defaultFailureThreshold)

		w := get(h.ReadyEndpoint)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		b := decode(t, w)
		assert.Equal(t, map[string]string{"rabbitmq": "connection closed"}, b.Checks)
	})
}

func TestIsReady(t *testing.T) {
	h := New()
	h.Register(Readiness, "postgres", passing)

	assert.False(t, h.IsReady())
	h.SetReady(true)
	assert.True(t, h.IsReady())
	h.SetReady(false)
	assert.False(t, h.IsReady())
}

func TestThresholds(t *testing.T) {
	down := true
	h := New()
	h.Register(Liveness, "flaky", func(context.Context) error {
		if down {
			return errors.New("down")
		}
		return nil
	}, WithThresholds(1, 2))
	p := h.probes[0]

	assert.Nil(t, p.err())
	runN(p, 1)
	assert.False(t, p.healthy.Load())
	assert.EqualError(t, p.err(), "down")

	down = false
	runN(p, 1)
	assert.False(t, p.healthy.Load(), "needs two passes to recover")
	runN(p, 1)
	assert.True(t, p.healthy.Load())
}

func TestWithTimeout(t *testing.T) {
	h := New()
	h.Register(Readiness, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, WithTimeout(10*time.Millisecond), WithThresholds(1, 1))

	runN(h.probes[0], 1)
	require.ErrorIs(t, h.probes[0].err(), context.DeadlineExceeded)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestPingCheck(t *testing.T) {
	assert.NoError(t, PingCheck("postgres", pinger{})(context.Background()))

	cause := errors.New("refused")
	err := PingCheck("postgres", pinger{err: cause})(context.Background())
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "postgres ping")
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))

	err := GoroutineCountCheck(0)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds threshold")
}

func TestGCMaxPauseCheck(t *testing.T) {
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))
}

func TestConcurrentAccess(t *testing.T) {
	h := New()
	h.Register(Liveness, "concurrent", failing("err"))
	h.Register(Readiness, "concurrent", passing)
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 10*time.Millisecond)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				h.IsReady()
				get(h.LiveEndpoint)
				get(h.ReadyEndpoint)
			}
		}()
	}
	wg.Wait()

	h.Stop()
	h.Stop()
}
