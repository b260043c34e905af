package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrap_Order(t *testing.T) {
	var trace []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				trace = append(trace, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Wrap(okHandler(), mark("outer"), mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner"}, trace)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		w := hit(h, "", nil)
		assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
		assert.Equal(t, w.Header().Get(HeaderRequestID), seen)
	})

	t.Run("echoed", func(t *testing.T) {
		w := hit(h, "", map[string]string{HeaderRequestID: "custom-request-id-12345"})
		assert.Equal(t, "custom-request-id-12345", w.Header().Get(HeaderRequestID))
		assert.Equal(t, "custom-request-id-12345", seen)
	})

	t.Run("invalid replaced", func(t *testing.T) {
		w := hit(h, "", map[string]string{HeaderRequestID: strings.Repeat("x", 200)})
		assert.Len(t, w.Header().Get(HeaderRequestID), 36)
	})
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	lg := zap.New(core)

	h := Wrap(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			zctx.From(r.Context()).Info("Handled")
			w.WriteHeader(http.StatusTeapot)
		}),
		InjectLogger(lg),
		RequestID(),
		LogRequests(),
	)
	w := hit(h, "", map[string]string{HeaderRequestID: "req-1"})
	require.Equal(t, http.StatusTeapot, w.Code)

	handled := logs.FilterMessage("Handled").All()
	require.Len(t, handled, 1)
	assert.Equal(t, "req-1", handled[0].ContextMap()["request_id"])

	req := logs.FilterMessage("Request").All()
	require.Len(t, req, 1)
	assert.EqualValues(t, http.StatusTeapot, req[0].ContextMap()["status"])
}

func TestRecovery(t *testing.T) {
	h := Recovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := hit(h, "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "close", w.Header().Get("Connection"))
	assert.JSONEq(t, `{"success":false,"message":"internal server error"}`, w.Body.String())
}

func TestCORS(t *testing.T) {
	h := CORS(CORSConfig{AllowOrigins: []string{"https://Shop.example.com"}, MaxAge: 600})(okHandler())

	t.Run("preflight allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/cart", nil)
		req.Header.Set("Origin", "https://shop.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
		req.Header.Set("Access-Control-Request-Headers", "api_key")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://Shop.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
		assert.Equal(t, "api_key", w.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("foreign origin", func(t *testing.T) {
		w := hit(h, "", map[string]string{"Origin": "https://evil.example.com"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("any origin", func(t *testing.T) {
		w := hit(CORS(CORSConfig{})(okHandler()), "", map[string]string{"Origin": "https://a.example.com"})
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})
}
