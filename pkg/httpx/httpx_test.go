package httpx_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/aussiebroadwan/maidrobe/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestThrottle(t *testing.T) {
	t.Parallel()

	var served atomic.Int32
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	readyz := httpx.Chain(next, httpx.Throttle("readyz", httpx.Budget{PerSecond: 0.01, Burst: 2}))
	metrics := httpx.Chain(next, httpx.Throttle("metrics", httpx.Budget{PerSecond: 0.01, Burst: 1}))

	do := func(h http.Handler, remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, do(readyz, "127.0.0.1:1000").Code)
	require.Equal(t, http.StatusOK, do(readyz, "127.0.0.1:1001").Code)

	// The bucket belongs to the route, not the caller.
	rec := do(readyz, "10.0.0.9:2000")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	require.Greater(t, retryAfter, 1)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "throttled", body["error"])
	require.Equal(t, "readyz", body["route"])
	require.EqualValues(t, 2, served.Load())

	// Another route has its own budget.
	require.Equal(t, http.StatusOK, do(metrics, "127.0.0.1:1000").Code)
	require.Equal(t, http.StatusTooManyRequests, do(metrics, "127.0.0.1:1000").Code)
	require.EqualValues(t, 3, served.Load())
}

func TestThrottleZeroBurstRejects(t *testing.T) {
	t.Parallel()

	h := httpx.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}), httpx.Throttle("closed", httpx.Budget{}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mw("outer"), mw("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	httpx.WriteJSON(rec, http.StatusCreated, map[string]string{"status": "ok"})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
