package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

func newTestLimiter(t *testing.T, max int64) *limiter.Limiter {
	t.Helper()
	return limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: max})
}

func TestMiddlewareAllowsWithinLimit(t *testing.T) {
	mw := Middleware{Limiter: newTestLimiter(t, 2)}
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes/line", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestMiddlewareKeysByOrg(t *testing.T) {
	mw := Middleware{Limiter: newTestLimiter(t, 1)}
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	first := httptest.NewRequest(http.MethodPost, "/api/v1/quotes/line", nil)
	first.RemoteAddr = "10.0.0.1:1234"
	first.Header.Set("X-Org-ID", "5b8e9f9e-1f66-4f3e-9b38-111111111111")

	second := httptest.NewRequest(http.MethodPost, "/api/v1/quotes/line", nil)
	second.RemoteAddr = "10.0.0.1:1234"
	second.Header.Set("X-Org-ID", "5b8e9f9e-1f66-4f3e-9b38-222222222222")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddlewareNilLimiterPassesThrough(t *testing.T) {
	mw := Middleware{}
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}
