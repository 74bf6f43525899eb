package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/AkkiD7/fleetlink-task/internal/http/middleware"
)

func newLimiter(t *testing.T, search, mutation middleware.Limit) *middleware.Limiter {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return middleware.NewLimiter(client, search, mutation)
}

func serve(limiter *middleware.Limiter, method string) *httptest.ResponseRecorder {
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(method, "/api/bookings", nil)
	req.Header.Set("X-Client-ID", "tester")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestLimiterExhaustsBurst(t *testing.T) {
	limiter := newLimiter(t, middleware.Limit{Rate: 1, Burst: 2}, middleware.Limit{Rate: 1, Burst: 2})

	require.Equal(t, http.StatusOK, serve(limiter, http.MethodPost).Code)
	require.Equal(t, http.StatusOK, serve(limiter, http.MethodPost).Code)

	rejected := serve(limiter, http.MethodPost)
	require.Equal(t, http.StatusTooManyRequests, rejected.Code)
	require.NotEmpty(t, rejected.Header().Get("Retry-After"))
}

func TestLimiterSearchAndMutationBudgetsAreIndependent(t *testing.T) {
	limiter := newLimiter(t, middleware.Limit{Rate: 1, Burst: 1}, middleware.Limit{Rate: 1, Burst: 1})

	require.Equal(t, http.StatusOK, serve(limiter, http.MethodPost).Code)
	require.Equal(t, http.StatusTooManyRequests, serve(limiter, http.MethodPost).Code)

	// the search bucket is untouched by mutation traffic
	require.Equal(t, http.StatusOK, serve(limiter, http.MethodGet).Code)
}

func TestNilClientDisablesLimiting(t *testing.T) {
	limiter := middleware.NewLimiter(nil, middleware.Limit{Rate: 1, Burst: 1}, middleware.Limit{Rate: 1, Burst: 1})
	require.Nil(t, limiter)

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/bookings", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
