package limiter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestGetLimiterReturnsSameInstancePerIP(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(1), 1)

	first := l.GetLimiter("10.0.0.1")
	second := l.GetLimiter("10.0.0.1")
	other := l.GetLimiter("10.0.0.2")

	assert.Same(t, first, second)
	assert.NotSame(t, first, other)
}

func TestMiddlewareRejectsOverBurst(t *testing.T) {
	// One request per hour, burst of one: the second request must be rejected.
	l := NewIPRateLimiter(rate.Limit(1.0/3600), 1)

	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMiddlewareSeparatesClients(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(1.0/3600), 1)

	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRequest(http.MethodGet, "/", nil)
	first.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	assert.Equal(t, http.StatusOK, rec.Code)

	second := httptest.NewRequest(http.MethodGet, "/", nil)
	second.RemoteAddr = "10.0.0.2:1234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	assert.Equal(t, http.StatusOK, rec.Code, "a different IP must have its own bucket")
}
