package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(n int) (*Limiter, *time.Time) {
	rl := NewLimiter(Config{RequestsPerWindow: n, Window: time.Minute, CleanupInterval: time.Hour})
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestAllow(t *testing.T) {
	rl, now := newTestLimiter(2)
	defer rl.Stop()

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "keys are independent")
	assert.Equal(t, int64(1), rl.Rejected())

	*now = now.Add(time.Minute)
	assert.True(t, rl.Allow("a"), "new window")
}

func TestCleanupStaleEntries(t *testing.T) {
	rl, now := newTestLimiter(5)
	defer rl.Stop()

	rl.Allow("a")
	rl.Allow("b")
	*now = now.Add(30 * time.Second)
	rl.Allow("c")
	*now = now.Add(40 * time.Second)

	assert.Equal(t, 2, rl.cleanupStaleEntries())
	assert.Equal(t, 1, rl.ActiveClients())
}

func TestMiddlewareMutatingOnly(t *testing.T) {
	rl, _ := newTestLimiter(1)
	defer rl.Stop()
	rl.Stop() // idempotent

	h := rl.Middleware(func(*http.Request) string { return "k" }, MutatingOnly, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	do := func(method string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/expenses", nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, do(http.MethodPost).Code)
	rec := do(http.MethodPost)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, do(http.MethodGet).Code, "reads are not limited")
}
