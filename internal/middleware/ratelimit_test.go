package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenBucketRefillsPerSecond(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	tb := NewTokenBucket(2)
	tb.now = func() time.Time { return clock }
	tb.lastSec = clock.Unix()

	got := []bool{tb.Allow(), tb.Allow(), tb.Allow()}
	if !got[0] || !got[1] || got[2] {
		t.Fatalf("first second = %v, want [true true false]", got)
	}
	clock = clock.Add(time.Second)
	if !tb.Allow() {
		t.Fatal("bucket not refilled on the next second")
	}
}

func TestLimitRejectsWith429(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	tb := NewTokenBucket(1)
	tb.now = func() time.Time { return clock }
	tb.lastSec = clock.Unix()
	h := Limit(tb, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/visible", nil))
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}

func TestWrapDisabledPassesThrough(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "")
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := Wrap(inner)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
}
