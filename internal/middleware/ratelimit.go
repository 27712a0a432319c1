package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/chorewheel/internal/auth"
)

// Proxy headers consulted in order before falling back to the socket address.
var clientIPHeaders = []string{"CF-Connecting-IP", "X-Forwarded-For"}

// RealIP reports the address a request originated from. For a forwarded
// chain only the left-most hop is used.
func RealIP(r *http.Request) string {
	for _, h := range clientIPHeaders {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		first, _, _ := strings.Cut(v, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

type bucket struct {
	hits    int
	resetAt time.Time
}

func (b *bucket) expired(now time.Time) bool {
	return now.After(b.resetAt)
}

// RateLimiter counts hits per key in fixed windows. Buckets live in memory
// and are pruned by Cleanup.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: map[string]*bucket{}, now: time.Now}
}

// Allow records a hit for key and reports whether it is within limit for
// the current window. The first hit after a window lapses opens a new one.
func (rl *RateLimiter) Allow(key string, limit int, window time.Duration) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b := rl.buckets[key]
	if b == nil || b.expired(now) {
		b = &bucket{resetAt: now.Add(window)}
		rl.buckets[key] = b
	}
	b.hits++
	return b.hits <= limit
}

// Cleanup drops buckets whose window has lapsed.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		if b.expired(now) {
			delete(rl.buckets, key)
		}
	}
}

// MemberKey buckets by member on authenticated routes and by client address
// otherwise.
func MemberKey(r *http.Request) string {
	if id := auth.MemberID(r.Context()); id != 0 {
		return "member:" + strconv.FormatInt(id, 10)
	}
	return "ip:" + RealIP(r)
}

// RateLimit wraps a handler so that each key gets at most limit requests per
// window. Excess requests get a JSON 429 with Retry-After.
func RateLimit(limiter *RateLimiter, keyFunc func(*http.Request) string, limit int, window time.Duration) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(window.Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter.Allow(keyFunc(r), limit, window) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", retryAfter)
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
		})
	}
}
