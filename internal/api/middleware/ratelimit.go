package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per client key. A bucket holds
// requests tokens and refills completely over window.
type RateLimiter struct {
	requests int
	window   time.Duration
	limit    rate.Limit
	clients  map[string]*bucket
	mu       sync.Mutex
	done     chan struct{}
	stop     sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(requests int, windowSeconds int) *RateLimiter {
	if requests <= 0 {
		requests = 100
	}
	if windowSeconds <= 0 {
		windowSeconds = 60
	}

	window := time.Duration(windowSeconds) * time.Second
	rl := &RateLimiter{
		requests: requests,
		window:   window,
		limit:    rate.Every(window / time.Duration(requests)),
		clients:  make(map[string]*bucket),
		done:     make(chan struct{}),
	}

	go rl.cleanup()
	return rl
}

// cleanup drops buckets idle for more than two windows; they would be full anyway.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for key, b := range rl.clients {
				if now.Sub(b.lastSeen) > rl.window*2 {
					delete(rl.clients, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stop.Do(func() { close(rl.done) })
}

// Allow reports whether a request for key may proceed, the tokens left and
// when the bucket will be full again.
func (rl *RateLimiter) Allow(key string) (bool, int, time.Time) {
	now := time.Now()

	rl.mu.Lock()
	b, ok := rl.clients[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.requests)}
		rl.clients[key] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	allowed := b.limiter.AllowN(now, 1)

	tokens := b.limiter.TokensAt(now)
	remaining := int(tokens)
	if remaining < 0 {
		remaining = 0
	}

	missing := float64(rl.requests) - tokens
	reset := now.Add(time.Duration(missing / float64(rl.limit) * float64(time.Second)))
	return allowed, remaining, reset
}

func (rl *RateLimiter) middleware(keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, resetTime := rl.Allow(keyFunc(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(rl.window/time.Duration(rl.requests)/time.Second)+1))
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ByClientIP limits requests per client IP. The owner of rl must Stop it.
func (rl *RateLimiter) ByClientIP() func(http.Handler) http.Handler {
	return rl.middleware(getClientIP)
}

// ByAccount limits authenticated routes per account, falling back to IP.
func (rl *RateLimiter) ByAccount() func(http.Handler) http.Handler {
	return rl.middleware(func(r *http.Request) string {
		if id := GetAccountID(r.Context()); id != uuid.Nil {
			return "account:" + id.String()
		}
		return getClientIP(r)
	})
}

// getClientIP keys on the connection's peer address. Forwarding headers are
// client controlled; behind a trusted proxy the router runs chi's RealIP
// first, which rewrites RemoteAddr from them.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
