package httputil

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/y0f/rankwatch/internal/config"
)

const (
	limiterIdleTTL  = 3 * time.Minute
	limiterSweepInt = time.Minute
)

// RateLimiter holds one token bucket per client. Idle buckets are dropped
// by a background sweep until Stop is called.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*bucket
	rate    rate.Limit
	burst   int
	now     func() time.Time
	done    chan struct{}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		clients: make(map[string]*bucket),
		rate:    rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

func (rl *RateLimiter) Stop() {
	close(rl.done)
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(limiterSweepInt)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-limiterIdleTTL)
	for k, b := range rl.clients {
		if b.lastSeen.Before(cutoff) {
			delete(rl.clients, k)
		}
	}
}

// Len reports the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Allow consumes a token for key. When the bucket is empty it returns false
// and how long until the next token is available.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	now := rl.now()
	b, ok := rl.clients[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.clients[key] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		return false, d
	}
	return true, 0
}

// ClientKey identifies the caller for rate limiting. Requests carrying an
// API key are bucketed by the key's hash so operators sharing an egress IP
// do not throttle each other; everything else is bucketed by client IP.
func ClientKey(r *http.Request, trustedNets []net.IPNet) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return "key:" + config.HashSecret(k)[:16]
	}
	return "ip:" + ExtractIP(r, trustedNets)
}

// Middleware rejects over-limit requests with 429 and a Retry-After header
// in whole seconds.
func (rl *RateLimiter) Middleware(trustedNets []net.IPNet, writeError func(http.ResponseWriter, int, string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := rl.Allow(ClientKey(r, trustedNets))
			if !ok {
				secs := int(math.Ceil(wait.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
