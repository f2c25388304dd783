package gateway

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures per-caller rate limiting in the security stage.
type RateLimitConfig struct {
	// Rate is the sustained requests per second per key.
	Rate float64

	// Burst is the bucket size. Defaults to 1.
	Burst int

	// KeyFunc picks the bucket. Defaults to the principal subject, else the
	// remote IP.
	KeyFunc func(r *http.Request, p *Principal) string

	// CleanupInterval is how often idle limiters are pruned (default 1m).
	CleanupInterval time.Duration

	// MaxIdle removes limiters idle longer than this (default 5m).
	MaxIdle time.Duration
}

type rateLimiter struct {
	cfg RateLimitConfig

	mu          sync.Mutex
	limiters    map[string]*limiterEntry
	lastCleanup time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = defaultRateKey
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = 5 * time.Minute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &rateLimiter{cfg: cfg, limiters: make(map[string]*limiterEntry)}
}

func defaultRateKey(r *http.Request, p *Principal) string {
	if p != nil && p.Subject != "" {
		return "sub:" + p.Subject
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

func (l *rateLimiter) key(r *http.Request, p *Principal) string {
	return l.cfg.KeyFunc(r, p)
}

func (l *rateLimiter) allow(key string) bool {
	l.mu.Lock()
	now := time.Now()

	// Lazy cleanup of expired limiters.
	if now.Sub(l.lastCleanup) >= l.cfg.CleanupInterval {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > l.cfg.MaxIdle {
				delete(l.limiters, k)
			}
		}
		l.lastCleanup = now
	}

	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(l.cfg.Rate), l.cfg.Burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()

	return entry.limiter.Allow()
}

// retryAfter is the Retry-After value in whole seconds, at least 1.
func (l *rateLimiter) retryAfter() string {
	if l.cfg.Rate <= 0 {
		return "1"
	}
	secs := math.Ceil(1 / l.cfg.Rate)
	return strconv.FormatFloat(max(secs, 1), 'f', 0, 64)
}
