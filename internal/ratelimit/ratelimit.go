// File: internal/ratelimit/ratelimit.go
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limiting configuration
type Config struct {
	PerMinute     int           // sustained requests per minute per identifier
	Burst         int           // requests allowed at once
	IdleTTL       time.Duration // drop limiters unused for this long
	CleanupPeriod time.Duration // how often to sweep idle limiters
}

// DefaultWriteConfig is tuned for message writes.
func DefaultWriteConfig(perMinute int) *Config {
	return &Config{
		PerMinute:     perMinute,
		Burst:         max(1, perMinute/6),
		IdleTTL:       15 * time.Minute,
		CleanupPeriod: 5 * time.Minute,
	}
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryRateLimiter keeps one token bucket per identifier.
type MemoryRateLimiter struct {
	config  *Config
	entries map[string]*entry
	mu      sync.Mutex
	stopCh  chan struct{}
	once    sync.Once
}

// NewMemoryRateLimiter creates a limiter and starts its cleanup goroutine.
func NewMemoryRateLimiter(config *Config) *MemoryRateLimiter {
	limiter := &MemoryRateLimiter{
		config:  config,
		entries: make(map[string]*entry),
		stopCh:  make(chan struct{}),
	}
	go limiter.cleanupLoop()
	return limiter
}

// RateLimitInfo contains information about rate limit status
type RateLimitInfo struct {
	Allowed    bool
	Limit      int
	RetryAfter time.Duration
}

// Allow consumes one token for identifier.
func (rl *MemoryRateLimiter) Allow(identifier string) (bool, *RateLimitInfo) {
	now := time.Now()

	rl.mu.Lock()
	e, ok := rl.entries[identifier]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(float64(rl.config.PerMinute)/60.0), rl.config.Burst)}
		rl.entries[identifier] = e
	}
	e.lastSeen = now
	rl.mu.Unlock()

	res := e.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, &RateLimitInfo{Limit: rl.config.PerMinute}
	}
	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
		return false, &RateLimitInfo{Limit: rl.config.PerMinute, RetryAfter: delay}
	}
	return true, &RateLimitInfo{Allowed: true, Limit: rl.config.PerMinute}
}

func (rl *MemoryRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *MemoryRateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for id, e := range rl.entries {
		if now.Sub(e.lastSeen) > rl.config.IdleTTL {
			delete(rl.entries, id)
		}
	}
}

// Close stops the cleanup goroutine
func (rl *MemoryRateLimiter) Close() {
	rl.once.Do(func() { close(rl.stopCh) })
}

// GetClientIP extracts the real client IP from request
func GetClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if ip := strings.TrimSpace(strings.Split(forwarded, ",")[0]); ip != "" {
			return ip
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
