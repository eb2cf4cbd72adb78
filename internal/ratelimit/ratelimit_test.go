package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowEnforcesBurst(t *testing.T) {
	rl := NewMemoryRateLimiter(&Config{PerMinute: 1, Burst: 2, IdleTTL: time.Minute, CleanupPeriod: time.Hour})
	defer rl.Close()

	ok, _ := rl.Allow("a")
	assert.True(t, ok)
	ok, _ = rl.Allow("a")
	assert.True(t, ok)
	ok, info := rl.Allow("a")
	assert.False(t, ok)
	assert.Greater(t, info.RetryAfter, time.Duration(0))

	ok, _ = rl.Allow("b")
	assert.True(t, ok)
}

func TestCleanupDropsIdle(t *testing.T) {
	rl := NewMemoryRateLimiter(&Config{PerMinute: 60, Burst: 1, IdleTTL: time.Minute, CleanupPeriod: time.Hour})
	defer rl.Close()

	rl.Allow("a")
	rl.cleanup(time.Now().Add(2 * time.Minute))
	assert.Empty(t, rl.entries)
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1", GetClientIP(r))

	r.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", GetClientIP(r))

	r.Header.Set("X-Forwarded-For", "10.0.0.3, 10.0.0.4")
	assert.Equal(t, "10.0.0.3", GetClientIP(r))
}

func TestDefaultWriteConfig(t *testing.T) {
	assert.Equal(t, 1, DefaultWriteConfig(3).Burst)
	assert.Equal(t, 10, DefaultWriteConfig(60).Burst)
}
