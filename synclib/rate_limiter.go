package synclib

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// ipLimiterEntry pairs a token bucket with its last-attempt time.
// lastUsed is atomic so the read-locked fast path can refresh it.
type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64 // unix nanoseconds
}

// IPRateLimiter throttles connection attempts per remote IP before any
// upgrade work happens. It protects the auth handshake path from
// brute-force reconnect storms; the per-message throttle on each
// Connection is a separate, fixed-window mechanism.
type IPRateLimiter struct {
	entries map[string]*ipLimiterEntry
	mu      sync.RWMutex
	r       rate.Limit
	b       int
	cleanup time.Duration
	stopCh  chan struct{}
}

// NewIPRateLimiter creates a limiter allowing r connection attempts per
// second with bursts of b, cleaning up idle entries every cleanup
// interval.
func NewIPRateLimiter(r rate.Limit, b int, cleanup time.Duration) *IPRateLimiter {
	rl := &IPRateLimiter{
		entries: make(map[string]*ipLimiterEntry),
		r:       r,
		b:       b,
		cleanup: cleanup,
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow checks if a connection attempt from the given IP should be
// accepted.
func (rl *IPRateLimiter) Allow(ip net.IP) bool {
	// string(ip) keeps the raw 4/16 bytes, cheaper than ip.String().
	key := string(ip)

	rl.mu.RLock()
	entry, exists := rl.entries[key]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		// Double-check after escalation, another goroutine may have
		// added it.
		entry, exists = rl.entries[key]
		if !exists {
			entry = &ipLimiterEntry{limiter: rate.NewLimiter(rl.r, rl.b)}
			rl.entries[key] = entry
		}
		rl.mu.Unlock()
	}

	// Refreshed on every attempt, denied ones included: an IP that
	// keeps hammering must never be pruned as idle and handed a fresh
	// burst.
	entry.lastUsed.Store(time.Now().UnixNano())

	return entry.limiter.Allow()
}

// Size returns the number of tracked IPs.
func (rl *IPRateLimiter) Size() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	return len(rl.entries)
}

// Stop terminates the cleanup goroutine.
func (rl *IPRateLimiter) Stop() {
	close(rl.stopCh)
}

func (rl *IPRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := time.Now().Add(-2 * rl.cleanup).UnixNano()
			for key, entry := range rl.entries {
				if entry.lastUsed.Load() < cutoff {
					delete(rl.entries, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}
