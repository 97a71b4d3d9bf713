package msgauth

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OneOfOne/xxhash"
)

// NonceLedger records consumed (nonce, timestamp) pairs for replay
// detection. Entries are keyed by a 64-bit xxhash of the pair: a
// collision would reject a legitimate message, but at the ledger's
// bounded size the probability is negligible, and the memory win over
// storing raw nonces is substantial.
//
// The ledger is hard-capped. On overflow it performs an emergency full
// clear: briefly re-accepting an old nonce is preferable to unbounded
// growth, and the timestamp bounds still limit how old that replay can
// be.
type NonceLedger struct {
	mu         sync.Mutex
	seen       map[uint64]time.Time
	ttl        time.Duration
	maxEntries int
	stopCh     chan struct{}
	stopOnce   sync.Once

	checks  atomic.Uint64
	replays atomic.Uint64
	clears  atomic.Uint64
}

// NewNonceLedger builds a ledger purging entries older than ttl every
// sweepEach interval, holding at most maxEntries entries.
func NewNonceLedger(ttl time.Duration, maxEntries int, sweepEach time.Duration) *NonceLedger {
	l := &NonceLedger{
		seen:       make(map[uint64]time.Time),
		ttl:        ttl,
		maxEntries: maxEntries,
		stopCh:     make(chan struct{}),
	}

	go l.sweepLoop(sweepEach)

	return l
}

func ledgerKey(nonce string, timestamp int64) uint64 {
	return xxhash.ChecksumString64(nonce + ":" + strconv.FormatInt(timestamp, 10))
}

// Seen reports whether the pair was already consumed.
func (l *NonceLedger) Seen(nonce string, timestamp int64) bool {
	l.checks.Add(1)

	l.mu.Lock()
	defer l.mu.Unlock()

	_, found := l.seen[ledgerKey(nonce, timestamp)]
	if found {
		l.replays.Add(1)
	}

	return found
}

// Consume marks the pair as used.
func (l *NonceLedger) Consume(nonce string, timestamp int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.consumeLocked(ledgerKey(nonce, timestamp))
}

// ConsumeIfFresh records the pair and reports whether it was fresh.
// Check and insert hold the lock together, so of any number of
// concurrent callers presenting the same pair exactly one gets true.
func (l *NonceLedger) ConsumeIfFresh(nonce string, timestamp int64) bool {
	l.checks.Add(1)

	l.mu.Lock()
	defer l.mu.Unlock()

	key := ledgerKey(nonce, timestamp)
	if _, found := l.seen[key]; found {
		l.replays.Add(1)

		return false
	}

	l.consumeLocked(key)

	return true
}

func (l *NonceLedger) consumeLocked(key uint64) {
	if len(l.seen) >= l.maxEntries {
		l.seen = make(map[uint64]time.Time)
		l.clears.Add(1)
	}

	l.seen[key] = time.Now()
}

// Len returns the number of live entries.
func (l *NonceLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.seen)
}

// Metrics is a snapshot of ledger counters.
type Metrics struct {
	TotalChecks     uint64
	ReplaysDetected uint64
	EmergencyClears uint64
}

// GetMetrics returns current statistics. Thread-safe.
func (l *NonceLedger) GetMetrics() Metrics {
	return Metrics{
		TotalChecks:     l.checks.Load(),
		ReplaysDetected: l.replays.Load(),
		EmergencyClears: l.clears.Load(),
	}
}

// Stop terminates the sweep goroutine.
func (l *NonceLedger) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
}

func (l *NonceLedger) sweepLoop(each time.Duration) {
	ticker := time.NewTicker(each)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *NonceLedger) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	for key, consumedAt := range l.seen {
		if now.Sub(consumedAt) > l.ttl {
			delete(l.seen, key)
		}
	}
}
