package msgauth_test

import (
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillvault/syncwire/synclib/internal/msgauth"
)

func TestNonceLedger(t *testing.T) {
	t.Run("ConsumeThenSeen", func(t *testing.T) {
		ledger := msgauth.NewNonceLedger(time.Minute, 1000, time.Hour)
		defer ledger.Stop()

		assert.False(t, ledger.Seen("nonce", 42))

		ledger.Consume("nonce", 42)

		assert.True(t, ledger.Seen("nonce", 42))
		assert.False(t, ledger.Seen("nonce", 43))
		assert.Equal(t, 1, ledger.Len())
	})

	t.Run("ConsumeIfFresh", func(t *testing.T) {
		ledger := msgauth.NewNonceLedger(time.Minute, 1000, time.Hour)
		defer ledger.Stop()

		assert.True(t, ledger.ConsumeIfFresh("nonce", 42))
		assert.False(t, ledger.ConsumeIfFresh("nonce", 42))
		assert.True(t, ledger.ConsumeIfFresh("nonce", 43))

		metrics := ledger.GetMetrics()
		assert.Equal(t, uint64(3), metrics.TotalChecks)
		assert.Equal(t, uint64(1), metrics.ReplaysDetected)
	})

	t.Run("ConsumeIfFreshConcurrent", func(t *testing.T) {
		ledger := msgauth.NewNonceLedger(time.Minute, 1000, time.Hour)
		defer ledger.Stop()

		const workers = 32

		var (
			wg        sync.WaitGroup
			succeeded atomic.Int64
		)

		wg.Add(workers)

		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()

				if ledger.ConsumeIfFresh("contested", 42) {
					succeeded.Add(1)
				}
			}()
		}

		wg.Wait()

		assert.EqualValues(t, 1, succeeded.Load())
		assert.EqualValues(t, workers-1, ledger.GetMetrics().ReplaysDetected)
	})

	t.Run("SweepPurgesExpired", func(t *testing.T) {
		ledger := msgauth.NewNonceLedger(50*time.Millisecond, 1000, 20*time.Millisecond)
		defer ledger.Stop()

		ledger.Consume("nonce", 42)
		require.Equal(t, 1, ledger.Len())

		assert.Eventually(t, func() bool {
			return ledger.Len() == 0
		}, time.Second, 10*time.Millisecond)

		assert.False(t, ledger.Seen("nonce", 42))
	})

	t.Run("EmergencyClearOnOverflow", func(t *testing.T) {
		ledger := msgauth.NewNonceLedger(time.Hour, 10, time.Hour)
		defer ledger.Stop()

		for i := 0; i < 10; i++ {
			ledger.Consume("nonce-"+strconv.Itoa(i), int64(i))
		}

		require.Equal(t, 10, ledger.Len())

		ledger.Consume("one-too-many", 100)

		assert.Equal(t, 1, ledger.Len())
		assert.False(t, ledger.Seen("nonce-0", 0))
		assert.True(t, ledger.Seen("one-too-many", 100))
		assert.Equal(t, uint64(1), ledger.GetMetrics().EmergencyClears)
	})

	t.Run("Metrics", func(t *testing.T) {
		ledger := msgauth.NewNonceLedger(time.Minute, 1000, time.Hour)
		defer ledger.Stop()

		ledger.Seen("nonce", 1)
		ledger.Consume("nonce", 1)
		ledger.Seen("nonce", 1)

		metrics := ledger.GetMetrics()

		assert.Equal(t, uint64(2), metrics.TotalChecks)
		assert.Equal(t, uint64(1), metrics.ReplaysDetected)
		assert.Equal(t, uint64(0), metrics.EmergencyClears)
	})
}
