package synclib

import "time"

const (
	// DefaultAuthTimeout is a time a fresh connection has to complete
	// the auth handshake before it is force-closed.
	DefaultAuthTimeout = 30 * time.Second

	// DefaultMaxConnectionsPerUser limits how many devices a single
	// user can keep connected at the same time.
	DefaultMaxConnectionsPerUser = 10

	// DefaultRateLimitMax and DefaultRateLimitWindow define the
	// per-connection fixed-window message throttle.
	DefaultRateLimitMax    = 60
	DefaultRateLimitWindow = time.Minute

	// DefaultMaxFrameSize is the largest inbound frame the engine
	// answers. Oversized frames are rejected without closing the
	// socket.
	DefaultMaxFrameSize = 64 * 1024

	// hardReadLimit is the transport-level read cap. Frames above it
	// terminate the connection: there is no way to drain them safely.
	hardReadLimit = 1024 * 1024

	// DefaultConcurrency is a size of the worker pool running
	// per-connection read loops.
	DefaultConcurrency = 4096

	// DefaultWriteTimeout bounds a single frame write. A peer slower
	// than this silently misses the frame (best-effort fan-out).
	DefaultWriteTimeout = 10 * time.Second

	// DefaultVerifyTimeout bounds the external token verification call.
	DefaultVerifyTimeout = 10 * time.Second

	// DefaultReplayWindow and DefaultReplayFutureSkew are the accepted
	// envelope timestamp bounds: [now-window, now+skew].
	DefaultReplayWindow     = 5 * time.Minute
	DefaultReplayFutureSkew = time.Minute

	// DefaultReplayMaxEntries caps the nonce ledger. On overflow the
	// ledger performs an emergency full clear.
	DefaultReplayMaxEntries = 100_000

	// DefaultReplaySweepEach is how often consumed nonces older than
	// the replay window are purged.
	DefaultReplaySweepEach = time.Minute
)
