package synclib

import (
	"time"
)

// ManagerOpts is a structure with settings to the sync manager.
//
// This is not required per se, but this is to shorten function
// signature and give an ability to conveniently provide default values.
type ManagerOpts struct {
	// Logger defines an instance of the logger.
	//
	// This is a mandatory setting.
	Logger Logger

	// EventStream defines an instance of event stream.
	//
	// This is a mandatory setting.
	EventStream EventStream

	// TokenVerifier validates bearer tokens against the external
	// identity provider.
	//
	// This is a mandatory setting.
	TokenVerifier TokenVerifier

	// Notes is the scoped note persistence collaborator.
	//
	// This is a mandatory setting.
	Notes NoteStore

	// Folders is the scoped folder persistence collaborator.
	//
	// This is a mandatory setting.
	Folders FolderStore

	// MaxConnectionsPerUser limits simultaneous devices per user.
	//
	// This is an optional setting.
	MaxConnectionsPerUser uint

	// RateLimitMax and RateLimitWindow define the per-connection
	// fixed-window message throttle.
	//
	// These are optional settings.
	RateLimitMax    uint
	RateLimitWindow time.Duration

	// AuthTimeout is how long a connection may stay unauthenticated
	// before it is force-closed.
	//
	// This is an optional setting.
	AuthTimeout time.Duration

	// VerifyTimeout bounds a single token verification call.
	//
	// This is an optional setting.
	VerifyTimeout time.Duration

	// MaxFrameSize is the largest inbound frame which gets processed.
	// Bigger frames are answered with an error, the socket stays open.
	//
	// This is an optional setting.
	MaxFrameSize uint

	// WriteTimeout bounds a single outbound frame write.
	//
	// This is an optional setting.
	WriteTimeout time.Duration

	// Concurrency is a size of the worker pool running per-connection
	// read loops. Connections above this number are declined.
	//
	// This is an optional setting.
	Concurrency uint

	// AcceptRatePerSecond and AcceptRateBurst throttle connection
	// attempts per client IP before the upgrade. Zero disables the
	// accept limiter.
	//
	// These are optional settings.
	AcceptRatePerSecond float64
	AcceptRateBurst     int

	// ReplayWindow and ReplayFutureSkew are the accepted envelope
	// timestamp bounds: [now-window, now+skew].
	//
	// These are optional settings.
	ReplayWindow     time.Duration
	ReplayFutureSkew time.Duration

	// ReplayMaxEntries caps the nonce ledger; ReplaySweepEach is the
	// purge cadence.
	//
	// These are optional settings.
	ReplayMaxEntries int
	ReplaySweepEach  time.Duration
}

func (m ManagerOpts) valid() error {
	switch {
	case m.Logger == nil:
		return ErrLoggerIsNotDefined
	case m.EventStream == nil:
		return ErrEventStreamIsNotDefined
	case m.TokenVerifier == nil:
		return ErrTokenVerifierIsNotDefined
	case m.Notes == nil:
		return ErrNoteStoreIsNotDefined
	case m.Folders == nil:
		return ErrFolderStoreIsNotDefined
	}

	return nil
}

func (m ManagerOpts) getMaxConnectionsPerUser() int {
	if m.MaxConnectionsPerUser == 0 {
		return DefaultMaxConnectionsPerUser
	}

	return int(m.MaxConnectionsPerUser)
}

func (m ManagerOpts) getRateLimitMax() int {
	if m.RateLimitMax == 0 {
		return DefaultRateLimitMax
	}

	return int(m.RateLimitMax)
}

func (m ManagerOpts) getRateLimitWindow() time.Duration {
	if m.RateLimitWindow == 0 {
		return DefaultRateLimitWindow
	}

	return m.RateLimitWindow
}

func (m ManagerOpts) getAuthTimeout() time.Duration {
	if m.AuthTimeout == 0 {
		return DefaultAuthTimeout
	}

	return m.AuthTimeout
}

func (m ManagerOpts) getVerifyTimeout() time.Duration {
	if m.VerifyTimeout == 0 {
		return DefaultVerifyTimeout
	}

	return m.VerifyTimeout
}

func (m ManagerOpts) getMaxFrameSize() int {
	if m.MaxFrameSize == 0 {
		return DefaultMaxFrameSize
	}

	return int(m.MaxFrameSize)
}

func (m ManagerOpts) getWriteTimeout() time.Duration {
	if m.WriteTimeout == 0 {
		return DefaultWriteTimeout
	}

	return m.WriteTimeout
}

func (m ManagerOpts) getConcurrency() int {
	if m.Concurrency == 0 {
		return DefaultConcurrency
	}

	return int(m.Concurrency)
}

func (m ManagerOpts) getReplayWindow() time.Duration {
	if m.ReplayWindow == 0 {
		return DefaultReplayWindow
	}

	return m.ReplayWindow
}

func (m ManagerOpts) getReplayFutureSkew() time.Duration {
	if m.ReplayFutureSkew == 0 {
		return DefaultReplayFutureSkew
	}

	return m.ReplayFutureSkew
}

func (m ManagerOpts) getReplayMaxEntries() int {
	if m.ReplayMaxEntries == 0 {
		return DefaultReplayMaxEntries
	}

	return m.ReplayMaxEntries
}

func (m ManagerOpts) getReplaySweepEach() time.Duration {
	if m.ReplaySweepEach == 0 {
		return DefaultReplaySweepEach
	}

	return m.ReplaySweepEach
}
