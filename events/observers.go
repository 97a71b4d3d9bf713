package events

import "github.com/quillvault/syncwire/synclib"

// Observer is an instance which processes events routed by the event
// stream. Each observer sees all events of a given connection id.
type Observer interface {
	EventConnectionOpened(synclib.EventConnectionOpened)
	EventConnectionClosed(synclib.EventConnectionClosed)
	EventAuthenticated(synclib.EventAuthenticated)
	EventAuthFailed(synclib.EventAuthFailed)
	EventRateLimited(synclib.EventRateLimited)
	EventConcurrencyLimited(synclib.EventConcurrencyLimited)
	EventReplayAttack(synclib.EventReplayAttack)
	EventBroadcast(synclib.EventBroadcast)

	Shutdown()
}

// ObserverFactory makes a new observer. The event stream runs one
// observer set per routing goroutine.
type ObserverFactory func() Observer

type noopObserver struct{}

func (n noopObserver) EventConnectionOpened(synclib.EventConnectionOpened)     {}
func (n noopObserver) EventConnectionClosed(synclib.EventConnectionClosed)     {}
func (n noopObserver) EventAuthenticated(synclib.EventAuthenticated)           {}
func (n noopObserver) EventAuthFailed(synclib.EventAuthFailed)                 {}
func (n noopObserver) EventRateLimited(synclib.EventRateLimited)               {}
func (n noopObserver) EventConcurrencyLimited(synclib.EventConcurrencyLimited) {}
func (n noopObserver) EventReplayAttack(synclib.EventReplayAttack)             {}
func (n noopObserver) EventBroadcast(synclib.EventBroadcast)                   {}
func (n noopObserver) Shutdown()                                               {}

// NewNoopObserver returns an observer which discards everything.
func NewNoopObserver() Observer {
	return noopObserver{}
}

type multiObserver struct {
	observers []Observer
}

func (m multiObserver) EventConnectionOpened(evt synclib.EventConnectionOpened) {
	for _, obs := range m.observers {
		obs.EventConnectionOpened(evt)
	}
}

func (m multiObserver) EventConnectionClosed(evt synclib.EventConnectionClosed) {
	for _, obs := range m.observers {
		obs.EventConnectionClosed(evt)
	}
}

func (m multiObserver) EventAuthenticated(evt synclib.EventAuthenticated) {
	for _, obs := range m.observers {
		obs.EventAuthenticated(evt)
	}
}

func (m multiObserver) EventAuthFailed(evt synclib.EventAuthFailed) {
	for _, obs := range m.observers {
		obs.EventAuthFailed(evt)
	}
}

func (m multiObserver) EventRateLimited(evt synclib.EventRateLimited) {
	for _, obs := range m.observers {
		obs.EventRateLimited(evt)
	}
}

func (m multiObserver) EventConcurrencyLimited(evt synclib.EventConcurrencyLimited) {
	for _, obs := range m.observers {
		obs.EventConcurrencyLimited(evt)
	}
}

func (m multiObserver) EventReplayAttack(evt synclib.EventReplayAttack) {
	for _, obs := range m.observers {
		obs.EventReplayAttack(evt)
	}
}

func (m multiObserver) EventBroadcast(evt synclib.EventBroadcast) {
	for _, obs := range m.observers {
		obs.EventBroadcast(evt)
	}
}

func (m multiObserver) Shutdown() {
	for _, obs := range m.observers {
		obs.Shutdown()
	}
}

func newMultiObserver(factories []ObserverFactory) Observer {
	observers := make([]Observer, len(factories))
	for i, factory := range factories {
		observers[i] = factory()
	}

	return multiObserver{observers: observers}
}
