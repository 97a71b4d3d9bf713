package events

import (
	"context"
	"math/rand"
	"runtime"
	"sync/atomic"

	"github.com/OneOfOne/xxhash"

	"github.com/quillvault/syncwire/synclib"
)

// EventStream is a default implementation of the [synclib.EventStream]
// interface.
//
// EventStream manages a set of goroutines, observers. Main
// responsibility of the event stream is to route an event to a relevant
// observer based on some hash so each observer will have all events
// which belong to some connection id.
//
// Thus, EventStream can spawn many observers.
type EventStream struct {
	ctx       context.Context
	ctxCancel context.CancelFunc
	chans     []chan synclib.Event

	// dropped counts events lost on channel overflow. Pointer-based:
	// EventStream uses value receivers and atomic.Uint64 contains
	// noCopy.
	dropped *atomic.Uint64
}

// Send delivers an event to its observer.
//
// EventBroadcast is the high-frequency event of the engine, one per
// fan-out. A slow observer (GC pause in the metrics exporter, blocked
// statsd socket) must not stall the read loops, so broadcast events
// are dropped on overflow. The rest are rare and feed counters which
// must stay exact, so they are delivered blocking.
func (e EventStream) Send(ctx context.Context, evt synclib.Event) {
	var chanNo uint32

	if connID := evt.ConnID(); connID != "" {
		chanNo = xxhash.ChecksumString32(connID)
	} else {
		chanNo = rand.Uint32()
	}

	ch := e.chans[int(chanNo)%len(e.chans)]

	if _, isBroadcast := evt.(synclib.EventBroadcast); isBroadcast {
		select {
		case <-ctx.Done():
		case <-e.ctx.Done():
		case ch <- evt:
		default:
			e.dropped.Add(1)
		}

		return
	}

	select {
	case <-ctx.Done():
	case <-e.ctx.Done():
	case ch <- evt:
	}
}

// Dropped returns the count of events dropped since start.
func (e EventStream) Dropped() uint64 {
	return e.dropped.Load()
}

// Shutdown stops an event stream pipeline.
func (e EventStream) Shutdown() {
	e.ctxCancel()
}

// NewEventStream builds a new default event stream.
//
// If you give an empty array of observers, then NoopObserver is going
// to be used. If you give many observers, then they will process a
// message concurrently.
func NewEventStream(observerFactories []ObserverFactory) EventStream {
	if len(observerFactories) == 0 {
		observerFactories = append(observerFactories, NewNoopObserver)
	}

	ctx, cancel := context.WithCancel(context.Background())
	rv := EventStream{
		ctx:       ctx,
		ctxCancel: cancel,
		chans:     make([]chan synclib.Event, runtime.NumCPU()),
		dropped:   &atomic.Uint64{},
	}

	for i := 0; i < runtime.NumCPU(); i++ {
		rv.chans[i] = make(chan synclib.Event, 64)

		if len(observerFactories) == 1 {
			go eventStreamProcessor(ctx, rv.chans[i], observerFactories[0]())
		} else {
			go eventStreamProcessor(ctx, rv.chans[i], newMultiObserver(observerFactories))
		}
	}

	return rv
}

func eventStreamProcessor(ctx context.Context, eventChan <-chan synclib.Event, observer Observer) {
	defer observer.Shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-eventChan:
			switch typedEvt := evt.(type) {
			case synclib.EventConnectionOpened:
				observer.EventConnectionOpened(typedEvt)
			case synclib.EventConnectionClosed:
				observer.EventConnectionClosed(typedEvt)
			case synclib.EventAuthenticated:
				observer.EventAuthenticated(typedEvt)
			case synclib.EventAuthFailed:
				observer.EventAuthFailed(typedEvt)
			case synclib.EventRateLimited:
				observer.EventRateLimited(typedEvt)
			case synclib.EventConcurrencyLimited:
				observer.EventConcurrencyLimited(typedEvt)
			case synclib.EventReplayAttack:
				observer.EventReplayAttack(typedEvt)
			case synclib.EventBroadcast:
				observer.EventBroadcast(typedEvt)
			}
		}
	}
}
