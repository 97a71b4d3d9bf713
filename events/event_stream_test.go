package events_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/quillvault/syncwire/events"
	"github.com/quillvault/syncwire/synclib"
)

type recordingObserver struct {
	mu sync.Mutex

	opened     int
	closed     int
	authed     int
	broadcasts int
	shutdowns  int
}

func (r *recordingObserver) EventConnectionOpened(synclib.EventConnectionOpened) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened++
}

func (r *recordingObserver) EventConnectionClosed(synclib.EventConnectionClosed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
}

func (r *recordingObserver) EventAuthenticated(synclib.EventAuthenticated) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authed++
}

func (r *recordingObserver) EventAuthFailed(synclib.EventAuthFailed)                 {}
func (r *recordingObserver) EventRateLimited(synclib.EventRateLimited)               {}
func (r *recordingObserver) EventConcurrencyLimited(synclib.EventConcurrencyLimited) {}
func (r *recordingObserver) EventReplayAttack(synclib.EventReplayAttack)             {}

func (r *recordingObserver) EventBroadcast(synclib.EventBroadcast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts++
}

func (r *recordingObserver) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdowns++
}

func (r *recordingObserver) snapshot() (int, int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.opened, r.closed, r.authed, r.broadcasts
}

type EventStreamTestSuite struct {
	suite.Suite

	observer *recordingObserver
	stream   events.EventStream
}

func (suite *EventStreamTestSuite) SetupTest() {
	suite.observer = &recordingObserver{}
	suite.stream = events.NewEventStream([]events.ObserverFactory{
		func() events.Observer { return suite.observer },
	})
}

func (suite *EventStreamTestSuite) TearDownTest() {
	suite.stream.Shutdown()
}

func (suite *EventStreamTestSuite) TestRoutesEvents() {
	ctx := context.Background()
	ip := net.ParseIP("192.0.2.1")

	suite.stream.Send(ctx, synclib.NewEventConnectionOpened("conn-1", ip))
	suite.stream.Send(ctx, synclib.NewEventAuthenticated("conn-1", "user-1"))
	suite.stream.Send(ctx, synclib.NewEventBroadcast("conn-1", "note_sync", 2))
	suite.stream.Send(ctx, synclib.NewEventConnectionClosed("conn-1"))

	suite.Eventually(func() bool {
		opened, closed, authed, broadcasts := suite.observer.snapshot()

		return opened == 1 && closed == 1 && authed == 1 && broadcasts == 1
	}, time.Second, 10*time.Millisecond)
}

func (suite *EventStreamTestSuite) TestEventWithoutConnection() {
	suite.stream.Send(context.Background(), synclib.NewEventConcurrencyLimited())

	// Routed to a random observer goroutine, but still processed.
	suite.Eventually(func() bool {
		return suite.stream.Dropped() == 0
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func (suite *EventStreamTestSuite) TestSendAfterShutdown() {
	suite.stream.Shutdown()

	done := make(chan struct{})

	go func() {
		defer close(done)

		for i := 0; i < 1000; i++ {
			suite.stream.Send(context.Background(), synclib.NewEventConnectionClosed("conn-1"))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		suite.T().Fatal("send blocked after shutdown")
	}
}

func TestEventStream(t *testing.T) {
	suite.Run(t, &EventStreamTestSuite{})
}

func TestNoopEventStream(t *testing.T) {
	stream := events.NewEventStream(nil)
	defer stream.Shutdown()

	// Nothing to assert beyond "does not block or panic".
	for i := 0; i < 100; i++ {
		stream.Send(context.Background(), synclib.NewEventRateLimited("conn-1"))
	}

	assert.Zero(t, stream.Dropped())
}
