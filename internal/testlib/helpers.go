package testlib

import (
	"context"
	"sync"

	"github.com/quillvault/syncwire/synclib"
)

type noopLogger struct{}

func (n noopLogger) Named(string) synclib.Logger           { return n }
func (n noopLogger) BindStr(string, string) synclib.Logger { return n }
func (n noopLogger) BindInt(string, int) synclib.Logger    { return n }
func (n noopLogger) Debug(string)                          {}
func (n noopLogger) Info(string)                           {}
func (n noopLogger) Warning(string)                        {}
func (n noopLogger) DebugError(string, error)              {}
func (n noopLogger) InfoError(string, error)               {}
func (n noopLogger) WarningError(string, error)            {}

// NewNoopLogger returns a logger which discards everything.
func NewNoopLogger() synclib.Logger {
	return noopLogger{}
}

// EventStreamSink records every event it receives. Unlike
// EventStreamMock it needs no expectations, which suits tests where
// events are a side effect rather than the subject.
type EventStreamSink struct {
	mu     sync.Mutex
	events []synclib.Event
}

func (e *EventStreamSink) Send(_ context.Context, evt synclib.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.events = append(e.events, evt)
}

// Events returns a snapshot of everything recorded so far.
func (e *EventStreamSink) Events() []synclib.Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]synclib.Event, len(e.events))
	copy(out, e.events)

	return out
}
