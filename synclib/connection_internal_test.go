package synclib

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConnectionAllowMessage(t *testing.T) {
	t.Run("EnforcesWindowBudget", func(t *testing.T) {
		conn := &Connection{}

		for i := 0; i < 5; i++ {
			assert.True(t, conn.allowMessage(5, time.Minute))
		}

		// Rejection does not consume budget, so the window does not
		// extend itself under sustained abuse.
		assert.False(t, conn.allowMessage(5, time.Minute))
		assert.False(t, conn.allowMessage(5, time.Minute))
	})

	t.Run("ResetsAfterWindow", func(t *testing.T) {
		conn := &Connection{}

		assert.True(t, conn.allowMessage(1, 20*time.Millisecond))
		assert.False(t, conn.allowMessage(1, 20*time.Millisecond))

		time.Sleep(25 * time.Millisecond)

		assert.True(t, conn.allowMessage(1, 20*time.Millisecond))
	})
}

func TestConnectionAuthTimer(t *testing.T) {
	t.Run("FiresWhenUnauthenticated", func(t *testing.T) {
		conn := &Connection{}
		fired := make(chan struct{})

		conn.armAuthTimeout(10*time.Millisecond, func() { close(fired) })

		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatal("auth timer never fired")
		}
	})

	t.Run("CancelledOnAuthentication", func(t *testing.T) {
		conn := &Connection{}
		fired := make(chan struct{})

		conn.armAuthTimeout(30*time.Millisecond, func() { close(fired) })
		conn.markAuthenticated("u1", "token", "secret")

		select {
		case <-fired:
			t.Fatal("auth timer fired after authentication")
		case <-time.After(60 * time.Millisecond):
		}
	})

	t.Run("NotRearmedAfterClear", func(t *testing.T) {
		conn := &Connection{}
		fired := make(chan struct{})

		conn.cancelAuthTimeout()
		conn.armAuthTimeout(10*time.Millisecond, func() { close(fired) })

		select {
		case <-fired:
			t.Fatal("auth timer armed after clear")
		case <-time.After(40 * time.Millisecond):
		}
	})
}
