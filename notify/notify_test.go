package notify

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTransport struct {
	sends atomic.Int32
	err   error
}

func (c *countingTransport) Send() error {
	c.sends.Add(1)
	return c.err
}

func waitForSends(t *testing.T, tr *countingTransport, want int32) {
	t.Helper()
	require.Eventually(t, func() bool { return tr.sends.Load() == want },
		time.Second, time.Millisecond)
}

func TestFirstNotificationEmits(t *testing.T) {
	tr := &countingTransport{}
	l := NewLimiter(tr, zerolog.Nop())

	l.MaybeNotify()
	waitForSends(t, tr, 1)
}

func TestNotificationsSuppressedWithinWindow(t *testing.T) {
	tr := &countingTransport{}
	l := NewLimiter(tr, zerolog.Nop())

	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	l.MaybeNotify()
	waitForSends(t, tr, 1)

	// 59.999s later: still suppressed.
	now = now.Add(suppressInterval - time.Millisecond)
	l.MaybeNotify()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), tr.sends.Load())

	// Exactly at the interval: emits again.
	now = now.Add(time.Millisecond)
	l.MaybeNotify()
	waitForSends(t, tr, 2)
}

func TestBurstCollapsesToOneEmit(t *testing.T) {
	tr := &countingTransport{}
	l := NewLimiter(tr, zerolog.Nop())

	fixed := time.Unix(2000, 0)
	l.now = func() time.Time { return fixed }

	for i := 0; i < 100; i++ {
		l.MaybeNotify()
	}
	waitForSends(t, tr, 1)
}

func TestTransportErrorIsSwallowed(t *testing.T) {
	tr := &countingTransport{err: assert.AnError}
	l := NewLimiter(tr, zerolog.Nop())

	// Must not panic or propagate; the timestamp still advances so the
	// failed attempt counts against the window.
	l.MaybeNotify()
	waitForSends(t, tr, 1)

	l.MaybeNotify()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), tr.sends.Load())
}
