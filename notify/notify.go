// Package notify raises the out-of-band motion alert: an email submitted
// over implicit-TLS SMTP, rate-limited so repeated motion cannot flood the
// recipient.
package notify

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// suppressInterval is the minimum wall-clock spacing between two alerts.
const suppressInterval = 60 * time.Second

// Transport delivers one alert. Implementations must be safe for use from
// a single goroutine at a time.
type Transport interface {
	Send() error
}

// Limiter gates a Transport behind the suppression interval. Transport
// errors are logged, never propagated: a failed alert must not disturb the
// pipeline.
type Limiter struct {
	mu        sync.Mutex
	lastEmit  time.Time
	transport Transport
	now       func() time.Time
	log       zerolog.Logger
}

// NewLimiter creates a limiter around the given transport.
func NewLimiter(transport Transport, log zerolog.Logger) *Limiter {
	return &Limiter{
		transport: transport,
		now:       time.Now,
		log:       log.With().Str("component", "notify").Logger(),
	}
}

// MaybeNotify emits an alert if at least the suppression interval has
// passed since the previous one, otherwise does nothing. The timestamp is
// claimed before the transport runs, so concurrent callers cannot double
// emit; delivery itself happens off the caller's goroutine.
func (l *Limiter) MaybeNotify() {
	l.mu.Lock()
	if !l.lastEmit.IsZero() && l.now().Sub(l.lastEmit) < suppressInterval {
		l.mu.Unlock()
		return
	}
	l.lastEmit = l.now()
	l.mu.Unlock()

	l.log.Info().Msg("sending notification")
	go func() {
		if err := l.transport.Send(); err != nil {
			l.log.Error().Err(err).Msg("notification send failed")
		}
	}()
}
