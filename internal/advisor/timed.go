package advisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

const defaultTimeout = 300 * time.Millisecond

// Timed wraps an Advisor with the hard timeout the dispatch contract
// requires. Errors and timeouts are logged and swallowed; the caller only
// learns whether usable hints came back.
type Timed struct {
	inner   Advisor
	timeout time.Duration
	log     zerolog.Logger
}

func NewTimed(inner Advisor, timeout time.Duration, log zerolog.Logger) *Timed {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Timed{
		inner:   inner,
		timeout: timeout,
		log:     log.With().Str("component", "advisor").Logger(),
	}
}

// Optimize races the inner advisor against the timeout. The inner call keeps
// its own goroutine so a stuck optimizer cannot hold up dispatch; its late
// result is discarded.
func (t *Timed) Optimize(ctx context.Context, profile Profile, payload notify.Payload) (Hints, bool) {
	if t.inner == nil {
		return Hints{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type outcome struct {
		hints Hints
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		hints, err := t.inner.Optimize(ctx, profile, payload)
		done <- outcome{hints: hints, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			t.log.Debug().Err(out.err).Msg("advisor error, using defaults")
			return Hints{}, false
		}
		return out.hints, true
	case <-ctx.Done():
		t.log.Debug().Dur("timeout", t.timeout).Msg("advisor timed out, using defaults")
		return Hints{}, false
	}
}

// Probe forwards the liveness check for the health monitor.
func (t *Timed) Probe(ctx context.Context) error {
	if t.inner == nil {
		return nil
	}
	return t.inner.Probe(ctx)
}
