// Package rendezvous implements the operator-confirmation handshake: an
// out-of-process watcher signals through a shared artifact and the procedure
// polls for it.
//
// Visibility is eventual and best effort. A write by the watcher is observed
// on some later poll; the caller picks the polling granularity.
package rendezvous

import (
	"context"
	"time"

	"github.com/simon020286/go-calibration/models"
)

// Source is a one-shot signal
type Source interface {
	// Arm clears any stale signal and starts whatever produces the next one
	Arm(ctx context.Context) error
	// Poll reports whether the signal has arrived
	Poll(ctx context.Context) (bool, error)
	// Disarm releases the signal and stops the producer
	Disarm(ctx context.Context) error
}

// WaitOptions controls Wait. A zero Timeout waits until ctx is done.
type WaitOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	Clock    models.Clock
}

// DefaultInterval is the polling period used when none is set
const DefaultInterval = 200 * time.Millisecond

// Wait polls src until it signals, ctx is done or the timeout elapses.
// A timeout returns models.ErrOperatorTimeout.
func Wait(ctx context.Context, src Source, opts WaitOptions) error {
	clock := opts.Clock
	if clock == nil {
		clock = models.SystemClock{}
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	var deadline <-chan time.Time
	if opts.Timeout > 0 {
		deadline = clock.After(opts.Timeout)
	}

	for {
		ok, err := src.Poll(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return models.ErrOperatorTimeout
		case <-clock.After(interval):
		}
	}
}
