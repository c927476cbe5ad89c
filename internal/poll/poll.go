// Package poll waits for an asynchronous job to reach a terminal state.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/celemqhele/cvtailorpro/internal/utils"
)

const (
	DefaultInterval = 2 * time.Second
	DefaultTimeout  = 60 * time.Second
)

// ErrTimeout is returned when the job did not finish within the wall-clock bound.
var ErrTimeout = errors.New("job polling timed out")

// State is the job state reported by a single status check.
type State int

const (
	Pending State = iota
	Finished
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether polling must stop at s.
func (s State) Terminal() bool {
	return s == Finished || s == Failed
}

// Check fetches the current job state once.
type Check func(ctx context.Context) (State, error)

// Poller polls at a fixed interval until a terminal state or the timeout.
type Poller struct {
	Interval time.Duration
	Timeout  time.Duration

	// Sleep and Now default to utils.WaitFor and time.Now.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// New returns a Poller, substituting defaults for non-positive values.
func New(interval, timeout time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Poller{Interval: interval, Timeout: timeout}
}

// Until runs check until it reports a terminal state. The first check runs
// immediately. A check error ends polling. Polling never continues past a
// terminal state, and a check still running at the timeout is abandoned.
func (p *Poller) Until(ctx context.Context, check Check) (State, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = utils.WaitFor
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	deadline := now().Add(timeout)
	bounded, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	expired := func(err error) error {
		if ctx.Err() == nil && errors.Is(bounded.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return err
	}

	for {
		state, err := check(bounded)
		if err != nil {
			return Failed, expired(err)
		}
		if state.Terminal() {
			return state, nil
		}

		remaining := deadline.Sub(now())
		if remaining <= 0 {
			return Pending, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}

		wait := interval
		if wait > remaining {
			wait = remaining
		}
		if err := sleep(bounded, wait); err != nil {
			return Pending, expired(err)
		}
	}
}
