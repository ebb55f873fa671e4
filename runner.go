// Package calibration drives a calibration station: it binds procedures to
// step ordinals, runs them with bounded retries and a recovery action between
// attempts, and bootstraps the session around them.
package calibration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/simon020286/go-calibration/models"
)

// DefaultMaxAttempts is the number of attempts a step gets before it fails
const DefaultMaxAttempts = 3

// Step binds a procedure to its ordinal
type Step struct {
	Ordinal   int
	Procedure models.Procedure
}

// Runner runs steps one at a time. A failed attempt is followed by the
// recovery action and a new attempt, up to the attempt bound.
type Runner struct {
	steps map[int]*Step
	mutex sync.RWMutex

	maxAttempts int
	recovery    models.Recovery
	clock       models.Clock

	running  atomic.Bool
	eventBus *eventBus
}

// RunnerOption customizes a Runner
type RunnerOption func(*Runner)

// WithMaxAttempts sets the attempt bound (values below 1 are ignored)
func WithMaxAttempts(n int) RunnerOption {
	return func(r *Runner) {
		if n >= 1 {
			r.maxAttempts = n
		}
	}
}

// WithRecovery sets the action run between a failed attempt and the next
func WithRecovery(recovery models.Recovery) RunnerOption {
	return func(r *Runner) {
		r.recovery = recovery
	}
}

// WithClock sets the clock used for timestamps and durations
func WithClock(clock models.Clock) RunnerOption {
	return func(r *Runner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewRunner creates an empty runner
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		steps:       make(map[int]*Step),
		maxAttempts: DefaultMaxAttempts,
		clock:       models.SystemClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.eventBus = newEventBus(r.clock.Now)
	return r
}

// AddListener adds a listener to receive events from the runner
func (r *Runner) AddListener(listener models.EventListener) {
	r.eventBus.addListener(listener)
}

// Register binds proc to ordinal
func (r *Runner) Register(ordinal int, proc models.Procedure) error {
	if ordinal <= 0 {
		return fmt.Errorf("step ordinal must be positive, got %d", ordinal)
	}
	if proc == nil {
		return fmt.Errorf("step %d: nil procedure", ordinal)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.steps[ordinal]; exists {
		return fmt.Errorf("step %d already registered", ordinal)
	}
	r.steps[ordinal] = &Step{Ordinal: ordinal, Procedure: proc}
	return nil
}

// GetStep returns the step bound to ordinal
func (r *Runner) GetStep(ordinal int) (*Step, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	step, ok := r.steps[ordinal]
	return step, ok
}

// Ordinals returns the registered ordinals in ascending order
func (r *Runner) Ordinals() []int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]int, 0, len(r.steps))
	for ordinal := range r.steps {
		out = append(out, ordinal)
	}
	sort.Ints(out)
	return out
}

// MaxAttempts returns the attempt bound
func (r *Runner) MaxAttempts() int {
	return r.maxAttempts
}

// IsRunning reports whether a step is being run
func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// RunStep runs the step bound to ordinal and reports its verdict. Exhausting
// the attempts yields false with a nil error; the error is reserved for an
// unknown ordinal, a busy runner or a cancelled context.
func (r *Runner) RunStep(ctx context.Context, ordinal int) (bool, error) {
	passed, _, err := r.runStep(ctx, ordinal)
	return passed, err
}

// RunAll runs every registered step in ascending order and stops at the
// first one that fails. A failed step is reported as *models.StepFailedError.
func (r *Runner) RunAll(ctx context.Context) error {
	for _, ordinal := range r.Ordinals() {
		passed, last, err := r.runStep(ctx, ordinal)
		if err != nil {
			return err
		}
		if !passed {
			return &models.StepFailedError{Ordinal: ordinal, Attempts: r.maxAttempts, Reason: last.Reason}
		}
	}
	return nil
}

func (r *Runner) runStep(ctx context.Context, ordinal int) (bool, models.Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		return false, models.Result{}, models.ErrRunnerBusy
	}
	defer r.running.Store(false)

	step, ok := r.GetStep(ordinal)
	if !ok {
		return false, models.Result{}, &models.UnknownStepError{Ordinal: ordinal}
	}
	name := step.Procedure.Name()

	var last models.Result
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, last, err
		}

		r.eventBus.EmitStepStarted(ordinal, name, attempt)
		start := r.clock.Now()
		last = step.Procedure.Run(ctx)
		r.eventBus.EmitStepFinished(ordinal, name, attempt, last, r.clock.Now().Sub(start))

		if last.Passed {
			return true, last, nil
		}
		if err := ctx.Err(); err != nil {
			return false, last, err
		}

		if attempt == r.maxAttempts {
			r.eventBus.EmitStepExhausted(ordinal, attempt, last.Reason)
			break
		}

		r.eventBus.EmitStepRetrying(ordinal, attempt, last.Reason)
		if r.recovery != nil {
			// a failed recovery does not cancel the next attempt
			if err := r.recovery.Recover(ctx); err != nil {
				r.eventBus.EmitRecoveryFailed(ordinal, err)
			}
		}
	}

	return false, last, nil
}
