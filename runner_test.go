package calibration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/simon020286/go-calibration/models"
)

// mockProcedure fails until failures runs have been made
type mockProcedure struct {
	failures int
	calls    int
	onRun    func(ctx context.Context)
}

func (m *mockProcedure) Name() string {
	return "mock"
}

func (m *mockProcedure) Run(ctx context.Context) models.Result {
	m.calls++
	if m.onRun != nil {
		m.onRun(ctx)
	}
	if m.calls <= m.failures {
		return models.Failf("attempt %d failed", m.calls)
	}
	return models.Pass()
}

type countingRecovery struct {
	calls int
	err   error
}

func (c *countingRecovery) Recover(ctx context.Context) error {
	c.calls++
	return c.err
}

type eventRecorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (e *eventRecorder) OnEvent(event models.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *eventRecorder) types() []models.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.EventType, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Type
	}
	return out
}

func TestNewRunner(t *testing.T) {
	r := NewRunner()

	if r.MaxAttempts() != DefaultMaxAttempts {
		t.Errorf("Expected %d attempts, got %d", DefaultMaxAttempts, r.MaxAttempts())
	}
	if r.eventBus == nil {
		t.Error("eventBus not initialized")
	}
	if len(r.Ordinals()) != 0 {
		t.Errorf("Expected no steps, got %v", r.Ordinals())
	}
}

func TestRunner_Register(t *testing.T) {
	r := NewRunner()

	if err := r.Register(10, &mockProcedure{}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := r.Register(9, &mockProcedure{}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := r.Register(9, &mockProcedure{}); err == nil {
		t.Error("Expected error for duplicate ordinal")
	}
	if err := r.Register(0, &mockProcedure{}); err == nil {
		t.Error("Expected error for non-positive ordinal")
	}
	if err := r.Register(11, nil); err == nil {
		t.Error("Expected error for nil procedure")
	}

	got := r.Ordinals()
	if len(got) != 2 || got[0] != 9 || got[1] != 10 {
		t.Errorf("Expected [9 10], got %v", got)
	}
}

func TestRunner_RunStep_FailTwiceThenSucceed(t *testing.T) {
	recovery := &countingRecovery{}
	r := NewRunner(WithRecovery(recovery))
	proc := &mockProcedure{failures: 2}
	r.Register(9, proc)

	passed, err := r.RunStep(context.Background(), 9)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !passed {
		t.Error("Expected step to pass on the third attempt")
	}
	if proc.calls != 3 {
		t.Errorf("Expected 3 invocations, got %d", proc.calls)
	}
	if recovery.calls != 2 {
		t.Errorf("Expected 2 recoveries, got %d", recovery.calls)
	}
}

func TestRunner_RunStep_AlwaysFails(t *testing.T) {
	recovery := &countingRecovery{}
	r := NewRunner(WithRecovery(recovery))
	proc := &mockProcedure{failures: 100}
	r.Register(10, proc)

	passed, err := r.RunStep(context.Background(), 10)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if passed {
		t.Error("Expected step to fail")
	}
	if proc.calls != 3 {
		t.Errorf("Expected 3 invocations, got %d", proc.calls)
	}
	if recovery.calls != 2 {
		t.Errorf("Expected 2 recoveries, got %d", recovery.calls)
	}
}

func TestRunner_RunStep_FirstAttemptPasses(t *testing.T) {
	recovery := &countingRecovery{}
	r := NewRunner(WithRecovery(recovery))
	proc := &mockProcedure{}
	r.Register(9, proc)

	passed, _ := r.RunStep(context.Background(), 9)
	if !passed || proc.calls != 1 || recovery.calls != 0 {
		t.Errorf("Expected single passing call without recovery, got passed=%t calls=%d recoveries=%d", passed, proc.calls, recovery.calls)
	}
}

func TestRunner_RunStep_RecoveryErrorDoesNotStopRetries(t *testing.T) {
	recovery := &countingRecovery{err: errors.New("calibration busy")}
	r := NewRunner(WithRecovery(recovery))
	proc := &mockProcedure{failures: 1}
	r.Register(9, proc)
	rec := &eventRecorder{}
	r.AddListener(rec)

	passed, err := r.RunStep(context.Background(), 9)
	if err != nil || !passed {
		t.Fatalf("Expected pass on second attempt, got %t %v", passed, err)
	}

	found := false
	for _, typ := range rec.types() {
		if typ == models.EventRecoveryFailed {
			found = true
		}
	}
	if !found {
		t.Error("Expected a recovery_failed event")
	}
}

func TestRunner_RunStep_MaxAttempts(t *testing.T) {
	r := NewRunner(WithMaxAttempts(5))
	proc := &mockProcedure{failures: 100}
	r.Register(9, proc)

	r.RunStep(context.Background(), 9)
	if proc.calls != 5 {
		t.Errorf("Expected 5 invocations, got %d", proc.calls)
	}

	// invalid bound keeps the default
	if NewRunner(WithMaxAttempts(0)).MaxAttempts() != DefaultMaxAttempts {
		t.Error("Expected default attempts for an invalid bound")
	}
}

func TestRunner_RunStep_Unknown(t *testing.T) {
	r := NewRunner()

	_, err := r.RunStep(context.Background(), 42)
	var unknown *models.UnknownStepError
	if !errors.As(err, &unknown) {
		t.Fatalf("Expected UnknownStepError, got %v", err)
	}
	if unknown.Ordinal != 42 {
		t.Errorf("Expected ordinal 42, got %d", unknown.Ordinal)
	}
}

func TestRunner_RunStep_Cancelled(t *testing.T) {
	recovery := &countingRecovery{}
	r := NewRunner(WithRecovery(recovery))
	ctx, cancel := context.WithCancel(context.Background())
	proc := &mockProcedure{failures: 100, onRun: func(context.Context) { cancel() }}
	r.Register(9, proc)

	passed, err := r.RunStep(ctx, 9)
	if passed {
		t.Error("Expected no pass")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if proc.calls != 1 || recovery.calls != 0 {
		t.Errorf("Expected no retry after cancel, got calls=%d recoveries=%d", proc.calls, recovery.calls)
	}
}

func TestRunner_RunStep_Busy(t *testing.T) {
	r := NewRunner()
	entered := make(chan struct{})
	release := make(chan struct{})
	r.Register(9, &mockProcedure{onRun: func(context.Context) {
		close(entered)
		<-release
	}})

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.RunStep(context.Background(), 9)
	}()

	<-entered
	if !r.IsRunning() {
		t.Error("Expected runner to be running")
	}
	if _, err := r.RunStep(context.Background(), 9); !errors.Is(err, models.ErrRunnerBusy) {
		t.Errorf("Expected ErrRunnerBusy, got %v", err)
	}
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("step did not finish")
	}
}

func TestRunner_Events(t *testing.T) {
	r := NewRunner(WithRecovery(&countingRecovery{}))
	r.Register(10, &mockProcedure{failures: 100})
	rec := &eventRecorder{}
	r.AddListener(rec)

	r.RunStep(context.Background(), 10)

	want := []models.EventType{
		models.EventStepStarted, models.EventStepFinished, models.EventStepRetrying,
		models.EventStepStarted, models.EventStepFinished, models.EventStepRetrying,
		models.EventStepStarted, models.EventStepFinished, models.EventStepExhausted,
	}
	got := rec.types()
	if len(got) != len(want) {
		t.Fatalf("Expected %d events, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Event %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	last := rec.events[len(rec.events)-1]
	if last.Data["attempts"] != 3 || last.Data["ordinal"] != 10 {
		t.Errorf("Unexpected exhausted data %v", last.Data)
	}
	if rec.events[1].Data["passed"] != false {
		t.Errorf("Expected failed attempt, got %v", rec.events[1].Data)
	}
}

func TestRunner_RunAll(t *testing.T) {
	r := NewRunner()
	first := &mockProcedure{}
	second := &mockProcedure{failures: 100}
	third := &mockProcedure{}
	r.Register(11, third)
	r.Register(9, first)
	r.Register(10, second)

	err := r.RunAll(context.Background())

	var failed *models.StepFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("Expected StepFailedError, got %v", err)
	}
	if failed.Ordinal != 10 || failed.Attempts != 3 {
		t.Errorf("Expected step 10 after 3 attempts, got %+v", failed)
	}
	if failed.Reason == nil {
		t.Error("Expected the last failure reason")
	}
	if first.calls != 1 || third.calls != 0 {
		t.Errorf("Expected ascending fail-fast order, got first=%d third=%d", first.calls, third.calls)
	}
}
