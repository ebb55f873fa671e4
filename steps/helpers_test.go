package steps

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/simon020286/go-calibration/builder"
	"github.com/simon020286/go-calibration/extern"
	"github.com/simon020286/go-calibration/instrument"
	"github.com/simon020286/go-calibration/instrument/fake"
)

// instantClock fires every timer immediately
type instantClock struct{}

func (instantClock) Now() time.Time { return time.Unix(0, 0) }

func (instantClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Unix(0, 0)
	return ch
}

// signalSource confirms after signalAt polls; zero never confirms
type signalSource struct {
	mu       sync.Mutex
	signalAt int
	polls    int
	armed    int
	disarmed int
}

func (s *signalSource) Arm(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed++
	s.polls = 0
	return nil
}

func (s *signalSource) Poll(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	return s.signalAt > 0 && s.polls >= s.signalAt, nil
}

func (s *signalSource) Disarm(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmed++
	return nil
}

type relayRecorder struct {
	toggles  []instrument.Polarity
	failOn   *instrument.Polarity
	failWith error
}

func (r *relayRecorder) Toggle(ctx context.Context, p instrument.Polarity) error {
	r.toggles = append(r.toggles, p)
	if r.failOn != nil && *r.failOn == p {
		return r.failWith
	}
	return nil
}

type execRecorder struct {
	commands []string
}

func (e *execRecorder) Run(ctx context.Context, cmd string) (string, error) {
	e.commands = append(e.commands, cmd)
	return "ok\n", nil
}

func (e *execRecorder) Start(ctx context.Context, cmd string) (extern.Job, error) {
	return nil, errors.New("not supported")
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testDeps(t *testing.T, dev *fake.Device) (builder.Deps, *relayRecorder) {
	t.Helper()
	relays := &relayRecorder{}
	deps := builder.Deps{
		Instrument: dev.Instrument(),
		Executor:   &execRecorder{},
		Relays:     relays,
		Clock:      instantClock{},
		Logger:     quietLogger(),
	}.WithDefaults()
	return deps, relays
}
