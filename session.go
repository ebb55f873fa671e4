package calibration

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/simon020286/go-calibration/builder"
	"github.com/simon020286/go-calibration/config"
	"github.com/simon020286/go-calibration/extern"
	"github.com/simon020286/go-calibration/instrument"
	"github.com/simon020286/go-calibration/models"
	"github.com/simon020286/go-calibration/relay"
)

// SessionConfig holds what a session needs
type SessionConfig struct {
	Station   *config.Station
	Launcher  instrument.Launcher
	Shell     extern.Shell
	Logger    logrus.FieldLogger
	Clock     models.Clock
	Prompter  builder.Prompter
	Listeners []models.EventListener
}

// Session connects to the first available instrument, enables the script
// privileges and runs every configured step in order.
type Session struct {
	cfg      SessionConfig
	log      logrus.FieldLogger
	clock    models.Clock
	eventBus *eventBus
}

// NewSession validates cfg and creates a session
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Station == nil {
		return nil, models.ErrMissingConfig("station")
	}
	if cfg.Launcher == nil {
		return nil, errors.New("session: no launcher")
	}
	if cfg.Shell == nil {
		return nil, errors.New("session: no shell")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = models.SystemClock{}
	}

	s := &Session{
		cfg:      cfg,
		log:      cfg.Logger,
		clock:    cfg.Clock,
		eventBus: newEventBus(cfg.Clock.Now),
	}
	for _, l := range cfg.Listeners {
		s.eventBus.addListener(l)
	}
	return s, nil
}

// Run executes the whole session. Connection and privilege errors abort
// before any step runs; a failed step is returned as *models.StepFailedError.
func (s *Session) Run(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			s.eventBus.EmitSessionFailed(err)
		}
	}()

	inst, uri, err := s.connect(ctx)
	if err != nil {
		return err
	}

	if err := s.cfg.Launcher.EnableExternScripts(ctx); err != nil {
		return &models.PrivilegeError{Privilege: "external scripts", Err: err}
	}
	if err := s.cfg.Launcher.EnableCalibScripts(ctx); err != nil {
		return &models.PrivilegeError{Privilege: "manual calibration scripts", Err: err}
	}

	station := s.cfg.Station
	s.cfg.Shell.SetWorkingDir(station.WorkingDir)
	s.cfg.Shell.SetTimeout(station.ProcessTimeout)
	if stopper, ok := s.cfg.Shell.(interface{ StopAll() error }); ok {
		defer func() {
			if serr := stopper.StopAll(); serr != nil {
				s.log.Warnf("failed to stop background jobs: %v", serr)
			}
		}()
	}

	deps := builder.Deps{
		Instrument: inst,
		Executor:   s.cfg.Shell,
		Relays: relay.NewController(s.cfg.Shell, relay.Config{
			PositiveCommand: station.Relay.PositiveCommand,
			NegativeCommand: station.Relay.NegativeCommand,
		}, s.log),
		Clock:    s.clock,
		Logger:   s.log,
		Prompter: s.cfg.Prompter,
	}
	runner, err := BuildFromConfig(station, deps)
	if err != nil {
		return err
	}
	for _, l := range s.cfg.Listeners {
		runner.AddListener(l)
	}

	start := s.clock.Now()
	s.eventBus.EmitSessionStarted(station.Name, uri)
	if err := runner.RunAll(ctx); err != nil {
		return err
	}
	s.eventBus.EmitSessionCompleted(s.clock.Now().Sub(start))
	return nil
}

func (s *Session) connect(ctx context.Context) (*instrument.Instrument, string, error) {
	uris, err := s.cfg.Launcher.DeviceURIs(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("device discovery: %w", err)
	}
	if len(uris) == 0 {
		s.log.Info("No usb devices available")
		return nil, "", models.ErrNoDevice
	}

	uri := uris[0]
	s.log.Infof("Connecting to %s...", uri)
	inst, err := s.cfg.Launcher.Connect(ctx, uri)
	if err == nil {
		err = inst.Validate()
	}
	if err != nil {
		s.log.Infof("Failed to connect to: %s!", uri)
		return nil, uri, &models.ConnectError{URI: uri, Err: err}
	}
	s.log.Info("Connected!")
	return inst, uri, nil
}
