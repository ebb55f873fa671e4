package steps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/sirupsen/logrus"

	"github.com/simon020286/go-calibration/builder"
	"github.com/simon020286/go-calibration/extern"
	"github.com/simon020286/go-calibration/instrument"
	"github.com/simon020286/go-calibration/models"
	"github.com/simon020286/go-calibration/relay"
)

// ScriptConfig configures a scripted procedure
type ScriptConfig struct {
	Name    string        `yaml:"name"`
	Code    string        `yaml:"code"`
	Timeout time.Duration `yaml:"timeout"`
}

// Script runs a JavaScript procedure against the instrument. The code must
// return a boolean verdict. All subsystems are stopped when it ends.
type Script struct {
	cfg    ScriptConfig
	inst   *instrument.Instrument
	relays relay.Toggler
	exec   extern.Executor
	clock  models.Clock
	log    logrus.FieldLogger
	vars   map[string]any
}

func NewScript(cfg ScriptConfig, deps builder.Deps) *Script {
	if cfg.Name == "" {
		cfg.Name = "js"
	}
	return &Script{
		cfg:    cfg,
		inst:   deps.Instrument,
		relays: deps.Relays,
		exec:   deps.Executor,
		clock:  deps.Clock,
		log:    deps.Logger.WithField("procedure", cfg.Name),
		vars:   deps.Scope.Vars,
	}
}

func (s *Script) Name() string {
	return s.cfg.Name
}

func (s *Script) Run(ctx context.Context) (result models.Result) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	defer func() {
		result = result.Merge(s.quiesce(context.WithoutCancel(ctx)))
	}()

	runtime := goja.New()
	if err := s.bind(ctx, runtime); err != nil {
		return models.Fail(fmt.Errorf("failed to set bindings: %w", err))
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			runtime.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	// Wrap the code in an anonymous function to allow return usage
	wrappedCode := "(function() {\n" + s.cfg.Code + "\n})()"

	value, err := runtime.RunString(wrappedCode)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) && ctx.Err() != nil {
			return models.Fail(fmt.Errorf("script interrupted: %w", ctx.Err()))
		}
		return models.Fail(fmt.Errorf("JavaScript execution error: %w", err))
	}

	verdict, ok := value.Export().(bool)
	if !ok {
		return models.Failf("script must return a boolean, got %v", value.Export())
	}
	if !verdict {
		return models.Failf("script %s returned false", s.cfg.Name)
	}
	return models.Pass()
}

func (s *Script) bind(ctx context.Context, vm *goja.Runtime) error {
	scope := s.inst.Scope
	gen := s.inst.Generator
	sa := s.inst.Spectrum

	stimulus := func(shape instrument.Shape) func(ch int, frequency, amplitude, offset float64) error {
		return func(ch int, frequency, amplitude, offset float64) error {
			return instrument.StartStimulus(ctx, gen, instrument.Waveform{
				Channel:   instrument.Channel(ch),
				Shape:     shape,
				Frequency: frequency,
				Amplitude: amplitude,
				Offset:    offset,
			})
		}
	}

	bindings := map[string]any{
		"osc": map[string]any{
			"show":    func() error { return scope.Show(ctx) },
			"trigger": func(ch int) error { return scope.SetInternalTrigger(ctx, instrument.Channel(ch), instrument.TriggerRising) },
			"enable":  func(ch int, on bool) error { return scope.SetChannelEnabled(ctx, instrument.Channel(ch), on) },
			"gain": func(ch int, high bool) error {
				mode := instrument.LowGain
				if high {
					mode = instrument.HighGain
				}
				return instrument.SetGainMode(ctx, scope, instrument.Channel(ch), mode)
			},
			"timeBase": func(seconds float64) error { return scope.SetTimeBase(ctx, seconds) },
			"run":      func(on bool) error { return scope.SetRunning(ctx, on) },
		},
		"siggen": map[string]any{
			"sine":    stimulus(instrument.Sine),
			"square":  stimulus(instrument.Square),
			"stop":    func() error { return gen.SetRunning(ctx, false) },
			"running": func() (bool, error) { return gen.Running(ctx) },
		},
		"spectrum": map[string]any{
			"enable": func(ch int, on bool) error { return sa.SetChannelEnabled(ctx, instrument.Channel(ch), on) },
			"span":   func(start, stop float64) error { return sa.SetSpan(ctx, start, stop) },
			"scale": func(top, rng float64) error {
				if err := sa.SetTopScale(ctx, top); err != nil {
					return err
				}
				return sa.SetRange(ctx, rng)
			},
			"run": func(on bool) error { return sa.SetRunning(ctx, on) },
			"marker": func(ch int, frequency float64) (float64, error) {
				reading, err := instrument.ReadMarker(ctx, sa, instrument.Channel(ch), frequency)
				return reading.Magnitude, err
			},
		},
		"calib": map[string]any{
			"autoCalibrate": func() error { return s.inst.Calibrator.AutoCalibrate(ctx) },
		},
		"msleep": func(ms int64) error {
			return models.Sleep(ctx, s.clock, time.Duration(ms)*time.Millisecond)
		},
		"log": func(msg string) { s.log.Info(msg) },
	}

	vars := s.vars
	if vars == nil {
		vars = map[string]any{}
	}
	bindings["$vars"] = vars

	if s.relays != nil {
		bindings["relay"] = map[string]any{
			"toggle": func(positive bool) error { return s.relays.Toggle(ctx, instrument.Polarity(positive)) },
		}
	}
	if s.exec != nil {
		bindings["extern"] = map[string]any{
			"run": func(cmd string) (string, error) { return s.exec.Run(ctx, cmd) },
		}
	}

	for name, v := range bindings {
		if err := vm.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Script) quiesce(ctx context.Context) error {
	var errs []error
	if err := s.inst.Scope.SetRunning(ctx, false); err != nil {
		errs = append(errs, fmt.Errorf("stop scope: %w", err))
	}
	if err := s.inst.Generator.SetRunning(ctx, false); err != nil {
		errs = append(errs, fmt.Errorf("stop generator: %w", err))
	}
	if err := s.inst.Spectrum.SetRunning(ctx, false); err != nil {
		errs = append(errs, fmt.Errorf("stop spectrum: %w", err))
	}
	return errors.Join(errs...)
}

func init() {
	builder.RegisterProcedureType("js", func(deps builder.Deps, raw map[string]any) (models.Procedure, error) {
		var cfg ScriptConfig
		// code is taken verbatim, never resolved as a value
		code, ok := raw["code"].(string)
		if !ok || code == "" {
			return nil, errors.New("missing 'code' in js step")
		}
		rest := make(map[string]any, len(raw))
		for k, v := range raw {
			if k != "code" {
				rest[k] = v
			}
		}
		if err := builder.DecodeConfig(rest, deps.Scope, &cfg); err != nil {
			return nil, fmt.Errorf("js: %w", err)
		}
		cfg.Code = code
		return NewScript(cfg, deps), nil
	})
}
