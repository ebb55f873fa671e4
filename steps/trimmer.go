package steps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/simon020286/go-calibration/builder"
	"github.com/simon020286/go-calibration/instrument"
	"github.com/simon020286/go-calibration/models"
	"github.com/simon020286/go-calibration/relay"
	"github.com/simon020286/go-calibration/rendezvous"
)

// TrimmerTarget is one channel/polarity pair to adjust
type TrimmerTarget struct {
	Channel  instrument.Channel  `yaml:"channel"`
	Polarity instrument.Polarity `yaml:"polarity"`
}

func (t TrimmerTarget) String() string {
	return fmt.Sprintf("%s %s", t.Channel, t.Polarity)
}

// TrimmerConfig configures the trimmer adjustment procedure
type TrimmerConfig struct {
	Frequency      float64         `yaml:"frequency"`
	Amplitude      float64         `yaml:"amplitude"`
	Offset         float64         `yaml:"offset"`
	TimeBase       float64         `yaml:"time_base"`
	Settle         time.Duration   `yaml:"settle"`
	PollInterval   time.Duration   `yaml:"poll_interval"`
	Timeout        time.Duration   `yaml:"timeout"` // 0 waits for the operator indefinitely
	SignalFile     string          `yaml:"signal_file"`
	WaitCommand    string          `yaml:"wait_command"`
	Sentinel       string          `yaml:"sentinel"`
	ContinueButton string          `yaml:"continue_button"`
	Sequence       []TrimmerTarget `yaml:"sequence"`
}

// DefaultTrimmerConfig returns the station trimmer settings
func DefaultTrimmerConfig() TrimmerConfig {
	return TrimmerConfig{
		Frequency:      1000,
		Amplitude:      2,
		Offset:         0,
		TimeBase:       100e-6,
		Settle:         500 * time.Millisecond,
		PollInterval:   rendezvous.DefaultInterval,
		SignalFile:     rendezvous.DefaultSignalFile,
		WaitCommand:    rendezvous.DefaultWatchCommand,
		Sentinel:       rendezvous.DefaultSentinel,
		ContinueButton: "pin1",
		Sequence: []TrimmerTarget{
			{Channel: instrument.CH0, Polarity: instrument.Positive},
			{Channel: instrument.CH0, Polarity: instrument.Negative},
			{Channel: instrument.CH1, Polarity: instrument.Positive},
			{Channel: instrument.CH1, Polarity: instrument.Negative},
		},
	}
}

func (c TrimmerConfig) validate() error {
	if c.Frequency <= 0 {
		return fmt.Errorf("trimmer: frequency must be positive, got %g", c.Frequency)
	}
	if c.TimeBase <= 0 {
		return fmt.Errorf("trimmer: time_base must be positive, got %g", c.TimeBase)
	}
	if c.Timeout < 0 || c.Settle < 0 || c.PollInterval < 0 {
		return errors.New("trimmer: durations must not be negative")
	}
	if len(c.Sequence) == 0 {
		return errors.New("trimmer: empty sequence")
	}
	for _, target := range c.Sequence {
		if !target.Channel.Valid() {
			return fmt.Errorf("trimmer: invalid channel %d", int(target.Channel))
		}
	}
	return nil
}

// Trimmer walks the operator through the trimmer adjustments. Each
// adjustment shows a square wave on the scope and waits for the continue
// button before quiescing the instrument.
type Trimmer struct {
	cfg    TrimmerConfig
	inst   *instrument.Instrument
	relays relay.Toggler
	source rendezvous.Source
	clock  models.Clock
	log    logrus.FieldLogger
	prompt builder.Prompter
}

// NewTrimmer creates the procedure. deps must be filled (see builder.Deps.WithDefaults).
func NewTrimmer(cfg TrimmerConfig, deps builder.Deps, source rendezvous.Source) *Trimmer {
	return &Trimmer{
		cfg:    cfg,
		inst:   deps.Instrument,
		relays: deps.Relays,
		source: source,
		clock:  deps.Clock,
		log:    deps.Logger.WithField("procedure", "trimmer"),
		prompt: deps.Prompter,
	}
}

func (t *Trimmer) Name() string {
	return "trimmer"
}

// Run adjusts every target in order and stops at the first failure
func (t *Trimmer) Run(ctx context.Context) models.Result {
	for _, target := range t.cfg.Sequence {
		r := t.Adjust(ctx, target.Channel, target.Polarity)
		if !r.Passed {
			r.Reason = fmt.Errorf("%s: %w", target, r.Reason)
			return r
		}
	}
	return models.Pass()
}

// Adjust runs a single adjustment for ch and polarity. Whatever happens, the
// scope and generator are stopped and the channel is left disabled in low gain.
func (t *Trimmer) Adjust(ctx context.Context, ch instrument.Channel, polarity instrument.Polarity) (result models.Result) {
	if !ch.Valid() {
		return models.Failf("trimmer: invalid channel %d", int(ch))
	}

	defer func() {
		result = result.Merge(t.quiesce(context.WithoutCancel(ctx), ch))
	}()

	if err := t.inst.Scope.SetInternalTrigger(ctx, ch, instrument.TriggerRising); err != nil {
		return models.Fail(fmt.Errorf("configure trigger: %w", err))
	}
	if err := t.relays.Toggle(ctx, polarity); err != nil {
		return models.Fail(err)
	}

	// single pass: a failed confirmation is reported, not retried here
	wave := instrument.Waveform{
		Channel:   ch,
		Shape:     instrument.Square,
		Frequency: t.cfg.Frequency,
		Amplitude: t.cfg.Amplitude,
		Offset:    t.cfg.Offset,
	}
	if err := instrument.StartStimulus(ctx, t.inst.Generator, wave); err != nil {
		return models.Fail(err)
	}
	if err := models.Sleep(ctx, t.clock, t.cfg.Settle); err != nil {
		return models.Fail(err)
	}

	if err := t.startScope(ctx, ch); err != nil {
		return models.Fail(err)
	}

	waited, err := t.awaitOperator(ctx, ch, polarity)
	if err != nil {
		return models.Fail(err)
	}
	return models.Pass().WithMeasurement(fmt.Sprintf("%s.%s.operator_wait_s", ch, polarity), waited.Seconds())
}

func (t *Trimmer) startScope(ctx context.Context, ch instrument.Channel) error {
	scope := t.inst.Scope
	if err := scope.Show(ctx); err != nil {
		return fmt.Errorf("show scope: %w", err)
	}
	if err := instrument.SetGainMode(ctx, scope, ch, instrument.HighGain); err != nil {
		return err
	}
	if err := scope.SetTimeBase(ctx, t.cfg.TimeBase); err != nil {
		return fmt.Errorf("set time base: %w", err)
	}
	if err := scope.SetRunning(ctx, true); err != nil {
		return fmt.Errorf("start scope: %w", err)
	}
	return nil
}

func (t *Trimmer) awaitOperator(ctx context.Context, ch instrument.Channel, polarity instrument.Polarity) (waited time.Duration, err error) {
	if err := t.source.Arm(ctx); err != nil {
		return 0, err
	}
	defer func() {
		if derr := t.source.Disarm(context.WithoutCancel(ctx)); derr != nil {
			err = errors.Join(err, derr)
		}
	}()

	t.prompt.Prompt(fmt.Sprintf("Adjust the %s %s trimmer, then press %s to continue", ch, polarity, t.cfg.ContinueButton))

	start := t.clock.Now()
	err = rendezvous.Wait(ctx, t.source, rendezvous.WaitOptions{
		Interval: t.cfg.PollInterval,
		Timeout:  t.cfg.Timeout,
		Clock:    t.clock,
	})
	if err != nil {
		return 0, fmt.Errorf("waiting for %s: %w", t.cfg.ContinueButton, err)
	}
	t.log.WithFields(logrus.Fields{"channel": int(ch), "polarity": polarity.String()}).Debug("operator confirmed")
	return t.clock.Now().Sub(start), nil
}

func (t *Trimmer) quiesce(ctx context.Context, ch instrument.Channel) error {
	var errs []error
	if err := t.inst.Scope.SetRunning(ctx, false); err != nil {
		errs = append(errs, fmt.Errorf("stop scope: %w", err))
	}
	if err := t.inst.Generator.SetRunning(ctx, false); err != nil {
		errs = append(errs, fmt.Errorf("stop generator: %w", err))
	}
	if err := instrument.SetGainMode(ctx, t.inst.Scope, ch, instrument.LowGain); err != nil {
		errs = append(errs, err)
	}
	if err := t.inst.Scope.SetChannelEnabled(ctx, ch, false); err != nil {
		errs = append(errs, fmt.Errorf("disable %s: %w", ch, err))
	}
	return errors.Join(errs...)
}

func init() {
	builder.RegisterProcedureType("trimmer", func(deps builder.Deps, raw map[string]any) (models.Procedure, error) {
		cfg := DefaultTrimmerConfig()
		if err := builder.DecodeConfig(raw, deps.Scope, &cfg); err != nil {
			return nil, fmt.Errorf("trimmer: %w", err)
		}
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		if deps.Relays == nil {
			return nil, errors.New("trimmer: relay control not configured")
		}
		if deps.Executor == nil {
			return nil, errors.New("trimmer: external process gateway not configured")
		}
		source := rendezvous.NewFileSource(deps.Executor, cfg.SignalFile, cfg.WaitCommand, cfg.Sentinel)
		return NewTrimmer(cfg, deps, source), nil
	})
}
