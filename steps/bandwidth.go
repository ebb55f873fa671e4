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
)

// DefaultBandwidthThreshold is the largest accepted low/high difference in dB
const DefaultBandwidthThreshold = 7.0

// BandwidthConfig configures the ADC bandwidth verification
type BandwidthConfig struct {
	LowFrequency            float64              `yaml:"low_frequency"`
	HighFrequency           float64              `yaml:"high_frequency"`
	Amplitude               float64              `yaml:"amplitude"`
	Offset                  float64              `yaml:"offset"`
	Threshold               float64              `yaml:"threshold"`
	Settle                  time.Duration        `yaml:"settle"`
	SpanStart               float64              `yaml:"span_start"`
	SpanStop                float64              `yaml:"span_stop"`
	TopScale                float64              `yaml:"top_scale"`
	Range                   float64              `yaml:"range"`
	Channels                []instrument.Channel `yaml:"channels"`
	AutoCalibrate           bool                 `yaml:"auto_calibrate"`
	DegradeOnMarkerMismatch bool                 `yaml:"degrade_on_marker_mismatch"`
}

// DefaultBandwidthConfig returns the station bandwidth settings
func DefaultBandwidthConfig() BandwidthConfig {
	return BandwidthConfig{
		LowFrequency:  10e3,
		HighFrequency: 30e6,
		Amplitude:     2,
		Threshold:     DefaultBandwidthThreshold,
		Settle:        500 * time.Millisecond,
		SpanStart:     0,
		SpanStop:      50e6,
		TopScale:      0,
		Range:         200,
		Channels:      []instrument.Channel{instrument.CH0, instrument.CH1},
		AutoCalibrate: true,
	}
}

func (c BandwidthConfig) validate() error {
	if c.LowFrequency <= 0 || c.HighFrequency <= c.LowFrequency {
		return fmt.Errorf("bandwidth: need 0 < low_frequency < high_frequency, got %g and %g", c.LowFrequency, c.HighFrequency)
	}
	if c.HighFrequency > c.SpanStop || c.LowFrequency < c.SpanStart {
		return fmt.Errorf("bandwidth: test frequencies outside span %g..%g", c.SpanStart, c.SpanStop)
	}
	if c.Threshold < 0 {
		return fmt.Errorf("bandwidth: threshold must be >= 0, got %g", c.Threshold)
	}
	if c.Settle < 0 {
		return errors.New("bandwidth: settle must not be negative")
	}
	if len(c.Channels) == 0 {
		return errors.New("bandwidth: no channels")
	}
	for _, ch := range c.Channels {
		if !ch.Valid() {
			return fmt.Errorf("bandwidth: invalid channel %d", int(ch))
		}
	}
	return nil
}

// Decide is the bandwidth verdict: diff must lie in [0, threshold], both ends included
func Decide(diff, threshold float64) bool {
	return diff >= 0 && diff <= threshold
}

// Bandwidth checks that each channel's response at the high test frequency
// is within the threshold of its response at the low one.
type Bandwidth struct {
	cfg   BandwidthConfig
	inst  *instrument.Instrument
	clock models.Clock
	log   logrus.FieldLogger
}

func NewBandwidth(cfg BandwidthConfig, deps builder.Deps) *Bandwidth {
	return &Bandwidth{
		cfg:   cfg,
		inst:  deps.Instrument,
		clock: deps.Clock,
		log:   deps.Logger.WithField("procedure", "bandwidth"),
	}
}

func (b *Bandwidth) Name() string {
	return "bandwidth"
}

// Run auto-calibrates once, then verifies the channels in order, stopping at the first failure
func (b *Bandwidth) Run(ctx context.Context) models.Result {
	if b.cfg.AutoCalibrate {
		if err := b.inst.Calibrator.AutoCalibrate(ctx); err != nil {
			return models.Fail(fmt.Errorf("auto-calibration: %w", err))
		}
	}

	total := models.Pass()
	for _, ch := range b.cfg.Channels {
		r := b.Verify(ctx, ch)
		for k, v := range r.Measurements {
			total = total.WithMeasurement(k, v)
		}
		if !r.Passed {
			r.Measurements = total.Measurements
			return r
		}
	}
	return total
}

// Verify measures one channel. Spectrum acquisition and the stimulus are
// stopped on every path.
func (b *Bandwidth) Verify(ctx context.Context, ch instrument.Channel) (result models.Result) {
	if !ch.Valid() {
		return models.Failf("bandwidth: invalid channel %d", int(ch))
	}

	defer func() {
		result = result.Merge(b.quiesce(context.WithoutCancel(ctx)))
	}()

	if err := b.setupSpectrum(ctx); err != nil {
		return models.Fail(err)
	}

	low, err := b.measure(ctx, ch, b.cfg.LowFrequency)
	if err != nil {
		return models.Fail(err)
	}
	high, err := b.measure(ctx, ch, b.cfg.HighFrequency)
	if err != nil {
		return models.Fail(err)
	}

	diff := low - high
	b.log.Infof("channel: %d diff dB: %g", int(ch), diff)

	result = models.Pass()
	if !Decide(diff, b.cfg.Threshold) {
		bwErr := &models.BandwidthError{Channel: int(ch), Diff: diff, Threshold: b.cfg.Threshold}
		b.log.Error(bwErr.Error())
		result = models.Fail(bwErr)
	}
	return result.
		WithMeasurement(fmt.Sprintf("%s.low_db", ch), low).
		WithMeasurement(fmt.Sprintf("%s.high_db", ch), high).
		WithMeasurement(fmt.Sprintf("%s.diff_db", ch), diff)
}

func (b *Bandwidth) setupSpectrum(ctx context.Context) error {
	sa := b.inst.Spectrum
	for _, ch := range instrument.Channels {
		if err := sa.SetChannelEnabled(ctx, ch, true); err != nil {
			return fmt.Errorf("spectrum: enable %s: %w", ch, err)
		}
	}
	if err := sa.SetSpan(ctx, b.cfg.SpanStart, b.cfg.SpanStop); err != nil {
		return fmt.Errorf("spectrum: span: %w", err)
	}
	if err := sa.SetTopScale(ctx, b.cfg.TopScale); err != nil {
		return fmt.Errorf("spectrum: top scale: %w", err)
	}
	if err := sa.SetRange(ctx, b.cfg.Range); err != nil {
		return fmt.Errorf("spectrum: range: %w", err)
	}
	if err := sa.SetRunning(ctx, true); err != nil {
		return fmt.Errorf("spectrum: start: %w", err)
	}
	return nil
}

// measure drives a sine at frequency on ch and reads the channel's marker
func (b *Bandwidth) measure(ctx context.Context, ch instrument.Channel, frequency float64) (float64, error) {
	wave := instrument.Waveform{
		Channel:   ch,
		Shape:     instrument.Sine,
		Frequency: frequency,
		Amplitude: b.cfg.Amplitude,
		Offset:    b.cfg.Offset,
	}
	if err := instrument.StartStimulus(ctx, b.inst.Generator, wave); err != nil {
		return 0, err
	}
	if err := models.Sleep(ctx, b.clock, b.cfg.Settle); err != nil {
		return 0, err
	}

	reading, err := instrument.ReadMarker(ctx, b.inst.Spectrum, ch, frequency)
	var bindErr *models.MarkerBindingError
	if errors.As(err, &bindErr) && b.cfg.DegradeOnMarkerMismatch {
		b.log.Warnf("%v, reading treated as 0 dB", bindErr)
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return reading.Magnitude, nil
}

func (b *Bandwidth) quiesce(ctx context.Context) error {
	var errs []error
	if err := b.inst.Spectrum.SetRunning(ctx, false); err != nil {
		errs = append(errs, fmt.Errorf("stop spectrum: %w", err))
	}
	if err := b.inst.Generator.SetRunning(ctx, false); err != nil {
		errs = append(errs, fmt.Errorf("stop generator: %w", err))
	}
	return errors.Join(errs...)
}

func init() {
	builder.RegisterProcedureType("bandwidth", func(deps builder.Deps, raw map[string]any) (models.Procedure, error) {
		cfg := DefaultBandwidthConfig()
		if th, ok := deps.Scope.Vars["adc_bandwidth_threshold"].(float64); ok {
			cfg.Threshold = th
		}
		if err := builder.DecodeConfig(raw, deps.Scope, &cfg); err != nil {
			return nil, fmt.Errorf("bandwidth: %w", err)
		}
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		return NewBandwidth(cfg, deps), nil
	})
}
