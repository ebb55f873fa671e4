// Package instrument defines the capability surface the calibration procedures
// consume: oscilloscope, signal generator, spectrum analyzer and calibration
// routines of a two-channel mixed-signal instrument. Drivers implement these
// interfaces; the procedures never touch registers or properties directly.
package instrument

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Channel is an analog channel index (0 or 1)
type Channel int

const (
	CH0 Channel = 0
	CH1 Channel = 1
)

// Channels lists the analog channels in measurement order
var Channels = []Channel{CH0, CH1}

// Valid reports whether the channel exists on the instrument
func (c Channel) Valid() bool {
	return c == CH0 || c == CH1
}

func (c Channel) String() string {
	return fmt.Sprintf("CH%d", int(c))
}

// Polarity selects the relay routing used during trimmer adjustment
type Polarity bool

const (
	Positive Polarity = true
	Negative Polarity = false
)

func (p Polarity) String() string {
	if p {
		return "positive"
	}
	return "negative"
}

// ParsePolarity accepts "positive"/"pos"/"+" and "negative"/"neg"/"-"
func ParsePolarity(s string) (Polarity, error) {
	switch s {
	case "positive", "pos", "+":
		return Positive, nil
	case "negative", "neg", "-":
		return Negative, nil
	}
	return Negative, fmt.Errorf("invalid polarity %q", s)
}

func (p *Polarity) UnmarshalYAML(value *yaml.Node) error {
	var b bool
	if err := value.Decode(&b); err == nil {
		*p = Polarity(b)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParsePolarity(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p Polarity) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

// TriggerCondition is the internal trigger condition index (0 = rising edge)
type TriggerCondition int

const TriggerRising TriggerCondition = 0

// Oscilloscope controls the scope acquisition path
type Oscilloscope interface {
	// Show brings the oscilloscope view to the foreground
	Show(ctx context.Context) error
	SetInternalTrigger(ctx context.Context, source Channel, condition TriggerCondition) error
	SetChannelEnabled(ctx context.Context, ch Channel, enabled bool) error
	SetVoltsPerDiv(ctx context.Context, ch Channel, voltsPerDiv float64) error
	// SetTimeBase sets the horizontal time base in seconds per division
	SetTimeBase(ctx context.Context, seconds float64) error
	SetRunning(ctx context.Context, running bool) error
}

// SignalGenerator controls the stimulus outputs. Running applies to the
// generator as a whole; waveform parameters are per channel.
type SignalGenerator interface {
	Running(ctx context.Context) (bool, error)
	SetRunning(ctx context.Context, running bool) error
	SetChannelEnabled(ctx context.Context, ch Channel, enabled bool) error
	SetWaveform(ctx context.Context, w Waveform) error
}

// SpectrumAnalyzer controls the spectrum acquisition path and its markers
type SpectrumAnalyzer interface {
	SetChannelEnabled(ctx context.Context, ch Channel, enabled bool) error
	SetSpan(ctx context.Context, startHz, stopHz float64) error
	SetTopScale(ctx context.Context, dB float64) error
	SetRange(ctx context.Context, dB float64) error
	SetRunning(ctx context.Context, running bool) error
	// MarkerChannel returns the channel the indexed marker is bound to
	MarkerChannel(ctx context.Context, index int) (Channel, error)
	SetMarker(ctx context.Context, index int, m Marker) error
	// MarkerMagnitude returns the magnitude in dB read at the indexed marker
	MarkerMagnitude(ctx context.Context, index int) (float64, error)
}

// Calibrator runs the instrument built-in self calibration
type Calibrator interface {
	AutoCalibrate(ctx context.Context) error
}

// Instrument groups the subsystems of one connected device. The set is
// exclusively owned by the running procedure.
type Instrument struct {
	Scope      Oscilloscope
	Generator  SignalGenerator
	Spectrum   SpectrumAnalyzer
	Calibrator Calibrator
}

// Validate checks that every subsystem is present
func (i *Instrument) Validate() error {
	if i == nil {
		return fmt.Errorf("instrument: nil instrument")
	}
	switch {
	case i.Scope == nil:
		return fmt.Errorf("instrument: oscilloscope is required")
	case i.Generator == nil:
		return fmt.Errorf("instrument: signal generator is required")
	case i.Spectrum == nil:
		return fmt.Errorf("instrument: spectrum analyzer is required")
	case i.Calibrator == nil:
		return fmt.Errorf("instrument: calibrator is required")
	}
	return nil
}
