// Package fake provides a recording in-memory instrument for tests.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/simon020286/go-calibration/instrument"
)

// State is the instrument state left behind by the calls made so far
type State struct {
	Calls []string

	// Scope state
	ScopeShown       bool
	TriggerSource    instrument.Channel
	TriggerCondition instrument.TriggerCondition
	ScopeEnabled     [2]bool
	VoltsPerDiv      [2]float64
	TimeBase         float64
	ScopeRunning     bool

	// Generator state
	GenRunning  bool
	GenEnabled  [2]bool
	Waveforms   [2]instrument.Waveform
	GenStarts   int
	Overlapping int // waveform changes applied while the generator was running

	// Spectrum state
	SpectrumEnabled [2]bool
	SpanStart       float64
	SpanStop        float64
	TopScale        float64
	Range           float64
	SpectrumRunning bool
	Markers         [2 * instrument.MarkersPerChannel]instrument.Marker
	MarkerBinding   [2 * instrument.MarkersPerChannel]instrument.Channel

	AutoCalibrations int
}

// Device records every call and keeps the resulting instrument state
type Device struct {
	mu    sync.Mutex
	state State

	// Magnitude returns the reading of a marker; defaults to 0 dB
	Magnitude func(ch instrument.Channel, frequency float64) float64

	errors map[string]error
}

// New creates a fake with markers bound to their channel
func New() *Device {
	d := &Device{errors: make(map[string]error)}
	for i := range d.state.MarkerBinding {
		d.state.MarkerBinding[i] = instrument.Channel(i / instrument.MarkersPerChannel)
	}
	return d
}

// Instrument returns the subsystem view of the device
func (d *Device) Instrument() *instrument.Instrument {
	return &instrument.Instrument{
		Scope:      scope{d},
		Generator:  generator{d},
		Spectrum:   spectrum{d},
		Calibrator: calibrator{d},
	}
}

// Snapshot returns a copy of the state, safe to inspect while a procedure runs
func (d *Device) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := d.state
	cp.Calls = append([]string(nil), d.state.Calls...)
	return cp
}

// BindMarker rebinds a spectrum marker to another channel
func (d *Device) BindMarker(index int, ch instrument.Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.MarkerBinding[index] = ch
}

// SetError injects err for the named call
func (d *Device) SetError(call string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errors[call] = err
}

func (d *Device) record(call string, format string, args ...any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.Calls = append(d.state.Calls, call+fmt.Sprintf(format, args...))
	return d.errors[call]
}

func checkChannel(ch instrument.Channel) error {
	if !ch.Valid() {
		return fmt.Errorf("fake: invalid channel %d", int(ch))
	}
	return nil
}

func checkMarker(idx int) error {
	if idx < 0 || idx >= 2*instrument.MarkersPerChannel {
		return fmt.Errorf("fake: invalid marker index %d", idx)
	}
	return nil
}

type scope struct{ d *Device }

func (s scope) Show(ctx context.Context) error {
	if err := s.d.record("Scope.Show", ""); err != nil {
		return err
	}
	s.d.mu.Lock()
	s.d.state.ScopeShown = true
	s.d.mu.Unlock()
	return nil
}

func (s scope) SetInternalTrigger(ctx context.Context, source instrument.Channel, condition instrument.TriggerCondition) error {
	if err := s.d.record("Scope.SetInternalTrigger", "(%d,%d)", source, condition); err != nil {
		return err
	}
	s.d.mu.Lock()
	s.d.state.TriggerSource, s.d.state.TriggerCondition = source, condition
	s.d.mu.Unlock()
	return nil
}

func (s scope) SetChannelEnabled(ctx context.Context, ch instrument.Channel, enabled bool) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if err := s.d.record("Scope.SetChannelEnabled", "(%d,%t)", ch, enabled); err != nil {
		return err
	}
	s.d.mu.Lock()
	s.d.state.ScopeEnabled[ch] = enabled
	s.d.mu.Unlock()
	return nil
}

func (s scope) SetVoltsPerDiv(ctx context.Context, ch instrument.Channel, v float64) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if err := s.d.record("Scope.SetVoltsPerDiv", "(%d,%g)", ch, v); err != nil {
		return err
	}
	s.d.mu.Lock()
	s.d.state.VoltsPerDiv[ch] = v
	s.d.mu.Unlock()
	return nil
}

func (s scope) SetTimeBase(ctx context.Context, seconds float64) error {
	if err := s.d.record("Scope.SetTimeBase", "(%g)", seconds); err != nil {
		return err
	}
	s.d.mu.Lock()
	s.d.state.TimeBase = seconds
	s.d.mu.Unlock()
	return nil
}

func (s scope) SetRunning(ctx context.Context, running bool) error {
	if err := s.d.record("Scope.SetRunning", "(%t)", running); err != nil {
		return err
	}
	s.d.mu.Lock()
	s.d.state.ScopeRunning = running
	s.d.mu.Unlock()
	return nil
}

type generator struct{ d *Device }

func (g generator) Running(ctx context.Context) (bool, error) {
	if err := g.d.record("Generator.Running", ""); err != nil {
		return false, err
	}
	g.d.mu.Lock()
	defer g.d.mu.Unlock()
	return g.d.state.GenRunning, nil
}

func (g generator) SetRunning(ctx context.Context, running bool) error {
	if err := g.d.record("Generator.SetRunning", "(%t)", running); err != nil {
		return err
	}
	g.d.mu.Lock()
	if running && !g.d.state.GenRunning {
		g.d.state.GenStarts++
	}
	g.d.state.GenRunning = running
	g.d.mu.Unlock()
	return nil
}

func (g generator) SetChannelEnabled(ctx context.Context, ch instrument.Channel, enabled bool) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if err := g.d.record("Generator.SetChannelEnabled", "(%d,%t)", ch, enabled); err != nil {
		return err
	}
	g.d.mu.Lock()
	g.d.state.GenEnabled[ch] = enabled
	g.d.mu.Unlock()
	return nil
}

func (g generator) SetWaveform(ctx context.Context, w instrument.Waveform) error {
	if err := checkChannel(w.Channel); err != nil {
		return err
	}
	if err := g.d.record("Generator.SetWaveform", "(%s)", w); err != nil {
		return err
	}
	g.d.mu.Lock()
	if g.d.state.GenRunning {
		g.d.state.Overlapping++
	}
	g.d.state.Waveforms[w.Channel] = w
	g.d.mu.Unlock()
	return nil
}

type spectrum struct{ d *Device }

func (s spectrum) SetChannelEnabled(ctx context.Context, ch instrument.Channel, enabled bool) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if err := s.d.record("Spectrum.SetChannelEnabled", "(%d,%t)", ch, enabled); err != nil {
		return err
	}
	s.d.mu.Lock()
	s.d.state.SpectrumEnabled[ch] = enabled
	s.d.mu.Unlock()
	return nil
}

func (s spectrum) SetSpan(ctx context.Context, startHz, stopHz float64) error {
	if err := s.d.record("Spectrum.SetSpan", "(%g,%g)", startHz, stopHz); err != nil {
		return err
	}
	s.d.mu.Lock()
	s.d.state.SpanStart, s.d.state.SpanStop = startHz, stopHz
	s.d.mu.Unlock()
	return nil
}

func (s spectrum) SetTopScale(ctx context.Context, dB float64) error {
	if err := s.d.record("Spectrum.SetTopScale", "(%g)", dB); err != nil {
		return err
	}
	s.d.mu.Lock()
	s.d.state.TopScale = dB
	s.d.mu.Unlock()
	return nil
}

func (s spectrum) SetRange(ctx context.Context, dB float64) error {
	if err := s.d.record("Spectrum.SetRange", "(%g)", dB); err != nil {
		return err
	}
	s.d.mu.Lock()
	s.d.state.Range = dB
	s.d.mu.Unlock()
	return nil
}

func (s spectrum) SetRunning(ctx context.Context, running bool) error {
	if err := s.d.record("Spectrum.SetRunning", "(%t)", running); err != nil {
		return err
	}
	s.d.mu.Lock()
	s.d.state.SpectrumRunning = running
	s.d.mu.Unlock()
	return nil
}

func (s spectrum) MarkerChannel(ctx context.Context, index int) (instrument.Channel, error) {
	if err := checkMarker(index); err != nil {
		return 0, err
	}
	if err := s.d.record("Spectrum.MarkerChannel", "(%d)", index); err != nil {
		return 0, err
	}
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.d.state.MarkerBinding[index], nil
}

func (s spectrum) SetMarker(ctx context.Context, index int, m instrument.Marker) error {
	if err := checkMarker(index); err != nil {
		return err
	}
	if err := s.d.record("Spectrum.SetMarker", "(%d,%g)", index, m.Frequency); err != nil {
		return err
	}
	s.d.mu.Lock()
	s.d.state.Markers[index] = m
	s.d.mu.Unlock()
	return nil
}

func (s spectrum) MarkerMagnitude(ctx context.Context, index int) (float64, error) {
	if err := checkMarker(index); err != nil {
		return 0, err
	}
	if err := s.d.record("Spectrum.MarkerMagnitude", "(%d)", index); err != nil {
		return 0, err
	}
	s.d.mu.Lock()
	ch := s.d.state.MarkerBinding[index]
	freq := s.d.state.Markers[index].Frequency
	fn := s.d.Magnitude
	s.d.mu.Unlock()
	if fn == nil {
		return 0, nil
	}
	return fn(ch, freq), nil
}

type calibrator struct{ d *Device }

func (c calibrator) AutoCalibrate(ctx context.Context) error {
	if err := c.d.record("Calibrator.AutoCalibrate", ""); err != nil {
		return err
	}
	c.d.mu.Lock()
	c.d.state.AutoCalibrations++
	c.d.mu.Unlock()
	return nil
}
