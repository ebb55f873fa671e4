// Package sim implements a simulated two-channel mixed-signal instrument.
//
// Each analog channel is modelled as a single-pole low-pass path with its own
// cutoff. Spectrum marker magnitudes are computed from an FFT of the
// synthesized stimulus, so a narrow channel bandwidth shows up the same way
// it does on hardware: as a lower reading at the high test frequency.
package sim

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/simon020286/go-calibration/instrument"
)

// Options configures the simulated device
type Options struct {
	// Bandwidth is the -3 dB cutoff of each channel path in Hz
	Bandwidth [2]float64
	// SampleRate and Samples define the FFT grid; SampleRate/Samples is the bin width
	SampleRate float64
	Samples    int
	// FullScale is the peak voltage read as 0 dB
	FullScale float64
	// SwapMarkers binds each channel's first marker to the other channel
	SwapMarkers bool
	// RejectExtern and RejectCalib make the launcher refuse the script privileges
	RejectExtern bool
	RejectCalib  bool
	// URIs returned by device discovery
	URIs []string
}

// DefaultOptions returns a healthy device: 100 MHz bandwidth on both channels
// and a 10 kHz bin grid that puts both bandwidth test tones on exact bins.
func DefaultOptions() Options {
	return Options{
		Bandwidth:  [2]float64{100e6, 100e6},
		SampleRate: 100e6,
		Samples:    10000,
		FullScale:  1,
		URIs:       []string{"usb:sim.0"},
	}
}

// Device is the simulated instrument
type Device struct {
	mu   sync.Mutex
	opts Options
	fft  *fourier.FFT

	scopeEnabled [2]bool
	scopeRunning bool
	voltsPerDiv  [2]float64
	timeBase     float64

	genRunning bool
	genEnabled [2]bool
	waveforms  [2]instrument.Waveform

	specEnabled [2]bool
	specRunning bool
	spanStart   float64
	spanStop    float64
	topScale    float64
	rangeDB     float64
	markers     [2 * instrument.MarkersPerChannel]instrument.Marker

	autoCalibrations int
}

// New creates a simulated device
func New(opts Options) *Device {
	def := DefaultOptions()
	if opts.SampleRate <= 0 {
		opts.SampleRate = def.SampleRate
	}
	if opts.Samples <= 0 {
		opts.Samples = def.Samples
	}
	if opts.FullScale <= 0 {
		opts.FullScale = def.FullScale
	}
	for i, bw := range opts.Bandwidth {
		if bw <= 0 {
			opts.Bandwidth[i] = def.Bandwidth[i]
		}
	}
	if len(opts.URIs) == 0 {
		opts.URIs = def.URIs
	}
	return &Device{
		opts:     opts,
		fft:      fourier.NewFFT(opts.Samples),
		topScale: 0,
		rangeDB:  200,
		spanStop: opts.SampleRate / 2,
	}
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

// Quiesced reports whether scope, generator and spectrum are all stopped
func (d *Device) Quiesced() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.scopeRunning && !d.genRunning && !d.specRunning
}

// AutoCalibrations returns how many self calibrations ran
func (d *Device) AutoCalibrations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.autoCalibrations
}

// response is the magnitude of the single-pole channel response at f
func (d *Device) response(ch instrument.Channel, f float64) float64 {
	fc := d.opts.Bandwidth[ch]
	return 1 / math.Sqrt(1+(f/fc)*(f/fc))
}

// synthesize samples the stimulus of ch as seen at the ADC input
func (d *Device) synthesize(w instrument.Waveform) []float64 {
	n := d.opts.Samples
	out := make([]float64, n)
	peak := w.Amplitude / 2
	for i := range out {
		t := float64(i) / d.opts.SampleRate
		phase := 2 * math.Pi * w.Frequency * t
		switch w.Shape {
		case instrument.Square:
			if math.Sin(phase) >= 0 {
				out[i] = peak
			} else {
				out[i] = -peak
			}
		default:
			out[i] = peak * d.response(w.Channel, w.Frequency) * math.Sin(phase)
		}
		out[i] += w.Offset
	}
	return out
}

// magnitude returns the dB reading at frequency on ch. Caller holds d.mu.
func (d *Device) magnitude(ch instrument.Channel, frequency float64) (float64, error) {
	floor := d.topScale - d.rangeDB
	if !d.specRunning || !d.specEnabled[ch] || !d.genRunning || !d.genEnabled[ch] {
		return floor, nil
	}
	if frequency < d.spanStart || frequency > d.spanStop {
		return floor, nil
	}
	binWidth := d.opts.SampleRate / float64(d.opts.Samples)
	k := int(math.Round(frequency / binWidth))
	if k < 0 || k > d.opts.Samples/2 {
		return 0, fmt.Errorf("sim: frequency %g Hz above Nyquist", frequency)
	}

	coeff := d.fft.Coefficients(nil, d.synthesize(d.waveforms[ch]))
	scale := 2 / float64(d.opts.Samples)
	if k == 0 {
		scale = 1 / float64(d.opts.Samples)
	}
	amp := cmplx.Abs(coeff[k]) * scale
	if amp <= 0 {
		return floor, nil
	}
	db := 20 * math.Log10(amp/d.opts.FullScale)
	return math.Max(floor, math.Min(d.topScale, db)), nil
}

func checkChannel(ch instrument.Channel) error {
	if !ch.Valid() {
		return fmt.Errorf("sim: invalid channel %d", int(ch))
	}
	return nil
}

func checkMarker(idx int) error {
	if idx < 0 || idx >= 2*instrument.MarkersPerChannel {
		return fmt.Errorf("sim: invalid marker index %d", idx)
	}
	return nil
}

type scope struct{ d *Device }

func (s scope) Show(ctx context.Context) error { return nil }

func (s scope) SetInternalTrigger(ctx context.Context, source instrument.Channel, condition instrument.TriggerCondition) error {
	return checkChannel(source)
}

func (s scope) SetChannelEnabled(ctx context.Context, ch instrument.Channel, enabled bool) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.scopeEnabled[ch] = enabled
	return nil
}

func (s scope) SetVoltsPerDiv(ctx context.Context, ch instrument.Channel, v float64) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.voltsPerDiv[ch] = v
	return nil
}

func (s scope) SetTimeBase(ctx context.Context, seconds float64) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.timeBase = seconds
	return nil
}

func (s scope) SetRunning(ctx context.Context, running bool) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.scopeRunning = running
	return nil
}

type generator struct{ d *Device }

func (g generator) Running(ctx context.Context) (bool, error) {
	g.d.mu.Lock()
	defer g.d.mu.Unlock()
	return g.d.genRunning, nil
}

func (g generator) SetRunning(ctx context.Context, running bool) error {
	g.d.mu.Lock()
	defer g.d.mu.Unlock()
	g.d.genRunning = running
	return nil
}

func (g generator) SetChannelEnabled(ctx context.Context, ch instrument.Channel, enabled bool) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	g.d.mu.Lock()
	defer g.d.mu.Unlock()
	g.d.genEnabled[ch] = enabled
	return nil
}

func (g generator) SetWaveform(ctx context.Context, w instrument.Waveform) error {
	if err := checkChannel(w.Channel); err != nil {
		return err
	}
	if w.Frequency < 0 || w.Frequency > g.d.opts.SampleRate/2 {
		return fmt.Errorf("sim: frequency %g Hz out of range", w.Frequency)
	}
	g.d.mu.Lock()
	defer g.d.mu.Unlock()
	g.d.waveforms[w.Channel] = w
	return nil
}

type spectrum struct{ d *Device }

func (s spectrum) SetChannelEnabled(ctx context.Context, ch instrument.Channel, enabled bool) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.specEnabled[ch] = enabled
	return nil
}

func (s spectrum) SetSpan(ctx context.Context, startHz, stopHz float64) error {
	if startHz < 0 || stopHz <= startHz {
		return fmt.Errorf("sim: invalid span %g..%g Hz", startHz, stopHz)
	}
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.spanStart, s.d.spanStop = startHz, stopHz
	return nil
}

func (s spectrum) SetTopScale(ctx context.Context, dB float64) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.topScale = dB
	return nil
}

func (s spectrum) SetRange(ctx context.Context, dB float64) error {
	if dB <= 0 {
		return fmt.Errorf("sim: invalid range %g dB", dB)
	}
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.rangeDB = dB
	return nil
}

func (s spectrum) SetRunning(ctx context.Context, running bool) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.specRunning = running
	return nil
}

func (s spectrum) MarkerChannel(ctx context.Context, index int) (instrument.Channel, error) {
	if err := checkMarker(index); err != nil {
		return 0, err
	}
	ch := instrument.Channel(index / instrument.MarkersPerChannel)
	if s.d.opts.SwapMarkers && index%instrument.MarkersPerChannel == 0 {
		ch = 1 - ch
	}
	return ch, nil
}

func (s spectrum) SetMarker(ctx context.Context, index int, m instrument.Marker) error {
	if err := checkMarker(index); err != nil {
		return err
	}
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.markers[index] = m
	return nil
}

func (s spectrum) MarkerMagnitude(ctx context.Context, index int) (float64, error) {
	ch, err := s.MarkerChannel(ctx, index)
	if err != nil {
		return 0, err
	}
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	m := s.d.markers[index]
	if !m.Enabled {
		return s.d.topScale - s.d.rangeDB, nil
	}
	return s.d.magnitude(ch, m.Frequency)
}

type calibrator struct{ d *Device }

func (c calibrator) AutoCalibrate(ctx context.Context) error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.d.autoCalibrations++
	return nil
}
