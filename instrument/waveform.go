package instrument

import (
	"context"
	"fmt"
)

// Shape is the stimulus waveform type, numbered as the generator expects it
type Shape int

const (
	Sine   Shape = 0
	Square Shape = 1
)

func (s Shape) String() string {
	switch s {
	case Sine:
		return "sine"
	case Square:
		return "square"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// Waveform describes one stimulus. It is built per measurement and never stored.
type Waveform struct {
	Channel   Channel
	Shape     Shape
	Frequency float64 // Hz
	Amplitude float64 // V peak-to-peak
	Offset    float64 // V
}

func (w Waveform) String() string {
	return fmt.Sprintf("%s %s %gHz %gVpp offset %gV", w.Channel, w.Shape, w.Frequency, w.Amplitude, w.Offset)
}

// StartStimulus stops any running generator output, then applies w and starts
// the generator. Only one stimulus is ever running after it returns.
func StartStimulus(ctx context.Context, gen SignalGenerator, w Waveform) error {
	if !w.Channel.Valid() {
		return fmt.Errorf("stimulus: invalid channel %d", int(w.Channel))
	}
	running, err := gen.Running(ctx)
	if err != nil {
		return fmt.Errorf("stimulus: read running state: %w", err)
	}
	if running {
		if err := gen.SetRunning(ctx, false); err != nil {
			return fmt.Errorf("stimulus: stop previous output: %w", err)
		}
	}
	if err := gen.SetChannelEnabled(ctx, w.Channel, true); err != nil {
		return fmt.Errorf("stimulus: enable %s: %w", w.Channel, err)
	}
	if err := gen.SetWaveform(ctx, w); err != nil {
		return fmt.Errorf("stimulus: configure %s: %w", w, err)
	}
	if err := gen.SetRunning(ctx, true); err != nil {
		return fmt.Errorf("stimulus: start: %w", err)
	}
	return nil
}
