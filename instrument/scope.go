package instrument

import (
	"context"
	"fmt"
)

// GainMode selects the oscilloscope input sensitivity
type GainMode int

const (
	LowGain GainMode = iota
	HighGain
)

// Volts per division applied for each gain mode
const (
	LowGainVoltsPerDiv  = 1.0
	HighGainVoltsPerDiv = 0.5
)

func (g GainMode) VoltsPerDiv() float64 {
	if g == HighGain {
		return HighGainVoltsPerDiv
	}
	return LowGainVoltsPerDiv
}

func (g GainMode) String() string {
	if g == HighGain {
		return "high"
	}
	return "low"
}

// SetGainMode enables ch and switches it to the requested sensitivity
func SetGainMode(ctx context.Context, scope Oscilloscope, ch Channel, mode GainMode) error {
	if err := scope.SetChannelEnabled(ctx, ch, true); err != nil {
		return fmt.Errorf("scope: enable %s: %w", ch, err)
	}
	if err := scope.SetVoltsPerDiv(ctx, ch, mode.VoltsPerDiv()); err != nil {
		return fmt.Errorf("scope: %s gain on %s: %w", mode, ch, err)
	}
	return nil
}
