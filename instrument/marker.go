package instrument

import (
	"context"
	"fmt"

	"github.com/simon020286/go-calibration/models"
)

// MarkersPerChannel is the number of spectrum markers reserved for each channel
const MarkersPerChannel = 5

// MarkerType is the spectrum marker mode (0 = manual, fixed frequency)
type MarkerType int

const MarkerManual MarkerType = 0

// Marker is the configuration written to a spectrum marker
type Marker struct {
	Enabled   bool
	Type      MarkerType
	Frequency float64
}

// MarkerReading is a magnitude read at a frequency on a channel
type MarkerReading struct {
	Channel   Channel
	Frequency float64
	Magnitude float64 // dB
}

// MarkerIndex returns the first marker reserved for ch
func MarkerIndex(ch Channel) int {
	return int(ch) * MarkersPerChannel
}

// ReadMarker points the channel's marker at frequency and returns its magnitude.
// The marker binding is validated first; a marker bound to another channel
// yields a *models.MarkerBindingError and no reading.
func ReadMarker(ctx context.Context, sa SpectrumAnalyzer, ch Channel, frequency float64) (MarkerReading, error) {
	idx := MarkerIndex(ch)
	bound, err := sa.MarkerChannel(ctx, idx)
	if err != nil {
		return MarkerReading{}, fmt.Errorf("marker %d: read channel binding: %w", idx, err)
	}
	if bound != ch {
		return MarkerReading{}, &models.MarkerBindingError{Index: idx, Expected: int(ch), Actual: int(bound)}
	}
	if err := sa.SetMarker(ctx, idx, Marker{Enabled: true, Type: MarkerManual, Frequency: frequency}); err != nil {
		return MarkerReading{}, fmt.Errorf("marker %d: configure: %w", idx, err)
	}
	mag, err := sa.MarkerMagnitude(ctx, idx)
	if err != nil {
		return MarkerReading{}, fmt.Errorf("marker %d: read magnitude: %w", idx, err)
	}
	return MarkerReading{Channel: ch, Frequency: frequency, Magnitude: mag}, nil
}
