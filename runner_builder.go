package calibration

import (
	"fmt"

	"github.com/simon020286/go-calibration/builder"
	"github.com/simon020286/go-calibration/config"
	"github.com/simon020286/go-calibration/models"
	_ "github.com/simon020286/go-calibration/steps"
)

// BuildFromConfig builds a runner from the station configuration. The
// recovery action is the instrument's auto-calibration. Extra options are
// applied after the ones derived from the station.
func BuildFromConfig(station *config.Station, deps builder.Deps, opts ...RunnerOption) (*Runner, error) {
	if deps.Instrument == nil {
		return nil, fmt.Errorf("build runner: no instrument")
	}
	if err := station.CheckStepTypes(builder.ListProcedureTypes()); err != nil {
		return nil, err
	}

	deps.Scope = station.Scope()
	deps = deps.WithDefaults()

	base := []RunnerOption{
		WithMaxAttempts(station.MaxAttempts),
		WithClock(deps.Clock),
	}
	if cal := deps.Instrument.Calibrator; cal != nil {
		base = append(base, WithRecovery(models.RecoveryFunc(cal.AutoCalibrate)))
	}
	runner := NewRunner(append(base, opts...)...)

	for _, stepConfig := range station.Steps {
		proc, err := builder.CreateProcedure(stepConfig.Type, deps, stepConfig.Config)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", stepConfig.Ordinal, err)
		}
		if err := runner.Register(stepConfig.Ordinal, proc); err != nil {
			return nil, err
		}
	}

	return runner, nil
}
