package models

import "context"

// Procedure represents a calibration or verification procedure bound to a step ordinal.
// Run drives the instrument and yields a verdict; it must leave every instrument
// subsystem it touched stopped/disabled before returning, on every path.
type Procedure interface {
	// Name identifies the procedure in logs (e.g. "trimmer", "bandwidth")
	Name() string
	// Run executes the procedure once. It blocks until the verdict is known.
	Run(ctx context.Context) Result
}

// ProcedureFunc is an adapter to use plain functions as a Procedure
type ProcedureFunc struct {
	ProcName string
	Fn       func(ctx context.Context) Result
}

func (p ProcedureFunc) Name() string {
	return p.ProcName
}

func (p ProcedureFunc) Run(ctx context.Context) Result {
	return p.Fn(ctx)
}

// Recovery is the action executed between a failed attempt and the next one.
type Recovery interface {
	Recover(ctx context.Context) error
}

// RecoveryFunc is an adapter to use plain functions as a Recovery
type RecoveryFunc func(ctx context.Context) error

func (f RecoveryFunc) Recover(ctx context.Context) error {
	return f(ctx)
}
