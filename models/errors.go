package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDevice is returned when device discovery yields no candidate URI
	ErrNoDevice = errors.New("no usb devices available")
	// ErrOperatorTimeout is returned when the operator did not confirm in time
	ErrOperatorTimeout = errors.New("operator confirmation timed out")
	// ErrRunnerBusy is returned when a step is started while another one is running
	ErrRunnerBusy = errors.New("step runner already running a step")
)

type MissingConfigError struct {
	Key string
}

func (e *MissingConfigError) Error() string {
	return "missing required configuration key: " + e.Key
}

func ErrMissingConfig(key string) error {
	return &MissingConfigError{Key: key}
}

type InterpolateError struct {
	Key   string
	Value any
}

func (e *InterpolateError) Error() string {
	return fmt.Sprintf("failed to interpolate value for key '%s': %v", e.Key, e.Value)
}

func ErrInterpolate(key string, value any) error {
	return &InterpolateError{Key: key, Value: value}
}

// ConnectError reports a rejected connection to a discovered device
type ConnectError struct {
	URI string
	Err error
}

func (e *ConnectError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("failed to connect to: %s", e.URI)
	}
	return fmt.Sprintf("failed to connect to: %s: %v", e.URI, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// PrivilegeError reports that the instrument host refused to enable a script privilege
type PrivilegeError struct {
	Privilege string // "external scripts" or "manual calibration scripts"
	Err       error
}

func (e *PrivilegeError) Error() string {
	return fmt.Sprintf("can't run %s: %v", e.Privilege, e.Err)
}

func (e *PrivilegeError) Unwrap() error {
	return e.Err
}

// MarkerBindingError reports a spectrum marker that is not bound to the expected channel
type MarkerBindingError struct {
	Index    int
	Expected int
	Actual   int
}

func (e *MarkerBindingError) Error() string {
	return fmt.Sprintf("spectrum marker %d is bound to channel %d, expected channel %d", e.Index, e.Actual, e.Expected)
}

// BandwidthError reports a low/high frequency difference outside [0, threshold]
type BandwidthError struct {
	Channel   int
	Diff      float64
	Threshold float64
}

func (e *BandwidthError) Error() string {
	if e.Diff < 0 {
		return fmt.Sprintf("channel %d: high frequency reading exceeds low frequency reading by %.2f dB", e.Channel, -e.Diff)
	}
	return fmt.Sprintf("channel %d: dB difference %.2f is too big (threshold %.2f)", e.Channel, e.Diff, e.Threshold)
}

// StepFailedError reports a step that exhausted its attempts
type StepFailedError struct {
	Ordinal  int
	Attempts int
	Reason   error
}

func (e *StepFailedError) Error() string {
	if e.Reason == nil {
		return fmt.Sprintf("step %d failed after %d attempt(s)", e.Ordinal, e.Attempts)
	}
	return fmt.Sprintf("step %d failed after %d attempt(s): %v", e.Ordinal, e.Attempts, e.Reason)
}

func (e *StepFailedError) Unwrap() error {
	return e.Reason
}

// UnknownStepError reports an ordinal that has no procedure bound to it
type UnknownStepError struct {
	Ordinal int
}

func (e *UnknownStepError) Error() string {
	return fmt.Sprintf("no procedure registered for step %d", e.Ordinal)
}
