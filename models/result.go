package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Result is the verdict of a single procedure invocation.
// A failed Result carries the reason; a passed Result has a nil Reason.
type Result struct {
	Passed       bool
	Reason       error
	Measurements map[string]float64
}

// Pass returns a passing result
func Pass() Result {
	return Result{Passed: true}
}

// Fail returns a failing result with the given reason
func Fail(reason error) Result {
	if reason == nil {
		reason = errors.New("procedure failed")
	}
	return Result{Passed: false, Reason: reason}
}

// Failf returns a failing result with a formatted reason
func Failf(format string, args ...any) Result {
	return Fail(fmt.Errorf(format, args...))
}

// WithMeasurement returns a copy of the result with an extra named measurement
func (r Result) WithMeasurement(name string, value float64) Result {
	m := make(map[string]float64, len(r.Measurements)+1)
	for k, v := range r.Measurements {
		m[k] = v
	}
	m[name] = value
	r.Measurements = m
	return r
}

// Merge folds cleanup errors into the result. Any error turns the verdict into a failure.
func (r Result) Merge(errs ...error) Result {
	err := errors.Join(errs...)
	if err == nil {
		return r
	}
	r.Passed = false
	if r.Reason != nil {
		r.Reason = errors.Join(r.Reason, err)
	} else {
		r.Reason = err
	}
	return r
}

func (r Result) String() string {
	var b strings.Builder
	if r.Passed {
		b.WriteString("pass")
	} else {
		b.WriteString("fail")
		if r.Reason != nil {
			b.WriteString(": ")
			b.WriteString(r.Reason.Error())
		}
	}
	if len(r.Measurements) > 0 {
		keys := make([]string, 0, len(r.Measurements))
		for k := range r.Measurements {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%g", k, r.Measurements[k])
		}
	}
	return b.String()
}
