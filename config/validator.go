package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/simon020286/go-calibration/models"
)

// Validate checks the station for structural errors
func (s *Station) Validate() error {
	var errs []error

	if s.WorkingDir == "" {
		errs = append(errs, models.ErrMissingConfig("working_dir"))
	}
	if s.ADCBandwidthThreshold < 0 {
		errs = append(errs, fmt.Errorf("adc_bandwidth_threshold must be >= 0, got %g", s.ADCBandwidthThreshold))
	}
	if s.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts must be >= 1, got %d", s.MaxAttempts))
	}
	if s.ProcessTimeout < 0 {
		errs = append(errs, fmt.Errorf("process_timeout must be >= 0, got %s", s.ProcessTimeout))
	}
	if s.Driver.Name == "" {
		errs = append(errs, models.ErrMissingConfig("driver.name"))
	}

	seen := make(map[int]bool, len(s.Steps))
	for i, step := range s.Steps {
		if step.Ordinal <= 0 {
			errs = append(errs, fmt.Errorf("steps[%d]: ordinal must be positive, got %d", i, step.Ordinal))
		}
		if seen[step.Ordinal] {
			errs = append(errs, fmt.Errorf("steps[%d]: duplicate ordinal %d", i, step.Ordinal))
		}
		seen[step.Ordinal] = true
		if step.Type == "" {
			errs = append(errs, models.ErrMissingConfig(fmt.Sprintf("steps[%d].type", i)))
		}
	}

	return errors.Join(errs...)
}

// CheckStepTypes reports steps whose type is not in known
func (s *Station) CheckStepTypes(known []string) error {
	set := make(map[string]bool, len(known))
	for _, k := range known {
		set[k] = true
	}

	var errs []error
	for _, step := range s.Steps {
		if !set[step.Type] {
			sorted := append([]string(nil), known...)
			sort.Strings(sorted)
			errs = append(errs, fmt.Errorf("step %d: unknown type %q (known: %v)", step.Ordinal, step.Type, sorted))
		}
	}
	return errors.Join(errs...)
}

// Ordinals returns the configured step ordinals in ascending order
func (s *Station) Ordinals() []int {
	out := make([]int, 0, len(s.Steps))
	for _, step := range s.Steps {
		out = append(out, step.Ordinal)
	}
	sort.Ints(out)
	return out
}
