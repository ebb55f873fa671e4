// Package config loads the station configuration and resolves the values
// used inside step configurations.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/station.yaml
var defaultStation []byte

// Environment overrides applied after the YAML layers
const (
	EnvWorkingDir = "M2KCAL_WORKING_DIR"
	EnvThreshold  = "M2KCAL_ADC_BANDWIDTH_THRESHOLD"
	EnvLogLevel   = "M2KCAL_LOG_LEVEL"
	EnvDriver     = "M2KCAL_DRIVER"
)

// Station is the complete configuration of a calibration station.
// It is loaded once at startup and not modified afterwards.
type Station struct {
	Name                  string         `yaml:"name"`
	WorkingDir            string         `yaml:"working_dir"`
	ADCBandwidthThreshold float64        `yaml:"adc_bandwidth_threshold"`
	ShowTimestamp         bool           `yaml:"show_timestamp"`
	ShowStartEndTime      bool           `yaml:"show_start_end_time"`
	MaxAttempts           int            `yaml:"max_attempts"`
	ProcessTimeout        time.Duration  `yaml:"process_timeout"` // duration string, "0s" = unlimited
	Driver                DriverConfig   `yaml:"driver"`
	Log                   LogConfig      `yaml:"log"`
	Relay                 RelayConfig    `yaml:"relay"`
	Variables             map[string]any `yaml:"variables,omitempty"`
	Steps                 []StepConfig   `yaml:"steps"`
}

// DriverConfig selects the instrument driver
type DriverConfig struct {
	Name    string         `yaml:"name"`
	Options map[string]any `yaml:"options,omitempty"`
}

// LogConfig configures the log sink
type LogConfig struct {
	Level      string `yaml:"level"`
	Color      bool   `yaml:"color"`
	File       string `yaml:"file,omitempty"` // empty = console only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// RelayConfig holds the pin-toggling commands for each polarity
type RelayConfig struct {
	PositiveCommand string `yaml:"positive_command"`
	NegativeCommand string `yaml:"negative_command"`
}

// StepConfig binds a step ordinal to a procedure type
type StepConfig struct {
	Ordinal int            `yaml:"ordinal"`
	Type    string         `yaml:"type"`
	Config  map[string]any `yaml:"config,omitempty"`
}

// Default returns the embedded default station
func Default() (*Station, error) {
	var s Station
	if err := yaml.Unmarshal(defaultStation, &s); err != nil {
		return nil, fmt.Errorf("failed to parse default station: %w", err)
	}
	return &s, nil
}

// Load builds the station from the embedded defaults, the YAML file at path
// (skipped when empty) and the environment, then validates it.
func Load(path string) (*Station, error) {
	s, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read station file: %w", err)
		}
		if err := s.merge(data); err != nil {
			return nil, fmt.Errorf("failed to parse station file %s: %w", path, err)
		}
	}

	if err := s.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Parse builds a station from YAML bytes layered over the defaults, without
// looking at the environment.
func Parse(data []byte) (*Station, error) {
	s, err := Default()
	if err != nil {
		return nil, err
	}
	if err := s.merge(data); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Station) merge(data []byte) error {
	// driver options and steps are replaced, not merged
	var probe struct {
		Driver *struct {
			Options map[string]any `yaml:"options"`
		} `yaml:"driver"`
		Steps []StepConfig `yaml:"steps"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Driver != nil {
		s.Driver.Options = nil
	}
	if probe.Steps != nil {
		s.Steps = nil
	}
	return yaml.Unmarshal(data, s)
}

func (s *Station) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvWorkingDir); ok && v != "" {
		s.WorkingDir = v
	}
	if v, ok := lookup(EnvThreshold); ok && v != "" {
		th, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvThreshold, v, err)
		}
		s.ADCBandwidthThreshold = th
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		s.Log.Level = v
	}
	if v, ok := lookup(EnvDriver); ok && v != "" {
		s.Driver.Name = v
		s.Driver.Options = nil
	}
	return nil
}

// Vars returns the variables visible to step configs. The threshold and
// working directory are always present.
func (s *Station) Vars() map[string]any {
	vars := make(map[string]any, len(s.Variables)+2)
	for k, v := range s.Variables {
		vars[k] = v
	}
	vars["adc_bandwidth_threshold"] = s.ADCBandwidthThreshold
	vars["working_dir"] = s.WorkingDir
	return vars
}

// Scope returns the resolution scope for step config values
func (s *Station) Scope() Scope {
	return Scope{Station: s.Name, Vars: s.Vars()}
}
