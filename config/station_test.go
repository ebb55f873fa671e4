package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/simon020286/go-calibration/models"
)

func TestDefault(t *testing.T) {
	s, err := Default()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if s.ADCBandwidthThreshold != 7 {
		t.Errorf("Expected threshold 7, got %g", s.ADCBandwidthThreshold)
	}
	if s.MaxAttempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", s.MaxAttempts)
	}
	if s.ProcessTimeout != 0 {
		t.Errorf("Expected unlimited process timeout, got %s", s.ProcessTimeout)
	}
	if len(s.Steps) != 2 || s.Steps[0].Ordinal != 9 || s.Steps[1].Ordinal != 10 {
		t.Errorf("Expected steps 9 and 10, got %+v", s.Steps)
	}
	if s.Relay.NegativeCommand != "./toggle_pins.sh GPIO_EXP1 pin4" {
		t.Errorf("Unexpected negative relay command %q", s.Relay.NegativeCommand)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestParse_OverridesDefaults(t *testing.T) {
	data := []byte(`
name: bench-3
adc_bandwidth_threshold: 5.5
process_timeout: 90s
driver:
  name: sim
  options:
    bandwidth_hz: 40000000
steps:
  - ordinal: 10
    type: bandwidth
`)
	s, err := Parse(data)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if s.Name != "bench-3" {
		t.Errorf("Expected name 'bench-3', got %q", s.Name)
	}
	if s.ADCBandwidthThreshold != 5.5 {
		t.Errorf("Expected threshold 5.5, got %g", s.ADCBandwidthThreshold)
	}
	if s.ProcessTimeout != 90*time.Second {
		t.Errorf("Expected 90s, got %s", s.ProcessTimeout)
	}
	if len(s.Steps) != 1 || s.Steps[0].Type != "bandwidth" {
		t.Errorf("Expected steps to be replaced, got %+v", s.Steps)
	}
	// untouched fields keep their defaults
	if s.MaxAttempts != 3 {
		t.Errorf("Expected default max_attempts 3, got %d", s.MaxAttempts)
	}
	if s.Driver.Options["bandwidth_hz"] != 40000000 {
		t.Errorf("Expected bandwidth option, got %v", s.Driver.Options)
	}
}

func TestParse_Invalid(t *testing.T) {
	data := []byte(`
max_attempts: 0
adc_bandwidth_threshold: -1
steps:
  - ordinal: 9
    type: trimmer
  - ordinal: 9
    type: bandwidth
  - ordinal: -2
    type: ""
`)
	_, err := Parse(data)
	if err == nil {
		t.Fatal("Expected validation error")
	}

	var missing *models.MissingConfigError
	if !errors.As(err, &missing) {
		t.Errorf("Expected a MissingConfigError in %v", err)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "station.yaml")
	if err := os.WriteFile(path, []byte("name: from-file\nworking_dir: /srv/cal\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvThreshold, "9")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvWorkingDir, "")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if s.Name != "from-file" {
		t.Errorf("Expected name from file, got %q", s.Name)
	}
	if s.WorkingDir != "/srv/cal" {
		t.Errorf("Expected working dir from file, got %q", s.WorkingDir)
	}
	if s.ADCBandwidthThreshold != 9 {
		t.Errorf("Expected env threshold 9, got %g", s.ADCBandwidthThreshold)
	}
	if s.Log.Level != "debug" {
		t.Errorf("Expected env log level, got %q", s.Log.Level)
	}
}

func TestLoad_EnvWithoutFile(t *testing.T) {
	t.Setenv(EnvThreshold, "3")
	t.Setenv(EnvWorkingDir, "/opt/station")
	t.Setenv(EnvDriver, "")
	t.Setenv(EnvLogLevel, "")

	s, err := Load("")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if s.ADCBandwidthThreshold != 3 {
		t.Errorf("Expected env threshold 3, got %g", s.ADCBandwidthThreshold)
	}
	if s.WorkingDir != "/opt/station" {
		t.Errorf("Expected env working dir, got %q", s.WorkingDir)
	}
	if s.Name != "m2k-station" {
		t.Errorf("Expected default name, got %q", s.Name)
	}
	if len(s.Steps) != 2 {
		t.Errorf("Expected the default steps, got %d", len(s.Steps))
	}
	if th := s.Vars()["adc_bandwidth_threshold"]; th != 3.0 {
		t.Errorf("Expected threshold variable 3, got %v", th)
	}
}

func TestLoad_BadEnvThreshold(t *testing.T) {
	t.Setenv(EnvThreshold, "seven")

	if _, err := Load(""); err == nil {
		t.Error("Expected error for non-numeric threshold")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestStation_Vars(t *testing.T) {
	s, err := Parse([]byte("working_dir: /w\nvariables:\n  operator: ana\n"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	vars := s.Vars()
	if vars["adc_bandwidth_threshold"] != 7.0 {
		t.Errorf("Expected threshold 7, got %v", vars["adc_bandwidth_threshold"])
	}
	if vars["working_dir"] != "/w" {
		t.Errorf("Expected '/w', got %v", vars["working_dir"])
	}
	if vars["operator"] != "ana" {
		t.Errorf("Expected 'ana', got %v", vars["operator"])
	}
}

func TestStation_CheckStepTypes(t *testing.T) {
	s, _ := Default()

	if err := s.CheckStepTypes([]string{"trimmer", "bandwidth"}); err != nil {
		t.Errorf("Expected known types, got %v", err)
	}
	if err := s.CheckStepTypes([]string{"trimmer"}); err == nil {
		t.Error("Expected error for unknown bandwidth type")
	}
}

func TestStation_Ordinals(t *testing.T) {
	s := &Station{Steps: []StepConfig{{Ordinal: 10}, {Ordinal: 9}, {Ordinal: 12}}}

	got := s.Ordinals()
	want := []int{9, 10, 12}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, got)
			break
		}
	}
}
