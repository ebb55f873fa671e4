package builder

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/simon020286/go-calibration/config"
	"github.com/simon020286/go-calibration/instrument/fake"
	"github.com/simon020286/go-calibration/models"
)

type sampleConfig struct {
	Threshold float64       `yaml:"threshold"`
	Settle    time.Duration `yaml:"settle"`
	Label     string        `yaml:"label"`
	Channels  []int         `yaml:"channels"`
}

func TestDecodeConfig(t *testing.T) {
	cfg := sampleConfig{Threshold: 1, Settle: time.Second, Label: "default"}
	raw := map[string]any{
		"threshold": "$var:adc_bandwidth_threshold",
		"settle":    "250ms",
		"channels":  []any{1, "$js: 0"},
	}
	scope := config.Scope{Vars: map[string]any{"adc_bandwidth_threshold": 7.0}}

	if err := DecodeConfig(raw, scope, &cfg); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Threshold != 7 {
		t.Errorf("Expected threshold 7, got %g", cfg.Threshold)
	}
	if cfg.Settle != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %s", cfg.Settle)
	}
	if cfg.Label != "default" {
		t.Errorf("Expected default label kept, got %q", cfg.Label)
	}
	if len(cfg.Channels) != 2 || cfg.Channels[0] != 1 || cfg.Channels[1] != 0 {
		t.Errorf("Expected channels [1 0], got %v", cfg.Channels)
	}
}

func TestDecodeConfig_EnvTypedValues(t *testing.T) {
	t.Setenv("M2KCAL_TEST_THRESHOLD", "8")
	t.Setenv("M2KCAL_TEST_SETTLE", "750ms")
	t.Setenv("M2KCAL_TEST_LABEL", "bench-3")

	var cfg sampleConfig
	raw := map[string]any{
		"threshold": "$env:M2KCAL_TEST_THRESHOLD",
		"settle":    "$env:M2KCAL_TEST_SETTLE",
		"label":     "$env:M2KCAL_TEST_LABEL",
	}
	if err := DecodeConfig(raw, config.Scope{}, &cfg); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Threshold != 8 {
		t.Errorf("Expected threshold 8, got %g", cfg.Threshold)
	}
	if cfg.Settle != 750*time.Millisecond {
		t.Errorf("Expected 750ms, got %s", cfg.Settle)
	}
	if cfg.Label != "bench-3" {
		t.Errorf("Expected label 'bench-3', got %q", cfg.Label)
	}
}

func TestDecodeConfig_UnknownKey(t *testing.T) {
	var cfg sampleConfig
	err := DecodeConfig(map[string]any{"treshold": 3}, config.Scope{}, &cfg)
	if err == nil {
		t.Fatal("Expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "treshold") {
		t.Errorf("Expected error naming the key, got %v", err)
	}
}

func TestDecodeConfig_UnresolvedVariable(t *testing.T) {
	var cfg sampleConfig
	if err := DecodeConfig(map[string]any{"label": "$var:nope"}, config.Scope{}, &cfg); err == nil {
		t.Error("Expected error for unresolved variable")
	}
}

func TestRegistry(t *testing.T) {
	RegisterProcedureType("test-noop", func(deps Deps, cfg map[string]any) (models.Procedure, error) {
		return models.ProcedureFunc{ProcName: "noop", Fn: func(ctx context.Context) models.Result {
			return models.Pass()
		}}, nil
	})

	found := false
	for _, name := range ListProcedureTypes() {
		if name == "test-noop" {
			found = true
		}
	}
	if !found {
		t.Error("Expected test-noop to be listed")
	}

	proc, err := CreateProcedure("test-noop", Deps{Instrument: fake.New().Instrument()}, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !proc.Run(context.Background()).Passed {
		t.Error("Expected noop to pass")
	}

	if _, err := CreateProcedure("does-not-exist", Deps{}, nil); err == nil {
		t.Error("Expected error for unknown type")
	}
	if _, err := CreateProcedure("test-noop", Deps{}, nil); err == nil {
		t.Error("Expected error without instrument")
	}
}

func TestDeps_WithDefaults(t *testing.T) {
	d := Deps{}.WithDefaults()

	if d.Clock == nil || d.Logger == nil || d.Prompter == nil {
		t.Errorf("Expected defaults to be filled, got %+v", d)
	}
}
