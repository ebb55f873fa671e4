// Package builder turns step configurations into procedures.
package builder

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/simon020286/go-calibration/config"
	"github.com/simon020286/go-calibration/extern"
	"github.com/simon020286/go-calibration/instrument"
	"github.com/simon020286/go-calibration/models"
	"github.com/simon020286/go-calibration/relay"
)

// Prompter shows an instruction to the operator
type Prompter interface {
	Prompt(message string)
}

// PrompterFunc adapts a function to Prompter
type PrompterFunc func(message string)

func (f PrompterFunc) Prompt(message string) { f(message) }

// Deps are the collaborators a procedure may use
type Deps struct {
	Instrument *instrument.Instrument
	Executor   extern.Executor
	Relays     relay.Toggler
	Clock      models.Clock
	Logger     logrus.FieldLogger
	Prompter   Prompter
	Scope      config.Scope
}

// WithDefaults fills the optional collaborators
func (d Deps) WithDefaults() Deps {
	if d.Clock == nil {
		d.Clock = models.SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	if d.Prompter == nil {
		log := d.Logger
		d.Prompter = PrompterFunc(func(message string) { log.Info(message) })
	}
	return d
}

// CreateProcedure creates a procedure based on type and configuration
func CreateProcedure(procType string, deps Deps, procConfig map[string]any) (models.Procedure, error) {
	factory, err := GetProcedureFactory(procType)
	if err != nil {
		return nil, err
	}
	if deps.Instrument == nil {
		return nil, errors.New("procedure needs an instrument")
	}
	return factory(deps.WithDefaults(), procConfig)
}

// DecodeConfig resolves every value in raw against scope and decodes the
// result into out, which should already hold the defaults. Unknown keys are
// rejected.
func DecodeConfig(raw map[string]any, scope config.Scope, out any) error {
	if len(raw) == 0 {
		return nil
	}

	resolved, err := config.ResolveMap(raw, scope)
	if err != nil {
		return models.ErrInterpolate("config", err)
	}

	data, err := yaml.Marshal(resolved)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
