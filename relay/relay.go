// Package relay routes the stimulus polarity by driving the fixture's relays
// through external pin-toggling scripts.
package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/simon020286/go-calibration/extern"
	"github.com/simon020286/go-calibration/instrument"
)

const (
	// DefaultPositiveCommand drives both pins: the reference-measurement relay is held inactive
	DefaultPositiveCommand = "./toggle_pins.sh GPIO_EXP1 pin7 pin4"
	DefaultNegativeCommand = "./toggle_pins.sh GPIO_EXP1 pin4"
)

// Toggler switches the relay routing to the requested polarity
type Toggler interface {
	Toggle(ctx context.Context, polarity instrument.Polarity) error
}

// Config holds the command used for each polarity
type Config struct {
	PositiveCommand string `yaml:"positive_command"`
	NegativeCommand string `yaml:"negative_command"`
}

// Controller is the Toggler backed by the external process gateway
type Controller struct {
	exec   extern.Executor
	config Config
	log    logrus.FieldLogger
}

// NewController creates a controller. Empty commands fall back to the defaults.
func NewController(exec extern.Executor, cfg Config, log logrus.FieldLogger) *Controller {
	if strings.TrimSpace(cfg.PositiveCommand) == "" {
		cfg.PositiveCommand = DefaultPositiveCommand
	}
	if strings.TrimSpace(cfg.NegativeCommand) == "" {
		cfg.NegativeCommand = DefaultNegativeCommand
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Controller{exec: exec, config: cfg, log: log}
}

// Command returns the command run for polarity
func (c *Controller) Command(polarity instrument.Polarity) string {
	if polarity == instrument.Positive {
		return c.config.PositiveCommand
	}
	return c.config.NegativeCommand
}

// Toggle runs the pin script for polarity
func (c *Controller) Toggle(ctx context.Context, polarity instrument.Polarity) error {
	cmd := c.Command(polarity)
	out, err := c.exec.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("toggle relay %s: %w", polarity, err)
	}
	c.log.WithField("polarity", polarity.String()).Debugf("relay toggled: %s", strings.TrimSpace(out))
	return nil
}
