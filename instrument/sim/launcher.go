package sim

import (
	"context"
	"errors"
	"fmt"

	"github.com/simon020286/go-calibration/instrument"
)

// Launcher is the connection layer of the simulated host
type Launcher struct {
	dev  *Device
	opts Options
}

// NewLauncher wraps a simulated device in a connection layer
func NewLauncher(dev *Device) *Launcher {
	return &Launcher{dev: dev, opts: dev.opts}
}

// Device returns the simulated device behind the launcher
func (l *Launcher) Device() *Device {
	return l.dev
}

func (l *Launcher) DeviceURIs(ctx context.Context) ([]string, error) {
	return append([]string(nil), l.opts.URIs...), nil
}

func (l *Launcher) Connect(ctx context.Context, uri string) (*instrument.Instrument, error) {
	for _, u := range l.opts.URIs {
		if u == uri {
			return l.dev.Instrument(), nil
		}
	}
	return nil, fmt.Errorf("sim: no device at %s", uri)
}

func (l *Launcher) EnableExternScripts(ctx context.Context) error {
	if l.opts.RejectExtern {
		return errors.New("sim: external scripts disabled by host")
	}
	return nil
}

func (l *Launcher) EnableCalibScripts(ctx context.Context) error {
	if l.opts.RejectCalib {
		return errors.New("sim: calibration scripts disabled by host")
	}
	return nil
}

func (l *Launcher) Close() error {
	return nil
}

// optionsFromMap reads driver options as they come out of the station YAML
func optionsFromMap(m map[string]any) (Options, error) {
	opts := DefaultOptions()
	for key, raw := range m {
		switch key {
		case "bandwidth_hz":
			switch v := raw.(type) {
			case []any:
				if len(v) != 2 {
					return opts, fmt.Errorf("sim: bandwidth_hz needs 2 values, got %d", len(v))
				}
				for i, x := range v {
					f, err := toFloat(x)
					if err != nil {
						return opts, fmt.Errorf("sim: bandwidth_hz[%d]: %w", i, err)
					}
					opts.Bandwidth[i] = f
				}
			default:
				f, err := toFloat(raw)
				if err != nil {
					return opts, fmt.Errorf("sim: bandwidth_hz: %w", err)
				}
				opts.Bandwidth = [2]float64{f, f}
			}
		case "swap_markers":
			b, ok := raw.(bool)
			if !ok {
				return opts, fmt.Errorf("sim: swap_markers must be a boolean, got %T", raw)
			}
			opts.SwapMarkers = b
		case "reject_extern":
			b, ok := raw.(bool)
			if !ok {
				return opts, fmt.Errorf("sim: reject_extern must be a boolean, got %T", raw)
			}
			opts.RejectExtern = b
		case "reject_calib":
			b, ok := raw.(bool)
			if !ok {
				return opts, fmt.Errorf("sim: reject_calib must be a boolean, got %T", raw)
			}
			opts.RejectCalib = b
		case "uris":
			list, ok := raw.([]any)
			if !ok {
				return opts, fmt.Errorf("sim: uris must be a list, got %T", raw)
			}
			opts.URIs = opts.URIs[:0:0]
			for _, u := range list {
				s, ok := u.(string)
				if !ok {
					return opts, fmt.Errorf("sim: uri must be a string, got %T", u)
				}
				opts.URIs = append(opts.URIs, s)
			}
		default:
			return opts, fmt.Errorf("sim: unknown option %q", key)
		}
	}
	return opts, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func init() {
	instrument.RegisterDriver("sim", func(m map[string]any) (instrument.Launcher, error) {
		opts, err := optionsFromMap(m)
		if err != nil {
			return nil, err
		}
		return NewLauncher(New(opts)), nil
	})
}
