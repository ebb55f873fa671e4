package instrument

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Launcher is the connection layer of an instrument host: device discovery,
// connection and the script privileges the calibration session needs.
type Launcher interface {
	// DeviceURIs enumerates candidate device URIs (USB first)
	DeviceURIs(ctx context.Context) ([]string, error)
	// Connect opens the device at uri
	Connect(ctx context.Context, uri string) (*Instrument, error)
	// EnableExternScripts allows procedures to spawn external processes
	EnableExternScripts(ctx context.Context) error
	// EnableCalibScripts allows procedures to run manual calibration routines
	EnableCalibScripts(ctx context.Context) error
	Close() error
}

// DriverFactory creates a Launcher from driver options
type DriverFactory func(options map[string]any) (Launcher, error)

var (
	// drivers contains all registered factories by driver name
	drivers = make(map[string]DriverFactory)
	mu      sync.RWMutex
)

// RegisterDriver registers a factory for a driver name.
// This function is called by init() in driver packages
func RegisterDriver(name string, factory DriverFactory) {
	mu.Lock()
	defer mu.Unlock()
	drivers[name] = factory
}

// OpenDriver creates the Launcher of a registered driver
func OpenDriver(name string, options map[string]any) (Launcher, error) {
	mu.RLock()
	factory, exists := drivers[name]
	mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("unknown instrument driver: %s (registered: %v)", name, Drivers())
	}
	return factory(options)
}

// Drivers returns all registered driver names, sorted
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
