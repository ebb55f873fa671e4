package builder

import (
	"fmt"
	"sort"
	"sync"

	"github.com/simon020286/go-calibration/models"
)

// ProcedureFactory creates a Procedure from its dependencies and configuration
type ProcedureFactory func(deps Deps, config map[string]any) (models.Procedure, error)

var (
	// registry contains all registered factories by procedure type
	registry = make(map[string]ProcedureFactory)
	mu       sync.RWMutex
)

// RegisterProcedureType registers a factory for a procedure type.
// This function is called by init() in the steps package.
func RegisterProcedureType(procType string, factory ProcedureFactory) {
	mu.Lock()
	defer mu.Unlock()
	registry[procType] = factory
}

// GetProcedureFactory returns the factory for a procedure type
func GetProcedureFactory(procType string) (ProcedureFactory, error) {
	mu.RLock()
	defer mu.RUnlock()

	factory, exists := registry[procType]
	if !exists {
		return nil, fmt.Errorf("unknown procedure type: %s", procType)
	}
	return factory, nil
}

// ListProcedureTypes returns all registered procedure types, sorted
func ListProcedureTypes() []string {
	mu.RLock()
	defer mu.RUnlock()

	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
