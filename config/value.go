package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/dop251/goja"
	"gopkg.in/yaml.v3"
)

// Scope is what a value can see when it is resolved
type Scope struct {
	Station string
	Vars    map[string]any
}

// ValueSpec represents a value that can be static or dynamic
type ValueSpec interface {
	// Resolve resolves the value against the station scope
	Resolve(scope Scope) (any, error)
}

// ParseValue converts a raw configuration value to a ValueSpec.
// Strings prefixed with "$js:", "$var:" or "$env:" become dynamic.
func ParseValue(v any) ValueSpec {
	str, ok := v.(string)
	if !ok {
		return StaticValue{Value: v}
	}

	switch {
	case strings.HasPrefix(str, "$js:"):
		return DynamicValue{
			Language:   "js",
			Expression: strings.TrimSpace(strings.TrimPrefix(str, "$js:")),
		}
	case strings.HasPrefix(str, "$var:"):
		return VariableReference{Name: strings.TrimSpace(strings.TrimPrefix(str, "$var:"))}
	case strings.HasPrefix(str, "$env:"):
		return EnvReference{Name: strings.TrimSpace(strings.TrimPrefix(str, "$env:"))}
	}
	return StaticValue{Value: v}
}

// StaticValue represents a literal value (number, string, bool, etc.)
type StaticValue struct {
	Value any
}

func (s StaticValue) Resolve(scope Scope) (any, error) {
	return s.Value, nil
}

// DynamicValue represents an expression evaluated when the step is built
type DynamicValue struct {
	Language   string // only "js" for now
	Expression string
}

func (d DynamicValue) Resolve(scope Scope) (any, error) {
	switch d.Language {
	case "js", "javascript", "":
		return d.resolveJS(scope)
	default:
		return nil, fmt.Errorf("unsupported language: %s", d.Language)
	}
}

// resolveJS evaluates a JavaScript expression using Goja
func (d DynamicValue) resolveJS(scope Scope) (any, error) {
	runtime := goja.New()

	vars := scope.Vars
	if vars == nil {
		vars = map[string]any{}
	}
	if err := runtime.Set("$vars", vars); err != nil {
		return nil, fmt.Errorf("failed to set variables: %w", err)
	}
	if err := runtime.Set("ctx", map[string]any{"station": scope.Station}); err != nil {
		return nil, fmt.Errorf("failed to set context: %w", err)
	}

	wrappedCode := "(function() {\n return " + d.Expression + "\n})()"

	result, err := runtime.RunString(wrappedCode)
	if err != nil {
		return nil, fmt.Errorf("failed to execute JS expression '%s': %w", d.Expression, err)
	}

	return result.Export(), nil
}

// VariableReference represents a reference to a station variable ($var:name)
type VariableReference struct {
	Name string
}

func (v VariableReference) Resolve(scope Scope) (any, error) {
	if scope.Vars == nil {
		return nil, fmt.Errorf("variable '%s' not found: no variables defined", v.Name)
	}

	value, exists := scope.Vars[v.Name]
	if !exists {
		return nil, fmt.Errorf("variable '%s' not found in station variables", v.Name)
	}

	return value, nil
}

// EnvReference represents a reference to an environment variable ($env:NAME)
type EnvReference struct {
	Name string
}

// Resolve reads the variable as a YAML scalar, so "8", "true" and "500ms"
// decode into numeric, bool and duration fields. Anything that is not a
// scalar is returned as the raw text.
func (e EnvReference) Resolve(scope Scope) (any, error) {
	value := os.Getenv(e.Name)
	if value == "" {
		return nil, fmt.Errorf("environment variable '%s' is not set or is empty", e.Name)
	}

	var node yaml.Node
	if err := yaml.Unmarshal([]byte(value), &node); err != nil || len(node.Content) != 1 {
		return value, nil
	}
	scalar := node.Content[0]
	if scalar.Kind != yaml.ScalarNode || scalar.Tag == "!!null" {
		return value, nil
	}
	var v any
	if err := scalar.Decode(&v); err != nil {
		return value, nil
	}
	return v, nil
}

// ResolveMap resolves every ValueSpec found in raw, recursing into nested
// maps and lists, and returns plain values.
func ResolveMap(raw map[string]any, scope Scope) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		resolved, err := resolveAny(v, scope)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}

func resolveAny(v any, scope Scope) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		return ResolveMap(val, scope)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := resolveAny(item, scope)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = resolved
		}
		return out, nil
	case ValueSpec:
		return val.Resolve(scope)
	default:
		return ParseValue(v).Resolve(scope)
	}
}
