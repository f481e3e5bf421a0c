package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/avoskov/lectern/internal/engine"
)

// ErrUnknownTool is returned when Execute is called with a name no
// registered tool carries. This is a contract violation, not a model hint,
// so it surfaces as an error rather than result text.
var ErrUnknownTool = errors.New("unknown tool")

// Registry holds the tools available to the model. Definitions are reported
// in registration order so the tool list presented to the model is stable.
type Registry struct {
	order  []Tool
	byName map[string]Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Tool)}
}

// Register adds a tool. Registering a name twice replaces the earlier tool
// in place, keeping its position in the definition order.
func (r *Registry) Register(t Tool) {
	name := t.Definition().Name
	if _, ok := r.byName[name]; ok {
		for i, existing := range r.order {
			if existing.Definition().Name == name {
				r.order[i] = t
				break
			}
		}
	} else {
		r.order = append(r.order, t)
	}
	r.byName[name] = t
}

// Definitions returns the declared tools in registration order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, len(r.order))
	for i, t := range r.order {
		defs[i] = t.Definition()
	}
	return defs
}

// Execute validates args against the tool's declared schema and runs it.
// Validation failures come back as result text ("invalid arguments: …") so
// the model can correct itself on the next round; only an unknown tool name
// is an error. Execution is synchronous.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (Result, error) {
	t, ok := r.byName[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	if msg := validateArgs(t.Definition().Parameters.Required, t.Definition().Parameters.Properties, args); msg != "" {
		return Result{Text: "invalid arguments: " + msg}, nil
	}

	return t.Execute(ctx, args)
}

// validateArgs checks required fields and declared types. Returns "" when
// the arguments are acceptable.
func validateArgs(required []string, properties map[string]engine.SchemaProperty, args map[string]any) string {
	var problems []string

	for _, req := range required {
		if v, ok := args[req]; !ok || v == nil {
			problems = append(problems, fmt.Sprintf("missing required parameter %q", req))
		}
	}

	for key, val := range args {
		prop, declared := properties[key]
		if !declared || val == nil {
			continue
		}
		switch prop.Type {
		case "string":
			if _, ok := val.(string); !ok {
				problems = append(problems, fmt.Sprintf("parameter %q must be a string", key))
			}
		case "integer":
			if !isInteger(val) {
				problems = append(problems, fmt.Sprintf("parameter %q must be an integer", key))
			}
		}
	}

	return strings.Join(problems, "; ")
}

// isInteger accepts the numeric shapes JSON decoding produces.
func isInteger(v any) bool {
	switch n := v.(type) {
	case int:
		return true
	case int64:
		return true
	case float64:
		return n == math.Trunc(n)
	default:
		return false
	}
}
