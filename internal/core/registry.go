package core

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// ParamKind is the declared type of a transform parameter.
type ParamKind int

const (
	ParamString ParamKind = iota
	ParamInt
)

func (k ParamKind) String() string {
	switch k {
	case ParamInt:
		return "integer"
	default:
		return "string"
	}
}

// ParamSpec declares one named parameter of a transform.
type ParamSpec struct {
	Name        string
	Kind        ParamKind
	Required    bool
	Default     any // used when not Required and absent
	Description string

	// Check, when set, rejects a coerced value outside the parameter's
	// domain at bind time.
	Check func(v any) error
}

// Params holds bound, type-checked parameter values.
type Params map[string]any

// String returns a bound string parameter.
func (p Params) String(name string) string {
	s, _ := p[name].(string)
	return s
}

// Int returns a bound integer parameter.
func (p Params) Int(name string) int64 {
	i, _ := p[name].(int64)
	return i
}

// Call carries per-invocation context into a transform. Now is the run's
// reference time; only time-dependent transforms may read it.
type Call struct {
	Now time.Time
}

// ApplyFunc implements a transform. It must not modify in.
type ApplyFunc func(call Call, in Table, p Params) (Table, error)

// Tool is a named, parameterized table transform.
type Tool struct {
	Name          string
	Description   string
	Params        []ParamSpec
	TimeDependent bool // reads Call.Now
	Apply         ApplyFunc
}

// ParamNames returns the declared parameter names in declaration order.
func (t Tool) ParamNames() []string {
	names := make([]string, len(t.Params))
	for i, p := range t.Params {
		names[i] = p.Name
	}
	return names
}

// Bind validates raw step parameters against the tool's declaration.
// Unknown names, missing required names and values of the wrong kind are
// rejected with an InvalidParameter error.
func (t Tool) Bind(raw map[string]any) (Params, error) {
	op := t.Name
	declared := make(map[string]ParamSpec, len(t.Params))
	for _, spec := range t.Params {
		declared[spec.Name] = spec
	}

	var unknown []string
	for name := range raw {
		if _, ok := declared[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, InvalidParameter(op, "unknown parameter(s) %s (declared: %s)",
			strings.Join(unknown, ", "), strings.Join(t.ParamNames(), ", "))
	}

	bound := make(Params, len(t.Params))
	for _, spec := range t.Params {
		v, ok := raw[spec.Name]
		if !ok || v == nil {
			if spec.Required {
				return nil, InvalidParameter(op, "missing required parameter %q", spec.Name)
			}
			if spec.Default == nil {
				continue
			}
			v = spec.Default
		}
		cv, err := coerceParam(spec, v)
		if err != nil {
			return nil, InvalidParameter(op, "%v", err)
		}
		if spec.Check != nil {
			if err := spec.Check(cv); err != nil {
				return nil, InvalidParameter(op, "parameter %q: %v", spec.Name, err)
			}
		}
		bound[spec.Name] = cv
	}
	return bound, nil
}

func coerceParam(spec ParamSpec, v any) (any, error) {
	switch spec.Kind {
	case ParamInt:
		i, ok := AsInt(v)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be an integer, got %v", spec.Name, v)
		}
		return i, nil
	default:
		s, ok := v.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("parameter %q must be a non-empty string, got %v", spec.Name, v)
		}
		return s, nil
	}
}

// Registry maps transform names to tools. It is populated at startup and
// read concurrently afterwards.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Default is the process-wide registry populated by init() in core/tools.
var Default = NewRegistry()

// Register installs a tool under its name. A later registration for the same
// name replaces the earlier one and is logged as a conflict.
// Panics if the tool has no name or no implementation.
func (r *Registry) Register(t Tool) {
	if t.Name == "" || t.Apply == nil {
		panic(fmt.Sprintf("invalid tool registration: %q", t.Name))
	}
	t.Params = append([]ParamSpec(nil), t.Params...)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name]; exists {
		slog.Warn("tool registration conflict, replacing existing tool", "tool", t.Name)
	}
	r.tools[t.Name] = t
}

// Resolve returns the tool registered under name.
func (r *Registry) Resolve(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return Tool{}, UnknownTool(name)
	}
	return t, nil
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns all registered tools sorted by name.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Clear removes all registered tools.
// Primarily useful for testing.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = make(map[string]Tool)
}

// Register adds a tool to the Default registry.
func Register(t Tool) {
	Default.Register(t)
}

// Resolve looks a tool up in the Default registry.
func Resolve(name string) (Tool, error) {
	return Default.Resolve(name)
}
