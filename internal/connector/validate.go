package connector

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/connectorgw/internal/core"
)

var validLocations = map[ArgLocation]bool{
	ArgParameter: true,
	ArgQuery:     true,
	ArgHeader:    true,
	ArgBody:      true,
}

// Validate checks a connector document against the registry before any call
// is made: structure, cross references, transform names and static params.
//
// The first problem found is returned. Structural problems are
// SpecValidation errors; unresolvable transforms and bad params keep their
// own kinds so callers can tell them apart.
func Validate(s *Spec, reg *core.Registry) error {
	if s == nil {
		return core.SpecInvalid("spec", "connector is nil")
	}
	if strings.TrimSpace(s.Metadata.Name) == "" {
		return core.SpecInvalid("metadata.name", "is required")
	}
	if r := s.Metadata.Route; r != "" && !strings.HasPrefix(r, "/") {
		return core.SpecInvalid("metadata.route", "must start with /, got %q", r)
	}
	if s.Spec.Timeout < 0 {
		return core.SpecInvalid("spec.timeout", "must not be negative, got %d", s.Spec.Timeout)
	}

	if err := validateCalls(s); err != nil {
		return err
	}

	out := s.Spec.Output
	switch out.Execution {
	case "", ExecIsolated, ExecShared:
	default:
		return core.SpecInvalid("spec.output.execution", "unknown mode %q (want %q or %q)", out.Execution, ExecIsolated, ExecShared)
	}

	if out.Data.Len() == 0 {
		return core.SpecInvalid("spec.output.data", "at least one dataset is required")
	}
	for _, name := range out.Data.Keys() {
		ds, _ := out.Data.Get(name)
		op := "spec.output.data." + name
		if ds.API == "" {
			return core.SpecInvalid(op, "api is required")
		}
		if _, ok := s.Spec.APICalls.Get(ds.API); !ok {
			return core.SpecInvalid(op, "references undeclared api call %q", ds.API)
		}
		if _, err := ParsePath(ds.Path); err != nil {
			return core.SpecInvalid(op, "%v", err)
		}
	}

	if out.Exports.Len() == 0 {
		return core.SpecInvalid("spec.output.exports", "at least one export is required")
	}
	for _, name := range out.Exports.Keys() {
		ex, _ := out.Exports.Get(name)
		op := "spec.output.exports." + name
		if _, ok := s.ResolveDataset(name, ex); !ok {
			return core.SpecInvalid(op, "dataframe %q does not name a declared dataset", ex.Dataframe)
		}
		if ex.Fields.Len() == 0 {
			return core.SpecInvalid(op, "at least one field is required")
		}
		for _, field := range ex.Fields.Keys() {
			chain, _ := ex.Fields.Get(field)
			if err := validateChain(reg, op+".fields."+field, chain); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateCalls(s *Spec) error {
	if s.Spec.APICalls.Len() == 0 {
		return core.SpecInvalid("spec.apiCalls", "at least one api call is required")
	}
	for _, name := range s.Spec.APICalls.Keys() {
		call, _ := s.Spec.APICalls.Get(name)
		op := "spec.apiCalls." + name

		switch strings.ToLower(call.Type) {
		case "", CallURL:
			if s.BaseURL() == "" {
				return core.SpecInvalid(op, "url calls need at least one server")
			}
		case CallSQL:
		default:
			return core.SpecInvalid(op, "unknown call type %q", call.Type)
		}
		if call.Endpoint == "" {
			return core.SpecInvalid(op, "endpoint is required")
		}

		seen := make(map[string]bool, len(call.Arguments))
		for i, arg := range call.Arguments {
			if arg.Name == "" {
				return core.SpecInvalid(op, "argument %d has no name", i)
			}
			if seen[arg.Name] {
				return core.SpecInvalid(op, "duplicate argument %q", arg.Name)
			}
			seen[arg.Name] = true
			if !validLocations[arg.Location] {
				return core.SpecInvalid(op, "argument %q has unknown argLocation %q", arg.Name, arg.Location)
			}
			if arg.Location == ArgParameter && !strings.Contains(call.Endpoint, "{"+arg.Name+"}") {
				return core.SpecInvalid(op, "path argument %q has no {%s} placeholder in endpoint", arg.Name, arg.Name)
			}
		}
	}
	return nil
}

func validateChain(reg *core.Registry, op string, chain Chain) error {
	if len(chain) == 0 {
		return core.SpecInvalid(op, "transform chain is empty")
	}
	for i, step := range chain {
		if step.Function == "" {
			return core.SpecInvalid(op, "step %d has no function", i)
		}
		tool, err := reg.Resolve(step.Function)
		if err != nil {
			return withOp(err, fmt.Sprintf("%s[%d]", op, i))
		}
		if _, err := tool.Bind(step.Params); err != nil {
			return withOp(err, fmt.Sprintf("%s[%d]", op, i))
		}
	}
	return nil
}

// withOp prefixes the location of a classified error.
func withOp(err error, op string) error {
	var e *core.Error
	if errors.As(err, &e) {
		cp := *e
		if cp.Op == "" {
			cp.Op = op
		} else {
			cp.Op = op + " " + cp.Op
		}
		return &cp
	}
	return err
}
