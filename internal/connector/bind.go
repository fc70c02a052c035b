package connector

import (
	"sort"
)

// Bind returns a copy of the connector's calls with inbound parameters bound
// by name: an argument whose name matches a parameter takes its value, every
// other argument keeps its declared value. The receiver is not modified.
//
// Parameters that match no argument are returned in unused, sorted.
func (s *Spec) Bind(params map[string]string) (calls Ordered[APICall], unused []string) {
	matched := make(map[string]bool, len(params))
	calls = Ordered[APICall]{}
	for _, name := range s.Spec.APICalls.Keys() {
		call, _ := s.Spec.APICalls.Get(name)
		args := make([]Argument, len(call.Arguments))
		for i, arg := range call.Arguments {
			if v, ok := params[arg.Name]; ok {
				arg.Value = v
				matched[arg.Name] = true
			}
			args[i] = arg
		}
		call.Arguments = args
		calls.Set(name, call)
	}

	for name := range params {
		if !matched[name] {
			unused = append(unused, name)
		}
	}
	sort.Strings(unused)
	return calls, unused
}
