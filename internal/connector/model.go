// Package connector defines the declarative connector document: the remote
// calls to make, how to extract datasets from their responses, and how each
// export field is built from an ordered chain of registered transforms.
package connector

import (
	"time"
)

// ArgLocation says where a bound argument goes in the outgoing request.
type ArgLocation string

const (
	ArgParameter ArgLocation = "parameter" // {name} segment in the endpoint
	ArgQuery     ArgLocation = "query"
	ArgHeader    ArgLocation = "header"
	ArgBody      ArgLocation = "body"
)

// Execution selects how field chains of an export see the source table.
type Execution string

const (
	// ExecShared threads one table through every chain in declaration order,
	// so a later field may read a column an earlier field produced. It is
	// the default.
	ExecShared Execution = "shared"
	// ExecIsolated gives every field chain its own snapshot of the source
	// table and merges the results by row key.
	ExecIsolated Execution = "isolated"
)

// Call types.
const (
	CallURL = "url"
	CallSQL = "sql"
)

// Spec is a complete connector document.
type Spec struct {
	APIVersion string   `yaml:"apiVersion" json:"apiVersion"`
	Kind       string   `yaml:"kind" json:"kind"`
	Metadata   Metadata `yaml:"metadata" json:"metadata"`
	Spec       Body     `yaml:"spec" json:"spec"`
	Servers    []Server `yaml:"servers" json:"servers"`

	// APIKey and Auth are carried but never applied to upstream calls.
	APIKey string `yaml:"apiKey,omitempty" json:"-"`
	Auth   any    `yaml:"auth,omitempty" json:"auth,omitempty"`
}

// Metadata describes a connector.
type Metadata struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	InputPrompt string `yaml:"inputPrompt" json:"inputPrompt,omitempty"`
	Route       string `yaml:"route,omitempty" json:"route,omitempty"`
}

// Body holds the calls and output definition.
type Body struct {
	Timeout  int              `yaml:"timeout" json:"timeout"` // seconds, 0 = server default
	APICalls Ordered[APICall] `yaml:"apiCalls" json:"apiCalls"`
	Output   Output           `yaml:"output" json:"output"`
}

// APICall is one remote call.
type APICall struct {
	Type      string     `yaml:"type" json:"type"`
	Endpoint  string     `yaml:"endpoint" json:"endpoint"`
	Method    string     `yaml:"method" json:"method"`
	Arguments []Argument `yaml:"arguments" json:"arguments"`
}

// Argument is a named call argument with a default value.
type Argument struct {
	Name     string      `yaml:"name" json:"name"`
	Location ArgLocation `yaml:"argLocation" json:"argLocation"`
	Value    any         `yaml:"value" json:"value"`
}

// Output declares datasets and exports.
type Output struct {
	Execution   Execution        `yaml:"execution" json:"execution,omitempty"`
	RuntimeType string           `yaml:"runtimeType" json:"runtimeType,omitempty"`
	Data        Ordered[Dataset] `yaml:"data" json:"data"`
	Exports     Ordered[Export]  `yaml:"exports" json:"exports"`
}

// Dataset extracts a table from one call's response.
type Dataset struct {
	API      string `yaml:"api" json:"api"`
	Metadata any    `yaml:"metadata" json:"metadata,omitempty"`
	Path     string `yaml:"path" json:"path"`
}

// Export is a named output table. Dataframe names its source dataset; "."
// selects the dataset with the export's own name, or the only dataset.
type Export struct {
	Dataframe string         `yaml:"dataframe" json:"dataframe"`
	Fields    Ordered[Chain] `yaml:"fields" json:"fields"`
}

// Chain is the ordered list of steps producing one export field.
type Chain []Step

// Step invokes one registered transform.
type Step struct {
	Function    string         `yaml:"function" json:"function"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Params      map[string]any `yaml:"params" json:"params"`
}

// Name returns the connector name.
func (s *Spec) Name() string {
	return s.Metadata.Name
}

// Route returns the HTTP path the connector is served on.
func (s *Spec) Route() string {
	if s.Metadata.Route != "" {
		return s.Metadata.Route
	}
	return "/" + s.Metadata.Name
}

// ExecutionMode returns the chain execution mode, defaulting to shared.
func (s *Spec) ExecutionMode() Execution {
	if s.Spec.Output.Execution == "" {
		return ExecShared
	}
	return s.Spec.Output.Execution
}

// Timeout returns the run timeout, or fallback when none is declared.
func (s *Spec) Timeout(fallback time.Duration) time.Duration {
	if s.Spec.Timeout <= 0 {
		return fallback
	}
	return time.Duration(s.Spec.Timeout) * time.Second
}

// BaseURL returns the first server URL, or "" when none is declared.
func (s *Spec) BaseURL() string {
	if len(s.Servers) == 0 {
		return ""
	}
	return s.Servers[0].URL
}

// Server is an upstream base URL.
type Server struct {
	URL string `yaml:"url" json:"url"`
}

// ResolveDataset returns the dataset name an export reads from.
func (s *Spec) ResolveDataset(exportName string, e Export) (string, bool) {
	data := s.Spec.Output.Data
	if e.Dataframe != "" && e.Dataframe != "." {
		_, ok := data.Get(e.Dataframe)
		return e.Dataframe, ok
	}
	if _, ok := data.Get(exportName); ok {
		return exportName, true
	}
	if data.Len() == 1 {
		return data.Keys()[0], true
	}
	return "", false
}
