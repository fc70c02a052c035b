package connector

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/JonMunkholm/connectorgw/internal/core"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Builtin returns the connectors shipped with the binary.
func Builtin() ([]*Spec, error) {
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return nil, err
	}
	specs := make([]*Spec, 0, len(entries))
	for _, e := range entries {
		data, err := builtinFS.ReadFile("builtin/" + e.Name())
		if err != nil {
			return nil, err
		}
		s, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("builtin %s: %w", e.Name(), err)
		}
		specs = append(specs, s)
	}
	return specs, nil
}

// ErrConnectorNotFound is returned by Catalog.Get for unknown names.
var ErrConnectorNotFound = errors.New("connector not found")

// Catalog holds validated connectors by name and route. It is built once at
// startup and read concurrently afterwards.
type Catalog struct {
	byName  map[string]*Spec
	byRoute map[string]*Spec
	names   []string
}

// NewCatalog validates every spec against reg and indexes it. Names and
// routes must be unique.
func NewCatalog(reg *core.Registry, specs ...*Spec) (*Catalog, error) {
	c := &Catalog{
		byName:  make(map[string]*Spec, len(specs)),
		byRoute: make(map[string]*Spec, len(specs)),
	}
	for _, s := range specs {
		if err := Validate(s, reg); err != nil {
			return nil, fmt.Errorf("connector %q: %w", s.Name(), err)
		}
		if _, dup := c.byName[s.Name()]; dup {
			return nil, fmt.Errorf("connector %q declared twice", s.Name())
		}
		route := s.Route()
		if other, dup := c.byRoute[route]; dup {
			return nil, fmt.Errorf("connector %q: route %s already used by %q", s.Name(), route, other.Name())
		}
		c.byName[s.Name()] = s
		c.byRoute[route] = s
		c.names = append(c.names, s.Name())
		slog.Debug("connector registered", "connector", s.Name(), "route", route)
	}
	sort.Strings(c.names)
	return c, nil
}

// LoadCatalog builds the catalog from the built-in connectors (when
// withBuiltin is set) followed by every document in dir (when dir is set).
func LoadCatalog(reg *core.Registry, dir string, withBuiltin bool) (*Catalog, error) {
	var specs []*Spec
	if withBuiltin {
		b, err := Builtin()
		if err != nil {
			return nil, fmt.Errorf("load builtin connectors: %w", err)
		}
		specs = append(specs, b...)
	}
	if dir != "" {
		d, err := LoadDir(dir)
		if err != nil {
			return nil, err
		}
		specs = append(specs, d...)
	}
	return NewCatalog(reg, specs...)
}

// Get returns the connector registered under name.
func (c *Catalog) Get(name string) (*Spec, error) {
	s, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrConnectorNotFound, name)
	}
	return s, nil
}

// Names returns connector names, sorted.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// All returns the connectors sorted by name.
func (c *Catalog) All() []*Spec {
	out := make([]*Spec, len(c.names))
	for i, n := range c.names {
		out[i] = c.byName[n]
	}
	return out
}

// Len returns the number of connectors.
func (c *Catalog) Len() int {
	return len(c.names)
}

// Routes returns the served routes, sorted.
func (c *Catalog) Routes() []string {
	routes := make([]string, 0, len(c.byRoute))
	for r := range c.byRoute {
		routes = append(routes, r)
	}
	sort.Strings(routes)
	return routes
}

// PathParams lists the {name} placeholders of a route, in order.
func PathParams(route string) []string {
	var names []string
	for _, seg := range strings.Split(route, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			names = append(names, strings.TrimSuffix(strings.TrimPrefix(seg, "{"), "}"))
		}
	}
	return names
}
