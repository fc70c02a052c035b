package connector

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/connectorgw/internal/core"
)

// Parse decodes a connector document. YAML and JSON are both accepted.
// Unknown top-level and metadata keys are rejected.
func Parse(data []byte) (*Spec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Spec
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, core.SpecInvalid("parse", "empty document")
		}
		return nil, core.SpecInvalid("parse", "%v", err)
	}
	return &s, nil
}

// LoadFile reads and parses one connector document.
func LoadFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read connector %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return s, nil
}

// specExtensions are the file types LoadDir picks up.
var specExtensions = map[string]bool{
	".yaml": true,
	".yml":  true,
	".json": true,
}

// LoadDir parses every connector document in dir, sorted by file name.
// Subdirectories are not traversed.
func LoadDir(dir string) ([]*Spec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read connectors dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !specExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	specs := make([]*Spec, 0, len(names))
	for _, name := range names {
		s, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		specs = append(specs, s)
	}
	return specs, nil
}
