package connector

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Ordered is a string-keyed mapping that remembers document order.
// Connector documents rely on it so exports project fields in the order they
// were declared.
type Ordered[V any] struct {
	keys   []string
	values map[string]V
}

// Set adds or replaces key. New keys are appended.
func (o *Ordered[V]) Set(key string, v V) {
	if o.values == nil {
		o.values = make(map[string]V)
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Get returns the value for key.
func (o Ordered[V]) Get(key string) (V, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Keys returns the keys in document order.
func (o Ordered[V]) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Len returns the number of entries.
func (o Ordered[V]) Len() int {
	return len(o.keys)
}

// UnmarshalYAML decodes a mapping node, keeping key order. Duplicate keys
// are rejected.
func (o *Ordered[V]) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode && n.Tag == "!!null" {
		return nil
	}
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", n.Line)
	}
	*o = Ordered[V]{values: make(map[string]V, len(n.Content)/2)}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, vn := n.Content[i], n.Content[i+1]
		if _, dup := o.values[k.Value]; dup {
			return fmt.Errorf("line %d: duplicate key %q", k.Line, k.Value)
		}
		var v V
		if err := vn.Decode(&v); err != nil {
			return fmt.Errorf("%s: %w", k.Value, err)
		}
		o.Set(k.Value, v)
	}
	return nil
}

// MarshalYAML writes the mapping in key order.
func (o Ordered[V]) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range o.keys {
		var vn yaml.Node
		if err := vn.Encode(o.values[k]); err != nil {
			return nil, err
		}
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: k}, &vn)
	}
	return n, nil
}

// MarshalJSON writes the mapping as a JSON object in key order.
func (o Ordered[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
