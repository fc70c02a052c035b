package connector

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/connectorgw/internal/core"
)

// pathElem is one step of a path selector: a key or an array index.
type pathElem struct {
	key   string
	index int
	isIdx bool
}

// Path selects a sub-structure of a decoded JSON document.
//
// Grammar: "." (or "") is the root; otherwise dotted keys with optional
// [n] indexes, e.g. "data.items", "results[0].persons", ".data".
type Path struct {
	raw   string
	elems []pathElem
}

// ParsePath compiles a path selector.
func ParsePath(raw string) (Path, error) {
	p := Path{raw: raw}
	s := strings.TrimPrefix(strings.TrimSpace(raw), ".")
	if s == "" {
		return p, nil
	}
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return Path{}, fmt.Errorf("path %q: empty segment", raw)
		}
		key := part
		var idxs []int
		if i := strings.IndexByte(part, '['); i >= 0 {
			key = part[:i]
			rest := part[i:]
			for rest != "" {
				if rest[0] != '[' {
					return Path{}, fmt.Errorf("path %q: malformed index in %q", raw, part)
				}
				end := strings.IndexByte(rest, ']')
				if end < 0 {
					return Path{}, fmt.Errorf("path %q: unclosed [ in %q", raw, part)
				}
				n, err := strconv.Atoi(rest[1:end])
				if err != nil || n < 0 {
					return Path{}, fmt.Errorf("path %q: bad index %q", raw, rest[1:end])
				}
				idxs = append(idxs, n)
				rest = rest[end+1:]
			}
		}
		if key != "" {
			p.elems = append(p.elems, pathElem{key: key})
		}
		for _, n := range idxs {
			p.elems = append(p.elems, pathElem{index: n, isIdx: true})
		}
	}
	return p, nil
}

func (p Path) String() string {
	return p.raw
}

// Select walks doc along the path.
func (p Path) Select(doc any) (any, error) {
	cur := doc
	for _, e := range p.elems {
		if e.isIdx {
			arr, ok := cur.([]any)
			if !ok {
				return nil, fmt.Errorf("path %q: [%d] applied to non-array", p.raw, e.index)
			}
			if e.index >= len(arr) {
				return nil, fmt.Errorf("path %q: index %d out of range (len %d)", p.raw, e.index, len(arr))
			}
			cur = arr[e.index]
			continue
		}
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q: key %q applied to non-object", p.raw, e.key)
		}
		v, ok := obj[e.key]
		if !ok {
			return nil, fmt.Errorf("path %q: key %q not found", p.raw, e.key)
		}
		cur = v
	}
	return cur, nil
}

// Rows turns a selected value into table rows: an array of objects yields
// one row per element, a single object yields one row, null yields none.
func Rows(v any) ([]core.Row, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return []core.Row{core.Row(t)}, nil
	case []any:
		rows := make([]core.Row, len(t))
		for i, el := range t {
			obj, ok := el.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("element %d is %T, want object", i, el)
			}
			rows[i] = core.Row(obj)
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("selected value is %T, want object or array of objects", v)
	}
}
