package tools

import "github.com/JonMunkholm/connectorgw/internal/core"

func init() {
	core.Register(MapField)
	core.Register(ConcatenateFields)
}

// MapField copies a source column into a target column on every row.
var MapField = core.Tool{
	Name:        "map_field",
	Description: "map fields or change names from source to target.",
	Params: []core.ParamSpec{
		{Name: "source", Kind: core.ParamString, Required: true, Description: "column to copy from"},
		{Name: "target", Kind: core.ParamString, Required: true, Description: "column to copy to"},
	},
	Apply: mapField,
}

func mapField(_ core.Call, in core.Table, p core.Params) (core.Table, error) {
	source, target := p.String("source"), p.String("target")
	if err := in.RequireColumns("map_field", source); err != nil {
		return core.Table{}, err
	}
	return in.WithColumn(target, func(_ int, r core.Row) (any, error) {
		return r[source], nil
	})
}

// ConcatenateFields writes the string concatenation of two columns.
var ConcatenateFields = core.Tool{
	Name:        "concatenate_fields",
	Description: "concatenate two fields into a new output column.",
	Params: []core.ParamSpec{
		{Name: "col1", Kind: core.ParamString, Required: true, Description: "first column"},
		{Name: "col2", Kind: core.ParamString, Required: true, Description: "second column"},
		{Name: "output", Kind: core.ParamString, Required: true, Description: "column to write"},
	},
	Apply: concatenateFields,
}

func concatenateFields(_ core.Call, in core.Table, p core.Params) (core.Table, error) {
	col1, col2 := p.String("col1"), p.String("col2")
	if err := in.RequireColumns("concatenate_fields", col1, col2); err != nil {
		return core.Table{}, err
	}
	return in.WithColumn(p.String("output"), func(_ int, r core.Row) (any, error) {
		return core.Stringify(r[col1]) + core.Stringify(r[col2]), nil
	})
}
