package tools

import (
	"errors"
	"testing"
	"time"

	"github.com/JonMunkholm/connectorgw/internal/core"
)

var refNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func apply(t *testing.T, name string, in core.Table, raw map[string]any) (core.Table, error) {
	t.Helper()
	tool, err := core.Resolve(name)
	if err != nil {
		t.Fatalf("Resolve(%q) failed: %v", name, err)
	}
	params, err := tool.Bind(raw)
	if err != nil {
		return core.Table{}, err
	}
	return tool.Apply(core.Call{Now: refNow}, in, params)
}

func TestRegisteredTools(t *testing.T) {
	want := []string{
		"concatenate_fields",
		"filter_and_attach_age",
		"filter_by_quarter",
		"filter_by_year",
		"map_field",
		"persons_above_age",
	}
	for _, name := range want {
		if _, err := core.Resolve(name); err != nil {
			t.Errorf("tool %q not registered: %v", name, err)
		}
	}
}

func TestMapField(t *testing.T) {
	in := core.NewTable([]core.Row{{"person_id": "a"}, {"person_id": "b"}})

	out, err := apply(t, "map_field", in, map[string]any{"source": "person_id", "target": "person_ID"})
	if err != nil {
		t.Fatalf("map_field failed: %v", err)
	}
	if out.Len() != 2 {
		t.Fatalf("Len = %d, want 2", out.Len())
	}
	for i := 0; i < out.Len(); i++ {
		src, _ := out.Value(i, "person_id")
		dst, _ := out.Value(i, "person_ID")
		if src != dst {
			t.Errorf("row %d: person_ID = %v, want %v", i, dst, src)
		}
	}
	if in.HasColumn("person_ID") {
		t.Error("input table was modified")
	}
}

func TestMapField_MissingColumn(t *testing.T) {
	in := core.NewTable([]core.Row{{"id": 1}})
	_, err := apply(t, "map_field", in, map[string]any{"source": "person_id", "target": "x"})
	if !errors.Is(err, core.ErrMissingColumn) {
		t.Errorf("expected missing column error, got %v", err)
	}
}

func TestMapField_UnknownParameter(t *testing.T) {
	in := core.NewTable([]core.Row{{"id": 1}})
	_, err := apply(t, "map_field", in, map[string]any{"source": "id", "target": "x", "extra": "y"})
	if !errors.Is(err, core.ErrInvalidParameter) {
		t.Errorf("expected invalid parameter error, got %v", err)
	}
}

func TestConcatenateFields(t *testing.T) {
	in := core.NewTable([]core.Row{
		{"first": "Ada", "last": "Lovelace"},
		{"first": "n", "last": 42},
		{"first": nil, "last": true},
	})

	out, err := apply(t, "concatenate_fields", in, map[string]any{"col1": "first", "col2": "last", "output": "full"})
	if err != nil {
		t.Fatalf("concatenate_fields failed: %v", err)
	}
	want := []string{"AdaLovelace", "n42", "true"}
	for i, w := range want {
		got, _ := out.Value(i, "full")
		if got != w {
			t.Errorf("row %d: full = %v, want %q", i, got, w)
		}
	}
}

func TestFilterByYear(t *testing.T) {
	in := core.NewTable([]core.Row{
		{"year": 2023},
		{"year": float64(2024)},
		{"year": "2024"},
		{"year": "not a year"},
		{"year": nil},
	})

	out, err := apply(t, "filter_by_year", in, map[string]any{"year_col": "year", "input_year": 2024})
	if err != nil {
		t.Fatalf("filter_by_year failed: %v", err)
	}
	if out.Len() != 2 {
		t.Fatalf("Len = %d, want 2", out.Len())
	}
	if out.Key(0) != 1 || out.Key(1) != 2 {
		t.Errorf("kept keys = %d,%d, want 1,2", out.Key(0), out.Key(1))
	}
}

func TestFilterByQuarter(t *testing.T) {
	rows := make([]core.Row, 12)
	for m := 1; m <= 12; m++ {
		rows[m-1] = core.Row{"month": m}
	}
	in := core.NewTable(rows)

	tests := []struct {
		quarter int
		months  []int64
	}{
		{1, []int64{1, 2, 3}},
		{2, []int64{4, 5, 6}},
		{3, []int64{7, 8, 9}},
		{4, []int64{10, 11, 12}},
	}
	for _, tt := range tests {
		out, err := apply(t, "filter_by_quarter", in, map[string]any{"month_col": "month", "quarter": tt.quarter})
		if err != nil {
			t.Fatalf("quarter %d: %v", tt.quarter, err)
		}
		if out.Len() != len(tt.months) {
			t.Fatalf("quarter %d: Len = %d, want %d", tt.quarter, out.Len(), len(tt.months))
		}
		for i, want := range tt.months {
			v, _ := out.Value(i, "month")
			if got, _ := core.AsInt(v); got != want {
				t.Errorf("quarter %d row %d: month = %v, want %d", tt.quarter, i, v, want)
			}
		}
	}
}

func TestFilterByQuarter_OutOfRange(t *testing.T) {
	in := core.NewTable([]core.Row{{"month": 1}})
	for _, q := range []int{0, 5, -1} {
		_, err := apply(t, "filter_by_quarter", in, map[string]any{"month_col": "month", "quarter": q})
		if !errors.Is(err, core.ErrInvalidParameter) {
			t.Errorf("quarter %d: expected invalid parameter error, got %v", q, err)
		}
	}
}

func TestPersonsAboveAge(t *testing.T) {
	in := core.NewTable([]core.Row{
		{"person_id": "old", "year_of_birth": 1950, "month_of_birth": 3, "day_of_birth": 15},
		{"person_id": "young", "year_of_birth": 2010, "month_of_birth": 7, "day_of_birth": 1},
	})

	out, err := apply(t, "persons_above_age", in, map[string]any{"age": 60, "target": "person_age"})
	if err != nil {
		t.Fatalf("persons_above_age failed: %v", err)
	}
	if out.Len() != 1 {
		t.Fatalf("Len = %d, want 1", out.Len())
	}
	if id, _ := out.Value(0, "person_id"); id != "old" {
		t.Errorf("person_id = %v, want old", id)
	}
	if age, _ := out.Value(0, "person_age"); age != int64(74) {
		t.Errorf("person_age = %v, want 74", age)
	}
}

func TestPersonsAboveAge_AliasAndCustomColumns(t *testing.T) {
	in := core.NewTable([]core.Row{
		{"y": "1960", "m": "1", "d": "1"},
	})
	out, err := apply(t, "filter_and_attach_age", in, map[string]any{
		"age": 18, "target": "age", "year_col": "y", "month_col": "m", "day_col": "d",
	})
	if err != nil {
		t.Fatalf("filter_and_attach_age failed: %v", err)
	}
	if out.Len() != 1 {
		t.Fatalf("Len = %d, want 1", out.Len())
	}
}

func TestPersonsAboveAge_InvalidDate(t *testing.T) {
	in := core.NewTable([]core.Row{
		{"year_of_birth": 1950, "month_of_birth": 2, "day_of_birth": 30},
	})
	_, err := apply(t, "persons_above_age", in, map[string]any{"age": 60, "target": "a"})
	if !errors.Is(err, core.ErrInvalidValue) {
		t.Errorf("expected invalid value error, got %v", err)
	}
}

func TestPersonsAboveAge_MissingColumn(t *testing.T) {
	in := core.NewTable([]core.Row{{"year_of_birth": 1950}})
	_, err := apply(t, "persons_above_age", in, map[string]any{"age": 60, "target": "a"})
	if !errors.Is(err, core.ErrMissingColumn) {
		t.Errorf("expected missing column error, got %v", err)
	}
}

func TestPersonsAboveAge_Deterministic(t *testing.T) {
	in := core.NewTable([]core.Row{
		{"year_of_birth": 1964, "month_of_birth": 6, "day_of_birth": 1},
		{"year_of_birth": 1980, "month_of_birth": 1, "day_of_birth": 1},
	})
	raw := map[string]any{"age": 40, "target": "age"}

	first, err := apply(t, "persons_above_age", in, raw)
	if err != nil {
		t.Fatal(err)
	}
	second, err := apply(t, "persons_above_age", in, raw)
	if err != nil {
		t.Fatal(err)
	}
	if first.Len() != second.Len() {
		t.Fatalf("Len differs: %d vs %d", first.Len(), second.Len())
	}
	for i := 0; i < first.Len(); i++ {
		a, _ := first.Value(i, "age")
		b, _ := second.Value(i, "age")
		if a != b {
			t.Errorf("row %d: age %v vs %v", i, a, b)
		}
	}
}

func TestAgeAt(t *testing.T) {
	tests := []struct {
		name string
		dob  time.Time
		want int64
	}{
		{"born 1950", time.Date(1950, 3, 15, 0, 0, 0, 0, time.UTC), 74},
		{"same day", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 0},
		{"future", time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), -1},
		{"born 1700", time.Date(1700, 6, 1, 0, 0, 0, 0, time.UTC), 324},
		{"born 1200", time.Date(1200, 1, 1, 0, 0, 0, 0, time.UTC), 824},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AgeAt(tt.dob, refNow); got != tt.want {
				t.Errorf("AgeAt = %d, want %d", got, tt.want)
			}
		})
	}
}
