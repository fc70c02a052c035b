package tools

import (
	"fmt"

	"github.com/JonMunkholm/connectorgw/internal/core"
)

func init() {
	core.Register(FilterByYear)
	core.Register(FilterByQuarter)
}

// FilterByYear keeps rows whose year column equals input_year.
var FilterByYear = core.Tool{
	Name:        "filter_by_year",
	Description: "Filters rows where the year matches the given input_year.",
	Params: []core.ParamSpec{
		{Name: "year_col", Kind: core.ParamString, Required: true, Description: "column holding the year"},
		{Name: "input_year", Kind: core.ParamInt, Required: true, Description: "year to keep"},
	},
	Apply: filterByYear,
}

func filterByYear(_ core.Call, in core.Table, p core.Params) (core.Table, error) {
	col, year := p.String("year_col"), p.Int("input_year")
	if err := in.RequireColumns("filter_by_year", col); err != nil {
		return core.Table{}, err
	}
	return in.Filter(func(_ int, r core.Row) (bool, error) {
		v, ok := core.AsInt(r[col])
		return ok && v == year, nil
	})
}

// quarterMonths lists the canonical months of each quarter.
var quarterMonths = map[int64][3]int64{
	1: {1, 2, 3},
	2: {4, 5, 6},
	3: {7, 8, 9},
	4: {10, 11, 12},
}

// FilterByQuarter keeps rows whose month falls within the given quarter.
var FilterByQuarter = core.Tool{
	Name:        "filter_by_quarter",
	Description: "Filters rows where the month falls within the specified quarter (1-4).",
	Params: []core.ParamSpec{
		{Name: "month_col", Kind: core.ParamString, Required: true, Description: "column holding the month (1-12)"},
		{Name: "quarter", Kind: core.ParamInt, Required: true, Description: "quarter to keep, 1 to 4", Check: checkQuarter},
	},
	Apply: filterByQuarter,
}

func checkQuarter(v any) error {
	if _, ok := quarterMonths[v.(int64)]; !ok {
		return fmt.Errorf("quarter must be between 1 and 4, got %v", v)
	}
	return nil
}

func filterByQuarter(_ core.Call, in core.Table, p core.Params) (core.Table, error) {
	col, quarter := p.String("month_col"), p.Int("quarter")
	months, ok := quarterMonths[quarter]
	if !ok {
		return core.Table{}, core.InvalidParameter("filter_by_quarter", "quarter must be between 1 and 4, got %d", quarter)
	}
	if err := in.RequireColumns("filter_by_quarter", col); err != nil {
		return core.Table{}, err
	}
	return in.Filter(func(_ int, r core.Row) (bool, error) {
		m, ok := core.AsInt(r[col])
		if !ok {
			return false, nil
		}
		return m == months[0] || m == months[1] || m == months[2], nil
	})
}
