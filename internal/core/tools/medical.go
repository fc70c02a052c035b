package tools

import (
	"fmt"
	"time"

	"github.com/JonMunkholm/connectorgw/internal/core"
)

func init() {
	core.Register(PersonsAboveAge)

	alias := PersonsAboveAge
	alias.Name = "filter_and_attach_age"
	core.Register(alias)
}

// PersonsAboveAge attaches each person's age to every row and then keeps the
// rows whose age is at least the given threshold.
//
// Age is measured against Call.Now as whole 365-day periods since the date
// of birth, so the result depends on the run's reference time.
var PersonsAboveAge = core.Tool{
	Name: "persons_above_age",
	Description: "Filters rows where the age (calculated from year_of_birth, month_of_birth, " +
		"day_of_birth) is at least the given age, attaching the age as the target column.",
	Params: []core.ParamSpec{
		{Name: "age", Kind: core.ParamInt, Required: true, Description: "minimum age to keep"},
		{Name: "target", Kind: core.ParamString, Required: true, Description: "column receiving the computed age"},
		{Name: "year_col", Kind: core.ParamString, Default: "year_of_birth"},
		{Name: "month_col", Kind: core.ParamString, Default: "month_of_birth"},
		{Name: "day_col", Kind: core.ParamString, Default: "day_of_birth"},
	},
	TimeDependent: true,
	Apply:         personsAboveAge,
}

func personsAboveAge(call core.Call, in core.Table, p core.Params) (core.Table, error) {
	const op = "persons_above_age"
	yearCol, monthCol, dayCol := p.String("year_col"), p.String("month_col"), p.String("day_col")
	target, minAge := p.String("target"), p.Int("age")

	if err := in.RequireColumns(op, yearCol, monthCol, dayCol); err != nil {
		return core.Table{}, err
	}

	withAge, err := in.WithColumn(target, func(i int, r core.Row) (any, error) {
		dob, err := birthDate(r[yearCol], r[monthCol], r[dayCol])
		if err != nil {
			return nil, core.InvalidValue(op, "row %d: %v", in.Key(i), err)
		}
		return AgeAt(dob, call.Now), nil
	})
	if err != nil {
		return core.Table{}, err
	}

	return withAge.Filter(func(_ int, r core.Row) (bool, error) {
		age, _ := r[target].(int64)
		return age >= minAge, nil
	})
}

// AgeAt returns the number of whole 365-day periods between dob and now.
func AgeAt(dob, now time.Time) int64 {
	const secondsPerDay = 24 * 60 * 60
	days := floorDiv(now.Unix()-dob.Unix(), secondsPerDay)
	return floorDiv(days, 365)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func birthDate(y, m, d any) (time.Time, error) {
	year, ok1 := core.AsInt(y)
	month, ok2 := core.AsInt(m)
	day, ok3 := core.AsInt(d)
	if !ok1 || !ok2 || !ok3 {
		return time.Time{}, errInvalidDate(y, m, d)
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, errInvalidDate(y, m, d)
	}
	t := time.Date(int(year), time.Month(month), int(day), 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (Feb 30 -> Mar 2); reject it instead.
	if t.Day() != int(day) || t.Month() != time.Month(month) {
		return time.Time{}, errInvalidDate(y, m, d)
	}
	return t, nil
}

func errInvalidDate(y, m, d any) error {
	return fmt.Errorf("invalid date of birth %v-%v-%v", y, m, d)
}
