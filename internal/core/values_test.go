package core

import (
	"testing"

	json "github.com/goccy/go-json"
)

func TestAsInt(t *testing.T) {
	tests := []struct {
		in     any
		want   int64
		wantOK bool
	}{
		{1, 1, true},
		{int64(-5), -5, true},
		{uint8(7), 7, true},
		{float64(2024), 2024, true},
		{2024.5, 0, false},
		{json.Number("1950"), 1950, true},
		{" 12 ", 12, true},
		{"12.0", 12, true},
		{"abc", 0, false},
		{"", 0, false},
		{nil, 0, false},
		{true, 0, false},
	}
	for _, tt := range tests {
		got, ok := AsInt(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("AsInt(%#v) = %d,%v, want %d,%v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"a", "a"},
		{true, "true"},
		{42, "42"},
		{int64(-1), "-1"},
		{1.5, "1.5"},
		{json.Number("3"), "3"},
		{[]any{1, "x"}, `[1,"x"]`},
	}
	for _, tt := range tests {
		if got := Stringify(tt.in); got != tt.want {
			t.Errorf("Stringify(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
