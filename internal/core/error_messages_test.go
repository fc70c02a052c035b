package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "spec validation maps by kind",
			err:         SpecInvalid("spec.apiCalls", "must not be empty"),
			wantCode:    "SPEC001",
			wantMessage: "Invalid connector specification",
		},
		{
			name:        "unknown tool maps by kind",
			err:         UnknownTool("does_not_exist"),
			wantCode:    "TOOL001",
			wantMessage: "Unknown transform",
		},
		{
			name:        "invalid parameter maps by kind",
			err:         InvalidParameter("filter_by_quarter", "quarter must be between 1 and 4"),
			wantCode:    "TOOL002",
			wantMessage: "Invalid transform parameter",
		},
		{
			name:        "missing column maps by kind",
			err:         MissingColumn("map_field", "person_id"),
			wantCode:    "DATA001",
			wantMessage: "Column not found in upstream data",
		},
		{
			name:        "upstream failure maps by kind",
			err:         UpstreamFetch("GetPersonsAll", errors.New("status 502")),
			wantCode:    "UP001",
			wantMessage: "Upstream request failed",
		},
		{
			name:        "connection refused wins over kind",
			err:         UpstreamFetch("GetPersonsAll", errors.New("dial tcp: connection refused")),
			wantCode:    "UP003",
			wantMessage: "Unable to connect to the upstream API",
		},
		{
			name:        "open breaker maps correctly",
			err:         errors.New("circuit breaker is open"),
			wantCode:    "UP002",
			wantMessage: "Upstream temporarily disabled after repeated failures",
		},
		{
			name:        "deadline maps to timeout",
			err:         fmt.Errorf("fetch: %w", context.DeadlineExceeded),
			wantCode:    "UP004",
			wantMessage: "Request timed out",
		},
		{
			name:        "run limiter maps correctly",
			err:         ErrTooManyRuns,
			wantCode:    "RUN001",
			wantMessage: "System is busy running other connectors",
		},
		{
			name:        "rate limit maps correctly",
			err:         errors.New("rate limit exceeded"),
			wantCode:    "RATE001",
			wantMessage: "Too many requests",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("Connection Refused by peer"),
			wantCode:    "UP003",
			wantMessage: "Unable to connect to the upstream API",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() Code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() Message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}

	got := FormatUserError(UnknownTool("nope"))
	if !strings.Contains(got, "(Code: TOOL001)") {
		t.Errorf("FormatUserError() = %q, want code TOOL001", got)
	}
	if !strings.HasPrefix(got, "Unknown transform") {
		t.Errorf("FormatUserError() = %q, want message prefix", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("IsUserFacing(nil) = true, want false")
	}
	if !IsUserFacing(MissingColumn("op", "x")) {
		t.Error("IsUserFacing(missing column) = false, want true")
	}
	if IsUserFacing(errors.New("boom")) {
		t.Error("IsUserFacing(unclassified) = true, want false")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"classified", InvalidValue("op", "bad"), KindInvalidValue},
		{"wrapped classified", fmt.Errorf("outer: %w", MissingColumn("op", "c")), KindMissingColumn},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"deadline inside upstream", UpstreamFetch("call", context.DeadlineExceeded), KindTimeout},
		{"plain", errors.New("x"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_IsSentinel(t *testing.T) {
	err := fmt.Errorf("run: %w", MissingColumn("export Person/person_ID", "person_id"))
	if !errors.Is(err, ErrMissingColumn) {
		t.Error("errors.Is(err, ErrMissingColumn) = false, want true")
	}
	if errors.Is(err, ErrInvalidValue) {
		t.Error("errors.Is(err, ErrInvalidValue) = true, want false")
	}
	want := `export Person/person_ID: column not found: "person_id"`
	if got := MissingColumn("export Person/person_ID", "person_id").Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
