// Package core provides the connector pipeline's building blocks.
//
// # Error Codes Reference
//
// This file maps pipeline errors to user-friendly messages with codes for
// support reference. Operators can grep logs for the code a client quotes.
//
// # Specification Errors (SPEC001-SPEC099)
//
//	SPEC001 - Invalid connector specification
//	          Action: Check the connector definition against the schema
//	          Kind: spec_validation_error
//
// # Transform Errors (TOOL001-TOOL099)
//
//	TOOL001 - Unknown transform
//	          Action: Use one of the registered transform names
//	          Kind: unknown_tool
//
//	TOOL002 - Invalid transform parameter
//	          Action: Check the parameter names and allowed values
//	          Kind: invalid_parameter
//
// # Data Errors (DATA001-DATA099)
//
//	DATA001 - Column not found in upstream data
//	          Action: Verify the upstream response contains the column
//	          Kind: missing_column
//
//	DATA002 - Upstream value cannot be interpreted
//	          Action: Inspect the upstream record for malformed values
//	          Kind: invalid_value
//
// # Upstream Errors (UP001-UP099)
//
//	UP001 - Upstream request failed
//	        Action: Please try again in a few moments
//	        Kind: upstream_fetch_error
//
//	UP002 - Upstream temporarily disabled after repeated failures
//	        Action: Please wait before retrying
//	        Patterns: "circuit breaker is open", "too many requests"
//
//	UP003 - Upstream connection refused
//	        Patterns: "connection refused"
//
//	UP004 - Request timed out
//	        Kind: timeout; Patterns: "context deadline exceeded", "timeout"
//
//	UP005 - Request was cancelled
//	        Patterns: "context canceled"
//
// # Service Errors
//
//	RATE001 - Too many requests; Patterns: "rate limit"
//	RUN001  - Too many connector runs in progress; Patterns: "too many concurrent runs"
//	CON001  - Connector not found; Patterns: "connector not found"
//
// # Default Error (ERR000)
//
// Fallback when neither the error kind nor any pattern matches. Check the
// application logs for the original technical error.
//
// # Matching
//
// Patterns are checked first (case-insensitive, strings.Contains, first match
// wins) so that specific transport conditions win over their generic kind;
// the kind table is consulted next.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{
		pattern: "circuit breaker is open",
		msg: UserMessage{
			Message: "Upstream temporarily disabled after repeated failures",
			Action:  "Please wait before retrying",
			Code:    "UP002",
		},
	},
	{
		pattern: "too many requests",
		msg: UserMessage{
			Message: "Upstream temporarily disabled after repeated failures",
			Action:  "Please wait before retrying",
			Code:    "UP002",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the upstream API",
			Action:  "Please try again in a few moments",
			Code:    "UP003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try again later or raise the connector timeout",
			Code:    "UP004",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UP005",
		},
	},
	{
		pattern: "too many concurrent runs",
		msg: UserMessage{
			Message: "System is busy running other connectors",
			Action:  "Please wait a moment and try again",
			Code:    "RUN001",
		},
	},
	{
		pattern: "connector not found",
		msg: UserMessage{
			Message: "Connector not found",
			Action:  "Verify the connector name is correct",
			Code:    "CON001",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

var kindMessages = map[Kind]UserMessage{
	KindSpecValidation: {
		Message: "Invalid connector specification",
		Action:  "Check the connector definition against the schema",
		Code:    "SPEC001",
	},
	KindUnknownTool: {
		Message: "Unknown transform",
		Action:  "Use one of the registered transform names",
		Code:    "TOOL001",
	},
	KindInvalidParameter: {
		Message: "Invalid transform parameter",
		Action:  "Check the parameter names and allowed values",
		Code:    "TOOL002",
	},
	KindMissingColumn: {
		Message: "Column not found in upstream data",
		Action:  "Verify the upstream response contains the column",
		Code:    "DATA001",
	},
	KindInvalidValue: {
		Message: "Upstream value cannot be interpreted",
		Action:  "Inspect the upstream record for malformed values",
		Code:    "DATA002",
	},
	KindUpstreamFetch: {
		Message: "Upstream request failed",
		Action:  "Please try again in a few moments",
		Code:    "UP001",
	},
	KindTimeout: {
		Message: "Request timed out",
		Action:  "Try again later or raise the connector timeout",
		Code:    "UP004",
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	msg := MapError(MissingColumn("map_field", "person_id"))
//	// msg.Code == "DATA001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	if msg, ok := kindMessages[KindOf(err)]; ok {
		return msg
	}
	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
