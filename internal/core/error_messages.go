// Package core wires the schema store, the mapping and cleaning engines and
// the pass limiter into the service behind the HTTP API and the CLI.
//
// # Error Codes Reference
//
// Errors returned to users carry a code support staff can look up.
//
// # Schema Errors (SCH001-SCH099)
//
//	SCH001 - Schema not found: No schema definition is configured
//	         Action: Create one with `schemafix schema init` or check SCHEMA_PATH
//	         Patterns: "schema definition not found"
//
//	SCH002 - Duplicate field: The definition declares a field twice
//	         Action: Remove the duplicate entry from the schema file
//	         Patterns: "duplicate canonical field"
//
//	SCH003 - Invalid schema: The definition could not be read
//	         Action: Check the schema file is a JSON or YAML object keyed by field name
//	         Patterns: "schema definition has no fields", "decode schema", "canonical field with empty name"
//
// # Mapping Errors (MAP001-MAP099)
//
//	MAP001 - Unknown field: An override names a field the schema does not define
//	         Action: Pick a field from the schema or leave the header unmapped
//	         Patterns: "unknown canonical field"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the upload size limit
//	          Action: Split the file into smaller chunks
//	          Patterns: "file too large"
//
//	FILE002 - Invalid file: File is not a readable CSV or XLSX
//	          Action: Ensure every row has no more cells than the header
//	          Patterns: "read csv", "open xlsx", "read sheet"
//
//	FILE003 - Encoding error: File contains undecodable characters
//	          Action: Save file as UTF-8 encoding
//	          Patterns: "decode csv"
//
//	FILE004 - No file: No file was provided
//	          Action: Attach a CSV, TSV or XLSX file
//	          Patterns: "no file provided", "unsupported file format"
//
//	FILE005 - Empty file: The uploaded file has no header row
//	          Action: Upload a file with a header row
//	          Patterns: "input has no header row"
//
// # Pass Errors (UPL001-UPL099)
//
//	UPL002 - System busy: Too many passes in progress
//	         Action: Please wait a moment and try again
//	         Patterns: "too many concurrent passes"
//
//	UPL004 - Request cancelled: Request was cancelled
//	         Action: Please try again
//	         Patterns: "context canceled"
//
//	UPL005 - Request timeout: Request timed out
//	         Action: Try a smaller file or try again without the assistant
//	         Patterns: "context deadline exceeded"
//
// # Assistant Errors (AST001-AST099)
//
//	AST001 - Assistant unavailable: The assistant was requested but is not configured
//	         Action: Set OPENAI_API_KEY or run without the assistant
//	         Patterns: "assistant unavailable", "api key is required"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//	          Action: Please wait a moment before trying again
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns come before general ones.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgSchemaInvalid = UserMessage{
		Message: "The schema definition could not be read",
		Action:  "Check the schema file is a JSON or YAML object keyed by field name",
		Code:    "SCH003",
	}
	msgBadFile = UserMessage{
		Message: "File is not a readable CSV or XLSX",
		Action:  "Ensure every row has no more cells than the header",
		Code:    "FILE002",
	}
	msgNoFile = UserMessage{
		Message: "No supported file was provided",
		Action:  "Attach a CSV, TSV or XLSX file",
		Code:    "FILE004",
	}
	msgAssist = UserMessage{
		Message: "The assistant is not available",
		Action:  "Set OPENAI_API_KEY or run without the assistant",
		Code:    "AST001",
	}
)

// errorPatterns maps technical error text (lowercased) to user messages.
var errorPatterns = []errorPattern{
	// Schema
	{
		pattern: "schema definition not found",
		msg: UserMessage{
			Message: "No schema definition is configured",
			Action:  "Create one with `schemafix schema init` or check SCHEMA_PATH",
			Code:    "SCH001",
		},
	},
	{
		pattern: "duplicate canonical field",
		msg: UserMessage{
			Message: "The schema declares a field twice",
			Action:  "Remove the duplicate entry from the schema file",
			Code:    "SCH002",
		},
	},
	{pattern: "schema definition has no fields", msg: msgSchemaInvalid},
	{pattern: "canonical field with empty name", msg: msgSchemaInvalid},
	{pattern: "decode schema", msg: msgSchemaInvalid},

	// Mapping
	{
		pattern: "unknown canonical field",
		msg: UserMessage{
			Message: "An override names a field the schema does not define",
			Action:  "Pick a field from the schema or leave the header unmapped",
			Code:    "MAP001",
		},
	},

	// Files
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the upload size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "decode csv",
		msg: UserMessage{
			Message: "File contains characters that could not be decoded",
			Action:  "Save file as UTF-8 encoding",
			Code:    "FILE003",
		},
	},
	{pattern: "read csv", msg: msgBadFile},
	{pattern: "open xlsx", msg: msgBadFile},
	{pattern: "read sheet", msg: msgBadFile},
	{pattern: "no file provided", msg: msgNoFile},
	{pattern: "unsupported file format", msg: msgNoFile},
	{
		pattern: "input has no header row",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Upload a file with a header row",
			Code:    "FILE005",
		},
	},

	// Passes
	{
		pattern: "too many concurrent passes",
		msg: UserMessage{
			Message: "System is busy processing other files",
			Action:  "Please wait a moment and try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or try again without the assistant",
			Code:    "UPL005",
		},
	},

	// Assistant
	{pattern: "assistant unavailable", msg: msgAssist},
	{pattern: "api key is required", msg: msgAssist},

	// Rate limiting
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches. Support staff should
// check the logs for the technical error behind an ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
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
	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
