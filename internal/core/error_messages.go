package core

// error_messages.go maps technical errors to user-facing messages with codes
// that support staff can look up.
//
// # Input Errors
//
//	CSV001 - Invalid CSV: the file could not be parsed
//	         Action: Save the file as comma-separated, quoted UTF-8
//
//	SCH001 - Header mismatch: columns missing or unexpected for this kind
//	         Action: Compare the header row with the template for this kind
//
// # Validation Errors
//
//	VAL001 - Required value: a required field is empty
//	VAL002 - Invalid value: a value is not in the controlled vocabulary
//
// # Reference Errors
//
//	REF001  - Missing entity: a file row points at an entity that does not exist
//	FILE001 - Missing source: a binary named in basename_orig is not beside the CSV
//	FILE002 - Unreadable source: a binary exists but cannot be opened
//	FILE003 - File too large: the CSV exceeds the configured size limit
//
// # Processing Errors
//
//	GIT001 - Commit failed: the repository refused the change
//	LCK001 - Collection busy: another batch holds the collection lock
//	LIM001 - System busy: too many imports running
//	EXP001 - Nothing exported: the collection has no records of this kind
//	JOB001 - Unknown job: the import job ID is not known to this server
//	REQ001 - Request cancelled or timed out
//	ID001  - Invalid identifier
//
// Typed errors carry their own code; plain errors fall back to substring
// patterns, matched case-insensitively, first match wins. ERR000 means no
// pattern matched and the technical error is in the logs.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

var messagesByCode = map[string]UserMessage{
	"CSV001":  {"The file is not a valid CSV", "Save the file as comma-separated, quoted UTF-8", "CSV001"},
	"SCH001":  {"The CSV columns do not match this record kind", "Compare the header row with the template for this kind", "SCH001"},
	"VAL001":  {"A required field is empty", "Fill in every required column for each row", "VAL001"},
	"VAL002":  {"A value is not in the controlled vocabulary", "Check the allowed values for the listed fields", "VAL002"},
	"REF001":  {"A referenced entity does not exist", "Import the entities before their files", "REF001"},
	"FILE001": {"A source file is missing", "Place each file named in basename_orig in the CSV's directory", "FILE001"},
	"FILE002": {"A source file cannot be read", "Check the file permissions", "FILE002"},
	"FILE003": {"File exceeds maximum size limit", "Split the CSV into smaller batches", "FILE003"},
	"GIT001":  {"The change could not be committed", "Check the repository status and retry the failed rows", "GIT001"},
	"LCK001":  {"Another batch is running on this collection", "Wait for it to finish and try again", "LCK001"},
	"LIM001":  {"Too many imports in progress", "Please wait a moment and try again", "LIM001"},
	"EXP001":  {"No records were found to export", "Check the collection ID and record kind", "EXP001"},
	"JOB001":  {"Import job not found", "The job may have expired; check the import history", "JOB001"},
	"REQ001":  {"Request was cancelled or timed out", "Please try again", "REQ001"},
	"ID001":   {"Invalid identifier", "Use IDs of the form ddr-org-1 or ddr-org-1-2", "ID001"},
}

// sentinelCodes maps sentinel errors to codes for errors.Is matching.
var sentinelCodes = []struct {
	err  error
	code string
}{
	{ErrMalformedCSV, "CSV001"},
	{ErrSchemaMismatch, "SCH001"},
	{ErrReferenceMissing, "REF001"},
	{ErrSourceFileMissing, "FILE001"},
	{ErrSourceFileUnreadable, "FILE002"},
	{ErrFileTooLarge, "FILE003"},
	{ErrCommitFailure, "GIT001"},
	{ErrCollectionLocked, "LCK001"},
	{ErrTooManyImports, "LIM001"},
	{ErrNothingWritten, "EXP001"},
	{ErrUnknownJob, "JOB001"},
}

type errorPattern struct {
	pattern string
	code    string
}

// errorPatterns match plain errors. More specific patterns come first.
var errorPatterns = []errorPattern{
	{"invalid identifier", "ID001"},
	{"context canceled", "REQ001"},
	{"context deadline exceeded", "REQ001"},
	{"too many concurrent imports", "LIM001"},
	{"file too large", "FILE003"},
	{"invalid csv", "CSV001"},
}

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

	var c coder
	if errors.As(err, &c) {
		if msg, ok := messagesByCode[c.Code()]; ok {
			return msg
		}
	}
	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return messagesByCode[s.code]
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return messagesByCode[ep.code]
		}
	}

	return defaultMessage
}

// ErrorCode returns the support code of err, or "" for nil.
func ErrorCode(err error) string {
	return MapError(err).Code
}

// FormatUserError formats err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
