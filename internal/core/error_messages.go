package core

// Support codes returned by MapError:
//
//	ING001-ING004  archive rejected, one code per IngestionCode
//	ING005         no ingestion slot free (ErrTooManyUploads)
//	MDL001         scoring model unavailable
//	MDL002         prediction failed
//	DB001-DB004    connection refused, connection reset, timeout, deadlock
//	REQ001         request cancelled
//	ERR000         anything else; the technical error is only in the log

import (
	"context"
	"errors"
	"strings"
)

// UserMessage is what a client may see about a failure.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Support reference
}

var ingestionActions = map[IngestionCode]string{
	CodeNotArchive:        "Upload a file saved in .zip format",
	CodeUnreadableArchive: "Re-create the archive and upload it again",
	CodeUnsafeEntry:       "Remove entries with absolute or parent-relative paths",
	CodeArchiveTooLarge:   "Split the data across several smaller archives",
}

var (
	msgBusy = UserMessage{
		Message: "System is busy processing other uploads",
		Action:  "Please wait a moment and try again",
		Code:    "ING005",
	}
	msgTimeout = UserMessage{
		Message: "Operation timed out",
		Action:  "Try uploading a smaller archive or try again later",
		Code:    "DB003",
	}
	msgCancelled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "REQ001",
	}
	msgUnexpected = UserMessage{
		Message: "An unexpected error occurred",
		Action:  "Please try again or contact support",
		Code:    "ERR000",
	}
)

// sentinelRules are checked with errors.Is before any text matching.
var sentinelRules = []struct {
	target error
	msg    UserMessage
}{
	{ErrTooManyUploads, msgBusy},
	{context.DeadlineExceeded, msgTimeout},
	{context.Canceled, msgCancelled},
}

// textRules match lowercased error text for failures that cross package or
// driver boundaries without a sentinel. First match wins.
var textRules = []struct {
	patterns []string
	msg      UserMessage
}{
	{[]string{"too many uploads"}, msgBusy},
	{[]string{"model unavailable"}, UserMessage{
		Message: "The scoring model is not available",
		Action:  "Please try again later or contact support",
		Code:    "MDL001",
	}},
	{[]string{"prediction failed"}, UserMessage{
		Message: "The score could not be computed",
		Action:  "Check the submitted values and try again",
		Code:    "MDL002",
	}},
	{[]string{"connection refused"}, UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB001",
	}},
	{[]string{"connection reset"}, UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB002",
	}},
	{[]string{"context deadline exceeded", "timeout"}, msgTimeout},
	{[]string{"deadlock"}, UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB004",
	}},
	{[]string{"context canceled"}, msgCancelled},
}

// MapError converts a technical error to a user-facing message. An
// IngestionError anywhere in the chain supplies its own code and message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if ie, ok := AsIngestionError(err); ok {
		return UserMessage{
			Message: strings.TrimSuffix(ie.Message, "."),
			Action:  ingestionActions[ie.Code],
			Code:    string(ie.Code),
		}
	}

	for _, r := range sentinelRules {
		if errors.Is(err, r.target) {
			return r.msg
		}
	}

	text := strings.ToLower(err.Error())
	for _, r := range textRules {
		for _, p := range r.patterns {
			if strings.Contains(text, p) {
				return r.msg
			}
		}
	}
	return msgUnexpected
}
