package core

import (
	"errors"
	"fmt"
)

// IngestionCode classifies a client input fault that aborts an ingestion run.
type IngestionCode string

const (
	CodeNotArchive        IngestionCode = "ING001"
	CodeUnreadableArchive IngestionCode = "ING002"
	CodeUnsafeEntry       IngestionCode = "ING003"
	CodeArchiveTooLarge   IngestionCode = "ING004"
)

// IngestionError is returned when an archive is rejected as a whole.
// Message is safe to show to the uploader; Err carries the technical cause.
type IngestionError struct {
	Code    IngestionCode
	Message string
	Err     error
}

func (e *IngestionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

// AsIngestionError reports whether err is (or wraps) an IngestionError.
func AsIngestionError(err error) (*IngestionError, bool) {
	var ie *IngestionError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

func errNotArchive(cause error) error {
	return &IngestionError{
		Code:    CodeNotArchive,
		Message: "Uploaded file is not a valid ZIP archive.",
		Err:     cause,
	}
}

func errUnreadableArchive(cause error) error {
	return &IngestionError{
		Code:    CodeUnreadableArchive,
		Message: "Could not read ZIP archive.",
		Err:     cause,
	}
}

func errUnsafeEntry(name string) error {
	return &IngestionError{
		Code:    CodeUnsafeEntry,
		Message: fmt.Sprintf("ZIP archive contains an unsafe entry path: %q.", name),
	}
}

func errArchiveTooLarge(detail string) error {
	return &IngestionError{
		Code:    CodeArchiveTooLarge,
		Message: "ZIP archive exceeds the allowed " + detail + ".",
	}
}

// errMissingColumns is file-scoped: the file is skipped, the run continues.
type errMissingColumns struct {
	shape   Shape
	missing []string
}

func (e *errMissingColumns) Error() string {
	return fmt.Sprintf("missing required column for %s: %v", e.shape, e.missing)
}
