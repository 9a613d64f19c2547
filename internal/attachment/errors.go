package attachment

import (
	"errors"
	"fmt"
	"strings"
)

const (
	CodeSizeLimit           = "ATTACHMENT_SIZE_LIMIT"
	CodeUnsupportedMimeType = "UNSUPPORTED_MIME_TYPE"
	CodeMissingBucketConfig = "MISSING_BUCKET_CONFIG"
)

var (
	// ErrNoteNotFound is returned when the note does not exist.
	ErrNoteNotFound = errors.New("note not found")
	// ErrAttachmentNotFound is returned when the id is not attached to the note,
	// or the caller may not see the note.
	ErrAttachmentNotFound = errors.New("attachment not found")
	// ErrSigningDisabled is returned when signed urls are requested without a signing secret.
	ErrSigningDisabled = errors.New("signed urls are disabled")
)

// PolicyError rejects an attachment before anything is written.
type PolicyError struct {
	Code    string
	LimitMB int64
	Allowed []string
	Err     error
}

func (e *PolicyError) Error() string {
	switch e.Code {
	case CodeSizeLimit:
		return fmt.Sprintf("%s: attachment exceeds the %d MB limit of the plan", e.Code, e.LimitMB)
	case CodeUnsupportedMimeType:
		return fmt.Sprintf("%s: allowed types are %s", e.Code, strings.Join(e.Allowed, ", "))
	default:
		if e.Err != nil {
			return e.Code + ": " + e.Err.Error()
		}
		return e.Code
	}
}

func (e *PolicyError) Unwrap() error {
	return e.Err
}

// PartialError is returned by composite stores when the primary write succeeded
// but a secondary write failed.
type PartialError struct {
	Step string
	Err  error
}

func (e *PartialError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *PartialError) Unwrap() error {
	return e.Err
}
