package attendance

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/attendance/internal/database"
)

// Code categorizes attendance errors.
type Code string

const (
	// CodeInvalidEmbeddingShape marks a stored or submitted encoding that does not normalize.
	CodeInvalidEmbeddingShape Code = "INVALID_EMBEDDING_SHAPE"

	// CodeNoUsableEvidence marks a capture without decodable probes or enrolled encodings.
	// Reconcile reports it as a fallback result, never as an error.
	CodeNoUsableEvidence Code = "NO_USABLE_EVIDENCE"

	// CodeConcurrentModification marks a write that kept losing races on the same classroom day.
	CodeConcurrentModification Code = "CONCURRENT_MODIFICATION"

	// CodePersistenceFailure marks a storage failure; the whole write was rolled back.
	CodePersistenceFailure Code = "PERSISTENCE_FAILURE"

	// CodeNotFound marks an unknown classroom or student for the owner.
	CodeNotFound Code = "NOT_FOUND"

	// CodeInvalidInput marks a malformed request.
	CodeInvalidInput Code = "INVALID_INPUT"

	// CodeUpstreamFailure marks a face encoder that could not be reached or answered with an error.
	CodeUpstreamFailure Code = "UPSTREAM_FAILURE"
)

// Error is the typed error returned by Service operations.
type Error struct {
	Code    Code
	Message string
	// Key identifies the affected classroom day, if any.
	Key string
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Key != "" {
		msg += " (" + e.Key + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode returns the Code of err, or "" if it is not an *Error.
// Uses errors.As to handle wrapped errors.
func ErrorCode(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsConcurrentModification returns true if err is a concurrent modification error.
func IsConcurrentModification(err error) bool {
	return ErrorCode(err) == CodeConcurrentModification
}

// IsPersistenceFailure returns true if err is a storage failure.
func IsPersistenceFailure(err error) bool {
	return ErrorCode(err) == CodePersistenceFailure
}

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return ErrorCode(err) == CodeNotFound
}

// IsInvalidInput returns true if err reports malformed input.
func IsInvalidInput(err error) bool {
	code := ErrorCode(err)
	return code == CodeInvalidInput || code == CodeInvalidEmbeddingShape
}

// IsUpstreamFailure returns true if the face encoder failed.
func IsUpstreamFailure(err error) bool {
	return ErrorCode(err) == CodeUpstreamFailure
}

func notFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func invalidInput(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// classify maps storage errors onto the taxonomy, keeping typed errors as they are.
func classify(err error, key database.DayKey) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		if ae.Key == "" {
			ae.Key = keyString(key)
		}
		return ae
	}
	if errors.Is(err, database.ErrConcurrentModification) {
		return &Error{
			Code:    CodeConcurrentModification,
			Message: "attendance for this classroom day was modified concurrently",
			Key:     keyString(key),
			Err:     err,
		}
	}
	return &Error{
		Code:    CodePersistenceFailure,
		Message: "attendance could not be saved; no changes were applied",
		Key:     keyString(key),
		Err:     err,
	}
}

func keyString(key database.DayKey) string {
	if key.ClassroomID == 0 && key.Date.IsZero() {
		return ""
	}
	return key.String()
}
