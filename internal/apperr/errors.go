// Package apperr defines the error taxonomy shared by the capture workflows,
// the coordinator and the transport layers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error.
type Code string

const (
	CodeValidation         Code = "VALIDATION"
	CodeUnsupportedType    Code = "UNSUPPORTED_TYPE"
	CodePermissionDenied   Code = "PERMISSION_DENIED"
	CodeIO                 Code = "IO"
	CodeFetchFailed        Code = "FETCH_FAILED"
	CodePersistenceFailed  Code = "PERSISTENCE_FAILED"
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
	CodeInvalidState       Code = "INVALID_STATE"
	CodeNotFound           Code = "NOT_FOUND"
)

// Reason narrows CodeIO errors.
type Reason string

const (
	ReasonRecordingFailed      Reason = "recording_failed"
	ReasonImportFailed         Reason = "import_failed"
	ReasonAttachmentUnreadable Reason = "attachment_unreadable"
)

// Sentinels usable with errors.Is. An *Error matches the sentinel of its
// code, and IO errors also match the sentinel of their reason.
var (
	ErrValidation           = &Error{Code: CodeValidation, Message: "validation error"}
	ErrUnsupportedType      = &Error{Code: CodeUnsupportedType, Message: "unsupported type"}
	ErrPermissionDenied     = &Error{Code: CodePermissionDenied, Message: "permission denied"}
	ErrIO                   = &Error{Code: CodeIO, Message: "i/o error"}
	ErrRecordingFailed      = &Error{Code: CodeIO, Reason: ReasonRecordingFailed, Message: "recording failed"}
	ErrImportFailed         = &Error{Code: CodeIO, Reason: ReasonImportFailed, Message: "import failed"}
	ErrAttachmentUnreadable = &Error{Code: CodeIO, Reason: ReasonAttachmentUnreadable, Message: "attachment unreadable"}
	ErrFetchFailed          = &Error{Code: CodeFetchFailed, Message: "fetch failed"}
	ErrPersistenceFailed    = &Error{Code: CodePersistenceFailed, Message: "persistence failed"}
	ErrStorageUnavailable   = &Error{Code: CodeStorageUnavailable, Message: "storage unavailable"}
	ErrInvalidState         = &Error{Code: CodeInvalidState, Message: "invalid state"}
	ErrNotFound             = &Error{Code: CodeNotFound, Message: "not found"}
)

// Error is a classified error with a human-readable message and the
// underlying cause kept for diagnostics.
type Error struct {
	Code    Code
	Reason  Reason
	Message string
	// Status is the HTTP status for FetchFailed errors caused by a
	// non-2xx response; zero otherwise.
	Status int
	Cause  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches sentinels by code and, when the target carries one, reason.
// An unsupported type is also a validation error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == CodeValidation && t.Reason == "" && e.Code == CodeUnsupportedType {
		return true
	}
	if t.Code != e.Code {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// Validation creates a validation error.
func Validation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// UnsupportedType reports a file whose content type is not accepted.
func UnsupportedType(contentType string) *Error {
	return &Error{
		Code:    CodeUnsupportedType,
		Message: fmt.Sprintf("unsupported file type: %s", contentType),
	}
}

// PermissionDenied reports a capability the user did not grant.
func PermissionDenied(capability string) *Error {
	return &Error{
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("%s permission is required", capability),
	}
}

// RecordingFailed wraps an I/O failure of the recording session.
func RecordingFailed(cause error) *Error {
	return &Error{Code: CodeIO, Reason: ReasonRecordingFailed, Message: "recording failed", Cause: cause}
}

// ImportFailed wraps an I/O failure while copying an imported document.
func ImportFailed(cause error) *Error {
	return &Error{Code: CodeIO, Reason: ReasonImportFailed, Message: "import failed", Cause: cause}
}

// AttachmentUnreadable wraps a failure to open a stored payload.
func AttachmentUnreadable(ref string, cause error) *Error {
	return &Error{
		Code:    CodeIO,
		Reason:  ReasonAttachmentUnreadable,
		Message: fmt.Sprintf("attachment %s unreadable", ref),
		Cause:   cause,
	}
}

// FetchStatus reports a non-2xx response.
func FetchStatus(status int) *Error {
	return &Error{
		Code:    CodeFetchFailed,
		Message: fmt.Sprintf("fetch failed: HTTP %d", status),
		Status:  status,
	}
}

// FetchCause reports a transport failure (timeout, DNS, connection).
func FetchCause(cause error) *Error {
	return &Error{Code: CodeFetchFailed, Message: "fetch failed", Cause: cause}
}

// PersistenceFailed wraps a record store failure.
func PersistenceFailed(cause error) *Error {
	return &Error{Code: CodePersistenceFailed, Message: "could not save note", Cause: cause}
}

// StorageUnavailable wraps a failure to allocate attachment storage.
func StorageUnavailable(cause error) *Error {
	return &Error{Code: CodeStorageUnavailable, Message: "attachment storage unavailable", Cause: cause}
}

// InvalidState reports an operation that is not valid in the current state.
func InvalidState(op, state string) *Error {
	return &Error{
		Code:    CodeInvalidState,
		Message: fmt.Sprintf("cannot %s while %s", op, state),
	}
}

// NotFound reports a missing note.
func NotFound(id string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("note not found: %s", id)}
}

// UnknownFetch reports a web fetch id that is not pending.
func UnknownFetch(id string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("web fetch not found: %s", id)}
}

// CodeOf returns the code of err, or an empty code when err is not classified.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Message returns the human-readable message of a classified error, or a
// generic message for anything else.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// HTTPStatus maps err onto a response status.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnsupportedType:
		return http.StatusUnsupportedMediaType
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidState:
		return http.StatusConflict
	case CodeFetchFailed:
		return http.StatusBadGateway
	case CodeStorageUnavailable, CodePersistenceFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
