package capture

import (
	"errors"
	"fmt"
)

const (
	CodeValidation     = "VALIDATION"
	CodeBusy           = "CAPTURE_BUSY"
	CodeNotFound       = "NOT_FOUND"
	CodeTargetNotFound = "TARGET_NOT_FOUND"
	CodeRasterFailure  = "RASTER_FAILURE"
	CodeExportFailure  = "EXPORT_FAILURE"
	CodeEmptyHistory   = "EMPTY_HISTORY"
	CodeEvalFailure    = "EVAL_FAILURE"
	CodeEvalTimeout    = "EVAL_TIMEOUT"
	CodeCDPUnavailable = "CDP_UNAVAILABLE"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// Is matches any CodedError carrying the same code, so sentinel values such
// as ErrBusy work with errors.Is.
func (e *CodedError) Is(target error) bool {
	var t *CodedError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Cause == nil
}

// NewError builds a CodedError.
func NewError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// ErrBusy is returned when a capture is requested while another one holds the lock.
var ErrBusy = &CodedError{Code: CodeBusy, Message: "a capture is already in flight"}

// HasCode reports whether err is a CodedError with the given code.
func HasCode(err error, code string) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == code
}
