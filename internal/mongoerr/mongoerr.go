// Package mongoerr defines the MongoDB-compatible error taxonomy: every
// command failure surfaces to the wire as {ok:0, errmsg, code}, and
// this package is the single place that associates a Go error with the
// numeric code a driver expects.
package mongoerr

import "fmt"

// Code is a MongoDB server error code.
type Code int

const (
	CodeInternalError             Code = 1
	CodeConflictingUpdateOperators Code = 2
	CodeTypeMismatch               Code = 14
	CodeBadFrame                   Code = 22
	CodeNamespaceNotFound          Code = 26
	CodeIndexNotFound              Code = 27
	CodeNamespaceExists            Code = 48
	CodeMaxTimeMSExpired           Code = 50
	CodeCommandNotFound            Code = 59
	CodeInvalidNamespace           Code = 73
	CodeCursorNotFound             Code = 43
	CodeDuplicateKey               Code = 11000
	CodeMessageTooLarge            Code = 10334
	CodeMissingField               Code = 40414
	CodeGeoNearNotFirst            Code = 40602
)

// Error is a MongoDB-taxonomy error: a message plus a wire error code.
type Error struct {
	Code    Code
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Wrapped)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Wrapped }

// New builds an *Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Mongo error code to an existing error, preserving it for
// %w-style inspection.
func Wrap(code Code, err error) *Error {
	return &Error{Code: code, Message: err.Error(), Wrapped: err}
}

// As extracts a *Error from err, the way errors.As would, returning its
// code and message, or (CodeInternalError, err.Error()) when err is not
// already tagged.
func As(err error) (code Code, message string) {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Code, e.Message
	}
	return CodeInternalError, err.Error()
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
