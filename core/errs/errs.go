/*
Package errs provides the error taxonomy shared by all access layers.

Every error that leaves the token verifier, the data access layer or the storage
access layer is an *Error with one of a small set of kinds. Backend specific error
types never cross that boundary, they are kept as the (unexported) cause:

	rows, err := store.Select(ctx, "user_profile", data.Eq("id", id))
	if errors.Is(err, errs.ErrDataAccess) {
		...
	}

The message of an *Error is meant for the caller. The cause is available through
errors.Unwrap for logging, but it is never part of Error().
*/
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error
type Kind string

// all supported error kinds
const (
	KindConfiguration Kind = "configuration"
	KindAuth          Kind = "auth"
	KindDataAccess    Kind = "data_access"
	KindStorageAccess Kind = "storage_access"
	KindValidation    Kind = "validation"
)

// Sentinels to be used with errors.Is. They match any *Error of the same kind.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrAuth          = errors.New("auth error")
	ErrDataAccess    = errors.New("data access error")
	ErrStorageAccess = errors.New("storage access error")
	ErrValidation    = errors.New("validation error")
)

var sentinels = map[Kind]error{
	KindConfiguration: ErrConfiguration,
	KindAuth:          ErrAuth,
	KindDataAccess:    ErrDataAccess,
	KindStorageAccess: ErrStorageAccess,
	KindValidation:    ErrValidation,
}

// Error is the error type of all access layers
type Error struct {
	Kind Kind
	// Message is safe to show to a caller
	Message string
	// Subject names the collection, bucket/path or client the error is about. Optional.
	Subject string
	// Err is the original cause. It is never part of Error().
	Err error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the original cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes the kind sentinels work with errors.Is
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// Configuration returns a new configuration error. Configuration errors are fatal
// for the affected client and are not retried.
func Configuration(message string, cause error) *Error {
	return &Error{Kind: KindConfiguration, Message: message, Err: cause}
}

// Auth returns a new authentication error
func Auth(message string, cause error) *Error {
	return &Error{Kind: KindAuth, Message: message, Err: cause}
}

// DataAccess returns a new data access error for collection
func DataAccess(collection, message string, cause error) *Error {
	return &Error{Kind: KindDataAccess, Subject: collection, Message: message, Err: cause}
}

// StorageAccess returns a new storage access error for the object at subject
func StorageAccess(subject, message string, cause error) *Error {
	return &Error{Kind: KindStorageAccess, Subject: subject, Message: message, Err: cause}
}

// Validation returns a new validation error
func Validation(message string, cause error) *Error {
	return &Error{Kind: KindValidation, Message: message, Err: cause}
}

// KindOf returns the kind of err, or the empty kind if err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// BackendError is an error reported by the external backend itself, as opposed to a
// transport failure or a decoding problem on our side.
type BackendError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *BackendError) Error() string {
	s := fmt.Sprintf("backend error (status %d", e.Status)
	if e.Code != "" {
		s += ", code " + e.Code
	}
	s += ")"
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Details != "" {
		s += " [" + e.Details + "]"
	}
	return s
}

// IsBackendError returns true if err is or wraps a *BackendError
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}
