package portalerr

import (
	"errors"
	"fmt"

	"alloggiati/pkg/platform/sentinel"
)

// Kind defines the normalized failure taxonomy for portal calls.
type Kind string

const (
	// KindValidation is a local encoding failure. It never reaches the network.
	KindValidation Kind = "validation"

	// KindAuth means the credentials were rejected or the auth response was unusable.
	KindAuth Kind = "auth"

	// KindTransport covers connectivity, timeouts and non-2xx HTTP statuses.
	KindTransport Kind = "transport"

	// KindProtocol means a response arrived but could not be parsed into the expected shape.
	KindProtocol Kind = "protocol"

	// KindRejection is an explicit business failure reported by the portal.
	KindRejection Kind = "rejection"

	// KindInternal indicates an unexpected internal error
	KindInternal Kind = "internal"
)

// Sentinel errors. Callers match them with errors.Is.
var (
	ErrFieldRequired          = errors.New("field required")
	ErrInvalidDate            = errors.New("invalid date")
	ErrInvalidCode            = errors.New("invalid code")
	ErrEmptyBatch             = errors.New("batch contains no guests")
	ErrBatchTooLarge          = errors.New("batch exceeds maximum size")
	ErrUnknownTable           = errors.New("unknown reference table")
	ErrTransport              = errors.New("portal transport failure")
	ErrCircuitOpen            = fmt.Errorf("portal circuit open: %w", sentinel.ErrUnavailable)
	ErrAuthFailed             = errors.New("portal authentication failed")
	ErrMalformedResponse      = errors.New("malformed portal response")
	ErrPortalRejection        = errors.New("portal rejected request")
	ErrUnknownPortalRejection = errors.New("portal rejected request without a known error code")
)

// Error wraps portal failures with normalized categorization.
type Error struct {
	Kind      Kind
	Op        string // portal operation, e.g. "Test"
	Code      string // portal error code, rejections only
	Message   string
	Detail    string
	Timeout   bool
	Retryable bool
	Err       error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("portal %s [%s]", e.Op, e.Kind)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap supports error unwrapping
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a categorized error. Only transport failures are retryable.
func New(kind Kind, op, message string, underlying error) *Error {
	return &Error{
		Kind:      kind,
		Op:        op,
		Message:   message,
		Err:       underlying,
		Retryable: kind == KindTransport,
	}
}

// Transport builds a transport failure wrapping ErrTransport and the network cause.
func Transport(op string, timeout bool, cause error) *Error {
	e := New(KindTransport, op, "", fmt.Errorf("%w: %w", ErrTransport, cause))
	e.Timeout = timeout
	return e
}

// Protocol builds a protocol failure wrapping ErrMalformedResponse.
func Protocol(op, message string) *Error {
	return New(KindProtocol, op, message, ErrMalformedResponse)
}

// Rejection builds a portal rejection carrying the portal's code verbatim.
func Rejection(op, code, description, detail string) *Error {
	cause := ErrPortalRejection
	if code == "" {
		cause = ErrUnknownPortalRejection
	}
	e := New(KindRejection, op, description, cause)
	e.Code = code
	e.Detail = detail
	return e
}

// FieldError reports a local validation failure on a single record field.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: %v (%q)", e.Field, e.Err, e.Value)
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// FieldRequired reports a mandatory field left empty.
func FieldRequired(field string) error {
	return &FieldError{Field: field, Err: ErrFieldRequired}
}

// InvalidDate reports a date that matched none of the accepted layouts.
func InvalidDate(field, value string) error {
	return &FieldError{Field: field, Value: value, Err: ErrInvalidDate}
}

// InvalidCode reports a code that is not numeric, too long, or not in its domain.
func InvalidCode(field, value string) error {
	return &FieldError{Field: field, Value: value, Err: ErrInvalidCode}
}

// KindOf extracts the failure kind from an error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	var fe *FieldError
	if errors.As(err, &fe) {
		return KindValidation
	}
	switch {
	case errors.Is(err, ErrEmptyBatch), errors.Is(err, ErrBatchTooLarge), errors.Is(err, ErrUnknownTable):
		return KindValidation
	}
	return KindInternal
}

// IsRetryable checks if an error is worth retrying
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}
