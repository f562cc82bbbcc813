package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// Configuration errors - missing or invalid configuration
	ErrorTypeConfig ErrorType = iota
	// Validation errors - invalid input data (malformed events, bad requests)
	ErrorTypeValidation
	// Database errors - storage connection or query failures
	ErrorTypeDatabase
	// Capacity errors - a reservation was refused
	ErrorTypeCapacity
	// External errors - availability service, GitHub, graph export
	ErrorTypeExternal
	// Internal errors - violated model invariants
	ErrorTypeInternal
)

// Severity represents how critical an error is
type Severity int

const (
	// SeverityLow - recovered locally
	SeverityLow Severity = iota
	// SeverityMedium - surfaces as a degraded result
	SeverityMedium
	// SeverityHigh - request is rejected
	SeverityHigh
	// SeverityCritical - processing must halt for the affected key
	SeverityCritical
)

// Error codes for the assignment domain. Two errors match under errors.Is
// when their codes match, or when the target carries no code and the types match.
const (
	CodeMalformedEvent                 = "malformed_event"
	CodeOverloaded                     = "overloaded"
	CodeNoFilesIdentified              = "no_files_identified"
	CodeNoKnownOwner                   = "no_known_owner"
	CodeAllUnavailable                 = "all_unavailable"
	CodeAvailabilityServiceUnavailable = "availability_service_unavailable"
	CodeInconsistentOwnershipState     = "inconsistent_ownership_state"
	CodeInvalidRequest                 = "invalid_request"
)

// Sentinels for errors.Is matching.
var (
	ErrMalformedEvent                 = &Error{Type: ErrorTypeValidation, Code: CodeMalformedEvent}
	ErrOverloaded                     = &Error{Type: ErrorTypeCapacity, Code: CodeOverloaded}
	ErrNoFilesIdentified              = &Error{Type: ErrorTypeValidation, Code: CodeNoFilesIdentified}
	ErrNoKnownOwner                   = &Error{Type: ErrorTypeInternal, Code: CodeNoKnownOwner}
	ErrAllUnavailable                 = &Error{Type: ErrorTypeCapacity, Code: CodeAllUnavailable}
	ErrAvailabilityServiceUnavailable = &Error{Type: ErrorTypeExternal, Code: CodeAvailabilityServiceUnavailable}
	ErrInconsistentOwnershipState     = &Error{Type: ErrorTypeInternal, Code: CodeInconsistentOwnershipState}
	ErrInvalidRequest                 = &Error{Type: ErrorTypeValidation, Code: CodeInvalidRequest}
)

// Error represents a structured error with context
type Error struct {
	Type       ErrorType
	Severity   Severity
	Code       string
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace string
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.ReplaceAll(e.Code, "_", " ")
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is checks if this error matches the target's code, or its type when the
// target has no code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" {
		return e.Code == t.Code
	}
	return e.Type == t.Type
}

// IsFatal returns true if this error should stop execution
func (e *Error) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// DetailedString returns a detailed error message with context
func (e *Error) DetailedString() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] [%s] %s\n",
		severityString(e.Severity),
		typeString(e.Type),
		e.Error()))

	if len(e.Context) > 0 {
		sb.WriteString("Context:\n")
		for k, v := range e.Context {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, v))
		}
	}

	if e.StackTrace != "" {
		sb.WriteString(fmt.Sprintf("Stack trace:\n%s\n", e.StackTrace))
	}

	return sb.String()
}

func typeString(t ErrorType) string {
	switch t {
	case ErrorTypeConfig:
		return "CONFIG"
	case ErrorTypeValidation:
		return "VALIDATION"
	case ErrorTypeDatabase:
		return "DATABASE"
	case ErrorTypeCapacity:
		return "CAPACITY"
	case ErrorTypeExternal:
		return "EXTERNAL"
	case ErrorTypeInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

// String returns the severity's log label
func (s Severity) String() string {
	return severityString(s)
}

func severityString(s Severity) string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// captureStackTrace captures the current stack trace
func captureStackTrace(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		sb.WriteString(fmt.Sprintf("  %s:%d %s\n", file, line, fn.Name()))
	}
	return sb.String()
}

// New creates a new error with the given type, severity, and message
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Cause:      err,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

func coded(sentinel *Error, severity Severity, message string, cause error) *Error {
	return &Error{
		Type:       sentinel.Type,
		Severity:   severity,
		Code:       sentinel.Code,
		Message:    message,
		Cause:      cause,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(3),
	}
}

// ConfigErrorf creates a configuration error with formatting
func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeConfig, SeverityCritical, fmt.Sprintf(format, args...))
}

// ValidationErrorf creates a validation error with formatting
func ValidationErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeValidation, SeverityHigh, fmt.Sprintf(format, args...))
}

// DatabaseError wraps a database error
func DatabaseError(err error, message string) *Error {
	return Wrap(err, ErrorTypeDatabase, SeverityCritical, message)
}

// DatabaseErrorf wraps a database error with formatting
func DatabaseErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeDatabase, SeverityCritical, fmt.Sprintf(format, args...))
}

// ExternalErrorf wraps an external service error with formatting
func ExternalErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeExternal, SeverityMedium, fmt.Sprintf(format, args...))
}

// MalformedEventf rejects a change event at ingestion
func MalformedEventf(format string, args ...interface{}) *Error {
	return coded(ErrMalformedEvent, SeverityHigh, fmt.Sprintf(format, args...), nil)
}

// Overloadedf refuses a reservation
func Overloadedf(format string, args ...interface{}) *Error {
	return coded(ErrOverloaded, SeverityLow, fmt.Sprintf(format, args...), nil)
}

// AvailabilityUnavailable wraps a failure to reach the availability service
func AvailabilityUnavailable(err error, message string) *Error {
	return coded(ErrAvailabilityServiceUnavailable, SeverityMedium, message, err)
}

// InconsistentStatef reports a violated ownership invariant
func InconsistentStatef(format string, args ...interface{}) *Error {
	return coded(ErrInconsistentOwnershipState, SeverityCritical, fmt.Sprintf(format, args...), nil)
}

// InvalidRequestf rejects a resolution request outright
func InvalidRequestf(format string, args ...interface{}) *Error {
	return coded(ErrInvalidRequest, SeverityHigh, fmt.Sprintf(format, args...), nil)
}

// IsFatal checks if an error is fatal (should stop execution).
// Wrapped errors are unwrapped to the first *Error in the chain.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var e *Error
	if stderrors.As(err, &e) {
		return e.IsFatal()
	}

	return false
}

// GetSeverity returns the severity of an error
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityLow
	}

	var e *Error
	if stderrors.As(err, &e) {
		return e.Severity
	}

	return SeverityMedium
}

// Describe renders err for an operator: DetailedString for domain errors,
// the plain message otherwise
func Describe(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.DetailedString()
	}
	return err.Error()
}

// GetCode returns the domain code of an error, or "" for foreign errors
func GetCode(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
