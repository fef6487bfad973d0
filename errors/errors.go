package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDecode    Phase = "decode"    // raw to Variant
	PhaseEncode    Phase = "encode"    // Variant to raw
	PhaseRequest   Phase = "request"   // request dispatch/completion
	PhaseSession   Phase = "session"   // connection lifecycle
	PhaseSubscribe Phase = "subscribe" // subscriptions, monitored items
	PhaseServer    Phase = "server"    // server-side node management
	PhaseShutdown  Phase = "shutdown"  // teardown sequencing
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch        Kind = "type_mismatch"
	KindInvalidData         Kind = "invalid_data"
	KindNullArray           Kind = "null_array"
	KindAllocation          Kind = "allocation"
	KindBadStatus           Kind = "bad_status"
	KindCancelled           Kind = "cancelled"
	KindDisconnected        Kind = "disconnected"
	KindDuplicateCompletion Kind = "duplicate_completion"
	KindUnknownRequest      Kind = "unknown_request"
	KindNotFound            Kind = "not_found"
	KindAccessDenied        Kind = "access_denied"
	KindUnsupported         Kind = "unsupported"
	KindTimeout             Kind = "timeout"
	KindInternal            Kind = "internal"
)

// Error is the structured error type used throughout the binding
type Error struct {
	Cause    error
	Phase    Phase
	Kind     Kind
	Expected string // requested type tag, for narrowing failures
	Actual   string // dynamic type tag found
	Code     uint32 // protocol status code, when one is involved
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Expected != "" || e.Actual != "" {
		b.WriteString(": ")
		if e.Expected != "" && e.Actual != "" {
			b.WriteString("expected ")
			b.WriteString(e.Expected)
			b.WriteString(", got ")
			b.WriteString(e.Actual)
		} else if e.Expected != "" {
			b.WriteString("expected ")
			b.WriteString(e.Expected)
		} else {
			b.WriteString("got ")
			b.WriteString(e.Actual)
		}
	}

	if e.Detail != "" {
		if e.Expected != "" || e.Actual != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Code != 0 {
		fmt.Fprintf(&b, " (status 0x%08X)", e.Code)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// IsCancelled reports whether err is a cancellation error from any phase.
func IsCancelled(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == KindCancelled
}

// IsDisconnected reports whether err is a connection-loss error.
func IsDisconnected(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == KindDisconnected
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Expected sets the requested type tag
func (b *Builder) Expected(t string) *Builder {
	b.err.Expected = t
	return b
}

// Actual sets the dynamic type tag that was found
func (b *Builder) Actual(t string) *Builder {
	b.err.Actual = t
	return b
}

// Code sets the protocol status code
func (b *Builder) Code(code uint32) *Builder {
	b.err.Code = code
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// TypeMismatch creates a type mismatch error naming both type tags
func TypeMismatch(phase Phase, path []string, expected, actual string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		Path:     path,
		Expected: expected,
		Actual:   actual,
	}
}

// AllocationFailed creates an allocation failure error (null engine pointer)
func AllocationFailed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("engine returned null %s", what),
	}
}

// BadStatus creates an error for a non-good protocol status code
func BadStatus(phase Phase, code uint32, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindBadStatus,
		Code:   code,
		Detail: name,
	}
}

// Cancelled creates a cancellation error
func Cancelled(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindCancelled,
		Detail: detail,
	}
}

// Disconnected creates a terminal connection-loss error
func Disconnected(detail string) *Error {
	return &Error{
		Phase:  PhaseSession,
		Kind:   KindDisconnected,
		Detail: detail,
	}
}

// DuplicateCompletion reports a completion delivered twice for one request.
// This is a defect in the engine binding, not an environmental condition.
func DuplicateCompletion(requestID uint32) *Error {
	return &Error{
		Phase:  PhaseRequest,
		Kind:   KindDuplicateCompletion,
		Detail: fmt.Sprintf("request %d completed more than once", requestID),
	}
}

// UnknownRequest reports a completion for a request id never registered.
// This is a defect in the engine binding, not an environmental condition.
func UnknownRequest(requestID uint32) *Error {
	return &Error{
		Phase:  PhaseRequest,
		Kind:   KindUnknownRequest,
		Detail: fmt.Sprintf("completion for unknown request %d", requestID),
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// AccessDenied creates an access-denied error
func AccessDenied(detail string) *Error {
	return &Error{
		Phase:  PhaseSession,
		Kind:   KindAccessDenied,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Internal creates an internal consistency error
func Internal(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInternal,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
