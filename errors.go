package gateway

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"runtime/debug"
)

// Sentinel errors for request binding.
var (
	ErrBindPath   = errors.New("bind path")
	ErrBindQuery  = errors.New("bind query")
	ErrBindHeader = errors.New("bind header")
	ErrBindCookie = errors.New("bind cookie")
	ErrBindBody   = errors.New("bind body")
)

// StatusCoder is implemented by errors or responses that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// Failure is a classified error raised by a stage or an operation handler.
// Name is the classification key looked up in the error tables; the other
// fields override what the matched table entry provides.
//
//nolint:errname // Failure reads better at call sites than FailureError
type Failure struct {
	Name    string
	Message string
	Status  int
	Field   string
	Extra   map[string]any

	cause error
	stack []byte
}

// Fail returns a failure classified by name.
func Fail(name string) *Failure {
	return &Failure{Name: name}
}

// Error returns a failure with the given HTTP status code and message. The
// name is the catalog's canonical name for the status, if any.
func Error(status int, message string) error {
	return &Failure{Name: nameForStatus(status), Status: status, Message: message}
}

// Errorf returns a formatted failure with the given HTTP status code.
func Errorf(status int, format string, args ...any) error {
	return Error(status, fmt.Sprintf(format, args...))
}

// NotFound returns the failure raised when no operation handled a request.
func NotFound() *Failure { return Fail(NameNotFound) }

// Invalid returns a validation failure for the named input field.
func Invalid(field, message string) *Failure {
	return &Failure{Name: NameValidation, Field: field, Message: message}
}

// Unauthorized returns a failure for missing or rejected credentials.
func Unauthorized(message string) *Failure {
	return &Failure{Name: NameUnauthorized, Message: message}
}

// Forbidden returns a failure for authenticated callers lacking permission.
func Forbidden(message string) *Failure {
	return &Failure{Name: NameForbidden, Message: message}
}

// Error returns the message, falling back to the name.
func (f *Failure) Error() string {
	switch {
	case f.Message != "":
		return f.Message
	case f.Name != "":
		return f.Name
	case f.cause != nil:
		return f.cause.Error()
	default:
		return NameInternal
	}
}

// Unwrap returns the underlying cause.
func (f *Failure) Unwrap() error { return f.cause }

// StatusCode returns the HTTP status code, or 500 when none was set.
func (f *Failure) StatusCode() int {
	if f.Status == 0 {
		return http.StatusInternalServerError
	}
	return f.Status
}

// Stack returns the goroutine stack captured when the failure was recovered
// from a panic. Nil otherwise.
func (f *Failure) Stack() []byte { return f.stack }

// WithMessage sets the client-facing message.
func (f *Failure) WithMessage(msg string) *Failure {
	f.Message = msg
	return f
}

// WithStatus sets the HTTP status, overriding the table entry.
func (f *Failure) WithStatus(status int) *Failure {
	f.Status = status
	return f
}

// WithField names the offending input field.
func (f *Failure) WithField(field string) *Failure {
	f.Field = field
	return f
}

// WithExtra adds an extra field to the payload.
func (f *Failure) WithExtra(key string, value any) *Failure {
	if f.Extra == nil {
		f.Extra = make(map[string]any)
	}
	f.Extra[key] = value
	return f
}

// Wrap records err as the cause. If no message is set, err's text is used.
func (f *Failure) Wrap(err error) *Failure {
	f.cause = err
	if f.Message == "" && err != nil {
		f.Message = err.Error()
	}
	return f
}

func (f *Failure) clone() *Failure {
	c := *f
	c.Extra = maps.Clone(f.Extra)
	return &c
}

// Normalize turns any raised value into a fresh Failure. Strings become
// {Message: s}; errors carrying a StatusCoder keep their status; an expired
// deadline becomes Timeout. Anything else keeps its text as the message.
// The input is never modified.
func Normalize(v any) *Failure {
	switch e := v.(type) {
	case nil:
		return &Failure{}
	case *Failure:
		return e.clone()
	case string:
		return &Failure{Message: e}
	case error:
		var f *Failure
		if errors.As(e, &f) {
			c := f.clone()
			if c.Message == "" && c.Name == "" {
				c.Message = e.Error()
			}
			return c
		}
		out := &Failure{Message: e.Error(), cause: e}
		var sc StatusCoder
		if errors.As(e, &sc) {
			out.Status = sc.StatusCode()
			out.Name = nameForStatus(out.Status)
		}
		var mbe *http.MaxBytesError
		if errors.As(e, &mbe) {
			out.Name = NamePayloadTooLarge
		}
		if errors.Is(e, context.DeadlineExceeded) {
			out.Name = NameTimeout
		}
		return out
	default:
		return &Failure{Message: fmt.Sprint(v)}
	}
}

// recovered converts a panic value into a Failure carrying the stack.
func recovered(rec any) *Failure {
	f := Normalize(rec)
	f.stack = debug.Stack()
	return f
}

// ErrorStatus extracts the HTTP status code from an error. Returns
// http.StatusInternalServerError if the error does not implement StatusCoder.
func ErrorStatus(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}
