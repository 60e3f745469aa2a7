package mailroute

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPattern is matched by InvalidPatternError.
	ErrInvalidPattern = errors.New("invalid route pattern")

	// ErrNilHandler is returned when a routable route has no handler.
	ErrNilHandler = errors.New("route has no handler")

	// ErrNoRoute is matched by NoRouteError.
	ErrNoRoute = errors.New("no route matched recipients")

	// ErrAuthFailed is matched by AuthError.
	ErrAuthFailed = errors.New("sender authentication failed")

	// ErrHeaderNotFound is returned by a HeaderExtractor when the message has
	// no header with the requested name.
	ErrHeaderNotFound = errors.New("header not found")

	// ErrInvalidFields is returned by bound handlers when the captured fields
	// cannot be decoded into the handler's type or fail validation.
	ErrInvalidFields = errors.New("invalid match fields")
)

// InvalidPatternError reports a route pattern that does not compile. It is
// returned by NewRegistry and New and is fatal to that router.
type InvalidPatternError struct {
	Route   string
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("route %s: invalid pattern %q: %v", e.Route, e.Pattern, e.Err)
}

func (e *InvalidPatternError) Unwrap() error { return e.Err }

func (e *InvalidPatternError) Is(target error) bool { return target == ErrInvalidPattern }

// NoRouteError reports that no recipient address matched any registered
// route. Recipients holds the raw recipient header value for diagnostics.
//
// This is an expected outcome in normal operation; callers typically bounce,
// log, or dead-letter the message.
type NoRouteError struct {
	Recipients string

	// Err is the header extraction failure, if the recipients could not be
	// read at all.
	Err error
}

func (e *NoRouteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no route matched recipients %q: %v", e.Recipients, e.Err)
	}
	return fmt.Sprintf("no route matched recipients %q", e.Recipients)
}

func (e *NoRouteError) Unwrap() error { return e.Err }

func (e *NoRouteError) Is(target error) bool { return target == ErrNoRoute }

// AuthError reports that the matched route's authenticator rejected the
// message. The route's handler has not run.
type AuthError struct {
	Route     string
	Recipient string
	Reason    string
	Err       error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("route %s: sender authentication failed for %s: %s", e.Route, e.Recipient, e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool { return target == ErrAuthFailed }

// EnvelopeError reports that an envelope matched the raw input but could not
// unwrap the message inside it.
type EnvelopeError struct {
	Envelope string
	Err      error
}

func (e *EnvelopeError) Error() string {
	return fmt.Sprintf("unwrap envelope %s: %v", e.Envelope, e.Err)
}

func (e *EnvelopeError) Unwrap() error { return e.Err }

// fieldsError wraps bind failures so they match ErrInvalidFields while
// keeping the decoder or validator error reachable.
type fieldsError struct {
	op  string
	err error
}

func (e *fieldsError) Error() string { return e.op + " fields: " + e.err.Error() }
func (e *fieldsError) Unwrap() error { return e.err }

func (e *fieldsError) Is(target error) bool { return target == ErrInvalidFields }
