package videoapi

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel kinds for classified API failures. Every error returned by the
// client wraps exactly one of these, so callers can branch with errors.Is
// without inspecting strings.
var (
	// ErrAuth means no credential was available. The call fails before any
	// network traffic happens.
	ErrAuth = errors.New("videoapi: missing api credential")
	// ErrNetwork covers connection-level failures: dial, TLS, timeouts,
	// interrupted bodies.
	ErrNetwork = errors.New("videoapi: network failure")
	// ErrDecode means the response arrived but did not match the expected
	// shape.
	ErrDecode = errors.New("videoapi: unexpected response shape")
	// ErrHTTP is any response with a non-2xx status. The status code rides
	// along on the Error value; retryability is the caller's decision.
	ErrHTTP = errors.New("videoapi: error status")
	// ErrValidation is a caller-side input problem that never reaches the
	// network.
	ErrValidation = errors.New("videoapi: invalid input")
)

// Error is the classified outcome of one API call.
type Error struct {
	// Kind is one of the sentinel errors above.
	Kind error
	// StatusCode is set when Kind is ErrHTTP.
	StatusCode int
	// Code and Message carry the server's error body when it provided one.
	Code    string
	Message string
	// Body is the raw response body, kept for diagnosis of decode failures
	// and unexpected statuses.
	Body string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Kind == ErrHTTP && msg != "":
		return fmt.Sprintf("videoapi: status %d: %s", e.StatusCode, msg)
	case e.Kind == ErrHTTP:
		return fmt.Sprintf("videoapi: status %d", e.StatusCode)
	case msg != "":
		return e.Kind.Error() + ": " + msg
	default:
		return e.Kind.Error()
	}
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// AsError extracts the typed API error from an error chain.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsNotFound reports whether err is an HTTP 404 from the API, which the
// caller treats as "the job no longer exists server-side".
func IsNotFound(err error) bool {
	apiErr, ok := AsError(err)
	return ok && apiErr.Kind == ErrHTTP && apiErr.StatusCode == http.StatusNotFound
}

// IsAuth reports whether err means the credential is missing or was rejected.
func IsAuth(err error) bool {
	apiErr, ok := AsError(err)
	if !ok {
		return false
	}
	if apiErr.Kind == ErrAuth {
		return true
	}
	return apiErr.Kind == ErrHTTP &&
		(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden)
}
