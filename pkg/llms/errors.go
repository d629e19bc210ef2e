package llms

import (
	"net/http"

	"github.com/cockroachdb/errors"
)

// Typed failure kinds surfaced to callers. Adapters and connections wrap
// these with provider context; callers classify with errors.Is and decide
// whether to retry, fall back to another provider, or abort. No adapter
// recovers or retries on its own.
var (
	// ErrAuthentication is returned when credentials are missing, invalid,
	// or expired, or when the endpoint rejects them.
	ErrAuthentication = errors.New("authentication failed")
	// ErrTransport is returned when the network call fails, times out,
	// or the endpoint replies with a non-2xx status.
	ErrTransport = errors.New("transport failure")
	// ErrResponseParse is returned when the endpoint payload does not
	// match the expected schema.
	ErrResponseParse = errors.New("unexpected response payload")
	// ErrUnsupportedModel is returned when the caller requested a model
	// the connection does not recognize.
	ErrUnsupportedModel = errors.New("unsupported model")
	// ErrEmptyResponse is returned when the endpoint returns no choices.
	ErrEmptyResponse = errors.New("empty response")
	// ErrUnexpectedRole is returned when a message role is of an unexpected type.
	ErrUnexpectedRole = errors.New("unexpected role")
)

// Wrap attaches a failure kind at the base of the chain so callers can
// classify with errors.Is, including the standard library's. The cause text
// stays in the message and the cause itself is kept for verbose formatting.
func Wrap(kind error, err error, msg string) error {
	return errors.WithMessagef(errors.CombineErrors(kind, err), "%s: %v", msg, err)
}

// ErrorFromStatusCode maps an HTTP status to the error taxonomy.
// 401 and 403 indicate rejected credentials, everything else non-2xx is a
// transport failure.
func ErrorFromStatusCode(statusCode int) error {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.WithMessagef(ErrAuthentication, "status %d", statusCode)
	default:
		return errors.WithMessagef(ErrTransport, "status %d", statusCode)
	}
}

// IsRetriable reports whether the failure is a transport-level one that a
// retrying transport may reasonably replay. Authentication, parse and
// unsupported-model failures are not retriable.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrTransport)
}
