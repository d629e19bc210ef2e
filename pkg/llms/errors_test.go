package llms_test

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmconn/pkg/llms"
	"github.com/stretchr/testify/assert"
)

func TestErrorFromStatusCode(t *testing.T) {
	t.Parallel()

	tcases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, llms.ErrAuthentication},
		{http.StatusForbidden, llms.ErrAuthentication},
		{http.StatusTooManyRequests, llms.ErrTransport},
		{http.StatusInternalServerError, llms.ErrTransport},
		{http.StatusBadRequest, llms.ErrTransport},
	}
	for _, tc := range tcases {
		err := llms.ErrorFromStatusCode(tc.status)
		assert.True(t, errors.Is(err, tc.want), "status %d", tc.status)
	}
}

func TestWrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := llms.Wrap(llms.ErrTransport, cause, "request failed")

	// The failure kind must be visible to the standard library's errors.Is,
	// not only to cockroachdb's.
	assert.True(t, stderrors.Is(err, llms.ErrTransport))
	assert.ErrorIs(t, err, llms.ErrTransport)
	assert.Contains(t, err.Error(), "request failed")
	assert.Contains(t, err.Error(), "connection refused")

	err = llms.Wrap(llms.ErrorFromStatusCode(http.StatusUnauthorized), cause, "chat failed")
	assert.True(t, stderrors.Is(err, llms.ErrAuthentication))
}

func TestIsRetriable(t *testing.T) {
	t.Parallel()

	assert.True(t, llms.IsRetriable(errors.WithMessage(llms.ErrTransport, "dial tcp")))
	assert.False(t, llms.IsRetriable(llms.ErrAuthentication))
	assert.False(t, llms.IsRetriable(llms.ErrResponseParse))
	assert.False(t, llms.IsRetriable(llms.ErrUnsupportedModel))
	assert.False(t, llms.IsRetriable(nil))
}
