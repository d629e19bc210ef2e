package connection

import (
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
)

// RetryPolicy configures a retrying transport. The policy is deliberately
// explicit: a connection has no retry behavior unless its Doer is wrapped
// with WithRetries.
type RetryPolicy struct {
	// MaxRetries is the number of attempts made after the first one.
	MaxRetries int
	// Backoff is the delay before the first retry; each subsequent retry
	// doubles it.
	Backoff time.Duration
}

type retryDoer struct {
	next   Doer
	policy RetryPolicy
}

// WithRetries wraps a transport with retry-on-transient-failure
// semantics: network errors and 5xx responses are replayed, client errors
// (4xx, including auth rejections) are not.
func WithRetries(next Doer, policy RetryPolicy) Doer {
	return &retryDoer{
		next:   next,
		policy: policy,
	}
}

// Do implements the Doer interface.
func (d *retryDoer) Do(req *http.Request) (*http.Response, error) {
	backoff := d.policy.Backoff
	var lastErr error
	for attempt := 0; attempt <= d.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			if req.GetBody == nil {
				return nil, errors.New("request body is not replayable")
			}
			body, err := req.GetBody()
			if err != nil {
				return nil, errors.Wrap(err, "failed to rewind request body")
			}
			req.Body = body

			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		resp, err := d.next.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 && attempt < d.policy.MaxRetries {
			_ = resp.Body.Close()
			lastErr = errors.Errorf("status %d", resp.StatusCode)
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}
