package openaiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmconn/pkg/llms"
	"github.com/effective-security/xlog"
	"github.com/openai/openai-go/v3/responses"
)

// CreateResponse sends the request to the /responses endpoint.
func (c *Client) CreateResponse(ctx context.Context, payload *responses.ResponseNewParams) (*responses.Response, error) {
	if payload.Model == "" {
		payload.Model = c.Model
	}
	if payload.Model == "" {
		payload.Model = DefaultChatModel
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal payload")
	}

	u := c.buildURL("/responses", string(payload.Model))
	logger.ContextKV(ctx, xlog.DEBUG, "url", u, "model", payload.Model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	c.setHeaders(req)

	r, err := c.httpClient.Do(req)
	if err != nil {
		return nil, llms.Wrap(llms.ErrTransport, err, "request failed")
	}
	defer func() { _ = r.Body.Close() }()

	if r.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(r)
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, llms.Wrap(llms.ErrTransport, err, "failed to read body")
	}

	var resp responses.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, llms.Wrap(llms.ErrResponseParse, err, "failed to decode response")
	}
	return &resp, nil
}
