package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmconn/pkg/llms"
	"github.com/effective-security/llmconn/pkg/metricskey"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
	"github.com/tidwall/sjson"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/llmconn", "connection")

// Mode selects the wire mode of a connection.
type Mode int

const (
	// ModeUnary issues one request and reads one JSON document.
	ModeUnary Mode = iota
	// ModeStream issues one request and reads a JSON-lines stream.
	ModeStream
)

// Doer performs a HTTP request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Message is one wire-level chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the typed input of one call. It is treated as immutable
// once submitted: the connection snapshots the payload before the wire
// call, so later mutation by the caller cannot affect an in-flight
// request.
type Request struct {
	// Model is the model identifier; must be on the connection's
	// allow-list when one is configured.
	Model string `json:"model"`
	// Messages is the prompt payload.
	Messages []Message `json:"messages"`
	// Temperature for sampling; zero is a valid value and is sent as-is.
	Temperature float64 `json:"temperature"`
	// MaxTokens caps generation; zero falls back to the connection default.
	MaxTokens int `json:"max_tokens,omitempty"`
	// Stop lists stop sequences.
	Stop []string `json:"stop,omitempty"`
}

// Response is the normalized result of one call, fully materialized
// before it is returned.
type Response struct {
	// Text is the generated text.
	Text string `json:"text"`
	// ToolCalls is structured tool-call data, when the model requests
	// tool invocations instead of (or besides) text.
	ToolCalls []llms.ToolCall `json:"tool_calls,omitempty"`
	// Usage is the token accounting for the call; always non-negative.
	Usage llms.Usage `json:"usage"`
}

type wireUsage struct {
	Tokens           int `json:"tokens"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// wireToolCall is the OpenAI-style tool call object on the wire;
// llms.ToolCall itself marshals to a tagged envelope form.
type wireToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function *llms.FunctionCall `json:"function,omitempty"`
}

type wireResponse struct {
	Text      string         `json:"text"`
	ToolCalls []wireToolCall `json:"tool_calls"`
	Usage     wireUsage      `json:"usage"`
	Error     string         `json:"error"`
}

type wireChunk struct {
	Text  string     `json:"text"`
	Done  bool       `json:"done"`
	Usage *wireUsage `json:"usage"`
}

// Connection is a stateless request/response adapter for one remote
// model endpoint. All fields are read-only after construction; concurrent
// calls are independent.
type Connection struct {
	provider llms.ProviderType
	endpoint string
	auth     TokenProvider
	client   Doer
	mode     Mode

	authHeader string
	authPrefix string
	models     []string
	defaults   Defaults
}

// Defaults are generation parameters applied when a request leaves them
// unset.
type Defaults struct {
	MaxTokens int
	Stop      []string
}

// Option configures a Connection.
type Option func(*Connection)

// WithHTTPClient sets the transport collaborator. Layer WithRetries here
// to get retry behavior; the connection itself never retries.
func WithHTTPClient(client Doer) Option {
	return func(c *Connection) {
		c.client = client
	}
}

// WithMode selects streaming or unary wire mode for Generate.
func WithMode(mode Mode) Option {
	return func(c *Connection) {
		c.mode = mode
	}
}

// WithAuthHeader overrides the header the credential is sent in. The
// default is "Authorization" with a "Bearer " prefix.
func WithAuthHeader(header, prefix string) Option {
	return func(c *Connection) {
		c.authHeader = header
		c.authPrefix = prefix
	}
}

// WithModels sets the allow-list of recognized models. Requests naming
// any other model fail with an unsupported-model error before any
// network call.
func WithModels(models ...string) Option {
	return func(c *Connection) {
		c.models = models
	}
}

// WithDefaults sets default generation parameters.
func WithDefaults(d Defaults) Option {
	return func(c *Connection) {
		c.defaults = d
	}
}

// New creates a connection to the given endpoint URL using the supplied
// auth provider.
func New(provider llms.ProviderType, endpoint string, auth TokenProvider, opts ...Option) (*Connection, error) {
	if endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if auth == nil {
		return nil, errors.New("token provider is required")
	}
	c := &Connection{
		provider:   provider,
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		auth:       auth,
		client:     http.DefaultClient,
		authHeader: "Authorization",
		authPrefix: "Bearer ",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ProviderType returns the provider this connection talks to.
func (c *Connection) ProviderType() llms.ProviderType {
	return c.provider
}

// Send issues exactly one outbound call and returns the fully
// materialized response.
func (c *Connection) Send(ctx context.Context, r *Request) (*Response, error) {
	return c.send(ctx, r, false, nil)
}

// SendStream issues exactly one outbound call in streaming mode. The
// endpoint replies with a JSON-lines stream; streamFunc is called for
// each text chunk as it arrives. The concatenation of chunks equals the
// Text of the returned response. Returning an error from streamFunc, or
// cancelling ctx, aborts the call and discards partial data.
func (c *Connection) SendStream(ctx context.Context, r *Request, streamFunc func(ctx context.Context, chunk []byte) error) (*Response, error) {
	return c.send(ctx, r, true, streamFunc)
}

// Generate dispatches on the mode selected at construction: stream-mode
// connections stream, unary ones do not. streamFunc may be nil for
// unary connections.
func (c *Connection) Generate(ctx context.Context, r *Request, streamFunc func(ctx context.Context, chunk []byte) error) (*Response, error) {
	if c.mode == ModeStream {
		return c.SendStream(ctx, r, streamFunc)
	}
	return c.Send(ctx, r)
}

func (c *Connection) send(ctx context.Context, r *Request, stream bool, streamFunc func(ctx context.Context, chunk []byte) error) (*Response, error) {
	model := r.Model
	if len(c.models) > 0 && !slices.Contains(c.models, model) {
		return nil, errors.WithMessagef(llms.ErrUnsupportedModel, "%q", model)
	}

	// Snapshot the payload before the wire call; the request cannot be
	// mutated from under us afterwards.
	body, err := c.buildPayload(r, stream)
	if err != nil {
		return nil, err
	}

	reqID := uuid.NewString()
	started := time.Now()
	logger.ContextKV(ctx, xlog.DEBUG,
		"req_id", reqID,
		"provider", c.provider,
		"model", model,
		"stream", stream,
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", reqID)

	creds, err := c.auth.Token(ctx)
	if err != nil {
		return nil, llms.Wrap(llms.ErrAuthentication, err, "failed to acquire credentials")
	}
	if creds.Token != "" {
		httpReq.Header.Set(c.authHeader, c.authPrefix+creds.Token)
	}

	metricskey.StatsConnRequestsSent.IncrCounter(1, string(c.provider), model)
	metricskey.StatsConnBytesSent.IncrCounter(float64(len(body)), string(c.provider), model)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		metricskey.StatsConnRequestsFailed.IncrCounter(1, string(c.provider), model)
		return nil, llms.Wrap(llms.ErrTransport, err, "request failed")
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		metricskey.StatsConnRequestsFailed.IncrCounter(1, string(c.provider), model)
		return nil, c.errorFromResponse(httpResp)
	}

	var resp *Response
	if stream {
		resp, err = c.parseStream(ctx, httpResp.Body, model, streamFunc)
	} else {
		resp, err = c.parseUnary(httpResp.Body, model)
	}
	if err != nil {
		metricskey.StatsConnRequestsFailed.IncrCounter(1, string(c.provider), model)
		return nil, err
	}

	resp.Usage.Clamp()
	metricskey.StatsLLMInputTokens.IncrCounter(float64(resp.Usage.PromptTokens), string(c.provider), model)
	metricskey.StatsLLMOutputTokens.IncrCounter(float64(resp.Usage.CompletionTokens), string(c.provider), model)
	metricskey.StatsLLMTotalTokens.IncrCounter(float64(resp.Usage.TotalTokens), string(c.provider), model)
	metricskey.PerfConnSend.MeasureSince(started, string(c.provider), model)

	return resp, nil
}

// buildPayload marshals the request and patches in connection defaults
// for parameters the request left unset.
func (c *Connection) buildPayload(r *Request, stream bool) ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}
	if r.MaxTokens == 0 && c.defaults.MaxTokens > 0 {
		body, err = sjson.SetBytes(body, "max_tokens", c.defaults.MaxTokens)
		if err != nil {
			return nil, errors.Wrap(err, "failed to apply default max_tokens")
		}
	}
	if len(r.Stop) == 0 && len(c.defaults.Stop) > 0 {
		body, err = sjson.SetBytes(body, "stop", c.defaults.Stop)
		if err != nil {
			return nil, errors.Wrap(err, "failed to apply default stop")
		}
	}
	if stream {
		body, err = sjson.SetBytes(body, "stream", true)
		if err != nil {
			return nil, errors.Wrap(err, "failed to set stream flag")
		}
	}
	return body, nil
}

func (c *Connection) errorFromResponse(httpResp *http.Response) error {
	err := llms.ErrorFromStatusCode(httpResp.StatusCode)
	var werr wireResponse
	if decodeErr := json.NewDecoder(httpResp.Body).Decode(&werr); decodeErr == nil && werr.Error != "" {
		return errors.WithMessage(err, werr.Error)
	}
	return err
}

func (c *Connection) parseUnary(body io.Reader, model string) (*Response, error) {
	bs, err := io.ReadAll(body)
	if err != nil {
		return nil, llms.Wrap(llms.ErrTransport, err, "failed to read body")
	}
	metricskey.StatsConnBytesReceived.IncrCounter(float64(len(bs)), string(c.provider), model)
	var wr wireResponse
	if err := json.Unmarshal(bs, &wr); err != nil {
		return nil, llms.Wrap(llms.ErrResponseParse, err, "failed to decode response")
	}
	resp := &Response{
		Text:  wr.Text,
		Usage: wr.Usage.normalize(),
	}
	for _, tc := range wr.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, llms.ToolCall{
			ID:           tc.ID,
			Type:         tc.Type,
			FunctionCall: tc.Function,
		})
	}
	return resp, nil
}

func (c *Connection) parseStream(ctx context.Context, body io.Reader, model string, streamFunc func(ctx context.Context, chunk []byte) error) (*Response, error) {
	var text strings.Builder
	var usage llms.Usage
	received := 0

	dec := json.NewDecoder(body)
	done := false
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return nil, llms.Wrap(llms.ErrTransport, err, "stream aborted")
		}
		var chunk wireChunk
		if err := dec.Decode(&chunk); err != nil {
			return nil, llms.Wrap(llms.ErrResponseParse, err, "failed to decode chunk")
		}
		received++
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
			if streamFunc != nil {
				if err := streamFunc(ctx, []byte(chunk.Text)); err != nil {
					return nil, errors.Wrap(err, "streaming aborted")
				}
			}
		}
		if chunk.Usage != nil {
			usage.Add(chunk.Usage.normalize())
		}
		if chunk.Done {
			done = true
			break
		}
	}
	if received == 0 || !done {
		return nil, errors.WithMessage(llms.ErrResponseParse, "truncated stream")
	}
	metricskey.StatsConnBytesReceived.IncrCounter(float64(dec.InputOffset()), string(c.provider), model)
	return &Response{
		Text:  text.String(),
		Usage: usage,
	}, nil
}

func (u wireUsage) normalize() llms.Usage {
	total := u.Tokens
	if total == 0 {
		total = u.PromptTokens + u.CompletionTokens
	}
	res := llms.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      total,
	}
	res.Clamp()
	return res
}
