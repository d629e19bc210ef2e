// Package ollamaclient implements the raw HTTP interface of a local
// Ollama runner. Requests go to /api/chat; streaming replies arrive as
// newline-delimited JSON objects.
package ollamaclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmconn/pkg/llms"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/llmconn", "ollamaclient")

const (
	// DefaultHost is the address of a locally running Ollama server.
	DefaultHost = "http://localhost:11434"
)

// Doer performs an HTTP request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is an Ollama API client. The runner is local and unauthenticated.
type Client struct {
	base       *url.URL
	httpClient Doer
}

// New creates a client for the runner at the given host URL.
func New(host string, httpClient Doer) (*Client, error) {
	if host == "" {
		host = DefaultHost
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid host URL: %q", host)
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 5 * time.Minute,
		}
	}
	return &Client{
		base:       base,
		httpClient: httpClient,
	}, nil
}

// Message is one chat message in the request payload.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Images    []string   `json:"images,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a tool invocation. Ollama sends function arguments as a
// JSON object rather than an encoded string.
type ToolCall struct {
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction is the function name and arguments of a tool call.
type ToolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Tool is a tool definition in the request payload.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes a callable function.
type ToolFunction struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

// Options are the model sampling parameters.
type Options struct {
	Temperature   float64  `json:"temperature,omitempty"`
	NumPredict    int      `json:"num_predict,omitempty"`
	Stop          []string `json:"stop,omitempty"`
	Seed          int      `json:"seed,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
	TopP          float64  `json:"top_p,omitempty"`
	RepeatPenalty float64  `json:"repeat_penalty,omitempty"`
}

// ChatRequest is the /api/chat payload.
type ChatRequest struct {
	Model     string     `json:"model"`
	Messages  []*Message `json:"messages"`
	Stream    bool       `json:"stream"`
	Format    string     `json:"format,omitempty"`
	Tools     []Tool     `json:"tools,omitempty"`
	Options   *Options   `json:"options,omitempty"`
	KeepAlive string     `json:"keep_alive,omitempty"`

	// StreamingFunc is called for each content chunk of a streaming
	// response; it is not part of the wire payload.
	StreamingFunc func(ctx context.Context, chunk []byte) error `json:"-"`
}

// ChatResponse is one /api/chat reply object. In streaming mode every
// line is a ChatResponse; the final one has Done set and carries the
// token counts.
type ChatResponse struct {
	Model           string  `json:"model"`
	CreatedAt       string  `json:"created_at"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	DoneReason      string  `json:"done_reason,omitempty"`
	PromptEvalCount int     `json:"prompt_eval_count,omitempty"`
	EvalCount       int     `json:"eval_count,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Chat sends a chat request, streaming when a StreamingFunc is set.
func (c *Client) Chat(ctx context.Context, r *ChatRequest) (*ChatResponse, error) {
	r.Stream = r.StreamingFunc != nil

	body, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal payload")
	}

	u := c.base.JoinPath("/api/chat").String()
	logger.ContextKV(ctx, xlog.DEBUG, "url", u, "model", r.Model, "stream", r.Stream)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, llms.Wrap(llms.ErrTransport, err, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp)
	}

	if r.Stream {
		return parseStream(ctx, resp, r.StreamingFunc)
	}

	var response ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, llms.Wrap(llms.ErrResponseParse, err, "failed to decode response")
	}
	return &response, nil
}

func errorFromResponse(resp *http.Response) error {
	err := llms.ErrorFromStatusCode(resp.StatusCode)
	var errResp errorResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr == nil && errResp.Error != "" {
		if strings.Contains(errResp.Error, "not found") {
			return errors.WithMessage(llms.ErrUnsupportedModel, errResp.Error)
		}
		return errors.WithMessage(err, errResp.Error)
	}
	return err
}

// parseStream assembles the full response from NDJSON lines, invoking
// streamingFunc for each content delta.
func parseStream(ctx context.Context, resp *http.Response, streamingFunc func(ctx context.Context, chunk []byte) error) (*ChatResponse, error) {
	var content strings.Builder
	var final ChatResponse
	done := false

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return nil, llms.Wrap(llms.ErrResponseParse, err, "failed to decode stream chunk")
		}
		if chunk.Message.Content != "" {
			content.WriteString(chunk.Message.Content)
			if streamingFunc != nil {
				if err := streamingFunc(ctx, []byte(chunk.Message.Content)); err != nil {
					return nil, errors.Wrap(err, "streaming aborted")
				}
			}
		}
		if len(chunk.Message.ToolCalls) > 0 {
			final.Message.ToolCalls = append(final.Message.ToolCalls, chunk.Message.ToolCalls...)
		}
		if chunk.Done {
			done = true
			final.Model = chunk.Model
			final.DoneReason = chunk.DoneReason
			final.PromptEvalCount = chunk.PromptEvalCount
			final.EvalCount = chunk.EvalCount
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, llms.Wrap(llms.ErrTransport, err, "failed to read stream")
	}
	if !done {
		return nil, errors.WithMessage(llms.ErrResponseParse, "truncated stream")
	}

	final.Done = true
	final.Message.Role = "assistant"
	final.Message.Content = content.String()
	return &final, nil
}
