package openaiclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmconn/pkg/llms"
	"github.com/effective-security/llmconn/pkg/schema"
	"github.com/effective-security/xlog"
	"github.com/invopop/jsonschema"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/llmconn", "openaiclient")

// ChatMessage is one message in a chat completion request.
type ChatMessage struct {
	Role string `json:"role"`
	// Content is a string or a list of content parts.
	Content any `json:"content,omitempty"`
	// ToolCalls are the calls the assistant asked for in a prior turn.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID identifies the call a tool-role message responds to.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

// ContentPart is one element of a multi-part message content.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL points to an image, optionally with a detail hint.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// Tool is a tool definition in the request payload.
type Tool struct {
	Type     ToolType           `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a callable function.
type FunctionDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
	Strict      bool               `json:"strict,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     ToolType     `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the function name and arguments of a tool call.
type ToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatRequest is the chat completions payload.
type ChatRequest struct {
	Model               string         `json:"model"`
	Messages            []*ChatMessage `json:"messages"`
	Temperature         float64        `json:"temperature,omitempty"`
	TopP                float64        `json:"top_p,omitempty"`
	N                   int            `json:"n,omitempty"`
	StopWords           []string       `json:"stop,omitempty"`
	MaxCompletionTokens int            `json:"max_completion_tokens,omitempty"`
	Seed                int            `json:"seed,omitempty"`
	FrequencyPenalty    float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty     float64        `json:"presence_penalty,omitempty"`

	Tools      []Tool `json:"tools,omitempty"`
	ToolChoice any    `json:"tool_choice,omitempty"`

	Metadata       map[string]any         `json:"metadata,omitempty"`
	ResponseFormat *schema.ResponseFormat `json:"response_format,omitempty"`

	PromptCacheKey       string `json:"prompt_cache_key,omitempty"`
	PromptCacheRetention string `json:"prompt_cache_retention,omitempty"`

	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`

	// StreamingFunc is called for each content chunk of a streaming
	// response; it is not part of the wire payload.
	StreamingFunc func(ctx context.Context, chunk []byte) error `json:"-"`
}

// StreamOptions configures streaming delivery.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// ChatResponseMessage is the assistant message in a response choice.
type ChatResponseMessage struct {
	Role             string     `json:"role"`
	Content          string     `json:"content"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
}

// ChatCompletionChoice is one response choice.
type ChatCompletionChoice struct {
	Index        int                 `json:"index"`
	Message      ChatResponseMessage `json:"message"`
	FinishReason string              `json:"finish_reason"`
}

// Usage is the token accounting of a chat completion.
type Usage struct {
	PromptTokens            int `json:"prompt_tokens"`
	CompletionTokens        int `json:"completion_tokens"`
	TotalTokens             int `json:"total_tokens"`
	CompletionTokensDetails struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"completion_tokens_details"`
}

// ChatCompletionResponse is the chat completions reply.
type ChatCompletionResponse struct {
	ID      string                  `json:"id"`
	Model   string                  `json:"model"`
	Choices []*ChatCompletionChoice `json:"choices"`
	Usage   Usage                   `json:"usage"`
}

type streamDelta struct {
	Role             string     `json:"role"`
	Content          string     `json:"content"`
	ReasoningContent string     `json:"reasoning_content"`
	ToolCalls        []ToolCall `json:"tool_calls"`
}

type streamChoice struct {
	Index        int         `json:"index"`
	Delta        streamDelta `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

type streamChunk struct {
	Choices []streamChoice `json:"choices"`
	Usage   *Usage         `json:"usage"`
}

func (c *Client) createChat(ctx context.Context, payload *ChatRequest) (*ChatCompletionResponse, error) {
	if payload.StreamingFunc != nil {
		payload.Stream = true
		payload.StreamOptions = &StreamOptions{IncludeUsage: true}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal payload")
	}

	u := c.buildURL("/chat/completions", payload.Model)
	logger.ContextKV(ctx, xlog.DEBUG, "url", u, "model", payload.Model, "stream", payload.Stream)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, llms.Wrap(llms.ErrTransport, err, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(resp)
	}

	if payload.Stream {
		return parseStreamingChat(ctx, resp, payload.StreamingFunc)
	}

	var response ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, llms.Wrap(llms.ErrResponseParse, err, "failed to decode response")
	}
	return &response, nil
}

// parseStreamingChat assembles a full ChatCompletionResponse from an SSE
// stream, invoking streamingFunc for each content delta.
func parseStreamingChat(ctx context.Context, resp *http.Response, streamingFunc func(ctx context.Context, chunk []byte) error) (*ChatCompletionResponse, error) {
	var content strings.Builder
	var reasoning strings.Builder
	var toolCalls []ToolCall
	var finishReason string
	var usage Usage

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, llms.Wrap(llms.ErrResponseParse, err, "failed to decode stream chunk")
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		for _, choice := range chunk.Choices {
			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}
			delta := choice.Delta
			if delta.ReasoningContent != "" {
				reasoning.WriteString(delta.ReasoningContent)
			}
			if delta.Content != "" {
				content.WriteString(delta.Content)
				if streamingFunc != nil {
					if err := streamingFunc(ctx, []byte(delta.Content)); err != nil {
						return nil, errors.Wrap(err, "streaming aborted")
					}
				}
			}
			toolCalls = mergeToolCallDeltas(toolCalls, delta.ToolCalls)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, llms.Wrap(llms.ErrTransport, err, "failed to read stream")
	}

	return &ChatCompletionResponse{
		Choices: []*ChatCompletionChoice{
			{
				Message: ChatResponseMessage{
					Role:             "assistant",
					Content:          content.String(),
					ReasoningContent: reasoning.String(),
					ToolCalls:        toolCalls,
				},
				FinishReason: finishReason,
			},
		},
		Usage: usage,
	}, nil
}

// mergeToolCallDeltas accumulates partial tool calls: the first delta of
// a call carries the ID and name, later deltas append argument fragments.
func mergeToolCallDeltas(acc []ToolCall, deltas []ToolCall) []ToolCall {
	for _, d := range deltas {
		if d.ID != "" {
			acc = append(acc, d)
			continue
		}
		if len(acc) > 0 {
			acc[len(acc)-1].Function.Arguments += d.Function.Arguments
		}
	}
	return acc
}
