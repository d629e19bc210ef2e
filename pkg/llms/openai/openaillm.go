package openai

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmconn/pkg/llms"
	"github.com/effective-security/llmconn/pkg/llms/openai/internal/openaiclient"
	"github.com/openai/openai-go/v3/responses"
)

const (
	RoleSystem    = "system"
	RoleAssistant = "assistant"
	RoleUser      = "user"
	RoleTool      = "tool"
)

// LLM is an OpenAI chat model client.
type LLM struct {
	client *openaiclient.Client
}

var _ llms.Model = (*LLM)(nil)

// New returns a new OpenAI LLM.
func New(opts ...Option) (*LLM, error) {
	_, c, err := newClient(opts...)
	if err != nil {
		return nil, err
	}
	return &LLM{
		client: c,
	}, nil
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderType(o.client.Provider)
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	chatMsgs := make([]*openaiclient.ChatMessage, 0, len(messages))
	for _, mc := range messages {
		msg, err := chatMessage(mc)
		if err != nil {
			return nil, err
		}
		chatMsgs = append(chatMsgs, msg)
	}

	req := &openaiclient.ChatRequest{
		Model:               opts.Model,
		Messages:            chatMsgs,
		StopWords:           opts.StopWords,
		StreamingFunc:       opts.StreamingFunc,
		Temperature:         opts.Temperature,
		TopP:                opts.TopP,
		N:                   opts.N,
		FrequencyPenalty:    opts.FrequencyPenalty,
		PresencePenalty:     opts.PresencePenalty,
		MaxCompletionTokens: opts.MaxTokens,
		ToolChoice:          opts.ToolChoice,
		Seed:                opts.Seed,
		Metadata:            opts.Metadata,
		ResponseFormat:      opts.ResponseFormat,
	}

	for _, tool := range opts.Tools {
		t, err := toolFromTool(tool)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to convert tool")
		}
		req.Tools = append(req.Tools, t)
	}

	if req.ResponseFormat == nil && o.client.ResponseFormat != nil {
		req.ResponseFormat = o.client.ResponseFormat
	}

	applyPromptCacheToChatRequest(req, o.client.Provider, &opts)

	result, err := o.client.CreateChat(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(result.Choices) == 0 {
		return nil, errors.WithStack(llms.ErrEmptyResponse)
	}

	choices := make([]*llms.ContentChoice, len(result.Choices))
	for i, c := range result.Choices {
		choices[i] = &llms.ContentChoice{
			Content:          c.Message.Content,
			ReasoningContent: c.Message.ReasoningContent,
			StopReason:       c.FinishReason,
			GenerationInfo: map[string]any{
				"CompletionTokens": result.Usage.CompletionTokens,
				"PromptTokens":     result.Usage.PromptTokens,
				"TotalTokens":      result.Usage.TotalTokens,
				"ReasoningTokens":  result.Usage.CompletionTokensDetails.ReasoningTokens,
			},
		}
		for _, tool := range c.Message.ToolCalls {
			choices[i].ToolCalls = append(choices[i].ToolCalls, llms.ToolCall{
				ID:   tool.ID,
				Type: string(tool.Type),
				FunctionCall: &llms.FunctionCall{
					Name:      tool.Function.Name,
					Arguments: tool.Function.Arguments,
				},
			})
		}
		if len(choices[i].ToolCalls) > 0 {
			choices[i].FuncCall = choices[i].ToolCalls[0].FunctionCall
		}
	}

	return &llms.ContentResponse{
		Choices: choices,
		Usage: llms.Usage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		},
	}, nil
}

// CreateEmbedding creates embeddings for the given input texts.
func (o *LLM) CreateEmbedding(ctx context.Context, inputTexts []string) ([][]float32, error) {
	return o.client.CreateEmbedding(ctx, inputTexts)
}

// CreateResponse calls the OpenAI Responses API with the given params.
// Call options are applied to request-level fields such as prompt caching.
func (o *LLM) CreateResponse(ctx context.Context, params *responses.ResponseNewParams, options ...llms.CallOption) (*responses.Response, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	applyPromptCacheToResponsesRequest(params, o.client.Provider, &opts)
	return o.client.CreateResponse(ctx, params)
}

// chatMessage converts a message to the chat completion wire form.
func chatMessage(mc llms.Message) (*openaiclient.ChatMessage, error) {
	msg := &openaiclient.ChatMessage{}
	switch mc.Role {
	case llms.RoleSystem:
		msg.Role = RoleSystem
	case llms.RoleAI:
		msg.Role = RoleAssistant
	case llms.RoleHuman, llms.RoleGeneric:
		msg.Role = RoleUser
	case llms.RoleTool:
		msg.Role = RoleTool
		if len(mc.Parts) != 1 {
			return nil, errors.Errorf("expected exactly one part for role %v, got %d", mc.Role, len(mc.Parts))
		}
		p, ok := mc.Parts[0].(llms.ToolCallResponse)
		if !ok {
			return nil, errors.Errorf("expected part of type ToolCallResponse for role %v, got %T", mc.Role, mc.Parts[0])
		}
		msg.ToolCallID = p.ToolCallID
		msg.Content = p.Content
		return msg, nil
	default:
		return nil, errors.WithMessagef(llms.ErrUnexpectedRole, "role %v not supported", mc.Role)
	}

	content, toolCalls, err := splitParts(mc.Parts)
	if err != nil {
		return nil, err
	}
	msg.Content = content
	msg.ToolCalls = toolCallsFromToolCalls(toolCalls)
	return msg, nil
}

// splitParts separates content parts from tool calls. A single text part
// is sent as a plain string, anything else as a content part array.
func splitParts(parts []llms.ContentPart) (any, []llms.ToolCall, error) {
	var content []openaiclient.ContentPart
	var toolCalls []llms.ToolCall
	textOnly := true
	for _, part := range parts {
		switch p := part.(type) {
		case llms.TextContent:
			content = append(content, openaiclient.ContentPart{Type: "text", Text: p.Text})
		case llms.ImageURLContent:
			textOnly = false
			content = append(content, openaiclient.ContentPart{
				Type:     "image_url",
				ImageURL: &openaiclient.ImageURL{URL: p.URL, Detail: p.Detail},
			})
		case llms.ToolCall:
			toolCalls = append(toolCalls, p)
		default:
			return nil, nil, errors.Errorf("content part %T not supported", part)
		}
	}
	if len(content) == 0 {
		return nil, toolCalls, nil
	}
	if textOnly && len(content) == 1 {
		return content[0].Text, toolCalls, nil
	}
	return content, toolCalls, nil
}

// toolFromTool converts an llms.Tool to the wire form.
func toolFromTool(t llms.Tool) (openaiclient.Tool, error) {
	if t.Type != string(openaiclient.ToolTypeFunction) {
		return openaiclient.Tool{}, errors.Errorf("tool type %v not supported", t.Type)
	}
	return openaiclient.Tool{
		Type: openaiclient.ToolTypeFunction,
		Function: openaiclient.FunctionDefinition{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
			Strict:      t.Function.Strict,
		},
	}, nil
}

func toolCallsFromToolCalls(tcs []llms.ToolCall) []openaiclient.ToolCall {
	if len(tcs) == 0 {
		return nil
	}
	toolCalls := make([]openaiclient.ToolCall, len(tcs))
	for i, tc := range tcs {
		toolCalls[i] = openaiclient.ToolCall{
			ID:   tc.ID,
			Type: openaiclient.ToolType(tc.Type),
			Function: openaiclient.ToolFunction{
				Name:      tc.FunctionCall.Name,
				Arguments: tc.FunctionCall.Arguments,
			},
		}
	}
	return toolCalls
}
