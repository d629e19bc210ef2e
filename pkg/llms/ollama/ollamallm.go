// Package ollama provides a chat model backed by a locally running
// Ollama server.
package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmconn/pkg/llms"
	"github.com/effective-security/llmconn/pkg/llms/ollama/internal/ollamaclient"
	"github.com/google/uuid"
)

const (
	RoleSystem    = "system"
	RoleAssistant = "assistant"
	RoleUser      = "user"
	RoleTool      = "tool"
)

// LLM is an Ollama chat model client.
type LLM struct {
	client *ollamaclient.Client
	model  string
	format string
}

var _ llms.Model = (*LLM)(nil)

// New returns a new Ollama LLM.
func New(opts ...Option) (*LLM, error) {
	o := applyOptions(opts...)
	c, err := ollamaclient.New(o.host, o.httpClient)
	if err != nil {
		return nil, err
	}
	return &LLM{
		client: c,
		model:  o.model,
		format: o.format,
	}, nil
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderOllama
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{
		Model: o.model,
	}
	for _, opt := range options {
		opt(&opts)
	}

	chatMsgs := make([]*ollamaclient.Message, 0, len(messages))
	for _, mc := range messages {
		msg, err := chatMessage(mc)
		if err != nil {
			return nil, err
		}
		chatMsgs = append(chatMsgs, msg)
	}

	req := &ollamaclient.ChatRequest{
		Model:         opts.Model,
		Messages:      chatMsgs,
		Format:        o.format,
		StreamingFunc: opts.StreamingFunc,
		Options: &ollamaclient.Options{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
			Stop:        opts.StopWords,
			Seed:        opts.Seed,
			TopK:        opts.TopK,
			TopP:        opts.TopP,
		},
	}
	for _, tool := range opts.Tools {
		req.Tools = append(req.Tools, ollamaclient.Tool{
			Type: "function",
			Function: ollamaclient.ToolFunction{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		})
	}

	resp, err := o.client.Chat(ctx, req)
	if err != nil {
		return nil, err
	}

	choice := &llms.ContentChoice{
		Content:    resp.Message.Content,
		StopReason: resp.DoneReason,
		GenerationInfo: map[string]any{
			"CompletionTokens": resp.EvalCount,
			"PromptTokens":     resp.PromptEvalCount,
			"TotalTokens":      resp.PromptEvalCount + resp.EvalCount,
		},
	}
	for _, tc := range resp.Message.ToolCalls {
		choice.ToolCalls = append(choice.ToolCalls, llms.ToolCall{
			ID:   "call_" + uuid.NewString(),
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: string(tc.Function.Arguments),
			},
		})
	}
	if len(choice.ToolCalls) > 0 {
		choice.FuncCall = choice.ToolCalls[0].FunctionCall
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{choice},
		Usage: llms.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}, nil
}

// chatMessage flattens message parts into the runner's wire form: text
// parts concatenate, binary image parts become base64 images.
func chatMessage(mc llms.Message) (*ollamaclient.Message, error) {
	msg := &ollamaclient.Message{}
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
		msg.Content = p.Content
		return msg, nil
	default:
		return nil, errors.WithMessagef(llms.ErrUnexpectedRole, "role %v not supported", mc.Role)
	}

	var text strings.Builder
	for _, part := range mc.Parts {
		switch p := part.(type) {
		case llms.TextContent:
			text.WriteString(p.Text)
		case llms.BinaryContent:
			msg.Images = append(msg.Images, base64.StdEncoding.EncodeToString(p.Data))
		case llms.ToolCall:
			args := json.RawMessage(p.FunctionCall.Arguments)
			if !json.Valid(args) {
				return nil, errors.WithMessagef(llms.ErrResponseParse, "invalid tool call arguments for %q", p.FunctionCall.Name)
			}
			msg.ToolCalls = append(msg.ToolCalls, ollamaclient.ToolCall{
				Function: ollamaclient.ToolCallFunction{
					Name:      p.FunctionCall.Name,
					Arguments: args,
				},
			})
		default:
			return nil, errors.Errorf("content part %T not supported", part)
		}
	}
	msg.Content = text.String()
	return msg, nil
}
