package bedrockclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmconn/pkg/llms"
)

// Ref: https://docs.aws.amazon.com/bedrock/latest/userguide/model-parameters-anthropic-claude-messages.html

// anthropicBinGenerationInputSource is the source of binary content.
type anthropicBinGenerationInputSource struct {
	// One of: "base64"
	Type string `json:"type"`
	// One of: "image/jpeg", "image/png", "image/gif", "image/webp"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// anthropicTextGenerationInputContent is a single content block in the input.
type anthropicTextGenerationInputContent struct {
	// One of: "text", "image", "tool_use", "tool_result"
	Type string `json:"type"`
	// Source is required if type is "image".
	Source *anthropicBinGenerationInputSource `json:"source,omitempty"`
	// Text is required if type is "text".
	Text string `json:"text,omitempty"`
	// Tool use fields.
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input any    `json:"input,omitempty"`
	// Tool result fields.
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type anthropicTextGenerationInputMessage struct {
	// One of: "user", "assistant". The system prompt goes in the top
	// level system field.
	Role    string                                `json:"role"`
	Content []anthropicTextGenerationInputContent `json:"content"`
}

type anthropicTool struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	InputSchema anthropicInputSchema `json:"input_schema"`
}

type anthropicInputSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Required   []string       `json:"required,omitempty"`
}

// anthropicTextGenerationInput is the invoke request body.
type anthropicTextGenerationInput struct {
	AnthropicVersion string                                 `json:"anthropic_version"`
	MaxTokens        int                                    `json:"max_tokens"`
	System           string                                 `json:"system,omitempty"`
	Messages         []*anthropicTextGenerationInputMessage `json:"messages"`
	Temperature      float64                                `json:"temperature,omitempty"`
	TopP             float64                                `json:"top_p,omitempty"`
	TopK             int                                    `json:"top_k,omitempty"`
	StopSequences    []string                               `json:"stop_sequences,omitempty"`
	Tools            []anthropicTool                        `json:"tools,omitempty"`
}

type anthropicTextGenerationOutputContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	// Tool use fields.
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input any    `json:"input,omitempty"`
}

// anthropicTextGenerationOutput is the invoke response body.
type anthropicTextGenerationOutput struct {
	Type string `json:"type"`
	Role string `json:"role"`
	// Content blocks of type "text" or "tool_use".
	Content      []anthropicTextGenerationOutputContent `json:"content"`
	StopReason   string                                 `json:"stop_reason"`
	StopSequence string                                 `json:"stop_sequence"`
	Usage        struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Finish reasons reported by the model.
const (
	AnthropicCompletionReasonEndTurn      = "end_turn"
	AnthropicCompletionReasonMaxTokens    = "max_tokens"
	AnthropicCompletionReasonStopSequence = "stop_sequence"
	AnthropicCompletionReasonToolUse      = "tool_use"
)

const (
	AnthropicLatestVersion = "bedrock-2023-05-31"
)

// Role attribute for the anthropic message.
const (
	AnthropicSystem        = "system"
	AnthropicRoleUser      = "user"
	AnthropicRoleAssistant = "assistant"
)

func createAnthropicCompletion(ctx context.Context,
	client *bedrockruntime.Client,
	modelID string,
	messages []Message,
	options llms.CallOptions,
) (*llms.ContentResponse, error) {
	inputContents, systemPrompt, err := processInputMessagesAnthropic(messages)
	if err != nil {
		return nil, err
	}

	var tools []anthropicTool
	if len(options.Tools) > 0 {
		tools = make([]anthropicTool, len(options.Tools))
		for i, tool := range options.Tools {
			var properties map[string]any
			if tool.Function.Parameters != nil && tool.Function.Parameters.Properties != nil {
				properties = make(map[string]any)
				for pair := tool.Function.Parameters.Properties.Oldest(); pair != nil; pair = pair.Next() {
					properties[pair.Key] = pair.Value
				}
			}

			var required []string
			if tool.Function.Parameters != nil {
				required = tool.Function.Parameters.Required
			}
			tools[i] = anthropicTool{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				InputSchema: anthropicInputSchema{
					Type:       "object",
					Properties: properties,
					Required:   required,
				},
			}
		}
	}

	input := anthropicTextGenerationInput{
		AnthropicVersion: AnthropicLatestVersion,
		MaxTokens:        getMaxTokens(options.MaxTokens, 2048),
		System:           systemPrompt,
		Messages:         inputContents,
		Temperature:      options.Temperature,
		TopP:             options.TopP,
		TopK:             options.TopK,
		StopSequences:    options.StopWords,
		Tools:            tools,
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if options.StreamingFunc != nil {
		modelInput := &bedrockruntime.InvokeModelWithResponseStreamInput{
			ModelId:     aws.String(modelID),
			Accept:      aws.String("*/*"),
			ContentType: aws.String("application/json"),
			Body:        body,
		}
		return parseStreamingCompletionResponse(ctx, client, modelInput, options)
	}

	modelInput := &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Accept:      aws.String("*/*"),
		ContentType: aws.String("application/json"),
		Body:        body,
	}
	resp, err := client.InvokeModel(ctx, modelInput)
	if err != nil {
		return nil, llms.Wrap(llms.ErrTransport, err, "failed to invoke model")
	}

	var output anthropicTextGenerationOutput
	err = json.Unmarshal(resp.Body, &output)
	if err != nil {
		return nil, llms.Wrap(llms.ErrResponseParse, err, "failed to decode response")
	}

	if len(output.Content) == 0 {
		return nil, errors.WithStack(llms.ErrEmptyResponse)
	}

	usage := llms.Usage{
		PromptTokens:     output.Usage.InputTokens,
		CompletionTokens: output.Usage.OutputTokens,
		TotalTokens:      output.Usage.InputTokens + output.Usage.OutputTokens,
	}
	generationInfo := map[string]any{
		"InputTokens":  output.Usage.InputTokens,
		"OutputTokens": output.Usage.OutputTokens,
		"TotalTokens":  output.Usage.InputTokens + output.Usage.OutputTokens,
	}

	var choices []*llms.ContentChoice
	var textContent string
	var toolCalls []llms.ToolCall

	for _, c := range output.Content {
		switch c.Type {
		case MessageTypeText:
			textContent += c.Text
		case MessageTypeToolUse:
			argumentsJSON, err := json.Marshal(c.Input)
			if err != nil {
				return nil, llms.Wrap(llms.ErrResponseParse, err, "failed to marshal tool arguments")
			}
			toolCalls = append(toolCalls, llms.ToolCall{
				ID:   c.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      c.Name,
					Arguments: string(argumentsJSON),
				},
			})
		}
	}

	if textContent != "" {
		choices = append(choices, &llms.ContentChoice{
			Content:        textContent,
			StopReason:     output.StopReason,
			GenerationInfo: generationInfo,
		})
	}

	if len(toolCalls) > 0 {
		choices = append(choices, &llms.ContentChoice{
			ToolCalls:      toolCalls,
			StopReason:     output.StopReason,
			GenerationInfo: generationInfo,
		})
	}

	if len(choices) == 0 {
		choices = append(choices, &llms.ContentChoice{
			Content:        output.Content[0].Text,
			StopReason:     output.StopReason,
			GenerationInfo: generationInfo,
		})
	}

	return &llms.ContentResponse{
		Choices: choices,
		Usage:   usage,
	}, nil
}

type streamingCompletionResponseChunk struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta struct {
		Type         string `json:"type"`
		Text         string `json:"text"`
		StopReason   string `json:"stop_reason"`
		StopSequence any    `json:"stop_sequence"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Message struct {
		ID    string `json:"id"`
		Type  string `json:"type"`
		Role  string `json:"role"`
		Model string `json:"model"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	} `json:"message"`
}

func parseStreamingCompletionResponse(ctx context.Context, client *bedrockruntime.Client, modelInput *bedrockruntime.InvokeModelWithResponseStreamInput, options llms.CallOptions) (*llms.ContentResponse, error) {
	output, err := client.InvokeModelWithResponseStream(ctx, modelInput)
	if err != nil {
		return nil, llms.Wrap(llms.ErrTransport, err, "failed to invoke model")
	}
	stream := output.GetStream()
	if stream == nil {
		return nil, errors.WithMessage(llms.ErrResponseParse, "no stream in response")
	}
	defer func() {
		_ = stream.Close()
	}()

	var inputTokens, outputTokens int
	choice := &llms.ContentChoice{GenerationInfo: map[string]any{}}
	for e := range stream.Events() {
		if err = stream.Err(); err != nil {
			return nil, llms.Wrap(llms.ErrTransport, err, "stream failed")
		}

		if v, ok := e.(*types.ResponseStreamMemberChunk); ok {
			var resp streamingCompletionResponseChunk
			err := json.NewDecoder(bytes.NewReader(v.Value.Bytes)).Decode(&resp)
			if err != nil {
				return nil, llms.Wrap(llms.ErrResponseParse, err, "failed to decode stream chunk")
			}

			switch resp.Type {
			case "message_start":
				inputTokens = resp.Message.Usage.InputTokens
				choice.GenerationInfo["InputTokens"] = inputTokens
			case "content_block_delta":
				if err = options.StreamingFunc(ctx, []byte(resp.Delta.Text)); err != nil {
					return nil, errors.Wrap(err, "streaming aborted")
				}
				choice.Content += resp.Delta.Text
			case "message_delta":
				choice.StopReason = resp.Delta.StopReason
				outputTokens = resp.Usage.OutputTokens
				choice.GenerationInfo["OutputTokens"] = outputTokens
			}
		}
	}
	if err = stream.Err(); err != nil {
		return nil, llms.Wrap(llms.ErrTransport, err, "stream failed")
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{choice},
		Usage: llms.Usage{
			PromptTokens:     inputTokens,
			CompletionTokens: outputTokens,
			TotalTokens:      inputTokens + outputTokens,
		},
	}, nil
}

// processInputMessagesAnthropic converts the provider-neutral messages to
// the anthropic wire form, splitting out the system prompt. Consecutive
// messages with the same role are merged into one wire message.
func processInputMessagesAnthropic(messages []Message) ([]*anthropicTextGenerationInputMessage, string, error) {
	chunkedMessages := make([][]Message, 0, len(messages))
	currentChunk := make([]Message, 0, len(messages))
	var lastRole llms.Role
	for _, message := range messages {
		if message.Role != lastRole {
			if len(currentChunk) > 0 {
				chunkedMessages = append(chunkedMessages, currentChunk)
			}
			currentChunk = make([]Message, 0, len(messages))
		}
		currentChunk = append(currentChunk, message)
		lastRole = message.Role
	}
	if len(currentChunk) > 0 {
		chunkedMessages = append(chunkedMessages, currentChunk)
	}

	inputContents := make([]*anthropicTextGenerationInputMessage, 0, len(messages))
	var systemPrompt string
	for _, chunk := range chunkedMessages {
		role, err := getAnthropicRole(chunk[0].Role)
		if err != nil {
			return nil, "", err
		}
		if role == AnthropicSystem {
			if systemPrompt != "" {
				return nil, "", errors.New("multiple system prompts")
			}
			for _, message := range chunk {
				c := getAnthropicInputContent(message)
				if c.Type != MessageTypeText {
					return nil, "", errors.New("system prompt must be text")
				}
				systemPrompt += c.Text
			}
			continue
		}
		content := make([]anthropicTextGenerationInputContent, 0, len(chunk))
		for _, message := range chunk {
			content = append(content, getAnthropicInputContent(message))
		}
		inputContents = append(inputContents, &anthropicTextGenerationInputMessage{
			Role:    role,
			Content: content,
		})
	}
	return inputContents, systemPrompt, nil
}

func getAnthropicRole(role llms.Role) (string, error) {
	switch role {
	case llms.RoleSystem:
		return AnthropicSystem, nil
	case llms.RoleAI:
		return AnthropicRoleAssistant, nil
	case llms.RoleGeneric, llms.RoleHuman, llms.RoleTool:
		return AnthropicRoleUser, nil
	default:
		return "", errors.WithMessagef(llms.ErrUnexpectedRole, "role %v not supported", role)
	}
}

func getAnthropicInputContent(message Message) anthropicTextGenerationInputContent {
	var c anthropicTextGenerationInputContent
	switch message.Type {
	case MessageTypeText:
		c = anthropicTextGenerationInputContent{
			Type: message.Type,
			Text: message.Content,
		}
	case MessageTypeImage:
		c = anthropicTextGenerationInputContent{
			Type: message.Type,
			Source: &anthropicBinGenerationInputSource{
				Type:      "base64",
				MediaType: message.MimeType,
				Data:      base64.StdEncoding.EncodeToString([]byte(message.Content)),
			},
		}
	case MessageTypeToolUse:
		var input any
		if message.ToolInput != "" {
			_ = json.Unmarshal([]byte(message.ToolInput), &input)
		}
		c = anthropicTextGenerationInputContent{
			Type:  message.Type,
			ID:    message.ToolCallID,
			Name:  message.ToolName,
			Input: input,
		}
	case MessageTypeToolResult:
		c = anthropicTextGenerationInputContent{
			Type:      message.Type,
			ToolUseID: message.ToolCallID,
			Content:   message.Content,
		}
	}
	return c
}
