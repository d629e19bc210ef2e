// Package anthropic provides a chat model backed by the Anthropic
// Messages API, using the official SDK.
package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmconn/pkg/connection"
	"github.com/effective-security/llmconn/pkg/llms"
	"github.com/effective-security/x/values"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"

	DefaultMaxTokens = 4096
)

type LLM struct {
	Client  *anthropic.Client
	Options *Options
}

var _ llms.Model = (*LLM)(nil)

// New creates a new Anthropic LLM client.
//
// If no token is provided via WithToken or WithTokenProvider, the API
// key is read from the ANTHROPIC_API_KEY environment variable. A model
// is required.
func New(opts ...Option) (*LLM, error) {
	options := &Options{
		BaseURL:    "https://api.anthropic.com",
		HttpClient: http.DefaultClient,
	}

	for _, opt := range opts {
		opt(options)
	}

	if options.Auth == nil {
		options.Auth = connection.EnvToken(TokenEnvVarName)
	}
	creds, err := options.Auth.Token(context.Background())
	if err != nil {
		return nil, errors.WithMessage(err, "failed to acquire credentials")
	}
	options.Token = creds.Token

	if options.Model == "" {
		return nil, errors.New("model is required")
	}

	c := newClient(options)
	return &LLM{
		Client:  c,
		Options: options,
	}, nil
}

func newClient(options *Options) *anthropic.Client {
	sdkOpts := []option.RequestOption{
		option.WithAPIKey(options.Token),
		option.WithMaxRetries(2),
		option.WithRequestTimeout(5 * time.Minute),
	}

	if options.BaseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(options.BaseURL))
	}

	if options.HttpClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(options.HttpClient))
	}

	if options.AnthropicBetaHeader != "" {
		sdkOpts = append(sdkOpts, option.WithHeader("anthropic-beta", options.AnthropicBetaHeader))
	}

	client := anthropic.NewClient(sdkOpts...)
	return &client
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderAnthropic
}

// wrapSDKError classifies an SDK error by its HTTP status code.
func wrapSDKError(err error, msg string) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return llms.Wrap(llms.ErrorFromStatusCode(apierr.StatusCode), err, msg)
	}
	return llms.Wrap(llms.ErrTransport, err, msg)
}

// GenerateContent implements the Model interface. It supports text and
// image inputs, tool calling and streaming responses.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{
		Model: o.Options.Model,
	}
	for _, opt := range options {
		opt(&opts)
	}
	return generateMessagesContent(ctx, o, messages, &opts)
}

func generateMessagesContent(ctx context.Context, o *LLM, messages []llms.Message, opts *llms.CallOptions) (*llms.ContentResponse, error) {
	var (
		sdkMessages   []anthropic.MessageParam
		systemBlocks  []anthropic.TextBlockParam
		partLocations map[promptCachePartKey]promptCachePartLocation
		err           error
	)

	// Cache breakpoints target individual message parts, which requires
	// keeping each part in its own content block.
	usePromptCache := opts.PromptCachePolicy != nil && len(opts.PromptCachePolicy.Breakpoints) > 0
	if usePromptCache {
		sdkMessages, systemBlocks, partLocations, err = processMessagesForRequest(messages)
	} else {
		var systemPrompt string
		sdkMessages, systemPrompt, err = ProcessMessages(messages)
		if systemPrompt != "" {
			systemBlocks = []anthropic.TextBlockParam{
				{
					Type: "text",
					Text: systemPrompt,
				},
			}
		}
	}
	if err != nil {
		return nil, errors.WithMessage(err, "failed to process messages")
	}

	tools := ToTools(opts.Tools)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		Messages:  sdkMessages,
		MaxTokens: values.NumbersCoalesce(int64(opts.MaxTokens), DefaultMaxTokens),
	}

	if len(systemBlocks) > 0 {
		params.System = systemBlocks
	}

	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}

	if opts.TopP > 0 {
		params.TopP = anthropic.Float(opts.TopP)
	}

	if len(opts.StopWords) > 0 {
		params.StopSequences = opts.StopWords
	}

	if len(tools) > 0 {
		params.Tools = tools
	}

	var requestOpts []option.RequestOption
	if usePromptCache {
		requestOpts, err = applyPromptCachePolicyToRequest(o, &params, opts, partLocations)
		if err != nil {
			return nil, err
		}
	}

	if cfg := toAnthropicOutputConfig(opts.ResponseFormat); cfg != nil {
		requestOpts = append(requestOpts, structuredOutputRequestOptions(cfg)...)
	}

	if opts.StreamingFunc != nil {
		return generateStreamingContent(ctx, o, params, opts.StreamingFunc, requestOpts...)
	}

	result, err := o.Client.Messages.New(ctx, params, requestOpts...)
	if err != nil {
		return nil, wrapSDKError(err, "failed to create message")
	}

	usage := llms.Usage{
		PromptTokens:     int(result.Usage.InputTokens),
		CompletionTokens: int(result.Usage.OutputTokens),
		TotalTokens:      int(result.Usage.InputTokens + result.Usage.OutputTokens),
	}

	choices := make([]*llms.ContentChoice, len(result.Content))
	for i, contentBlock := range result.Content {
		switch content := contentBlock.AsAny().(type) {
		case anthropic.TextBlock:
			choices[i] = &llms.ContentChoice{
				Content:    content.Text,
				StopReason: string(result.StopReason),
				GenerationInfo: map[string]any{
					"InputTokens":      result.Usage.InputTokens,
					"OutputTokens":     result.Usage.OutputTokens,
					"TotalTokens":      result.Usage.InputTokens + result.Usage.OutputTokens,
					"CacheWriteTokens": result.Usage.CacheCreationInputTokens,
					"CacheReadTokens":  result.Usage.CacheReadInputTokens,
					"ID":               result.ID,
					"Index":            i,
				},
			}
		case anthropic.ToolUseBlock:
			argumentsJSON, err := json.Marshal(content.Input)
			if err != nil {
				return nil, llms.Wrap(llms.ErrResponseParse, err, "failed to marshal tool use arguments")
			}
			choices[i] = &llms.ContentChoice{
				ToolCalls: []llms.ToolCall{
					{
						ID:   content.ID,
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      content.Name,
							Arguments: string(argumentsJSON),
						},
					},
				},
				StopReason: string(result.StopReason),
				GenerationInfo: map[string]any{
					"InputTokens":      result.Usage.InputTokens,
					"OutputTokens":     result.Usage.OutputTokens,
					"TotalTokens":      result.Usage.InputTokens + result.Usage.OutputTokens,
					"CacheWriteTokens": result.Usage.CacheCreationInputTokens,
					"CacheReadTokens":  result.Usage.CacheReadInputTokens,
					"ID":               result.ID,
					"Index":            i,
				},
			}
		default:
			return nil, errors.WithMessagef(llms.ErrResponseParse, "unsupported content type %T", content)
		}
	}

	return &llms.ContentResponse{
		Choices: choices,
		Usage:   usage,
	}, nil
}

// generateStreamingContent consumes the event stream, assembling text
// deltas and partial tool call JSON into a complete response.
func generateStreamingContent(ctx context.Context, o *LLM, params anthropic.MessageNewParams, streamingFunc func(context.Context, []byte) error, requestOpts ...option.RequestOption) (*llms.ContentResponse, error) {
	stream := o.Client.Messages.NewStreaming(ctx, params, requestOpts...)
	defer stream.Close()

	var content strings.Builder
	var toolCalls []llms.ToolCall
	var currentToolCall *llms.ToolCall
	var stopReason string
	var inputTokens, outputTokens int64

	for stream.Next() {
		event := stream.Current()

		switch evt := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			inputTokens = evt.Message.Usage.InputTokens
		case anthropic.ContentBlockStartEvent:
			switch block := evt.ContentBlock.AsAny().(type) {
			case anthropic.ToolUseBlock:
				currentToolCall = &llms.ToolCall{
					ID:   block.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name: block.Name,
					},
				}
			}
		case anthropic.ContentBlockDeltaEvent:
			switch delta := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				content.WriteString(delta.Text)
				if streamingFunc != nil {
					if err := streamingFunc(ctx, []byte(delta.Text)); err != nil {
						return nil, errors.Wrap(err, "streaming aborted")
					}
				}
			case anthropic.InputJSONDelta:
				if currentToolCall != nil {
					currentToolCall.FunctionCall.Arguments += delta.PartialJSON
				}
			}
		case anthropic.ContentBlockStopEvent:
			if currentToolCall != nil {
				toolCalls = append(toolCalls, *currentToolCall)
				currentToolCall = nil
			}
		case anthropic.MessageDeltaEvent:
			stopReason = string(evt.Delta.StopReason)
			outputTokens = evt.Usage.OutputTokens
		}
	}

	if err := stream.Err(); err != nil {
		return nil, wrapSDKError(err, "streaming failed")
	}

	usage := map[string]any{
		"InputTokens":  inputTokens,
		"OutputTokens": outputTokens,
		"TotalTokens":  inputTokens + outputTokens,
	}

	var choices []*llms.ContentChoice
	if content.Len() > 0 {
		choices = append(choices, &llms.ContentChoice{
			Content:        content.String(),
			StopReason:     stopReason,
			GenerationInfo: usage,
		})
	}

	if len(toolCalls) > 0 {
		choices = append(choices, &llms.ContentChoice{
			ToolCalls:      toolCalls,
			StopReason:     stopReason,
			GenerationInfo: usage,
		})
	}

	return &llms.ContentResponse{
		Choices: choices,
		Usage: llms.Usage{
			PromptTokens:     int(inputTokens),
			CompletionTokens: int(outputTokens),
			TotalTokens:      int(inputTokens + outputTokens),
		},
	}, nil
}

// ToTools converts generic tool definitions to SDK tool parameters.
func ToTools(tools []llms.Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	sdkTools := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: "object",
		}
		if tool.Function.Parameters != nil {
			if tool.Function.Parameters.Properties != nil {
				properties := make(map[string]any)
				for pair := tool.Function.Parameters.Properties.Oldest(); pair != nil; pair = pair.Next() {
					properties[pair.Key] = pair.Value
				}
				inputSchema.Properties = properties
			}
			if len(tool.Function.Parameters.Required) > 0 {
				inputSchema.Required = tool.Function.Parameters.Required
			}
		}

		sdkTools[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Function.Name,
				Description: anthropic.String(tool.Function.Description),
				InputSchema: inputSchema,
			},
		}
	}
	return sdkTools
}

// ProcessMessages separates the system prompt from the conversation and
// converts each message to the SDK form.
func ProcessMessages(messages []llms.Message) ([]anthropic.MessageParam, string, error) {
	chatMessages := make([]anthropic.MessageParam, 0, len(messages))
	systemPrompt := ""
	for _, msg := range messages {
		if len(msg.Parts) == 0 {
			continue
		}
		switch msg.Role {
		case llms.RoleSystem:
			content, err := HandleSystemMessage(msg)
			if err != nil {
				return nil, "", errors.WithMessage(err, "failed to handle system message")
			}
			if systemPrompt != "" {
				systemPrompt += "\n" + content
			} else {
				systemPrompt = content
			}
		case llms.RoleHuman:
			chatMessage, err := HandleHumanMessage(msg)
			if err != nil {
				return nil, "", errors.WithMessage(err, "failed to handle human message")
			}
			chatMessages = append(chatMessages, chatMessage)
		case llms.RoleAI, llms.RoleGeneric:
			chatMessage, err := HandleAIMessage(msg)
			if err != nil {
				return nil, "", errors.WithMessage(err, "failed to handle AI message")
			}
			chatMessages = append(chatMessages, chatMessage)
		case llms.RoleTool:
			chatMessage, err := HandleToolMessage(msg)
			if err != nil {
				return nil, "", errors.WithMessage(err, "failed to handle tool message")
			}
			chatMessages = append(chatMessages, chatMessage)
		default:
			return nil, "", errors.WithMessagef(llms.ErrUnexpectedRole, "role %v not supported", msg.Role)
		}
	}
	return chatMessages, systemPrompt, nil
}

// HandleSystemMessage extracts the text of a system message. System
// content goes into the separate system parameter, not the conversation.
func HandleSystemMessage(msg llms.Message) (string, error) {
	if textContent, ok := msg.Parts[0].(llms.TextContent); ok {
		return textContent.Text, nil
	}
	return "", errors.Errorf("invalid content type %T for system message", msg.Parts[0])
}

// HandleHumanMessage converts a human message, base64-encoding image
// parts for the API.
func HandleHumanMessage(msg llms.Message) (anthropic.MessageParam, error) {
	var contents []anthropic.ContentBlockParamUnion

	for _, part := range msg.Parts {
		switch p := part.(type) {
		case llms.TextContent:
			contents = append(contents, anthropic.NewTextBlock(p.Text))
		case llms.BinaryContent:
			if !strings.HasPrefix(p.MIMEType, "image/") {
				return anthropic.MessageParam{}, errors.Errorf("unsupported binary content type: %s", p.MIMEType)
			}
			encodedData := base64.StdEncoding.EncodeToString(p.Data)
			contents = append(contents, anthropic.NewImageBlockBase64(p.MIMEType, encodedData))
		default:
			return anthropic.MessageParam{}, errors.Errorf("unsupported human message part type: %T", part)
		}
	}

	if len(contents) == 0 {
		return anthropic.MessageParam{}, errors.New("no valid content in human message")
	}

	return anthropic.NewUserMessage(contents...), nil
}

// HandleAIMessage converts an assistant message with text and tool call
// parts. Tool call arguments must be valid JSON.
func HandleAIMessage(msg llms.Message) (anthropic.MessageParam, error) {
	var contents []anthropic.ContentBlockParamUnion

	for _, part := range msg.Parts {
		switch p := part.(type) {
		case llms.ToolCall:
			var inputJSON json.RawMessage
			if err := json.Unmarshal([]byte(p.FunctionCall.Arguments), &inputJSON); err != nil {
				return anthropic.MessageParam{}, errors.Wrap(err, "failed to unmarshal tool call arguments")
			}
			contents = append(contents, anthropic.NewToolUseBlock(
				p.ID,
				inputJSON,
				p.FunctionCall.Name,
			))
		case llms.TextContent:
			contents = append(contents, anthropic.NewTextBlock(p.Text))
		default:
			return anthropic.MessageParam{}, errors.Errorf("unsupported AI message part type: %T", part)
		}
	}

	if len(contents) == 0 {
		return anthropic.MessageParam{}, errors.New("no valid content in AI message")
	}

	return anthropic.NewAssistantMessage(contents...), nil
}

// HandleToolMessage converts a tool response; the API expects tool
// results as user messages with tool result blocks.
func HandleToolMessage(msg llms.Message) (anthropic.MessageParam, error) {
	var contents []anthropic.ContentBlockParamUnion

	for _, part := range msg.Parts {
		toolCallResponse, ok := part.(llms.ToolCallResponse)
		if !ok {
			return anthropic.MessageParam{}, errors.Errorf("unsupported tool message part type: %T", part)
		}
		contents = append(contents, anthropic.NewToolResultBlock(
			toolCallResponse.ToolCallID,
			toolCallResponse.Content,
			false,
		))
	}

	if len(contents) == 0 {
		return anthropic.MessageParam{}, errors.New("no valid content in tool message")
	}

	return anthropic.NewUserMessage(contents...), nil
}
