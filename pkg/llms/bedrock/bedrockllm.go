// Package bedrock provides a chat model backed by the AWS Bedrock
// runtime. Anthropic Claude models are supported for generation and
// Amazon Titan models for embeddings.
package bedrock

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmconn/pkg/llms"
	"github.com/effective-security/llmconn/pkg/llms/bedrock/internal/bedrockclient"
)

const (
	defaultModel          = ModelAnthropicClaude35SonnetV2
	defaultEmbeddingModel = ModelAmazonTitanEmbedTextV2
)

// LLM is a Bedrock model client.
type LLM struct {
	modelID        string
	embeddingModel string
	client         *bedrockclient.Client
}

var (
	_ llms.Model    = (*LLM)(nil)
	_ llms.Embedder = (*LLM)(nil)
)

// New creates a new Bedrock LLM client.
func New(opts ...Option) (*LLM, error) {
	o, c, err := newClient(opts...)
	if err != nil {
		return nil, err
	}
	return &LLM{
		client:         c,
		modelID:        o.modelID,
		embeddingModel: o.embeddingModel,
	}, nil
}

func newClient(opts ...Option) (*options, *bedrockclient.Client, error) {
	options := &options{
		modelID:        defaultModel,
		embeddingModel: defaultEmbeddingModel,
	}

	for _, opt := range opts {
		opt(options)
	}

	if options.client == nil {
		cfg, err := config.LoadDefaultConfig(context.Background())
		if err != nil {
			return options, nil, llms.Wrap(llms.ErrAuthentication, err, "failed to load AWS configuration")
		}
		options.client = bedrockruntime.NewFromConfig(cfg)
	}

	return options, bedrockclient.NewClient(options.client), nil
}

// GetName returns the configured model ID.
func (l *LLM) GetName() string {
	return l.modelID
}

// GetProviderType implements the Model interface.
func (l *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderBedrock
}

// GenerateContent implements the Model interface.
func (l *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{
		Model: l.modelID,
	}
	for _, opt := range options {
		opt(&opts)
	}

	m, err := processMessages(messages)
	if err != nil {
		return nil, err
	}

	return l.client.CreateCompletion(ctx, opts.Model, m, opts)
}

// CreateEmbedding creates embeddings for the given input texts.
func (l *LLM) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	return l.client.CreateEmbedding(ctx, l.embeddingModel, texts)
}

func processMessages(messages []llms.Message) ([]bedrockclient.Message, error) {
	bedrockMsgs := make([]bedrockclient.Message, 0, len(messages))

	for _, m := range messages {
		for _, part := range m.Parts {
			switch part := part.(type) {
			case llms.TextContent:
				bedrockMsgs = append(bedrockMsgs, bedrockclient.Message{
					Role:    m.Role,
					Content: part.Text,
					Type:    bedrockclient.MessageTypeText,
				})
			case llms.BinaryContent:
				bedrockMsgs = append(bedrockMsgs, bedrockclient.Message{
					Role:     m.Role,
					Content:  string(part.Data),
					MimeType: part.MIMEType,
					Type:     bedrockclient.MessageTypeImage,
				})
			case llms.ToolCall:
				bedrockMsgs = append(bedrockMsgs, bedrockclient.Message{
					Role:       m.Role,
					Type:       bedrockclient.MessageTypeToolUse,
					ToolCallID: part.ID,
					ToolName:   part.FunctionCall.Name,
					ToolInput:  part.FunctionCall.Arguments,
				})
			case llms.ToolCallResponse:
				bedrockMsgs = append(bedrockMsgs, bedrockclient.Message{
					Role:       m.Role,
					Content:    part.Content,
					Type:       bedrockclient.MessageTypeToolResult,
					ToolCallID: part.ToolCallID,
				})
			default:
				return nil, errors.Errorf("content part %T not supported", part)
			}
		}
	}
	return bedrockMsgs, nil
}
