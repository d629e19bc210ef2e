// Package bedrockclient invokes models through the Bedrock runtime API.
package bedrockclient

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmconn/pkg/llms"
)

// Client is a Bedrock client.
type Client struct {
	client *bedrockruntime.Client
}

// Message content types in the provider-neutral form.
const (
	MessageTypeText       = "text"
	MessageTypeImage      = "image"
	MessageTypeToolUse    = "tool_use"
	MessageTypeToolResult = "tool_result"
)

// Message is a chunk of text or data that will be sent to the provider.
// The provider transforms the message to its own wire format before
// invoking the model.
type Message struct {
	Role    llms.Role
	Content string
	// Type is one of the MessageType constants.
	Type string
	// MimeType is the MIME type of binary content.
	MimeType string
	// Tool-specific fields.
	ToolCallID string
	ToolName   string
	ToolInput  string
}

// getProvider extracts the provider from a model ID. Handles inference
// profiles (e.g. "us.anthropic.claude-3-5-sonnet-20241022-v2:0") and
// direct model IDs (e.g. "anthropic.claude-3-sonnet-20240229-v1:0").
func getProvider(modelID string) string {
	parts := strings.Split(modelID, ".")
	if len(parts) >= 3 {
		// A short lowercase first part is a region prefix, e.g. "us",
		// "eu" or "apac".
		if len(parts[0]) <= 4 && strings.ToLower(parts[0]) == parts[0] {
			return parts[1]
		}
	}
	return parts[0]
}

// NewClient creates a new Bedrock client.
func NewClient(client *bedrockruntime.Client) *Client {
	return &Client{
		client: client,
	}
}

// CreateCompletion sends the messages to the model behind modelID and
// returns its completion.
func (c *Client) CreateCompletion(ctx context.Context,
	modelID string,
	messages []Message,
	options llms.CallOptions,
) (*llms.ContentResponse, error) {
	provider := getProvider(modelID)
	switch provider {
	case "anthropic":
		return createAnthropicCompletion(ctx, c.client, modelID, messages, options)
	default:
		return nil, errors.WithMessagef(llms.ErrUnsupportedModel, "provider %q not supported for model %q", provider, modelID)
	}
}

// titanEmbeddingInput is the Titan text embedding request body.
type titanEmbeddingInput struct {
	InputText string `json:"inputText"`
}

// titanEmbeddingOutput is the Titan text embedding response body.
type titanEmbeddingOutput struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

// CreateEmbedding embeds the given texts with an Amazon Titan embedding
// model, one invocation per text.
func (c *Client) CreateEmbedding(ctx context.Context, modelID string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.WithStack(llms.ErrEmptyResponse)
	}
	if provider := getProvider(modelID); provider != "amazon" {
		return nil, errors.WithMessagef(llms.ErrUnsupportedModel, "provider %q not supported for embeddings", provider)
	}

	embeddings := make([][]float32, 0, len(texts))
	for _, text := range texts {
		body, err := json.Marshal(titanEmbeddingInput{InputText: text})
		if err != nil {
			return nil, errors.WithStack(err)
		}

		resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(modelID),
			Accept:      aws.String("*/*"),
			ContentType: aws.String("application/json"),
			Body:        body,
		})
		if err != nil {
			return nil, llms.Wrap(llms.ErrTransport, err, "failed to invoke embedding model")
		}

		var output titanEmbeddingOutput
		if err := json.Unmarshal(resp.Body, &output); err != nil {
			return nil, llms.Wrap(llms.ErrResponseParse, err, "failed to decode embedding response")
		}
		embeddings = append(embeddings, output.Embedding)
	}
	return embeddings, nil
}

func getMaxTokens(maxTokens, defaultValue int) int {
	if maxTokens <= 0 {
		return defaultValue
	}
	return maxTokens
}
