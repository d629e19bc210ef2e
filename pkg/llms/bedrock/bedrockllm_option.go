package bedrock

import (
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

type options struct {
	modelID        string
	embeddingModel string
	client         *bedrockruntime.Client
}

// Option configures the Bedrock client.
type Option func(*options)

// WithModel sets the model ID or inference profile to invoke.
func WithModel(modelID string) Option {
	return func(o *options) {
		o.modelID = modelID
	}
}

// WithEmbeddingModel sets the model used by CreateEmbedding.
func WithEmbeddingModel(modelID string) Option {
	return func(o *options) {
		o.embeddingModel = modelID
	}
}

// WithClient sets a preconfigured Bedrock runtime client. When not set,
// a client is built from the default AWS configuration chain.
func WithClient(client *bedrockruntime.Client) Option {
	return func(o *options) {
		o.client = client
	}
}
