// Package vertex provides a chat model backed by Google Cloud Vertex
// AI. Generation goes through the genai SDK's Vertex backend; legacy
// predict endpoints are reached through the prediction service client.
package vertex

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmconn/pkg/llms"
	"github.com/effective-security/llmconn/pkg/llms/googleai"
	"github.com/effective-security/llmconn/pkg/llms/googleai/vertex/internal/vertexclient"
	"google.golang.org/genai"
)

// Vertex is a Vertex AI API client.
type Vertex struct {
	model        *googleai.GoogleAI
	vertexClient *vertexclient.Client
	opts         googleai.Options
}

var _ llms.Model = (*Vertex)(nil)

// New creates a new Vertex client.
func New(ctx context.Context, opts ...googleai.Option) (*Vertex, error) {
	clientOptions := googleai.DefaultOptions()
	for _, opt := range opts {
		opt(&clientOptions)
	}
	if clientOptions.CloudProject == "" {
		return nil, errors.New("a cloud project is required")
	}
	if clientOptions.CloudLocation == "" {
		clientOptions.CloudLocation = "us-central1"
	}

	cfg := &genai.ClientConfig{
		Project:     clientOptions.CloudProject,
		Location:    clientOptions.CloudLocation,
		Credentials: clientOptions.Credentials,
		HTTPClient:  clientOptions.HTTPClient,
		Backend:     genai.BackendVertexAI,
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	vc, err := vertexclient.New(ctx, clientOptions.CloudProject, clientOptions.CloudLocation)
	if err != nil {
		return nil, err
	}

	return &Vertex{
		model:        googleai.NewWithClient(client, clientOptions),
		vertexClient: vc,
		opts:         clientOptions,
	}, nil
}

// Close releases the prediction service connections.
func (g *Vertex) Close() error {
	return g.vertexClient.Close()
}

// GetProviderType implements the Model interface.
func (g *Vertex) GetProviderType() llms.ProviderType {
	return llms.ProviderGoogleAI
}

// GenerateContent implements the Model interface.
func (g *Vertex) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	return g.model.GenerateContent(ctx, messages, options...)
}
