// Package googleai provides a chat model backed by the Google Gemini
// API. See https://ai.google.dev/ for more details.
package googleai

import (
	"context"

	"github.com/effective-security/llmconn/pkg/llms"
	"google.golang.org/genai"
)

// GoogleAI is a Google AI API client.
type GoogleAI struct {
	client *genai.Client
	opts   Options
}

var _ llms.Model = (*GoogleAI)(nil)

// New creates a new GoogleAI client.
func New(ctx context.Context, opts ...Option) (*GoogleAI, error) {
	clientOptions := DefaultOptions()
	for _, opt := range opts {
		opt(&clientOptions)
	}
	if err := clientOptions.EnsureAuthPresent(ctx); err != nil {
		return nil, err
	}

	gi := &GoogleAI{
		opts: clientOptions,
	}

	cfg := &genai.ClientConfig{
		Project:     clientOptions.CloudProject,
		Location:    clientOptions.CloudLocation,
		APIKey:      clientOptions.APIKey,
		Credentials: clientOptions.Credentials,
		HTTPClient:  clientOptions.HTTPClient,
		Backend:     genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return gi, err
	}
	gi.client = client

	return gi, nil
}

// NewWithClient wraps an already configured genai client. Used by the
// vertex package, which builds the client with the Vertex backend.
func NewWithClient(client *genai.Client, opts Options) *GoogleAI {
	return &GoogleAI{
		client: client,
		opts:   opts,
	}
}
