package googleai

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmconn/pkg/llms"
	"google.golang.org/genai"
)

// CreateEmbedding creates embeddings from texts.
func (g *GoogleAI) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.opts.DefaultEmbeddingModel, contents, nil)
	if err != nil {
		return nil, llms.Wrap(llms.ErrTransport, err, "failed to create embeddings")
	}
	if len(resp.Embeddings) == 0 {
		return nil, errors.WithStack(llms.ErrEmptyResponse)
	}

	results := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		results = append(results, e.Values)
	}
	return results, nil
}
