package vertex

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmconn/pkg/llms"
	"github.com/effective-security/llmconn/pkg/llms/googleai/vertex/internal/vertexclient"
)

// CreateEmbedding creates embeddings from texts.
func (g *Vertex) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings, err := g.vertexClient.CreateEmbedding(ctx, &vertexclient.EmbeddingRequest{
		Model: g.opts.DefaultEmbeddingModel,
		Input: texts,
	})
	if err != nil {
		return nil, err
	}

	if len(embeddings) == 0 {
		return nil, errors.WithStack(llms.ErrEmptyResponse)
	}
	if len(texts) != len(embeddings) {
		return embeddings, errors.Errorf("returned %d embeddings for %d texts", len(embeddings), len(texts))
	}

	return embeddings, nil
}
