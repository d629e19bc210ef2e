package openaiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmconn/pkg/llms"
)

const defaultEmbeddingModel = "text-embedding-3-small"

type embeddingPayload struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponsePayload struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// CreateEmbedding returns one embedding vector per input text.
func (c *Client) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	model := c.EmbeddingModel
	if model == "" {
		model = defaultEmbeddingModel
	}

	resp, err := c.createEmbedding(ctx, &embeddingPayload{
		Model: model,
		Input: texts,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.WithStack(llms.ErrEmptyResponse)
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.WithMessage(llms.ErrResponseParse, "embeddings and texts count mismatch")
	}

	embeddings := make([][]float32, 0, len(resp.Data))
	for _, d := range resp.Data {
		embeddings = append(embeddings, d.Embedding)
	}
	return embeddings, nil
}

func (c *Client) createEmbedding(ctx context.Context, payload *embeddingPayload) (*embeddingResponsePayload, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL("/embeddings", payload.Model), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	c.setHeaders(req)

	r, err := c.httpClient.Do(req)
	if err != nil {
		return nil, llms.Wrap(llms.ErrTransport, err, "request failed")
	}
	defer func() { _ = r.Body.Close() }()

	if r.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(r)
	}

	var response embeddingResponsePayload
	if err := json.NewDecoder(r.Body).Decode(&response); err != nil {
		return nil, llms.Wrap(llms.ErrResponseParse, err, "failed to decode response")
	}
	return &response, nil
}
