package bedrockclient

import (
	"context"
	"testing"

	"github.com/effective-security/llmconn/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProvider(t *testing.T) {
	tcases := []struct {
		modelID string
		exp     string
	}{
		{"anthropic.claude-3-5-sonnet-20241022-v2:0", "anthropic"},
		{"us.anthropic.claude-3-5-sonnet-20241022-v2:0", "anthropic"},
		{"eu.anthropic.claude-3-haiku-20240307-v1:0", "anthropic"},
		{"apac.anthropic.claude-sonnet-4-20250514-v1:0", "anthropic"},
		{"amazon.titan-embed-text-v2:0", "amazon"},
		{"us.amazon.nova-micro-v1:0", "amazon"},
		{"meta.llama3-2-1b-instruct-v1:0", "meta"},
		{"mistral.mistral-large-2407-v1:0", "mistral"},
		{"anthropic", "anthropic"},
		{"", ""},
	}

	for _, tc := range tcases {
		t.Run(tc.modelID, func(t *testing.T) {
			assert.Equal(t, tc.exp, getProvider(tc.modelID))
		})
	}
}

func TestGetMaxTokens(t *testing.T) {
	assert.Equal(t, 2048, getMaxTokens(0, 2048))
	assert.Equal(t, 2048, getMaxTokens(-1, 2048))
	assert.Equal(t, 100, getMaxTokens(100, 2048))
}

func TestCreateCompletionUnsupportedProvider(t *testing.T) {
	c := NewClient(nil)
	_, err := c.CreateCompletion(context.Background(),
		"meta.llama3-2-1b-instruct-v1:0",
		[]Message{{Role: llms.RoleHuman, Content: "hi", Type: MessageTypeText}},
		llms.CallOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, llms.ErrUnsupportedModel)
	assert.Contains(t, err.Error(), "meta")
}

func TestCreateEmbeddingUnsupportedProvider(t *testing.T) {
	c := NewClient(nil)
	_, err := c.CreateEmbedding(context.Background(),
		"anthropic.claude-3-5-sonnet-20241022-v2:0", []string{"hello"})
	require.Error(t, err)
	assert.ErrorIs(t, err, llms.ErrUnsupportedModel)
}
