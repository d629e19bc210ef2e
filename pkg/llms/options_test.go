package llms_test

import (
	"context"
	"testing"

	"github.com/effective-security/llmconn/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallOptions(t *testing.T) {
	t.Parallel()

	opts := llms.CallOptions{}
	for _, opt := range []llms.CallOption{
		llms.WithModel("test-model"),
		llms.WithMaxTokens(1024),
		llms.WithCandidateCount(2),
		llms.WithTemperature(0.7),
		llms.WithStopWords([]string{"STOP"}),
		llms.WithTopK(40),
		llms.WithTopP(0.9),
		llms.WithSeed(42),
		llms.WithN(3),
		llms.WithFrequencyPenalty(0.5),
		llms.WithPresencePenalty(0.25),
		llms.WithMetadata(map[string]any{"tenant": "t1"}),
	} {
		opt(&opts)
	}

	assert.Equal(t, "test-model", opts.Model)
	assert.Equal(t, 1024, opts.MaxTokens)
	assert.Equal(t, 2, opts.CandidateCount)
	assert.InDelta(t, 0.7, opts.Temperature, 0.0001)
	assert.Equal(t, []string{"STOP"}, opts.StopWords)
	assert.Equal(t, 40, opts.TopK)
	assert.InDelta(t, 0.9, opts.TopP, 0.0001)
	assert.Equal(t, 42, opts.Seed)
	assert.Equal(t, 3, opts.N)
	assert.InDelta(t, 0.5, opts.FrequencyPenalty, 0.0001)
	assert.InDelta(t, 0.25, opts.PresencePenalty, 0.0001)
	assert.Equal(t, "t1", opts.Metadata["tenant"])
}

func TestWithOptionsReplaces(t *testing.T) {
	t.Parallel()

	base := llms.CallOptions{Model: "a", MaxTokens: 10}
	opts := llms.CallOptions{}
	llms.WithOptions(base)(&opts)
	assert.Equal(t, base, opts)
}

func TestWithTools(t *testing.T) {
	t.Parallel()

	tools := []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "get_weather",
				Description: "returns the weather for a location",
			},
		},
	}
	opts := llms.CallOptions{}
	llms.WithTools(tools)(&opts)
	llms.WithToolChoice("auto")(&opts)

	require.Len(t, opts.Tools, 1)
	assert.Equal(t, "get_weather", opts.Tools[0].Function.Name)
	assert.Equal(t, "auto", opts.ToolChoice)
}

func TestWithStreamingFunc(t *testing.T) {
	t.Parallel()

	var got []byte
	opts := llms.CallOptions{}
	llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		got = append(got, chunk...)
		return nil
	})(&opts)

	require.NotNil(t, opts.StreamingFunc)
	require.NoError(t, opts.StreamingFunc(context.Background(), []byte("hel")))
	require.NoError(t, opts.StreamingFunc(context.Background(), []byte("lo")))
	assert.Equal(t, "hello", string(got))
}
