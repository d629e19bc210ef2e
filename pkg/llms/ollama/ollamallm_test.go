package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/effective-security/llmconn/pkg/llms"
	"github.com/effective-security/llmconn/pkg/llms/ollama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLLM(t *testing.T, handler http.HandlerFunc, opts ...ollama.Option) *ollama.LLM {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts = append([]ollama.Option{
		ollama.WithHost(srv.URL),
		ollama.WithModel("llama3.2:3b"),
	}, opts...)
	llm, err := ollama.New(opts...)
	require.NoError(t, err)
	return llm
}

func TestGenerateContent(t *testing.T) {
	t.Parallel()

	llm := newTestLLM(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2:3b", req["model"])
		assert.Equal(t, false, req["stream"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":             "llama3.2:3b",
			"message":           map[string]any{"role": "assistant", "content": "Hi there."},
			"done":              true,
			"done_reason":       "stop",
			"prompt_eval_count": 10,
			"eval_count":        4,
		})
	})

	resp, err := llm.GenerateContent(context.Background(),
		[]llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "Hello")})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "Hi there.", resp.Choices[0].Content)
	assert.Equal(t, "stop", resp.Choices[0].StopReason)
	assert.Equal(t, 14, resp.Usage.TotalTokens)
}

func TestGenerateContentStreaming(t *testing.T) {
	t.Parallel()

	llm := newTestLLM(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, true, req["stream"])

		lines := []string{
			`{"model":"llama3.2:3b","message":{"role":"assistant","content":"Hel"},"done":false}`,
			`{"model":"llama3.2:3b","message":{"role":"assistant","content":"lo."},"done":false}`,
			`{"model":"llama3.2:3b","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":3,"eval_count":2}`,
		}
		for _, l := range lines {
			_, _ = w.Write([]byte(l + "\n"))
		}
	})

	var streamed strings.Builder
	resp, err := llm.GenerateContent(context.Background(),
		[]llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "Hello")},
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			streamed.Write(chunk)
			return nil
		}),
	)
	require.NoError(t, err)
	assert.Equal(t, "Hello.", resp.Choices[0].Content)
	assert.Equal(t, "Hello.", streamed.String())
	assert.Equal(t, 5, resp.Usage.TotalTokens)
}

func TestGenerateContentStreamTruncated(t *testing.T) {
	t.Parallel()

	llm := newTestLLM(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model":"llama3.2:3b","message":{"role":"assistant","content":"par"},"done":false}` + "\n"))
	})

	_, err := llm.GenerateContent(context.Background(),
		[]llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "Hello")},
		llms.WithStreamingFunc(func(_ context.Context, _ []byte) error { return nil }),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, llms.ErrResponseParse)
}

func TestGenerateContentToolCalls(t *testing.T) {
	t.Parallel()

	llm := newTestLLM(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "llama3.2:3b",
			"message": map[string]any{
				"role": "assistant",
				"tool_calls": []map[string]any{
					{"function": map[string]any{
						"name":      "getWeather",
						"arguments": map[string]any{"location": "Seattle"},
					}},
				},
			},
			"done":        true,
			"done_reason": "stop",
		})
	})

	resp, err := llm.GenerateContent(context.Background(),
		[]llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "Weather in Seattle?")},
		llms.WithTools([]llms.Tool{
			{Type: "function", Function: &llms.FunctionDefinition{Name: "getWeather"}},
		}),
	)
	require.NoError(t, err)
	require.Len(t, resp.Choices[0].ToolCalls, 1)
	tc := resp.Choices[0].ToolCalls[0]
	assert.Equal(t, "getWeather", tc.FunctionCall.Name)
	assert.JSONEq(t, `{"location":"Seattle"}`, tc.FunctionCall.Arguments)
	assert.NotEmpty(t, tc.ID)
}

func TestGenerateContentModelNotFound(t *testing.T) {
	t.Parallel()

	llm := newTestLLM(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"missing\" not found, try pulling it first"}`))
	})

	_, err := llm.GenerateContent(context.Background(),
		[]llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "hi")},
		llms.WithModel("missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, llms.ErrUnsupportedModel)
}

func TestGenerateContentServerDown(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	llm, err := ollama.New(ollama.WithHost(url), ollama.WithModel("llama3.2:3b"))
	require.NoError(t, err)

	_, err = llm.GenerateContent(context.Background(),
		[]llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "hi")})
	require.Error(t, err)
	assert.ErrorIs(t, err, llms.ErrTransport)
}
