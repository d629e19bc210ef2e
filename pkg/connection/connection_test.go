package connection_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmconn/pkg/connection"
	"github.com/effective-security/llmconn/pkg/llms"
	"github.com/effective-security/llmconn/pkg/metricskey"
	"github.com/effective-security/metrics"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConn(t *testing.T, handler http.Handler, opts ...connection.Option) *connection.Connection {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	conn, err := connection.New(llms.ProviderOpenAI, srv.URL, connection.StaticToken("test-token"), opts...)
	require.NoError(t, err)
	return conn
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := connection.New(llms.ProviderOpenAI, "", connection.StaticToken("t"))
	assert.EqualError(t, err, "endpoint is required")

	_, err = connection.New(llms.ProviderOpenAI, "http://localhost", nil)
	assert.EqualError(t, err, "token provider is required")
}

func TestSend(t *testing.T) {
	t.Parallel()

	conn := newTestConn(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])
		assert.Equal(t, float64(0), req["temperature"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"text":  "hello",
			"usage": map[string]any{"tokens": 1},
		})
	}))

	resp, err := conn.Send(context.Background(), &connection.Request{
		Model:       "test-model",
		Messages:    []connection.Message{{Role: "user", Content: "hi"}},
		Temperature: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, 1, resp.Usage.TotalTokens)
	assert.Empty(t, resp.ToolCalls)
}

func TestSendToolCalls(t *testing.T) {
	t.Parallel()

	conn := newTestConn(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{
			"tool_calls": [
				{"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"location\":\"Seattle\"}"}}
			],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5}
		}`)
	}))

	resp, err := conn.Send(context.Background(), &connection.Request{
		Model:    "test-model",
		Messages: []connection.Message{{Role: "user", Content: "weather?"}},
	})
	require.NoError(t, err)
	want := []llms.ToolCall{{
		ID:           "call_1",
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: "get_weather", Arguments: `{"location":"Seattle"}`},
	}}
	if diff := cmp.Diff(want, resp.ToolCalls); diff != "" {
		t.Fatalf("tool calls mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestSendAuthRejectedNoRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	conn := newTestConn(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))

	_, err := conn.Send(context.Background(), &connection.Request{Model: "test-model"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, llms.ErrAuthentication))
	assert.EqualValues(t, 1, calls.Load(), "auth failures must not be retried")
}

func TestSendCredentialAcquisitionFails(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
	}))
	t.Cleanup(srv.Close)

	conn, err := connection.New(llms.ProviderOpenAI, srv.URL, connection.StaticToken(""))
	require.NoError(t, err)

	_, err = conn.Send(context.Background(), &connection.Request{Model: "test-model"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, llms.ErrAuthentication))
	assert.Zero(t, calls.Load(), "no network call when credentials cannot be acquired")
}

func TestSendTransportError(t *testing.T) {
	t.Parallel()

	conn := newTestConn(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))

	_, err := conn.Send(context.Background(), &connection.Request{Model: "test-model"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, llms.ErrTransport))
	assert.Contains(t, err.Error(), "overloaded")
}

func TestSendMalformedResponse(t *testing.T) {
	t.Parallel()

	conn := newTestConn(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"text": "unterminated`)
	}))

	_, err := conn.Send(context.Background(), &connection.Request{Model: "test-model"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, llms.ErrResponseParse))
}

func TestSendUnsupportedModel(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	conn := newTestConn(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
	}), connection.WithModels("test-model"))

	_, err := conn.Send(context.Background(), &connection.Request{Model: "other-model"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, llms.ErrUnsupportedModel))
	assert.Zero(t, calls.Load())
}

func TestSendNegativeUsageClamped(t *testing.T) {
	t.Parallel()

	conn := newTestConn(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"text":"x","usage":{"prompt_tokens":-3,"completion_tokens":7}}`)
	}))

	resp, err := conn.Send(context.Background(), &connection.Request{Model: "test-model"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, resp.Usage.PromptTokens, 0)
	assert.GreaterOrEqual(t, resp.Usage.CompletionTokens, 0)
	assert.GreaterOrEqual(t, resp.Usage.TotalTokens, 0)
}

func TestSendAppliesDefaults(t *testing.T) {
	t.Parallel()

	conn := newTestConn(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, float64(512), req["max_tokens"])
		assert.Equal(t, []any{"STOP"}, req["stop"])
		fmt.Fprint(w, `{"text":"ok","usage":{"tokens":1}}`)
	}), connection.WithDefaults(connection.Defaults{
		MaxTokens: 512,
		Stop:      []string{"STOP"},
	}))

	_, err := conn.Send(context.Background(), &connection.Request{Model: "test-model"})
	require.NoError(t, err)
}

func TestSendRequestOverridesDefaults(t *testing.T) {
	t.Parallel()

	conn := newTestConn(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, float64(64), req["max_tokens"])
		fmt.Fprint(w, `{"text":"ok","usage":{"tokens":1}}`)
	}), connection.WithDefaults(connection.Defaults{MaxTokens: 512}))

	_, err := conn.Send(context.Background(), &connection.Request{Model: "test-model", MaxTokens: 64})
	require.NoError(t, err)
}

func TestSendStreamMatchesSend(t *testing.T) {
	t.Parallel()

	// Deterministic endpoint: unary and streaming replies carry the same
	// content, split into chunks for the latter.
	const full = "the quick brown fox"
	chunks := []string{"the ", "quick ", "brown ", "fox"}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if streaming, _ := req["stream"].(bool); streaming {
			enc := json.NewEncoder(w)
			for _, chunk := range chunks {
				_ = enc.Encode(map[string]any{"text": chunk})
			}
			_ = enc.Encode(map[string]any{"done": true, "usage": map[string]any{"prompt_tokens": 4, "completion_tokens": 4}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"text":  full,
			"usage": map[string]any{"prompt_tokens": 4, "completion_tokens": 4},
		})
	})
	conn := newTestConn(t, handler)

	req := &connection.Request{
		Model:    "test-model",
		Messages: []connection.Message{{Role: "user", Content: "go"}},
	}

	unary, err := conn.Send(context.Background(), req)
	require.NoError(t, err)

	var streamed []byte
	streamResp, err := conn.SendStream(context.Background(), req, func(_ context.Context, chunk []byte) error {
		streamed = append(streamed, chunk...)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, unary.Text, string(streamed))
	assert.Equal(t, unary.Text, streamResp.Text)
	assert.Equal(t, unary.Usage, streamResp.Usage)
}

func TestSendStreamAbort(t *testing.T) {
	t.Parallel()

	conn := newTestConn(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		enc := json.NewEncoder(w)
		_ = enc.Encode(map[string]any{"text": "one"})
		_ = enc.Encode(map[string]any{"text": "two"})
		_ = enc.Encode(map[string]any{"done": true})
	}))

	stop := errors.New("enough")
	_, err := conn.SendStream(context.Background(), &connection.Request{Model: "m"}, func(context.Context, []byte) error {
		return stop
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, stop))
}

func TestSendStreamTruncated(t *testing.T) {
	t.Parallel()

	conn := newTestConn(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "partial"})
		// stream ends without a done marker
	}))

	_, err := conn.SendStream(context.Background(), &connection.Request{Model: "m"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, llms.ErrResponseParse))
}

func TestGenerateHonorsMode(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if streaming, _ := req["stream"].(bool); streaming {
			enc := json.NewEncoder(w)
			_ = enc.Encode(map[string]any{"text": "streamed"})
			_ = enc.Encode(map[string]any{"done": true})
			return
		}
		fmt.Fprint(w, `{"text":"unary","usage":{"tokens":1}}`)
	})

	unaryConn := newTestConn(t, handler, connection.WithMode(connection.ModeUnary))
	resp, err := unaryConn.Generate(context.Background(), &connection.Request{Model: "m"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "unary", resp.Text)

	streamConn := newTestConn(t, handler, connection.WithMode(connection.ModeStream))
	resp, err = streamConn.Generate(context.Background(), &connection.Request{Model: "m"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "streamed", resp.Text)
}

func TestConcurrentSendsDoNotLeakState(t *testing.T) {
	t.Parallel()

	// The endpoint echoes the model and prompt back, so any
	// cross-contamination between concurrent requests is visible in the
	// responses.
	conn := newTestConn(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req connection.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"text":  req.Model + ":" + req.Messages[0].Content,
			"usage": map[string]any{"tokens": 1},
		})
	}))

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("%d", i)
			resp, err := conn.Send(context.Background(), &connection.Request{
				Model:    "model-" + id,
				Messages: []connection.Message{{Role: "user", Content: "prompt-" + id}},
			})
			if err != nil {
				errs[i] = err
				return
			}
			if want := "model-" + id + ":prompt-" + id; resp.Text != want {
				errs[i] = errors.Errorf("got %q, want %q", resp.Text, want)
			}
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		assert.NoError(t, err, "worker %d", i)
	}
}

func TestSendContextCancelled(t *testing.T) {
	t.Parallel()

	conn := newTestConn(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := conn.Send(ctx, &connection.Request{Model: "m"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, llms.ErrTransport))
}

// No t.Parallel: this test swaps the global metrics sink.
func TestSendCountsResponseBytes(t *testing.T) {
	im := metrics.NewInmemSink(time.Minute, time.Minute)
	_, err := metrics.NewGlobal(&metrics.Config{FilterDefault: true}, im)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = metrics.NewGlobal(&metrics.Config{FilterDefault: true}, &metrics.BlackholeSink{})
	})

	const unaryBody = `{"text":"hello","usage":{"tokens":1}}`
	conn := newTestConn(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if streaming, _ := req["stream"].(bool); streaming {
			enc := json.NewEncoder(w)
			_ = enc.Encode(map[string]any{"text": "hello"})
			_ = enc.Encode(map[string]any{"done": true, "usage": map[string]any{"tokens": 1}})
			return
		}
		fmt.Fprint(w, unaryBody)
	}))

	_, err = conn.Send(context.Background(), &connection.Request{Model: "unary-bytes-model"})
	require.NoError(t, err)
	assert.Equal(t, float64(len(unaryBody)), receivedBytes(im, "unary-bytes-model"))

	_, err = conn.SendStream(context.Background(), &connection.Request{Model: "stream-bytes-model"}, nil)
	require.NoError(t, err)
	assert.Positive(t, receivedBytes(im, "stream-bytes-model"))
}

func receivedBytes(im *metrics.InmemSink, model string) float64 {
	for _, interval := range im.Data() {
		for key, counter := range interval.Counters {
			if strings.HasPrefix(key, metricskey.StatsConnBytesReceived.Name+";") &&
				strings.Contains(key, "model="+model) {
				return counter.Sum
			}
		}
	}
	return 0
}
