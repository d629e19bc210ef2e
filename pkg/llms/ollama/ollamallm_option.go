package ollama

import (
	"os"

	"github.com/effective-security/llmconn/pkg/llms/ollama/internal/ollamaclient"
)

const (
	hostEnvVarName  = "OLLAMA_HOST"
	modelEnvVarName = "OLLAMA_MODEL"
)

type options struct {
	host       string
	model      string
	format     string
	httpClient ollamaclient.Doer
}

// Option is a functional option for the Ollama client.
type Option func(*options)

// WithHost sets the runner address. If not set, the host is read from
// the OLLAMA_HOST environment variable, falling back to
// http://localhost:11434.
func WithHost(host string) Option {
	return func(opts *options) {
		opts.host = host
	}
}

// WithModel sets the default model. If not set, the model is read from
// the OLLAMA_MODEL environment variable.
func WithModel(model string) Option {
	return func(opts *options) {
		opts.model = model
	}
}

// WithFormat forces the output format; the only supported value is
// "json".
func WithFormat(format string) Option {
	return func(opts *options) {
		opts.format = format
	}
}

// WithHTTPClient allows setting a custom HTTP client.
func WithHTTPClient(client ollamaclient.Doer) Option {
	return func(opts *options) {
		opts.httpClient = client
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.host == "" {
		o.host = os.Getenv(hostEnvVarName)
	}
	if o.model == "" {
		o.model = os.Getenv(modelEnvVarName)
	}
	return o
}
