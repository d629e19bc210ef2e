package openai

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmconn/pkg/connection"
	"github.com/effective-security/llmconn/pkg/llms"
	"github.com/effective-security/llmconn/pkg/llms/openai/internal/openaiclient"
	"github.com/effective-security/llmconn/pkg/schema"
)

const (
	tokenEnvVarName        = "OPENAI_API_KEY"      //nolint:gosec
	modelEnvVarName        = "OPENAI_MODEL"        //nolint:gosec
	baseURLEnvVarName      = "OPENAI_BASE_URL"     //nolint:gosec
	organizationEnvVarName = "OPENAI_ORGANIZATION" //nolint:gosec
)

const (
	DefaultAPIVersion = "2023-05-15"
)

type options struct {
	auth         connection.TokenProvider
	model        string
	baseURL      string
	organization string
	provider     llms.ProviderType
	httpClient   openaiclient.Doer

	responseFormat *schema.ResponseFormat

	// required when provider is AZURE or AZURE_AD
	apiVersion     string
	embeddingModel string
}

// Option is a functional option for the OpenAI client.
type Option func(*options)

// WithToken passes a static API token to the client.
func WithToken(token string) Option {
	return func(opts *options) {
		opts.auth = connection.StaticToken(token)
	}
}

// WithTokenProvider passes a credential source to the client. If neither
// this nor WithToken is set, the token is read from the OPENAI_API_KEY
// environment variable.
func WithTokenProvider(auth connection.TokenProvider) Option {
	return func(opts *options) {
		opts.auth = auth
	}
}

// WithModel passes the OpenAI model to the client. If not set, the model
// is read from the OPENAI_MODEL environment variable.
// Required when provider is Azure.
func WithModel(model string) Option {
	return func(opts *options) {
		opts.model = model
	}
}

// WithEmbeddingModel passes the embedding model to the client. Required
// when provider is Azure.
func WithEmbeddingModel(embeddingModel string) Option {
	return func(opts *options) {
		opts.embeddingModel = embeddingModel
	}
}

// WithBaseURL passes the OpenAI base url to the client. If not set, the
// base url is read from the OPENAI_BASE_URL environment variable, falling
// back to https://api.openai.com/v1.
func WithBaseURL(baseURL string) Option {
	return func(opts *options) {
		opts.baseURL = baseURL
	}
}

// WithOrganization passes the OpenAI organization to the client. If not
// set, the organization is read from OPENAI_ORGANIZATION.
func WithOrganization(organization string) Option {
	return func(opts *options) {
		opts.organization = organization
	}
}

// WithProvider passes the provider type to the client. If not set, the
// default value is ProviderOpenAI.
func WithProvider(provider llms.ProviderType) Option {
	return func(opts *options) {
		opts.provider = provider
	}
}

// WithAPIVersion passes the api version to the client. If not set, the
// default value is DefaultAPIVersion.
func WithAPIVersion(apiVersion string) Option {
	return func(opts *options) {
		opts.apiVersion = apiVersion
	}
}

// WithHTTPClient allows setting a custom HTTP client.
func WithHTTPClient(client openaiclient.Doer) Option {
	return func(opts *options) {
		opts.httpClient = client
	}
}

// WithResponseFormat allows setting a custom response format.
func WithResponseFormat(responseFormat *schema.ResponseFormat) Option {
	return func(opts *options) {
		opts.responseFormat = responseFormat
	}
}

func newClient(opts ...Option) (*options, *openaiclient.Client, error) {
	options := &options{
		provider:   llms.ProviderOpenAI,
		apiVersion: DefaultAPIVersion,
	}
	for _, opt := range opts {
		opt(options)
	}

	if options.auth == nil {
		options.auth = connection.EnvToken(tokenEnvVarName)
	}
	if options.model == "" {
		options.model = os.Getenv(modelEnvVarName)
	}
	if options.baseURL == "" {
		options.baseURL = os.Getenv(baseURLEnvVarName)
	}
	if options.organization == "" {
		options.organization = os.Getenv(organizationEnvVarName)
	}

	creds, err := options.auth.Token(context.Background())
	if err != nil {
		return options, nil, errors.WithMessage(err, "failed to acquire credentials")
	}

	c, err := openaiclient.New(
		openaiclient.ProviderType(options.provider), options.model, creds.Token, options.baseURL,
		options.organization, options.apiVersion, options.httpClient,
		options.embeddingModel, options.responseFormat,
	)
	return options, c, err
}
