// Package openaiclient is the raw HTTP client for OpenAI-compatible chat
// completion endpoints, including the Azure OpenAI variants.
package openaiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmconn/pkg/llms"
	"github.com/effective-security/llmconn/pkg/schema"
)

const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultChatModel = "gpt-5-mini"
	DefaultMaxTokens = 2 * 16384
)

// ProviderType is the flavor of OpenAI-compatible API.
type ProviderType string

const (
	ProviderOpenAI  ProviderType = "OPENAI"
	ProviderAzure   ProviderType = "AZURE"
	ProviderAzureAD ProviderType = "AZURE_AD"
)

// ToolType is the type of a tool.
type ToolType string

const (
	ToolTypeFunction ToolType = "function"
)

// Doer performs a HTTP request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for the OpenAI API.
type Client struct {
	Model    string
	Provider ProviderType

	token        string
	baseURL      string
	organization string
	httpClient   Doer

	EmbeddingModel string
	// required when the provider is Azure or AzureAD
	apiVersion string

	ResponseFormat *schema.ResponseFormat
}

// New returns a new OpenAI client.
func New(provider ProviderType, model, token, baseURL, organization, apiVersion string,
	httpClient Doer, embeddingModel string, responseFormat *schema.ResponseFormat,
) (*Client, error) {
	if token == "" {
		return nil, errors.WithMessage(llms.ErrAuthentication, "missing API token")
	}
	c := &Client{
		Model:          model,
		Provider:       provider,
		token:          token,
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		organization:   organization,
		apiVersion:     apiVersion,
		httpClient:     httpClient,
		EmbeddingModel: embeddingModel,
		ResponseFormat: responseFormat,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return c, nil
}

// IsAzure reports whether the provider is an Azure variant.
func IsAzure(provider ProviderType) bool {
	return provider == ProviderAzure || provider == ProviderAzureAD
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.Provider == ProviderAzure {
		req.Header.Set("api-key", c.token)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.organization != "" {
		req.Header.Set("OpenAI-Organization", c.organization)
	}
}

func (c *Client) buildURL(suffix string, model string) string {
	if IsAzure(c.Provider) {
		// azure example url:
		// /openai/deployments/{model}/chat/completions?api-version={api_version}
		return fmt.Sprintf("%s/openai/deployments/%s%s?api-version=%s",
			c.baseURL, model, suffix, c.apiVersion)
	}
	return c.baseURL + suffix
}

type errorMessage struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *Client) errorFromResponse(resp *http.Response) error {
	err := llms.ErrorFromStatusCode(resp.StatusCode)
	var errResp errorMessage
	if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr == nil && errResp.Error.Message != "" {
		return errors.WithMessage(err, errResp.Error.Message)
	}
	return err
}

// CreateChat creates a chat completion.
func (c *Client) CreateChat(ctx context.Context, r *ChatRequest) (*ChatCompletionResponse, error) {
	if r.Model == "" {
		if c.Model == "" {
			r.Model = DefaultChatModel
		} else {
			r.Model = c.Model
		}
	}
	resp, err := c.createChat(ctx, r)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, llms.ErrEmptyResponse
	}
	return resp, nil
}
