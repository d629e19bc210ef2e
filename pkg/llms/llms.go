package llms

import (
	"context"
)

// ProviderType identifies a model provider.
type ProviderType string

const (
	// ProviderAnthropic is the Anthropic Messages API.
	ProviderAnthropic ProviderType = "ANTHROPIC"
	// ProviderAzure is the Azure OpenAI API.
	ProviderAzure ProviderType = "AZURE"
	// ProviderAzureAD is the Azure OpenAI API with AD authentication.
	ProviderAzureAD ProviderType = "AZURE_AD"
	// ProviderBedrock is the AWS Bedrock runtime.
	ProviderBedrock ProviderType = "BEDROCK"
	// ProviderGoogleAI is the Google Gemini / Vertex AI API.
	ProviderGoogleAI ProviderType = "GOOGLEAI"
	// ProviderOllama is a locally hosted Ollama runner.
	ProviderOllama ProviderType = "OLLAMA"
	// ProviderOpenAI is the OpenAI API.
	ProviderOpenAI ProviderType = "OPENAI"
)

// Model is the interface chat models implement.
type Model interface {
	// GetProviderType returns the type of provider.
	GetProviderType() ProviderType
	// GenerateContent asks the model to generate content from a sequence of
	// messages. It's the most general interface for multi-modal LLMs that
	// support chat-like interactions.
	GenerateContent(ctx context.Context, messages []Message, options ...CallOption) (*ContentResponse, error)
}

// Embedder is implemented by providers that can embed texts as vectors.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Capability is a bitmask indicating supported features of an LLM provider.
type Capability uint64

const (
	// Basic text or chat generation
	CapabilityText Capability = 1 << iota

	// Structured response formats
	CapabilityJSONResponse
	CapabilityJSONSchema

	// Function/tool calling
	CapabilityFunctionCalling
	CapabilityMultiToolCalling

	// Multimodal inputs
	CapabilityVision

	// Open weight models / self-hosted
	CapabilitySelfHosted

	// Streaming token delivery
	CapabilityStreaming

	// System prompt support
	CapabilitySystemPrompt
)

var providerCapabilities = map[ProviderType]Capability{
	ProviderOpenAI: CapabilityText |
		CapabilityJSONResponse |
		CapabilityJSONSchema |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilityStreaming |
		CapabilitySystemPrompt |
		CapabilityVision,

	ProviderAzure: CapabilityText |
		CapabilityJSONResponse |
		CapabilityJSONSchema |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilityStreaming |
		CapabilitySystemPrompt,

	ProviderAzureAD: CapabilityText | CapabilityStreaming,

	ProviderAnthropic: CapabilityText |
		CapabilityJSONResponse |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilityStreaming |
		CapabilitySystemPrompt,

	ProviderGoogleAI: CapabilityText |
		CapabilityJSONResponse |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilityStreaming |
		CapabilitySystemPrompt |
		CapabilityVision,

	// Bedrock is used with Anthropic models.
	ProviderBedrock: CapabilityText |
		CapabilityJSONResponse |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilitySystemPrompt,

	ProviderOllama: CapabilityText |
		CapabilityJSONResponse |
		CapabilityStreaming |
		CapabilitySystemPrompt |
		CapabilitySelfHosted,
}

// ProviderCapabilities returns the capability set of a provider.
func ProviderCapabilities(pt ProviderType) Capability {
	return providerCapabilities[pt]
}

// Supports reports whether the provider supports the given capability.
func (p ProviderType) Supports(cap Capability) bool {
	return ProviderCapabilities(p)&cap != 0
}
