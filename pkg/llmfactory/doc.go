// Package llmfactory creates and caches LLM models from a provider
// configuration, supporting OpenAI, Azure, Anthropic, GoogleAI, Bedrock and
// Ollama providers with model selection by name or type.
package llmfactory
