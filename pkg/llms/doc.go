// Package llms defines the common chat-model interface shared by all
// provider adapters: normalized messages, generation options, the typed
// error taxonomy, and provider capability flags.
//
// Provider adapters live in subpackages (openai, anthropic, googleai,
// bedrock, ollama) and translate between these normalized types and each
// provider's wire format. The low-level request/response plumbing shared
// by raw HTTP providers is in pkg/connection.
package llms
