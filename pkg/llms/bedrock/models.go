package bedrock

// Model IDs for the Bedrock runtime. Inference profile variants with a
// region prefix (for example "us.anthropic.claude-3-5-sonnet-20241022-v2:0")
// are accepted as well.
const (
	// ModelAnthropicClaude35SonnetV2 is Claude 3.5 Sonnet v2.
	ModelAnthropicClaude35SonnetV2 = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	// ModelAnthropicClaude35Haiku is Claude 3.5 Haiku.
	ModelAnthropicClaude35Haiku = "anthropic.claude-3-5-haiku-20241022-v1:0"
	// ModelAnthropicClaude3Opus is Claude 3 Opus.
	ModelAnthropicClaude3Opus = "anthropic.claude-3-opus-20240229-v1:0"
	// ModelAnthropicClaude3Sonnet is Claude 3 Sonnet.
	ModelAnthropicClaude3Sonnet = "anthropic.claude-3-sonnet-20240229-v1:0"
	// ModelAnthropicClaude3Haiku is Claude 3 Haiku.
	ModelAnthropicClaude3Haiku = "anthropic.claude-3-haiku-20240307-v1:0"

	// ModelAmazonTitanEmbedTextV2 is the Titan text embedding model.
	ModelAmazonTitanEmbedTextV2 = "amazon.titan-embed-text-v2:0"
)
