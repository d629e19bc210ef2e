package anthropic

import (
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/effective-security/llmconn/pkg/schema"
)

// structuredOutputsBeta is the anthropic-beta token required by the
// output_format request field.
const structuredOutputsBeta = "structured-outputs-2025-11-13"

// outputConfig mirrors the output_format request field of the structured
// outputs beta.
type outputConfig struct {
	Format outputFormat `json:"format"`
}

type outputFormat struct {
	Type   string         `json:"type"`
	Schema map[string]any `json:"schema"`
}

// toAnthropicOutputConfig converts a json_schema response format into the
// Anthropic structured outputs request payload. Returns nil when the format
// does not carry a usable schema.
func toAnthropicOutputConfig(rf *schema.ResponseFormat) *outputConfig {
	if rf == nil || rf.Type != "json_schema" || rf.JSONSchema == nil || rf.JSONSchema.Schema == nil {
		return nil
	}
	converted := convertToAnthropicSchema(rf.JSONSchema.Schema)
	if converted == nil {
		return nil
	}
	return &outputConfig{
		Format: outputFormat{
			Type:   "json_schema",
			Schema: converted,
		},
	}
}

// convertToAnthropicSchema flattens the response_format schema dialect into
// the plain JSON schema map Anthropic expects.
func convertToAnthropicSchema(prop *schema.ResponseFormatJSONSchemaProperty) map[string]any {
	if prop == nil {
		return nil
	}
	out := map[string]any{}
	if prop.Type != "" {
		out["type"] = prop.Type
	}
	if prop.Description != "" {
		out["description"] = prop.Description
	}
	if len(prop.Enum) > 0 {
		out["enum"] = prop.Enum
	}
	if len(prop.Properties) > 0 {
		props := make(map[string]any, len(prop.Properties))
		for name, p := range prop.Properties {
			props[name] = convertToAnthropicSchema(p)
		}
		out["properties"] = props
	}
	if len(prop.Required) > 0 {
		out["required"] = prop.Required
	}
	if prop.Items != nil {
		out["items"] = convertToAnthropicSchema(prop.Items)
	}
	if prop.AdditionalProperties != nil {
		out["additionalProperties"] = *prop.AdditionalProperties
	}
	return out
}

// structuredOutputRequestOptions injects output_format into the raw request
// body. The SDK does not expose the beta field on MessageNewParams yet.
func structuredOutputRequestOptions(cfg *outputConfig) []option.RequestOption {
	if cfg == nil {
		return nil
	}
	return []option.RequestOption{
		option.WithHeaderAdd("anthropic-beta", structuredOutputsBeta),
		option.WithJSONSet("output_format", cfg.Format),
	}
}
