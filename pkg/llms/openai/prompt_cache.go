package openai

import (
	"github.com/effective-security/llmconn/pkg/llms"
	"github.com/effective-security/llmconn/pkg/llms/openai/internal/openaiclient"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/responses"
)

// promptCacheRequest returns the request-level cache policy, or nil when the
// options carry none. Breakpoint targets are block-level markers for other
// providers and have no OpenAI request field.
func promptCacheRequest(opts *llms.CallOptions) *llms.PromptCacheRequestPolicy {
	if opts == nil || opts.PromptCachePolicy == nil {
		return nil
	}
	return opts.PromptCachePolicy.Request
}

// supportsPromptCache reports whether the provider honors the
// prompt_cache_key and prompt_cache_retention request fields.
func supportsPromptCache(provider openaiclient.ProviderType) bool {
	switch provider {
	case openaiclient.ProviderOpenAI, openaiclient.ProviderAzure, openaiclient.ProviderAzureAD:
		return true
	}
	return false
}

// cacheRetentionWire maps the retention constant to the wire value. The API
// accepts "in_memory" and "24h"; both the internal constant and the SDK's
// ResponseNewParamsPromptCacheRetentionInMemory spell it "in-memory", which
// the API rejects.
func cacheRetentionWire(retention llms.PromptCacheRetention) string {
	if retention == llms.PromptCacheRetentionInMemory {
		return "in_memory"
	}
	return string(retention)
}

func applyPromptCacheToChatRequest(req *openaiclient.ChatRequest, provider openaiclient.ProviderType, opts *llms.CallOptions) {
	rp := promptCacheRequest(opts)
	if req == nil || rp == nil || !supportsPromptCache(provider) {
		return
	}
	if rp.Key != "" {
		req.PromptCacheKey = rp.Key
	}
	if rp.Retention != "" {
		req.PromptCacheRetention = cacheRetentionWire(rp.Retention)
	}
}

func applyPromptCacheToResponsesRequest(req *responses.ResponseNewParams, provider openaiclient.ProviderType, opts *llms.CallOptions) {
	rp := promptCacheRequest(opts)
	if req == nil || rp == nil || !supportsPromptCache(provider) {
		return
	}
	if rp.Key != "" {
		req.PromptCacheKey = param.NewOpt(rp.Key)
	}
	if rp.Retention != "" {
		req.PromptCacheRetention = responses.ResponseNewParamsPromptCacheRetention(cacheRetentionWire(rp.Retention))
	}
}
