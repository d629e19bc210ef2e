package llms

// PromptCacheTargetKind selects what a prompt cache breakpoint is attached to.
type PromptCacheTargetKind string

const (
	// PromptCacheTargetMessagePart targets a single part of a request message.
	PromptCacheTargetMessagePart PromptCacheTargetKind = "message_part"
	// PromptCacheTargetTool targets a tool definition in the request.
	PromptCacheTargetTool PromptCacheTargetKind = "tool"
)

// PromptCacheTTL is a provider-agnostic cache entry lifetime hint.
type PromptCacheTTL string

const (
	// PromptCacheTTL5m keeps the cached prefix for five minutes.
	PromptCacheTTL5m PromptCacheTTL = "5m"
	// PromptCacheTTL1h keeps the cached prefix for one hour. Providers may
	// require an opt-in (Anthropic needs the extended-cache-ttl beta).
	PromptCacheTTL1h PromptCacheTTL = "1h"
)

// PromptCacheRetention is a request-level cache retention hint.
type PromptCacheRetention string

const (
	// PromptCacheRetentionInMemory requests in-memory retention.
	PromptCacheRetentionInMemory PromptCacheRetention = "in-memory"
	// PromptCacheRetention24h requests 24 hour retention.
	PromptCacheRetention24h PromptCacheRetention = "24h"
)

// PromptCacheTarget identifies the request element a breakpoint applies to.
// MessageIndex and PartIndex index into the caller-provided messages for
// PromptCacheTargetMessagePart; ToolIndex indexes into CallOptions.Tools for
// PromptCacheTargetTool.
type PromptCacheTarget struct {
	Kind         PromptCacheTargetKind `json:"kind"`
	MessageIndex int                   `json:"message_index,omitempty"`
	PartIndex    int                   `json:"part_index,omitempty"`
	ToolIndex    int                   `json:"tool_index,omitempty"`
}

// PromptCacheBreakpoint marks a cacheable prefix boundary in the request.
type PromptCacheBreakpoint struct {
	Target PromptCacheTarget `json:"target"`
	// TTL is optional; an empty value uses the provider default.
	TTL PromptCacheTTL `json:"ttl,omitempty"`
}

// PromptCacheRequestPolicy carries request-scoped cache hints, used by
// providers that key caching per request (OpenAI) rather than per block.
type PromptCacheRequestPolicy struct {
	// Key routes requests with the same prefix to the same cache shard.
	Key string `json:"key,omitempty"`
	// Retention is how long the provider should keep the cached prefix.
	Retention PromptCacheRetention `json:"retention,omitempty"`
}

// PromptCachePolicy describes prompt caching for a single call. Providers
// apply the parts of the policy they support and ignore the rest.
type PromptCachePolicy struct {
	Request     *PromptCacheRequestPolicy `json:"request,omitempty"`
	Breakpoints []PromptCacheBreakpoint   `json:"breakpoints,omitempty"`
}

// WithPromptCachePolicy attaches a prompt cache policy to the call.
func WithPromptCachePolicy(policy *PromptCachePolicy) CallOption {
	return func(o *CallOptions) {
		o.PromptCachePolicy = policy
	}
}
