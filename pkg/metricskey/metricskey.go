// Package metricskey declares the metrics emitted by connections and
// provider adapters.
package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsConnRequestsSent is a counter for requests sent to a model endpoint.
	StatsConnRequestsSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_conn_requests_sent",
		Help:         "stats_conn_requests_sent provides total requests sent to a model endpoint",
		RequiredTags: []string{"provider", "model"},
	}

	StatsConnRequestsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_conn_requests_failed",
		Help:         "stats_conn_requests_failed provides total failed model endpoint requests",
		RequiredTags: []string{"provider", "model"},
	}

	StatsConnBytesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_conn_bytes_sent",
		Help:         "stats_conn_bytes_sent provides total bytes sent to a model endpoint",
		RequiredTags: []string{"provider", "model"},
	}

	StatsConnBytesReceived = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_conn_bytes_received",
		Help:         "stats_conn_bytes_received provides total bytes received from a model endpoint",
		RequiredTags: []string{"provider", "model"},
	}

	StatsLLMInputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_input_tokens",
		Help:         "stats_llm_input_tokens provides total input tokens sent to LLM",
		RequiredTags: []string{"provider", "model"},
	}

	StatsLLMOutputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_output_tokens",
		Help:         "stats_llm_output_tokens provides total output tokens received from LLM",
		RequiredTags: []string{"provider", "model"},
	}

	StatsLLMTotalTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_total_tokens",
		Help:         "stats_llm_total_tokens provides total tokens sent and received from LLM",
		RequiredTags: []string{"provider", "model"},
	}
)

// Perf
var (
	PerfConnSend = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_conn_send",
		Help:         "perf_conn_send provides duration of a model endpoint call",
		RequiredTags: []string{"provider", "model"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfConnSend,
	&StatsConnBytesReceived,
	&StatsConnBytesSent,
	&StatsConnRequestsFailed,
	&StatsConnRequestsSent,
	&StatsLLMInputTokens,
	&StatsLLMOutputTokens,
	&StatsLLMTotalTokens,
}
