package metricskey

import (
	"sort"
	"testing"

	"github.com/effective-security/metrics"
	"github.com/stretchr/testify/assert"
)

func TestMetricsDefinitions(t *testing.T) {
	// Test that all metrics have valid names and help text
	allMetrics := []*metrics.Describe{
		&PerfConnSend,
		&StatsConnBytesReceived,
		&StatsConnBytesSent,
		&StatsConnRequestsFailed,
		&StatsConnRequestsSent,
		&StatsLLMInputTokens,
		&StatsLLMOutputTokens,
		&StatsLLMTotalTokens,
	}

	for _, m := range allMetrics {
		assert.NotEmpty(t, m.Name, "Metric name should not be empty")
		assert.NotEmpty(t, m.Help, "Metric help text should not be empty")
		assert.NotEmpty(t, m.RequiredTags, "Metric should have required tags")
	}

	// Test that Metrics slice contains all metrics
	assert.Equal(t, len(allMetrics), len(Metrics), "Metrics slice should contain all defined metrics")

	// Test that Metrics slice is sorted by name
	isSorted := sort.SliceIsSorted(Metrics, func(i, j int) bool {
		return Metrics[i].Name < Metrics[j].Name
	})
	assert.True(t, isSorted, "Metrics slice should be sorted by name")

	// Test that all metrics in Metrics slice are unique
	seen := make(map[string]bool)
	for _, m := range Metrics {
		assert.False(t, seen[m.Name], "Metric name should be unique: %s", m.Name)
		seen[m.Name] = true
	}

	// Test specific metric properties
	t.Run("connection metrics have provider and model tags", func(t *testing.T) {
		connMetrics := []*metrics.Describe{
			&PerfConnSend,
			&StatsConnRequestsSent,
			&StatsConnRequestsFailed,
			&StatsConnBytesSent,
			&StatsConnBytesReceived,
		}
		for _, m := range connMetrics {
			assert.Contains(t, m.RequiredTags, "provider", "Connection metric should have provider tag: %s", m.Name)
			assert.Contains(t, m.RequiredTags, "model", "Connection metric should have model tag: %s", m.Name)
		}
	})

	t.Run("token metrics are counters", func(t *testing.T) {
		tokenMetrics := []*metrics.Describe{
			&StatsLLMInputTokens,
			&StatsLLMOutputTokens,
			&StatsLLMTotalTokens,
		}
		for _, m := range tokenMetrics {
			assert.Equal(t, metrics.TypeCounter, m.Type, "Token metric should be a counter: %s", m.Name)
		}
	})
}
