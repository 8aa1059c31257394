// Package metrics holds the prometheus collectors for the pipeline. The CLI is
// a batch process, so instead of serving /metrics the registry is dumped to a
// textfile at exit for a node-exporter textfile collector to pick up.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LLM call latency (seconds)
	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "secretary_llm_call_duration_seconds",
			Help:    "LLM gateway call latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~200s
		},
		[]string{"template", "status"},
	)

	// LLM token usage
	LLMTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secretary_llm_tokens_total",
			Help: "Tokens consumed by LLM calls",
		},
		[]string{"template", "kind"}, // kind: prompt, completion
	)

	// Messages run through a pipeline stage
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secretary_messages_processed_total",
			Help: "Total number of messages processed",
		},
		[]string{"stage", "status"}, // stage: persona, memo; status: success, unmatched, failed, skipped
	)

	HypothesesAdded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "secretary_hypotheses_added_total",
			Help: "Persona hypotheses added to the collection",
		},
	)

	CheckpointsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "secretary_checkpoints_written_total",
			Help: "Persona checkpoints written",
		},
	)

	MemosWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secretary_memos_written_total",
			Help: "Memo files written to the memoboard",
		},
		[]string{"category", "type"},
	)
)

// RecordLLMCall records the latency of one gateway call.
func RecordLLMCall(template, status string, duration time.Duration) {
	LLMCallDuration.WithLabelValues(template, status).Observe(duration.Seconds())
}

// AddLLMTokens records prompt and completion token usage for a template.
func AddLLMTokens(template string, prompt, completion int) {
	if prompt > 0 {
		LLMTokens.WithLabelValues(template, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		LLMTokens.WithLabelValues(template, "completion").Add(float64(completion))
	}
}

// IncrementMessageProcessed counts one message through a stage.
func IncrementMessageProcessed(stage, status string) {
	MessagesProcessed.WithLabelValues(stage, status).Inc()
}

// IncrementMemoWritten counts one memo file.
func IncrementMemoWritten(category, memoType string) {
	MemosWritten.WithLabelValues(category, memoType).Inc()
}

// WriteTextfile writes every collector in the default registry to path in the
// prometheus text exposition format. An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
