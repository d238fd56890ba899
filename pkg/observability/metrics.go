// Package observability provides Prometheus metrics for monitoring
// tributary stream normalization.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// StreamEvents counts normalized events emitted by vendor decoders,
	// labeled by provider and event type.
	StreamEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tributary_stream_events_total",
			Help: "Normalized stream events",
		},
		[]string{"provider", "type"},
	)

	// MalformedChunks counts stream chunks that failed to decode and
	// were skipped.
	MalformedChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tributary_malformed_chunks_total",
			Help: "Skipped undecodable stream chunks",
		},
		[]string{"provider"},
	)

	// EmptyStreamFallbacks counts streams that produced no output and
	// were retried non-streaming.
	EmptyStreamFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tributary_empty_stream_fallbacks_total",
			Help: "Empty-stream non-streaming retries",
		},
		[]string{"provider"},
	)

	// ProviderRequestDuration records backend request duration in seconds
	// by provider and mode (stream or complete).
	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tributary_provider_request_duration_seconds",
			Help:    "Provider request duration",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "mode"},
	)

	// ProviderTokensTotal counts tokens reported by backends by direction
	// (input/output).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tributary_provider_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	// XMLToolCallsTotal counts tool calls recovered from text-embedded
	// XML syntax.
	XMLToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tributary_xml_tool_calls_total",
			Help: "Tool calls parsed from embedded XML",
		},
		[]string{"provider", "tool_name"},
	)
)

func init() {
	prometheus.MustRegister(
		StreamEvents,
		MalformedChunks,
		EmptyStreamFallbacks,
		ProviderRequestDuration,
		ProviderTokensTotal,
		XMLToolCallsTotal,
	)
}
