package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	PipelineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faultline",
			Name:      "pipeline_requests_total",
			Help:      "Total number of pipeline executions",
		},
		[]string{"mode", "status"},
	)

	PipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "faultline",
			Name:      "pipeline_duration_seconds",
			Help:      "End-to-end pipeline duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"mode"},
	)

	ResponseCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faultline",
			Name:      "response_cache_total",
			Help:      "Response cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faultline",
			Name:      "generation_requests_total",
			Help:      "Total number of generation requests",
		},
		[]string{"provider", "model", "status"},
	)

	GenerationRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "faultline",
			Name:      "generation_request_duration_seconds",
			Help:      "Generation request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	GenerationTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faultline",
			Name:      "generation_tokens_total",
			Help:      "Total generation tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faultline",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "faultline",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	ExpertPassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faultline",
			Name:      "expert_passes_total",
			Help:      "Expert diagnosis pass outcomes",
		},
		[]string{"status"}, // "success" / "timeout" / "error" / "gate_timeout"
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(PipelineRequestsTotal)
	prometheus.MustRegister(PipelineDuration)
	prometheus.MustRegister(ResponseCacheTotal)
	prometheus.MustRegister(GenerationRequestsTotal)
	prometheus.MustRegister(GenerationRequestDuration)
	prometheus.MustRegister(GenerationTokensTotal)
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(ExpertPassesTotal)
	pipelineMetricsRegistered = true
}
