package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway's Prometheus metrics.
type Metrics struct {
	RequestTotal         *prometheus.CounterVec
	RequestDurationMs    *prometheus.HistogramVec
	TokensTotal          *prometheus.CounterVec
	CacheOpsTotal        *prometheus.CounterVec
	ProviderFetchFailed  *prometheus.CounterVec
	StreamChunksTotal    prometheus.Counter
	UsageQueueDropsTotal prometheus.Counter
	UsageQueueDepth      prometheus.GaugeFunc
}

// NewMetrics creates and registers all metrics with reg. queueDepth feeds
// the usage backlog gauge.
func NewMetrics(reg prometheus.Registerer, queueDepth func() float64) *Metrics {
	factory := promauto.With(reg)
	if queueDepth == nil {
		queueDepth = func() float64 { return 0 }
	}
	return &Metrics{
		RequestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_request_total",
			Help: "Total completion requests processed by the gateway.",
		}, []string{"project", "cluster", "status", "streamed"}),

		RequestDurationMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_ms",
			Help:    "Total request duration in milliseconds, including engine latency.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"cluster", "provider"}),

		TokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_tokens_total",
			Help: "Total tokens relayed through the gateway.",
		}, []string{"project", "provider", "model", "direction"}),

		CacheOpsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_cache_ops_total",
			Help: "Cache operations by tier and outcome.",
		}, []string{"tier", "outcome"}),

		ProviderFetchFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_provider_fetch_failures_total",
			Help: "Model metadata fetches that failed and were omitted from the catalog.",
		}, []string{"provider"}),

		StreamChunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_stream_chunks_total",
			Help: "SSE chunks forwarded to callers.",
		}),

		UsageQueueDropsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_usage_queue_drops_total",
			Help: "Usage records dropped because the recorder queue was full.",
		}),

		UsageQueueDepth: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "gateway_usage_queue_depth",
			Help: "Current usage recorder backlog.",
		}, queueDepth),
	}
}

// RequestLabels holds the label values for one completed request.
type RequestLabels struct {
	Project          string
	Cluster          string
	Provider         string
	Model            string
	Status           string
	Streamed         bool
	DurationMs       float64
	PromptTokens     int
	CompletionTokens int
	ChunkCount       int
}

// RecordRequest records the per-request metrics in one shot.
func (m *Metrics) RecordRequest(labels RequestLabels) {
	streamed := "false"
	if labels.Streamed {
		streamed = "true"
	}
	m.RequestTotal.WithLabelValues(labels.Project, labels.Cluster, labels.Status, streamed).Inc()
	m.RequestDurationMs.WithLabelValues(labels.Cluster, labels.Provider).Observe(labels.DurationMs)

	if labels.PromptTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Project, labels.Provider, labels.Model, "prompt").Add(float64(labels.PromptTokens))
	}
	if labels.CompletionTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Project, labels.Provider, labels.Model, "completion").Add(float64(labels.CompletionTokens))
	}
	if labels.ChunkCount > 0 {
		m.StreamChunksTotal.Add(float64(labels.ChunkCount))
	}
}
