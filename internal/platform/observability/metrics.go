package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values shared by the status counters.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	DatasetLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safecity_dataset_loads_total",
		Help: "Total number of dataset loads by status",
	}, []string{"status"})

	DatasetLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "safecity_dataset_load_duration_seconds",
		Help:    "Duration of reading, decoding and normalizing the source table",
		Buckets: prometheus.DefBuckets,
	})

	DatasetRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "safecity_dataset_records",
		Help: "Number of incident records in the loaded dataset",
	})

	DatasetDroppedCells = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safecity_dataset_dropped_cells_total",
		Help: "Count cells that produced no record, by reason",
	}, []string{"reason"})

	BoundaryUnmatchedAreas = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "safecity_boundary_unmatched_areas",
		Help: "Area codes with totals but no boundary geometry in the last map build",
	})

	DashboardSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "safecity_dashboard_sessions",
		Help: "Number of live dashboard sessions",
	})

	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safecity_llm_requests_total",
		Help: "Total number of LLM requests",
	}, []string{"provider", "model", "status"})

	LLMRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "safecity_llm_request_latency_seconds",
		Help:    "Latency of LLM requests by provider and model",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"provider", "model"})

	LLMFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safecity_llm_fallbacks_total",
		Help: "Total number of LLM provider fallbacks",
	}, []string{"from_provider", "to_provider"})

	LLMCircuitBreakerOpens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safecity_llm_circuit_breaker_opens_total",
		Help: "Total number of LLM circuit breaker opens",
	}, []string{"provider"})

	LLMProviderAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "safecity_llm_provider_available",
		Help: "Whether an LLM provider is available (1) or not (0)",
	}, []string{"provider"})

	AssistantRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safecity_assistant_requests_total",
		Help: "Total number of assistant requests by kind and status",
	}, []string{"kind", "status"})
)
