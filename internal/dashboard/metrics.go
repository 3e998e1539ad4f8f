package dashboard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values.
const (
	RouteIndex        = "index"
	RouteChart        = "chart"
	RouteMap          = "map"
	RouteSearch       = "search"
	RouteExport       = "export"
	RouteAssistant    = "assistant"
	ReasonRateLimited = "rate_limited"
	ReasonBadSession  = "bad_session"
	ErrorTypeRender   = "render_error"
	ErrorTypeMap      = "map_error"
	ErrorTypeExport   = "export_error"
)

var (
	// HitsTotal counts requests by route and HTTP status code.
	HitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safecity_dashboard_hits_total",
		Help: "Total number of dashboard requests",
	}, []string{"route", "status"})

	// DeniedTotal counts refused requests by reason.
	DeniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safecity_dashboard_denied_total",
		Help: "Total number of refused dashboard requests",
	}, []string{"reason"})

	// ErrorsTotal counts errors by type.
	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safecity_dashboard_errors_total",
		Help: "Total number of dashboard errors",
	}, []string{"type"})

	// LatencyHistogram measures request latency.
	LatencyHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "safecity_dashboard_latency_seconds",
		Help:    "Latency of dashboard requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)
