package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics holds the prometheus collectors of the service.
// All methods are safe on a nil receiver so tests can omit metrics.
type PipelineMetrics struct {
	DealOperationsTotal    *prometheus.CounterVec
	StageMovesTotal        *prometheus.CounterVec
	ProductOperationsTotal *prometheus.CounterVec
	HistoryWriteFailures   prometheus.Counter
	MetricsRefreshDuration prometheus.Histogram

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewPipelineMetrics registers the collectors on reg
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)

	return &PipelineMetrics{
		DealOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_deal_operations_total",
				Help: "Deal lifecycle operations by kind",
			},
			[]string{"operation"},
		),
		StageMovesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_stage_moves_total",
				Help: "Deals moved between stages, by funnel",
			},
			[]string{"funnel_id"},
		),
		ProductOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_product_operations_total",
				Help: "Line item additions and removals",
			},
			[]string{"operation"},
		),
		HistoryWriteFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_history_write_failures_total",
				Help: "Best-effort history writes that were skipped",
			},
		),
		MetricsRefreshDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipeline_stage_metrics_refresh_seconds",
				Help:    "Duration of a full stage metrics refresh",
				Buckets: prometheus.DefBuckets,
			},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

func (m *PipelineMetrics) DealOperation(operation string) {
	if m == nil {
		return
	}
	m.DealOperationsTotal.WithLabelValues(operation).Inc()
}

func (m *PipelineMetrics) StageMove(funnelID int64) {
	if m == nil {
		return
	}
	m.StageMovesTotal.WithLabelValues(strconv.FormatInt(funnelID, 10)).Inc()
}

func (m *PipelineMetrics) ProductOperation(operation string) {
	if m == nil {
		return
	}
	m.ProductOperationsTotal.WithLabelValues(operation).Inc()
}

func (m *PipelineMetrics) HistoryWriteSkipped() {
	if m == nil {
		return
	}
	m.HistoryWriteFailures.Inc()
}

func (m *PipelineMetrics) ObserveMetricsRefresh(d time.Duration) {
	if m == nil {
		return
	}
	m.MetricsRefreshDuration.Observe(d.Seconds())
}

func (m *PipelineMetrics) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
