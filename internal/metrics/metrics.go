// Package metrics provides Prometheus metrics instrumentation for the controller.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline label values.
const (
	PipelineDomain = "domain"
	PipelineTLS    = "tls"
)

// Skip reason label values.
const (
	SkipReasonNoChange         = "no_change"
	SkipReasonTLSPresent       = "tls_present"
	SkipReasonInvalidDirective = "invalid_directive"
)

// Collector provides metrics recording interface.
// This allows components to record metrics without direct prometheus dependency.
type Collector interface {
	// Reconcile metrics
	RecordReconcileDuration(ctx context.Context, result string, duration time.Duration)
	RecordReconcileError(ctx context.Context, kind string)

	// Pipeline metrics
	RecordPatchApplied(ctx context.Context, pipeline string)
	RecordPipelineSkip(ctx context.Context, pipeline, reason string)

	// Kubernetes API metrics
	RecordAPICall(ctx context.Context, operation, status string, duration time.Duration)
	RecordAPIError(ctx context.Context, operation, errorType string)

	// Build metrics
	RecordBuildInfo(ctx context.Context, version, gitsha string)
}

// prometheusCollector implements Collector using Prometheus metrics.
type prometheusCollector struct {
	// Reconcile metrics
	reconcileDuration *prometheus.HistogramVec
	reconcileErrors   *prometheus.CounterVec

	// Pipeline metrics
	patchesApplied *prometheus.CounterVec
	pipelineSkips  *prometheus.CounterVec

	// Kubernetes API metrics
	apiDuration    *prometheus.HistogramVec
	apiCallsTotal  *prometheus.CounterVec
	apiErrorsTotal *prometheus.CounterVec

	buildInfo *prometheus.GaugeVec
}

// NewCollector creates a new Prometheus metrics collector and registers metrics.
func NewCollector(reg prometheus.Registerer) Collector {
	c := &prometheusCollector{}
	c.initReconcileMetrics()
	c.initPipelineMetrics()
	c.initAPIMetrics()
	c.buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autotls_build_info",
			Help: "Controller build information (always 1)",
		},
		[]string{"version", "gitsha"},
	)
	c.register(reg)

	return c
}

// RecordReconcileDuration records the duration of one reconcile by result.
func (c *prometheusCollector) RecordReconcileDuration(_ context.Context, result string, duration time.Duration) {
	c.reconcileDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordReconcileError records a failed reconcile by error kind.
func (c *prometheusCollector) RecordReconcileError(_ context.Context, kind string) {
	c.reconcileErrors.WithLabelValues(kind).Inc()
}

// RecordPatchApplied records a patch applied by a pipeline.
func (c *prometheusCollector) RecordPatchApplied(_ context.Context, pipeline string) {
	c.patchesApplied.WithLabelValues(pipeline).Inc()
}

// RecordPipelineSkip records a pipeline that ran without producing a patch.
func (c *prometheusCollector) RecordPipelineSkip(_ context.Context, pipeline, reason string) {
	c.pipelineSkips.WithLabelValues(pipeline, reason).Inc()
}

// RecordAPICall records a Kubernetes API call.
func (c *prometheusCollector) RecordAPICall(
	_ context.Context,
	operation, status string,
	duration time.Duration,
) {
	c.apiDuration.WithLabelValues(operation).Observe(duration.Seconds())
	c.apiCallsTotal.WithLabelValues(operation, status).Inc()
}

// RecordAPIError records a Kubernetes API error.
func (c *prometheusCollector) RecordAPIError(_ context.Context, operation, errorType string) {
	c.apiErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// RecordBuildInfo records the running controller version.
func (c *prometheusCollector) RecordBuildInfo(_ context.Context, version, gitsha string) {
	c.buildInfo.WithLabelValues(version, gitsha).Set(1)
}

func (c *prometheusCollector) initReconcileMetrics() {
	c.reconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autotls_reconcile_duration_seconds",
			Help:    "Duration of ingress reconciliation",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"result"},
	)
	c.reconcileErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autotls_reconcile_errors_total",
			Help: "Total reconcile errors by kind",
		},
		[]string{"kind"},
	)
}

func (c *prometheusCollector) initPipelineMetrics() {
	c.patchesApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autotls_patches_applied_total",
			Help: "Total patches applied by pipeline",
		},
		[]string{"pipeline"},
	)
	c.pipelineSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autotls_pipeline_skips_total",
			Help: "Total pipeline runs that produced no patch",
		},
		[]string{"pipeline", "reason"},
	)
}

func (c *prometheusCollector) initAPIMetrics() {
	c.apiDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autotls_api_duration_seconds",
			Help:    "Duration of Kubernetes API calls",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)
	c.apiCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autotls_api_calls_total",
			Help: "Total Kubernetes API calls",
		},
		[]string{"operation", "status"},
	)
	c.apiErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autotls_api_errors_total",
			Help: "Total Kubernetes API errors by type",
		},
		[]string{"operation", "error_type"},
	)
}

func (c *prometheusCollector) register(reg prometheus.Registerer) {
	reg.MustRegister(
		c.reconcileDuration,
		c.reconcileErrors,
		c.patchesApplied,
		c.pipelineSkips,
		c.apiDuration,
		c.apiCallsTotal,
		c.apiErrorsTotal,
		c.buildInfo,
	)
}

// NoopCollector is a no-op implementation of Collector for testing.
type NoopCollector struct{}

// NewNoopCollector creates a new no-op collector.
func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

// RecordReconcileDuration is a no-op.
func (c *NoopCollector) RecordReconcileDuration(_ context.Context, _ string, _ time.Duration) {}

// RecordReconcileError is a no-op.
func (c *NoopCollector) RecordReconcileError(_ context.Context, _ string) {}

// RecordPatchApplied is a no-op.
func (c *NoopCollector) RecordPatchApplied(_ context.Context, _ string) {}

// RecordPipelineSkip is a no-op.
func (c *NoopCollector) RecordPipelineSkip(_ context.Context, _, _ string) {}

// RecordAPICall is a no-op.
func (c *NoopCollector) RecordAPICall(_ context.Context, _, _ string, _ time.Duration) {}

// RecordAPIError is a no-op.
func (c *NoopCollector) RecordAPIError(_ context.Context, _, _ string) {}

// RecordBuildInfo is a no-op.
func (c *NoopCollector) RecordBuildInfo(_ context.Context, _, _ string) {}
