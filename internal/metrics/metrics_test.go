package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorInterface(t *testing.T) {
	t.Parallel()

	// Verify that prometheusCollector implements Collector interface
	var _ Collector = (*prometheusCollector)(nil)
	var _ Collector = (*NoopCollector)(nil)
}

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg)

	require.NotNil(t, collector)
	assert.IsType(t, &prometheusCollector{}, collector)
}

func TestNewCollector_DoubleRegistrationPanics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	NewCollector(reg)

	assert.Panics(t, func() {
		NewCollector(reg)
	})
}

func TestNoopCollector(t *testing.T) {
	t.Parallel()

	collector := NewNoopCollector()
	require.NotNil(t, collector)

	ctx := context.Background()

	// All methods should not panic
	assert.NotPanics(t, func() {
		collector.RecordReconcileDuration(ctx, "success", time.Second)
		collector.RecordReconcileError(ctx, "structural")
		collector.RecordPatchApplied(ctx, PipelineDomain)
		collector.RecordPipelineSkip(ctx, PipelineTLS, SkipReasonTLSPresent)
		collector.RecordAPICall(ctx, "apply", "success", time.Second)
		collector.RecordAPIError(ctx, "apply", ErrorTypeAuth)
		collector.RecordBuildInfo(ctx, "1.0.0", "abc123")
	})
}

func TestMetricsRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)
	ctx := context.Background()

	// Trigger all metrics to be collected at least once
	collector.RecordReconcileDuration(ctx, "success", time.Millisecond)
	collector.RecordReconcileError(ctx, "structural")
	collector.RecordPatchApplied(ctx, PipelineDomain)
	collector.RecordPipelineSkip(ctx, PipelineDomain, SkipReasonNoChange)
	collector.RecordAPICall(ctx, "apply", "success", time.Millisecond)
	collector.RecordAPIError(ctx, "apply", ErrorTypeConflict)
	collector.RecordBuildInfo(ctx, "1.0.0", "abc123")

	// Verify metrics are registered
	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	expectedMetrics := []string{
		"autotls_reconcile_duration_seconds",
		"autotls_reconcile_errors_total",
		"autotls_patches_applied_total",
		"autotls_pipeline_skips_total",
		"autotls_api_duration_seconds",
		"autotls_api_calls_total",
		"autotls_api_errors_total",
		"autotls_build_info",
	}

	registeredMetrics := make(map[string]bool)
	for _, mf := range metricFamilies {
		registeredMetrics[mf.GetName()] = true
	}

	for _, expected := range expectedMetrics {
		assert.True(t, registeredMetrics[expected], "metric %s should be registered", expected)
	}
}

func TestRecordReconcileDuration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)
	ctx := context.Background()

	collector.RecordReconcileDuration(ctx, "success", time.Second)
	collector.RecordReconcileDuration(ctx, "error", time.Second)

	// One series per result label
	count := testutil.CollectAndCount(collector.reconcileDuration)
	assert.Equal(t, 2, count)
}

func TestRecordReconcileError(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)
	ctx := context.Background()

	collector.RecordReconcileError(ctx, "structural")
	collector.RecordReconcileError(ctx, "structural")
	collector.RecordReconcileError(ctx, "patch_apply_failed")

	assert.InDelta(t, 2, testutil.ToFloat64(collector.reconcileErrors.WithLabelValues("structural")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(collector.reconcileErrors.WithLabelValues("patch_apply_failed")), 0)
}

func TestRecordPatchApplied(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)
	ctx := context.Background()

	collector.RecordPatchApplied(ctx, PipelineDomain)
	collector.RecordPatchApplied(ctx, PipelineTLS)
	collector.RecordPatchApplied(ctx, PipelineTLS)

	assert.InDelta(t, 1, testutil.ToFloat64(collector.patchesApplied.WithLabelValues(PipelineDomain)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(collector.patchesApplied.WithLabelValues(PipelineTLS)), 0)
}

func TestRecordPipelineSkip(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)
	ctx := context.Background()

	collector.RecordPipelineSkip(ctx, PipelineTLS, SkipReasonTLSPresent)

	expected := `
# HELP autotls_pipeline_skips_total Total pipeline runs that produced no patch
# TYPE autotls_pipeline_skips_total counter
autotls_pipeline_skips_total{pipeline="tls",reason="tls_present"} 1
`
	err := testutil.CollectAndCompare(collector.pipelineSkips, strings.NewReader(expected))
	require.NoError(t, err)
}

func TestRecordAPICall(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)
	ctx := context.Background()

	collector.RecordAPICall(ctx, "apply", "success", 100*time.Millisecond)
	collector.RecordAPICall(ctx, "apply", "error", 50*time.Millisecond)

	assert.Equal(t, 1, testutil.CollectAndCount(collector.apiDuration))
	assert.InDelta(t, 1, testutil.ToFloat64(collector.apiCallsTotal.WithLabelValues("apply", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(collector.apiCallsTotal.WithLabelValues("apply", "error")), 0)
}

func TestRecordAPIError(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)
	ctx := context.Background()

	collector.RecordAPIError(ctx, "apply", ErrorTypeAuth)

	assert.InDelta(t, 1, testutil.ToFloat64(collector.apiErrorsTotal.WithLabelValues("apply", ErrorTypeAuth)), 0)
}

func TestRecordBuildInfo(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)
	ctx := context.Background()

	collector.RecordBuildInfo(ctx, "1.2.3", "deadbeef")

	assert.InDelta(t, 1, testutil.ToFloat64(collector.buildInfo.WithLabelValues("1.2.3", "deadbeef")), 0)
}
