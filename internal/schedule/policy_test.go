package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	"github.com/lexfrei/autotls-controller/internal/ingress"
	"github.com/lexfrei/autotls-controller/internal/metrics"
)

func testRequest(name string) reconcile.Request {
	return reconcile.Request{NamespacedName: types.NamespacedName{Name: name, Namespace: "default"}}
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()

	require.NoError(t, opts.Validate())
	assert.Equal(t, 300*time.Second, opts.ResyncInterval)
	assert.Equal(t, time.Second, opts.BaseDelay)
	assert.Equal(t, 5*time.Minute, opts.MaxDelay)
}

func TestOptions_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Options)
		message string
	}{
		{
			name:    "zero resync",
			mutate:  func(o *Options) { o.ResyncInterval = 0 },
			message: "resync interval",
		},
		{
			name:    "negative base delay",
			mutate:  func(o *Options) { o.BaseDelay = -time.Second },
			message: "base delay",
		},
		{
			name:    "max below base",
			mutate:  func(o *Options) { o.MaxDelay = 500 * time.Millisecond },
			message: "lower than base delay",
		},
		{
			name:    "negative jitter",
			mutate:  func(o *Options) { o.Jitter = -0.5 },
			message: "jitter",
		},
		{
			name:    "zero qps",
			mutate:  func(o *Options) { o.QPS = 0 },
			message: "qps",
		},
		{
			name:    "zero burst",
			mutate:  func(o *Options) { o.Burst = 0 },
			message: "burst",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts := DefaultOptions()
			tt.mutate(&opts)

			err := opts.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)

			_, err = NewPolicy(opts, nil)
			require.Error(t, err)
		})
	}
}

func TestPolicy_Success(t *testing.T) {
	t.Parallel()

	policy, err := NewPolicy(DefaultOptions(), metrics.NewNoopCollector())
	require.NoError(t, err)

	assert.Equal(t, ctrl.Result{RequeueAfter: 300 * time.Second}, policy.Success())
}

func TestPolicy_Failure(t *testing.T) {
	t.Parallel()

	policy, err := NewPolicy(DefaultOptions(), nil)
	require.NoError(t, err)

	reconcileErr := ingress.NewMissingObjectKeyError(ingress.FieldNamespace)

	result, err := policy.Failure(context.Background(), testRequest("app"), reconcileErr)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ingress.ErrMissingObjectKey))
	assert.Equal(t, ctrl.Result{}, result)
}

func TestRateLimiter_FirstRetryIsBaseDelay(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	limiter := NewRateLimiter[reconcile.Request](opts)

	delay := limiter.When(testRequest("app"))

	assert.GreaterOrEqual(t, delay, opts.BaseDelay)
	assert.LessOrEqual(t, delay, time.Duration(float64(opts.BaseDelay)*(1+opts.Jitter)))
}

func TestRateLimiter_ExponentialGrowthWithCeiling(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.Jitter = 0
	opts.MaxDelay = 10 * time.Second
	limiter := NewRateLimiter[reconcile.Request](opts)
	req := testRequest("app")

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}

	for i, want := range expected {
		assert.Equal(t, want, limiter.When(req), "attempt %d", i)
	}

	assert.Equal(t, len(expected), limiter.NumRequeues(req))
}

func TestRateLimiter_JitterNeverExceedsCeiling(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.Jitter = 1
	opts.MaxDelay = 3 * time.Second
	limiter := NewRateLimiter[reconcile.Request](opts)
	req := testRequest("app")

	for range 20 {
		delay := limiter.When(req)
		assert.GreaterOrEqual(t, delay, opts.BaseDelay)
		assert.LessOrEqual(t, delay, opts.MaxDelay)
	}
}

func TestRateLimiter_ForgetResetsBackoff(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.Jitter = 0
	limiter := NewRateLimiter[reconcile.Request](opts)
	req := testRequest("app")

	limiter.When(req)
	limiter.When(req)
	limiter.When(req)
	require.Equal(t, 3, limiter.NumRequeues(req))

	limiter.Forget(req)

	assert.Equal(t, 0, limiter.NumRequeues(req))
	assert.Equal(t, time.Second, limiter.When(req))
}

func TestRateLimiter_ObjectsBackOffIndependently(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.Jitter = 0
	limiter := NewRateLimiter[reconcile.Request](opts)

	first := testRequest("first")
	second := testRequest("second")

	limiter.When(first)
	limiter.When(first)

	assert.Equal(t, 4*time.Second, limiter.When(first))
	assert.Equal(t, time.Second, limiter.When(second))
}

func TestPolicy_RateLimiter(t *testing.T) {
	t.Parallel()

	policy, err := NewPolicy(DefaultOptions(), nil)
	require.NoError(t, err)

	limiter := policy.RateLimiter()
	require.NotNil(t, limiter)
	assert.GreaterOrEqual(t, limiter.When(testRequest("app")), time.Second)
}
