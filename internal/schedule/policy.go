// Package schedule decides when an ingress is reconciled next.
//
// A successful reconcile is requeued after a fixed resync interval so drifted
// objects are healed periodically. A failed reconcile is requeued through the
// controller's rate limiter: per-object exponential backoff starting at the
// base delay, capped at the max delay, with upward-only jitter, combined with
// a global token bucket shared by all objects.
package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/workqueue"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	"github.com/lexfrei/autotls-controller/internal/ingress"
	"github.com/lexfrei/autotls-controller/internal/metrics"
)

// Defaults for Options.
const (
	DefaultResyncInterval = 300 * time.Second
	DefaultBaseDelay      = 1 * time.Second
	DefaultMaxDelay       = 5 * time.Minute
	DefaultJitter         = 0.1
	DefaultQPS            = 10
	DefaultBurst          = 100
)

// Options configures the requeue policy.
type Options struct {
	// ResyncInterval is the requeue delay after a successful reconcile.
	ResyncInterval time.Duration

	// BaseDelay is the first retry delay after a failure.
	BaseDelay time.Duration

	// MaxDelay caps the per-object backoff.
	MaxDelay time.Duration

	// Jitter is the maximum fraction added on top of each failure delay.
	// Zero disables jitter.
	Jitter float64

	// QPS and Burst configure the token bucket shared by all objects.
	QPS   float64
	Burst int
}

// DefaultOptions returns the default requeue policy.
func DefaultOptions() Options {
	return Options{
		ResyncInterval: DefaultResyncInterval,
		BaseDelay:      DefaultBaseDelay,
		MaxDelay:       DefaultMaxDelay,
		Jitter:         DefaultJitter,
		QPS:            DefaultQPS,
		Burst:          DefaultBurst,
	}
}

// Validate checks the options for consistency.
//
//nolint:wrapcheck // errors.Newf creates new errors
func (o Options) Validate() error {
	switch {
	case o.ResyncInterval <= 0:
		return errors.Newf("resync interval must be positive, got %s", o.ResyncInterval)
	case o.BaseDelay <= 0:
		return errors.Newf("retry base delay must be positive, got %s", o.BaseDelay)
	case o.MaxDelay < o.BaseDelay:
		return errors.Newf("retry max delay %s is lower than base delay %s", o.MaxDelay, o.BaseDelay)
	case o.Jitter < 0:
		return errors.Newf("retry jitter must not be negative, got %v", o.Jitter)
	case o.QPS <= 0:
		return errors.Newf("retry qps must be positive, got %v", o.QPS)
	case o.Burst <= 0:
		return errors.Newf("retry burst must be positive, got %d", o.Burst)
	}

	return nil
}

// Policy maps reconcile outcomes to requeue decisions.
type Policy struct {
	opts    Options
	metrics metrics.Collector
}

// NewPolicy creates a Policy after validating opts.
func NewPolicy(opts Options, collector metrics.Collector) (*Policy, error) {
	if err := opts.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid requeue options")
	}

	if collector == nil {
		collector = metrics.NewNoopCollector()
	}

	return &Policy{opts: opts, metrics: collector}, nil
}

// Options returns the policy configuration.
func (p *Policy) Options() Options {
	return p.opts
}

// Success returns the result for a reconcile that completed.
func (p *Policy) Success() ctrl.Result {
	return ctrl.Result{RequeueAfter: p.opts.ResyncInterval}
}

// Failure logs err and returns it so the controller requeues the request
// through the rate limiter.
func (p *Policy) Failure(ctx context.Context, req ctrl.Request, err error) (ctrl.Result, error) {
	kind := ingress.KindOf(err)

	slog.Default().Error("reconcile failed",
		"ingress", req.String(),
		"kind", string(kind),
		"error", err,
	)

	p.metrics.RecordReconcileError(ctx, string(kind))

	return ctrl.Result{}, err
}

// RateLimiter returns a new failure rate limiter for the controller work queue.
func (p *Policy) RateLimiter() workqueue.TypedRateLimiter[reconcile.Request] {
	return NewRateLimiter[reconcile.Request](p.opts)
}

// NewRateLimiter builds the failure rate limiter described by opts.
func NewRateLimiter[T comparable](opts Options) workqueue.TypedRateLimiter[T] {
	return &jitterRateLimiter[T]{
		inner: workqueue.NewTypedMaxOfRateLimiter(
			workqueue.NewTypedItemExponentialFailureRateLimiter[T](opts.BaseDelay, opts.MaxDelay),
			&workqueue.TypedBucketRateLimiter[T]{
				Limiter: rate.NewLimiter(rate.Limit(opts.QPS), opts.Burst),
			},
		),
		jitter:   opts.Jitter,
		maxDelay: opts.MaxDelay,
	}
}

// jitterRateLimiter spreads failure delays upward so objects failing together
// do not retry in lockstep. The base delay stays the minimum.
type jitterRateLimiter[T comparable] struct {
	inner    workqueue.TypedRateLimiter[T]
	jitter   float64
	maxDelay time.Duration
}

func (l *jitterRateLimiter[T]) When(item T) time.Duration {
	delay := l.inner.When(item)

	if l.jitter > 0 && delay > 0 {
		delay = wait.Jitter(delay, l.jitter)
	}

	return min(delay, l.maxDelay)
}

func (l *jitterRateLimiter[T]) Forget(item T) {
	l.inner.Forget(item)
}

func (l *jitterRateLimiter[T]) NumRequeues(item T) int {
	return l.inner.NumRequeues(item)
}
