package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/predicate"

	"github.com/lexfrei/autotls-controller/internal/config"
	"github.com/lexfrei/autotls-controller/internal/ingress"
	"github.com/lexfrei/autotls-controller/internal/metrics"
	"github.com/lexfrei/autotls-controller/internal/schedule"
)

const (
	// DefaultFieldManagerPrefix prefixes the field managers of both pipelines.
	DefaultFieldManagerPrefix = "autotls-controller"

	domainPatcher = "domain-patcher"
	tlsPatcher    = "tls-patcher"

	// Event reasons.
	reasonDomainPatched    = "DomainPatched"
	reasonTLSPatched       = "TLSPatched"
	reasonInvalidDirective = "InvalidDirective"
	reasonPatchFailed      = "PatchFailed"
)

// IngressReconciler reconciles Ingress resources against their autotls
// annotations.
//
// Key behaviors:
//   - Watches all Ingress resources in the cluster
//   - autotls/domain: qualifies bare rule hosts, applied with forced ownership
//   - autotls/issuer: adds TLS annotations and block unless TLS is already set,
//     applied without forcing so cert-manager keeps its fields
//   - Requeues successful objects after the resync interval and failed ones
//     through the backoff rate limiter
//
// The reconciler never creates or deletes ingresses.
type IngressReconciler struct {
	client.Client

	// Scheme is the runtime scheme for API type registration.
	Scheme *runtime.Scheme

	// Applier sends the computed patches.
	Applier *Applier

	// Policy decides requeue delays.
	Policy *schedule.Policy

	// Recorder emits events on reconciled ingresses. Optional.
	Recorder record.EventRecorder

	// Metrics records reconcile outcomes. Optional.
	Metrics metrics.Collector

	// FieldManagerPrefix prefixes the per-pipeline field managers.
	FieldManagerPrefix string

	// MaxConcurrentReconciles is the number of workers.
	MaxConcurrentReconciles int
}

func (r *IngressReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	startTime := time.Now()

	result, err := r.reconcile(ctx, req)
	if err != nil {
		r.collector().RecordReconcileDuration(ctx, "error", time.Since(startTime))

		return r.Policy.Failure(ctx, req, err)
	}

	r.collector().RecordReconcileDuration(ctx, "success", time.Since(startTime))

	return result, nil
}

//nolint:funcorder // placed near Reconcile for readability
func (r *IngressReconciler) reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	if req.Name == "" {
		return ctrl.Result{}, ingress.NewMissingObjectKeyError(ingress.FieldName)
	}

	if req.Namespace == "" {
		return ctrl.Result{}, ingress.NewMissingObjectKeyError(ingress.FieldNamespace)
	}

	var ing networkingv1.Ingress

	err := r.Get(ctx, req.NamespacedName, &ing)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}

		return ctrl.Result{}, errors.Wrap(err, "failed to get ingress")
	}

	err = checkObjectKey(&ing)
	if err != nil {
		return ctrl.Result{}, err
	}

	logger := slog.Default().With("ingress", req.NamespacedName)
	logger.Debug("reconciling ingress")

	directives := config.Resolve(ing.Annotations)
	r.reportInvalid(ctx, &ing, metrics.PipelineDomain, directives.DomainError)
	r.reportInvalid(ctx, &ing, metrics.PipelineTLS, directives.IssuerError)

	if directives.Domain != nil {
		err = r.reconcileDomain(ctx, logger, &ing, *directives.Domain)
		if err != nil {
			return ctrl.Result{}, err
		}
	}

	if directives.Issuer != nil {
		err = r.reconcileTLS(ctx, logger, &ing, *directives.Issuer)
		if err != nil {
			return ctrl.Result{}, err
		}
	}

	return r.Policy.Success(), nil
}

// reconcileDomain applies the domain patch. On success ing holds the applied
// object, so the TLS pipeline sees the qualified hosts.
//
//nolint:funcorder // private helper
func (r *IngressReconciler) reconcileDomain(
	ctx context.Context,
	logger *slog.Logger,
	ing *networkingv1.Ingress,
	domain string,
) error {
	patch, err := ingress.ComputeDomainPatch(ing, domain)
	if err != nil {
		return errors.Wrap(err, "failed to compute domain patch")
	}

	if patch == nil {
		r.collector().RecordPipelineSkip(ctx, metrics.PipelineDomain, metrics.SkipReasonNoChange)

		return nil
	}

	logger.Info("patching domain for ingress", "domain", domain)

	err = r.Applier.Apply(ctx, ing, patch, r.fieldManager(domainPatcher), true)
	if err != nil {
		r.event(ing, corev1.EventTypeWarning, reasonPatchFailed, "Failed to apply domain patch: %v", err)

		return errors.Wrap(err, "failed to apply domain patch")
	}

	r.collector().RecordPatchApplied(ctx, metrics.PipelineDomain)
	r.event(ing, corev1.EventTypeNormal, reasonDomainPatched, "Qualified rule hosts with domain %s", domain)

	return nil
}

//nolint:funcorder // private helper
func (r *IngressReconciler) reconcileTLS(
	ctx context.Context,
	logger *slog.Logger,
	ing *networkingv1.Ingress,
	issuer config.Issuer,
) error {
	patch, err := ingress.ComputeTLSPatch(ing, issuer)
	if err != nil {
		return errors.Wrap(err, "failed to compute tls patch")
	}

	if patch == nil {
		r.collector().RecordPipelineSkip(ctx, metrics.PipelineTLS, metrics.SkipReasonTLSPresent)

		return nil
	}

	logger.Info("patching tls for ingress", "issuer", issuer.String())

	err = r.Applier.Apply(ctx, ing, patch, r.fieldManager(tlsPatcher), false)
	if err != nil {
		r.event(ing, corev1.EventTypeWarning, reasonPatchFailed, "Failed to apply TLS patch: %v", err)

		return errors.Wrap(err, "failed to apply tls patch")
	}

	r.collector().RecordPatchApplied(ctx, metrics.PipelineTLS)
	r.event(ing, corev1.EventTypeNormal, reasonTLSPatched, "Configured TLS with issuer %s", issuer.String())

	return nil
}

//nolint:funcorder // private helper
func (r *IngressReconciler) reportInvalid(ctx context.Context, ing *networkingv1.Ingress, pipeline string, err error) {
	if err == nil {
		return
	}

	slog.Default().Warn("ignoring invalid annotation",
		"ingress", ing.Namespace+"/"+ing.Name,
		"pipeline", pipeline,
		"error", err,
	)

	r.collector().RecordPipelineSkip(ctx, pipeline, metrics.SkipReasonInvalidDirective)
	r.event(ing, corev1.EventTypeWarning, reasonInvalidDirective, "%v", err)
}

//nolint:funcorder // private helper
func (r *IngressReconciler) fieldManager(patcher string) string {
	prefix := r.FieldManagerPrefix
	if prefix == "" {
		prefix = DefaultFieldManagerPrefix
	}

	return prefix + "/" + patcher
}

//nolint:funcorder // private helper
func (r *IngressReconciler) event(ing *networkingv1.Ingress, eventType, reason, messageFmt string, args ...any) {
	if r.Recorder == nil {
		return
	}

	r.Recorder.Eventf(ing, eventType, reason, messageFmt, args...)
}

//nolint:funcorder // private helper
func (r *IngressReconciler) collector() metrics.Collector {
	if r.Metrics == nil {
		return metrics.NewNoopCollector()
	}

	return r.Metrics
}

func checkObjectKey(ing *networkingv1.Ingress) error {
	if ing.Name == "" {
		return ingress.NewMissingObjectKeyError(ingress.FieldName)
	}

	if ing.Namespace == "" {
		return ingress.NewMissingObjectKeyError(ingress.FieldNamespace)
	}

	return nil
}

// SetupWithManager sets up the controller with the Manager.
func (r *IngressReconciler) SetupWithManager(mgr ctrl.Manager) error {
	if r.Recorder == nil {
		//nolint:staticcheck // core/v1 events recorder
		r.Recorder = mgr.GetEventRecorderFor(DefaultFieldManagerPrefix)
	}

	workers := r.MaxConcurrentReconciles
	if workers <= 0 {
		workers = 1
	}

	err := ctrl.NewControllerManagedBy(mgr).
		Named("ingress").
		// Annotation edits do not bump generation, so both must trigger.
		For(&networkingv1.Ingress{}, builder.WithPredicates(predicate.Or[client.Object](
			predicate.GenerationChangedPredicate{},
			predicate.AnnotationChangedPredicate{},
		))).
		WithOptions(controller.Options{
			MaxConcurrentReconciles: workers,
			RateLimiter:             r.Policy.RateLimiter(),
		}).
		Complete(r)
	if err != nil {
		return errors.Wrap(err, "failed to setup ingress controller")
	}

	return nil
}
