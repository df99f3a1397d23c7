package controller

import (
	"context"
	"time"

	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/json"
	networkingv1ac "k8s.io/client-go/applyconfigurations/networking/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/lexfrei/autotls-controller/internal/ingress"
	"github.com/lexfrei/autotls-controller/internal/metrics"
)

const applyOperation = "apply"

// applyPatch sends an apply configuration as a server-side apply body.
type applyPatch struct {
	ac *networkingv1ac.IngressApplyConfiguration
}

func (p applyPatch) Type() types.PatchType {
	return types.ApplyPatchType
}

func (p applyPatch) Data(_ client.Object) ([]byte, error) {
	//nolint:wrapcheck // caller wraps
	return json.Marshal(p.ac)
}

// Applier issues server-side apply patches against Ingress objects.
// It has no retry logic: failed reconciles are retried as a whole.
type Applier struct {
	writer  client.Writer
	metrics metrics.Collector
}

// NewApplier creates an Applier writing through w.
func NewApplier(w client.Writer, collector metrics.Collector) *Applier {
	if collector == nil {
		collector = metrics.NewNoopCollector()
	}

	return &Applier{
		writer:  w,
		metrics: collector,
	}
}

// Apply applies intent to target as field manager owner. With force set,
// fields owned by other managers are taken over instead of conflicting.
// On success target holds the object returned by the API server.
func (a *Applier) Apply(
	ctx context.Context,
	target *networkingv1.Ingress,
	intent *networkingv1ac.IngressApplyConfiguration,
	owner string,
	force bool,
) error {
	opts := []client.PatchOption{client.FieldOwner(owner)}
	if force {
		opts = append(opts, client.ForceOwnership)
	}

	startTime := time.Now()

	err := a.writer.Patch(ctx, target, applyPatch{ac: intent}, opts...)
	if err != nil {
		a.metrics.RecordAPICall(ctx, applyOperation, "error", time.Since(startTime))
		a.metrics.RecordAPIError(ctx, applyOperation, metrics.ClassifyAPIError(err))

		return ingress.NewPatchApplyError(err)
	}

	a.metrics.RecordAPICall(ctx, applyOperation, "success", time.Since(startTime))

	return nil
}
