package controller

import (
	"context"

	"github.com/cockroachdb/errors"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/cache"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
	"sigs.k8s.io/controller-runtime/pkg/metrics/server"

	"github.com/lexfrei/autotls-controller/internal/metrics"
	"github.com/lexfrei/autotls-controller/internal/schedule"
)

// Config holds all configuration options for the controller manager.
// Values are typically populated from CLI flags or environment variables.
type Config struct {
	// MetricsAddr is the address for the Prometheus metrics endpoint.
	MetricsAddr string

	// HealthAddr is the address for health and readiness probe endpoints.
	HealthAddr string

	// LeaderElect enables leader election for high availability.
	// Required when running multiple replicas.
	LeaderElect bool

	// LeaderElectNS is the namespace for the leader election lease.
	LeaderElectNS string

	// LeaderElectName is the name of the leader election lease.
	LeaderElectName string

	// FieldManagerPrefix prefixes the domain-patcher and tls-patcher field managers.
	FieldManagerPrefix string

	// WatchNamespace restricts the cache to one namespace. Empty watches the
	// whole cluster.
	WatchNamespace string

	// MaxConcurrentReconciles is the number of ingress workers.
	MaxConcurrentReconciles int

	// Requeue configures the resync interval and failure backoff.
	Requeue schedule.Options

	// Version and GitSHA are reported in the build info metric.
	Version string
	GitSHA  string
}

// Run initializes and starts the controller manager with the provided configuration.
// It creates the Ingress controller and blocks until the context is cancelled
// or an error occurs.
//
// The function performs the following steps:
//  1. Builds the requeue policy and registers metrics
//  2. Initializes controller-runtime manager with metrics and health endpoints
//  3. Sets up the IngressReconciler
//  4. Starts the manager and blocks until shutdown
//
//nolint:funlen // controller setup requires multiple steps
func Run(ctx context.Context, cfg *Config) error {
	logger := log.FromContext(ctx).WithName("manager")
	logger.Info("initializing controller manager")

	collector := metrics.NewCollector(ctrlmetrics.Registry)
	collector.RecordBuildInfo(ctx, cfg.Version, cfg.GitSHA)

	policy, err := schedule.NewPolicy(cfg.Requeue, collector)
	if err != nil {
		return errors.Wrap(err, "failed to create requeue policy")
	}

	mgrOptions := ctrl.Options{
		Metrics: server.Options{
			BindAddress: cfg.MetricsAddr,
		},
		HealthProbeBindAddress: cfg.HealthAddr,
	}

	if cfg.WatchNamespace != "" {
		mgrOptions.Cache = cache.Options{
			DefaultNamespaces: map[string]cache.Config{
				cfg.WatchNamespace: {},
			},
		}

		logger.Info("watching single namespace", "namespace", cfg.WatchNamespace)
	}

	if cfg.LeaderElect {
		mgrOptions.LeaderElection = true
		mgrOptions.LeaderElectionID = cfg.LeaderElectName
		mgrOptions.LeaderElectionNamespace = cfg.LeaderElectNS

		logger.Info("leader election enabled",
			"id", cfg.LeaderElectName,
			"namespace", cfg.LeaderElectNS,
		)
	}

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), mgrOptions)
	if err != nil {
		return errors.Wrap(err, "failed to create manager")
	}

	ingressReconciler := &IngressReconciler{
		Client:                  mgr.GetClient(),
		Scheme:                  mgr.GetScheme(),
		Applier:                 NewApplier(mgr.GetClient(), collector),
		Policy:                  policy,
		Metrics:                 collector,
		FieldManagerPrefix:      cfg.FieldManagerPrefix,
		MaxConcurrentReconciles: cfg.MaxConcurrentReconciles,
	}

	if err := ingressReconciler.SetupWithManager(mgr); err != nil {
		return errors.Wrap(err, "failed to setup ingress controller")
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		return errors.Wrap(err, "failed to set up health check")
	}

	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		return errors.Wrap(err, "failed to set up ready check")
	}

	logger.Info("starting manager",
		"resyncInterval", cfg.Requeue.ResyncInterval.String(),
		"retryBaseDelay", cfg.Requeue.BaseDelay.String(),
		"retryMaxDelay", cfg.Requeue.MaxDelay.String(),
	)

	if err := mgr.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start manager")
	}

	return nil
}
