// Package controller implements the Kubernetes controller for Ingress resources.
//
// The package provides one controller:
//
//   - IngressReconciler: Watches Ingress resources cluster-wide and converges
//     each object toward the state requested by its autotls annotations.
//
// # Architecture
//
// The controller follows the standard controller-runtime reconciliation pattern:
//
//	+-------------+    watch     +-------------------------+
//	| Ingress     |------------->| IngressReconciler       |
//	| resources   |              |                         |
//	+-------------+              +------------+------------+
//	       ^                                  |
//	       |                     +------------+------------+
//	       |                     | autotls/domain          |
//	       |  server-side apply  |   ComputeDomainPatch    |
//	       +---------------------+ autotls/issuer          |
//	          (Applier)          |   ComputeTLSPatch       |
//	                             +-------------------------+
//
// The domain pipeline runs first and is applied by the
// "<prefix>/domain-patcher" field manager with forced ownership, so rule hosts
// can be reclaimed from whoever created the ingress. The TLS pipeline runs on
// the object returned by that apply and is applied by "<prefix>/tls-patcher"
// without forcing, leaving fields owned by cert-manager alone.
//
// # Requeue
//
// Successful reconciles requeue after the resync interval. Failures are
// returned to controller-runtime and retried through the rate limiter built by
// the schedule package.
//
// # Leader Election
//
// When running multiple replicas for high availability, enable leader election
// via --leader-elect flag to ensure only one controller actively reconciles
// resources at a time.
package controller
