// Package ingress computes the partial Ingress objects the controller applies.
//
// # Overview
//
// Two pure functions derive a patch from the live object and one directive:
//
//   - ComputeDomainPatch: appends the autotls/domain suffix to every rule host
//     that has no dot. Hosts with a dot are already fully qualified.
//   - ComputeTLSPatch: adds the ssl-redirect annotation, an issuer annotation
//     and a TLS block covering every rule host, secret "<name>-tls".
//
// Both return nil when the object already matches, so converged objects never
// produce a write.
//
// # Patches
//
// Patches are client-go apply configurations. They carry only the fields the
// function decided to set and are sent with server-side apply under a
// dedicated field manager per pipeline.
//
// # Errors
//
// Error is a tagged error with three kinds: structural (a required field is
// missing), patch_apply_failed (wraps the API error) and missing_object_key
// (name or namespace absent). KindOf extracts the kind for metrics labels.
package ingress
