package ingress

import (
	"log/slog"

	networkingv1 "k8s.io/api/networking/v1"
	networkingv1ac "k8s.io/client-go/applyconfigurations/networking/v1"

	"github.com/lexfrei/autotls-controller/internal/config"
)

// Annotations written by the TLS patcher.
const (
	SSLRedirectAnnotation   = "ingress.kubernetes.io/ssl-redirect"
	TLSAcmeAnnotation       = "kubernetes.io/tls-acme"
	ClusterIssuerAnnotation = "cert-manager.io/cluster-issuer"

	// TLSSecretSuffix is appended to the ingress name to form the secret name.
	TLSSecretSuffix = "-tls"
)

// ComputeTLSPatch returns an apply configuration that enables TLS for all
// rule hosts. It returns nil when the ingress already has a TLS block, which
// may be managed by hand or by cert-manager.
func ComputeTLSPatch(ing *networkingv1.Ingress, issuer config.Issuer) (*networkingv1ac.IngressApplyConfiguration, error) {
	if ing.Name == "" {
		return nil, NewStructuralError(FieldName)
	}

	if !HasSpec(ing) {
		return nil, NewStructuralError(FieldSpec)
	}

	if ing.Spec.TLS != nil {
		slog.Default().Info("ingress already specifies TLS, skipping",
			"ingress", ing.Namespace+"/"+ing.Name,
			"component", "tls-patcher",
		)

		return nil, nil
	}

	if ing.Spec.Rules == nil {
		return nil, NewStructuralError(FieldRules)
	}

	// Duplicates are kept: the TLS block lists hosts as the rules do.
	hosts := make([]string, 0, len(ing.Spec.Rules))

	for i := range ing.Spec.Rules {
		if host := ing.Spec.Rules[i].Host; host != "" {
			hosts = append(hosts, host)
		}
	}

	annotations := map[string]string{
		SSLRedirectAnnotation: "true",
	}

	if issuer.IsAuto() {
		annotations[TLSAcmeAnnotation] = "true"
	} else {
		annotations[ClusterIssuerAnnotation] = issuer.Name
	}

	tls := networkingv1ac.IngressTLS().
		WithHosts(hosts...).
		WithSecretName(ing.Name + TLSSecretSuffix)

	return networkingv1ac.Ingress(ing.Name, ing.Namespace).
		WithAnnotations(annotations).
		WithSpec(networkingv1ac.IngressSpec().WithTLS(tls)), nil
}
