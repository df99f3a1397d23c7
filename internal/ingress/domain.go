package ingress

import (
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/util/json"
	networkingv1ac "k8s.io/client-go/applyconfigurations/networking/v1"
)

// ComputeDomainPatch returns an apply configuration that appends domain to
// every rule host without a dot. It returns nil when no host needs rewriting
// or when the ingress has no rules.
//
// The whole rule list is carried in the patch: spec.rules is an atomic list,
// so the server replaces it wholesale.
func ComputeDomainPatch(ing *networkingv1.Ingress, domain string) (*networkingv1ac.IngressApplyConfiguration, error) {
	if !HasSpec(ing) {
		return nil, NewStructuralError(FieldSpec)
	}

	if len(ing.Spec.Rules) == 0 {
		slog.Default().Warn("ingress has no rules, skipping",
			"ingress", ing.Namespace+"/"+ing.Name,
			"component", "domain-patcher",
		)

		return nil, nil
	}

	rules := make([]networkingv1.IngressRule, len(ing.Spec.Rules))
	patched := false

	for i := range ing.Spec.Rules {
		rule := ing.Spec.Rules[i].DeepCopy()

		if QualifyHost(&rule.Host, domain) {
			patched = true
		}

		rules[i] = *rule
	}

	if !patched {
		return nil, nil
	}

	ruleConfigs, err := toRuleApplyConfigurations(rules)
	if err != nil {
		return nil, err
	}

	return networkingv1ac.Ingress(ing.Name, ing.Namespace).
		WithSpec(networkingv1ac.IngressSpec().WithRules(ruleConfigs...)), nil
}

// QualifyHost rewrites a bare host to host.domain in place and reports
// whether it did. Empty hosts and hosts containing a dot are left alone.
func QualifyHost(host *string, domain string) bool {
	if *host == "" || strings.Contains(*host, ".") {
		return false
	}

	*host = *host + "." + domain

	return true
}

// HasSpec reports whether the ingress carries a spec at all. The typed spec is
// a value, so an absent spec decodes to the zero IngressSpec. An explicitly
// empty rule list still counts as a spec.
func HasSpec(ing *networkingv1.Ingress) bool {
	spec := &ing.Spec

	return spec.Rules != nil ||
		spec.TLS != nil ||
		spec.DefaultBackend != nil ||
		spec.IngressClassName != nil
}

// toRuleApplyConfigurations converts typed rules through their JSON form,
// which the apply configurations share field for field.
func toRuleApplyConfigurations(rules []networkingv1.IngressRule) ([]*networkingv1ac.IngressRuleApplyConfiguration, error) {
	data, err := json.Marshal(rules)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode ingress rules")
	}

	var configs []*networkingv1ac.IngressRuleApplyConfiguration

	err = json.Unmarshal(data, &configs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode ingress rules")
	}

	return configs, nil
}
