// Package config resolves the per-object configuration carried in Ingress
// annotations into typed directives.
package config

import (
	"strings"

	"github.com/cockroachdb/errors"
	"k8s.io/apimachinery/pkg/util/validation"
)

const (
	// AnnotationPrefix is shared by every directive annotation.
	AnnotationPrefix = "autotls/"

	// DomainAnnotation holds the domain suffix appended to bare rule hosts.
	DomainAnnotation = AnnotationPrefix + "domain"

	// IssuerAnnotation selects how TLS is provisioned: "auto" or an issuer name.
	IssuerAnnotation = AnnotationPrefix + "issuer"

	// IssuerAutoValue selects the legacy tls-acme annotation.
	IssuerAutoValue = "auto"
)

// ErrInvalidDirective marks an annotation whose value cannot be used.
//
//nolint:gochecknoglobals // sentinel error
var ErrInvalidDirective = errors.New("invalid directive")

// IssuerKind tells the two issuer directive variants apart.
type IssuerKind int

const (
	// IssuerAuto requests certificates through the kubernetes.io/tls-acme annotation.
	IssuerAuto IssuerKind = iota + 1

	// IssuerNamed requests certificates from a named cert-manager ClusterIssuer.
	IssuerNamed
)

// Issuer is the decoded value of the issuer annotation.
type Issuer struct {
	Kind IssuerKind

	// Name is the ClusterIssuer name. Empty for IssuerAuto.
	Name string
}

// AutoIssuer returns the "auto" issuer directive.
func AutoIssuer() Issuer {
	return Issuer{Kind: IssuerAuto}
}

// NamedIssuer returns a directive for the given ClusterIssuer.
func NamedIssuer(name string) Issuer {
	return Issuer{Kind: IssuerNamed, Name: name}
}

// IsAuto reports whether the directive is the "auto" variant.
func (i Issuer) IsAuto() bool {
	return i.Kind == IssuerAuto
}

func (i Issuer) String() string {
	if i.IsAuto() {
		return IssuerAutoValue
	}

	return i.Name
}

// ParseIssuer decodes an issuer annotation value.
func ParseIssuer(value string) (Issuer, error) {
	switch value {
	case "":
		return Issuer{}, errors.Wrapf(ErrInvalidDirective, "annotation %s is empty", IssuerAnnotation)
	case IssuerAutoValue:
		return AutoIssuer(), nil
	default:
		return NamedIssuer(value), nil
	}
}

// ParseDomain validates a domain annotation value.
func ParseDomain(value string) (string, error) {
	if value == "" {
		return "", errors.Wrapf(ErrInvalidDirective, "annotation %s is empty", DomainAnnotation)
	}

	if msgs := validation.IsDNS1123Subdomain(value); len(msgs) > 0 {
		return "", errors.Wrapf(ErrInvalidDirective, "annotation %s: %q: %s",
			DomainAnnotation, value, strings.Join(msgs, "; "))
	}

	return value, nil
}

// Directives contains the directives resolved from one object's annotations.
// A nil directive means the annotation is absent or invalid; an invalid value
// is reported in the matching error field.
type Directives struct {
	Domain *string
	Issuer *Issuer

	DomainError error
	IssuerError error
}

// Empty reports whether no pipeline has to run.
func (d *Directives) Empty() bool {
	return d.Domain == nil && d.Issuer == nil
}

// Resolve decodes both directives. Each annotation is read independently, so
// an invalid domain does not prevent the issuer from being resolved.
func Resolve(annotations map[string]string) *Directives {
	directives := &Directives{}

	if value, ok := annotations[DomainAnnotation]; ok {
		domain, err := ParseDomain(value)
		if err != nil {
			directives.DomainError = err
		} else {
			directives.Domain = &domain
		}
	}

	if value, ok := annotations[IssuerAnnotation]; ok {
		issuer, err := ParseIssuer(value)
		if err != nil {
			directives.IssuerError = err
		} else {
			directives.Issuer = &issuer
		}
	}

	return directives
}
