package ingress

import (
	"github.com/cockroachdb/errors"
)

// ErrorKind classifies reconcile failures. The value doubles as a metrics label.
type ErrorKind string

// Error kinds surfaced by the patch computers and the reconciler.
const (
	// KindStructural means a required field (spec, name or rules) is missing
	// from the observed object.
	KindStructural ErrorKind = "structural"

	// KindPatchApplyFailed wraps a failed server-side apply.
	KindPatchApplyFailed ErrorKind = "patch_apply_failed"

	// KindMissingObjectKey means the object name or namespace is absent, so
	// not even a meaningful object reference can be logged.
	KindMissingObjectKey ErrorKind = "missing_object_key"

	// KindUnknown is reported for errors that carry no Error in their chain.
	KindUnknown ErrorKind = "unknown"
)

// Object field paths reported by structural and object key errors.
const (
	FieldName      = ".metadata.name"
	FieldNamespace = ".metadata.namespace"
	FieldSpec      = ".spec"
	FieldRules     = ".spec.rules"
)

// Error is a tagged reconcile error. Field is set for structural and object
// key errors, Cause for apply failures.
type Error struct {
	Kind  ErrorKind
	Field string
	Cause error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStructural:
		return "structural error: " + e.Field + " missing from ingress"
	case KindMissingObjectKey:
		return "missing object key: " + e.Field
	case KindPatchApplyFailed:
		if e.Cause == nil {
			return "failed to patch ingress"
		}

		return "failed to patch ingress: " + e.Cause.Error()
	default:
		if e.Cause != nil {
			return e.Cause.Error()
		}

		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind and field, so the package-level
// sentinels below can be used with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}

	if other.Kind != e.Kind {
		return false
	}

	return other.Field == "" || other.Field == e.Field
}

// Sentinels for errors.Is.
//
//nolint:gochecknoglobals // sentinel errors
var (
	ErrStructural       = &Error{Kind: KindStructural}
	ErrMissingSpec      = &Error{Kind: KindStructural, Field: FieldSpec}
	ErrMissingRules     = &Error{Kind: KindStructural, Field: FieldRules}
	ErrMissingName      = &Error{Kind: KindStructural, Field: FieldName}
	ErrPatchApplyFailed = &Error{Kind: KindPatchApplyFailed}
	ErrMissingObjectKey = &Error{Kind: KindMissingObjectKey}
)

// NewStructuralError reports a missing required field.
func NewStructuralError(field string) error {
	return &Error{Kind: KindStructural, Field: field}
}

// NewMissingObjectKeyError reports a missing name or namespace.
func NewMissingObjectKeyError(field string) error {
	return &Error{Kind: KindMissingObjectKey, Field: field}
}

// NewPatchApplyError wraps a failed apply. A nil cause yields nil.
func NewPatchApplyError(cause error) error {
	if cause == nil {
		return nil
	}

	return &Error{Kind: KindPatchApplyFailed, Cause: cause}
}

// KindOf returns the kind of the first Error in the chain, KindUnknown when
// there is none and an empty string for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}

	return KindUnknown
}
