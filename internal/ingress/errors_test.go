package ingress

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

var errTransport = errors.New("connection reset by peer")

func TestError_Messages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "structural",
			err:      NewStructuralError(FieldSpec),
			expected: "structural error: .spec missing from ingress",
		},
		{
			name:     "missing object key",
			err:      NewMissingObjectKeyError(FieldNamespace),
			expected: "missing object key: .metadata.namespace",
		},
		{
			name:     "patch apply failed",
			err:      NewPatchApplyError(errTransport),
			expected: "failed to patch ingress: connection reset by peer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestError_Is(t *testing.T) {
	t.Parallel()

	spec := NewStructuralError(FieldSpec)

	assert.True(t, errors.Is(spec, ErrStructural))
	assert.True(t, errors.Is(spec, ErrMissingSpec))
	assert.False(t, errors.Is(spec, ErrMissingRules))
	assert.False(t, errors.Is(spec, ErrMissingObjectKey))

	key := NewMissingObjectKeyError(FieldName)
	assert.True(t, errors.Is(key, ErrMissingObjectKey))
	assert.False(t, errors.Is(key, ErrMissingName))
}

func TestError_UnwrapsCause(t *testing.T) {
	t.Parallel()

	err := errors.Wrap(NewPatchApplyError(errTransport), "reconcile failed")

	assert.True(t, errors.Is(err, ErrPatchApplyFailed))
	assert.True(t, errors.Is(err, errTransport))
	assert.Equal(t, KindPatchApplyFailed, KindOf(err))
}

func TestNewPatchApplyError_Nil(t *testing.T) {
	t.Parallel()

	assert.NoError(t, NewPatchApplyError(nil))
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(errTransport))
	assert.Equal(t, KindStructural, KindOf(NewStructuralError(FieldRules)))
	assert.Equal(t, KindMissingObjectKey, KindOf(errors.Wrap(NewMissingObjectKeyError(FieldName), "wrapped")))
}
