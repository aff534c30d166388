package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain error", errors.New("boom"), KindPropagated},
		{"not found", NewError(KindNotFound, "product p1"), KindNotFound},
		{"wrapped with fmt", fmt.Errorf("delete: %w", NewError(KindConditionalWriteConflict, "dup")), KindConditionalWriteConflict},
		{"wrap keeps outer kind", Wrap(errors.New("io"), KindEnrichmentFailure, "geocode"), KindEnrichmentFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorsIsByKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", Errorf(KindNotFound, "location %s", "L1"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrDuplicateCreate))
	assert.True(t, IsKind(err, KindNotFound))
	assert.Contains(t, err.Error(), "[NOT_FOUND] location L1")
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, KindPropagated, "noop"))
}
