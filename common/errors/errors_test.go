package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	base := stderrors.New("connection refused")

	tests := []struct {
		name      string
		err       error
		transient bool
		invalid   bool
		class     Class
	}{
		{"transient", WrapTransient(base, "repo", "Exists"), true, false, Transient},
		{"wrapped transient", fmt.Errorf("validate: %w", WrapTransient(base, "repo", "Exists")), true, false, Transient},
		{"invalid", WrapInvalid(base, "parser", "Parse"), false, true, Invalid},
		{"fatal", WrapFatal(base, "writer", "Write"), false, false, Fatal},
		{"deadline", context.DeadlineExceeded, true, false, Transient},
		{"cancelled", context.Canceled, false, false, Fatal},
		{"plain", base, false, false, Fatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransient(tt.err))
			assert.Equal(t, tt.invalid, IsInvalid(tt.err))
			assert.Equal(t, tt.class, ClassOf(tt.err))
		})
	}
}

func TestCancelledIsNeverTransient(t *testing.T) {
	err := WrapTransient(context.Canceled, "repo", "Exists")
	assert.False(t, IsTransient(err))
	assert.True(t, IsCancelled(err))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, WrapTransient(nil, "a", "b"))
	assert.False(t, IsTransient(nil))
	assert.False(t, IsInvalid(nil))
}

func TestClassifiedErrorMessage(t *testing.T) {
	err := WrapTransient(stderrors.New("timeout"), "PostgresRepository", "MessageIDExists")
	assert.Equal(t, "PostgresRepository.MessageIDExists: timeout", err.Error())
	assert.True(t, stderrors.Is(err, stderrors.Unwrap(err)))
	assert.Equal(t, "transient", Transient.String())
	assert.Equal(t, "unknown", Class(9).String())
}
