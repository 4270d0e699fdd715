package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorMessage(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := NewRuleDefinitionError("duplicate rule id")
		assert.Equal(t, "[RULE_DEFINITION] duplicate rule id", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		cause := errors.New("file truncated")
		err := NewIngestionError("failed to open workbook", cause)
		assert.Contains(t, err.Error(), "failed to open workbook")
		assert.Contains(t, err.Error(), "file truncated")
	})
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewStorageError("save failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), cause)
}

func TestIsType(t *testing.T) {
	err := NewConfigError("bad tolerance")

	assert.True(t, IsType(err, ErrTypeConfig))
	assert.False(t, IsType(err, ErrTypeIngestion))
	assert.False(t, IsType(errors.New("plain"), ErrTypeConfig))

	t.Run("sees through wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("outer: %w", err)
		assert.True(t, IsType(wrapped, ErrTypeConfig))
	})
}

func TestWithContext(t *testing.T) {
	err := NewValidationError("rule panicked").
		WithContext("rule", "fico-range").
		WithContext("record", "10012345")

	require.NotNil(t, err.Context)
	assert.Equal(t, "fico-range", err.Context["rule"])
	assert.Equal(t, "10012345", err.Context["record"])
}
