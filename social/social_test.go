package social

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecision_Err(t *testing.T) {
	assert.NoError(t, Allow().Err())

	err := Deny(CodeCooldown, "wait").Err()
	require.Error(t, err)
	r, ok := AsRejected(err)
	require.True(t, ok)
	assert.Equal(t, CodeCooldown, r.Code)
	assert.Equal(t, "wait", r.Error())
}

func TestAsRejected_Wrapped(t *testing.T) {
	err := fmt.Errorf("poke: %w", Reject(CodeDuplicate, "already sent"))
	r, ok := AsRejected(err)
	require.True(t, ok)
	assert.Equal(t, CodeDuplicate, r.Code)

	_, ok = AsValidation(err)
	assert.False(t, ok)
}

func TestValidationError(t *testing.T) {
	err := fmt.Errorf("wrap: %w", &ValidationError{Reasons: []string{"a", "b"}})
	v, ok := AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, v.Reasons)
	assert.Equal(t, "a; b", v.Error())
}
