package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodedErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"malformed", MalformedEventf("missing author in %s", "abc"), ErrMalformedEvent},
		{"overloaded", Overloadedf("alice at capacity"), ErrOverloaded},
		{"availability", AvailabilityUnavailable(fmt.Errorf("dial tcp"), "status lookup"), ErrAvailabilityServiceUnavailable},
		{"inconsistent", InconsistentStatef("negative weight"), ErrInconsistentOwnershipState},
		{"invalid", InvalidRequestf("bug id required"), ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, stderrors.Is(tt.err, tt.sentinel))
			assert.False(t, stderrors.Is(tt.err, ErrNoKnownOwner))
		})
	}
}

func TestWrappedCodedErrorStillMatches(t *testing.T) {
	err := fmt.Errorf("apply event: %w", MalformedEventf("missing file path"))
	assert.True(t, stderrors.Is(err, ErrMalformedEvent))

	var typed *Error
	require.True(t, stderrors.As(err, &typed))
	assert.Equal(t, CodeMalformedEvent, typed.Code)
}

func TestSeverity(t *testing.T) {
	assert.True(t, IsFatal(InconsistentStatef("nan weight")))
	assert.False(t, IsFatal(Overloadedf("busy")))
	assert.Equal(t, SeverityLow, GetSeverity(nil))
	assert.Equal(t, SeverityMedium, GetSeverity(fmt.Errorf("plain")))
}

func TestSeveritySeesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("apply event: %w", InconsistentStatef("negative weight"))
	assert.True(t, IsFatal(err))
	assert.Equal(t, SeverityCritical, GetSeverity(err))
	assert.Equal(t, "CRITICAL", GetSeverity(err).String())
}

func TestDescribe(t *testing.T) {
	err := DatabaseError(fmt.Errorf("disk full"), "save decision d1")
	assert.Contains(t, Describe(err), "[CRITICAL] [DATABASE] save decision d1: disk full")
	assert.Equal(t, "plain", Describe(fmt.Errorf("plain")))
}

func TestErrorMessageFallsBackToCode(t *testing.T) {
	assert.Equal(t, "overloaded", ErrOverloaded.Error())

	wrapped := AvailabilityUnavailable(fmt.Errorf("timeout"), "reserve")
	assert.Equal(t, "reserve: timeout", wrapped.Error())
	assert.Contains(t, wrapped.DetailedString(), "EXTERNAL")
}
