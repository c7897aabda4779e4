package workcellerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConflictErrorUnwrap(t *testing.T) {
	cause := errors.New("duplicate key")
	err := NewConflict(ConflictUniqueness, "machine", "name", "STAR-1", cause)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "machine.name")
}

func TestInvalidTransitionError(t *testing.T) {
	err := NewInvalidTransition("protocol_run", "COMPLETED", "RUNNING")
	require.Contains(t, err.Error(), "COMPLETED -> RUNNING")
}

func TestAssetAcquisitionErrorWithoutCause(t *testing.T) {
	err := NewAssetAcquisitionError("machine", "LiquidHandlerSTAR", "no candidate available", nil)
	require.Contains(t, err.Error(), "LiquidHandlerSTAR")
	require.Nil(t, err.Unwrap())
}

func TestAssetReleaseErrorUnwrap(t *testing.T) {
	cause := errors.New("reservation mismatch")
	err := NewAssetReleaseError("resource", "plate-1", "reservation does not match", cause)
	require.ErrorIs(t, err, cause)
}

func TestDimensionMismatchError(t *testing.T) {
	err := NewDimensionMismatch(96, 95)
	require.Contains(t, err.Error(), "95")
	require.Contains(t, err.Error(), "96")
}

func TestInvalidLinkOperationError(t *testing.T) {
	err := NewInvalidLinkOperation("resource_definition_name is required")
	require.Equal(t, "invalid link operation: resource_definition_name is required", err.Error())
}

func TestErrNotFoundSentinel(t *testing.T) {
	wrapped := errors.New("machine abc123: not found")
	require.False(t, errors.Is(wrapped, ErrNotFound), "plain text does not satisfy errors.Is; must wrap with %%w")
}
