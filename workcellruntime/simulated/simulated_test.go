package simulated

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autolab-io/workcellcore/enums"
)

func TestConstructReturnsInstanceCarryingFQNAndBackend(t *testing.T) {
	inst, err := Construct(context.Background(), "hamilton.star", enums.BackendTypeSimulator, map[string]any{"seed": true})
	require.NoError(t, err)
	require.Equal(t, "hamilton.star", inst.FQN())
	require.Equal(t, enums.BackendTypeSimulator, inst.Backend())
}
