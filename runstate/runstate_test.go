package runstate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autolab-io/workcellcore/enums"
)

func TestCanTransitionHappyPath(t *testing.T) {
	require.True(t, CanTransition(enums.ProtocolRunStatusQueued, enums.ProtocolRunStatusPending))
	require.True(t, CanTransition(enums.ProtocolRunStatusPending, enums.ProtocolRunStatusRunning))
	require.True(t, CanTransition(enums.ProtocolRunStatusRunning, enums.ProtocolRunStatusCompleted))
	require.True(t, CanTransition(enums.ProtocolRunStatusPausing, enums.ProtocolRunStatusPaused))
	require.True(t, CanTransition(enums.ProtocolRunStatusPaused, enums.ProtocolRunStatusResuming))
	require.True(t, CanTransition(enums.ProtocolRunStatusResuming, enums.ProtocolRunStatusRunning))
}

func TestCanTransitionRejectsUnlistedEdges(t *testing.T) {
	require.False(t, CanTransition(enums.ProtocolRunStatusQueued, enums.ProtocolRunStatusRunning))
	require.False(t, CanTransition(enums.ProtocolRunStatusCompleted, enums.ProtocolRunStatusRunning))
	require.False(t, CanTransition(enums.ProtocolRunStatusRunning, enums.ProtocolRunStatusQueued))
}

func TestCanTransitionRejectsSelfLoop(t *testing.T) {
	require.False(t, CanTransition(enums.ProtocolRunStatusRunning, enums.ProtocolRunStatusRunning))
}

func TestIsTerminal(t *testing.T) {
	require.True(t, IsTerminal(enums.ProtocolRunStatusCompleted))
	require.True(t, IsTerminal(enums.ProtocolRunStatusFailed))
	require.True(t, IsTerminal(enums.ProtocolRunStatusCancelled))
	require.False(t, IsTerminal(enums.ProtocolRunStatusRunning))
	require.False(t, IsTerminal(enums.ProtocolRunStatusQueued))
}
