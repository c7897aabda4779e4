package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autolab-io/workcellcore/enums"
	"github.com/autolab-io/workcellcore/identity"
	"github.com/autolab-io/workcellcore/runstate"
)

func TestUpdateRunStatusLifecycle(t *testing.T) {
	ctx := context.Background()
	store := New(identity.FixedClock{})

	r, err := store.CreateRun(ctx, runstate.CreateInput{Name: "transfer_v1"})
	require.NoError(t, err)
	require.Equal(t, enums.ProtocolRunStatusQueued, r.Status)

	r, err = store.UpdateRunStatus(ctx, r.AccessionID, enums.ProtocolRunStatusPending, nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, enums.ProtocolRunStatusPending, r.Status)
	require.Nil(t, r.StartTime)

	r, err = store.UpdateRunStatus(ctx, r.AccessionID, enums.ProtocolRunStatusRunning,
		map[string]any{"status": "Execution started by worker"}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, enums.ProtocolRunStatusRunning, r.Status)
	require.NotNil(t, r.StartTime)
	require.Equal(t, "Execution started by worker", r.OutputDataJSON["status"])

	r, err = store.UpdateRunStatus(ctx, r.AccessionID, enums.ProtocolRunStatusCompleted,
		map[string]any{"success": true}, map[string]any{"deck": "snapshot"}, nil)
	require.NoError(t, err)
	require.Equal(t, enums.ProtocolRunStatusCompleted, r.Status)
	require.NotNil(t, r.EndTime)
	require.NotNil(t, r.CompletedDurationMS)
	require.GreaterOrEqual(t, *r.CompletedDurationMS, int64(0))
	require.Equal(t, true, r.OutputDataJSON["success"])
	require.Equal(t, "snapshot", r.FinalStateJSON["deck"])
}

func TestUpdateRunStatusRejectsInvalidEdge(t *testing.T) {
	ctx := context.Background()
	store := New(nil)
	r, err := store.CreateRun(ctx, runstate.CreateInput{Name: "x"})
	require.NoError(t, err)

	_, err = store.UpdateRunStatus(ctx, r.AccessionID, enums.ProtocolRunStatusRunning, nil, nil, nil)
	require.Error(t, err)
}

func TestUpdateRunStatusTerminalIsAbsorbing(t *testing.T) {
	ctx := context.Background()
	store := New(nil)
	r, err := store.CreateRun(ctx, runstate.CreateInput{Name: "x"})
	require.NoError(t, err)
	_, _ = store.UpdateRunStatus(ctx, r.AccessionID, enums.ProtocolRunStatusPending, nil, nil, nil)
	_, _ = store.UpdateRunStatus(ctx, r.AccessionID, enums.ProtocolRunStatusRunning, nil, nil, nil)
	failed, err := store.UpdateRunStatus(ctx, r.AccessionID, enums.ProtocolRunStatusFailed, nil, nil, map[string]any{"error_message": "boom"})
	require.NoError(t, err)
	require.Equal(t, enums.ProtocolRunStatusFailed, failed.Status)

	again, err := store.UpdateRunStatus(ctx, r.AccessionID, enums.ProtocolRunStatusCompleted, nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, enums.ProtocolRunStatusFailed, again.Status, "terminal status must not change")
}

func TestUpdateRunStatusMissingRunReturnsNil(t *testing.T) {
	ctx := context.Background()
	store := New(nil)
	r, err := store.UpdateRunStatus(ctx, "does-not-exist", enums.ProtocolRunStatusRunning, nil, nil, nil)
	require.NoError(t, err)
	require.Nil(t, r)
}
