package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autolab-io/workcellcore/enums"
	"github.com/autolab-io/workcellcore/mongotest"
	"github.com/autolab-io/workcellcore/runstate"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	client := mongotest.Client(t)
	s, err := New(context.Background(), Options{Client: client, Database: mongotest.Database(t)})
	require.NoError(t, err)
	return s
}

func TestMongoRunStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r, err := s.CreateRun(ctx, runstate.CreateInput{Name: "transfer_v1"})
	require.NoError(t, err)
	require.Equal(t, enums.ProtocolRunStatusQueued, r.Status)

	got, err := s.ReadRunByID(ctx, r.AccessionID)
	require.NoError(t, err)
	require.Equal(t, r.AccessionID, got.AccessionID)

	_, err = s.UpdateRunStatus(ctx, r.AccessionID, enums.ProtocolRunStatusPending, nil, nil, nil)
	require.NoError(t, err)

	updated, err := s.UpdateRunStatus(ctx, r.AccessionID, enums.ProtocolRunStatusRunning, nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, enums.ProtocolRunStatusRunning, updated.Status)

	final, err := s.UpdateRunStatus(ctx, r.AccessionID, enums.ProtocolRunStatusCompleted, map[string]any{"ok": true}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, enums.ProtocolRunStatusCompleted, final.Status)
	require.NotNil(t, final.EndTime)
}

func TestMongoHealthPing(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))
	require.Equal(t, "runstate-mongo", s.Name())
}
