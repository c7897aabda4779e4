package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autolab-io/workcellcore/calllog"
	"github.com/autolab-io/workcellcore/enums"
	"github.com/autolab-io/workcellcore/mongotest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	client := mongotest.Client(t)
	s, err := New(context.Background(), Options{Client: client, Database: mongotest.Database(t)})
	require.NoError(t, err)
	return s
}

func TestMongoCallLogRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	callID, err := s.LogCallStart(ctx, "run-1", "aspirate", 0, map[string]any{"volume_ul": 100}, "")
	require.NoError(t, err)
	require.NotEmpty(t, callID)

	require.NoError(t, s.LogCallEnd(ctx, callID, enums.FunctionCallStatusSuccess, map[string]any{"ok": true}, "", "", nil))

	got, err := s.ReadByID(ctx, callID)
	require.NoError(t, err)
	require.Equal(t, enums.FunctionCallStatusSuccess, got.Status)
	require.Equal(t, "run-1", got.ProtocolRunID)

	list, err := s.ListByRun(ctx, "run-1", calllog.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestMongoCallLogSequenceUniquePerRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.LogCallStart(ctx, "run-2", "aspirate", 0, nil, "")
	require.NoError(t, err)

	_, err = s.LogCallStart(ctx, "run-2", "dispense", 0, nil, "")
	require.Error(t, err, "duplicate sequence_in_run within the same run must conflict")
}

func TestMongoHealthPing(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))
	require.Equal(t, "calllog-mongo", s.Name())
}
