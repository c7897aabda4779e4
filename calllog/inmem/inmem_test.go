package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autolab-io/workcellcore/calllog"
	"github.com/autolab-io/workcellcore/enums"
	"github.com/autolab-io/workcellcore/workcellerrors"
)

func TestLogCallStartAndEnd(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	callID, err := s.LogCallStart(ctx, "run-1", "transfer_v1", 0, map[string]any{"volume": 100}, "")
	require.NoError(t, err)
	require.NotEmpty(t, callID)

	duration := int64(42)
	require.NoError(t, s.LogCallEnd(ctx, callID, enums.FunctionCallStatusSuccess, map[string]any{"ok": true}, "", "", &duration))

	call, err := s.ReadByID(ctx, callID)
	require.NoError(t, err)
	require.Equal(t, enums.FunctionCallStatusSuccess, call.Status)
	require.NotNil(t, call.EndTime)
	require.Equal(t, &duration, call.CompletedDurationMS)
}

func TestLogCallStartRejectsDuplicateSequence(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	_, err := s.LogCallStart(ctx, "run-1", "transfer_v1", 0, nil, "")
	require.NoError(t, err)

	_, err = s.LogCallStart(ctx, "run-1", "transfer_v1", 0, nil, "")
	require.Error(t, err)
	var conflict *workcellerrors.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, workcellerrors.ConflictUniqueness, conflict.Kind)
}

func TestLogCallEndMissingCallIDNeverRaises(t *testing.T) {
	s := New(nil)
	err := s.LogCallEnd(context.Background(), "does-not-exist", enums.FunctionCallStatusSuccess, nil, "", "", nil)
	require.NoError(t, err)
}

func TestListByRunOrdersBySequence(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	id1, _ := s.LogCallStart(ctx, "run-1", "aspirate", 1, nil, "")
	id0, _ := s.LogCallStart(ctx, "run-1", "dispense", 0, nil, "")
	_, _ = s.LogCallStart(ctx, "run-2", "other_run", 0, nil, "")

	calls, err := s.ListByRun(ctx, "run-1", calllog.ListOptions{})
	require.NoError(t, err)
	require.Len(t, calls, 2)
	require.Equal(t, id0, calls[0].AccessionID)
	require.Equal(t, id1, calls[1].AccessionID)
}
