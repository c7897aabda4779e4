package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autolab-io/workcellcore/assetlock/inmem"
	assetstoreinmem "github.com/autolab-io/workcellcore/assetstore/inmem"
	"github.com/autolab-io/workcellcore/enums"
	"github.com/autolab-io/workcellcore/runevents"
	"github.com/autolab-io/workcellcore/runstate"
	runstateinmem "github.com/autolab-io/workcellcore/runstate/inmem"
)

type recordingPublisher struct {
	events []runevents.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev runevents.Event) error {
	p.events = append(p.events, ev)
	return nil
}

type fakeOrchestrator struct {
	failWith error
}

func (f *fakeOrchestrator) ExecuteExistingProtocolRun(ctx context.Context, run *runstate.Record, inputParameters, initialState map[string]any, cancelCheck CancellationChecker) (*runstate.Record, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	run.Status = enums.ProtocolRunStatusCompleted
	return run, nil
}

func newExecCtx(t *testing.T, orch Orchestrator) (*Context, *runstate.Record) {
	t.Helper()
	runs := runstateinmem.New(nil)
	locks := inmem.New(assetstoreinmem.New(nil))
	r, err := runs.CreateRun(context.Background(), runstate.CreateInput{Name: "transfer_v1"})
	require.NoError(t, err)
	_, err = runs.UpdateRunStatus(context.Background(), r.AccessionID, enums.ProtocolRunStatusPending, nil, nil, nil)
	require.NoError(t, err)
	return &Context{Runs: runs, Locks: locks, Orchestrator: orch}, r
}

func TestExecuteNotInitialized(t *testing.T) {
	result := Execute(context.Background(), nil, "r1", nil, nil, "task-1")
	require.False(t, result.Success)
	require.Equal(t, ErrContextNotInitialized.Error(), result.Error)
}

func TestExecuteHappyPath(t *testing.T) {
	execCtx, r := newExecCtx(t, &fakeOrchestrator{})
	result := Execute(context.Background(), execCtx, r.AccessionID, map[string]any{"volume": 100}, nil, "task-1")
	require.True(t, result.Success)
	require.Equal(t, enums.ProtocolRunStatusCompleted, result.FinalStatus)

	final, err := execCtx.Runs.ReadRunByID(context.Background(), r.AccessionID)
	require.NoError(t, err)
	require.Equal(t, enums.ProtocolRunStatusCompleted, final.Status)
	require.NotNil(t, final.EndTime)
}

func TestExecuteOrchestratorFailureMarksRunFailed(t *testing.T) {
	execCtx, r := newExecCtx(t, &fakeOrchestrator{failWith: errors.New("Test fail")})
	result := Execute(context.Background(), execCtx, r.AccessionID, nil, nil, "task-1")
	require.False(t, result.Success)
	require.Contains(t, result.Error, "Test fail")

	final, err := execCtx.Runs.ReadRunByID(context.Background(), r.AccessionID)
	require.NoError(t, err)
	require.Equal(t, enums.ProtocolRunStatusFailed, final.Status)
	require.NotNil(t, final.EndTime)
	errInfo, ok := final.OutputDataJSON["error"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, errInfo["error_message"], "Test fail")
}

func TestExecuteUnknownRunID(t *testing.T) {
	execCtx, _ := newExecCtx(t, &fakeOrchestrator{})
	result := Execute(context.Background(), execCtx, "does-not-exist", nil, nil, "task-1")
	require.False(t, result.Success)
	require.Equal(t, ErrRunNotFound.Error(), result.Error)
}

func TestExecutePublishesStatusEvents(t *testing.T) {
	execCtx, r := newExecCtx(t, &fakeOrchestrator{})
	pub := &recordingPublisher{}
	execCtx.Events = pub

	result := Execute(context.Background(), execCtx, r.AccessionID, nil, nil, "task-1")
	require.True(t, result.Success)

	require.Len(t, pub.events, 2)
	require.Equal(t, runevents.EventRunStatusChanged, pub.events[0].Type)
	payload, ok := pub.events[0].Payload.(runevents.RunStatusPayload)
	require.True(t, ok)
	require.Equal(t, enums.ProtocolRunStatusRunning, payload.Status)

	finalPayload, ok := pub.events[1].Payload.(runevents.RunStatusPayload)
	require.True(t, ok)
	require.Equal(t, enums.ProtocolRunStatusCompleted, finalPayload.Status)
}

func TestExecuteFailurePublishesFailedEvent(t *testing.T) {
	execCtx, r := newExecCtx(t, &fakeOrchestrator{failWith: errors.New("boom")})
	pub := &recordingPublisher{}
	execCtx.Events = pub

	result := Execute(context.Background(), execCtx, r.AccessionID, nil, nil, "task-1")
	require.False(t, result.Success)

	require.Len(t, pub.events, 2)
	require.Equal(t, enums.ProtocolRunStatusRunning, pub.events[0].Payload.(runevents.RunStatusPayload).Status)
	require.Equal(t, enums.ProtocolRunStatusFailed, pub.events[1].Payload.(runevents.RunStatusPayload).Status)
}

func TestHealthCheck(t *testing.T) {
	result := HealthCheck(func() string { return "2026-07-29T00:00:00Z" })
	require.Equal(t, "healthy", result.Status)
	require.Equal(t, "2026-07-29T00:00:00Z", result.Timestamp)
}
