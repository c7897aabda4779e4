// Package executor implements the task executor (C11): the synchronous
// bridge a background worker invokes to run a single protocol run to
// completion. Grounded on praxis's celery_tasks.py execute_protocol_run_task
// / _execute_protocol_async pair, generalized from a Celery-bound,
// SQLAlchemy-session-scoped bridge to the engine.Engine-agnostic shape
// runtime/agent/runtime/runtime.go uses for its workflow/activity split.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/autolab-io/workcellcore/assetlock"
	"github.com/autolab-io/workcellcore/enums"
	"github.com/autolab-io/workcellcore/runevents"
	"github.com/autolab-io/workcellcore/runstate"
	"github.com/autolab-io/workcellcore/telemetry"
)

// ErrRunNotFound indicates the protocol run id passed to Execute does not
// exist in the run store.
var ErrRunNotFound = errors.New("protocol run not found")

// ErrContextNotInitialized indicates Execute was called before a Context
// was wired up with its dependencies — the executor must never touch the
// store before confirming it has one.
var ErrContextNotInitialized = errors.New("execution context not initialized")

// CancellationChecker lets an orchestrator poll for a cooperative
// cancel/pause request between function calls. The core does not invent
// its own preemption mechanism (it is not a DAG engine); this is the one
// contract an orchestrator implementation must honor, polled between
// calls rather than used to interrupt one already in flight.
type CancellationChecker func(ctx context.Context, protocolRunID string) (cancel bool, err error)

// Orchestrator is the single operation the executor delegates the actual
// protocol body to. Implementations own asset acquisition (assetacquire),
// function-call logging (calllog), and data outputs (dataoutput); the
// executor never reaches into those concerns directly.
type Orchestrator interface {
	ExecuteExistingProtocolRun(ctx context.Context, run *runstate.Record, inputParameters, initialState map[string]any, cancelCheck CancellationChecker) (*runstate.Record, error)
}

// Context carries the dependencies a single Execute call needs. A nil
// Context (or one missing Runs/Locks/Orchestrator) is "not initialized":
// Execute must detect this before doing anything else.
type Context struct {
	Runs         runstate.Store
	Locks        assetlock.Manager
	Orchestrator Orchestrator
	CancelCheck  CancellationChecker
	Logger       telemetry.Logger
	// Events, when set, is notified of every status transition this
	// Execute call makes. A nil Events is treated as runevents.NoopPublisher.
	Events runevents.Publisher
}

func (c *Context) events() runevents.Publisher {
	if c.Events == nil {
		return runevents.NoopPublisher{}
	}
	return c.Events
}

func (c *Context) initialized() bool {
	return c != nil && c.Runs != nil && c.Locks != nil && c.Orchestrator != nil
}

// Result is the value Execute always returns, on both the success and
// failure paths: the worker never receives a raw error, only a struct it
// can inspect and re-raise/log from.
type Result struct {
	Success       bool
	ProtocolRunID string
	FinalStatus   enums.ProtocolRunStatus
	Message       string
	Error         string
}

// Execute runs protocolRunID to a terminal status and always releases
// every lock it holds, regardless of outcome.
func Execute(ctx context.Context, execCtx *Context, protocolRunID string, inputParameters, initialState map[string]any, workerTaskID string) Result {
	if !execCtx.initialized() {
		return Result{Success: false, Error: ErrContextNotInitialized.Error()}
	}
	logger := execCtx.Logger
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}

	logger.Info(ctx, "starting protocol execution",
		"protocol_run_id", protocolRunID,
		"worker_task_id", workerTaskID,
	)

	result := run(ctx, execCtx, protocolRunID, inputParameters, initialState, workerTaskID, logger)

	if _, err := execCtx.Locks.ReleaseAllProtocolLocks(ctx, protocolRunID); err != nil {
		logger.Error(ctx, "failed to release protocol locks after execution",
			"protocol_run_id", protocolRunID,
			"error", err.Error(),
		)
	}

	return result
}

func run(ctx context.Context, execCtx *Context, protocolRunID string, inputParameters, initialState map[string]any, workerTaskID string, logger telemetry.Logger) (result Result) {
	runRecord, err := execCtx.Runs.ReadRunByID(ctx, protocolRunID)
	if err != nil || runRecord == nil {
		return Result{Success: false, Error: ErrRunNotFound.Error()}
	}

	runRecord, err = execCtx.Runs.UpdateRunStatus(ctx, protocolRunID, enums.ProtocolRunStatusRunning, map[string]any{
		"status":         "Execution started by worker",
		"worker_task_id": workerTaskID,
	}, nil, nil)
	if err != nil {
		return failRun(ctx, execCtx, protocolRunID, err, logger)
	}
	if runRecord == nil {
		return Result{Success: false, Error: ErrRunNotFound.Error()}
	}
	publishStatus(ctx, execCtx, protocolRunID, enums.ProtocolRunStatusRunning, logger)

	finalRun, err := execCtx.Orchestrator.ExecuteExistingProtocolRun(ctx, runRecord, inputParameters, initialState, execCtx.CancelCheck)
	if err != nil {
		return failRun(ctx, execCtx, protocolRunID, err, logger)
	}
	if finalRun.Status == enums.ProtocolRunStatusCancelled {
		if _, err := execCtx.Runs.UpdateRunStatus(ctx, protocolRunID, enums.ProtocolRunStatusCanceling, nil, nil, nil); err != nil {
			return failRun(ctx, execCtx, protocolRunID, err, logger)
		}
	}
	if runstate.IsTerminal(finalRun.Status) {
		if _, err := execCtx.Runs.UpdateRunStatus(ctx, protocolRunID, finalRun.Status, finalRun.OutputDataJSON, finalRun.FinalStateJSON, nil); err != nil {
			return failRun(ctx, execCtx, protocolRunID, err, logger)
		}
	}
	publishStatus(ctx, execCtx, protocolRunID, finalRun.Status, logger)

	return Result{
		Success:       true,
		ProtocolRunID: protocolRunID,
		FinalStatus:   finalRun.Status,
		Message:       "protocol executed successfully via orchestrator",
	}
}

func publishStatus(ctx context.Context, execCtx *Context, protocolRunID string, status enums.ProtocolRunStatus, logger telemetry.Logger) {
	ev := runevents.Event{
		Type:          runevents.EventRunStatusChanged,
		ProtocolRunID: protocolRunID,
		Payload:       runevents.RunStatusPayload{Status: status},
	}
	if err := execCtx.events().Publish(ctx, ev); err != nil {
		logger.Warn(ctx, "failed to publish run status event",
			"protocol_run_id", protocolRunID,
			"status", string(status),
			"error", err.Error(),
		)
	}
}

// failRun is the except-block equivalent of celery_tasks.py's
// _execute_protocol_async: it always transitions the run to FAILED with
// error_info before surfacing the error, and never lets a second failure
// from that transition mask the original one.
func failRun(ctx context.Context, execCtx *Context, protocolRunID string, cause error, logger telemetry.Logger) Result {
	errInfo := map[string]any{
		"error_type":    fmt.Sprintf("%T", cause),
		"error_message": cause.Error(),
	}
	if _, updateErr := execCtx.Runs.UpdateRunStatus(ctx, protocolRunID, enums.ProtocolRunStatusFailed, nil, nil, errInfo); updateErr != nil {
		logger.Error(ctx, "critical: failed to mark protocol run FAILED after execution error",
			"protocol_run_id", protocolRunID,
			"original_error", cause.Error(),
			"update_error", updateErr.Error(),
		)
	}
	publishStatus(ctx, execCtx, protocolRunID, enums.ProtocolRunStatusFailed, logger)
	return Result{
		Success:       false,
		ProtocolRunID: protocolRunID,
		FinalStatus:   enums.ProtocolRunStatusFailed,
		Error:         cause.Error(),
	}
}

// HealthCheckResult is returned by HealthCheck, the worker's liveness probe.
type HealthCheckResult struct {
	Status    string
	Timestamp string
}

// HealthCheck mirrors celery_tasks.py's health_check task: a trivial,
// dependency-free probe the dispatch layer can invoke to confirm a worker
// process is responsive.
func HealthCheck(now func() string) HealthCheckResult {
	return HealthCheckResult{Status: "healthy", Timestamp: now()}
}
