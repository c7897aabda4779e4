// Package orchestrator provides a minimal reference implementation of
// executor.Orchestrator, demonstrating how the engine.Engine abstraction
// (Temporal in production, engine/inmem in tests) drives a protocol run
// through C7/C8's primitives. It is not the production orchestrator: a
// protocol's planning logic (which function calls it makes, in what
// order, against which declared asset requirements) is expected to live
// outside this module, typically generated from a protocol definition's
// registered callable. What's here is the load-bearing glue a real
// orchestrator would also need: registering the workflow,
// acquiring/releasing the declared assets, and recording the run's
// function calls, so cmd/workcellworker has a runnable default.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/autolab-io/workcellcore/assetacquire"
	"github.com/autolab-io/workcellcore/calllog"
	"github.com/autolab-io/workcellcore/engine"
	"github.com/autolab-io/workcellcore/enums"
	"github.com/autolab-io/workcellcore/executor"
	"github.com/autolab-io/workcellcore/identity"
	"github.com/autolab-io/workcellcore/runevents"
	"github.com/autolab-io/workcellcore/runstate"
	"github.com/autolab-io/workcellcore/telemetry"
)

const WorkflowName = "ExecuteProtocolRun"

// Reference implements executor.Orchestrator over an engine.Engine. A
// protocol's declared asset requirements and call steps are read from
// input parameters under the "asset_requirements" and "calls" keys; a
// production orchestrator would instead derive these from the
// FunctionProtocolDefinition's registered Python/Go callable.
type Reference struct {
	Engine   engine.Engine
	Acquirer *assetacquire.Acquirer
	CallLog  calllog.Store
	Clock    identity.Clock
	Logger   telemetry.Logger
	// Events, when set, receives function-call start/end notifications as
	// the workflow body runs. A nil Events is treated as
	// runevents.NoopPublisher.
	Events runevents.Publisher
}

func (r *Reference) events() runevents.Publisher {
	if r.Events == nil {
		return runevents.NoopPublisher{}
	}
	return r.Events
}

// New constructs a Reference and registers its workflow/activity pair with
// eng. Call once per process before starting any runs.
func New(ctx context.Context, eng engine.Engine, acquirer *assetacquire.Acquirer, callLog calllog.Store, clock identity.Clock, logger telemetry.Logger) (*Reference, error) {
	if clock == nil {
		clock = identity.UTCClock{}
	}
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	r := &Reference{Engine: eng, Acquirer: acquirer, CallLog: callLog, Clock: clock, Logger: logger}

	if err := eng.RegisterActivity(ctx, engine.ActivityDefinition{Name: "acquireAssets", Handler: r.acquireAssetsActivity}); err != nil {
		return nil, fmt.Errorf("orchestrator: register acquireAssets activity: %w", err)
	}
	if err := eng.RegisterActivity(ctx, engine.ActivityDefinition{Name: "logFunctionCall", Handler: r.logFunctionCallActivity}); err != nil {
		return nil, fmt.Errorf("orchestrator: register logFunctionCall activity: %w", err)
	}
	if err := eng.RegisterActivity(ctx, engine.ActivityDefinition{Name: "releaseAssets", Handler: r.releaseAssetsActivity}); err != nil {
		return nil, fmt.Errorf("orchestrator: register releaseAssets activity: %w", err)
	}
	if err := eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{Name: WorkflowName, TaskQueue: "workcell-protocol-runs", Handler: r.workflow}); err != nil {
		return nil, fmt.Errorf("orchestrator: register workflow: %w", err)
	}
	return r, nil
}

// runInput is what ExecuteExistingProtocolRun hands the workflow.
type runInput struct {
	Run               *runstate.Record
	InputParameters   map[string]any
	InitialState      map[string]any
	AssetRequirements []assetacquire.AssetRequirement
	Calls             []plannedCall
}

// plannedCall is one function invocation a reference run announces up
// front via input parameters — a stand-in for the calls a real
// orchestrator would decide dynamically while running the protocol body.
type plannedCall struct {
	FunctionName  string
	ArgumentsJSON map[string]any
}

// ExecuteExistingProtocolRun implements executor.Orchestrator.
func (r *Reference) ExecuteExistingProtocolRun(ctx context.Context, run *runstate.Record, inputParameters, initialState map[string]any, cancelCheck executor.CancellationChecker) (*runstate.Record, error) {
	input := runInput{
		Run:               run,
		InputParameters:   inputParameters,
		InitialState:      initialState,
		AssetRequirements: requirementsFromParameters(inputParameters),
		Calls:             callsFromParameters(inputParameters),
	}

	if cancelCheck != nil {
		if cancel, err := cancelCheck(ctx, run.AccessionID); err != nil {
			return nil, err
		} else if cancel {
			run.Status = enums.ProtocolRunStatusCancelled
			return run, nil
		}
	}

	handle, err := r.Engine.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:       "protocol-run-" + run.AccessionID,
		Workflow: WorkflowName,
		Input:    input,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: start workflow: %w", err)
	}

	var outputData map[string]any
	if err := handle.Wait(ctx, &outputData); err != nil {
		return nil, err
	}

	run.OutputDataJSON = outputData
	run.Status = enums.ProtocolRunStatusCompleted
	return run, nil
}

// workflow is the deterministic workflow body: acquire declared assets,
// run each planned call through the ledger in sequence, release the
// assets, and return the aggregate output. Cancellation is polled
// between calls rather than used to interrupt one already in flight.
func (r *Reference) workflow(ctx engine.WorkflowContext, in any) (any, error) {
	input, ok := in.(runInput)
	if !ok {
		return nil, fmt.Errorf("orchestrator: unexpected workflow input type %T", in)
	}

	var acquired []*assetacquire.Result
	for _, req := range input.AssetRequirements {
		var result *assetacquire.Result
		if err := ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{Name: "acquireAssets", Input: acquireActivityInput{RunID: input.Run.AccessionID, Requirement: req}}, &result); err != nil {
			return nil, err
		}
		if result != nil {
			acquired = append(acquired, result)
		}
	}

	defer func() {
		for _, a := range acquired {
			_ = ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{Name: "releaseAssets", Input: releaseActivityInput{RunID: input.Run.AccessionID, Result: a}}, nil)
		}
	}()

	for i, call := range input.Calls {
		var sig any
		if ctx.SignalChannel(engine.SignalCancel).ReceiveAsync(&sig) {
			return map[string]any{"success": false, "cancelled": true}, nil
		}
		var callID string
		if err := ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{Name: "logFunctionCall", Input: logCallActivityInput{RunID: input.Run.AccessionID, Sequence: i, Call: call}}, &callID); err != nil {
			return nil, err
		}
	}

	return map[string]any{"success": true}, nil
}

type acquireActivityInput struct {
	RunID       string
	Requirement assetacquire.AssetRequirement
}

func (r *Reference) acquireAssetsActivity(ctx context.Context, in any) (any, error) {
	input := in.(acquireActivityInput)
	return r.Acquirer.Acquire(ctx, input.RunID, input.Requirement)
}

type releaseActivityInput struct {
	RunID  string
	Result *assetacquire.Result
}

func (r *Reference) releaseAssetsActivity(ctx context.Context, in any) (any, error) {
	input := in.(releaseActivityInput)
	if input.Result == nil {
		return nil, nil
	}
	switch input.Result.AssetKind {
	case assetacquire.AssetKindMachine:
		return nil, r.Acquirer.ReleaseMachine(ctx, input.RunID, input.Result.AssetName, input.Result.ReservationID, nil)
	case assetacquire.AssetKindResource:
		return nil, r.Acquirer.ReleaseResource(ctx, input.RunID, input.Result.AssetName, input.Result.ReservationID, nil)
	default:
		return nil, nil
	}
}

type logCallActivityInput struct {
	RunID    string
	Sequence int
	Call     plannedCall
}

func (r *Reference) logFunctionCallActivity(ctx context.Context, in any) (any, error) {
	input := in.(logCallActivityInput)
	callID, err := r.CallLog.LogCallStart(ctx, input.RunID, input.Call.FunctionName, input.Sequence, input.Call.ArgumentsJSON, "")
	if err != nil {
		return nil, err
	}
	r.publishCallEvent(ctx, input.RunID, runevents.EventFunctionCallStart, callID, input.Call.FunctionName, input.Sequence)

	if err := r.CallLog.LogCallEnd(ctx, callID, enums.FunctionCallStatusSuccess, nil, "", "", nil); err != nil {
		return nil, err
	}
	r.publishCallEvent(ctx, input.RunID, runevents.EventFunctionCallEnd, callID, input.Call.FunctionName, input.Sequence)

	return callID, nil
}

func (r *Reference) publishCallEvent(ctx context.Context, runID string, evType runevents.EventType, callID, functionName string, sequence int) {
	ev := runevents.Event{
		Type:          evType,
		ProtocolRunID: runID,
		Payload: runevents.FunctionCallPayload{
			FunctionCallLogID: callID,
			FunctionName:      functionName,
			SequenceInRun:     sequence,
		},
	}
	if err := r.events().Publish(ctx, ev); err != nil {
		r.Logger.Warn(ctx, "failed to publish function call event",
			"protocol_run_id", runID,
			"function_call_log_id", callID,
			"error", err.Error(),
		)
	}
}

func requirementsFromParameters(params map[string]any) []assetacquire.AssetRequirement {
	raw, ok := params["asset_requirements"].([]assetacquire.AssetRequirement)
	if !ok {
		return nil
	}
	return raw
}

func callsFromParameters(params map[string]any) []plannedCall {
	raw, ok := params["calls"].([]plannedCall)
	if !ok {
		return nil
	}
	return raw
}
