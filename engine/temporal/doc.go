// Package temporal implements the engine.Engine adapter backed by Temporal
// (https://temporal.io). It satisfies the generic engine.Engine interface,
// letting the task executor orchestrate the protocol-run workflow without
// importing the Temporal SDK directly.
//
// # Why Temporal?
//
// A protocol run can span many function calls, wait on asset availability,
// and run for hours. Temporal gives the run durable execution: state survives
// process restarts and crashes, and the workflow replays from event history
// to reach the same point deterministically.
//
// # Constructing an Engine
//
//	eng, err := temporal.New(temporal.Options{
//	    ClientOptions: &client.Options{
//	        HostPort:  "temporal:7233",
//	        Namespace: "default",
//	    },
//	    WorkerOptions: temporal.WorkerOptions{
//	        TaskQueue: "workcell.protocol-runs",
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
// # Worker vs Client Mode
//
//   - Worker mode: polls the task queue and executes the protocol-run
//     workflow and its function-call activities locally.
//   - Client mode: starts and signals runs (pause/resume/cancel) without
//     local execution. Used by API-facing processes that never register
//     a workflow handler.
//
// Both modes share the same Options; client-only processes simply never call
// RegisterWorkflow/RegisterActivity.
//
// # Workflow Determinism
//
// The workflow handler must be deterministic: given the same inputs and
// event history it must produce the same execution sequence. The
// WorkflowContext this package provides exposes only deterministic
// operations — Now() returns workflow time, ExecuteActivity/Async schedule
// activities, SignalChannel returns a replay-safe receiver for pause,
// resume, and cancel signals. Side effects (Mongo writes, Redis lookups,
// hardware calls) belong in activities, not in the workflow handler itself.
//
// # OpenTelemetry Integration
//
// The engine installs OTEL interceptors on the Temporal client and workers
// automatically, propagating trace context across workflow/activity
// boundaries.
package temporal
