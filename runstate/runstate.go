// Package runstate implements the protocol run state machine (C10): the
// one mutator, update_run_status, and the transition graph it enforces.
// Grounded on runtime/agent/run's Record/Store shape, generalized from
// agent-run lifecycle states to a protocol run's lifecycle.
package runstate

import (
	"context"
	"time"

	"github.com/autolab-io/workcellcore/enums"
)

// Record is the durable protocol run row.
type Record struct {
	AccessionID                  string
	Name                         string
	TopLevelProtocolDefinitionID string
	Status                       enums.ProtocolRunStatus

	StartTime           *time.Time
	EndTime             *time.Time
	CompletedDurationMS *int64

	InputParametersJSON map[string]any
	InitialStateJSON    map[string]any
	OutputDataJSON      map[string]any
	FinalStateJSON      map[string]any

	WorkerTaskID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ErrorInfo is the shape OutputDataJSON takes on a transition into FAILED.
type ErrorInfo struct {
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
	Traceback    string `json:"traceback"`
}

// transitions is the directed graph a protocol run's status may move
// through. Any edge not listed here is rejected with
// *workcellerrors.InvalidTransitionError.
var transitions = map[enums.ProtocolRunStatus]map[enums.ProtocolRunStatus]bool{
	enums.ProtocolRunStatusQueued: {
		enums.ProtocolRunStatusPending: true,
	},
	enums.ProtocolRunStatusPending: {
		enums.ProtocolRunStatusPreparing: true,
		enums.ProtocolRunStatusRunning:   true,
	},
	enums.ProtocolRunStatusPreparing: {
		enums.ProtocolRunStatusRunning: true,
	},
	enums.ProtocolRunStatusRunning: {
		enums.ProtocolRunStatusCompleted:            true,
		enums.ProtocolRunStatusFailed:                true,
		enums.ProtocolRunStatusCanceling:             true,
		enums.ProtocolRunStatusPausing:               true,
		enums.ProtocolRunStatusRequiresIntervention:  true,
	},
	enums.ProtocolRunStatusCanceling: {
		enums.ProtocolRunStatusCancelled: true,
	},
	enums.ProtocolRunStatusPausing: {
		enums.ProtocolRunStatusPaused: true,
	},
	enums.ProtocolRunStatusPaused: {
		enums.ProtocolRunStatusResuming: true,
	},
	enums.ProtocolRunStatusResuming: {
		enums.ProtocolRunStatusRunning: true,
	},
	enums.ProtocolRunStatusRequiresIntervention: {
		enums.ProtocolRunStatusIntervening: true,
	},
	enums.ProtocolRunStatusIntervening: {
		enums.ProtocolRunStatusRunning: true,
	},
}

// CanTransition reports whether from -> to is a permitted edge.
func CanTransition(from, to enums.ProtocolRunStatus) bool {
	if from == to {
		return false
	}
	return transitions[from][to]
}

// IsTerminal reports whether status has no outgoing edges; terminal
// statuses are absorbing.
func IsTerminal(status enums.ProtocolRunStatus) bool {
	return enums.TerminalRunStatuses[status]
}

// CreateInput seeds a new run at ProtocolRunStatusQueued.
type CreateInput struct {
	Name                         string
	TopLevelProtocolDefinitionID string
	InputParametersJSON          map[string]any
	InitialStateJSON             map[string]any
}

// Store is the C10 persistence port. update_run_status is the only
// mutator a caller should use once a run exists: it enforces the
// transition graph and the start_time/end_time/completed_duration_ms
// side effects, and never raises for a missing run_id.
// Implementations: runstate/inmem and runstate/mongo.
type Store interface {
	CreateRun(ctx context.Context, in CreateInput) (*Record, error)
	ReadRunByID(ctx context.Context, runID string) (*Record, error)

	// UpdateRunStatus applies the transition from the run's current
	// status to newStatus. Returns (nil, nil) if runID does not exist.
	// Returns *workcellerrors.InvalidTransitionError if the edge is not
	// permitted by the graph, EXCEPT that a transition from a terminal
	// status back to itself or onward is always a silent no-op
	// returning the existing record (absorbing state), not an error.
	//
	// On first entry into ProtocolRunStatusRunning, StartTime is set if
	// still nil. On entry into any terminal status, EndTime and
	// CompletedDurationMS are computed, and outputData/finalState (when
	// non-nil) are persisted onto OutputDataJSON/FinalStateJSON.
	// errorInfo, when non-nil, is merged into OutputDataJSON under the
	// "error" key ahead of the FAILED transition.
	UpdateRunStatus(ctx context.Context, runID string, newStatus enums.ProtocolRunStatus, outputData, finalState, errorInfo map[string]any) (*Record, error)
}
