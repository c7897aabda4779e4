// Package calllog implements the function call ledger (C8): a per-run,
// tree-structured, append-mostly record of every function invocation,
// shaped after the run-log event store in
// features/runlog/mongo/clients/mongo/client.go.
package calllog

import (
	"context"
	"time"

	"github.com/autolab-io/workcellcore/enums"
)

// FunctionCallLog is one row in the ledger.
type FunctionCallLog struct {
	AccessionID                string
	ProtocolRunID              string
	SequenceInRun              int
	ParentFunctionCallLogID    string
	FunctionProtocolDefinitionID string

	StartTime time.Time
	EndTime   *time.Time

	Status enums.FunctionCallStatus

	InputArgsJSON        map[string]any
	ReturnValueJSON      map[string]any
	ErrorMessageText     string
	ErrorTracebackText   string
	CompletedDurationMS  *int64
}

// ListOptions paginates ListByRun.
type ListOptions struct {
	Limit  int
	Offset int
}

// Store is the C8 persistence port. Implementations: calllog/inmem and
// calllog/mongo. The ledger trusts the caller's sequence_in_run ordering
// but both implementations additionally enforce a unique
// (protocol_run_id, sequence_in_run) constraint, surfaced as
// *workcellerrors.ConflictError.
type Store interface {
	// LogCallStart inserts a new IN_PROGRESS row and returns its
	// accession_id.
	LogCallStart(ctx context.Context, runID, fnDefID string, sequenceInRun int, inputArgs map[string]any, parentCallID string) (string, error)

	// LogCallEnd sets end_time/status and either the return value or the
	// error fields. A missing callID returns (nil) with no error — it
	// never raises.
	LogCallEnd(ctx context.Context, callID string, status enums.FunctionCallStatus, returnValue map[string]any, errMessage, errTraceback string, durationMS *int64) error

	ReadByID(ctx context.Context, callID string) (*FunctionCallLog, error)
	ListByRun(ctx context.Context, runID string, opts ListOptions) ([]*FunctionCallLog, error)
}
