// Package inmem is an in-process calllog.Store, grounded on
// runtime/agent/run/inmem's mutex-guarded-map shape.
package inmem

import (
	"context"
	"sort"
	"sync"

	"github.com/autolab-io/workcellcore/calllog"
	"github.com/autolab-io/workcellcore/enums"
	"github.com/autolab-io/workcellcore/identity"
	"github.com/autolab-io/workcellcore/workcellerrors"
)

// Store implements calllog.Store in memory.
type Store struct {
	mu    sync.RWMutex
	calls map[string]*calllog.FunctionCallLog
	// sequences guards the (protocol_run_id, sequence_in_run) uniqueness
	// constraint.
	sequences map[string]string // "runID\x00seq" -> call accession id
	clock     identity.Clock
}

var _ calllog.Store = (*Store)(nil)

// New constructs an empty Store. clock defaults to identity.UTCClock{}.
func New(clock identity.Clock) *Store {
	if clock == nil {
		clock = identity.UTCClock{}
	}
	return &Store{
		calls:     make(map[string]*calllog.FunctionCallLog),
		sequences: make(map[string]string),
		clock:     clock,
	}
}

func sequenceKey(runID string, seq int) string {
	return runID + "\x00" + itoa(seq)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (s *Store) LogCallStart(ctx context.Context, runID, fnDefID string, sequenceInRun int, inputArgs map[string]any, parentCallID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sequenceKey(runID, sequenceInRun)
	if _, exists := s.sequences[key]; exists {
		return "", workcellerrors.NewConflict(workcellerrors.ConflictUniqueness, "function_call_log", "sequence_in_run", itoa(sequenceInRun), nil)
	}

	id, err := identity.NewAccessionID()
	if err != nil {
		return "", err
	}
	call := &calllog.FunctionCallLog{
		AccessionID:                  id,
		ProtocolRunID:                runID,
		SequenceInRun:                sequenceInRun,
		ParentFunctionCallLogID:      parentCallID,
		FunctionProtocolDefinitionID: fnDefID,
		StartTime:                    s.clock.Now(),
		Status:                       enums.FunctionCallStatusInProgress,
		InputArgsJSON:                inputArgs,
	}
	s.calls[id] = call
	s.sequences[key] = id
	return id, nil
}

func (s *Store) LogCallEnd(ctx context.Context, callID string, status enums.FunctionCallStatus, returnValue map[string]any, errMessage, errTraceback string, durationMS *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	call, ok := s.calls[callID]
	if !ok {
		return nil
	}
	now := s.clock.Now()
	call.EndTime = &now
	call.Status = status
	call.ReturnValueJSON = returnValue
	call.ErrorMessageText = errMessage
	call.ErrorTracebackText = errTraceback
	if durationMS != nil {
		call.CompletedDurationMS = durationMS
	} else {
		ms := now.Sub(call.StartTime).Milliseconds()
		call.CompletedDurationMS = &ms
	}
	return nil
}

func (s *Store) ReadByID(ctx context.Context, callID string) (*calllog.FunctionCallLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	call, ok := s.calls[callID]
	if !ok {
		return nil, workcellerrors.ErrNotFound
	}
	cp := *call
	return &cp, nil
}

func (s *Store) ListByRun(ctx context.Context, runID string, opts calllog.ListOptions) ([]*calllog.FunctionCallLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*calllog.FunctionCallLog
	for _, call := range s.calls {
		if call.ProtocolRunID == runID {
			cp := *call
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceInRun < out[j].SequenceInRun })

	start := opts.Offset
	if start > len(out) {
		start = len(out)
	}
	end := len(out)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return out[start:end], nil
}
