// Package inmem is an in-process runstate.Store.
package inmem

import (
	"context"
	"sync"

	"github.com/autolab-io/workcellcore/enums"
	"github.com/autolab-io/workcellcore/identity"
	"github.com/autolab-io/workcellcore/runstate"
	"github.com/autolab-io/workcellcore/workcellerrors"
)

// Store implements runstate.Store in memory.
type Store struct {
	mu    sync.Mutex
	runs  map[string]*runstate.Record
	clock identity.Clock
}

var _ runstate.Store = (*Store)(nil)

// New constructs an empty Store. clock defaults to identity.UTCClock{}.
func New(clock identity.Clock) *Store {
	if clock == nil {
		clock = identity.UTCClock{}
	}
	return &Store{
		runs:  make(map[string]*runstate.Record),
		clock: clock,
	}
}

func (s *Store) CreateRun(ctx context.Context, in runstate.CreateInput) (*runstate.Record, error) {
	id, err := identity.NewAccessionID()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	r := &runstate.Record{
		AccessionID:                  id,
		Name:                         in.Name,
		TopLevelProtocolDefinitionID: in.TopLevelProtocolDefinitionID,
		Status:                       enums.ProtocolRunStatusQueued,
		InputParametersJSON:          in.InputParametersJSON,
		InitialStateJSON:             in.InitialStateJSON,
		CreatedAt:                    now,
		UpdatedAt:                    now,
	}
	s.mu.Lock()
	s.runs[id] = r
	s.mu.Unlock()
	cp := *r
	return &cp, nil
}

func (s *Store) ReadRunByID(ctx context.Context, runID string) (*runstate.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, workcellerrors.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) UpdateRunStatus(ctx context.Context, runID string, newStatus enums.ProtocolRunStatus, outputData, finalState, errorInfo map[string]any) (*runstate.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[runID]
	if !ok {
		return nil, nil
	}
	if runstate.IsTerminal(r.Status) {
		cp := *r
		return &cp, nil
	}
	if !runstate.CanTransition(r.Status, newStatus) {
		return nil, workcellerrors.NewInvalidTransition("protocol_run", string(r.Status), string(newStatus))
	}

	now := s.clock.Now()
	if newStatus == enums.ProtocolRunStatusRunning && r.StartTime == nil {
		t := now
		r.StartTime = &t
	}
	if errorInfo != nil {
		if r.OutputDataJSON == nil {
			r.OutputDataJSON = map[string]any{}
		}
		r.OutputDataJSON["error"] = errorInfo
	}
	if outputData != nil {
		r.OutputDataJSON = mergeMaps(r.OutputDataJSON, outputData)
	}
	if finalState != nil {
		r.FinalStateJSON = mergeMaps(r.FinalStateJSON, finalState)
	}
	r.Status = newStatus
	if runstate.IsTerminal(newStatus) {
		t := now
		r.EndTime = &t
		if r.StartTime != nil {
			d := t.Sub(*r.StartTime).Milliseconds()
			r.CompletedDurationMS = &d
		}
	}
	r.UpdatedAt = now

	cp := *r
	return &cp, nil
}

func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
