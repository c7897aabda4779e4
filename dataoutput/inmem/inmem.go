// Package inmem is an in-process dataoutput.Store.
package inmem

import (
	"context"
	"sync"

	"github.com/autolab-io/workcellcore/dataoutput"
	"github.com/autolab-io/workcellcore/enums"
	"github.com/autolab-io/workcellcore/identity"
	"github.com/autolab-io/workcellcore/workcellerrors"
)

// Store implements dataoutput.Store in memory.
type Store struct {
	mu       sync.RWMutex
	outputs  map[string]*dataoutput.FunctionDataOutput
	wells    map[string][]*dataoutput.WellDataOutput // keyed by PlateResourceID
	clock    identity.Clock
}

var _ dataoutput.Store = (*Store)(nil)

// New constructs an empty Store. clock defaults to identity.UTCClock{}.
func New(clock identity.Clock) *Store {
	if clock == nil {
		clock = identity.UTCClock{}
	}
	return &Store{
		outputs: make(map[string]*dataoutput.FunctionDataOutput),
		wells:   make(map[string][]*dataoutput.WellDataOutput),
		clock:   clock,
	}
}

func (s *Store) CreateFunctionDataOutput(ctx context.Context, o *dataoutput.FunctionDataOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.AccessionID == "" {
		id, err := identity.NewAccessionID()
		if err != nil {
			return err
		}
		o.AccessionID = id
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = s.clock.Now()
	}
	s.outputs[o.AccessionID] = o
	return nil
}

func (s *Store) ListByCall(ctx context.Context, functionCallLogID string, opts dataoutput.ListOptions) ([]*dataoutput.FunctionDataOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*dataoutput.FunctionDataOutput
	for _, o := range s.outputs {
		if o.FunctionCallLogID == functionCallLogID {
			cp := *o
			out = append(out, &cp)
		}
	}
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

func (s *Store) CreateWellDataOutputsFromFlatArray(ctx context.Context, functionDataOutputID, plateResourceID string, dataArray []float64, rows, columns int, columnMajor bool) ([]*dataoutput.WellDataOutput, error) {
	if len(dataArray) != rows*columns {
		return nil, workcellerrors.NewDimensionMismatch(rows*columns, len(dataArray))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*dataoutput.WellDataOutput, 0, len(dataArray))
	for idx, v := range dataArray {
		row, col := dataoutput.WellCoordinates(idx, rows, columns, columnMajor)
		id, err := identity.NewAccessionID()
		if err != nil {
			return nil, err
		}
		well := &dataoutput.WellDataOutput{
			AccessionID:          id,
			FunctionDataOutputID: functionDataOutputID,
			PlateResourceID:      plateResourceID,
			WellName:             dataoutput.WellName(row, col),
			WellRow:              row,
			WellColumn:           col,
			WellIndex:            idx,
			DataValue:            v,
		}
		out = append(out, well)
	}
	s.wells[plateResourceID] = append(s.wells[plateResourceID], out...)
	return out, nil
}

func (s *Store) GetPlateVisualizationData(ctx context.Context, plateResourceID string, dataType *enums.DataOutputType) (*dataoutput.VisualizationData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wells := s.wells[plateResourceID]
	if len(wells) == 0 {
		return nil, nil
	}

	var filtered []*dataoutput.WellDataOutput
	if dataType != nil {
		parentTypes := make(map[string]enums.DataOutputType)
		for _, o := range s.outputs {
			parentTypes[o.AccessionID] = o.DataType
		}
		for _, w := range wells {
			if parentTypes[w.FunctionDataOutputID] == *dataType {
				filtered = append(filtered, w)
			}
		}
	} else {
		filtered = wells
	}
	if len(filtered) == 0 {
		return nil, nil
	}

	minV, maxV := filtered[0].DataValue, filtered[0].DataValue
	for _, w := range filtered {
		if w.DataValue < minV {
			minV = w.DataValue
		}
		if w.DataValue > maxV {
			maxV = w.DataValue
		}
	}
	return &dataoutput.VisualizationData{
		PlateResourceID: plateResourceID,
		WellData:        filtered,
		DataRangeMin:    minV,
		DataRangeMax:    maxV,
	}, nil
}
