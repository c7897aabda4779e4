package dataoutput

import (
	"context"

	"github.com/autolab-io/workcellcore/enums"
)

// Store is the C9 persistence port. Implementations: dataoutput/inmem and
// dataoutput/mongo.
type Store interface {
	CreateFunctionDataOutput(ctx context.Context, o *FunctionDataOutput) error
	ListByCall(ctx context.Context, functionCallLogID string, opts ListOptions) ([]*FunctionDataOutput, error)

	// CreateWellDataOutputsFromFlatArray materializes one WellDataOutput
	// per entry of dataArray against a rows x columns plate, row-major by
	// default. Returns *workcellerrors.DimensionMismatchError if
	// len(dataArray) != rows*columns.
	CreateWellDataOutputsFromFlatArray(ctx context.Context, functionDataOutputID, plateResourceID string, dataArray []float64, rows, columns int, columnMajor bool) ([]*WellDataOutput, error)

	// GetPlateVisualizationData returns nil, nil when no well data exists
	// for plateResourceID.
	GetPlateVisualizationData(ctx context.Context, plateResourceID string, dataType *enums.DataOutputType) (*VisualizationData, error)
}
