// Package dataoutput implements the data output store (C9): per-call typed
// measurements, spatial context, and plate/well materialization from flat
// arrays.
package dataoutput

import (
	"time"

	"github.com/autolab-io/workcellcore/enums"
)

// FunctionDataOutput is one measurement emitted during a function call.
type FunctionDataOutput struct {
	AccessionID     string
	ProtocolRunID   string
	FunctionCallLogID string
	DataType        enums.DataOutputType
	DataKey         string
	SpatialContext  enums.SpatialContext
	ResourceID      string

	NumericValue *float64
	TextValue    string
	BytesValue   []byte

	Timestamp   time.Time
	MetadataJSON map[string]any
}

// WellDataOutput mirrors a WELL_SPECIFIC FunctionDataOutput into a
// per-well row for plate visualization.
type WellDataOutput struct {
	AccessionID          string
	FunctionDataOutputID string
	PlateResourceID      string
	WellName             string
	WellRow              int
	WellColumn           int
	WellIndex            int
	DataValue            float64
	MetadataJSON         map[string]any
}

// VisualizationData is the response shape of GetPlateVisualizationData.
type VisualizationData struct {
	PlateResourceID string
	WellData        []*WellDataOutput
	DataRangeMin    float64
	DataRangeMax    float64
}

// ListOptions paginates a list operation.
type ListOptions struct {
	Limit  int
	Offset int
}
