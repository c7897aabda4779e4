package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autolab-io/workcellcore/dataoutput"
	"github.com/autolab-io/workcellcore/enums"
)

func TestCreateWellDataOutputsFromFlatArray(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	wells, err := s.CreateWellDataOutputsFromFlatArray(ctx, "fdo-1", "plate-1", []float64{1, 2, 3, 4, 5, 6}, 2, 3, false)
	require.NoError(t, err)
	require.Len(t, wells, 6)
	require.Equal(t, "A1", wells[0].WellName)
	require.Equal(t, "A3", wells[2].WellName)
	require.Equal(t, "B1", wells[3].WellName)
}

func TestCreateWellDataOutputsFromFlatArrayDimensionMismatch(t *testing.T) {
	s := New(nil)
	_, err := s.CreateWellDataOutputsFromFlatArray(context.Background(), "fdo-1", "plate-1", []float64{1, 2, 3}, 2, 2, false)
	require.Error(t, err)
}

func TestGetPlateVisualizationDataComputesRange(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	_, err := s.CreateWellDataOutputsFromFlatArray(ctx, "fdo-1", "plate-1", []float64{3, 1, 4, 1, 5, 9}, 2, 3, false)
	require.NoError(t, err)

	viz, err := s.GetPlateVisualizationData(ctx, "plate-1", nil)
	require.NoError(t, err)
	require.NotNil(t, viz)
	require.Equal(t, 1.0, viz.DataRangeMin)
	require.Equal(t, 9.0, viz.DataRangeMax)
	require.Len(t, viz.WellData, 6)
}

func TestGetPlateVisualizationDataReturnsNilWhenEmpty(t *testing.T) {
	s := New(nil)
	viz, err := s.GetPlateVisualizationData(context.Background(), "no-such-plate", nil)
	require.NoError(t, err)
	require.Nil(t, viz)
}

func TestGetPlateVisualizationDataFiltersByDataType(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	numeric := &dataoutput.FunctionDataOutput{FunctionCallLogID: "call-1", DataType: enums.DataOutputTypeNumeric}
	require.NoError(t, s.CreateFunctionDataOutput(ctx, numeric))
	_, err := s.CreateWellDataOutputsFromFlatArray(ctx, numeric.AccessionID, "plate-1", []float64{1, 2}, 1, 2, false)
	require.NoError(t, err)

	text := enums.DataOutputTypeText
	viz, err := s.GetPlateVisualizationData(ctx, "plate-1", &text)
	require.NoError(t, err)
	require.Nil(t, viz, "no well data was tagged with the text data type")
}
