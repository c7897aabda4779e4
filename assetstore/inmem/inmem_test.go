package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autolab-io/workcellcore/assetstore"
	"github.com/autolab-io/workcellcore/enums"
	"github.com/autolab-io/workcellcore/workcellerrors"
)

func TestCreateAndReadMachine(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	m := &assetstore.Machine{
		AssetBase: assetstore.AssetBase{Name: "STAR-1", FQN: "LiquidHandlerSTAR"},
		AssetType: enums.AssetTypeMachine,
		Status:    enums.MachineStatusAvailable,
	}
	require.NoError(t, s.CreateMachine(ctx, m))
	require.NotEmpty(t, m.AccessionID)

	read, err := s.ReadMachineByID(ctx, m.AccessionID)
	require.NoError(t, err)
	require.Equal(t, "STAR-1", read.Name)

	byName, err := s.ReadMachineByName(ctx, "STAR-1")
	require.NoError(t, err)
	require.Equal(t, m.AccessionID, byName.AccessionID)
}

func TestCreateMachineNameCollision(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	require.NoError(t, s.CreateMachine(ctx, &assetstore.Machine{AssetBase: assetstore.AssetBase{Name: "dup"}}))
	err := s.CreateMachine(ctx, &assetstore.Machine{AssetBase: assetstore.AssetBase{Name: "dup"}})
	require.Error(t, err)
	var conflict *workcellerrors.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, workcellerrors.ConflictUniqueness, conflict.Kind)
}

func TestCreateMachineSerialNumberCollisionRollsBackNameReservation(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	require.NoError(t, s.CreateMachine(ctx, &assetstore.Machine{AssetBase: assetstore.AssetBase{Name: "m1"}, SerialNumber: "SN-1"}))
	err := s.CreateMachine(ctx, &assetstore.Machine{AssetBase: assetstore.AssetBase{Name: "m2"}, SerialNumber: "SN-1"})
	require.Error(t, err)

	// name "m2" must have been released so a later machine can claim it.
	require.NoError(t, s.CreateMachine(ctx, &assetstore.Machine{AssetBase: assetstore.AssetBase{Name: "m2"}}))
}

func TestDeleteMachineBlockedByResourceCounterpart(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	m := &assetstore.Machine{AssetBase: assetstore.AssetBase{Name: "m1"}}
	require.NoError(t, s.CreateMachine(ctx, m))
	r := &assetstore.Resource{AssetBase: assetstore.AssetBase{Name: "r1"}, MachineCounterpartID: m.AccessionID}
	require.NoError(t, s.CreateResource(ctx, r))

	err := s.DeleteMachine(ctx, m.AccessionID)
	require.Error(t, err)
	var conflict *workcellerrors.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, workcellerrors.ConflictFK, conflict.Kind)
}

func TestListMachinesFilterByStatus(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	require.NoError(t, s.CreateMachine(ctx, &assetstore.Machine{AssetBase: assetstore.AssetBase{Name: "a"}, Status: enums.MachineStatusAvailable}))
	require.NoError(t, s.CreateMachine(ctx, &assetstore.Machine{AssetBase: assetstore.AssetBase{Name: "b"}, Status: enums.MachineStatusInUse}))

	status := enums.MachineStatusAvailable
	out, err := s.ListMachines(ctx, assetstore.MachineFilter{Status: &status}, assetstore.ListOptions{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "a", out[0].Name)
}

func TestReadMachineByIDNotFound(t *testing.T) {
	s := New(nil)
	_, err := s.ReadMachineByID(context.Background(), "missing")
	require.ErrorIs(t, err, workcellerrors.ErrNotFound)
}
