package assetacquire

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autolab-io/workcellcore/assetstore"
	assetstoreinmem "github.com/autolab-io/workcellcore/assetstore/inmem"
	assetlockinmem "github.com/autolab-io/workcellcore/assetlock/inmem"
	"github.com/autolab-io/workcellcore/definitioncatalog"
	definitioncataloginmem "github.com/autolab-io/workcellcore/definitioncatalog/inmem"
	"github.com/autolab-io/workcellcore/enums"
	"github.com/autolab-io/workcellcore/workcellerrors"
	"github.com/autolab-io/workcellcore/workcellruntime"
	"github.com/autolab-io/workcellcore/workcellruntime/simulated"
)

func newTestAcquirer(t *testing.T) (*Acquirer, assetstore.Store, definitioncatalog.Store) {
	t.Helper()
	assets := assetstoreinmem.New(nil)
	defs := definitioncataloginmem.New(nil)
	locks := assetlockinmem.New(assets)
	registry := workcellruntime.NewRegistry()
	registry.Register("hamilton.star", simulated.Construct)
	registry.Register("corning.plate_96", simulated.Construct)
	runtime := workcellruntime.New(registry)
	return New(assets, defs, locks, runtime, nil, nil), assets, defs
}

func TestAcquireMachineByFQNWhenNoDefinitionExists(t *testing.T) {
	ctx := context.Background()
	a, assets, _ := newTestAcquirer(t)
	require.NoError(t, assets.CreateMachine(ctx, &assetstore.Machine{
		AssetBase: assetstore.AssetBase{Name: "STAR-1", FQN: "hamilton.star"}, Status: enums.MachineStatusAvailable,
	}))

	result, err := a.Acquire(ctx, "run-1", AssetRequirement{NameInProtocol: "star", FQN: "hamilton.star"})
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, AssetKindMachine, result.AssetKind)
	require.NotEmpty(t, result.ReservationID)

	mach, err := assets.ReadMachineByName(ctx, "STAR-1")
	require.NoError(t, err)
	require.Equal(t, enums.MachineStatusInUse, mach.Status)
	require.Equal(t, "run-1", mach.CurrentProtocolRunID)
}

func TestAcquireMachineNoAvailableCandidateIsAssetAcquisitionError(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestAcquirer(t)

	_, err := a.Acquire(ctx, "run-1", AssetRequirement{NameInProtocol: "star", FQN: "hamilton.star"})
	require.Error(t, err)
	var acqErr *workcellerrors.AssetAcquisitionError
	require.ErrorAs(t, err, &acqErr)
}

func TestAcquireOptionalMachineMissingReturnsNilNotError(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestAcquirer(t)

	result, err := a.Acquire(ctx, "run-1", AssetRequirement{NameInProtocol: "star", FQN: "hamilton.star", Optional: true})
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestAcquireResourceByDefinitionFQN(t *testing.T) {
	ctx := context.Background()
	a, assets, defs := newTestAcquirer(t)
	require.NoError(t, defs.CreateResourceDefinition(ctx, &definitioncatalog.ResourceDefinition{FQN: "corning.plate_96", Name: "Corning 96-well plate"}))
	def, err := defs.ReadResourceDefinitionByFQN(ctx, "corning.plate_96")
	require.NoError(t, err)
	require.NoError(t, assets.CreateResource(ctx, &assetstore.Resource{
		AssetBase: assetstore.AssetBase{Name: "plate-1", FQN: "corning.plate_96"},
		ResourceDefinitionID: def.AccessionID, Status: enums.ResourceStatusAvailableInStorage,
	}))

	result, err := a.Acquire(ctx, "run-1", AssetRequirement{NameInProtocol: "plate", FQN: "corning.plate_96"})
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, AssetKindResource, result.AssetKind)

	res, err := assets.ReadResourceByName(ctx, "plate-1")
	require.NoError(t, err)
	require.Equal(t, enums.ResourceStatusInUse, res.Status)
}

func TestAcquireDeckFQNWithNoDefinitionFails(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestAcquirer(t)

	_, err := a.Acquire(ctx, "run-1", AssetRequirement{NameInProtocol: "deck", FQN: "hamilton.star_deck"})
	require.Error(t, err)
	var acqErr *workcellerrors.AssetAcquisitionError
	require.ErrorAs(t, err, &acqErr)
}

func TestAcquireMachinePrefersCurrentRunHolder(t *testing.T) {
	ctx := context.Background()
	a, assets, _ := newTestAcquirer(t)
	require.NoError(t, assets.CreateMachine(ctx, &assetstore.Machine{
		AssetBase: assetstore.AssetBase{Name: "STAR-1", FQN: "hamilton.star"},
		Status: enums.MachineStatusInUse, CurrentProtocolRunID: "run-1",
	}))
	require.NoError(t, assets.CreateMachine(ctx, &assetstore.Machine{
		AssetBase: assetstore.AssetBase{Name: "STAR-2", FQN: "hamilton.star"}, Status: enums.MachineStatusAvailable,
	}))

	result, err := a.Acquire(ctx, "run-1", AssetRequirement{NameInProtocol: "star", FQN: "hamilton.star"})
	require.NoError(t, err)
	require.Equal(t, "STAR-1", result.AssetName)
}

func TestReleaseMachineRestoresOfflineAndClearsLock(t *testing.T) {
	ctx := context.Background()
	a, assets, _ := newTestAcquirer(t)
	require.NoError(t, assets.CreateMachine(ctx, &assetstore.Machine{
		AssetBase: assetstore.AssetBase{Name: "STAR-1", FQN: "hamilton.star"}, Status: enums.MachineStatusAvailable,
	}))
	result, err := a.Acquire(ctx, "run-1", AssetRequirement{NameInProtocol: "star", FQN: "hamilton.star"})
	require.NoError(t, err)

	require.NoError(t, a.ReleaseMachine(ctx, "run-1", result.AssetName, result.ReservationID, nil))

	mach, err := assets.ReadMachineByName(ctx, "STAR-1")
	require.NoError(t, err)
	require.Equal(t, enums.MachineStatusOffline, mach.Status)
	require.Empty(t, mach.CurrentProtocolRunID)
	require.Empty(t, mach.LockReservationID)
}

func TestReleaseResourceDefaultsToAvailableInStorage(t *testing.T) {
	ctx := context.Background()
	a, assets, defs := newTestAcquirer(t)
	require.NoError(t, defs.CreateResourceDefinition(ctx, &definitioncatalog.ResourceDefinition{FQN: "corning.plate_96", Name: "plate"}))
	def, _ := defs.ReadResourceDefinitionByFQN(ctx, "corning.plate_96")
	require.NoError(t, assets.CreateResource(ctx, &assetstore.Resource{
		AssetBase: assetstore.AssetBase{Name: "plate-1", FQN: "corning.plate_96"},
		ResourceDefinitionID: def.AccessionID, Status: enums.ResourceStatusAvailableInStorage,
	}))
	result, err := a.Acquire(ctx, "run-1", AssetRequirement{NameInProtocol: "plate", FQN: "corning.plate_96"})
	require.NoError(t, err)

	require.NoError(t, a.ReleaseResource(ctx, "run-1", result.AssetName, result.ReservationID, nil))

	res, err := assets.ReadResourceByName(ctx, "plate-1")
	require.NoError(t, err)
	require.Equal(t, enums.ResourceStatusAvailableInStorage, res.Status)
	require.Empty(t, res.CurrentProtocolRunID)
}
