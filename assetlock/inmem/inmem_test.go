package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autolab-io/workcellcore/assetlock"
	assetstoreinmem "github.com/autolab-io/workcellcore/assetstore/inmem"
	"github.com/autolab-io/workcellcore/assetstore"
	"github.com/autolab-io/workcellcore/enums"
)

func TestAcquireAndReleaseMachineLock(t *testing.T) {
	ctx := context.Background()
	assets := assetstoreinmem.New(nil)
	require.NoError(t, assets.CreateMachine(ctx, &assetstore.Machine{
		AssetBase: assetstore.AssetBase{Name: "STAR-1"},
		Status:    enums.MachineStatusAvailable,
	}))
	mgr := New(assets)

	ok, err := mgr.AcquireAssetLock(ctx, assetlock.AcquireInput{
		Kind: assetlock.KindMachine, AssetName: "STAR-1", ProtocolRunID: "run-1", ReservationID: "res-1",
	})
	require.NoError(t, err)
	require.True(t, ok)

	mach, err := assets.ReadMachineByName(ctx, "STAR-1")
	require.NoError(t, err)
	require.Equal(t, enums.MachineStatusInUse, mach.Status)
	require.Equal(t, "res-1", mach.LockReservationID)

	// A second run cannot acquire while held.
	ok, err = mgr.AcquireAssetLock(ctx, assetlock.AcquireInput{
		Kind: assetlock.KindMachine, AssetName: "STAR-1", ProtocolRunID: "run-2", ReservationID: "res-2",
	})
	require.NoError(t, err)
	require.False(t, ok)

	released, err := mgr.ReleaseAssetLock(ctx, assetlock.KindMachine, "STAR-1", "res-1", "run-1")
	require.NoError(t, err)
	require.True(t, released)

	mach, err = assets.ReadMachineByName(ctx, "STAR-1")
	require.NoError(t, err)
	require.Empty(t, mach.LockReservationID)
}

func TestReleaseAssetLockMismatchIsIdempotentNotError(t *testing.T) {
	ctx := context.Background()
	assets := assetstoreinmem.New(nil)
	require.NoError(t, assets.CreateMachine(ctx, &assetstore.Machine{
		AssetBase: assetstore.AssetBase{Name: "STAR-1"}, Status: enums.MachineStatusAvailable,
	}))
	mgr := New(assets)
	_, err := mgr.AcquireAssetLock(ctx, assetlock.AcquireInput{Kind: assetlock.KindMachine, AssetName: "STAR-1", ProtocolRunID: "run-1", ReservationID: "res-1"})
	require.NoError(t, err)

	released, err := mgr.ReleaseAssetLock(ctx, assetlock.KindMachine, "STAR-1", "wrong-reservation", "run-1")
	require.NoError(t, err)
	require.False(t, released)
}

func TestReleaseAllProtocolLocksRestoresStatus(t *testing.T) {
	ctx := context.Background()
	assets := assetstoreinmem.New(nil)
	require.NoError(t, assets.CreateMachine(ctx, &assetstore.Machine{AssetBase: assetstore.AssetBase{Name: "STAR-1"}, Status: enums.MachineStatusAvailable}))
	require.NoError(t, assets.CreateResource(ctx, &assetstore.Resource{AssetBase: assetstore.AssetBase{Name: "plate-1"}, Status: enums.ResourceStatusAvailableInStorage}))
	mgr := New(assets)

	_, err := mgr.AcquireAssetLock(ctx, assetlock.AcquireInput{Kind: assetlock.KindMachine, AssetName: "STAR-1", ProtocolRunID: "run-1", ReservationID: "res-m"})
	require.NoError(t, err)
	_, err = mgr.AcquireAssetLock(ctx, assetlock.AcquireInput{Kind: assetlock.KindResource, AssetName: "plate-1", ProtocolRunID: "run-1", ReservationID: "res-r"})
	require.NoError(t, err)

	count, err := mgr.ReleaseAllProtocolLocks(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	mach, _ := assets.ReadMachineByName(ctx, "STAR-1")
	require.Equal(t, enums.MachineStatusOffline, mach.Status)
	require.Empty(t, mach.CurrentProtocolRunID)

	res, _ := assets.ReadResourceByName(ctx, "plate-1")
	require.Equal(t, enums.ResourceStatusAvailableInStorage, res.Status)
	require.Empty(t, res.CurrentProtocolRunID)
}

func TestCheckAssetAvailabilityUnknownAssetReturnsNil(t *testing.T) {
	ctx := context.Background()
	mgr := New(assetstoreinmem.New(nil))
	avail, err := mgr.CheckAssetAvailability(ctx, assetlock.KindMachine, "does-not-exist")
	require.NoError(t, err)
	require.Nil(t, avail)
}
