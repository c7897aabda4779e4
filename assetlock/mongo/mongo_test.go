package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autolab-io/workcellcore/assetlock"
	"github.com/autolab-io/workcellcore/assetstore"
	assetstoremongo "github.com/autolab-io/workcellcore/assetstore/mongo"
	"github.com/autolab-io/workcellcore/enums"
	"github.com/autolab-io/workcellcore/mongotest"
)

func newTestManager(t *testing.T) (*Manager, *assetstoremongo.Store) {
	t.Helper()
	ctx := context.Background()
	client := mongotest.Client(t)
	database := mongotest.Database(t)

	assets, err := assetstoremongo.New(ctx, assetstoremongo.Options{Client: client, Database: database})
	require.NoError(t, err)

	locks, err := New(Options{Client: client, Database: database})
	require.NoError(t, err)
	return locks, assets
}

func TestMongoAcquireAndReleaseAssetLock(t *testing.T) {
	ctx := context.Background()
	locks, assets := newTestManager(t)

	require.NoError(t, assets.CreateMachine(ctx, &assetstore.Machine{
		AssetBase: assetstore.AssetBase{Name: "STAR-1", FQN: "hamilton.star"},
		Status:    enums.MachineStatusAvailable,
	}))

	acquired, err := locks.AcquireAssetLock(ctx, assetlock.AcquireInput{
		Kind: assetlock.KindMachine, AssetName: "STAR-1", ProtocolRunID: "run-1", ReservationID: "res-1",
	})
	require.NoError(t, err)
	require.True(t, acquired)

	mach, err := assets.ReadMachineByName(ctx, "STAR-1")
	require.NoError(t, err)
	require.Equal(t, enums.MachineStatusInUse, mach.Status)

	secondAttempt, err := locks.AcquireAssetLock(ctx, assetlock.AcquireInput{
		Kind: assetlock.KindMachine, AssetName: "STAR-1", ProtocolRunID: "run-2", ReservationID: "res-2",
	})
	require.NoError(t, err)
	require.False(t, secondAttempt, "a machine already in use cannot be acquired again")

	released, err := locks.ReleaseAssetLock(ctx, assetlock.KindMachine, "STAR-1", "res-1", "run-1")
	require.NoError(t, err)
	require.True(t, released)

	mach, err = assets.ReadMachineByName(ctx, "STAR-1")
	require.NoError(t, err)
	require.Equal(t, enums.MachineStatusInUse, mach.Status)
}

func TestMongoCheckAssetAvailability(t *testing.T) {
	ctx := context.Background()
	locks, assets := newTestManager(t)

	require.NoError(t, assets.CreateMachine(ctx, &assetstore.Machine{
		AssetBase: assetstore.AssetBase{Name: "STAR-2", FQN: "hamilton.star"},
		Status:    enums.MachineStatusAvailable,
	}))

	av, err := locks.CheckAssetAvailability(ctx, assetlock.KindMachine, "STAR-2")
	require.NoError(t, err)
	require.False(t, av.Locked)
	require.Equal(t, string(enums.MachineStatusAvailable), av.Status)
}
