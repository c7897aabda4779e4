package entitylink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autolab-io/workcellcore/assetstore"
	assetstoreinmem "github.com/autolab-io/workcellcore/assetstore/inmem"
	"github.com/autolab-io/workcellcore/enums"
)

type fakeDefinitions struct {
	byName map[string]*ResourceDefinitionRef
}

func (f *fakeDefinitions) ReadResourceDefinitionByName(ctx context.Context, name string) (*ResourceDefinitionRef, error) {
	ref, ok := f.byName[name]
	if !ok {
		return nil, assetstoreNotFound()
	}
	return ref, nil
}

func assetstoreNotFound() error {
	return errNotFoundForTest
}

var errNotFoundForTest = fakeErr("resource definition not found")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func TestLinkMachineToNewResourceCreatesCounterpart(t *testing.T) {
	ctx := context.Background()
	assets := assetstoreinmem.New(nil)
	require.NoError(t, assets.CreateMachine(ctx, &assetstore.Machine{AssetBase: assetstore.AssetBase{Name: "STAR-1"}, AssetType: enums.AssetTypeMachine}))
	m, err := assets.ReadMachineByName(ctx, "STAR-1")
	require.NoError(t, err)

	defs := &fakeDefinitions{byName: map[string]*ResourceDefinitionRef{"star_def": {AccessionID: "def-1"}}}
	linker := New(assets, defs, nil)

	result, err := linker.LinkMachineWithResource(ctx, LinkMachineWithResourceInput{
		MachineID: m.AccessionID, IsResource: true, ResourceDefName: "star_def",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Resource)
	require.Equal(t, "STAR-1", result.Resource.Name)
	require.Equal(t, enums.AssetTypeMachineResource, result.Resource.AssetType)
	require.Equal(t, enums.AssetTypeMachineResource, result.Machine.AssetType)

	updatedMachine, err := assets.ReadMachineByID(ctx, m.AccessionID)
	require.NoError(t, err)
	require.Equal(t, result.Resource.AccessionID, updatedMachine.ResourceCounterpartID)
}

func TestLinkMachineWithResourceRequiresDefNameWhenNoCounterpart(t *testing.T) {
	ctx := context.Background()
	assets := assetstoreinmem.New(nil)
	require.NoError(t, assets.CreateMachine(ctx, &assetstore.Machine{AssetBase: assetstore.AssetBase{Name: "STAR-1"}}))
	m, _ := assets.ReadMachineByName(ctx, "STAR-1")

	linker := New(assets, &fakeDefinitions{byName: map[string]*ResourceDefinitionRef{}}, nil)
	_, err := linker.LinkMachineWithResource(ctx, LinkMachineWithResourceInput{MachineID: m.AccessionID, IsResource: true})
	require.Error(t, err)
}

func TestUnlinkMachineRestoresBothAssetTypes(t *testing.T) {
	ctx := context.Background()
	assets := assetstoreinmem.New(nil)
	require.NoError(t, assets.CreateMachine(ctx, &assetstore.Machine{AssetBase: assetstore.AssetBase{Name: "STAR-1"}}))
	m, _ := assets.ReadMachineByName(ctx, "STAR-1")
	defs := &fakeDefinitions{byName: map[string]*ResourceDefinitionRef{"star_def": {AccessionID: "def-1"}}}
	linker := New(assets, defs, nil)

	_, err := linker.LinkMachineWithResource(ctx, LinkMachineWithResourceInput{MachineID: m.AccessionID, IsResource: true, ResourceDefName: "star_def"})
	require.NoError(t, err)

	result, err := linker.LinkMachineWithResource(ctx, LinkMachineWithResourceInput{MachineID: m.AccessionID, IsResource: false})
	require.NoError(t, err)
	require.Equal(t, enums.AssetTypeMachine, result.Machine.AssetType)
	require.Nil(t, result.Resource)
}

func TestLinkResourceWithMachineLinksExistingMachine(t *testing.T) {
	ctx := context.Background()
	assets := assetstoreinmem.New(nil)
	require.NoError(t, assets.CreateMachine(ctx, &assetstore.Machine{AssetBase: assetstore.AssetBase{Name: "STAR-1"}}))
	m, _ := assets.ReadMachineByName(ctx, "STAR-1")
	require.NoError(t, assets.CreateResource(ctx, &assetstore.Resource{AssetBase: assetstore.AssetBase{Name: "star-resource"}}))
	r, err := assets.ReadResourceByName(ctx, "star-resource")
	require.NoError(t, err)

	linker := New(assets, &fakeDefinitions{byName: map[string]*ResourceDefinitionRef{}}, nil)
	result, err := linker.LinkResourceWithMachine(ctx, LinkResourceWithMachineInput{
		ResourceID: r.AccessionID, IsMachine: true, CounterpartID: m.AccessionID,
	})
	require.NoError(t, err)
	require.Equal(t, m.AccessionID, result.Resource.MachineCounterpartID)
	require.Equal(t, enums.AssetTypeMachineResource, result.Resource.AssetType)

	updatedMachine, err := assets.ReadMachineByID(ctx, m.AccessionID)
	require.NoError(t, err)
	require.Equal(t, r.AccessionID, updatedMachine.ResourceCounterpartID)
}

func TestLinkResourceWithMachinePropagatesLookupErrorWithoutCorruptingResource(t *testing.T) {
	ctx := context.Background()
	assets := assetstoreinmem.New(nil)
	require.NoError(t, assets.CreateResource(ctx, &assetstore.Resource{AssetBase: assetstore.AssetBase{Name: "star-resource"}}))
	r, err := assets.ReadResourceByName(ctx, "star-resource")
	require.NoError(t, err)

	linker := New(assets, &fakeDefinitions{byName: map[string]*ResourceDefinitionRef{}}, nil)
	_, err = linker.LinkResourceWithMachine(ctx, LinkResourceWithMachineInput{
		ResourceID: r.AccessionID, IsMachine: true, CounterpartID: "nonexistent-machine-id",
	})
	require.Error(t, err, "a lookup failure on the machine counterpart must surface, not synthesize a stub")

	unchanged, err := assets.ReadResourceByID(ctx, r.AccessionID)
	require.NoError(t, err)
	require.Empty(t, unchanged.MachineCounterpartID, "resource must not be mutated when the counterpart lookup fails")
	require.Equal(t, "star-resource", unchanged.Name)
}

func TestSynchronizeNamesMachinePropagatesRename(t *testing.T) {
	ctx := context.Background()
	assets := assetstoreinmem.New(nil)
	require.NoError(t, assets.CreateMachine(ctx, &assetstore.Machine{AssetBase: assetstore.AssetBase{Name: "STAR-1"}}))
	m, _ := assets.ReadMachineByName(ctx, "STAR-1")
	defs := &fakeDefinitions{byName: map[string]*ResourceDefinitionRef{"star_def": {AccessionID: "def-1"}}}
	linker := New(assets, defs, nil)
	_, err := linker.LinkMachineWithResource(ctx, LinkMachineWithResourceInput{MachineID: m.AccessionID, IsResource: true, ResourceDefName: "star_def"})
	require.NoError(t, err)

	m, _ = assets.ReadMachineByID(ctx, m.AccessionID)
	m.Name = "STAR-1-renamed"
	require.NoError(t, assets.UpdateMachine(ctx, m))

	require.NoError(t, linker.SynchronizeNamesMachine(ctx, m.AccessionID))

	r, err := assets.ReadResourceByID(ctx, m.ResourceCounterpartID)
	require.NoError(t, err)
	require.Equal(t, "STAR-1-renamed", r.Name)
}
