package workcellruntime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autolab-io/workcellcore/assetstore"
	"github.com/autolab-io/workcellcore/definitioncatalog"
	"github.com/autolab-io/workcellcore/enums"
	"github.com/autolab-io/workcellcore/workcellerrors"
)

type fakeInstance struct {
	fqn     string
	backend enums.BackendType
}

func (f *fakeInstance) FQN() string               { return f.fqn }
func (f *fakeInstance) Backend() enums.BackendType { return f.backend }

func fakeConstruct(ctx context.Context, fqn string, backend enums.BackendType, seed map[string]any) (Instance, error) {
	return &fakeInstance{fqn: fqn, backend: backend}, nil
}

func TestInitializeMachineUsesRegisteredConstructor(t *testing.T) {
	registry := NewRegistry()
	registry.Register("hamilton.star", fakeConstruct)
	rt := New(registry)

	m := &assetstore.Machine{AssetBase: assetstore.AssetBase{FQN: "hamilton.star"}}
	inst, err := rt.InitializeMachine(context.Background(), m, nil)
	require.NoError(t, err)
	require.Equal(t, "hamilton.star", inst.FQN())
	require.Equal(t, enums.BackendTypeSimulator, inst.Backend())
}

func TestInitializeMachineUnregisteredFQNIsRuntimeInitError(t *testing.T) {
	registry := NewRegistry()
	rt := New(registry)

	_, err := rt.InitializeMachine(context.Background(), &assetstore.Machine{AssetBase: assetstore.AssetBase{FQN: "unbound.fqn"}}, nil)
	require.Error(t, err)
	var initErr *workcellerrors.RuntimeInitError
	require.ErrorAs(t, err, &initErr)
}

func TestInitializeMachineAutoAssignsDeckWhenDefinitionHasDeck(t *testing.T) {
	registry := NewRegistry()
	registry.Register("hamilton.star", fakeConstruct)
	rt := New(registry)

	m := &assetstore.Machine{AssetBase: assetstore.AssetBase{FQN: "hamilton.star"}}
	def := &definitioncatalog.MachineDefinition{HasDeck: true, DeckDefinitionID: "deck-def-1"}
	_, err := rt.InitializeMachine(context.Background(), m, def)
	require.NoError(t, err)

	deck, ok := m.PLRState["deck"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "deck-def-1", deck["deck_definition_id"])
	require.Equal(t, true, deck["auto_assigned"])
}

func TestInitializeMachineDoesNotOverwriteExistingDeckState(t *testing.T) {
	registry := NewRegistry()
	registry.Register("hamilton.star", fakeConstruct)
	rt := New(registry)

	m := &assetstore.Machine{AssetBase: assetstore.AssetBase{FQN: "hamilton.star", PLRState: map[string]any{"deck": map[string]any{"deck_definition_id": "existing"}}}}
	def := &definitioncatalog.MachineDefinition{HasDeck: true, DeckDefinitionID: "deck-def-1"}
	_, err := rt.InitializeMachine(context.Background(), m, def)
	require.NoError(t, err)

	deck := m.PLRState["deck"].(map[string]any)
	require.Equal(t, "existing", deck["deck_definition_id"])
}

func TestRegistryBackendForHonorsSimulationOverride(t *testing.T) {
	registry := NewRegistry()
	registry.DefaultBackend = enums.BackendTypeRealHardware

	real := false
	require.Equal(t, enums.BackendTypeRealHardware, registry.backendFor(nil))
	require.Equal(t, enums.BackendTypeRealHardware, registry.backendFor(&real))

	sim := true
	require.Equal(t, enums.BackendTypeSimulator, registry.backendFor(&sim))
}

func TestRegisterOverwritesPriorBinding(t *testing.T) {
	registry := NewRegistry()
	registry.Register("hamilton.star", fakeConstruct)
	calledSecond := false
	registry.Register("hamilton.star", func(ctx context.Context, fqn string, backend enums.BackendType, seed map[string]any) (Instance, error) {
		calledSecond = true
		return fakeConstruct(ctx, fqn, backend, seed)
	})
	rt := New(registry)
	_, err := rt.InitializeMachine(context.Background(), &assetstore.Machine{AssetBase: assetstore.AssetBase{FQN: "hamilton.star"}}, nil)
	require.NoError(t, err)
	require.True(t, calledSecond)
}

func TestShutdownMachineUnregisteredFQNErrors(t *testing.T) {
	rt := New(NewRegistry())
	err := rt.ShutdownMachine(context.Background(), &assetstore.Machine{AssetBase: assetstore.AssetBase{FQN: "unbound.fqn"}})
	require.Error(t, err)
}

func TestCreateOrGetResourceUsesRegisteredConstructor(t *testing.T) {
	registry := NewRegistry()
	registry.Register("corning.plate_96", fakeConstruct)
	rt := New(registry)

	inst, err := rt.CreateOrGetResource(context.Background(), &assetstore.Resource{AssetBase: assetstore.AssetBase{FQN: "corning.plate_96"}}, &definitioncatalog.ResourceDefinition{})
	require.NoError(t, err)
	require.Equal(t, "corning.plate_96", inst.FQN())
}

func TestAssignResourceToDeckSetsDeckLinkage(t *testing.T) {
	rt := New(NewRegistry())
	r := &assetstore.Resource{}
	d := &assetstore.Deck{Resource: assetstore.Resource{AssetBase: assetstore.AssetBase{AccessionID: "deck-1"}}}
	require.NoError(t, rt.AssignResourceToDeck(context.Background(), r, d, "slot-1"))
	require.Equal(t, "deck-1", r.DeckID)
	require.Equal(t, "slot-1", r.CurrentDeckPositionName)
}

func TestClearResourceInstanceClearsPLRState(t *testing.T) {
	rt := New(NewRegistry())
	r := &assetstore.Resource{AssetBase: assetstore.AssetBase{PLRState: map[string]any{"foo": "bar"}}}
	require.NoError(t, rt.ClearResourceInstance(context.Background(), r))
	require.Nil(t, r.PLRState)
}
