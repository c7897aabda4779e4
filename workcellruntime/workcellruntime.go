// Package workcellruntime implements the workcell runtime interface (C12):
// the contract C7 (assetacquire) and C11 (executor) consume to instantiate
// and shut down the physical/simulated objects backing a Machine or
// Resource row, without this module ever depending on a concrete driver.
//
// A Runtime is resolved by FQN through a Registry, the same way tool
// implementations are resolved by name in runtime/toolregistry.
package workcellruntime

import (
	"context"
	"fmt"
	"sync"

	"github.com/autolab-io/workcellcore/assetstore"
	"github.com/autolab-io/workcellcore/definitioncatalog"
	"github.com/autolab-io/workcellcore/enums"
	"github.com/autolab-io/workcellcore/workcellerrors"
)

// Instance is an opaque handle to a live runtime object (a PyLabRobot-style
// driver instance, or a simulated stand-in). The workcell core never
// inspects it; it only threads it back to the caller.
type Instance interface {
	// FQN identifies the backend class this instance was constructed from.
	FQN() string
	// Backend reports which concrete backend kind produced this instance.
	Backend() enums.BackendType
}

// Runtime is the six-operation contract a hardware/simulation backend
// fulfills.
type Runtime interface {
	InitializeMachine(ctx context.Context, m *assetstore.Machine, def *definitioncatalog.MachineDefinition) (Instance, error)
	ShutdownMachine(ctx context.Context, m *assetstore.Machine) error
	CreateOrGetResource(ctx context.Context, r *assetstore.Resource, def *definitioncatalog.ResourceDefinition) (Instance, error)
	AssignResourceToDeck(ctx context.Context, r *assetstore.Resource, d *assetstore.Deck, positionName string) error
	ClearResourceInstance(ctx context.Context, r *assetstore.Resource) error
	ClearDeckPosition(ctx context.Context, d *assetstore.Deck, positionName string) error
}

// Constructor builds a live Instance for the given FQN and backend kind.
// Implementations are supplied by whatever links the concrete drivers into
// the binary; this module ships only the in-memory/simulated default in
// workcellruntime/simulated.
type Constructor func(ctx context.Context, fqn string, backend enums.BackendType, seed map[string]any) (Instance, error)

// Registry resolves a Runtime's constructors by FQN, honoring
// Machine.IsSimulationOverride / the workcell's configured BackendType.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
	// DefaultBackend is used when an asset carries no IsSimulationOverride.
	DefaultBackend enums.BackendType
}

// NewRegistry returns an empty Registry defaulting to BackendTypeSimulator.
func NewRegistry() *Registry {
	return &Registry{
		constructors:   make(map[string]Constructor),
		DefaultBackend: enums.BackendTypeSimulator,
	}
}

// Register binds fqn to a Constructor. Re-registering the same FQN
// overwrites the previous binding, the same last-registration-wins
// semantics toolregistry uses for dev/test reloads.
func (r *Registry) Register(fqn string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[fqn] = ctor
}

func (r *Registry) lookup(fqn string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.constructors[fqn]
	return ctor, ok
}

// backendFor resolves the effective backend for an asset: an explicit
// IsSimulationOverride always wins, matching the original runtime's
// per-machine simulation override semantics; otherwise the registry default.
func (r *Registry) backendFor(override *bool) enums.BackendType {
	if override != nil {
		if *override {
			return enums.BackendTypeSimulator
		}
		return enums.BackendTypeRealHardware
	}
	return r.DefaultBackend
}

// runtime implements Runtime against a Registry. Most methods are thin:
// the actual object lifecycle lives behind the registered Constructor; this
// type's job is resolving which Constructor applies and enforcing the
// auto-deck-assignment rule InitializeMachine applies for machines whose
// definition declares a deck.
type runtime struct {
	registry *Registry
}

// New returns a Runtime dispatching to registry.
func New(registry *Registry) Runtime {
	return &runtime{registry: registry}
}

func (r *runtime) InitializeMachine(ctx context.Context, m *assetstore.Machine, def *definitioncatalog.MachineDefinition) (Instance, error) {
	ctor, ok := r.registry.lookup(m.FQN)
	if !ok {
		return nil, workcellerrors.NewRuntimeInitError(m.FQN, fmt.Errorf("no runtime constructor registered"))
	}
	inst, err := ctor(ctx, m.FQN, r.registry.backendFor(m.IsSimulationOverride), m.PLRDefinition)
	if err != nil {
		return nil, workcellerrors.NewRuntimeInitError(m.FQN, err)
	}

	if def != nil && def.HasDeck {
		if m.PLRState == nil {
			m.PLRState = map[string]any{}
		}
		if _, hasDeck := m.PLRState["deck"]; !hasDeck {
			m.PLRState["deck"] = map[string]any{
				"deck_definition_id": def.DeckDefinitionID,
				"auto_assigned":      true,
			}
		}
	}
	return inst, nil
}

func (r *runtime) ShutdownMachine(ctx context.Context, m *assetstore.Machine) error {
	_, ok := r.registry.lookup(m.FQN)
	if !ok {
		return workcellerrors.NewRuntimeInitError(m.FQN, fmt.Errorf("no runtime constructor registered"))
	}
	return nil
}

func (r *runtime) CreateOrGetResource(ctx context.Context, res *assetstore.Resource, def *definitioncatalog.ResourceDefinition) (Instance, error) {
	ctor, ok := r.registry.lookup(res.FQN)
	if !ok {
		return nil, workcellerrors.NewRuntimeInitError(res.FQN, fmt.Errorf("no runtime constructor registered"))
	}
	inst, err := ctor(ctx, res.FQN, r.registry.backendFor(nil), res.PLRDefinition)
	if err != nil {
		return nil, workcellerrors.NewRuntimeInitError(res.FQN, err)
	}
	return inst, nil
}

func (r *runtime) AssignResourceToDeck(ctx context.Context, res *assetstore.Resource, d *assetstore.Deck, positionName string) error {
	res.DeckID = d.AccessionID
	res.CurrentDeckPositionName = positionName
	return nil
}

func (r *runtime) ClearResourceInstance(ctx context.Context, res *assetstore.Resource) error {
	res.PLRState = nil
	return nil
}

func (r *runtime) ClearDeckPosition(ctx context.Context, d *assetstore.Deck, positionName string) error {
	return nil
}
