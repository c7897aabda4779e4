// Package entitylink implements the entity linker (C5): the
// invariant-preserving bidirectional binding between machines and their
// resource counterparts (and decks and their resource counterparts),
// including name synchronization and asset_type reclassification.
//
// The linker is a pure-function layer over already-loaded records plus a
// narrow assetstore port, not a direct Mongo dependency, in the style of
// entity_linking.py's pure functions over ORM objects. Every exported
// function wraps its error with a consistent "entity link: <op>: %w"
// prefix, reproducing the effect of a logging decorator without one.
package entitylink

import (
	"context"
	"fmt"

	"github.com/autolab-io/workcellcore/assetstore"
	"github.com/autolab-io/workcellcore/enums"
	"github.com/autolab-io/workcellcore/telemetry"
	"github.com/autolab-io/workcellcore/workcellerrors"
)

// AssetPort is the narrow slice of assetstore.Store the linker depends on.
// Satisfied directly by assetstore.Store.
type AssetPort interface {
	ReadMachineByID(ctx context.Context, id string) (*assetstore.Machine, error)
	UpdateMachine(ctx context.Context, m *assetstore.Machine) error
	ReadResourceByID(ctx context.Context, id string) (*assetstore.Resource, error)
	ReadResourceByName(ctx context.Context, name string) (*assetstore.Resource, error)
	CreateResource(ctx context.Context, r *assetstore.Resource) error
	UpdateResource(ctx context.Context, r *assetstore.Resource) error
}

// DefinitionPort is the narrow slice of definitioncatalog.Store the linker
// depends on, used to materialize a new counterpart resource by definition
// name.
type DefinitionPort interface {
	ReadResourceDefinitionByName(ctx context.Context, name string) (*ResourceDefinitionRef, error)
}

// ResourceDefinitionRef is the subset of a ResourceDefinition the linker
// needs to create a counterpart resource. Kept narrow and duck-typed so the
// linker does not import definitioncatalog directly.
type ResourceDefinitionRef struct {
	AccessionID string
}

// Linker implements the C5 primitive operations.
type Linker struct {
	Assets      AssetPort
	Definitions DefinitionPort
	Logger      telemetry.Logger
}

// New constructs a Linker. logger defaults to telemetry.NoopLogger{} if nil.
func New(assets AssetPort, definitions DefinitionPort, logger telemetry.Logger) *Linker {
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	return &Linker{Assets: assets, Definitions: definitions, Logger: logger}
}

// LinkMachineWithResourceInput parameterizes LinkMachineWithResource.
type LinkMachineWithResourceInput struct {
	MachineID              string
	IsResource             bool
	CounterpartID          string
	ResourceDefName        string
	ResourceInitialStatus  enums.ResourceStatus
	ResourceProperties     map[string]any
}

// LinkMachineWithResult reports the machine/resource pair after a link or
// unlink operation.
type LinkMachineWithResult struct {
	Machine  *assetstore.Machine
	Resource *assetstore.Resource // nil after an unlink
}

// LinkMachineWithResource links a machine to its resource counterpart,
// creating the counterpart from a resource definition when it doesn't
// exist yet. See the method body for the exact semantics of each
// combination of IsResource/CounterpartID/ResourceDefName.
func (l *Linker) LinkMachineWithResource(ctx context.Context, in LinkMachineWithResourceInput) (*LinkMachineWithResult, error) {
	m, err := l.Assets.ReadMachineByID(ctx, in.MachineID)
	if err != nil {
		return nil, fmt.Errorf("entity link: link_machine_with_resource: %w", err)
	}

	if !in.IsResource {
		return l.unlinkMachine(ctx, m)
	}

	if in.CounterpartID != "" {
		return l.linkMachineToExistingResource(ctx, m, in.CounterpartID)
	}

	if m.ResourceCounterpartID != "" {
		existing, err := l.Assets.ReadResourceByID(ctx, m.ResourceCounterpartID)
		if err != nil {
			return nil, fmt.Errorf("entity link: link_machine_with_resource: %w", err)
		}
		return &LinkMachineWithResult{Machine: m, Resource: existing}, nil
	}

	if in.ResourceDefName == "" {
		return nil, fmt.Errorf("entity link: link_machine_with_resource: %w",
			workcellerrors.NewInvalidLinkOperation("is_resource requested with no counterpart_id and no resource definition name"))
	}
	return l.linkMachineToNewResource(ctx, m, in)
}

func (l *Linker) linkMachineToExistingResource(ctx context.Context, m *assetstore.Machine, resourceID string) (*LinkMachineWithResult, error) {
	r, err := l.Assets.ReadResourceByID(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("entity link: link_machine_with_resource: %w", err)
	}

	if m.ResourceCounterpartID != "" && m.ResourceCounterpartID != r.AccessionID {
		old, err := l.Assets.ReadResourceByID(ctx, m.ResourceCounterpartID)
		if err == nil {
			old.MachineCounterpartID = ""
			old.AssetType = enums.AssetTypeResource
			if uerr := l.Assets.UpdateResource(ctx, old); uerr != nil {
				return nil, fmt.Errorf("entity link: link_machine_with_resource: unlink previous counterpart: %w", uerr)
			}
		}
	}

	m.ResourceCounterpartID = r.AccessionID
	m.AssetType = enums.AssetTypeMachineResource
	r.MachineCounterpartID = m.AccessionID
	r.AssetType = enums.AssetTypeMachineResource
	r.Name = m.Name

	if err := l.Assets.UpdateResource(ctx, r); err != nil {
		return nil, fmt.Errorf("entity link: link_machine_with_resource: %w", err)
	}
	if err := l.Assets.UpdateMachine(ctx, m); err != nil {
		return nil, fmt.Errorf("entity link: link_machine_with_resource: %w", err)
	}
	l.Logger.Info(ctx, "linked machine to existing resource counterpart", "machine_id", m.AccessionID, "resource_id", r.AccessionID)
	return &LinkMachineWithResult{Machine: m, Resource: r}, nil
}

func (l *Linker) linkMachineToNewResource(ctx context.Context, m *assetstore.Machine, in LinkMachineWithResourceInput) (*LinkMachineWithResult, error) {
	def, err := l.Definitions.ReadResourceDefinitionByName(ctx, in.ResourceDefName)
	if err != nil {
		return nil, fmt.Errorf("entity link: link_machine_with_resource: %w", err)
	}
	status := in.ResourceInitialStatus
	if status == "" {
		status = enums.ResourceStatusAvailableInStorage
	}
	r := &assetstore.Resource{
		AssetBase: assetstore.AssetBase{
			Name:       m.Name,
			Properties: in.ResourceProperties,
		},
		AssetType:            enums.AssetTypeMachineResource,
		Status:               status,
		ResourceDefinitionID:  def.AccessionID,
		MachineCounterpartID: m.AccessionID,
	}
	if err := l.Assets.CreateResource(ctx, r); err != nil {
		return nil, fmt.Errorf("entity link: link_machine_with_resource: %w", err)
	}

	m.ResourceCounterpartID = r.AccessionID
	m.AssetType = enums.AssetTypeMachineResource
	if err := l.Assets.UpdateMachine(ctx, m); err != nil {
		return nil, fmt.Errorf("entity link: link_machine_with_resource: %w", err)
	}
	l.Logger.Info(ctx, "created and linked new resource counterpart", "machine_id", m.AccessionID, "resource_id", r.AccessionID)
	return &LinkMachineWithResult{Machine: m, Resource: r}, nil
}

func (l *Linker) unlinkMachine(ctx context.Context, m *assetstore.Machine) (*LinkMachineWithResult, error) {
	if m.ResourceCounterpartID == "" {
		return &LinkMachineWithResult{Machine: m}, nil
	}
	r, err := l.Assets.ReadResourceByID(ctx, m.ResourceCounterpartID)
	if err != nil {
		return nil, fmt.Errorf("entity link: link_machine_with_resource: %w", err)
	}
	r.MachineCounterpartID = ""
	r.AssetType = enums.AssetTypeResource
	if err := l.Assets.UpdateResource(ctx, r); err != nil {
		return nil, fmt.Errorf("entity link: link_machine_with_resource: %w", err)
	}
	m.ResourceCounterpartID = ""
	m.AssetType = enums.AssetTypeMachine
	if err := l.Assets.UpdateMachine(ctx, m); err != nil {
		return nil, fmt.Errorf("entity link: link_machine_with_resource: %w", err)
	}
	l.Logger.Info(ctx, "unlinked machine/resource counterpart", "machine_id", m.AccessionID)
	return &LinkMachineWithResult{Machine: m}, nil
}

// LinkResourceWithMachineInput parameterizes LinkResourceWithMachine, the
// symmetric inverse of LinkMachineWithResource.
type LinkResourceWithMachineInput struct {
	ResourceID    string
	IsMachine     bool
	CounterpartID string
}

// LinkResourceWithMachine implements link_resource_with_machine: given a
// resource, attach or detach its machine counterpart. Unlike the machine
// side, this never creates a new machine — machines are provisioned
// separately — so CounterpartID is required when IsMachine is true.
func (l *Linker) LinkResourceWithMachine(ctx context.Context, in LinkResourceWithMachineInput) (*LinkMachineWithResult, error) {
	r, err := l.Assets.ReadResourceByID(ctx, in.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("entity link: link_resource_with_machine: %w", err)
	}

	if !in.IsMachine {
		if r.MachineCounterpartID == "" {
			return &LinkMachineWithResult{Resource: r}, nil
		}
		m, err := l.Assets.ReadMachineByID(ctx, r.MachineCounterpartID)
		if err != nil {
			return nil, fmt.Errorf("entity link: link_resource_with_machine: %w", err)
		}
		m.ResourceCounterpartID = ""
		m.AssetType = enums.AssetTypeMachine
		if err := l.Assets.UpdateMachine(ctx, m); err != nil {
			return nil, fmt.Errorf("entity link: link_resource_with_machine: %w", err)
		}
		r.MachineCounterpartID = ""
		r.AssetType = enums.AssetTypeResource
		if err := l.Assets.UpdateResource(ctx, r); err != nil {
			return nil, fmt.Errorf("entity link: link_resource_with_machine: %w", err)
		}
		return &LinkMachineWithResult{Resource: r}, nil
	}

	if in.CounterpartID == "" {
		return nil, fmt.Errorf("entity link: link_resource_with_machine: %w",
			workcellerrors.NewInvalidLinkOperation("is_machine requested with no counterpart_id"))
	}
	m, err := l.Assets.ReadMachineByID(ctx, in.CounterpartID)
	if err != nil {
		return nil, fmt.Errorf("entity link: link_resource_with_machine: %w", err)
	}
	return l.linkMachineToExistingResource(ctx, m, r.AccessionID)
}

// SynchronizeNamesMachine propagates a machine's name to its resource
// counterpart, if linked and different.
func (l *Linker) SynchronizeNamesMachine(ctx context.Context, machineID string) error {
	m, err := l.Assets.ReadMachineByID(ctx, machineID)
	if err != nil {
		return fmt.Errorf("entity link: synchronize_names: %w", err)
	}
	if m.ResourceCounterpartID == "" {
		return nil
	}
	r, err := l.Assets.ReadResourceByID(ctx, m.ResourceCounterpartID)
	if err != nil {
		return fmt.Errorf("entity link: synchronize_names: %w", err)
	}
	if r.Name == m.Name {
		return nil
	}
	r.Name = m.Name
	if err := l.Assets.UpdateResource(ctx, r); err != nil {
		return fmt.Errorf("entity link: synchronize_names: %w", err)
	}
	l.Logger.Debug(ctx, "synchronized counterpart name", "machine_id", m.AccessionID, "resource_id", r.AccessionID, "name", m.Name)
	return nil
}
