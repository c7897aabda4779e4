package definitioncatalog

import "context"

// Store is the persistence port C3 exposes to the rest of the module.
// Implementations: definitioncatalog/inmem and definitioncatalog/mongo.
//
// The store enforces: definition.fqn unique, definition.name unique (per
// catalog), deck_position_definition(deck_type_id, name) unique, and
// function_protocol_definition unique per (name, version, source,
// source-locator). Violations surface as
// *workcellerrors.ConflictError. The Delete* methods remove the record
// without checking whether assets or other definitions still reference it.
type Store interface {
	CreateResourceDefinition(ctx context.Context, d *ResourceDefinition) error
	ReadResourceDefinitionByID(ctx context.Context, id string) (*ResourceDefinition, error)
	ReadResourceDefinitionByFQN(ctx context.Context, fqn string) (*ResourceDefinition, error)
	ReadResourceDefinitionByName(ctx context.Context, name string) (*ResourceDefinition, error)
	ListResourceDefinitions(ctx context.Context, filter ResourceDefinitionFilter, opts ListOptions) ([]*ResourceDefinition, error)
	UpdateResourceDefinition(ctx context.Context, d *ResourceDefinition) error
	DeleteResourceDefinition(ctx context.Context, id string) error

	CreateMachineDefinition(ctx context.Context, d *MachineDefinition) error
	ReadMachineDefinitionByID(ctx context.Context, id string) (*MachineDefinition, error)
	ReadMachineDefinitionByFQN(ctx context.Context, fqn string) (*MachineDefinition, error)
	ListMachineDefinitions(ctx context.Context, filter MachineDefinitionFilter, opts ListOptions) ([]*MachineDefinition, error)
	UpdateMachineDefinition(ctx context.Context, d *MachineDefinition) error
	DeleteMachineDefinition(ctx context.Context, id string) error

	CreateDeckDefinition(ctx context.Context, d *DeckDefinition) error
	ReadDeckDefinitionByID(ctx context.Context, id string) (*DeckDefinition, error)
	ReadDeckDefinitionByFQN(ctx context.Context, fqn string) (*DeckDefinition, error)
	UpdateDeckDefinition(ctx context.Context, d *DeckDefinition) error
	DeleteDeckDefinition(ctx context.Context, id string) error

	CreateProtocolDefinition(ctx context.Context, d *FunctionProtocolDefinition) error
	ReadProtocolDefinitionByID(ctx context.Context, id string) (*FunctionProtocolDefinition, error)
	ReadProtocolDefinitionByFQN(ctx context.Context, fqn string) (*FunctionProtocolDefinition, error)
	ListProtocolDefinitions(ctx context.Context, filter ProtocolDefinitionFilter, opts ListOptions) ([]*FunctionProtocolDefinition, error)
	UpdateProtocolDefinition(ctx context.Context, d *FunctionProtocolDefinition) error
	DeleteProtocolDefinition(ctx context.Context, id string) error

	CreateProtocolSource(ctx context.Context, s *ProtocolSource) error
	ReadProtocolSourceByID(ctx context.Context, id string) (*ProtocolSource, error)
	UpdateProtocolSource(ctx context.Context, s *ProtocolSource) error
}
