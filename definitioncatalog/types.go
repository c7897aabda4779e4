// Package definitioncatalog implements the definition catalog store (C3):
// CRUD over the four parallel type-definition catalogs (resource, machine,
// deck, protocol) plus the protocol-source rows a FunctionProtocolDefinition
// references. Mirrors assetstore's shape: one collection per kind, uniqueness
// enforced on fqn and name.
package definitioncatalog

import (
	"time"

	"github.com/autolab-io/workcellcore/enums"
)

// ResourceDefinition describes a resource type: a plate model, a tip rack
// model, a reservoir model.
type ResourceDefinition struct {
	AccessionID string
	FQN         string
	Name        string

	ResourceType             string
	IsConsumable             bool
	NominalVolumeUL          *float64
	Material                 string
	Manufacturer             string
	SizeXMM                  *float64
	SizeYMM                  *float64
	SizeZMM                  *float64
	PLRDefinitionDetails     map[string]any
	PLRCategory              enums.ResourceCategory
	Rotation                 map[string]any
	Ordering                 []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MachineDefinition describes a machine type: a liquid handler model, a
// heater-shaker model.
type MachineDefinition struct {
	AccessionID string
	FQN         string
	Name        string

	MachineCategory    string
	SizeXMM            *float64
	SizeYMM            *float64
	SizeZMM            *float64
	HasDeck            bool
	DeckDefinitionID   string
	SetupMethod        map[string]any
	ResourceDefinitionID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeckPositionDefinition is one named slot on a deck type. Unique on
// (DeckTypeID, Name).
type DeckPositionDefinition struct {
	DeckTypeID                string
	Name                      string
	NominalXMM                float64
	NominalYMM                float64
	NominalZMM                float64
	AcceptedResourceCategories []enums.ResourceCategory
	AcceptsTips               bool
	AcceptsPlates             bool
	AcceptsTubes              bool
	PositionSpecificDetails   map[string]any
}

// DeckDefinition describes a deck type and owns its position layout.
type DeckDefinition struct {
	AccessionID string
	FQN         string
	Name        string

	DefaultSizeXMM              *float64
	DefaultSizeYMM              *float64
	DefaultSizeZMM              *float64
	PositioningConfig           map[string]any
	SerializedConstructorArgs   map[string]any
	SerializedAssignmentMethods map[string]any
	Positions                   []DeckPositionDefinition

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FunctionProtocolDefinition describes a callable protocol function: source
// location, version, and an exactly-one-of Git-or-filesystem source link.
type FunctionProtocolDefinition struct {
	AccessionID string
	FQN         string
	Name        string
	Version     string

	SourceFilePath           string
	ModuleName               string
	FunctionName             string
	IsTopLevel               bool
	SoloExecution            bool
	PreconfigureDeck         bool
	DeckParamName            string
	DeckConstructionFunctionFQN string
	StateParamName           string
	Category                 string
	Tags                      []string
	Deprecated                bool

	// Exactly one of the following source links is set.
	SourceRepositoryID string
	CommitHash         string
	FileSystemSourceID string
	SourceFilePathFS   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProtocolSource is a Git repository or filesystem directory the discovery
// pipeline scans for protocol definitions. Carried over per SPEC_FULL.md's
// supplemented features (ProtocolSourceStatusEnum).
type ProtocolSource struct {
	AccessionID string
	Name        string
	Status      enums.ProtocolSourceStatus

	// Exactly one of the following describes the source location.
	RepositoryURL  string
	DefaultBranch  string
	LocalRootPath  string

	LastSyncedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ListOptions paginates a list operation.
type ListOptions struct {
	Limit  int
	Offset int
}

// ResourceDefinitionFilter narrows ListResourceDefinitions.
type ResourceDefinitionFilter struct {
	ManufacturerContains string
	IsConsumable         *bool
}

// MachineDefinitionFilter narrows ListMachineDefinitions.
type MachineDefinitionFilter struct {
	MachineCategory string
}

// ProtocolDefinitionFilter narrows ListProtocolDefinitions.
type ProtocolDefinitionFilter struct {
	Category   string
	Deprecated *bool
}
