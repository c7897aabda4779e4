// Package assetstore implements the asset store (C4): CRUD over machines,
// resources, decks, and workcells, enforcing the polymorphic asset_type
// discriminator and the name/serial-number uniqueness invariants.
//
// The asset hierarchy is modeled as one struct per concrete kind, each
// embedding AssetBase for the fields every asset shares. A Deck is itself a
// Resource (it carries deck-specific fields in addition to everything a
// Resource carries), mirroring the data model in §3: "Deck: a Resource with
// additional deck_type_id...".
package assetstore

import (
	"time"

	"github.com/autolab-io/workcellcore/enums"
)

// AssetBase carries the fields common to every asset, regardless of kind.
type AssetBase struct {
	AccessionID string
	Name        string
	FQN         string
	Location    string

	// PLRState is an opaque runtime snapshot bag (the underlying driver
	// object's serialized state).
	PLRState map[string]any
	// PLRDefinition is an opaque definition bag (constructor args etc.).
	PLRDefinition map[string]any
	// Properties is an arbitrary metadata bag, matched by C7's
	// property_constraints filters.
	Properties map[string]any

	// LockReservationID is the reservation half of the lock manager's
	// (protocol_run_id, reservation_id) ownership tuple; the run half lives
	// in CurrentProtocolRunID on Machine/Resource. Empty when unlocked.
	// Owned exclusively by package assetlock.
	LockReservationID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Machine is an instrument: a liquid handler, a heater-shaker, a reader.
// A Machine that also functions as a Resource carries a non-empty
// ResourceCounterpartID and AssetType flips to MACHINE_RESOURCE on both
// records (the counterpart invariant, enforced by package entitylink).
type Machine struct {
	AssetBase

	AssetType             enums.AssetType
	Status                enums.MachineStatus
	StatusDetails         string
	WorkcellID            string
	ResourceCounterpartID string
	Manufacturer          string
	Model                 string
	SerialNumber          string
	ConnectionInfo        map[string]any
	IsSimulationOverride  *bool
	CurrentProtocolRunID  string
	LastSeenOnline        *time.Time
	MachineCategory       string
}

// Resource is a piece of labware tracked as an individual inventory item:
// a plate, a tip rack, a reservoir, or (via Deck) a deck.
type Resource struct {
	AssetBase

	AssetType                   enums.AssetType
	Status                      enums.ResourceStatus
	ResourceDefinitionID        string
	ParentID                    string
	DeckID                      string
	WorkcellID                  string
	MachineCounterpartID        string
	LotNumber                   string
	SerialNumber                string
	PhysicalLocationDescription string
	CurrentDeckPositionName     string
	CurrentProtocolRunID        string
	DateAddedToInventory        *time.Time
	IsPermanentFixture          bool
}

// Deck is a Resource that owns named positions into which other resources
// are placed, usually belonging to a liquid handler (ParentMachineID).
type Deck struct {
	Resource

	DeckTypeID      string
	ParentMachineID string
}

// Workcell groups machines, resources, and decks that share a physical
// laboratory cell. Referenced by Machine.WorkcellID / Resource.WorkcellID.
type Workcell struct {
	AccessionID string
	Name        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MachineFilter narrows ListMachines.
type MachineFilter struct {
	Status               *enums.MachineStatus
	FQNContains          string
	WorkcellID           string
	CurrentProtocolRunID string
	NameContains         string
}

// ResourceFilter narrows ListResources.
type ResourceFilter struct {
	FQN                string
	Status             *enums.ResourceStatus
	ParentID           string
	WorkcellID         string
	LocationMachineID  string
	OnDeckPosition     string
	PropertyFilters    map[string]any
}

// ListOptions paginates a list operation.
type ListOptions struct {
	Limit  int
	Offset int
}
