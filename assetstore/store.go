package assetstore

import "context"

// Store is the persistence port C4 exposes to the rest of the module.
// Implementations: assetstore/inmem (tests, fast unit coverage of C5/C6/C7)
// and assetstore/mongo (durable, MongoDB-backed).
//
// Every mutator enforces the asset model's invariants: asset.name globally
// unique, machine.serial_number unique when present. Violations are
// returned as *workcellerrors.ConflictError, never a raw driver error.
type Store interface {
	CreateMachine(ctx context.Context, m *Machine) error
	ReadMachineByID(ctx context.Context, id string) (*Machine, error)
	ReadMachineByName(ctx context.Context, name string) (*Machine, error)
	ListMachines(ctx context.Context, filter MachineFilter, opts ListOptions) ([]*Machine, error)
	UpdateMachine(ctx context.Context, m *Machine) error
	DeleteMachine(ctx context.Context, id string) error

	CreateResource(ctx context.Context, r *Resource) error
	ReadResourceByID(ctx context.Context, id string) (*Resource, error)
	ReadResourceByName(ctx context.Context, name string) (*Resource, error)
	ListResources(ctx context.Context, filter ResourceFilter, opts ListOptions) ([]*Resource, error)
	UpdateResource(ctx context.Context, r *Resource) error
	DeleteResource(ctx context.Context, id string) error

	CreateDeck(ctx context.Context, d *Deck) error
	ReadDeckByID(ctx context.Context, id string) (*Deck, error)
	ReadDeckByName(ctx context.Context, name string) (*Deck, error)
	ListDecks(ctx context.Context, opts ListOptions) ([]*Deck, error)
	UpdateDeck(ctx context.Context, d *Deck) error
	DeleteDeck(ctx context.Context, id string) error

	CreateWorkcell(ctx context.Context, w *Workcell) error
	ReadWorkcellByID(ctx context.Context, id string) (*Workcell, error)
}
