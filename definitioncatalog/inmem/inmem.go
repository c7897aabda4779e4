// Package inmem provides an in-memory implementation of
// definitioncatalog.Store for unit tests and local development.
package inmem

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"context"

	"github.com/autolab-io/workcellcore/definitioncatalog"
	"github.com/autolab-io/workcellcore/identity"
	"github.com/autolab-io/workcellcore/workcellerrors"
)

// Store implements definitioncatalog.Store in memory.
type Store struct {
	mu sync.RWMutex

	resourceDefs map[string]definitioncatalog.ResourceDefinition
	machineDefs  map[string]definitioncatalog.MachineDefinition
	deckDefs     map[string]definitioncatalog.DeckDefinition
	protocolDefs map[string]definitioncatalog.FunctionProtocolDefinition
	sources      map[string]definitioncatalog.ProtocolSource

	fqns           map[string]string // per-catalog key ("resource:"+fqn) -> id
	names          map[string]string
	protocolKeys   map[string]string // name/version/source key -> id
	deckPositions  map[string]bool   // deck_type_id + "\x00" + name

	clock identity.Clock
}

// New constructs an empty Store.
func New(clock identity.Clock) *Store {
	if clock == nil {
		clock = identity.UTCClock{}
	}
	return &Store{
		resourceDefs:  make(map[string]definitioncatalog.ResourceDefinition),
		machineDefs:   make(map[string]definitioncatalog.MachineDefinition),
		deckDefs:      make(map[string]definitioncatalog.DeckDefinition),
		protocolDefs:  make(map[string]definitioncatalog.FunctionProtocolDefinition),
		sources:       make(map[string]definitioncatalog.ProtocolSource),
		fqns:          make(map[string]string),
		names:         make(map[string]string),
		protocolKeys:  make(map[string]string),
		deckPositions: make(map[string]bool),
		clock:         clock,
	}
}

func (s *Store) reserveFQN(catalog, fqn, name, id string) error {
	fqnKey := catalog + ":fqn:" + fqn
	if owner, ok := s.fqns[fqnKey]; ok && owner != id {
		return workcellerrors.NewConflict(workcellerrors.ConflictUniqueness, catalog, "fqn", fqn, nil)
	}
	nameKey := catalog + ":name:" + name
	if owner, ok := s.names[nameKey]; ok && owner != id {
		return workcellerrors.NewConflict(workcellerrors.ConflictUniqueness, catalog, "name", name, nil)
	}
	s.fqns[fqnKey] = id
	s.names[nameKey] = id
	return nil
}

func (s *Store) CreateResourceDefinition(_ context.Context, d *definitioncatalog.ResourceDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.AccessionID == "" {
		id, err := identity.NewAccessionID()
		if err != nil {
			return err
		}
		d.AccessionID = id
	}
	if err := s.reserveFQN("resource", d.FQN, d.Name, d.AccessionID); err != nil {
		return err
	}
	now := s.clock.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	s.resourceDefs[d.AccessionID] = *d
	return nil
}

func (s *Store) ReadResourceDefinitionByID(_ context.Context, id string) (*definitioncatalog.ResourceDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.resourceDefs[id]
	if !ok {
		return nil, workcellerrors.ErrNotFound
	}
	return &d, nil
}

func (s *Store) ReadResourceDefinitionByFQN(_ context.Context, fqn string) (*definitioncatalog.ResourceDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.resourceDefs {
		if d.FQN == fqn {
			return &d, nil
		}
	}
	return nil, workcellerrors.ErrNotFound
}

func (s *Store) ReadResourceDefinitionByName(_ context.Context, name string) (*definitioncatalog.ResourceDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.resourceDefs {
		if d.Name == name {
			return &d, nil
		}
	}
	return nil, workcellerrors.ErrNotFound
}

func (s *Store) ListResourceDefinitions(_ context.Context, filter definitioncatalog.ResourceDefinitionFilter, opts definitioncatalog.ListOptions) ([]*definitioncatalog.ResourceDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*definitioncatalog.ResourceDefinition
	for _, d := range s.resourceDefs {
		d := d
		if filter.ManufacturerContains != "" && !strings.Contains(d.Manufacturer, filter.ManufacturerContains) {
			continue
		}
		if filter.IsConsumable != nil && d.IsConsumable != *filter.IsConsumable {
			continue
		}
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return page(out, opts), nil
}

func (s *Store) UpdateResourceDefinition(_ context.Context, d *definitioncatalog.ResourceDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.resourceDefs[d.AccessionID]
	if !ok {
		return workcellerrors.ErrNotFound
	}
	if err := s.reserveFQN("resource", d.FQN, d.Name, d.AccessionID); err != nil {
		return err
	}
	d.CreatedAt = existing.CreatedAt
	d.UpdatedAt = s.clock.Now()
	s.resourceDefs[d.AccessionID] = *d
	return nil
}

func (s *Store) DeleteResourceDefinition(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.resourceDefs[id]
	if !ok {
		return workcellerrors.ErrNotFound
	}
	delete(s.resourceDefs, id)
	delete(s.fqns, "resource:fqn:"+d.FQN)
	delete(s.names, "resource:name:"+d.Name)
	return nil
}

func (s *Store) CreateMachineDefinition(_ context.Context, d *definitioncatalog.MachineDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.AccessionID == "" {
		id, err := identity.NewAccessionID()
		if err != nil {
			return err
		}
		d.AccessionID = id
	}
	if err := s.reserveFQN("machine", d.FQN, d.Name, d.AccessionID); err != nil {
		return err
	}
	now := s.clock.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	s.machineDefs[d.AccessionID] = *d
	return nil
}

func (s *Store) ReadMachineDefinitionByID(_ context.Context, id string) (*definitioncatalog.MachineDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.machineDefs[id]
	if !ok {
		return nil, workcellerrors.ErrNotFound
	}
	return &d, nil
}

func (s *Store) ReadMachineDefinitionByFQN(_ context.Context, fqn string) (*definitioncatalog.MachineDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.machineDefs {
		if d.FQN == fqn {
			return &d, nil
		}
	}
	return nil, workcellerrors.ErrNotFound
}

func (s *Store) ListMachineDefinitions(_ context.Context, filter definitioncatalog.MachineDefinitionFilter, opts definitioncatalog.ListOptions) ([]*definitioncatalog.MachineDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*definitioncatalog.MachineDefinition
	for _, d := range s.machineDefs {
		d := d
		if filter.MachineCategory != "" && d.MachineCategory != filter.MachineCategory {
			continue
		}
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return page(out, opts), nil
}

func (s *Store) UpdateMachineDefinition(_ context.Context, d *definitioncatalog.MachineDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.machineDefs[d.AccessionID]
	if !ok {
		return workcellerrors.ErrNotFound
	}
	if err := s.reserveFQN("machine", d.FQN, d.Name, d.AccessionID); err != nil {
		return err
	}
	d.CreatedAt = existing.CreatedAt
	d.UpdatedAt = s.clock.Now()
	s.machineDefs[d.AccessionID] = *d
	return nil
}

func (s *Store) DeleteMachineDefinition(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.machineDefs[id]
	if !ok {
		return workcellerrors.ErrNotFound
	}
	delete(s.machineDefs, id)
	delete(s.fqns, "machine:fqn:"+d.FQN)
	delete(s.names, "machine:name:"+d.Name)
	return nil
}

func (s *Store) CreateDeckDefinition(_ context.Context, d *definitioncatalog.DeckDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.AccessionID == "" {
		id, err := identity.NewAccessionID()
		if err != nil {
			return err
		}
		d.AccessionID = id
	}
	if err := s.reserveFQN("deck", d.FQN, d.Name, d.AccessionID); err != nil {
		return err
	}
	for _, p := range d.Positions {
		if err := s.reserveDeckPosition(d.AccessionID, p.Name); err != nil {
			return err
		}
	}
	now := s.clock.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	s.deckDefs[d.AccessionID] = *d
	return nil
}

func (s *Store) reserveDeckPosition(deckTypeID, name string) error {
	key := deckTypeID + "\x00" + name
	if s.deckPositions[key] {
		return workcellerrors.NewConflict(workcellerrors.ConflictUniqueness, "deck_position_definition", "name", name, nil)
	}
	s.deckPositions[key] = true
	return nil
}

func (s *Store) ReadDeckDefinitionByID(_ context.Context, id string) (*definitioncatalog.DeckDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deckDefs[id]
	if !ok {
		return nil, workcellerrors.ErrNotFound
	}
	return &d, nil
}

func (s *Store) ReadDeckDefinitionByFQN(_ context.Context, fqn string) (*definitioncatalog.DeckDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.deckDefs {
		if d.FQN == fqn {
			return &d, nil
		}
	}
	return nil, workcellerrors.ErrNotFound
}

func (s *Store) UpdateDeckDefinition(_ context.Context, d *definitioncatalog.DeckDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.deckDefs[d.AccessionID]
	if !ok {
		return workcellerrors.ErrNotFound
	}
	if err := s.reserveFQN("deck", d.FQN, d.Name, d.AccessionID); err != nil {
		return err
	}
	d.CreatedAt = existing.CreatedAt
	d.UpdatedAt = s.clock.Now()
	s.deckDefs[d.AccessionID] = *d
	return nil
}

func (s *Store) DeleteDeckDefinition(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deckDefs[id]
	if !ok {
		return workcellerrors.ErrNotFound
	}
	delete(s.deckDefs, id)
	delete(s.fqns, "deck:fqn:"+d.FQN)
	delete(s.names, "deck:name:"+d.Name)
	for _, p := range d.Positions {
		delete(s.deckPositions, d.AccessionID+"\x00"+p.Name)
	}
	return nil
}

func protocolKey(d *definitioncatalog.FunctionProtocolDefinition) string {
	source := d.SourceRepositoryID + ":" + d.CommitHash
	if d.SourceRepositoryID == "" {
		source = d.FileSystemSourceID + ":" + d.SourceFilePathFS
	}
	return fmt.Sprintf("%s\x00%s\x00%s", d.Name, d.Version, source)
}

func (s *Store) CreateProtocolDefinition(_ context.Context, d *definitioncatalog.FunctionProtocolDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.AccessionID == "" {
		id, err := identity.NewAccessionID()
		if err != nil {
			return err
		}
		d.AccessionID = id
	}
	key := protocolKey(d)
	if owner, ok := s.protocolKeys[key]; ok && owner != d.AccessionID {
		return workcellerrors.NewConflict(workcellerrors.ConflictUniqueness, "function_protocol_definition", "name/version/source", d.Name, nil)
	}
	if err := s.reserveFQN("protocol", d.FQN, d.Name+"@"+d.Version, d.AccessionID); err != nil {
		return err
	}
	s.protocolKeys[key] = d.AccessionID
	now := s.clock.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	s.protocolDefs[d.AccessionID] = *d
	return nil
}

func (s *Store) ReadProtocolDefinitionByID(_ context.Context, id string) (*definitioncatalog.FunctionProtocolDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.protocolDefs[id]
	if !ok {
		return nil, workcellerrors.ErrNotFound
	}
	return &d, nil
}

func (s *Store) ReadProtocolDefinitionByFQN(_ context.Context, fqn string) (*definitioncatalog.FunctionProtocolDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.protocolDefs {
		if d.FQN == fqn {
			return &d, nil
		}
	}
	return nil, workcellerrors.ErrNotFound
}

func (s *Store) ListProtocolDefinitions(_ context.Context, filter definitioncatalog.ProtocolDefinitionFilter, opts definitioncatalog.ListOptions) ([]*definitioncatalog.FunctionProtocolDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*definitioncatalog.FunctionProtocolDefinition
	for _, d := range s.protocolDefs {
		d := d
		if filter.Category != "" && d.Category != filter.Category {
			continue
		}
		if filter.Deprecated != nil && d.Deprecated != *filter.Deprecated {
			continue
		}
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return page(out, opts), nil
}

func (s *Store) UpdateProtocolDefinition(_ context.Context, d *definitioncatalog.FunctionProtocolDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.protocolDefs[d.AccessionID]
	if !ok {
		return workcellerrors.ErrNotFound
	}
	d.CreatedAt = existing.CreatedAt
	d.UpdatedAt = s.clock.Now()
	s.protocolDefs[d.AccessionID] = *d
	return nil
}

func (s *Store) DeleteProtocolDefinition(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.protocolDefs[id]
	if !ok {
		return workcellerrors.ErrNotFound
	}
	delete(s.protocolDefs, id)
	delete(s.protocolKeys, protocolKey(&d))
	delete(s.fqns, "protocol:fqn:"+d.FQN)
	delete(s.names, "protocol:name:"+d.Name+"@"+d.Version)
	return nil
}

func (s *Store) CreateProtocolSource(_ context.Context, src *definitioncatalog.ProtocolSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src.AccessionID == "" {
		id, err := identity.NewAccessionID()
		if err != nil {
			return err
		}
		src.AccessionID = id
	}
	now := s.clock.Now()
	src.CreatedAt, src.UpdatedAt = now, now
	s.sources[src.AccessionID] = *src
	return nil
}

func (s *Store) ReadProtocolSourceByID(_ context.Context, id string) (*definitioncatalog.ProtocolSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[id]
	if !ok {
		return nil, workcellerrors.ErrNotFound
	}
	return &src, nil
}

func (s *Store) UpdateProtocolSource(_ context.Context, src *definitioncatalog.ProtocolSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.sources[src.AccessionID]
	if !ok {
		return workcellerrors.ErrNotFound
	}
	src.CreatedAt = existing.CreatedAt
	src.UpdatedAt = s.clock.Now()
	s.sources[src.AccessionID] = *src
	return nil
}

func page[T any](items []*T, opts definitioncatalog.ListOptions) []*T {
	start := opts.Offset
	if start < 0 || start > len(items) {
		start = len(items)
	}
	end := len(items)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return items[start:end]
}
