// Package inmem provides an in-memory implementation of assetstore.Store
// for unit tests and local development, with no durability across process
// restarts. Mirrors runtime/agent/run/inmem's copy-on-read/write discipline
// and sync.RWMutex locking.
package inmem

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/autolab-io/workcellcore/assetstore"
	"github.com/autolab-io/workcellcore/identity"
	"github.com/autolab-io/workcellcore/workcellerrors"
)

// Store implements assetstore.Store in memory. All operations are
// thread-safe via sync.RWMutex; names are indexed in a single namespace
// since asset.name must be globally unique across machines, resources,
// and decks.
type Store struct {
	mu sync.RWMutex

	machines  map[string]assetstore.Machine
	resources map[string]assetstore.Resource
	decks     map[string]assetstore.Deck
	workcells map[string]assetstore.Workcell

	names   map[string]string // name -> accession id, across all three kinds
	serials map[string]string // serial number -> machine accession id

	clock identity.Clock
}

// New constructs an empty Store. clock defaults to identity.UTCClock{} if nil.
func New(clock identity.Clock) *Store {
	if clock == nil {
		clock = identity.UTCClock{}
	}
	return &Store{
		machines:  make(map[string]assetstore.Machine),
		resources: make(map[string]assetstore.Resource),
		decks:     make(map[string]assetstore.Deck),
		workcells: make(map[string]assetstore.Workcell),
		names:     make(map[string]string),
		serials:   make(map[string]string),
		clock:     clock,
	}
}

func (s *Store) CreateMachine(_ context.Context, m *assetstore.Machine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.AccessionID == "" {
		id, err := identity.NewAccessionID()
		if err != nil {
			return err
		}
		m.AccessionID = id
	}
	if err := s.reserveName(m.Name, m.AccessionID); err != nil {
		return err
	}
	if m.SerialNumber != "" {
		if _, exists := s.serials[m.SerialNumber]; exists {
			delete(s.names, strings.ToLower(m.Name))
			return workcellerrors.NewConflict(workcellerrors.ConflictUniqueness, "machine", "serial_number", m.SerialNumber, nil)
		}
		s.serials[m.SerialNumber] = m.AccessionID
	}
	now := s.clock.Now()
	m.CreatedAt = now
	m.UpdatedAt = now
	s.machines[m.AccessionID] = *m
	return nil
}

func (s *Store) ReadMachineByID(_ context.Context, id string) (*assetstore.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.machines[id]
	if !ok {
		return nil, workcellerrors.ErrNotFound
	}
	return &m, nil
}

func (s *Store) ReadMachineByName(_ context.Context, name string) (*assetstore.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.machines {
		if m.Name == name {
			return &m, nil
		}
	}
	return nil, workcellerrors.ErrNotFound
}

func (s *Store) ListMachines(_ context.Context, filter assetstore.MachineFilter, opts assetstore.ListOptions) ([]*assetstore.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*assetstore.Machine
	for _, m := range s.machines {
		m := m
		if filter.Status != nil && m.Status != *filter.Status {
			continue
		}
		if filter.FQNContains != "" && !strings.Contains(m.FQN, filter.FQNContains) {
			continue
		}
		if filter.WorkcellID != "" && m.WorkcellID != filter.WorkcellID {
			continue
		}
		if filter.CurrentProtocolRunID != "" && m.CurrentProtocolRunID != filter.CurrentProtocolRunID {
			continue
		}
		if filter.NameContains != "" && !strings.Contains(m.Name, filter.NameContains) {
			continue
		}
		out = append(out, &m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return paginateMachines(out, opts), nil
}

func (s *Store) UpdateMachine(_ context.Context, m *assetstore.Machine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.machines[m.AccessionID]
	if !ok {
		return workcellerrors.ErrNotFound
	}
	if existing.Name != m.Name {
		delete(s.names, strings.ToLower(existing.Name))
		if err := s.reserveName(m.Name, m.AccessionID); err != nil {
			s.names[strings.ToLower(existing.Name)] = m.AccessionID
			return err
		}
	}
	if existing.SerialNumber != m.SerialNumber {
		if existing.SerialNumber != "" {
			delete(s.serials, existing.SerialNumber)
		}
		if m.SerialNumber != "" {
			if owner, exists := s.serials[m.SerialNumber]; exists && owner != m.AccessionID {
				return workcellerrors.NewConflict(workcellerrors.ConflictUniqueness, "machine", "serial_number", m.SerialNumber, nil)
			}
			s.serials[m.SerialNumber] = m.AccessionID
		}
	}
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = s.clock.Now()
	s.machines[m.AccessionID] = *m
	return nil
}

func (s *Store) DeleteMachine(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.machines[id]
	if !ok {
		return workcellerrors.ErrNotFound
	}
	for _, r := range s.resources {
		if r.MachineCounterpartID == id {
			return workcellerrors.NewConflict(workcellerrors.ConflictFK, "machine", "accession_id", id, nil)
		}
	}
	delete(s.machines, id)
	delete(s.names, strings.ToLower(m.Name))
	if m.SerialNumber != "" {
		delete(s.serials, m.SerialNumber)
	}
	return nil
}

func (s *Store) CreateResource(_ context.Context, r *assetstore.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.AccessionID == "" {
		id, err := identity.NewAccessionID()
		if err != nil {
			return err
		}
		r.AccessionID = id
	}
	if err := s.reserveName(r.Name, r.AccessionID); err != nil {
		return err
	}
	now := s.clock.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	s.resources[r.AccessionID] = *r
	return nil
}

func (s *Store) ReadResourceByID(_ context.Context, id string) (*assetstore.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[id]
	if !ok {
		return nil, workcellerrors.ErrNotFound
	}
	return &r, nil
}

func (s *Store) ReadResourceByName(_ context.Context, name string) (*assetstore.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.resources {
		if r.Name == name {
			return &r, nil
		}
	}
	return nil, workcellerrors.ErrNotFound
}

func (s *Store) ListResources(_ context.Context, filter assetstore.ResourceFilter, opts assetstore.ListOptions) ([]*assetstore.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*assetstore.Resource
	for _, r := range s.resources {
		r := r
		if filter.FQN != "" && r.FQN != filter.FQN {
			continue
		}
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.ParentID != "" && r.ParentID != filter.ParentID {
			continue
		}
		if filter.WorkcellID != "" && r.WorkcellID != filter.WorkcellID {
			continue
		}
		if filter.OnDeckPosition != "" && r.CurrentDeckPositionName != filter.OnDeckPosition {
			continue
		}
		if !matchesProperties(r.Properties, filter.PropertyFilters) {
			continue
		}
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return paginateResources(out, opts), nil
}

func (s *Store) UpdateResource(_ context.Context, r *assetstore.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.resources[r.AccessionID]
	if !ok {
		return workcellerrors.ErrNotFound
	}
	if existing.Name != r.Name {
		delete(s.names, strings.ToLower(existing.Name))
		if err := s.reserveName(r.Name, r.AccessionID); err != nil {
			s.names[strings.ToLower(existing.Name)] = r.AccessionID
			return err
		}
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = s.clock.Now()
	s.resources[r.AccessionID] = *r
	return nil
}

func (s *Store) DeleteResource(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[id]
	if !ok {
		return workcellerrors.ErrNotFound
	}
	for _, other := range s.resources {
		if other.ParentID == id {
			return workcellerrors.NewConflict(workcellerrors.ConflictFK, "resource", "accession_id", id, nil)
		}
	}
	delete(s.resources, id)
	delete(s.names, strings.ToLower(r.Name))
	return nil
}

func (s *Store) CreateDeck(_ context.Context, d *assetstore.Deck) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.AccessionID == "" {
		id, err := identity.NewAccessionID()
		if err != nil {
			return err
		}
		d.AccessionID = id
	}
	if err := s.reserveName(d.Name, d.AccessionID); err != nil {
		return err
	}
	now := s.clock.Now()
	d.CreatedAt = now
	d.UpdatedAt = now
	s.decks[d.AccessionID] = *d
	return nil
}

func (s *Store) ReadDeckByID(_ context.Context, id string) (*assetstore.Deck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decks[id]
	if !ok {
		return nil, workcellerrors.ErrNotFound
	}
	return &d, nil
}

func (s *Store) ReadDeckByName(_ context.Context, name string) (*assetstore.Deck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.decks {
		if d.Name == name {
			return &d, nil
		}
	}
	return nil, workcellerrors.ErrNotFound
}

func (s *Store) ListDecks(_ context.Context, opts assetstore.ListOptions) ([]*assetstore.Deck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*assetstore.Deck
	for _, d := range s.decks {
		d := d
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return paginateDecks(out, opts), nil
}

func (s *Store) UpdateDeck(_ context.Context, d *assetstore.Deck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.decks[d.AccessionID]
	if !ok {
		return workcellerrors.ErrNotFound
	}
	if existing.Name != d.Name {
		delete(s.names, strings.ToLower(existing.Name))
		if err := s.reserveName(d.Name, d.AccessionID); err != nil {
			s.names[strings.ToLower(existing.Name)] = d.AccessionID
			return err
		}
	}
	d.CreatedAt = existing.CreatedAt
	d.UpdatedAt = s.clock.Now()
	s.decks[d.AccessionID] = *d
	return nil
}

func (s *Store) DeleteDeck(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decks[id]
	if !ok {
		return workcellerrors.ErrNotFound
	}
	delete(s.decks, id)
	delete(s.names, strings.ToLower(d.Name))
	return nil
}

func (s *Store) CreateWorkcell(_ context.Context, w *assetstore.Workcell) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.AccessionID == "" {
		id, err := identity.NewAccessionID()
		if err != nil {
			return err
		}
		w.AccessionID = id
	}
	now := s.clock.Now()
	w.CreatedAt = now
	w.UpdatedAt = now
	s.workcells[w.AccessionID] = *w
	return nil
}

func (s *Store) ReadWorkcellByID(_ context.Context, id string) (*assetstore.Workcell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workcells[id]
	if !ok {
		return nil, workcellerrors.ErrNotFound
	}
	return &w, nil
}

// reserveName claims name for accessionID in the cross-kind name namespace.
// Callers hold s.mu for writing.
func (s *Store) reserveName(name, accessionID string) error {
	key := strings.ToLower(name)
	if owner, exists := s.names[key]; exists && owner != accessionID {
		return workcellerrors.NewConflict(workcellerrors.ConflictUniqueness, "asset", "name", name, nil)
	}
	s.names[key] = accessionID
	return nil
}

func matchesProperties(properties, filters map[string]any) bool {
	for k, v := range filters {
		if properties[k] != v {
			return false
		}
	}
	return true
}

func paginateMachines(items []*assetstore.Machine, opts assetstore.ListOptions) []*assetstore.Machine {
	start, end := bounds(len(items), opts)
	return items[start:end]
}

func paginateResources(items []*assetstore.Resource, opts assetstore.ListOptions) []*assetstore.Resource {
	start, end := bounds(len(items), opts)
	return items[start:end]
}

func paginateDecks(items []*assetstore.Deck, opts assetstore.ListOptions) []*assetstore.Deck {
	start, end := bounds(len(items), opts)
	return items[start:end]
}

func bounds(total int, opts assetstore.ListOptions) (int, int) {
	start := opts.Offset
	if start < 0 || start > total {
		start = total
	}
	end := total
	if opts.Limit > 0 && start+opts.Limit < total {
		end = start + opts.Limit
	}
	return start, end
}
