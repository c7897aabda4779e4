// Package mongo is the MongoDB-backed implementation of assetstore.Store,
// following the thin-wrapper-over-a-driver-client pattern used throughout
// this module's storage layer (see features/run/mongo/clients/mongo for the
// originating shape). One collection per concrete asset kind.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"goa.design/clue/health"

	"github.com/autolab-io/workcellcore/assetstore"
	"github.com/autolab-io/workcellcore/identity"
	"github.com/autolab-io/workcellcore/workcellerrors"
)

const (
	defaultMachinesCollection  = "workcell_machines"
	defaultResourcesCollection = "workcell_resources"
	defaultDecksCollection     = "workcell_decks"
	defaultWorkcellsCollection = "workcells"
	defaultOpTimeout           = 5 * time.Second
	clientName                 = "assetstore-mongo"
)

// Options configures the Mongo-backed Store.
type Options struct {
	Client      *mongodriver.Client
	Database    string
	Collections struct {
		Machines  string
		Resources string
		Decks     string
		Workcells string
	}
	Timeout time.Duration
	Clock   identity.Clock
}

// Store implements assetstore.Store and health.Pinger against MongoDB.
type Store struct {
	mongo     *mongodriver.Client
	machines  *mongodriver.Collection
	resources *mongodriver.Collection
	decks     *mongodriver.Collection
	workcells *mongodriver.Collection
	timeout   time.Duration
	clock     identity.Clock
}

var _ assetstore.Store = (*Store)(nil)
var _ health.Pinger = (*Store)(nil)

// New returns a Store backed by the provided MongoDB client and ensures the
// uniqueness indexes the asset model requires (asset.name,
// machine.serial_number).
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	machinesColl := opts.Collections.Machines
	if machinesColl == "" {
		machinesColl = defaultMachinesCollection
	}
	resourcesColl := opts.Collections.Resources
	if resourcesColl == "" {
		resourcesColl = defaultResourcesCollection
	}
	decksColl := opts.Collections.Decks
	if decksColl == "" {
		decksColl = defaultDecksCollection
	}
	workcellsColl := opts.Collections.Workcells
	if workcellsColl == "" {
		workcellsColl = defaultWorkcellsCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	clock := opts.Clock
	if clock == nil {
		clock = identity.UTCClock{}
	}

	db := opts.Client.Database(opts.Database)
	s := &Store{
		mongo:     opts.Client,
		machines:  db.Collection(machinesColl),
		resources: db.Collection(resourcesColl),
		decks:     db.Collection(decksColl),
		workcells: db.Collection(workcellsColl),
		timeout:   timeout,
		clock:     clock,
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	uniqueName := mongodriver.IndexModel{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)}
	if _, err := s.machines.Indexes().CreateOne(ctx, uniqueName); err != nil {
		return err
	}
	if _, err := s.resources.Indexes().CreateOne(ctx, uniqueName); err != nil {
		return err
	}
	if _, err := s.decks.Indexes().CreateOne(ctx, uniqueName); err != nil {
		return err
	}
	serialIdx := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "serialnumber", Value: 1}},
		Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.D{{Key: "serialnumber", Value: bson.D{{Key: "$exists", Value: true}, {Key: "$ne", Value: ""}}}}),
	}
	_, err := s.machines.Indexes().CreateOne(ctx, serialIdx)
	return err
}

// Name implements health.Pinger.
func (s *Store) Name() string { return clientName }

// Ping implements health.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.mongo.Ping(ctx, readpref.Primary())
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) CreateMachine(ctx context.Context, m *assetstore.Machine) error {
	if m.AccessionID == "" {
		id, err := identity.NewAccessionID()
		if err != nil {
			return err
		}
		m.AccessionID = id
	}
	now := s.clock.Now()
	m.CreatedAt, m.UpdatedAt = now, now
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.machines.InsertOne(ctx, m)
	return wrapWriteErr(err, "machine", m.Name)
}

func (s *Store) ReadMachineByID(ctx context.Context, id string) (*assetstore.Machine, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var m assetstore.Machine
	if err := s.machines.FindOne(ctx, bson.M{"accessionid": id}).Decode(&m); err != nil {
		return nil, wrapReadErr(err)
	}
	return &m, nil
}

func (s *Store) ReadMachineByName(ctx context.Context, name string) (*assetstore.Machine, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var m assetstore.Machine
	if err := s.machines.FindOne(ctx, bson.M{"name": name}).Decode(&m); err != nil {
		return nil, wrapReadErr(err)
	}
	return &m, nil
}

func (s *Store) ListMachines(ctx context.Context, filter assetstore.MachineFilter, opts assetstore.ListOptions) ([]*assetstore.Machine, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	q := bson.M{}
	if filter.Status != nil {
		q["status"] = *filter.Status
	}
	if filter.FQNContains != "" {
		q["fqn"] = bson.M{"$regex": filter.FQNContains}
	}
	if filter.WorkcellID != "" {
		q["workcellid"] = filter.WorkcellID
	}
	if filter.CurrentProtocolRunID != "" {
		q["currentprotocolrunid"] = filter.CurrentProtocolRunID
	}
	if filter.NameContains != "" {
		q["name"] = bson.M{"$regex": filter.NameContains}
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	applyPage(findOpts, opts)
	cur, err := s.machines.Find(ctx, q, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*assetstore.Machine
	for cur.Next(ctx) {
		var m assetstore.Machine
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, cur.Err()
}

func (s *Store) UpdateMachine(ctx context.Context, m *assetstore.Machine) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	m.UpdatedAt = s.clock.Now()
	res, err := s.machines.ReplaceOne(ctx, bson.M{"accessionid": m.AccessionID}, m)
	if err != nil {
		return wrapWriteErr(err, "machine", m.Name)
	}
	if res.MatchedCount == 0 {
		return workcellerrors.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteMachine(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	count, err := s.resources.CountDocuments(ctx, bson.M{"machinecounterpartid": id})
	if err != nil {
		return err
	}
	if count > 0 {
		return workcellerrors.NewConflict(workcellerrors.ConflictFK, "machine", "accession_id", id, nil)
	}
	res, err := s.machines.DeleteOne(ctx, bson.M{"accessionid": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return workcellerrors.ErrNotFound
	}
	return nil
}

func (s *Store) CreateResource(ctx context.Context, r *assetstore.Resource) error {
	if r.AccessionID == "" {
		id, err := identity.NewAccessionID()
		if err != nil {
			return err
		}
		r.AccessionID = id
	}
	now := s.clock.Now()
	r.CreatedAt, r.UpdatedAt = now, now
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.resources.InsertOne(ctx, r)
	return wrapWriteErr(err, "resource", r.Name)
}

func (s *Store) ReadResourceByID(ctx context.Context, id string) (*assetstore.Resource, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var r assetstore.Resource
	if err := s.resources.FindOne(ctx, bson.M{"accessionid": id}).Decode(&r); err != nil {
		return nil, wrapReadErr(err)
	}
	return &r, nil
}

func (s *Store) ReadResourceByName(ctx context.Context, name string) (*assetstore.Resource, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var r assetstore.Resource
	if err := s.resources.FindOne(ctx, bson.M{"name": name}).Decode(&r); err != nil {
		return nil, wrapReadErr(err)
	}
	return &r, nil
}

func (s *Store) ListResources(ctx context.Context, filter assetstore.ResourceFilter, opts assetstore.ListOptions) ([]*assetstore.Resource, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	q := bson.M{}
	if filter.FQN != "" {
		q["fqn"] = filter.FQN
	}
	if filter.Status != nil {
		q["status"] = *filter.Status
	}
	if filter.ParentID != "" {
		q["parentid"] = filter.ParentID
	}
	if filter.WorkcellID != "" {
		q["workcellid"] = filter.WorkcellID
	}
	if filter.OnDeckPosition != "" {
		q["currentdeckpositionname"] = filter.OnDeckPosition
	}
	for k, v := range filter.PropertyFilters {
		q["properties."+k] = v
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	applyPage(findOpts, opts)
	cur, err := s.resources.Find(ctx, q, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*assetstore.Resource
	for cur.Next(ctx) {
		var r assetstore.Resource
		if err := cur.Decode(&r); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, cur.Err()
}

func (s *Store) UpdateResource(ctx context.Context, r *assetstore.Resource) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	r.UpdatedAt = s.clock.Now()
	res, err := s.resources.ReplaceOne(ctx, bson.M{"accessionid": r.AccessionID}, r)
	if err != nil {
		return wrapWriteErr(err, "resource", r.Name)
	}
	if res.MatchedCount == 0 {
		return workcellerrors.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteResource(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	count, err := s.resources.CountDocuments(ctx, bson.M{"parentid": id})
	if err != nil {
		return err
	}
	if count > 0 {
		return workcellerrors.NewConflict(workcellerrors.ConflictFK, "resource", "accession_id", id, nil)
	}
	res, err := s.resources.DeleteOne(ctx, bson.M{"accessionid": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return workcellerrors.ErrNotFound
	}
	return nil
}

func (s *Store) CreateDeck(ctx context.Context, d *assetstore.Deck) error {
	if d.AccessionID == "" {
		id, err := identity.NewAccessionID()
		if err != nil {
			return err
		}
		d.AccessionID = id
	}
	now := s.clock.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.decks.InsertOne(ctx, d)
	return wrapWriteErr(err, "deck", d.Name)
}

func (s *Store) ReadDeckByID(ctx context.Context, id string) (*assetstore.Deck, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var d assetstore.Deck
	if err := s.decks.FindOne(ctx, bson.M{"accessionid": id}).Decode(&d); err != nil {
		return nil, wrapReadErr(err)
	}
	return &d, nil
}

func (s *Store) ReadDeckByName(ctx context.Context, name string) (*assetstore.Deck, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var d assetstore.Deck
	if err := s.decks.FindOne(ctx, bson.M{"name": name}).Decode(&d); err != nil {
		return nil, wrapReadErr(err)
	}
	return &d, nil
}

func (s *Store) ListDecks(ctx context.Context, opts assetstore.ListOptions) ([]*assetstore.Deck, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	findOpts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	applyPage(findOpts, opts)
	cur, err := s.decks.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*assetstore.Deck
	for cur.Next(ctx) {
		var d assetstore.Deck
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, cur.Err()
}

func (s *Store) UpdateDeck(ctx context.Context, d *assetstore.Deck) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	d.UpdatedAt = s.clock.Now()
	res, err := s.decks.ReplaceOne(ctx, bson.M{"accessionid": d.AccessionID}, d)
	if err != nil {
		return wrapWriteErr(err, "deck", d.Name)
	}
	if res.MatchedCount == 0 {
		return workcellerrors.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteDeck(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.decks.DeleteOne(ctx, bson.M{"accessionid": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return workcellerrors.ErrNotFound
	}
	return nil
}

func (s *Store) CreateWorkcell(ctx context.Context, w *assetstore.Workcell) error {
	if w.AccessionID == "" {
		id, err := identity.NewAccessionID()
		if err != nil {
			return err
		}
		w.AccessionID = id
	}
	now := s.clock.Now()
	w.CreatedAt, w.UpdatedAt = now, now
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.workcells.InsertOne(ctx, w)
	return err
}

func (s *Store) ReadWorkcellByID(ctx context.Context, id string) (*assetstore.Workcell, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var w assetstore.Workcell
	if err := s.workcells.FindOne(ctx, bson.M{"accessionid": id}).Decode(&w); err != nil {
		return nil, wrapReadErr(err)
	}
	return &w, nil
}

func applyPage(opts *options.FindOptionsBuilder, page assetstore.ListOptions) {
	if page.Limit > 0 {
		opts.SetLimit(int64(page.Limit))
	}
	if page.Offset > 0 {
		opts.SetSkip(int64(page.Offset))
	}
}

func wrapReadErr(err error) error {
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return workcellerrors.ErrNotFound
	}
	return err
}

func wrapWriteErr(err error, entity, name string) error {
	if err == nil {
		return nil
	}
	var we mongodriver.WriteException
	if errors.As(err, &we) {
		for _, werr := range we.WriteErrors {
			if werr.Code == 11000 {
				return workcellerrors.NewConflict(workcellerrors.ConflictUniqueness, entity, "name", name, err)
			}
		}
	}
	return err
}
