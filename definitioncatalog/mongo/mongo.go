// Package mongo is the MongoDB-backed implementation of
// definitioncatalog.Store, one collection per catalog, following the same
// thin-wrapper pattern as assetstore/mongo.
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

	"github.com/autolab-io/workcellcore/definitioncatalog"
	"github.com/autolab-io/workcellcore/identity"
	"github.com/autolab-io/workcellcore/workcellerrors"
)

const (
	defaultTimeout = 5 * time.Second
	clientName     = "definitioncatalog-mongo"
)

// Options configures the Mongo-backed Store.
type Options struct {
	Client      *mongodriver.Client
	Database    string
	Collections struct {
		ResourceDefinitions string
		MachineDefinitions  string
		DeckDefinitions     string
		ProtocolDefinitions string
		ProtocolSources     string
	}
	Timeout time.Duration
	Clock   identity.Clock
}

// Store implements definitioncatalog.Store and health.Pinger against MongoDB.
type Store struct {
	mongo        *mongodriver.Client
	resourceDefs *mongodriver.Collection
	machineDefs  *mongodriver.Collection
	deckDefs     *mongodriver.Collection
	protocolDefs *mongodriver.Collection
	sources      *mongodriver.Collection
	timeout      time.Duration
	clock        identity.Clock
}

var _ definitioncatalog.Store = (*Store)(nil)
var _ health.Pinger = (*Store)(nil)

func collOrDefault(name, def string) string {
	if name == "" {
		return def
	}
	return name
}

// New returns a Store backed by the provided MongoDB client and ensures the
// uniqueness indexes the catalog requires.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	clock := opts.Clock
	if clock == nil {
		clock = identity.UTCClock{}
	}
	db := opts.Client.Database(opts.Database)
	s := &Store{
		mongo:        opts.Client,
		resourceDefs: db.Collection(collOrDefault(opts.Collections.ResourceDefinitions, "resource_definitions")),
		machineDefs:  db.Collection(collOrDefault(opts.Collections.MachineDefinitions, "machine_definitions")),
		deckDefs:     db.Collection(collOrDefault(opts.Collections.DeckDefinitions, "deck_definitions")),
		protocolDefs: db.Collection(collOrDefault(opts.Collections.ProtocolDefinitions, "function_protocol_definitions")),
		sources:      db.Collection(collOrDefault(opts.Collections.ProtocolSources, "protocol_sources")),
		timeout:      timeout,
		clock:        clock,
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
	unique := options.Index().SetUnique(true)
	for _, idx := range []struct {
		coll *mongodriver.Collection
		keys bson.D
	}{
		{s.resourceDefs, bson.D{{Key: "fqn", Value: 1}}},
		{s.resourceDefs, bson.D{{Key: "name", Value: 1}}},
		{s.machineDefs, bson.D{{Key: "fqn", Value: 1}}},
		{s.machineDefs, bson.D{{Key: "name", Value: 1}}},
		{s.deckDefs, bson.D{{Key: "fqn", Value: 1}}},
		{s.deckDefs, bson.D{{Key: "name", Value: 1}}},
		{s.protocolDefs, bson.D{{Key: "name", Value: 1}, {Key: "version", Value: 1}, {Key: "sourcerepositoryid", Value: 1}, {Key: "commithash", Value: 1}, {Key: "filesystemsourceid", Value: 1}, {Key: "sourcefilepathfs", Value: 1}}},
	} {
		if _, err := idx.coll.Indexes().CreateOne(ctx, mongodriver.IndexModel{Keys: idx.keys, Options: unique}); err != nil {
			return err
		}
	}
	return nil
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
				return workcellerrors.NewConflict(workcellerrors.ConflictUniqueness, entity, "fqn/name", name, err)
			}
		}
	}
	return err
}

func applyPage(opts *options.FindOptionsBuilder, page definitioncatalog.ListOptions) {
	if page.Limit > 0 {
		opts.SetLimit(int64(page.Limit))
	}
	if page.Offset > 0 {
		opts.SetSkip(int64(page.Offset))
	}
}

func (s *Store) CreateResourceDefinition(ctx context.Context, d *definitioncatalog.ResourceDefinition) error {
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
	_, err := s.resourceDefs.InsertOne(ctx, d)
	return wrapWriteErr(err, "resource_definition", d.Name)
}

func (s *Store) ReadResourceDefinitionByID(ctx context.Context, id string) (*definitioncatalog.ResourceDefinition, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var d definitioncatalog.ResourceDefinition
	if err := s.resourceDefs.FindOne(ctx, bson.M{"accessionid": id}).Decode(&d); err != nil {
		return nil, wrapReadErr(err)
	}
	return &d, nil
}

func (s *Store) ReadResourceDefinitionByFQN(ctx context.Context, fqn string) (*definitioncatalog.ResourceDefinition, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var d definitioncatalog.ResourceDefinition
	if err := s.resourceDefs.FindOne(ctx, bson.M{"fqn": fqn}).Decode(&d); err != nil {
		return nil, wrapReadErr(err)
	}
	return &d, nil
}

func (s *Store) ReadResourceDefinitionByName(ctx context.Context, name string) (*definitioncatalog.ResourceDefinition, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var d definitioncatalog.ResourceDefinition
	if err := s.resourceDefs.FindOne(ctx, bson.M{"name": name}).Decode(&d); err != nil {
		return nil, wrapReadErr(err)
	}
	return &d, nil
}

func (s *Store) ListResourceDefinitions(ctx context.Context, filter definitioncatalog.ResourceDefinitionFilter, opts definitioncatalog.ListOptions) ([]*definitioncatalog.ResourceDefinition, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	q := bson.M{}
	if filter.ManufacturerContains != "" {
		q["manufacturer"] = bson.M{"$regex": filter.ManufacturerContains}
	}
	if filter.IsConsumable != nil {
		q["isconsumable"] = *filter.IsConsumable
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	applyPage(findOpts, opts)
	cur, err := s.resourceDefs.Find(ctx, q, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*definitioncatalog.ResourceDefinition
	for cur.Next(ctx) {
		var d definitioncatalog.ResourceDefinition
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, cur.Err()
}

func (s *Store) UpdateResourceDefinition(ctx context.Context, d *definitioncatalog.ResourceDefinition) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	d.UpdatedAt = s.clock.Now()
	res, err := s.resourceDefs.ReplaceOne(ctx, bson.M{"accessionid": d.AccessionID}, d)
	if err != nil {
		return wrapWriteErr(err, "resource_definition", d.Name)
	}
	if res.MatchedCount == 0 {
		return workcellerrors.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteResourceDefinition(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.resourceDefs.DeleteOne(ctx, bson.M{"accessionid": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return workcellerrors.ErrNotFound
	}
	return nil
}

func (s *Store) CreateMachineDefinition(ctx context.Context, d *definitioncatalog.MachineDefinition) error {
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
	_, err := s.machineDefs.InsertOne(ctx, d)
	return wrapWriteErr(err, "machine_definition", d.Name)
}

func (s *Store) ReadMachineDefinitionByID(ctx context.Context, id string) (*definitioncatalog.MachineDefinition, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var d definitioncatalog.MachineDefinition
	if err := s.machineDefs.FindOne(ctx, bson.M{"accessionid": id}).Decode(&d); err != nil {
		return nil, wrapReadErr(err)
	}
	return &d, nil
}

func (s *Store) ReadMachineDefinitionByFQN(ctx context.Context, fqn string) (*definitioncatalog.MachineDefinition, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var d definitioncatalog.MachineDefinition
	if err := s.machineDefs.FindOne(ctx, bson.M{"fqn": fqn}).Decode(&d); err != nil {
		return nil, wrapReadErr(err)
	}
	return &d, nil
}

func (s *Store) ListMachineDefinitions(ctx context.Context, filter definitioncatalog.MachineDefinitionFilter, opts definitioncatalog.ListOptions) ([]*definitioncatalog.MachineDefinition, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	q := bson.M{}
	if filter.MachineCategory != "" {
		q["machinecategory"] = filter.MachineCategory
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	applyPage(findOpts, opts)
	cur, err := s.machineDefs.Find(ctx, q, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*definitioncatalog.MachineDefinition
	for cur.Next(ctx) {
		var d definitioncatalog.MachineDefinition
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, cur.Err()
}

func (s *Store) UpdateMachineDefinition(ctx context.Context, d *definitioncatalog.MachineDefinition) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	d.UpdatedAt = s.clock.Now()
	res, err := s.machineDefs.ReplaceOne(ctx, bson.M{"accessionid": d.AccessionID}, d)
	if err != nil {
		return wrapWriteErr(err, "machine_definition", d.Name)
	}
	if res.MatchedCount == 0 {
		return workcellerrors.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteMachineDefinition(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.machineDefs.DeleteOne(ctx, bson.M{"accessionid": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return workcellerrors.ErrNotFound
	}
	return nil
}

func (s *Store) CreateDeckDefinition(ctx context.Context, d *definitioncatalog.DeckDefinition) error {
	seen := make(map[string]bool, len(d.Positions))
	for _, p := range d.Positions {
		if seen[p.Name] {
			return workcellerrors.NewConflict(workcellerrors.ConflictUniqueness, "deck_position_definition", "name", p.Name, nil)
		}
		seen[p.Name] = true
	}
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
	_, err := s.deckDefs.InsertOne(ctx, d)
	return wrapWriteErr(err, "deck_definition", d.Name)
}

func (s *Store) ReadDeckDefinitionByID(ctx context.Context, id string) (*definitioncatalog.DeckDefinition, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var d definitioncatalog.DeckDefinition
	if err := s.deckDefs.FindOne(ctx, bson.M{"accessionid": id}).Decode(&d); err != nil {
		return nil, wrapReadErr(err)
	}
	return &d, nil
}

func (s *Store) ReadDeckDefinitionByFQN(ctx context.Context, fqn string) (*definitioncatalog.DeckDefinition, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var d definitioncatalog.DeckDefinition
	if err := s.deckDefs.FindOne(ctx, bson.M{"fqn": fqn}).Decode(&d); err != nil {
		return nil, wrapReadErr(err)
	}
	return &d, nil
}

func (s *Store) UpdateDeckDefinition(ctx context.Context, d *definitioncatalog.DeckDefinition) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	d.UpdatedAt = s.clock.Now()
	res, err := s.deckDefs.ReplaceOne(ctx, bson.M{"accessionid": d.AccessionID}, d)
	if err != nil {
		return wrapWriteErr(err, "deck_definition", d.Name)
	}
	if res.MatchedCount == 0 {
		return workcellerrors.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteDeckDefinition(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.deckDefs.DeleteOne(ctx, bson.M{"accessionid": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return workcellerrors.ErrNotFound
	}
	return nil
}

func (s *Store) CreateProtocolDefinition(ctx context.Context, d *definitioncatalog.FunctionProtocolDefinition) error {
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
	_, err := s.protocolDefs.InsertOne(ctx, d)
	return wrapWriteErr(err, "function_protocol_definition", d.Name)
}

func (s *Store) ReadProtocolDefinitionByID(ctx context.Context, id string) (*definitioncatalog.FunctionProtocolDefinition, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var d definitioncatalog.FunctionProtocolDefinition
	if err := s.protocolDefs.FindOne(ctx, bson.M{"accessionid": id}).Decode(&d); err != nil {
		return nil, wrapReadErr(err)
	}
	return &d, nil
}

func (s *Store) ReadProtocolDefinitionByFQN(ctx context.Context, fqn string) (*definitioncatalog.FunctionProtocolDefinition, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var d definitioncatalog.FunctionProtocolDefinition
	if err := s.protocolDefs.FindOne(ctx, bson.M{"fqn": fqn}).Decode(&d); err != nil {
		return nil, wrapReadErr(err)
	}
	return &d, nil
}

func (s *Store) ListProtocolDefinitions(ctx context.Context, filter definitioncatalog.ProtocolDefinitionFilter, opts definitioncatalog.ListOptions) ([]*definitioncatalog.FunctionProtocolDefinition, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	q := bson.M{}
	if filter.Category != "" {
		q["category"] = filter.Category
	}
	if filter.Deprecated != nil {
		q["deprecated"] = *filter.Deprecated
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	applyPage(findOpts, opts)
	cur, err := s.protocolDefs.Find(ctx, q, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*definitioncatalog.FunctionProtocolDefinition
	for cur.Next(ctx) {
		var d definitioncatalog.FunctionProtocolDefinition
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, cur.Err()
}

func (s *Store) UpdateProtocolDefinition(ctx context.Context, d *definitioncatalog.FunctionProtocolDefinition) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	d.UpdatedAt = s.clock.Now()
	res, err := s.protocolDefs.ReplaceOne(ctx, bson.M{"accessionid": d.AccessionID}, d)
	if err != nil {
		return wrapWriteErr(err, "function_protocol_definition", d.Name)
	}
	if res.MatchedCount == 0 {
		return workcellerrors.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteProtocolDefinition(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.protocolDefs.DeleteOne(ctx, bson.M{"accessionid": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return workcellerrors.ErrNotFound
	}
	return nil
}

func (s *Store) CreateProtocolSource(ctx context.Context, src *definitioncatalog.ProtocolSource) error {
	if src.AccessionID == "" {
		id, err := identity.NewAccessionID()
		if err != nil {
			return err
		}
		src.AccessionID = id
	}
	now := s.clock.Now()
	src.CreatedAt, src.UpdatedAt = now, now
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.sources.InsertOne(ctx, src)
	return err
}

func (s *Store) ReadProtocolSourceByID(ctx context.Context, id string) (*definitioncatalog.ProtocolSource, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var src definitioncatalog.ProtocolSource
	if err := s.sources.FindOne(ctx, bson.M{"accessionid": id}).Decode(&src); err != nil {
		return nil, wrapReadErr(err)
	}
	return &src, nil
}

func (s *Store) UpdateProtocolSource(ctx context.Context, src *definitioncatalog.ProtocolSource) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	src.UpdatedAt = s.clock.Now()
	res, err := s.sources.ReplaceOne(ctx, bson.M{"accessionid": src.AccessionID}, src)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return workcellerrors.ErrNotFound
	}
	return nil
}
