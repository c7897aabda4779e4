// Package mongo is the MongoDB-backed assetlock.Manager. It performs the
// acquire-time check-and-flip as a single FindOneAndUpdate against the
// same collections assetstore/mongo writes to, so the lock is visible to
// any query of the asset's status column and survives process restarts.
//
// An optional Redis cache (github.com/redis/go-redis/v9, wired the way
// goa.design/pulse wraps Redis in features/stream/pulse/clients/pulse)
// fronts CheckAssetAvailability with a fast path; Redis is advisory only
// and is never consulted by AcquireAssetLock or ReleaseAssetLock.
package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"golang.org/x/time/rate"

	"github.com/autolab-io/workcellcore/assetlock"
)

const (
	defaultPollInterval = 200 * time.Millisecond
	defaultOpTimeout    = 5 * time.Second
	cacheTTL            = 30 * time.Second
)

// Options configures the Mongo-backed Manager.
type Options struct {
	Client      *mongodriver.Client
	Database    string
	Collections struct {
		Machines  string
		Resources string
		Decks     string
	}
	Timeout time.Duration

	// Cache is an optional Redis client backing CheckAssetAvailability's
	// fast path. Nil disables the cache; every check falls through to
	// Mongo.
	Cache *redis.Client
	// PollInterval paces AcquireAssetLock's cooperative poll when
	// AcquireInput.TimeoutSeconds is set. Defaults to 200ms.
	PollInterval time.Duration
}

// Manager implements assetlock.Manager against MongoDB.
type Manager struct {
	machines  *mongodriver.Collection
	resources *mongodriver.Collection
	decks     *mongodriver.Collection
	timeout   time.Duration
	cache     *redis.Client
	pollEvery time.Duration
}

var _ assetlock.Manager = (*Manager)(nil)

// New returns a Manager sharing collections with an assetstore/mongo.Store
// constructed against the same Database/Collections.
func New(opts Options) (*Manager, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	machinesColl := opts.Collections.Machines
	if machinesColl == "" {
		machinesColl = "workcell_machines"
	}
	resourcesColl := opts.Collections.Resources
	if resourcesColl == "" {
		resourcesColl = "workcell_resources"
	}
	decksColl := opts.Collections.Decks
	if decksColl == "" {
		decksColl = "workcell_decks"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	pollEvery := opts.PollInterval
	if pollEvery <= 0 {
		pollEvery = defaultPollInterval
	}

	db := opts.Client.Database(opts.Database)
	return &Manager{
		machines:  db.Collection(machinesColl),
		resources: db.Collection(resourcesColl),
		decks:     db.Collection(decksColl),
		timeout:   timeout,
		cache:     opts.Cache,
		pollEvery: pollEvery,
	}, nil
}

func (m *Manager) collection(kind assetlock.Kind) *mongodriver.Collection {
	switch kind {
	case assetlock.KindMachine:
		return m.machines
	case assetlock.KindDeck:
		return m.decks
	default:
		return m.resources
	}
}

func availableFilter(kind assetlock.Kind, assetName string) bson.M {
	if kind == assetlock.KindMachine {
		return bson.M{"name": assetName, "status": "AVAILABLE"}
	}
	return bson.M{"name": assetName, "status": bson.M{"$in": []string{"AVAILABLE_IN_STORAGE", "AVAILABLE_ON_DECK"}}}
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, m.timeout)
}

// AcquireAssetLock performs one atomic FindOneAndUpdate per attempt. When
// in.TimeoutSeconds is positive and the first attempt finds no available
// candidate, it retries on a rate.Limiter-paced cooperative poll until the
// deadline — never a blocking call into the store, just repeated short
// round trips.
func (m *Manager) AcquireAssetLock(ctx context.Context, in assetlock.AcquireInput) (bool, error) {
	ok, err := m.tryAcquire(ctx, in)
	if err != nil || ok || in.TimeoutSeconds <= 0 {
		return ok, err
	}

	deadline := time.Now().Add(time.Duration(in.TimeoutSeconds) * time.Second)
	limiter := rate.NewLimiter(rate.Every(m.pollEvery), 1)
	for time.Now().Before(deadline) {
		if err := limiter.Wait(ctx); err != nil {
			return false, nil
		}
		ok, err := m.tryAcquire(ctx, in)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (m *Manager) tryAcquire(ctx context.Context, in assetlock.AcquireInput) (bool, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"status":                "IN_USE",
		"currentprotocolrunid":  in.ProtocolRunID,
		"lockreservationid":     in.ReservationID,
	}}
	res := m.collection(in.Kind).FindOneAndUpdate(ctx, availableFilter(in.Kind, in.AssetName), update)
	if err := res.Err(); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return false, nil
		}
		return false, err
	}
	m.invalidateCache(ctx, in.Kind, in.AssetName)
	return true, nil
}

func (m *Manager) ReleaseAssetLock(ctx context.Context, kind assetlock.Kind, assetName, reservationID, protocolRunID string) (bool, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"name": assetName, "lockreservationid": reservationID}
	if protocolRunID != "" {
		filter["currentprotocolrunid"] = protocolRunID
	}
	res, err := m.collection(kind).UpdateOne(ctx, filter, bson.M{"$set": bson.M{"lockreservationid": ""}})
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 0 {
		return false, nil
	}
	m.invalidateCache(ctx, kind, assetName)
	return true, nil
}

func (m *Manager) ReleaseAllProtocolLocks(ctx context.Context, protocolRunID string) (int, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	total := 0
	filter := bson.M{"currentprotocolrunid": protocolRunID, "lockreservationid": bson.M{"$ne": ""}}

	machineUpdate := bson.M{"$set": bson.M{"status": "OFFLINE", "currentprotocolrunid": "", "lockreservationid": ""}}
	res, err := m.machines.UpdateMany(ctx, filter, machineUpdate)
	if err != nil {
		return total, err
	}
	total += int(res.ModifiedCount)

	idleUpdate := bson.M{"$set": bson.M{"status": "AVAILABLE_IN_STORAGE", "currentprotocolrunid": "", "lockreservationid": ""}}
	res, err = m.resources.UpdateMany(ctx, filter, idleUpdate)
	if err != nil {
		return total, err
	}
	total += int(res.ModifiedCount)

	res, err = m.decks.UpdateMany(ctx, filter, idleUpdate)
	if err != nil {
		return total, err
	}
	total += int(res.ModifiedCount)

	return total, nil
}

func (m *Manager) CheckAssetAvailability(ctx context.Context, kind assetlock.Kind, assetName string) (*assetlock.Availability, error) {
	if av := m.cacheGet(ctx, kind, assetName); av != nil {
		return av, nil
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	var doc struct {
		Name                 string `bson:"name"`
		Status               string `bson:"status"`
		CurrentProtocolRunID string `bson:"currentprotocolrunid"`
		LockReservationID    string `bson:"lockreservationid"`
	}
	err := m.collection(kind).FindOne(ctx, bson.M{"name": assetName}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	av := &assetlock.Availability{
		AssetName:     doc.Name,
		Status:        doc.Status,
		Locked:        doc.LockReservationID != "",
		ProtocolRunID: doc.CurrentProtocolRunID,
		ReservationID: doc.LockReservationID,
	}
	m.cacheSet(ctx, kind, av)
	return av, nil
}

func cacheKey(kind assetlock.Kind, assetName string) string {
	return "workcell:lock:" + string(kind) + ":" + assetName
}

func (m *Manager) invalidateCache(ctx context.Context, kind assetlock.Kind, assetName string) {
	if m.cache == nil {
		return
	}
	m.cache.Del(ctx, cacheKey(kind, assetName))
}

func (m *Manager) cacheGet(ctx context.Context, kind assetlock.Kind, assetName string) *assetlock.Availability {
	if m.cache == nil {
		return nil
	}
	data, err := m.cache.HGetAll(ctx, cacheKey(kind, assetName)).Result()
	if err != nil || len(data) == 0 {
		return nil
	}
	return &assetlock.Availability{
		AssetName:     assetName,
		Status:        data["status"],
		Locked:        data["lockreservationid"] != "",
		ProtocolRunID: data["currentprotocolrunid"],
		ReservationID: data["lockreservationid"],
	}
}

func (m *Manager) cacheSet(ctx context.Context, kind assetlock.Kind, av *assetlock.Availability) {
	if m.cache == nil {
		return
	}
	key := cacheKey(kind, av.AssetName)
	m.cache.HSet(ctx, key, map[string]any{
		"status":                av.Status,
		"currentprotocolrunid":  av.ProtocolRunID,
		"lockreservationid":     av.ReservationID,
	})
	m.cache.Expire(ctx, key, cacheTTL)
}
