// Package mongo is the MongoDB-backed runstate.Store.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"goa.design/clue/health"

	"github.com/autolab-io/workcellcore/enums"
	"github.com/autolab-io/workcellcore/identity"
	"github.com/autolab-io/workcellcore/runstate"
	"github.com/autolab-io/workcellcore/workcellerrors"
)

const (
	defaultCollection = "protocol_runs"
	defaultOpTimeout  = 5 * time.Second
	clientName        = "runstate-mongo"
)

// Options configures the Mongo-backed Store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
	Clock      identity.Clock
}

// Store implements runstate.Store and health.Pinger against MongoDB.
type Store struct {
	mongo   *mongodriver.Client
	runs    *mongodriver.Collection
	timeout time.Duration
	clock   identity.Clock
}

var _ runstate.Store = (*Store)(nil)
var _ health.Pinger = (*Store)(nil)

// New returns a Store.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	coll := opts.Collection
	if coll == "" {
		coll = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	clock := opts.Clock
	if clock == nil {
		clock = identity.UTCClock{}
	}
	return &Store{
		mongo:   opts.Client,
		runs:    opts.Client.Database(opts.Database).Collection(coll),
		timeout: timeout,
		clock:   clock,
	}, nil
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
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) CreateRun(ctx context.Context, in runstate.CreateInput) (*runstate.Record, error) {
	id, err := identity.NewAccessionID()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	r := &runstate.Record{
		AccessionID:                  id,
		Name:                         in.Name,
		TopLevelProtocolDefinitionID: in.TopLevelProtocolDefinitionID,
		Status:                       enums.ProtocolRunStatusQueued,
		InputParametersJSON:          in.InputParametersJSON,
		InitialStateJSON:             in.InitialStateJSON,
		CreatedAt:                    now,
		UpdatedAt:                    now,
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.runs.InsertOne(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) ReadRunByID(ctx context.Context, runID string) (*runstate.Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var r runstate.Record
	err := s.runs.FindOne(ctx, bson.M{"accessionid": runID}).Decode(&r)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, workcellerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRunStatus reads the run, validates/applies the transition, then
// persists the full record. Not a single atomic Mongo operation: the
// transition graph needs the prior in-memory status to validate against,
// the same read-modify-write shape a session store uses for multi-field
// updates.
func (s *Store) UpdateRunStatus(ctx context.Context, runID string, newStatus enums.ProtocolRunStatus, outputData, finalState, errorInfo map[string]any) (*runstate.Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var r runstate.Record
	err := s.runs.FindOne(ctx, bson.M{"accessionid": runID}).Decode(&r)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if runstate.IsTerminal(r.Status) {
		return &r, nil
	}
	if !runstate.CanTransition(r.Status, newStatus) {
		return nil, workcellerrors.NewInvalidTransition("protocol_run", string(r.Status), string(newStatus))
	}

	now := s.clock.Now()
	if newStatus == enums.ProtocolRunStatusRunning && r.StartTime == nil {
		t := now
		r.StartTime = &t
	}
	if errorInfo != nil {
		if r.OutputDataJSON == nil {
			r.OutputDataJSON = map[string]any{}
		}
		r.OutputDataJSON["error"] = errorInfo
	}
	if outputData != nil {
		r.OutputDataJSON = mergeMaps(r.OutputDataJSON, outputData)
	}
	if finalState != nil {
		r.FinalStateJSON = mergeMaps(r.FinalStateJSON, finalState)
	}
	r.Status = newStatus
	if runstate.IsTerminal(newStatus) {
		t := now
		r.EndTime = &t
		if r.StartTime != nil {
			d := t.Sub(*r.StartTime).Milliseconds()
			r.CompletedDurationMS = &d
		}
	}
	r.UpdatedAt = now

	set := bson.M{
		"status":              r.Status,
		"outputdatajson":      r.OutputDataJSON,
		"finalstatejson":      r.FinalStateJSON,
		"starttime":           r.StartTime,
		"endtime":             r.EndTime,
		"completeddurationms": r.CompletedDurationMS,
		"updatedat":           r.UpdatedAt,
	}
	if _, err := s.runs.UpdateOne(ctx, bson.M{"accessionid": runID}, bson.M{"$set": set}); err != nil {
		return nil, err
	}
	return &r, nil
}

func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
