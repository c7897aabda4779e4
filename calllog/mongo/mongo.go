// Package mongo is the MongoDB-backed calllog.Store, following the same
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

	"github.com/autolab-io/workcellcore/calllog"
	"github.com/autolab-io/workcellcore/enums"
	"github.com/autolab-io/workcellcore/identity"
	"github.com/autolab-io/workcellcore/workcellerrors"
)

const (
	defaultCollection = "function_call_logs"
	defaultOpTimeout  = 5 * time.Second
	clientName        = "calllog-mongo"
)

// Options configures the Mongo-backed Store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
	Clock      identity.Clock
}

// Store implements calllog.Store and health.Pinger against MongoDB.
type Store struct {
	mongo   *mongodriver.Client
	calls   *mongodriver.Collection
	timeout time.Duration
	clock   identity.Clock
}

var _ calllog.Store = (*Store)(nil)
var _ health.Pinger = (*Store)(nil)

// New returns a Store and ensures the (protocol_run_id, sequence_in_run)
// unique index.
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

	s := &Store{
		mongo:   opts.Client,
		calls:   opts.Client.Database(opts.Database).Collection(coll),
		timeout: timeout,
		clock:   clock,
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	idx := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "protocolrunid", Value: 1}, {Key: "sequenceinrun", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := s.calls.Indexes().CreateOne(ctx, idx); err != nil {
		return nil, err
	}
	return s, nil
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

func (s *Store) LogCallStart(ctx context.Context, runID, fnDefID string, sequenceInRun int, inputArgs map[string]any, parentCallID string) (string, error) {
	id, err := identity.NewAccessionID()
	if err != nil {
		return "", err
	}
	call := &calllog.FunctionCallLog{
		AccessionID:                  id,
		ProtocolRunID:                runID,
		SequenceInRun:                sequenceInRun,
		ParentFunctionCallLogID:      parentCallID,
		FunctionProtocolDefinitionID: fnDefID,
		StartTime:                    s.clock.Now(),
		Status:                       enums.FunctionCallStatusInProgress,
		InputArgsJSON:                inputArgs,
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.calls.InsertOne(ctx, call); err != nil {
		return "", wrapWriteErr(err, runID, sequenceInRun)
	}
	return id, nil
}

func (s *Store) LogCallEnd(ctx context.Context, callID string, status enums.FunctionCallStatus, returnValue map[string]any, errMessage, errTraceback string, durationMS *int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var existing calllog.FunctionCallLog
	if err := s.calls.FindOne(ctx, bson.M{"accessionid": callID}).Decode(&existing); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil
		}
		return err
	}

	now := s.clock.Now()
	ms := durationMS
	if ms == nil {
		computed := now.Sub(existing.StartTime).Milliseconds()
		ms = &computed
	}
	update := bson.M{"$set": bson.M{
		"endtime":             now,
		"status":              status,
		"returnvaluejson":     returnValue,
		"errormessagetext":    errMessage,
		"errortracebacktext":  errTraceback,
		"completeddurationms": *ms,
	}}
	_, err := s.calls.UpdateOne(ctx, bson.M{"accessionid": callID}, update)
	return err
}

func (s *Store) ReadByID(ctx context.Context, callID string) (*calllog.FunctionCallLog, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var call calllog.FunctionCallLog
	if err := s.calls.FindOne(ctx, bson.M{"accessionid": callID}).Decode(&call); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, workcellerrors.ErrNotFound
		}
		return nil, err
	}
	return &call, nil
}

func (s *Store) ListByRun(ctx context.Context, runID string, opts calllog.ListOptions) ([]*calllog.FunctionCallLog, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	findOpts := options.Find().SetSort(bson.D{{Key: "sequenceinrun", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}
	cur, err := s.calls.Find(ctx, bson.M{"protocolrunid": runID}, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*calllog.FunctionCallLog
	for cur.Next(ctx) {
		var call calllog.FunctionCallLog
		if err := cur.Decode(&call); err != nil {
			return nil, err
		}
		out = append(out, &call)
	}
	return out, cur.Err()
}

func wrapWriteErr(err error, runID string, seq int) error {
	if err == nil {
		return nil
	}
	var we mongodriver.WriteException
	if errors.As(err, &we) {
		for _, werr := range we.WriteErrors {
			if werr.Code == 11000 {
				return workcellerrors.NewConflict(workcellerrors.ConflictUniqueness, "function_call_log", "sequence_in_run", runID, err)
			}
		}
	}
	return err
}
