// Package mongo is the MongoDB-backed dataoutput.Store.
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

	"github.com/autolab-io/workcellcore/dataoutput"
	"github.com/autolab-io/workcellcore/enums"
	"github.com/autolab-io/workcellcore/identity"
	"github.com/autolab-io/workcellcore/workcellerrors"
)

const (
	defaultOutputsCollection = "function_data_outputs"
	defaultWellsCollection   = "well_data_outputs"
	defaultOpTimeout         = 5 * time.Second
	clientName               = "dataoutput-mongo"
)

// Options configures the Mongo-backed Store.
type Options struct {
	Client      *mongodriver.Client
	Database    string
	Collections struct {
		Outputs string
		Wells   string
	}
	Timeout time.Duration
	Clock   identity.Clock
}

// Store implements dataoutput.Store and health.Pinger against MongoDB.
type Store struct {
	mongo   *mongodriver.Client
	outputs *mongodriver.Collection
	wells   *mongodriver.Collection
	timeout time.Duration
	clock   identity.Clock
}

var _ dataoutput.Store = (*Store)(nil)
var _ health.Pinger = (*Store)(nil)

// New returns a Store and ensures supporting indexes.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	outputsColl := opts.Collections.Outputs
	if outputsColl == "" {
		outputsColl = defaultOutputsCollection
	}
	wellsColl := opts.Collections.Wells
	if wellsColl == "" {
		wellsColl = defaultWellsCollection
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
		mongo:   opts.Client,
		outputs: db.Collection(outputsColl),
		wells:   db.Collection(wellsColl),
		timeout: timeout,
		clock:   clock,
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	callIdx := mongodriver.IndexModel{Keys: bson.D{{Key: "functioncalllogid", Value: 1}}}
	if _, err := s.outputs.Indexes().CreateOne(ctx, callIdx); err != nil {
		return nil, err
	}
	plateIdx := mongodriver.IndexModel{Keys: bson.D{{Key: "plateresourceid", Value: 1}}}
	if _, err := s.wells.Indexes().CreateOne(ctx, plateIdx); err != nil {
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

func (s *Store) CreateFunctionDataOutput(ctx context.Context, o *dataoutput.FunctionDataOutput) error {
	if o.AccessionID == "" {
		id, err := identity.NewAccessionID()
		if err != nil {
			return err
		}
		o.AccessionID = id
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = s.clock.Now()
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.outputs.InsertOne(ctx, o)
	return err
}

func (s *Store) ListByCall(ctx context.Context, functionCallLogID string, opts dataoutput.ListOptions) ([]*dataoutput.FunctionDataOutput, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	findOpts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}
	cur, err := s.outputs.Find(ctx, bson.M{"functioncalllogid": functionCallLogID}, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*dataoutput.FunctionDataOutput
	for cur.Next(ctx) {
		var o dataoutput.FunctionDataOutput
		if err := cur.Decode(&o); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, cur.Err()
}

func (s *Store) CreateWellDataOutputsFromFlatArray(ctx context.Context, functionDataOutputID, plateResourceID string, dataArray []float64, rows, columns int, columnMajor bool) ([]*dataoutput.WellDataOutput, error) {
	if len(dataArray) != rows*columns {
		return nil, workcellerrors.NewDimensionMismatch(rows*columns, len(dataArray))
	}

	docs := make([]any, 0, len(dataArray))
	out := make([]*dataoutput.WellDataOutput, 0, len(dataArray))
	for idx, v := range dataArray {
		row, col := dataoutput.WellCoordinates(idx, rows, columns, columnMajor)
		id, err := identity.NewAccessionID()
		if err != nil {
			return nil, err
		}
		well := &dataoutput.WellDataOutput{
			AccessionID:          id,
			FunctionDataOutputID: functionDataOutputID,
			PlateResourceID:      plateResourceID,
			WellName:             dataoutput.WellName(row, col),
			WellRow:              row,
			WellColumn:           col,
			WellIndex:            idx,
			DataValue:            v,
		}
		out = append(out, well)
		docs = append(docs, well)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.wells.InsertMany(ctx, docs); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetPlateVisualizationData(ctx context.Context, plateResourceID string, dataType *enums.DataOutputType) (*dataoutput.VisualizationData, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cur, err := s.wells.Find(ctx, bson.M{"plateresourceid": plateResourceID}, options.Find().SetSort(bson.D{{Key: "wellindex", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var wells []*dataoutput.WellDataOutput
	for cur.Next(ctx) {
		var w dataoutput.WellDataOutput
		if err := cur.Decode(&w); err != nil {
			return nil, err
		}
		wells = append(wells, &w)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	if len(wells) == 0 {
		return nil, nil
	}

	if dataType != nil {
		parentIDs := make(map[string]bool)
		outCur, err := s.outputs.Find(ctx, bson.M{"datatype": *dataType})
		if err != nil {
			return nil, err
		}
		defer outCur.Close(ctx)
		for outCur.Next(ctx) {
			var o dataoutput.FunctionDataOutput
			if err := outCur.Decode(&o); err != nil {
				return nil, err
			}
			parentIDs[o.AccessionID] = true
		}
		filtered := wells[:0]
		for _, w := range wells {
			if parentIDs[w.FunctionDataOutputID] {
				filtered = append(filtered, w)
			}
		}
		wells = filtered
	}
	if len(wells) == 0 {
		return nil, nil
	}

	minV, maxV := wells[0].DataValue, wells[0].DataValue
	for _, w := range wells {
		if w.DataValue < minV {
			minV = w.DataValue
		}
		if w.DataValue > maxV {
			maxV = w.DataValue
		}
	}
	return &dataoutput.VisualizationData{
		PlateResourceID: plateResourceID,
		WellData:        wells,
		DataRangeMin:    minV,
		DataRangeMax:    maxV,
	}, nil
}
