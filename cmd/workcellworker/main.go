// Command workcellworker runs the task executor (C11) behind a small HTTP
// entry point: the dispatch layer (Celery, a queue consumer, a Temporal
// worker poller — whatever fronts this binary in production) posts a
// protocol run ID and gets back a synchronous result. Mirrors
// registry/cmd/registry's env-var configuration and run()-returns-error
// shape.
//
// # Configuration
//
// Environment variables:
//
//	WORKER_ADDR     - HTTP listen address (default: ":8085")
//	MONGO_URI       - MongoDB connection string. When unset, the worker runs
//	                  against in-memory stores (local development only; state
//	                  is lost on restart).
//	MONGO_DATABASE  - MongoDB database name (default: "workcellcore")
//	REDIS_ADDR      - Redis address backing published run/call lifecycle
//	                  events (runevents). When unset, events are discarded.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/autolab-io/workcellcore/assetacquire"
	"github.com/autolab-io/workcellcore/assetlock"
	assetlockinmem "github.com/autolab-io/workcellcore/assetlock/inmem"
	assetlockmongo "github.com/autolab-io/workcellcore/assetlock/mongo"
	"github.com/autolab-io/workcellcore/assetstore"
	assetstoreinmem "github.com/autolab-io/workcellcore/assetstore/inmem"
	assetstoremongo "github.com/autolab-io/workcellcore/assetstore/mongo"
	"github.com/autolab-io/workcellcore/calllog"
	calllogInmem "github.com/autolab-io/workcellcore/calllog/inmem"
	calllogMongo "github.com/autolab-io/workcellcore/calllog/mongo"
	"github.com/autolab-io/workcellcore/definitioncatalog"
	definitioncataloginmem "github.com/autolab-io/workcellcore/definitioncatalog/inmem"
	definitioncatalogmongo "github.com/autolab-io/workcellcore/definitioncatalog/mongo"
	engineinmem "github.com/autolab-io/workcellcore/engine/inmem"
	"github.com/autolab-io/workcellcore/executor"
	"github.com/autolab-io/workcellcore/orchestrator"
	"github.com/autolab-io/workcellcore/runevents"
	pulseclient "github.com/autolab-io/workcellcore/runevents/clients/pulse"
	"github.com/autolab-io/workcellcore/runstate"
	runstateinmem "github.com/autolab-io/workcellcore/runstate/inmem"
	runstatemongo "github.com/autolab-io/workcellcore/runstate/mongo"
	"github.com/autolab-io/workcellcore/telemetry"
	"github.com/autolab-io/workcellcore/workcellruntime"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// deps bundles the stores and managers the executor needs, so both the
// Mongo-backed and in-memory wiring paths below produce the same shape.
type deps struct {
	assets      assetstore.Store
	defs        definitioncatalog.Store
	locks       assetlock.Manager
	calls       calllog.Store
	runs        runstate.Store
	mongoClient *mongodriver.Client
}

func run() error {
	ctx := context.Background()
	logger := telemetry.NewClueLogger()

	addr := envOr("WORKER_ADDR", ":8085")
	d, closeFn, err := wireDependencies(ctx)
	if err != nil {
		return fmt.Errorf("wire dependencies: %w", err)
	}
	defer closeFn()

	// No real hardware drivers are registered here. An operator deploying
	// against physical instruments registers one Constructor per machine/
	// resource FQN (registry.Register(fqn, driverPackage.Construct))
	// before calling run(); unregistered FQNs fail InitializeMachine with
	// a RuntimeInitError rather than silently simulating.
	registry := workcellruntime.NewRegistry()
	runtime := workcellruntime.New(registry)

	acquirer := assetacquire.New(d.assets, d.defs, d.locks, runtime, nil, logger)

	events, err := wireEvents()
	if err != nil {
		return fmt.Errorf("wire run events: %w", err)
	}

	eng := engineinmem.New()
	orch, err := orchestrator.New(ctx, eng, acquirer, d.calls, nil, logger)
	if err != nil {
		return fmt.Errorf("construct orchestrator: %w", err)
	}
	orch.Events = events

	execCtx := &executor.Context{
		Runs:         d.runs,
		Locks:        d.locks,
		Orchestrator: orch,
		Logger:       logger,
		Events:       events,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthzHandler(d))
	mux.HandleFunc("POST /runs/{id}/execute", executeHandler(execCtx))

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "starting worker", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// executeRequest is the body POST /runs/{id}/execute accepts.
type executeRequest struct {
	InputParameters map[string]any `json:"input_parameters"`
	InitialState    map[string]any `json:"initial_state"`
	WorkerTaskID    string         `json:"worker_task_id"`
}

func executeHandler(execCtx *executor.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID := r.PathValue("id")
		var req executeRequest
		if r.Body != nil {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
		}

		result := executor.Execute(r.Context(), execCtx, runID, req.InputParameters, req.InitialState, req.WorkerTaskID)

		w.Header().Set("Content-Type", "application/json")
		if !result.Success {
			w.WriteHeader(http.StatusUnprocessableEntity)
		}
		_ = json.NewEncoder(w).Encode(result)
	}
}

func healthzHandler(d deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, p := range pingers(d) {
			if err := p.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(fmt.Sprintf("%s: %v\n", p.Name(), err)))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}
}

type pinger interface {
	Name() string
	Ping(ctx context.Context) error
}

func pingers(d deps) []pinger {
	var out []pinger
	for _, c := range []any{d.assets, d.defs, d.locks, d.calls, d.runs} {
		if p, ok := c.(pinger); ok {
			out = append(out, p)
		}
	}
	return out
}

// wireDependencies constructs either the Mongo-backed or in-memory store
// set depending on whether MONGO_URI is configured, and returns a cleanup
// function the caller must defer.
func wireDependencies(ctx context.Context) (deps, func(), error) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		assets := assetstoreinmem.New(nil)
		return deps{
			assets: assets,
			defs:   definitioncataloginmem.New(nil),
			calls:  calllogInmem.New(nil),
			runs:   runstateinmem.New(nil),
			locks:  assetlockinmem.New(assets),
		}, func() {}, nil
	}

	client, err := mongodriver.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return deps{}, nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	database := envOr("MONGO_DATABASE", "workcellcore")

	assets, err := assetstoremongo.New(ctx, assetstoremongo.Options{Client: client, Database: database})
	if err != nil {
		return deps{}, nil, fmt.Errorf("construct asset store: %w", err)
	}
	defs, err := definitioncatalogmongo.New(ctx, definitioncatalogmongo.Options{Client: client, Database: database})
	if err != nil {
		return deps{}, nil, fmt.Errorf("construct definition catalog: %w", err)
	}
	calls, err := calllogMongo.New(ctx, calllogMongo.Options{Client: client, Database: database})
	if err != nil {
		return deps{}, nil, fmt.Errorf("construct call log: %w", err)
	}
	runs, err := runstatemongo.New(ctx, runstatemongo.Options{Client: client, Database: database})
	if err != nil {
		return deps{}, nil, fmt.Errorf("construct run state store: %w", err)
	}
	locks, err := assetlockmongo.New(assetlockmongo.Options{Client: client, Database: database})
	if err != nil {
		return deps{}, nil, fmt.Errorf("construct asset lock manager: %w", err)
	}

	d := deps{assets: assets, defs: defs, locks: locks, calls: calls, runs: runs, mongoClient: client}
	return d, func() {
		if err := client.Disconnect(); err != nil {
			log.Printf("disconnect mongo: %v", err)
		}
	}, nil
}

// wireEvents constructs a Pulse-backed runevents.Publisher when REDIS_ADDR
// is configured, or a discarding one otherwise — publishing run/call
// lifecycle events is an observability nicety, never a requirement for
// executing a run.
func wireEvents() (runevents.Publisher, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return runevents.NoopPublisher{}, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	client, err := pulseclient.New(pulseclient.Options{Redis: rdb})
	if err != nil {
		return nil, fmt.Errorf("construct pulse client: %w", err)
	}
	sink, err := runevents.NewSink(runevents.Options{Client: client})
	if err != nil {
		return nil, fmt.Errorf("construct run events sink: %w", err)
	}
	return sink, nil
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
