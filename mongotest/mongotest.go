// Package mongotest starts a disposable MongoDB container for the Mongo
// store packages' integration tests. Generalized from the identical
// setupMongoDB/skipMongoTests boilerplate registry/store/mongo's tests
// repeat per package, so every store package shares one container-lifecycle
// implementation instead of six copies of it.
package mongotest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	once      sync.Once
	client    *mongodriver.Client
	container testcontainers.Container
	setupErr  error
)

// Client returns a MongoDB client backed by a mongo:7 container, starting
// the container on first use and reusing it for the rest of the test
// binary's run. It calls t.Skip when Docker is not available, since CI
// environments without Docker should skip these tests rather than fail.
func Client(t *testing.T) *mongodriver.Client {
	t.Helper()
	once.Do(func() { client, container, setupErr = start() })
	if setupErr != nil {
		t.Skipf("docker not available, skipping mongo integration test: %v", setupErr)
	}
	_ = container
	return client
}

func start() (*mongodriver.Client, testcontainers.Container, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections"),
		Tmpfs:        map[string]string{"/data/db": "rw"},
	}
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("start mongo container: %w", err)
	}

	host, err := ctr.Host(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("container host: %w", err)
	}
	port, err := ctr.MappedPort(ctx, "27017")
	if err != nil {
		return nil, nil, fmt.Errorf("container port: %w", err)
	}

	uri := fmt.Sprintf("mongodb://%s:%s", host, port.Port())
	c, err := mongodriver.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	if err := c.Ping(ctx, nil); err != nil {
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	return c, ctr, nil
}

// Database returns a fresh, empty database name scoped to t, so concurrent
// packages sharing one container never see each other's collections.
func Database(t *testing.T) string {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return "workcellcore_test_" + strings.ToLower(name)
}
