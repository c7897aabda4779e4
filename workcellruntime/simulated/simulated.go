// Package simulated provides the default workcellruntime.Constructor: an
// in-process stand-in object carrying no hardware connection, used by tests
// and by any FQN the operator has not bound to a real driver. It mirrors
// the "chatterbox" backend's original role of exercising the full call path
// without touching hardware.
package simulated

import (
	"context"

	"github.com/autolab-io/workcellcore/enums"
	"github.com/autolab-io/workcellcore/workcellruntime"
)

type instance struct {
	fqn     string
	backend enums.BackendType
	seed    map[string]any
}

func (i *instance) FQN() string               { return i.fqn }
func (i *instance) Backend() enums.BackendType { return i.backend }

// Construct is a workcellruntime.Constructor that always succeeds,
// returning an instance carrying backend and seed verbatim. Register it
// under any FQN that has no real driver:
//
//	registry.Register(fqn, simulated.Construct)
func Construct(ctx context.Context, fqn string, backend enums.BackendType, seed map[string]any) (workcellruntime.Instance, error) {
	return &instance{fqn: fqn, backend: backend, seed: seed}, nil
}
