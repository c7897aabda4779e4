// Package assetacquire implements the asset acquirer (C7): resolving a
// protocol's declared asset requirements against the live fleet, reserving
// exactly one candidate per requirement through the lock manager, and
// materializing its runtime object.
package assetacquire

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/autolab-io/workcellcore/assetlock"
	"github.com/autolab-io/workcellcore/assetstore"
	"github.com/autolab-io/workcellcore/definitioncatalog"
	"github.com/autolab-io/workcellcore/enums"
	"github.com/autolab-io/workcellcore/identity"
	"github.com/autolab-io/workcellcore/telemetry"
	"github.com/autolab-io/workcellcore/workcellerrors"
	"github.com/autolab-io/workcellcore/workcellruntime"
)

// AssetRequirement is one entry in a protocol's declared asset needs.
type AssetRequirement struct {
	NameInProtocol      string
	FQN                 string
	Optional            bool
	LocationConstraints map[string]any
	PropertyConstraints map[string]any
}

// AssetKind distinguishes the two candidate pools a requirement dispatches
// to.
type AssetKind string

const (
	AssetKindMachine  AssetKind = "machine"
	AssetKindResource AssetKind = "resource"
)

// Result reports what was acquired for one requirement.
type Result struct {
	RuntimeObject workcellruntime.Instance
	AssetID       string
	AssetName     string
	AssetKind     AssetKind
	ReservationID string
}

// Acquirer implements acquire_machine / acquire_resource / release.
type Acquirer struct {
	Assets      assetstore.Store
	Definitions definitioncatalog.Store
	Locks       assetlock.Manager
	Runtime     workcellruntime.Runtime
	Clock       identity.Clock
	Logger      telemetry.Logger
}

// New constructs an Acquirer. clock/logger default to identity.UTCClock{}
// and telemetry.NoopLogger{} when nil.
func New(assets assetstore.Store, definitions definitioncatalog.Store, locks assetlock.Manager, runtime workcellruntime.Runtime, clock identity.Clock, logger telemetry.Logger) *Acquirer {
	if clock == nil {
		clock = identity.UTCClock{}
	}
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	return &Acquirer{Assets: assets, Definitions: definitions, Locks: locks, Runtime: runtime, Clock: clock, Logger: logger}
}

// Acquire dispatches a requirement to acquireMachine or acquireResource
// by looking up req.FQN in the definition catalog: a resource definition
// match takes the resource path, otherwise the machine path (unless the
// FQN looks like a deck type, which is not acquirable directly).
func (a *Acquirer) Acquire(ctx context.Context, runID string, req AssetRequirement) (*Result, error) {
	def, err := a.Definitions.ReadResourceDefinitionByFQN(ctx, req.FQN)
	switch {
	case err == nil:
		return a.acquireResource(ctx, runID, req, def)
	case errors.Is(err, workcellerrors.ErrNotFound):
		if looksLikeDeckFQN(req.FQN) {
			return nil, workcellerrors.NewAssetAcquisitionError(
				"deck", req.FQN, "appears to be a Deck but not found in catalog", nil)
		}
		return a.acquireMachine(ctx, runID, req)
	default:
		return nil, err
	}
}

func looksLikeDeckFQN(fqn string) bool {
	return strings.Contains(strings.ToLower(fqn), "deck")
}

func (a *Acquirer) acquireMachine(ctx context.Context, runID string, req AssetRequirement) (*Result, error) {
	machines, err := a.Assets.ListMachines(ctx, assetstore.MachineFilter{}, assetstore.ListOptions{})
	if err != nil {
		return nil, err
	}
	var candidates []*assetstore.Machine
	for _, m := range machines {
		if m.FQN != req.FQN {
			continue
		}
		if m.CurrentProtocolRunID == runID {
			candidates = []*assetstore.Machine{m}
			break
		}
		if m.Status == enums.MachineStatusAvailable {
			candidates = append(candidates, m)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })

	for _, m := range candidates {
		reservationID := m.LockReservationID
		reentrant := m.CurrentProtocolRunID == runID
		if !reentrant {
			newReservationID, err := identity.NewAccessionID()
			if err != nil {
				return nil, err
			}
			reservationID = newReservationID
			ok, err := a.Locks.AcquireAssetLock(ctx, assetlock.AcquireInput{
				Kind: assetlock.KindMachine, AssetName: m.Name, ProtocolRunID: runID, ReservationID: reservationID,
			})
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}

		var def *definitioncatalog.MachineDefinition
		if mdef, derr := a.Definitions.ReadMachineDefinitionByFQN(ctx, m.FQN); derr == nil {
			def = mdef
		}
		inst, err := a.Runtime.InitializeMachine(ctx, m, def)
		if err != nil {
			if !reentrant {
				_, _ = a.Locks.ReleaseAssetLock(ctx, assetlock.KindMachine, m.Name, reservationID, runID)
			}
			return nil, err
		}

		m.Status = enums.MachineStatusInUse
		m.CurrentProtocolRunID = runID
		m.LockReservationID = reservationID
		if uerr := a.Assets.UpdateMachine(ctx, m); uerr != nil {
			return nil, uerr
		}
		a.Logger.Info(ctx, "acquired machine", "run_id", runID, "name_in_protocol", req.NameInProtocol, "machine", m.Name)
		return &Result{RuntimeObject: inst, AssetID: m.AccessionID, AssetName: m.Name, AssetKind: AssetKindMachine, ReservationID: reservationID}, nil
	}

	if req.Optional {
		return nil, nil
	}
	return nil, workcellerrors.NewAssetAcquisitionError("machine", req.FQN, "no available candidate", nil)
}

func (a *Acquirer) acquireResource(ctx context.Context, runID string, req AssetRequirement, def *definitioncatalog.ResourceDefinition) (*Result, error) {
	resources, err := a.Assets.ListResources(ctx, assetstore.ResourceFilter{}, assetstore.ListOptions{})
	if err != nil {
		return nil, err
	}
	var candidates []*assetstore.Resource
	for _, r := range resources {
		if r.ResourceDefinitionID != def.AccessionID {
			continue
		}
		if r.CurrentProtocolRunID == runID {
			candidates = []*assetstore.Resource{r}
			break
		}
		if !enums.AvailableResourceStatuses[r.Status] {
			continue
		}
		if !matchesConstraints(r, req.LocationConstraints, req.PropertyConstraints) {
			continue
		}
		candidates = append(candidates, r)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })

	for _, r := range candidates {
		reservationID := r.LockReservationID
		reentrant := r.CurrentProtocolRunID == runID
		if !reentrant {
			newReservationID, err := identity.NewAccessionID()
			if err != nil {
				return nil, err
			}
			reservationID = newReservationID
			ok, err := a.Locks.AcquireAssetLock(ctx, assetlock.AcquireInput{
				Kind: assetlock.KindResource, AssetName: r.Name, ProtocolRunID: runID, ReservationID: reservationID,
			})
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}

		inst, err := a.Runtime.CreateOrGetResource(ctx, r, def)
		if err != nil {
			if !reentrant {
				_, _ = a.Locks.ReleaseAssetLock(ctx, assetlock.KindResource, r.Name, reservationID, runID)
			}
			return nil, err
		}

		r.Status = enums.ResourceStatusInUse
		r.CurrentProtocolRunID = runID
		r.LockReservationID = reservationID
		if uerr := a.Assets.UpdateResource(ctx, r); uerr != nil {
			return nil, uerr
		}
		a.Logger.Info(ctx, "acquired resource", "run_id", runID, "name_in_protocol", req.NameInProtocol, "resource", r.Name)
		return &Result{RuntimeObject: inst, AssetID: r.AccessionID, AssetName: r.Name, AssetKind: AssetKindResource, ReservationID: reservationID}, nil
	}

	if req.Optional {
		return nil, nil
	}
	return nil, workcellerrors.NewAssetAcquisitionError("resource", req.FQN, "no available candidate", nil)
}

func matchesConstraints(r *assetstore.Resource, location, properties map[string]any) bool {
	for k, v := range location {
		switch k {
		case "location":
			if r.Location != v {
				return false
			}
		case "deck_position":
			if r.CurrentDeckPositionName != v {
				return false
			}
		}
	}
	for k, v := range properties {
		if r.Properties == nil {
			return false
		}
		if got, ok := r.Properties[k]; !ok || got != v {
			return false
		}
	}
	return true
}

// ReleaseMachine releases a machine: flips status to its final value
// (OFFLINE unless finalStatus overrides),
// clears the run link, releases the lock, and shuts down the runtime
// object. Errors from any step surface as *workcellerrors.AssetReleaseError.
func (a *Acquirer) ReleaseMachine(ctx context.Context, runID, name, reservationID string, finalStatus *enums.MachineStatus) error {
	m, err := a.Assets.ReadMachineByName(ctx, name)
	if err != nil {
		return workcellerrors.NewAssetReleaseError("machine", name, "lookup failed", err)
	}
	status := enums.MachineStatusOffline
	if finalStatus != nil {
		status = *finalStatus
	}
	m.Status = status
	m.CurrentProtocolRunID = ""
	if err := a.Assets.UpdateMachine(ctx, m); err != nil {
		return workcellerrors.NewAssetReleaseError("machine", name, "status update failed", err)
	}
	if _, err := a.Locks.ReleaseAssetLock(ctx, assetlock.KindMachine, name, reservationID, runID); err != nil {
		return workcellerrors.NewAssetReleaseError("machine", name, "lock release failed", err)
	}
	if err := a.Runtime.ShutdownMachine(ctx, m); err != nil {
		return workcellerrors.NewAssetReleaseError("machine", name, "runtime shutdown failed", err)
	}
	a.Logger.Info(ctx, "released machine", "run_id", runID, "machine", name)
	return nil
}

// ReleaseResource releases a resource: defaults its final status to
// AVAILABLE_IN_STORAGE.
func (a *Acquirer) ReleaseResource(ctx context.Context, runID, name, reservationID string, finalStatus *enums.ResourceStatus) error {
	r, err := a.Assets.ReadResourceByName(ctx, name)
	if err != nil {
		return workcellerrors.NewAssetReleaseError("resource", name, "lookup failed", err)
	}
	status := enums.ResourceStatusAvailableInStorage
	if finalStatus != nil {
		status = *finalStatus
	}
	r.Status = status
	r.CurrentProtocolRunID = ""
	if err := a.Assets.UpdateResource(ctx, r); err != nil {
		return workcellerrors.NewAssetReleaseError("resource", name, "status update failed", err)
	}
	if _, err := a.Locks.ReleaseAssetLock(ctx, assetlock.KindResource, name, reservationID, runID); err != nil {
		return workcellerrors.NewAssetReleaseError("resource", name, "lock release failed", err)
	}
	if err := a.Runtime.ClearResourceInstance(ctx, r); err != nil {
		return workcellerrors.NewAssetReleaseError("resource", name, "runtime clear failed", err)
	}
	a.Logger.Info(ctx, "released resource", "run_id", runID, "resource", name)
	return nil
}
