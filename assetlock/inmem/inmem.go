// Package inmem is an in-process assetlock.Manager, guarded by a single
// mutex so the acquire-time check-and-flip is trivially atomic.
// It operates on an already-constructed assetstore.Store, mirroring the
// rest of this module's inmem stores.
package inmem

import (
	"context"
	"sync"

	"github.com/autolab-io/workcellcore/assetlock"
	"github.com/autolab-io/workcellcore/assetstore"
	"github.com/autolab-io/workcellcore/enums"
)

// Manager implements assetlock.Manager against an assetstore.Store.
type Manager struct {
	mu     sync.Mutex
	assets assetstore.Store
}

var _ assetlock.Manager = (*Manager)(nil)

// New constructs a Manager backed by assets.
func New(assets assetstore.Store) *Manager {
	return &Manager{assets: assets}
}

func (m *Manager) AcquireAssetLock(ctx context.Context, in assetlock.AcquireInput) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch in.Kind {
	case assetlock.KindMachine:
		mach, err := m.assets.ReadMachineByName(ctx, in.AssetName)
		if err != nil {
			return false, err
		}
		if mach.Status != enums.MachineStatusAvailable {
			return false, nil
		}
		mach.Status = enums.MachineStatusInUse
		mach.CurrentProtocolRunID = in.ProtocolRunID
		mach.LockReservationID = in.ReservationID
		if err := m.assets.UpdateMachine(ctx, mach); err != nil {
			return false, err
		}
		return true, nil

	case assetlock.KindResource, assetlock.KindDeck:
		r, err := m.assets.ReadResourceByName(ctx, in.AssetName)
		if err != nil {
			return false, err
		}
		if !enums.AvailableResourceStatuses[r.Status] {
			return false, nil
		}
		r.Status = enums.ResourceStatusInUse
		r.CurrentProtocolRunID = in.ProtocolRunID
		r.LockReservationID = in.ReservationID
		if err := m.assets.UpdateResource(ctx, r); err != nil {
			return false, err
		}
		return true, nil

	default:
		return false, nil
	}
}

func (m *Manager) ReleaseAssetLock(ctx context.Context, kind assetlock.Kind, assetName, reservationID, protocolRunID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch kind {
	case assetlock.KindMachine:
		mach, err := m.assets.ReadMachineByName(ctx, assetName)
		if err != nil {
			return false, err
		}
		if mach.LockReservationID != reservationID || (protocolRunID != "" && mach.CurrentProtocolRunID != protocolRunID) {
			return false, nil
		}
		mach.LockReservationID = ""
		if err := m.assets.UpdateMachine(ctx, mach); err != nil {
			return false, err
		}
		return true, nil

	case assetlock.KindResource, assetlock.KindDeck:
		r, err := m.assets.ReadResourceByName(ctx, assetName)
		if err != nil {
			return false, err
		}
		if r.LockReservationID != reservationID || (protocolRunID != "" && r.CurrentProtocolRunID != protocolRunID) {
			return false, nil
		}
		r.LockReservationID = ""
		if err := m.assets.UpdateResource(ctx, r); err != nil {
			return false, err
		}
		return true, nil

	default:
		return false, nil
	}
}

func (m *Manager) ReleaseAllProtocolLocks(ctx context.Context, protocolRunID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	machines, err := m.assets.ListMachines(ctx, assetstore.MachineFilter{CurrentProtocolRunID: protocolRunID}, assetstore.ListOptions{})
	if err != nil {
		return count, err
	}
	for _, mach := range machines {
		if mach.LockReservationID == "" {
			continue
		}
		mach.Status = enums.MachineStatusOffline
		mach.CurrentProtocolRunID = ""
		mach.LockReservationID = ""
		if err := m.assets.UpdateMachine(ctx, mach); err != nil {
			return count, err
		}
		count++
	}

	resources, err := m.assets.ListResources(ctx, assetstore.ResourceFilter{}, assetstore.ListOptions{})
	if err != nil {
		return count, err
	}
	for _, r := range resources {
		if r.CurrentProtocolRunID != protocolRunID || r.LockReservationID == "" {
			continue
		}
		r.Status = enums.ResourceStatusAvailableInStorage
		r.CurrentProtocolRunID = ""
		r.LockReservationID = ""
		if err := m.assets.UpdateResource(ctx, r); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (m *Manager) CheckAssetAvailability(ctx context.Context, kind assetlock.Kind, assetName string) (*assetlock.Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch kind {
	case assetlock.KindMachine:
		mach, err := m.assets.ReadMachineByName(ctx, assetName)
		if err != nil {
			return nil, nil
		}
		return &assetlock.Availability{
			AssetName:     mach.Name,
			Status:        string(mach.Status),
			Locked:        mach.LockReservationID != "",
			ProtocolRunID: mach.CurrentProtocolRunID,
			ReservationID: mach.LockReservationID,
		}, nil

	case assetlock.KindResource, assetlock.KindDeck:
		r, err := m.assets.ReadResourceByName(ctx, assetName)
		if err != nil {
			return nil, nil
		}
		return &assetlock.Availability{
			AssetName:     r.Name,
			Status:        string(r.Status),
			Locked:        r.LockReservationID != "",
			ProtocolRunID: r.CurrentProtocolRunID,
			ReservationID: r.LockReservationID,
		}, nil

	default:
		return nil, nil
	}
}
