package registry

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/AkkiD7/fleetlink-task/internal/fleet/domain"
)

// MemoryRegistry is an in-memory vehicle store. Vehicles are immutable once
// added and are never removed, so lookups only need a read lock.
type MemoryRegistry struct {
	mu       sync.RWMutex
	vehicles map[uuid.UUID]domain.Vehicle
	order    []uuid.UUID
}

// NewMemoryRegistry constructs an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{vehicles: make(map[uuid.UUID]domain.Vehicle)}
}

// AddVehicle stores the vehicle and returns it.
func (m *MemoryRegistry) AddVehicle(_ context.Context, vehicle domain.Vehicle) (domain.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.vehicles[vehicle.ID]; !exists {
		m.order = append(m.order, vehicle.ID)
	}
	m.vehicles[vehicle.ID] = vehicle
	return vehicle, nil
}

// GetVehicle retrieves a vehicle by id.
func (m *MemoryRegistry) GetVehicle(_ context.Context, id uuid.UUID) (domain.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vehicle, ok := m.vehicles[id]
	if !ok {
		return domain.Vehicle{}, domain.ErrVehicleNotFound
	}
	return vehicle, nil
}

// ListByMinCapacity returns vehicles with CapacityKG >= minCapacityKG in
// registration order.
func (m *MemoryRegistry) ListByMinCapacity(_ context.Context, minCapacityKG int64) ([]domain.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	matches := make([]domain.Vehicle, 0, len(m.order))
	for _, id := range m.order {
		if vehicle := m.vehicles[id]; vehicle.CapacityKG >= minCapacityKG {
			matches = append(matches, vehicle)
		}
	}
	return matches, nil
}
