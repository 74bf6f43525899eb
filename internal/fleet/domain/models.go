package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrVehicleNotFound is returned when a vehicle id cannot be resolved.
var ErrVehicleNotFound = errors.New("vehicle not found")

// ErrBookingNotFound is returned when a booking id cannot be resolved.
var ErrBookingNotFound = errors.New("booking not found")

// ErrWindowConflict is returned when a requested booking window overlaps an
// existing active booking for the same vehicle.
var ErrWindowConflict = errors.New("vehicle already booked for requested time window")

// ErrLedgerTimeout indicates the per-vehicle admission lock could not be
// acquired before the caller's deadline. It is an infrastructure fault, not a
// booking conflict.
var ErrLedgerTimeout = errors.New("ledger admission timed out")

// Vehicle is a fleet unit. Records are immutable once registered; the core
// never updates or deletes them.
type Vehicle struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	CapacityKG int64     `json:"capacityKg"`
	Tyres      int       `json:"tyres"`
	AddedAt    time.Time `json:"addedAt"`
}

// Booking reserves one vehicle for the half-open window [StartTime, EndTime).
// EndTime is computed once at admission from the estimated ride duration and
// stored, never recomputed.
type Booking struct {
	ID          uuid.UUID `json:"id"`
	VehicleID   uuid.UUID `json:"vehicleId"`
	CustomerID  string    `json:"customerId"`
	FromPincode string    `json:"fromPincode"`
	ToPincode   string    `json:"toPincode"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Registry stores vehicle records and answers capacity-filtered lookups.
// ListByMinCapacity preserves registration order.
type Registry interface {
	AddVehicle(ctx context.Context, vehicle Vehicle) (Vehicle, error)
	GetVehicle(ctx context.Context, id uuid.UUID) (Vehicle, error)
	ListByMinCapacity(ctx context.Context, minCapacityKG int64) ([]Vehicle, error)
}

// Ledger stores active bookings and enforces the per-vehicle non-overlap
// invariant. Admit is atomic with respect to every other ledger operation on
// the same vehicle: check and insert happen under one per-vehicle critical
// section, so two racing admits for overlapping windows cannot both succeed.
type Ledger interface {
	Admit(ctx context.Context, booking Booking) (Booking, error)
	Cancel(ctx context.Context, bookingID uuid.UUID) (Booking, error)
	HasConflict(ctx context.Context, vehicleID uuid.UUID, start, end time.Time) (bool, error)
	ConflictingVehicles(ctx context.Context, vehicleIDs []uuid.UUID, start, end time.Time) (map[uuid.UUID]bool, error)
	ListActive(ctx context.Context) ([]Booking, error)
}

type FleetEventType string

const (
	EventVehicleAdded     FleetEventType = "VehicleAdded"
	EventBookingCreated   FleetEventType = "BookingCreated"
	EventBookingCancelled FleetEventType = "BookingCancelled"
)

// FleetEvent is emitted after registry and ledger mutations.
type FleetEvent struct {
	ID        int64          `json:"id,omitempty"`
	Type      FleetEventType `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event FleetEvent) error
}

// HoldStore grants a short-lived exclusive hold on a vehicle while an
// admission is in flight, for deployments where several service instances
// share one fleet.
type HoldStore interface {
	TryHold(ctx context.Context, vehicleID, bookingID uuid.UUID, ttl time.Duration) (bool, error)
	Release(ctx context.Context, vehicleID uuid.UUID) error
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
