package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AkkiD7/fleetlink-task/internal/fleet/domain"
	"github.com/AkkiD7/fleetlink-task/internal/fleet/schedule"
)

// HoldConfig tunes the optional cross-instance vehicle hold taken around
// admission. Zero values fall back to defaults in New.
type HoldConfig struct {
	TTL         time.Duration
	MaxAttempts int
	Backoff     time.Duration
}

// Service coordinates fleet operations between handlers and the registry,
// ledger and event collaborators. It is the only writer of bookings.
type Service struct {
	registry domain.Registry
	ledger   domain.Ledger
	events   domain.EventPublisher
	clock    domain.Clock
	holds    domain.HoldStore
	holdCfg  HoldConfig
}

// New constructs a Service. holds may be nil for single-instance deployments;
// the ledger then carries the whole admission guarantee.
func New(registry domain.Registry, ledger domain.Ledger, events domain.EventPublisher, clock domain.Clock, holds domain.HoldStore, holdCfg HoldConfig) *Service {
	if holdCfg.TTL <= 0 {
		holdCfg.TTL = 5 * time.Second
	}
	if holdCfg.MaxAttempts <= 0 {
		holdCfg.MaxAttempts = 3
	}
	if holdCfg.Backoff <= 0 {
		holdCfg.Backoff = 50 * time.Millisecond
	}
	return &Service{registry: registry, ledger: ledger, events: events, clock: clock, holds: holds, holdCfg: holdCfg}
}

// AddVehicleRequest contains the payload for registering a vehicle.
type AddVehicleRequest struct {
	Name       string
	CapacityKG int64
	Tyres      int
}

// AddVehicle registers a new vehicle into the fleet.
func (s *Service) AddVehicle(ctx context.Context, req AddVehicleRequest) (domain.Vehicle, error) {
	vehicle := domain.Vehicle{
		ID:         uuid.New(),
		Name:       req.Name,
		CapacityKG: req.CapacityKG,
		Tyres:      req.Tyres,
		AddedAt:    s.clock.Now(),
	}
	created, err := s.registry.AddVehicle(ctx, vehicle)
	if err != nil {
		return domain.Vehicle{}, fmt.Errorf("add vehicle: %w", err)
	}
	vehiclesAddedTotal.Inc()
	s.publish(ctx, domain.EventVehicleAdded, map[string]any{"vehicle_id": created.ID.String()})
	return created, nil
}

// SearchRequest describes an availability query.
type SearchRequest struct {
	MinCapacityKG int64
	FromPincode   string
	ToPincode     string
	StartTime     time.Time
}

// VehicleAvailability pairs a free vehicle with the ride estimate for the
// requested pincode pair.
type VehicleAvailability struct {
	Vehicle            domain.Vehicle `json:"vehicle"`
	EstimatedRideHours int64          `json:"estimatedRideDurationHours"`
}

// SearchResult carries the available vehicles plus the raw candidate count so
// callers can tell "none big enough" from "all busy".
type SearchResult struct {
	Available          []VehicleAvailability
	CandidateCount     int
	EstimatedRideHours int64
}

// FindAvailable returns vehicles of sufficient capacity whose schedules are
// free for the window derived from the pincode pair, in registration order.
func (s *Service) FindAvailable(ctx context.Context, req SearchRequest) (SearchResult, error) {
	started := time.Now()
	hours := schedule.EstimateRideHours(req.FromPincode, req.ToPincode)
	windowStart := req.StartTime.UTC()
	windowEnd := windowStart.Add(time.Duration(hours) * time.Hour)

	candidates, err := s.registry.ListByMinCapacity(ctx, req.MinCapacityKG)
	if err != nil {
		searchDuration.WithLabelValues("error").Observe(time.Since(started).Seconds())
		return SearchResult{}, fmt.Errorf("list vehicles: %w", err)
	}

	ids := make([]uuid.UUID, len(candidates))
	for i, vehicle := range candidates {
		ids[i] = vehicle.ID
	}
	busy, err := s.ledger.ConflictingVehicles(ctx, ids, windowStart, windowEnd)
	if err != nil {
		searchDuration.WithLabelValues("error").Observe(time.Since(started).Seconds())
		return SearchResult{}, fmt.Errorf("conflict check: %w", err)
	}

	result := SearchResult{
		Available:          make([]VehicleAvailability, 0, len(candidates)),
		CandidateCount:     len(candidates),
		EstimatedRideHours: hours,
	}
	for _, vehicle := range candidates {
		if busy[vehicle.ID] {
			continue
		}
		result.Available = append(result.Available, VehicleAvailability{Vehicle: vehicle, EstimatedRideHours: hours})
	}
	searchDuration.WithLabelValues("ok").Observe(time.Since(started).Seconds())
	return result, nil
}

// BookRequest contains the payload for one booking attempt.
type BookRequest struct {
	VehicleID   uuid.UUID
	CustomerID  string
	FromPincode string
	ToPincode   string
	StartTime   time.Time
}

// Book attempts to admit one booking. The only business rejections are
// domain.ErrVehicleNotFound and domain.ErrWindowConflict; anything else is an
// infrastructure fault and is propagated as such.
func (s *Service) Book(ctx context.Context, req BookRequest) (domain.Booking, error) {
	vehicle, err := s.registry.GetVehicle(ctx, req.VehicleID)
	if err != nil {
		if errors.Is(err, domain.ErrVehicleNotFound) {
			admissionsTotal.WithLabelValues("vehicle_not_found").Inc()
		}
		return domain.Booking{}, err
	}

	duration := schedule.EstimateRideDuration(req.FromPincode, req.ToPincode)
	start := req.StartTime.UTC()
	booking := domain.Booking{
		ID:          uuid.New(),
		VehicleID:   vehicle.ID,
		CustomerID:  req.CustomerID,
		FromPincode: req.FromPincode,
		ToPincode:   req.ToPincode,
		StartTime:   start,
		EndTime:     start.Add(duration),
		CreatedAt:   s.clock.Now(),
	}

	if s.holds != nil {
		if err := s.acquireHold(ctx, vehicle.ID, booking.ID); err != nil {
			admissionsTotal.WithLabelValues("fault").Inc()
			return domain.Booking{}, err
		}
		defer func() { _ = s.holds.Release(ctx, vehicle.ID) }()
	}

	admitted, err := s.ledger.Admit(ctx, booking)
	if err != nil {
		if errors.Is(err, domain.ErrWindowConflict) {
			admissionsTotal.WithLabelValues("conflict").Inc()
		} else {
			admissionsTotal.WithLabelValues("fault").Inc()
		}
		return domain.Booking{}, err
	}

	admissionsTotal.WithLabelValues("admitted").Inc()
	s.publish(ctx, domain.EventBookingCreated, map[string]any{
		"booking_id": admitted.ID.String(),
		"vehicle_id": admitted.VehicleID.String(),
	})
	return admitted, nil
}

// CancelBooking removes a booking from active consideration.
func (s *Service) CancelBooking(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	removed, err := s.ledger.Cancel(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	cancellationsTotal.Inc()
	s.publish(ctx, domain.EventBookingCancelled, map[string]any{
		"booking_id": removed.ID.String(),
		"vehicle_id": removed.VehicleID.String(),
	})
	return removed, nil
}

// BookingWithVehicle is a booking with its vehicle record resolved.
type BookingWithVehicle struct {
	domain.Booking
	Vehicle *domain.Vehicle `json:"vehicle,omitempty"`
}

// ListBookings returns all active bookings, each with its resolved vehicle.
func (s *Service) ListBookings(ctx context.Context) ([]BookingWithVehicle, error) {
	bookings, err := s.ledger.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	out := make([]BookingWithVehicle, 0, len(bookings))
	for _, booking := range bookings {
		entry := BookingWithVehicle{Booking: booking}
		if vehicle, err := s.registry.GetVehicle(ctx, booking.VehicleID); err == nil {
			v := vehicle
			entry.Vehicle = &v
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Service) acquireHold(ctx context.Context, vehicleID, bookingID uuid.UUID) error {
	for attempt := 0; attempt < s.holdCfg.MaxAttempts; attempt++ {
		held, err := s.holds.TryHold(ctx, vehicleID, bookingID, s.holdCfg.TTL)
		if err != nil {
			return fmt.Errorf("vehicle hold: %w", err)
		}
		if held {
			return nil
		}
		if attempt < s.holdCfg.MaxAttempts-1 {
			backoff := s.holdCfg.Backoff << attempt
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", domain.ErrLedgerTimeout, ctx.Err())
			}
		}
	}
	return fmt.Errorf("%w: vehicle hold attempts exhausted", domain.ErrLedgerTimeout)
}

func (s *Service) publish(ctx context.Context, eventType domain.FleetEventType, payload map[string]any) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(ctx, domain.FleetEvent{
		Type:      eventType,
		Payload:   payload,
		CreatedAt: s.clock.Now(),
	})
}
