package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AkkiD7/fleetlink-task/internal/fleet/domain"
	"github.com/AkkiD7/fleetlink-task/internal/fleet/schedule"
)

const defaultStripes = 64

// MemoryLedger stores active bookings and enforces the per-vehicle
// non-overlap invariant.
//
// Admission discipline: each vehicle hashes onto one of a fixed set of lock
// stripes, and Admit/Cancel hold that stripe across the whole
// check-then-mutate section. Operations on vehicles in different stripes
// never serialize against each other. Stripes are buffered-channel semaphores
// rather than mutexes so acquisition can be abandoned when the caller's
// context expires; an expired wait surfaces as domain.ErrLedgerTimeout.
//
// The maps themselves are guarded by a single RWMutex held only for the short
// read or write, so ListActive and conflict scans never observe a
// half-inserted booking.
//
// Conflict checks scan the per-vehicle bucket linearly. Buckets hold the
// bookings of one vehicle only, which stays small at fleet scale; a sorted
// index was not worth the extra bookkeeping.
type MemoryLedger struct {
	stripes []chan struct{}

	mu        sync.RWMutex
	bookings  map[uuid.UUID]domain.Booking
	byVehicle map[uuid.UUID][]uuid.UUID
}

// NewMemoryLedger constructs an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	stripes := make([]chan struct{}, defaultStripes)
	for i := range stripes {
		stripes[i] = make(chan struct{}, 1)
	}
	return &MemoryLedger{
		stripes:   stripes,
		bookings:  make(map[uuid.UUID]domain.Booking),
		byVehicle: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (l *MemoryLedger) stripeFor(vehicleID uuid.UUID) chan struct{} {
	// uuid bytes are uniformly distributed; fold the low word.
	b := vehicleID
	idx := (uint32(b[12])<<24 | uint32(b[13])<<16 | uint32(b[14])<<8 | uint32(b[15])) % uint32(len(l.stripes))
	return l.stripes[idx]
}

func (l *MemoryLedger) acquire(ctx context.Context, stripe chan struct{}) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLedgerTimeout, err)
	}
	select {
	case stripe <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrLedgerTimeout, ctx.Err())
	}
}

func release(stripe chan struct{}) { <-stripe }

// Admit atomically checks the booking's window against the vehicle's active
// bookings and inserts it when no overlap exists. Returns
// domain.ErrWindowConflict without mutating state when the window collides.
func (l *MemoryLedger) Admit(ctx context.Context, booking domain.Booking) (domain.Booking, error) {
	stripe := l.stripeFor(booking.VehicleID)
	if err := l.acquire(ctx, stripe); err != nil {
		return domain.Booking{}, err
	}
	defer release(stripe)

	l.mu.RLock()
	conflict := l.vehicleHasConflict(booking.VehicleID, booking.StartTime, booking.EndTime)
	l.mu.RUnlock()
	if conflict {
		return domain.Booking{}, domain.ErrWindowConflict
	}

	l.mu.Lock()
	l.bookings[booking.ID] = booking
	l.byVehicle[booking.VehicleID] = append(l.byVehicle[booking.VehicleID], booking.ID)
	l.mu.Unlock()
	return booking, nil
}

// Cancel removes the booking from active consideration and returns the
// removed record. Cancellation serializes on the same stripe as Admit so a
// cancel and a conflict check for one vehicle are strictly ordered.
func (l *MemoryLedger) Cancel(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	l.mu.RLock()
	booking, ok := l.bookings[bookingID]
	l.mu.RUnlock()
	if !ok {
		return domain.Booking{}, domain.ErrBookingNotFound
	}

	stripe := l.stripeFor(booking.VehicleID)
	if err := l.acquire(ctx, stripe); err != nil {
		return domain.Booking{}, err
	}
	defer release(stripe)

	l.mu.Lock()
	defer l.mu.Unlock()
	booking, ok = l.bookings[bookingID]
	if !ok {
		// lost the race to another cancel
		return domain.Booking{}, domain.ErrBookingNotFound
	}
	delete(l.bookings, bookingID)
	bucket := l.byVehicle[booking.VehicleID]
	for i, id := range bucket {
		if id == bookingID {
			l.byVehicle[booking.VehicleID] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(l.byVehicle[booking.VehicleID]) == 0 {
		delete(l.byVehicle, booking.VehicleID)
	}
	return booking, nil
}

// HasConflict reports whether any active booking for the vehicle overlaps
// [start, end).
func (l *MemoryLedger) HasConflict(_ context.Context, vehicleID uuid.UUID, start, end time.Time) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.vehicleHasConflict(vehicleID, start, end), nil
}

// ConflictingVehicles answers the conflict question for many vehicles in one
// pass under one read lock, for the availability search.
func (l *MemoryLedger) ConflictingVehicles(_ context.Context, vehicleIDs []uuid.UUID, start, end time.Time) (map[uuid.UUID]bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	busy := make(map[uuid.UUID]bool, len(vehicleIDs))
	for _, id := range vehicleIDs {
		if l.vehicleHasConflict(id, start, end) {
			busy[id] = true
		}
	}
	return busy, nil
}

// ListActive returns all active bookings in no particular order.
func (l *MemoryLedger) ListActive(_ context.Context) ([]domain.Booking, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Booking, 0, len(l.bookings))
	for _, booking := range l.bookings {
		out = append(out, booking)
	}
	return out, nil
}

func (l *MemoryLedger) vehicleHasConflict(vehicleID uuid.UUID, start, end time.Time) bool {
	for _, id := range l.byVehicle[vehicleID] {
		existing := l.bookings[id]
		if schedule.Overlaps(existing.StartTime, existing.EndTime, start, end) {
			return true
		}
	}
	return false
}
