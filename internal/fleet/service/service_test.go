package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/AkkiD7/fleetlink-task/internal/fleet/domain"
	"github.com/AkkiD7/fleetlink-task/internal/fleet/ledger"
	"github.com/AkkiD7/fleetlink-task/internal/fleet/registry"
	"github.com/AkkiD7/fleetlink-task/internal/fleet/service"
)

type stubPublisher struct {
	mu     sync.Mutex
	events []domain.FleetEvent
}

func (s *stubPublisher) Publish(_ context.Context, event domain.FleetEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *stubPublisher) types() []domain.FleetEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.FleetEventType, len(s.events))
	for i, evt := range s.events {
		out[i] = evt.Type
	}
	return out
}

type stubClock struct{ t time.Time }

func (s stubClock) Now() time.Time { return s.t }

func newService(t *testing.T) (*service.Service, *stubPublisher) {
	t.Helper()
	publisher := &stubPublisher{}
	svc := service.New(
		registry.NewMemoryRegistry(),
		ledger.NewMemoryLedger(),
		publisher,
		stubClock{t: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)},
		nil,
		service.HoldConfig{},
	)
	return svc, publisher
}

func TestSearchFiltersByCapacity(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	truck, err := svc.AddVehicle(ctx, service.AddVehicleRequest{Name: "Truck", CapacityKG: 1000, Tyres: 6})
	require.NoError(t, err)

	start := time.Date(2025, 10, 2, 9, 0, 0, 0, time.UTC)
	result, err := svc.FindAvailable(ctx, service.SearchRequest{
		MinCapacityKG: 500, FromPincode: "123", ToPincode: "456", StartTime: start,
	})
	require.NoError(t, err)
	require.Len(t, result.Available, 1)
	require.Equal(t, truck.ID, result.Available[0].Vehicle.ID)
	require.EqualValues(t, 3, result.Available[0].EstimatedRideHours)
	require.Equal(t, 1, result.CandidateCount)

	result, err = svc.FindAvailable(ctx, service.SearchRequest{
		MinCapacityKG: 1500, FromPincode: "123", ToPincode: "456", StartTime: start,
	})
	require.NoError(t, err)
	require.Empty(t, result.Available)
	require.Zero(t, result.CandidateCount)
}

func TestBookThenConflictThenAdjacentWindow(t *testing.T) {
	svc, publisher := newService(t)
	ctx := context.Background()

	truck, err := svc.AddVehicle(ctx, service.AddVehicleRequest{Name: "Truck", CapacityKG: 1000, Tyres: 6})
	require.NoError(t, err)

	// pincodes 100 -> 102 estimate 2 hours: window [10:00, 12:00)
	start := time.Date(2025, 10, 2, 10, 0, 0, 0, time.UTC)
	booked, err := svc.Book(ctx, service.BookRequest{
		VehicleID: truck.ID, CustomerID: "C1", FromPincode: "100", ToPincode: "102", StartTime: start,
	})
	require.NoError(t, err)
	require.Equal(t, start, booked.StartTime)
	require.Equal(t, start.Add(2*time.Hour), booked.EndTime)

	// [11:00, 13:00) conflicts
	_, err = svc.Book(ctx, service.BookRequest{
		VehicleID: truck.ID, CustomerID: "C2", FromPincode: "100", ToPincode: "102", StartTime: start.Add(time.Hour),
	})
	require.ErrorIs(t, err, domain.ErrWindowConflict)

	// [12:00, 14:00) is admissible
	_, err = svc.Book(ctx, service.BookRequest{
		VehicleID: truck.ID, CustomerID: "C3", FromPincode: "100", ToPincode: "102", StartTime: start.Add(2*time.Hour),
	})
	require.NoError(t, err)

	require.Equal(t, []domain.FleetEventType{
		domain.EventVehicleAdded,
		domain.EventBookingCreated,
		domain.EventBookingCreated,
	}, publisher.types())
}

func TestBookUnknownVehicleLeavesLedgerUnchanged(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Book(ctx, service.BookRequest{
		VehicleID: uuid.New(), CustomerID: "C1", FromPincode: "123", ToPincode: "456", StartTime: time.Now(),
	})
	require.ErrorIs(t, err, domain.ErrVehicleNotFound)

	bookings, err := svc.ListBookings(ctx)
	require.NoError(t, err)
	require.Empty(t, bookings)
}

func TestBookedVehicleDisappearsFromSearchUntilCancelled(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	truck, err := svc.AddVehicle(ctx, service.AddVehicleRequest{Name: "Truck", CapacityKG: 1000, Tyres: 6})
	require.NoError(t, err)

	start := time.Date(2025, 10, 2, 10, 0, 0, 0, time.UTC)
	search := service.SearchRequest{MinCapacityKG: 500, FromPincode: "123", ToPincode: "456", StartTime: start}

	booked, err := svc.Book(ctx, service.BookRequest{
		VehicleID: truck.ID, CustomerID: "C1", FromPincode: "123", ToPincode: "456", StartTime: start,
	})
	require.NoError(t, err)

	result, err := svc.FindAvailable(ctx, search)
	require.NoError(t, err)
	require.Empty(t, result.Available)
	require.Equal(t, 1, result.CandidateCount)

	_, err = svc.CancelBooking(ctx, booked.ID)
	require.NoError(t, err)

	result, err = svc.FindAvailable(ctx, search)
	require.NoError(t, err)
	require.Len(t, result.Available, 1)
	require.Equal(t, truck.ID, result.Available[0].Vehicle.ID)
}

func TestCancelTwiceReportsNotFound(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	truck, err := svc.AddVehicle(ctx, service.AddVehicleRequest{Name: "Tempo", CapacityKG: 300, Tyres: 4})
	require.NoError(t, err)
	booked, err := svc.Book(ctx, service.BookRequest{
		VehicleID: truck.ID, CustomerID: "C2", FromPincode: "333", ToPincode: "444", StartTime: time.Date(2025, 10, 2, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	_, err = svc.CancelBooking(ctx, booked.ID)
	require.NoError(t, err)
	_, err = svc.CancelBooking(ctx, booked.ID)
	require.ErrorIs(t, err, domain.ErrBookingNotFound)
}

func TestListBookingsResolvesVehicle(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	truck, err := svc.AddVehicle(ctx, service.AddVehicleRequest{Name: "Mini Truck", CapacityKG: 500, Tyres: 4})
	require.NoError(t, err)
	booked, err := svc.Book(ctx, service.BookRequest{
		VehicleID: truck.ID, CustomerID: "C1", FromPincode: "111", ToPincode: "222", StartTime: time.Date(2025, 10, 2, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	bookings, err := svc.ListBookings(ctx)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	require.Equal(t, booked.ID, bookings[0].ID)
	require.NotNil(t, bookings[0].Vehicle)
	require.Equal(t, truck.ID, bookings[0].Vehicle.ID)
}

func TestConcurrentBooksAdmitExactlyOne(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	truck, err := svc.AddVehicle(ctx, service.AddVehicleRequest{Name: "Truck", CapacityKG: 1000, Tyres: 6})
	require.NoError(t, err)

	start := time.Date(2025, 10, 2, 10, 0, 0, 0, time.UTC)
	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)
	barrier := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-barrier
			_, errs[i] = svc.Book(ctx, service.BookRequest{
				VehicleID: truck.ID, CustomerID: "C", FromPincode: "100", ToPincode: "105", StartTime: start,
			})
		}(i)
	}
	close(barrier)
	wg.Wait()

	var admitted int
	for _, err := range errs {
		if err == nil {
			admitted++
		} else {
			require.ErrorIs(t, err, domain.ErrWindowConflict)
		}
	}
	require.Equal(t, 1, admitted)
}

type exhaustedHolds struct{}

func (exhaustedHolds) TryHold(context.Context, uuid.UUID, uuid.UUID, time.Duration) (bool, error) {
	return false, nil
}

func (exhaustedHolds) Release(context.Context, uuid.UUID) error { return nil }

func TestBookSurfacesHoldExhaustionAsInfrastructureFault(t *testing.T) {
	publisher := &stubPublisher{}
	reg := registry.NewMemoryRegistry()
	svc := service.New(reg, ledger.NewMemoryLedger(), publisher,
		stubClock{t: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)},
		exhaustedHolds{},
		service.HoldConfig{MaxAttempts: 2, Backoff: time.Millisecond},
	)
	ctx := context.Background()

	truck, err := svc.AddVehicle(ctx, service.AddVehicleRequest{Name: "Truck", CapacityKG: 1000, Tyres: 6})
	require.NoError(t, err)

	_, err = svc.Book(ctx, service.BookRequest{
		VehicleID: truck.ID, CustomerID: "C1", FromPincode: "123", ToPincode: "456", StartTime: time.Now(),
	})
	require.ErrorIs(t, err, domain.ErrLedgerTimeout)
	require.NotErrorIs(t, err, domain.ErrWindowConflict)
}

func TestZeroDurationBookingIsAdmissible(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	truck, err := svc.AddVehicle(ctx, service.AddVehicleRequest{Name: "Truck", CapacityKG: 1000, Tyres: 6})
	require.NoError(t, err)

	start := time.Date(2025, 10, 2, 10, 0, 0, 0, time.UTC)
	booked, err := svc.Book(ctx, service.BookRequest{
		VehicleID: truck.ID, CustomerID: "C1", FromPincode: "500", ToPincode: "500", StartTime: start,
	})
	require.NoError(t, err)
	require.Equal(t, booked.StartTime, booked.EndTime)

	// a zero-width window blocks nothing
	result, err := svc.FindAvailable(ctx, service.SearchRequest{
		MinCapacityKG: 0, FromPincode: "100", ToPincode: "102", StartTime: start,
	})
	require.NoError(t, err)
	require.Len(t, result.Available, 1)
}
