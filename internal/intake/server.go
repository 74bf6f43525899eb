package intake

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/AkkiD7/fleetlink-task/internal/fleet/domain"
	"github.com/AkkiD7/fleetlink-task/internal/fleet/service"
)

// VehicleAdder is the slice of the fleet service the intake stream needs.
type VehicleAdder interface {
	AddVehicle(ctx context.Context, req service.AddVehicleRequest) (domain.Vehicle, error)
}

// Server ingests streamed vehicle records from depot systems.
type Server struct {
	fleet  VehicleAdder
	logger *zap.Logger
}

// NewServer constructs a server.
func NewServer(fleet VehicleAdder, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{fleet: fleet, logger: logger}
}

// StreamVehicles registers every streamed record, skipping malformed entries.
func (s *Server) StreamVehicles(stream Intake_StreamVehiclesServer) error {
	var registered int64
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return stream.SendAndClose(&Ack{Registered: registered})
		}
		if err != nil {
			return err
		}
		if msg.Name == "" || msg.CapacityKg < 0 || msg.Tyres <= 0 {
			s.logger.Warn("skipping malformed vehicle record", zap.String("name", msg.Name))
			continue
		}
		vehicle, err := s.fleet.AddVehicle(stream.Context(), service.AddVehicleRequest{
			Name:       msg.Name,
			CapacityKG: msg.CapacityKg,
			Tyres:      int(msg.Tyres),
		})
		if err != nil {
			return err
		}
		registered++
		s.logger.Info("vehicle registered via intake", zap.String("vehicle_id", vehicle.ID.String()))
	}
}
