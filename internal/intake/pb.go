package intake

import "google.golang.org/grpc"

// VehicleRecord is one streamed fleet onboarding entry.
type VehicleRecord struct {
	Name       string
	CapacityKg int64
	Tyres      int32
}

// Ack is returned when the stream closes.
type Ack struct {
	Registered int64
}

// IntakeServer defines the gRPC contract.
type IntakeServer interface {
	StreamVehicles(Intake_StreamVehiclesServer) error
}

// RegisterIntakeServer registers the service implementation.
func RegisterIntakeServer(s *grpc.Server, srv IntakeServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "fleet.Intake",
		HandlerType: (*IntakeServer)(nil),
		Streams: []grpc.StreamDesc{{
			StreamName:    "StreamVehicles",
			Handler:       _Intake_StreamVehicles_Handler,
			ServerStreams: true,
			ClientStreams: true,
		}},
	}, srv)
}

// Intake_StreamVehiclesServer defines the bidi stream interface.
type Intake_StreamVehiclesServer interface {
	grpc.ServerStream
	SendAndClose(*Ack) error
	Recv() (*VehicleRecord, error)
}

func _Intake_StreamVehicles_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(IntakeServer).StreamVehicles(&intakeStreamServer{ServerStream: stream})
}

type intakeStreamServer struct {
	grpc.ServerStream
}

func (s *intakeStreamServer) SendAndClose(ack *Ack) error { return s.ServerStream.SendMsg(ack) }

func (s *intakeStreamServer) Recv() (*VehicleRecord, error) {
	msg := new(VehicleRecord)
	if err := s.ServerStream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg, nil
}
