package matching

import (
	"google.golang.org/grpc"
)

// Registrar ties the matching service into the gRPC server
type Registrar struct {
	svc *Service
}

// NewRegistrar creates a new Registrar for the matching service
func NewRegistrar(svc *Service) *Registrar {
	return &Registrar{svc: svc}
}

// Register attaches the MatchService implementation to the gRPC server
func (r *Registrar) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&MatchService_ServiceDesc, NewGRPCServer(r.svc))
}
