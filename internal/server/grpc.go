package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/oggyb/swipecook/internal/auth"
	"github.com/oggyb/swipecook/internal/config"
)

// NewGRPCServer builds a gRPC server with identity and logging interceptors,
// the standard health service and every provided registrar.
func NewGRPCServer(identifier *auth.Identifier, log *slog.Logger, registrars ...Registrar) (*grpc.Server, *health.Server) {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		loggingInterceptor(log),
		identifier.UnaryInterceptor(),
	))

	for _, r := range registrars {
		r.Register(s)
	}

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	return s, hs
}

func loggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		if code == codes.Internal || code == codes.Unknown {
			log.Error("grpc call failed", "method", info.FullMethod, "code", code.String(), "took", time.Since(start), "err", err)
		} else {
			log.Debug("grpc call", "method", info.FullMethod, "code", code.String(), "took", time.Since(start))
		}
		return resp, err
	}
}

// GRPCService runs a grpc.Server under the supervisor tree.
type GRPCService struct {
	server *grpc.Server
	health *health.Server
	addr   string
	log    *slog.Logger
}

func NewGRPCService(cfg *config.Config, s *grpc.Server, hs *health.Server, log *slog.Logger) *GRPCService {
	return &GRPCService{
		server: s,
		health: hs,
		addr:   net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port),
		log:    log,
	}
}

func (g *GRPCService) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", g.addr, err)
	}
	g.log.Info("starting gRPC server", "addr", g.addr)

	errCh := make(chan error, 1)
	go func() { errCh <- g.server.Serve(lis) }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	case <-ctx.Done():
		g.health.Shutdown()
		g.server.GracefulStop()
		<-errCh
		return ctx.Err()
	}
}

func (g *GRPCService) String() string { return "grpc-server" }
