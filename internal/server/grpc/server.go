// Package grpc serves the standard gRPC health protocol for the account
// service. The status follows the reachability of the account store.
package grpc

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is reported alongside the overall ("") health status.
const ServiceName = "accountkeeper.Accounts"

const (
	defaultCheckInterval = 10 * time.Second
	pingTimeout          = 3 * time.Second
)

// StorePinger is satisfied by the repository managers.
type StorePinger interface {
	Ping(ctx context.Context) error
}

type GRPCServer struct {
	address       string
	store         StorePinger
	logger        logging.Logger
	health        *health.Server
	checkInterval time.Duration

	mu      sync.Mutex
	serving healthpb.HealthCheckResponse_ServingStatus
}

func NewGRPCServer(a string, l logging.Logger, store StorePinger) *GRPCServer {
	return &GRPCServer{
		address:       a,
		store:         store,
		logger:        l.With("module", "grpc_server"),
		health:        health.NewServer(),
		checkInterval: defaultCheckInterval,
		serving:       healthpb.HealthCheckResponse_UNKNOWN,
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))

	healthpb.RegisterHealthServer(srv, s.health)
	reflection.Register(srv)

	s.checkStore(ctx)
	go s.watchStore(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}

func (s *GRPCServer) watchStore(ctx context.Context) {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkStore(ctx)
		}
	}
}

// checkStore pings the store and publishes the resulting serving status.
func (s *GRPCServer) checkStore(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	err := s.store.Ping(pingCtx)
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	s.mu.Lock()
	changed := s.serving != status
	s.serving = status
	s.mu.Unlock()

	if changed {
		if err != nil {
			s.logger.Warn(ctx, "account store unreachable", "error", err)
		} else {
			s.logger.Info(ctx, "account store reachable")
		}
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
