// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

// Package health implements the gRPC health check server of the nsm-agent.
package health

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Server answers health checks. It reports NOT_SERVING until [Server.SetServing] is called.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	log        *slog.Logger
}

// New initializes a new Server.
func New(log *slog.Logger) *Server {
	s := &Server{
		grpcServer: grpc.NewServer(),
		health:     health.NewServer(),
		log:        log,
	}
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
	return s
}

// SetServing marks the agent as ready to answer requests.
func (s *Server) SetServing() {
	s.log.Info("Reporting healthy")
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
}

// Serve answers health checks on lis until ctx is canceled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			s.grpcServer.GracefulStop()
		case <-stopped:
		}
	}()

	s.log.Info("Starting health server", "endpoint", lis.Addr().String())
	err := s.grpcServer.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) && ctx.Err() != nil {
		return nil
	}
	return err
}
