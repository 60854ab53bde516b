// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package control serves the gRPC health protocol for orchestration probes.
package control

import (
	"context"
	cryptotls "crypto/tls"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/holomush/holoauth/internal/observability"
)

// ServiceName is the health service name reported alongside the overall status.
const ServiceName = "holoauth.Auth"

// DefaultProbeInterval is how often readiness is re-evaluated.
const DefaultProbeInterval = 5 * time.Second

// GRPCServer serves grpc.health.v1 with a status that follows readiness.
type GRPCServer struct {
	component string
	ready     observability.ReadinessChecker
	interval  time.Duration

	mu         sync.Mutex
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	stopProbe  context.CancelFunc
	probeDone  chan struct{}
}

// NewGRPCServer creates a control server for component. A nil readiness
// checker reports the service as always serving.
func NewGRPCServer(component string, ready observability.ReadinessChecker, interval time.Duration) (*GRPCServer, error) {
	if component == "" {
		return nil, oops.Code("CONTROL_INVALID").Errorf("component name cannot be empty")
	}
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &GRPCServer{
		component: component,
		ready:     ready,
		interval:  interval,
		health:    health.NewServer(),
	}, nil
}

// Start listens on addr. A nil tlsConfig serves plaintext.
// The returned channel receives the server's exit error and is then closed.
func (s *GRPCServer) Start(addr string, tlsConfig *cryptotls.Config) (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil, oops.Code("CONTROL_ALREADY_RUNNING").Errorf("server is already running")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, oops.Code("CONTROL_LISTEN_FAILED").With("addr", addr).Wrap(err)
	}
	s.listener = listener

	var opts []grpc.ServerOption
	if tlsConfig != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}
	s.grpcServer = grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)

	probeCtx, cancel := context.WithCancel(context.Background())
	s.stopProbe = cancel
	s.probeDone = make(chan struct{})
	s.probe(probeCtx)
	go s.probeLoop(probeCtx)

	errCh := make(chan error, 1)
	srv := s.grpcServer
	go func() {
		defer close(errCh)
		if err := srv.Serve(listener); err != nil {
			slog.Error("control gRPC server error", "component", s.component, "error", err)
			errCh <- err
		}
	}()

	slog.Info("control gRPC server started", "component", s.component, "addr", listener.Addr().String())
	return errCh, nil
}

// Addr returns the listen address, or "" when not running.
func (s *GRPCServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop marks every service NOT_SERVING and drains in-flight RPCs. When ctx
// expires first, remaining RPCs are cut off.
func (s *GRPCServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.grpcServer
	stopProbe, probeDone := s.stopProbe, s.probeDone
	s.grpcServer, s.listener = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	stopProbe()
	<-probeDone
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		srv.Stop()
		<-done
	}
	return nil
}

func (s *GRPCServer) probeLoop(ctx context.Context) {
	defer close(s.probeDone)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probe(ctx)
		}
	}
}

func (s *GRPCServer) probe(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if s.ready != nil {
		checkCtx, cancel := context.WithTimeout(ctx, s.interval)
		ok := s.ready(checkCtx)
		cancel()
		if !ok {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
