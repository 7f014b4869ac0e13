// Package api exposes the backtest service over HTTP and gRPC.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"

	"cryptobot/internal/backtest"
	"cryptobot/internal/util"
)

// Options configure a Server. An empty address disables that listener.
type Options struct {
	HTTPAddr        string
	GRPCAddr        string
	ShutdownTimeout time.Duration // default 5s
	Logger          *slog.Logger
}

// Server hosts the HTTP and gRPC endpoints.
type Server struct {
	svc  *backtest.Service
	opts Options
	log  *slog.Logger

	httpServer *http.Server
	grpcServer *grpc.Server
}

// NewServer creates a Server for svc.
func NewServer(svc *backtest.Service, opts Options) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = util.Discard()
	}
	s := &Server{svc: svc, opts: opts, log: log.With("component", "api")}
	if opts.HTTPAddr != "" {
		s.httpServer = &http.Server{
			Addr:              opts.HTTPAddr,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	if opts.GRPCAddr != "" {
		s.grpcServer = grpc.NewServer()
		RegisterGRPC(s.grpcServer, NewGRPCService(svc))
	}
	return s
}

// ListenAndServe starts the configured listeners and blocks until ctx is
// cancelled or a listener fails, then shuts both down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.httpServer == nil && s.grpcServer == nil {
		return errors.New("api: no listener configured")
	}
	errc := make(chan error, 2)

	if s.httpServer != nil {
		go func() {
			s.log.Info("HTTP server listening", "addr", s.httpServer.Addr)
			if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("http: %w", err)
			}
		}()
	}
	if s.grpcServer != nil {
		lis, err := net.Listen("tcp", s.opts.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen %s: %w", s.opts.GRPCAddr, err)
		}
		go func() {
			s.log.Info("gRPC server listening", "addr", lis.Addr().String())
			if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errc <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errc:
		s.log.Error("listener failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if serr := s.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	return err
}

// Shutdown stops accepting new requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down API server")
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	if s.grpcServer != nil {
		done := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.grpcServer.Stop()
		}
	}
	return err
}
