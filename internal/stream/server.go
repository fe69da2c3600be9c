// AngelaMos | 2026
// server.go

package stream

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
)

// forceStopAfter bounds GracefulStop, which otherwise waits for every open
// stream to end.
const forceStopAfter = 10 * time.Second

type Server struct {
	address string
	grpc    *grpc.Server
	logger  *slog.Logger
}

// NewServer builds the gRPC server with the handshake bridge on every
// stream.
func NewServer(
	address string,
	bridge *Bridge,
	notifications NotificationsServer,
	logger *slog.Logger,
	opts ...grpc.ServerOption,
) *Server {
	opts = append(opts, grpc.ChainStreamInterceptor(bridge.StreamInterceptor()))
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&ServiceDesc, notifications)

	return &Server{
		address: address,
		grpc:    srv,
		logger:  logger.With("module", "grpc_server"),
	}
}

// Run listens on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.logger.Info("stopping grpc server")

		stopped := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(stopped)
		}()

		select {
		case <-stopped:
		case <-time.After(forceStopAfter):
			s.logger.Warn("grpc graceful stop timed out, closing streams")
			s.grpc.Stop()
		}
	}()

	s.logger.Info("grpc server listening", "addr", lis.Addr().String())

	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}
