package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ControlServer answers gRPC health checks on a Unix socket: "" for the
// daemon and one service per connection.
type ControlServer struct {
	grpc       *grpc.Server
	health     *health.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewControlServer binds socketPath (mode 0600), replacing a stale socket file
// left by a crashed daemon.
func NewControlServer(socketPath string, hs *health.Server, logger *zap.Logger) (*ControlServer, error) {
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	s := &ControlServer{
		health:     hs,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}
	s.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(s.logCalls))
	healthpb.RegisterHealthServer(s.grpc, hs)
	return s, nil
}

func (s *ControlServer) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug("control call",
		zap.String("method", info.FullMethod),
		zap.Duration("latency", time.Since(start)),
		zap.Error(err))
	return resp, err
}

func (s *ControlServer) SocketPath() string { return s.socketPath }

// Start serves until Stop.
func (s *ControlServer) Start() error {
	s.logger.Info("control server starting", zap.String("socket", s.socketPath))
	if err := s.grpc.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop reports every service NOT_SERVING, then drains open calls until ctx
// expires and removes the socket.
func (s *ControlServer) Stop(ctx context.Context) {
	s.logger.Info("control server stopping")
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("control server drain timed out")
		s.grpc.Stop()
		<-done
	}
	_ = os.Remove(s.socketPath)
}
