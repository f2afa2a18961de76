package relay

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/chatsync/internal/logging"
	"github.com/dmitrijs2005/chatsync/internal/remote"
	"github.com/dmitrijs2005/chatsync/internal/remote/grpcstore"
	"google.golang.org/grpc"
)

const shutdownGrace = 5 * time.Second

type GRPCServer struct {
	address string
	store   remote.Store
	logger  logging.Logger
	auth    *authenticator
}

func NewGRPCServer(address string, store remote.Store, l logging.Logger, secretKey string) *GRPCServer {
	return &GRPCServer{
		address: address,
		store:   store,
		logger:  l.With("module", "grpc_server"),
		auth:    &authenticator{secret: []byte(secretKey)},
	}
}

// Run listens on the configured address until ctx ends.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis and stops gracefully when ctx ends.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.auth.unary),
		grpc.ChainStreamInterceptor(s.auth.stream),
	)
	grpcstore.NewServer(s.store, s.logger).Register(srv)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")

		// open subscriptions never finish on their own
		stopped := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(shutdownGrace):
			srv.Stop()
		}
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String(), "auth", len(s.auth.secret) > 0)
	return srv.Serve(lis)
}
