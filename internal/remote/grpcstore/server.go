package grpcstore

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/chatsync/internal/common"
	"github.com/dmitrijs2005/chatsync/internal/logging"
	"github.com/dmitrijs2005/chatsync/internal/remote"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// headerSubscribed is sent once the server side of a subscription is live.
const headerSubscribed = "x-subscribed"

// Server serves any remote.Store as the record store service.
type Server struct {
	store  remote.Store
	logger logging.Logger
}

var _ RecordStoreServer = (*Server)(nil)

func NewServer(store remote.Store, l logging.Logger) *Server {
	return &Server{store: store, logger: l.With("module", "record_store")}
}

// Register attaches the service to srv.
func (s *Server) Register(srv grpc.ServiceRegistrar) {
	srv.RegisterService(&ServiceDesc, s)
}

// toStatus converts store errors into gRPC status errors.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, common.ErrPermissionDenied):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, common.ErrInvalidOperation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrRemoteUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func (s *Server) Put(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	if err := s.store.Put(ctx, str(req, fieldPath), rawField(req, fieldValue)); err != nil {
		s.logger.Error(ctx, "put failed", "path", str(req, fieldPath), "error", err)
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) Update(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	values := decodeUpdate(req)
	if err := s.store.Update(ctx, values); err != nil {
		s.logger.Error(ctx, "update failed", "paths", len(values), "error", err)
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	value, err := s.store.Get(ctx, str(req, fieldPath))
	if err != nil {
		return nil, toStatus(err)
	}
	return valueResponse(value), nil
}

func (s *Server) Delete(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	if err := s.store.Delete(ctx, str(req, fieldPath)); err != nil {
		s.logger.Error(ctx, "delete failed", "path", str(req, fieldPath), "error", err)
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) List(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	children, err := s.store.ListChildren(ctx, str(req, fieldPath))
	if err != nil {
		return nil, toStatus(err)
	}
	return listResponse(children), nil
}

func (s *Server) Ping(ctx context.Context, _ *structpb.Struct) (*emptypb.Empty, error) {
	if err := s.store.Ping(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) Subscribe(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()
	path := str(req, fieldPath)

	sub, err := s.store.Subscribe(ctx, path)
	if err != nil {
		return toStatus(err)
	}
	defer sub.Close()

	if err := stream.SendHeader(metadata.Pairs(headerSubscribed, "1")); err != nil {
		return err
	}
	s.logger.Debug(ctx, "subscription opened", "path", path)

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return status.Error(codes.Unavailable, "subscription ended")
			}
			if err := stream.Send(eventMessage(ev)); err != nil {
				return err
			}
		case <-ctx.Done():
			s.logger.Debug(ctx, "subscription closed", "path", path)
			return nil
		}
	}
}
