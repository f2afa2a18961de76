// Package grpcstore exposes a remote.Store over gRPC and provides the
// matching client. Messages are google.protobuf.Struct values so no
// generated code is needed; node values travel as JSON strings.
package grpcstore

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/chatsync/internal/remote"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "chatsync.relay.RecordStore"

const (
	MethodPut       = "/" + ServiceName + "/Put"
	MethodUpdate    = "/" + ServiceName + "/Update"
	MethodGet       = "/" + ServiceName + "/Get"
	MethodDelete    = "/" + ServiceName + "/Delete"
	MethodList      = "/" + ServiceName + "/List"
	MethodPing      = "/" + ServiceName + "/Ping"
	MethodSubscribe = "/" + ServiceName + "/Subscribe"
)

// RecordStoreServer is the server API of the record store service.
type RecordStoreServer interface {
	Put(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Update(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Get(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Delete(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	List(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Ping(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Subscribe(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

func unary[Res any](name string, call func(RecordStoreServer, context.Context, *structpb.Struct) (Res, error)) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(RecordStoreServer), ctx, req.(*structpb.Struct))
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: full}, handler)
		},
	}
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(RecordStoreServer).Subscribe(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// ServiceDesc describes the record store service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RecordStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Put", RecordStoreServer.Put),
		unary("Update", RecordStoreServer.Update),
		unary("Get", RecordStoreServer.Get),
		unary("Delete", RecordStoreServer.Delete),
		unary("List", RecordStoreServer.List),
		unary("Ping", RecordStoreServer.Ping),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "chatsync/relay.proto",
}

// Field names used in the request and response structs.
const (
	fieldPath     = "path"
	fieldValue    = "value"
	fieldValues   = "values"
	fieldChildren = "children"
	fieldKey      = "key"
	fieldKind     = "kind"
)

func newStruct(fields map[string]*structpb.Value) *structpb.Struct {
	return &structpb.Struct{Fields: fields}
}

func pathRequest(path string) *structpb.Struct {
	return newStruct(map[string]*structpb.Value{fieldPath: structpb.NewStringValue(path)})
}

func putRequest(path string, value json.RawMessage) *structpb.Struct {
	return newStruct(map[string]*structpb.Value{
		fieldPath:  structpb.NewStringValue(path),
		fieldValue: structpb.NewStringValue(string(value)),
	})
}

func updateRequest(values map[string]json.RawMessage) *structpb.Struct {
	fields := make(map[string]*structpb.Value, len(values))
	for p, v := range values {
		fields[p] = structpb.NewStringValue(string(v))
	}
	return newStruct(map[string]*structpb.Value{
		fieldValues: structpb.NewStructValue(newStruct(fields)),
	})
}

func valueResponse(value json.RawMessage) *structpb.Struct {
	return newStruct(map[string]*structpb.Value{fieldValue: structpb.NewStringValue(string(value))})
}

func listResponse(children []remote.Child) *structpb.Struct {
	items := make([]*structpb.Value, 0, len(children))
	for _, c := range children {
		items = append(items, structpb.NewStructValue(newStruct(map[string]*structpb.Value{
			fieldKey:   structpb.NewStringValue(c.Key),
			fieldValue: structpb.NewStringValue(string(c.Value)),
		})))
	}
	return newStruct(map[string]*structpb.Value{
		fieldChildren: structpb.NewListValue(&structpb.ListValue{Values: items}),
	})
}

func eventMessage(ev remote.Event) *structpb.Struct {
	fields := map[string]*structpb.Value{
		fieldKind: structpb.NewStringValue(string(ev.Kind)),
		fieldKey:  structpb.NewStringValue(ev.Key),
	}
	if ev.Value != nil {
		fields[fieldValue] = structpb.NewStringValue(string(ev.Value))
	}
	return newStruct(fields)
}

func str(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

func rawField(s *structpb.Struct, name string) json.RawMessage {
	v, ok := s.GetFields()[name]
	if !ok {
		return nil
	}
	return json.RawMessage(v.GetStringValue())
}

func decodeUpdate(s *structpb.Struct) map[string]json.RawMessage {
	fields := s.GetFields()[fieldValues].GetStructValue().GetFields()
	values := make(map[string]json.RawMessage, len(fields))
	for p, v := range fields {
		values[p] = json.RawMessage(v.GetStringValue())
	}
	return values
}

func decodeChildren(s *structpb.Struct) []remote.Child {
	items := s.GetFields()[fieldChildren].GetListValue().GetValues()
	children := make([]remote.Child, 0, len(items))
	for _, it := range items {
		c := it.GetStructValue()
		children = append(children, remote.Child{Key: str(c, fieldKey), Value: rawField(c, fieldValue)})
	}
	return children
}

func decodeEvent(s *structpb.Struct) remote.Event {
	return remote.Event{
		Kind:  remote.EventKind(str(s, fieldKind)),
		Key:   str(s, fieldKey),
		Value: rawField(s, fieldValue),
	}
}
