package grpcstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/chatsync/internal/common"
	"github.com/dmitrijs2005/chatsync/internal/logging"
	"github.com/dmitrijs2005/chatsync/internal/remote"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a remote.Store backed by a relay.
type Client struct {
	endpointURL string
	conn        *grpc.ClientConn
	backoff     Backoff
	logger      logging.Logger

	mu          sync.RWMutex
	accessToken string
}

var _ remote.Store = (*Client)(nil)

// NewClient prepares a connection to endpointURL. The connection is
// established lazily on first use. Extra dial options are appended after
// the defaults.
func NewClient(endpointURL, accessToken string, l logging.Logger, opts ...grpc.DialOption) (*Client, error) {
	c := &Client{
		endpointURL: endpointURL,
		accessToken: accessToken,
		backoff:     DefaultBackoff,
		logger:      l.With("module", "grpc_store"),
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
		grpc.WithStreamInterceptor(c.streamAccessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

// SetBackoff replaces the subscription reconnect schedule.
func (c *Client) SetBackoff(b Backoff) { c.backoff = b }

// SetToken replaces the access token sent with every call.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func withAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

func (c *Client) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	return invoker(withAccessToken(ctx, c.token()), method, req, reply, cc, opts...)
}

func (c *Client) streamAccessTokenInterceptor(
	ctx context.Context,
	desc *grpc.StreamDesc,
	cc *grpc.ClientConn,
	method string,
	streamer grpc.Streamer,
	opts ...grpc.CallOption,
) (grpc.ClientStream, error) {
	return streamer(withAccessToken(ctx, c.token()), desc, cc, method, opts...)
}

// mapError translates gRPC status errors into the common sentinels.
func (c *Client) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", common.ErrRemoteUnavailable, err)
	}
	switch st.Code() {
	case codes.NotFound:
		return common.ErrNotFound
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", common.ErrPermissionDenied, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", common.ErrInvalidOperation, st.Message())
	case codes.Canceled:
		return context.Canceled
	default:
		return fmt.Errorf("%w: %s", common.ErrRemoteUnavailable, st.Message())
	}
}

func (c *Client) Put(ctx context.Context, path string, value json.RawMessage) error {
	if err := c.conn.Invoke(ctx, MethodPut, putRequest(path, value), new(emptypb.Empty)); err != nil {
		return c.mapError(err)
	}
	return nil
}

func (c *Client) Update(ctx context.Context, values map[string]json.RawMessage) error {
	if err := c.conn.Invoke(ctx, MethodUpdate, updateRequest(values), new(emptypb.Empty)); err != nil {
		return c.mapError(err)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, MethodGet, pathRequest(path), resp); err != nil {
		return nil, c.mapError(err)
	}
	return rawField(resp, fieldValue), nil
}

func (c *Client) Delete(ctx context.Context, path string) error {
	if err := c.conn.Invoke(ctx, MethodDelete, pathRequest(path), new(emptypb.Empty)); err != nil {
		return c.mapError(err)
	}
	return nil
}

func (c *Client) ListChildren(ctx context.Context, path string) ([]remote.Child, error) {
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, MethodList, pathRequest(path), resp); err != nil {
		return nil, c.mapError(err)
	}
	return decodeChildren(resp), nil
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.conn.Invoke(ctx, MethodPing, &structpb.Struct{}, new(emptypb.Empty)); err != nil {
		return c.mapError(err)
	}
	return nil
}

// Subscribe opens a server stream for path. A broken stream is reopened on
// the backoff schedule, and once it is back every current child of path is
// emitted as InsertOrUpdate so writes made during the gap are not lost.
// Deletions made during the gap are not replayed.
func (c *Client) Subscribe(ctx context.Context, path string) (*remote.Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	stream, err := c.openStream(subCtx, path)
	if err != nil {
		cancel()
		return nil, c.mapError(err)
	}

	out := make(chan remote.Event, 64)
	go c.pump(subCtx, path, stream, out)
	return remote.NewSubscription(out, cancel), nil
}

func (c *Client) openStream(ctx context.Context, path string) (grpc.ClientStream, error) {
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], MethodSubscribe)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(pathRequest(path)); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	md, err := stream.Header()
	if err != nil {
		return nil, err
	}
	if len(md.Get(headerSubscribed)) == 0 {
		// terminated before the server registered; RecvMsg carries the status
		if err := stream.RecvMsg(new(structpb.Struct)); err != nil {
			return nil, err
		}
		return nil, status.Error(codes.Internal, "subscription not acknowledged")
	}
	return stream, nil
}

func (c *Client) pump(ctx context.Context, path string, stream grpc.ClientStream, out chan<- remote.Event) {
	defer close(out)
	for {
		err := drain(ctx, stream, out)
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn(ctx, "subscription interrupted", "path", path, "error", err)

		stream = c.reconnect(ctx, path)
		if stream == nil {
			return
		}
		if err := c.resync(ctx, path, out); err != nil && ctx.Err() == nil {
			c.logger.Warn(ctx, "resync after reconnect failed", "path", path, "error", err)
		}
	}
}

// resync emits the current children of path. Consumers merge by key, so
// repeats of events already seen are harmless.
func (c *Client) resync(ctx context.Context, path string, out chan<- remote.Event) error {
	children, err := c.ListChildren(ctx, path)
	if err != nil {
		return err
	}
	for _, ch := range children {
		select {
		case out <- remote.Event{Kind: remote.EventInsertOrUpdate, Key: ch.Key, Value: ch.Value}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func drain(ctx context.Context, stream grpc.ClientStream, out chan<- remote.Event) error {
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			return err
		}
		select {
		case out <- decodeEvent(msg):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) reconnect(ctx context.Context, path string) grpc.ClientStream {
	for attempt := 0; c.backoff.Allow(attempt); attempt++ {
		delay := c.backoff.Delay(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		stream, err := c.openStream(ctx, path)
		if err == nil {
			c.logger.Info(ctx, "subscription restored", "path", path, "attempt", attempt+1)
			return stream
		}
		if !retryable(err) {
			c.logger.Error(ctx, "subscription rejected", "path", path, "error", err)
			return nil
		}
		c.logger.Debug(ctx, "reconnect failed", "path", path, "attempt", attempt+1, "delay", delay, "error", err)
	}
	c.logger.Error(ctx, "giving up on subscription", "path", path)
	return nil
}

func retryable(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied, codes.InvalidArgument, codes.NotFound, codes.Canceled:
		return false
	default:
		return true
	}
}
