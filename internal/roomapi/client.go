// Package roomapi is a small gRPC client for the WorkAdventure room API.
package roomapi

import (
	"context"
	"crypto/tls"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/getlavanda/incidentroom/internal/config"
)

// APIKeyHeader carries the room API secret on every call.
const APIKeyHeader = "X-API-Key"

// Client talks to one room API endpoint over a single connection.
type Client struct {
	conn   *grpc.ClientConn
	apiKey string
	logger *zap.Logger
}

// New creates a client for target. The connection is established lazily on
// the first call.
func New(target, apiKey string, useTLS bool, logger *zap.Logger, opts ...grpc.DialOption) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	creds := insecure.NewCredentials()
	if useTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, opts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create room API client for %s: %w", target, err)
	}
	return &Client{conn: conn, apiKey: apiKey, logger: logger}, nil
}

// NewFromConfig creates a client from the notifier environment settings.
func NewFromConfig(cfg *config.NotifierConfig, logger *zap.Logger, opts ...grpc.DialOption) (*Client, error) {
	return New(cfg.Address(), cfg.SecretKey, cfg.UseTLS(), logger, opts...)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// SaveVariable sets a room-scoped shared variable.
func (c *Client) SaveVariable(ctx context.Context, room, name string, value any) error {
	req, err := buildRequest(saveVariableRequest, room, name, "value", value)
	if err != nil {
		return err
	}
	c.logger.Debug("saveVariable", zap.String("room", room), zap.String("name", name), zap.Any("value", value))
	return c.invoke(ctx, SaveVariableMethod, req)
}

// BroadcastEvent sends a named event to every session connected to room.
func (c *Client) BroadcastEvent(ctx context.Context, room, name string, data any) error {
	req, err := buildRequest(dispatchEventRequest, room, name, "data", data)
	if err != nil {
		return err
	}
	c.logger.Debug("broadcastEvent", zap.String("room", room), zap.String("name", name), zap.Any("data", data))
	return c.invoke(ctx, BroadcastEventMethod, req)
}

func (c *Client) invoke(ctx context.Context, method string, req *dynamicpb.Message) error {
	ctx = metadata.AppendToOutgoingContext(ctx, APIKeyHeader, c.apiKey)
	if err := c.conn.Invoke(ctx, method, req, &emptypb.Empty{}); err != nil {
		return fmt.Errorf("room API %s: %w", method, err)
	}
	return nil
}

func buildRequest(desc protoreflect.MessageDescriptor, room, name, payloadField string, payload any) (*dynamicpb.Message, error) {
	value, err := structpb.NewValue(payload)
	if err != nil {
		return nil, fmt.Errorf("cannot encode %s for %q: %w", payloadField, name, err)
	}

	fields := desc.Fields()
	msg := dynamicpb.NewMessage(desc)
	msg.Set(fields.ByName("room"), protoreflect.ValueOfString(room))
	msg.Set(fields.ByName("name"), protoreflect.ValueOfString(name))
	msg.Set(fields.ByName(protoreflect.Name(payloadField)), protoreflect.ValueOfMessage(value.ProtoReflect()))
	return msg, nil
}
