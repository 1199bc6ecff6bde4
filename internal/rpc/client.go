package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"tradedesk/internal/worker"
)

// Reply is a worker response whose result is left encoded for the caller
// to decode into the type it expects.
type Reply struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Client calls the Metrics service.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

// Dial connects to a Metrics server at addr without transport security.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// NewClient wraps an existing connection. Close is a no-op for it.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close closes the connection opened by Dial.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// ComputeRaw sends an encoded worker request and returns the encoded
// response.
func (c *Client) ComputeRaw(ctx context.Context, req []byte, opts ...grpc.CallOption) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, ComputeMethod, wrapperspb.Bytes(req), out, opts...); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}

// Compute runs req on the remote worker.
func (c *Client) Compute(ctx context.Context, req worker.Request, opts ...grpc.CallOption) (Reply, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return Reply{}, fmt.Errorf("encode request: %w", err)
	}
	out, err := c.ComputeRaw(ctx, data, opts...)
	if err != nil {
		return Reply{}, err
	}
	var reply Reply
	if err := json.Unmarshal(out, &reply); err != nil {
		return Reply{}, fmt.Errorf("decode response: %w", err)
	}
	return reply, nil
}

// Decode unmarshals a successful reply's result into v. A failed reply is
// returned as an error.
func (r Reply) Decode(v any) error {
	if !r.Success {
		return fmt.Errorf("compute %s: %s", r.ID, r.Error)
	}
	return json.Unmarshal(r.Result, v)
}
