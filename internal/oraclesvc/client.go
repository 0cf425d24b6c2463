package oraclesvc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client talks to a remote oracle. It satisfies the attack package's Oracle
// interface and is safe for concurrent use.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to target. Without options the connection is plaintext.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial oracle %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// Encrypt sends plaintext to the remote oracle and returns its ciphertext.
func (c *Client) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(ctx, encryptMethod, wrapperspb.Bytes(plaintext), out); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}

// Ready reports whether the remote oracle service is serving.
func (c *Client) Ready(ctx context.Context, opts ...grpc.CallOption) (bool, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName}, opts...)
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
