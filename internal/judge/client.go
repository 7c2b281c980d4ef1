// Package judge is a gRPC client for the remote semantic judge used as the
// adversarial deep check.
package judge

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

const evaluateMethod = "/resonance.judge.v1.SemanticJudge/Evaluate"

// #region service

// Service is the judge RPC surface. Requests and responses are
// google.protobuf.Struct messages.
type Service interface {
	Evaluate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type serviceClient struct {
	cc grpc.ClientConnInterface
}

// NewService wraps a connection as a Service.
func NewService(cc grpc.ClientConnInterface) Service {
	return &serviceClient{cc: cc}
}

func (c *serviceClient) Evaluate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, evaluateMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion service

// #region client-struct

// Client implements adversarial.DeepChecker against a Service.
type Client struct {
	conn    *grpc.ClientConn
	svc     Service
	config  Config
	limiter *rate.Limiter
	skipped atomic.Int64
}

// #endregion client-struct

// #region constructor

// NewClient connects to the judge at config.Addr.
func NewClient(config Config) (*Client, error) {
	conn, err := grpc.NewClient(config.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", config.Addr, err)
	}
	c := NewClientWithService(NewService(conn), config)
	c.conn = conn
	return c, nil
}

// NewClientWithService creates a Client over an injected Service.
// Used for testing without a real gRPC connection.
func NewClientWithService(svc Service, config Config) *Client {
	c := &Client{svc: svc, config: config}
	if config.RatePerSecond > 0 {
		burst := config.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), burst)
	}
	return c
}

// #endregion constructor

// Close shuts down the gRPC connection, if one was opened.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #region evaluate

// Evaluate asks the judge about text.
func (c *Client) Evaluate(ctx context.Context, text string) (Verdict, error) {
	req, err := structpb.NewStruct(map[string]any{"text": text})
	if err != nil {
		return Verdict{}, fmt.Errorf("build request: %w", err)
	}
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}
	resp, err := c.svc.Evaluate(ctx, req)
	if err != nil {
		return Verdict{}, fmt.Errorf("evaluate rpc: %w", err)
	}
	fields := resp.GetFields()
	return Verdict{
		Adversarial: fields["adversarial"].GetBoolValue(),
		Score:       fields["score"].GetNumberValue(),
	}, nil
}

// Flag reports whether the judge considers text adversarial. When the rate
// budget is exhausted the call is skipped and Flag returns false.
func (c *Client) Flag(ctx context.Context, text string) (bool, error) {
	if c.limiter != nil && !c.limiter.Allow() {
		c.skipped.Add(1)
		return false, nil
	}
	v, err := c.Evaluate(ctx, text)
	if err != nil {
		return false, err
	}
	return v.Adversarial || v.Score >= c.config.FlagScore, nil
}

// Skipped returns how many checks were dropped by the rate limiter.
func (c *Client) Skipped() int64 {
	return c.skipped.Load()
}

// #endregion evaluate
