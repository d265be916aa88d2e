package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a thin wrapper over a gRPC connection to the control plane,
// adapted from the teacher's internal/rpc.Client.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the control plane at target (e.g.
// "unix:///tmp/engine-control.sock").
func Dial(target string) (*Client, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, channelID string) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(map[string]interface{}{"channelId": channelID})
	if err != nil {
		return nil, fmt.Errorf("rpc: build request: %w", err)
	}
	resp := new(structpb.Struct)
	fullMethod := fmt.Sprintf("/%s/%s", controlServiceName, method)
	if err := c.conn.Invoke(ctx, fullMethod, req, resp); err != nil {
		return nil, fmt.Errorf("rpc: %s: %w", method, err)
	}
	if !resp.GetFields()["success"].GetBoolValue() {
		return resp, fmt.Errorf("rpc: %s: %s", method, resp.GetFields()["message"].GetStringValue())
	}
	return resp, nil
}

func (c *Client) Start(ctx context.Context, channelID string) error {
	_, err := c.call(ctx, "Start", channelID)
	return err
}

func (c *Client) Stop(ctx context.Context, channelID string) error {
	_, err := c.call(ctx, "Stop", channelID)
	return err
}

func (c *Client) Reload(ctx context.Context, channelID string) error {
	_, err := c.call(ctx, "Reload", channelID)
	return err
}

func (c *Client) Deploy(ctx context.Context, channelID string) error {
	_, err := c.call(ctx, "Deploy", channelID)
	return err
}

// Status returns the channel's current state name (e.g. "STARTED").
func (c *Client) Status(ctx context.Context, channelID string) (string, error) {
	resp, err := c.call(ctx, "Status", channelID)
	if err != nil {
		return "", err
	}
	return resp.GetFields()["state"].GetStringValue(), nil
}
