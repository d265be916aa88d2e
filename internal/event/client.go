package event

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// DashboardClient connects to a DashboardServer and streams its events,
// grounded on the teacher's internal/rpc.Client but reworked from
// request/response daemon control into a long-lived Watch stream.
type DashboardClient struct {
	conn *grpc.ClientConn
}

// DialDashboard connects to target (e.g. "unix:///tmp/engine-dashboard.sock"
// or a TCP address) without TLS; the dashboard aggregator is assumed to
// be reached over a trusted internal network, matching the teacher's
// insecure.NewCredentials() use for its own Unix-socket control plane.
func DialDashboard(target string) (*DashboardClient, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("event: dial dashboard: %w", err)
	}
	return &DashboardClient{conn: conn}, nil
}

func (c *DashboardClient) Close() error {
	return c.conn.Close()
}

// Watch opens the event stream and returns a channel of decoded
// structpb.Struct events; the channel closes when ctx is done or the
// stream ends.
func (c *DashboardClient) Watch(ctx context.Context) (<-chan *structpb.Struct, error) {
	stream, err := c.conn.NewStream(ctx, &grpc.StreamDesc{StreamName: "Watch", ServerStreams: true},
		fmt.Sprintf("/%s/Watch", serviceName))
	if err != nil {
		return nil, fmt.Errorf("event: open watch stream: %w", err)
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, fmt.Errorf("event: send watch request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("event: close watch request: %w", err)
	}

	out := make(chan *structpb.Struct, 64)
	go func() {
		defer close(out)
		for {
			msg := new(structpb.Struct)
			if err := stream.RecvMsg(msg); err != nil {
				return
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
