package event

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/corvushealth/engine/internal/log"
)

// DashboardServer streams every Bus event to a connected dashboard
// status aggregator (spec §1 collaborator) over gRPC, grounded on the
// teacher's internal/rpc server/client pair but reworked into a
// server-streaming push instead of daemon control-plane unary calls.
// There is no generated .proto/pb package for this service: messages
// are the well-known structpb/emptypb types, and the service is
// registered by hand below instead of via protoc-gen-go-grpc.
type DashboardServer struct {
	bus *Bus
}

// NewDashboardServer returns a server that streams bus events to any
// client calling Watch.
func NewDashboardServer(bus *Bus) *DashboardServer {
	return &DashboardServer{bus: bus}
}

// Watch streams one structpb.Struct per bus event for the lifetime of
// the client connection; it returns once the stream's context is done.
func (s *DashboardServer) Watch(_ *emptypb.Empty, stream dashboardWatchStream) error {
	ch := make(chan Event, 64)
	forward := func(ev Event) {
		select {
		case ch <- ev:
		default:
			log.Get().Warn("event: dashboard subscriber lagging, dropping event")
		}
	}
	for _, topic := range []string{TopicStateChange, TopicMessageComplete, TopicConnectionStatus, TopicConnectorCount} {
		s.bus.Subscribe(topic, forward)
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-ch:
			msg, err := eventToStruct(ev)
			if err != nil {
				log.Get().WithError(err).Warn("event: dropping unconvertible event")
				continue
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

func eventToStruct(ev Event) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"topic":     ev.Topic,
		"channelId": ev.ChannelID,
	}
	switch p := ev.Payload.(type) {
	case ConnectionStatusEvent:
		fields["connectorName"] = p.ConnectorName
		fields["status"] = p.Status.String()
	case ConnectorCountEvent:
		fields["connectorName"] = p.ConnectorName
		fields["delta"] = float64(p.Delta)
	default:
		fields["payload"] = fmt.Sprintf("%+v", p)
	}
	return structpb.NewStruct(fields)
}

// dashboardWatchStream is the minimal server-stream surface Watch needs;
// satisfied by the generated-equivalent wrapper in
// dashboardServerStream below.
type dashboardWatchStream interface {
	Context() context.Context
	Send(*structpb.Struct) error
}

// serviceName is the gRPC full method prefix, chosen to read like a
// protoc-generated package.Service path even though nothing here was
// generated.
const serviceName = "corvushealth.engine.event.DashboardEvents"

// RegisterDashboardServer registers srv's Watch method on grpcServer by
// hand-assembling a grpc.ServiceDesc, the same mechanism
// protoc-gen-go-grpc would emit.
func RegisterDashboardServer(grpcServer *grpc.Server, srv *DashboardServer) {
	grpcServer.RegisterService(&dashboardServiceDesc, srv)
}

var dashboardServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*DashboardServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       dashboardWatchHandler,
			ServerStreams: true,
		},
	},
}

func dashboardWatchHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(emptypb.Empty)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(*DashboardServer).Watch(req, &dashboardServerStream{ServerStream: stream})
}

type dashboardServerStream struct {
	grpc.ServerStream
}

func (x *dashboardServerStream) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}
