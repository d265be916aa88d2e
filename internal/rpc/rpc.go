// Package rpc is the daemon control plane: Start/Stop/Reload/Status/
// Deploy calls against a running channel, over gRPC on a Unix domain
// socket (spec §9 "daemon control plane" collaborator). Adapted from the
// teacher's internal/rpc client/server pair, generalized from
// whole-daemon control to per-channel lifecycle control.
//
// The teacher's own internal/rpc imports a generated pkg/pb package
// that is absent from the teacher repo itself (a protoc build artifact
// never checked in), so this package can't port that schema. Instead
// its request/response messages are structpb.Struct (a teacher
// dependency via google.golang.org/protobuf), and the grpc.ServiceDesc
// is hand-assembled the way protoc-gen-go-grpc would emit it.
package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// DefaultSocketPath is the Unix domain socket the daemon listens on by
// default.
const DefaultSocketPath = "/tmp/engine-control.sock"

// ChannelManager is the subset of daemon/registry behavior the control
// plane needs: starting, stopping, redeploying, and reporting the
// status of one channel by ID.
type ChannelManager interface {
	StartChannel(ctx context.Context, channelID string) error
	StopChannel(ctx context.Context, channelID string) error
	ReloadChannel(ctx context.Context, channelID string) error
	DeployChannel(ctx context.Context, channelID string) error
	ChannelStatus(ctx context.Context, channelID string) (state string, err error)
}

// ControlServer is the gRPC-facing interface a *Server implements;
// exported only so the hand-assembled ServiceDesc's HandlerType can
// reference it.
type ControlServer interface {
	Start(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Stop(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Reload(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Deploy(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Status(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// Server adapts ControlServer calls onto a ChannelManager.
type Server struct {
	manager ChannelManager
}

// NewServer wraps manager as a gRPC control plane.
func NewServer(manager ChannelManager) *Server {
	return &Server{manager: manager}
}

func channelID(req *structpb.Struct) (string, error) {
	v, ok := req.GetFields()["channelId"]
	if !ok || v.GetStringValue() == "" {
		return "", fmt.Errorf("rpc: request missing channelId")
	}
	return v.GetStringValue(), nil
}

func okResponse(message string, extra map[string]interface{}) *structpb.Struct {
	fields := map[string]interface{}{"success": true, "message": message}
	for k, v := range extra {
		fields[k] = v
	}
	s, _ := structpb.NewStruct(fields)
	return s
}

func errResponse(err error) (*structpb.Struct, error) {
	s, _ := structpb.NewStruct(map[string]interface{}{"success": false, "message": err.Error()})
	return s, nil
}

func (s *Server) Start(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := channelID(req)
	if err != nil {
		return errResponse(err)
	}
	if err := s.manager.StartChannel(ctx, id); err != nil {
		return errResponse(err)
	}
	return okResponse(fmt.Sprintf("channel %s started", id), nil), nil
}

func (s *Server) Stop(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := channelID(req)
	if err != nil {
		return errResponse(err)
	}
	if err := s.manager.StopChannel(ctx, id); err != nil {
		return errResponse(err)
	}
	return okResponse(fmt.Sprintf("channel %s stopped", id), nil), nil
}

func (s *Server) Reload(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := channelID(req)
	if err != nil {
		return errResponse(err)
	}
	if err := s.manager.ReloadChannel(ctx, id); err != nil {
		return errResponse(err)
	}
	return okResponse(fmt.Sprintf("channel %s reloaded", id), nil), nil
}

func (s *Server) Deploy(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := channelID(req)
	if err != nil {
		return errResponse(err)
	}
	if err := s.manager.DeployChannel(ctx, id); err != nil {
		return errResponse(err)
	}
	return okResponse(fmt.Sprintf("channel %s deployed", id), nil), nil
}

func (s *Server) Status(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := channelID(req)
	if err != nil {
		return errResponse(err)
	}
	state, err := s.manager.ChannelStatus(ctx, id)
	if err != nil {
		return errResponse(err)
	}
	return okResponse("ok", map[string]interface{}{"state": state}), nil
}

var _ ControlServer = (*Server)(nil)

// Register attaches Server to grpcServer via a hand-assembled
// grpc.ServiceDesc.
func Register(grpcServer *grpc.Server, srv *Server) {
	grpcServer.RegisterService(&controlServiceDesc, srv)
}
