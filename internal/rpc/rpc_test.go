package rpc

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

type fakeManager struct {
	failStart error
	lastStart string
	state     string
	statusErr error
}

func (f *fakeManager) StartChannel(ctx context.Context, channelID string) error {
	f.lastStart = channelID
	return f.failStart
}
func (f *fakeManager) StopChannel(ctx context.Context, channelID string) error  { return nil }
func (f *fakeManager) ReloadChannel(ctx context.Context, channelID string) error { return nil }
func (f *fakeManager) DeployChannel(ctx context.Context, channelID string) error { return nil }
func (f *fakeManager) ChannelStatus(ctx context.Context, channelID string) (string, error) {
	return f.state, f.statusErr
}

func reqFor(t *testing.T, channelID string) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(map[string]interface{}{"channelId": channelID})
	require.NoError(t, err)
	return s
}

func TestServerStartSuccess(t *testing.T) {
	mgr := &fakeManager{}
	s := NewServer(mgr)

	resp, err := s.Start(context.Background(), reqFor(t, "chan-1"))
	require.NoError(t, err)
	assert.True(t, resp.GetFields()["success"].GetBoolValue())
	assert.Equal(t, "chan-1", mgr.lastStart)
}

func TestServerStartFailurePropagatesAsUnsuccessfulResponse(t *testing.T) {
	mgr := &fakeManager{failStart: fmt.Errorf("deploy script failed")}
	s := NewServer(mgr)

	resp, err := s.Start(context.Background(), reqFor(t, "chan-1"))
	require.NoError(t, err) // errors are reported in the response, not as gRPC errors
	assert.False(t, resp.GetFields()["success"].GetBoolValue())
	assert.Contains(t, resp.GetFields()["message"].GetStringValue(), "deploy script failed")
}

func TestServerMissingChannelID(t *testing.T) {
	mgr := &fakeManager{}
	s := NewServer(mgr)

	empty, err := structpb.NewStruct(map[string]interface{}{})
	require.NoError(t, err)

	resp, err := s.Start(context.Background(), empty)
	require.NoError(t, err)
	assert.False(t, resp.GetFields()["success"].GetBoolValue())
}

func TestServerStatus(t *testing.T) {
	mgr := &fakeManager{state: "STARTED"}
	s := NewServer(mgr)

	resp, err := s.Status(context.Background(), reqFor(t, "chan-1"))
	require.NoError(t, err)
	assert.True(t, resp.GetFields()["success"].GetBoolValue())
	assert.Equal(t, "STARTED", resp.GetFields()["state"].GetStringValue())
}
