package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvushealth/engine/internal/channel"
	"github.com/corvushealth/engine/internal/event"
	"github.com/corvushealth/engine/internal/store"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	registerFakeTransport()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	bus := event.NewBus(2, 16)
	t.Cleanup(bus.Close)
	return NewRuntime(st, bus)
}

func writeChannelYAML(t *testing.T, dir, id string, enabled bool) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".yaml"), []byte(`
id: `+id+`
name: `+id+`
enabled: `+boolString(enabled)+`
source:
  transport: fake
`), 0o644))
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func TestRuntimeLoadDirAndStartAll(t *testing.T) {
	r := newTestRuntime(t)
	dir := t.TempDir()
	writeChannelYAML(t, dir, "chan-a", true)
	writeChannelYAML(t, dir, "chan-b", false)

	require.NoError(t, r.LoadDir(dir))
	require.NoError(t, r.StartAll(context.Background()))

	status, err := r.ChannelStatus(context.Background(), "chan-a")
	require.NoError(t, err)
	assert.Equal(t, channel.StateStarted.String(), status)

	status, err = r.ChannelStatus(context.Background(), "chan-b")
	require.NoError(t, err)
	assert.Equal(t, channel.StateStopped.String(), status)
}

func TestRuntimeStopChannelOnUndeployedIsNoop(t *testing.T) {
	r := newTestRuntime(t)
	dir := t.TempDir()
	writeChannelYAML(t, dir, "chan-c", false)
	require.NoError(t, r.LoadDir(dir))

	assert.NoError(t, r.StopChannel(context.Background(), "chan-c"))
}

func TestRuntimeUnknownChannelErrors(t *testing.T) {
	r := newTestRuntime(t)
	_, err := r.ChannelStatus(context.Background(), "does-not-exist")
	assert.Error(t, err)
	assert.Error(t, r.StartChannel(context.Background(), "does-not-exist"))
}

func TestRuntimeReloadChannelRestarts(t *testing.T) {
	r := newTestRuntime(t)
	dir := t.TempDir()
	writeChannelYAML(t, dir, "chan-d", true)
	require.NoError(t, r.LoadDir(dir))
	require.NoError(t, r.StartChannel(context.Background(), "chan-d"))

	require.NoError(t, r.ReloadChannel(context.Background(), "chan-d"))

	status, err := r.ChannelStatus(context.Background(), "chan-d")
	require.NoError(t, err)
	assert.Equal(t, channel.StateStarted.String(), status)
}

func TestRuntimeLoadDirPreservesRunningChannelOnRescan(t *testing.T) {
	r := newTestRuntime(t)
	dir := t.TempDir()
	writeChannelYAML(t, dir, "chan-e", true)
	require.NoError(t, r.LoadDir(dir))
	require.NoError(t, r.StartChannel(context.Background(), "chan-e"))

	require.NoError(t, r.LoadDir(dir)) // rescan, same definition

	status, err := r.ChannelStatus(context.Background(), "chan-e")
	require.NoError(t, err)
	assert.Equal(t, channel.StateStarted.String(), status)
}
