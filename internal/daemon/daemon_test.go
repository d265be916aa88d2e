package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvushealth/engine/internal/channel"
	"github.com/corvushealth/engine/internal/connector"
	"github.com/corvushealth/engine/internal/message"
)

type fakeSource struct{}

func (fakeSource) Name() string                    { return "fake-source" }
func (fakeSource) Deploy(context.Context) error     { return nil }
func (fakeSource) Undeploy(context.Context) error   { return nil }
func (fakeSource) Stop(context.Context) error       { return nil }
func (fakeSource) InboundDataType() string          { return "HL7V2" }
func (fakeSource) Start(context.Context, connector.EventSink, connector.Dispatcher) error {
	return nil
}

type fakeDestination struct {
	name       string
	metaDataID int
}

func (f *fakeDestination) Name() string                  { return f.name }
func (f *fakeDestination) MetaDataID() int                { return f.metaDataID }
func (f *fakeDestination) Deploy(context.Context) error   { return nil }
func (f *fakeDestination) Undeploy(context.Context) error { return nil }
func (f *fakeDestination) Stop(context.Context) error     { return nil }
func (f *fakeDestination) Start(context.Context, connector.EventSink) error { return nil }
func (f *fakeDestination) Send(context.Context, *message.ConnectorMessage) error { return nil }
func (f *fakeDestination) GetResponse(context.Context, *message.ConnectorMessage) (message.Content, bool, error) {
	return message.Content{}, false, nil
}
func (f *fakeDestination) QueueEnabled() bool { return false }

var registerFakeTransport = sync.OnceFunc(func() {
	connector.RegisterSource("fake", func(map[string]interface{}) (connector.Source, error) {
		return fakeSource{}, nil
	})
	connector.RegisterDestination("fake", func(metaDataID int, name string, _ map[string]interface{}) (connector.Destination, error) {
		return &fakeDestination{name: name, metaDataID: metaDataID}, nil
	})
})

const testGlobalConfig = `
node:
  id: test-node
metrics:
  enabled: false
log:
  level: error
  format: text
`

const testChannelYAML = `
id: admissions
name: Admissions
enabled: true
message_storage_mode: development
source:
  transport: fake
`

func writeTestFiles(t *testing.T) (configPath, channelDir, socketPath string) {
	t.Helper()
	dir := t.TempDir()
	configPath = filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(testGlobalConfig), 0o644))

	channelDir = filepath.Join(dir, "channels")
	require.NoError(t, os.MkdirAll(channelDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(channelDir, "admissions.yaml"), []byte(testChannelYAML), 0o644))

	socketPath = filepath.Join(dir, "engine-control.sock")
	return
}

func TestDaemonStartStartsEnabledChannels(t *testing.T) {
	registerFakeTransport()
	configPath, channelDir, socketPath := writeTestFiles(t)

	d, err := New(configPath, channelDir, socketPath, "")
	require.NoError(t, err)
	require.NoError(t, d.Start())
	defer d.Stop()

	status, err := d.runtime.ChannelStatus(context.Background(), "admissions")
	require.NoError(t, err)
	assert.Equal(t, channel.StateStarted.String(), status)
}

func TestDaemonStopIsIdempotentWithoutStart(t *testing.T) {
	configPath, channelDir, socketPath := writeTestFiles(t)
	d, err := New(configPath, channelDir, socketPath, "")
	require.NoError(t, err)
	assert.NotPanics(t, func() { d.Stop(); d.Stop() })
}

func TestDaemonReloadPicksUpNewChannelDefinition(t *testing.T) {
	registerFakeTransport()
	configPath, channelDir, socketPath := writeTestFiles(t)

	d, err := New(configPath, channelDir, socketPath, "")
	require.NoError(t, err)
	require.NoError(t, d.Start())
	defer d.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(channelDir, "lab.yaml"), []byte(`
id: lab
name: Lab
enabled: false
source:
  transport: fake
`), 0o644))

	require.NoError(t, d.Reload())

	_, err = d.runtime.ChannelStatus(context.Background(), "lab")
	assert.NoError(t, err)
}
