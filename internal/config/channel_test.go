package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvushealth/engine/internal/connector"
	"github.com/corvushealth/engine/internal/message"
)

type fakeSource struct{ name string }

func (f *fakeSource) Name() string                                   { return f.name }
func (f *fakeSource) Deploy(ctx context.Context) error                { return nil }
func (f *fakeSource) Undeploy(ctx context.Context) error              { return nil }
func (f *fakeSource) Stop(ctx context.Context) error                  { return nil }
func (f *fakeSource) InboundDataType() string                         { return "HL7V2" }
func (f *fakeSource) Start(ctx context.Context, sink connector.EventSink, d connector.Dispatcher) error {
	return nil
}

type fakeDestination struct {
	name       string
	metaDataID int
}

func (f *fakeDestination) Name() string       { return f.name }
func (f *fakeDestination) MetaDataID() int    { return f.metaDataID }
func (f *fakeDestination) Deploy(context.Context) error   { return nil }
func (f *fakeDestination) Undeploy(context.Context) error { return nil }
func (f *fakeDestination) Stop(context.Context) error     { return nil }
func (f *fakeDestination) Start(context.Context, connector.EventSink) error { return nil }
func (f *fakeDestination) Send(context.Context, *message.ConnectorMessage) error { return nil }
func (f *fakeDestination) GetResponse(context.Context, *message.ConnectorMessage) (message.Content, bool, error) {
	return message.Content{}, false, nil
}
func (f *fakeDestination) QueueEnabled() bool { return false }

var registerTestTransport = sync.OnceFunc(func() {
	connector.RegisterSource("test", func(cfg map[string]interface{}) (connector.Source, error) {
		return &fakeSource{name: "test-source"}, nil
	})
	connector.RegisterDestination("test", func(metaDataID int, name string, cfg map[string]interface{}) (connector.Destination, error) {
		return &fakeDestination{name: name, metaDataID: metaDataID}, nil
	})
})

const sampleYAML = `
id: chan-1
name: Admissions
enabled: true
message_storage_mode: development
encrypt_data: true
deploy_script: "return true;"
filter_script: ""
async_intake: true
ring_size: 1024
message_recovery_enabled: true
source:
  transport: test
  config:
    port: 6661
destinations:
  - meta_data_id: 1
    name: downstream
    transport: test
    message_storage_mode: raw
    store_response: true
    config:
      host: 127.0.0.1
`

func TestLoadChannelDefinitionAndBuild(t *testing.T) {
	registerTestTransport()

	dir := t.TempDir()
	path := filepath.Join(dir, "chan-1.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	def, err := LoadChannelDefinition(path)
	require.NoError(t, err)
	assert.Equal(t, "chan-1", def.ID)
	assert.Equal(t, "test", def.Source.Transport)
	assert.Len(t, def.Destinations, 1)

	cfg, err := def.Build()
	require.NoError(t, err)
	assert.Equal(t, "chan-1", cfg.ChannelID)
	assert.True(t, cfg.Settings.StoreTransformed) // DEVELOPMENT mode
	assert.True(t, cfg.Settings.EncryptData)
	assert.True(t, cfg.AsyncIntake)
	assert.Equal(t, 1024, cfg.RingSize)
	require.Len(t, cfg.Destinations, 1)
	assert.Equal(t, 1, cfg.Destinations[0].MetaDataID)
	assert.True(t, cfg.Destinations[0].Settings.StoreRaw) // RAW mode
	assert.False(t, cfg.Destinations[0].Settings.EncryptData)
	assert.True(t, cfg.Destinations[0].StoreResponse)
}

func TestBuildRejectsMissingID(t *testing.T) {
	def := &ChannelDefinition{Source: ConnectorDefinition{Transport: "test"}}
	_, err := def.Build()
	assert.Error(t, err)
}

func TestBuildRejectsUnknownTransport(t *testing.T) {
	registerTestTransport()
	def := &ChannelDefinition{ID: "chan-2", Source: ConnectorDefinition{Transport: "does-not-exist"}}
	_, err := def.Build()
	assert.Error(t, err)
}

func TestBuildRejectsBadStorageMode(t *testing.T) {
	registerTestTransport()
	def := &ChannelDefinition{
		ID:                 "chan-3",
		Source:             ConnectorDefinition{Transport: "test"},
		MessageStorageMode: "not-a-mode",
	}
	_, err := def.Build()
	assert.Error(t, err)
}
