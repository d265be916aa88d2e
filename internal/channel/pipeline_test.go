package channel

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvushealth/engine/internal/connector"
	"github.com/corvushealth/engine/internal/message"
	"github.com/corvushealth/engine/internal/script"
	"github.com/corvushealth/engine/internal/stats"
	"github.com/corvushealth/engine/internal/storage"
)

// fakeSource is a connector.Source whose dispatcher can be driven
// directly by a test.
type fakeSource struct {
	name       string
	dataType   string
	dispatcher connector.Dispatcher
}

func (f *fakeSource) Name() string                       { return f.name }
func (f *fakeSource) Deploy(ctx context.Context) error    { return nil }
func (f *fakeSource) Undeploy(ctx context.Context) error  { return nil }
func (f *fakeSource) Stop(ctx context.Context) error      { return nil }
func (f *fakeSource) InboundDataType() string             { return f.dataType }
func (f *fakeSource) Start(ctx context.Context, sink connector.EventSink, dispatcher connector.Dispatcher) error {
	f.dispatcher = dispatcher
	return nil
}

// fakeDestination records every Send and always succeeds.
type fakeDestination struct {
	mu    sync.Mutex
	name  string
	meta  int
	sent  []string
	queue bool
}

func (f *fakeDestination) Name() string                      { return f.name }
func (f *fakeDestination) MetaDataID() int                    { return f.meta }
func (f *fakeDestination) Deploy(ctx context.Context) error   { return nil }
func (f *fakeDestination) Undeploy(ctx context.Context) error { return nil }
func (f *fakeDestination) Start(ctx context.Context, sink connector.EventSink) error { return nil }
func (f *fakeDestination) Stop(ctx context.Context) error     { return nil }
func (f *fakeDestination) QueueEnabled() bool                 { return f.queue }
func (f *fakeDestination) Send(ctx context.Context, cm *message.ConnectorMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cm.Content[message.ContentEncoded].Data)
	return nil
}
func (f *fakeDestination) GetResponse(ctx context.Context, cm *message.ConnectorMessage) (message.Content, bool, error) {
	return message.Content{}, false, nil
}

// fakeStore is an in-memory Store that records every call and never
// fails, standing in for internal/store in unit tests.
type fakeStore struct {
	mu               sync.Mutex
	excludedDestIDs  []int
	finalizedDestIDs []int
	finished         bool
}

func (s *fakeStore) ChannelTablesExist(channelID string) bool { return true }
func (s *fakeStore) EnsureChannelTables(ctx context.Context, channelID string) error { return nil }
func (s *fakeStore) LoadStatsSnapshot(ctx context.Context, channelID string) (map[int]map[stats.Status]int64, error) {
	return nil, nil
}
func (s *fakeStore) LastMessageID(ctx context.Context, channelID string) (int64, error) { return 0, nil }
func (s *fakeStore) PersistSourceIntake(ctx context.Context, msg *message.Message, source *message.ConnectorMessage, settings storage.Settings, ops []StatOp) error {
	return nil
}
func (s *fakeStore) PersistSourceFiltered(ctx context.Context, source *message.ConnectorMessage, ops []StatOp) error {
	return nil
}
func (s *fakeStore) PersistSourceError(ctx context.Context, source *message.ConnectorMessage, ops []StatOp) error {
	return nil
}
func (s *fakeStore) PersistSourceProcessing(ctx context.Context, source *message.ConnectorMessage, settings storage.Settings, ops []StatOp) error {
	return nil
}
func (s *fakeStore) PersistDestinationIntake(ctx context.Context, dest *message.ConnectorMessage) error {
	return nil
}
func (s *fakeStore) PersistDestinationFiltered(ctx context.Context, dest *message.ConnectorMessage, ops []StatOp) error {
	return nil
}
func (s *fakeStore) PersistDestinationTransformed(ctx context.Context, dest *message.ConnectorMessage, settings storage.Settings) error {
	return nil
}
func (s *fakeStore) PersistDestinationPending(ctx context.Context, dest *message.ConnectorMessage, settings storage.Settings) error {
	return nil
}
func (s *fakeStore) PersistDestinationFinal(ctx context.Context, dest *message.ConnectorMessage, settings storage.Settings, ops []StatOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizedDestIDs = append(s.finalizedDestIDs, dest.MetaDataID)
	return nil
}
func (s *fakeStore) PersistDestinationQueued(ctx context.Context, dest *message.ConnectorMessage, ops []StatOp) error {
	return nil
}
func (s *fakeStore) PersistDestinationError(ctx context.Context, dest *message.ConnectorMessage, ops []StatOp) error {
	return nil
}
func (s *fakeStore) PersistDestinationExcluded(ctx context.Context, dest *message.ConnectorMessage, ops []StatOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.excludedDestIDs = append(s.excludedDestIDs, dest.MetaDataID)
	return nil
}
func (s *fakeStore) AllTerminal(ctx context.Context, messageID int64, channelID string) (bool, error) {
	return true, nil
}
func (s *fakeStore) PersistFinish(ctx context.Context, msg *message.Message, source *message.ConnectorMessage, settings storage.Settings, prune bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
	return nil
}
func (s *fakeStore) PersistPostProcessorError(ctx context.Context, msg *message.Message, errText string) error {
	return nil
}
func (s *fakeStore) PersistSourceMap(ctx context.Context, source *message.ConnectorMessage) error {
	return nil
}

func newTestChannel(t *testing.T, src *fakeSource, dests []*fakeDestination, executor script.Executor) (*Channel, *fakeStore) {
	t.Helper()
	specs := make([]DestinationSpec, 0, len(dests))
	for i, d := range dests {
		specs = append(specs, DestinationSpec{
			MetaDataID: i + 1,
			Name:       d.name,
			Connector:  d,
			Settings:   storage.FromMode(storage.ModeDevelopment),
		})
	}
	store := &fakeStore{}
	cfg := Config{
		ChannelID:    "chan-1",
		ChannelName:  "Chan One",
		Source:       src,
		Settings:     storage.FromMode(storage.ModeDevelopment),
		Destinations: specs,
	}
	ch := New(cfg, store, executor, NoopPublisher{})
	require.NoError(t, ch.Start(context.Background()))
	return ch, store
}

func TestDispatchHappyPathSendsToAllDestinations(t *testing.T) {
	src := &fakeSource{name: "src", dataType: "HL7V2"}
	d1 := &fakeDestination{name: "d1", meta: 1}
	d2 := &fakeDestination{name: "d2", meta: 2}
	_, store := newTestChannel(t, src, []*fakeDestination{d1, d2}, script.NoopExecutor)

	msg, err := src.dispatcher.Dispatch(context.Background(), "MSH|raw", map[string]interface{}{})
	require.NoError(t, err)
	assert.True(t, msg.Processed)
	assert.Len(t, d1.sent, 1)
	assert.Len(t, d2.sent, 1)
	assert.ElementsMatch(t, []int{1, 2}, store.finalizedDestIDs)
	assert.True(t, store.finished)
}

// destinationFilterScript removes destination 2 from the DestinationSet,
// exercising spec's exclusion accounting (§4.1 step 12).
type destinationFilterScript struct{}

func (destinationFilterScript) Execute(ctx context.Context, scriptSource string, bindings script.Bindings) (script.Result, error) {
	if scriptSource == "remove-dest-2" {
		if ds, ok := bindings.SourceMap[message.DestinationSetKey].(*message.DestinationSet); ok {
			ds.Remove(2)
		}
	}
	return script.Result{Content: bindings.Content}, nil
}

func TestDispatchExcludedDestinationSynthesizesFilteredRow(t *testing.T) {
	src := &fakeSource{name: "src", dataType: "HL7V2"}
	d1 := &fakeDestination{name: "d1", meta: 1}
	d2 := &fakeDestination{name: "d2", meta: 2}

	specs := []DestinationSpec{
		{MetaDataID: 1, Name: "d1", Connector: d1, Settings: storage.FromMode(storage.ModeDevelopment)},
		{MetaDataID: 2, Name: "d2", Connector: d2, Settings: storage.FromMode(storage.ModeDevelopment)},
	}
	store := &fakeStore{}
	cfg := Config{
		ChannelID:   "chan-1",
		ChannelName: "Chan One",
		Source:      src,
		Settings:    storage.FromMode(storage.ModeDevelopment),
		Scripts:     Scripts{Filter: "remove-dest-2"},
		Destinations: specs,
	}
	ch := New(cfg, store, destinationFilterScript{}, NoopPublisher{})
	require.NoError(t, ch.Start(context.Background()))

	_, err := src.dispatcher.Dispatch(context.Background(), "MSH|raw", map[string]interface{}{})
	require.NoError(t, err)

	assert.Empty(t, d2.sent)
	assert.Len(t, d1.sent, 1)
	assert.Contains(t, store.excludedDestIDs, 2)
}
