package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvushealth/engine/internal/channel"
	"github.com/corvushealth/engine/internal/message"
	"github.com/corvushealth/engine/internal/stats"
	"github.com/corvushealth/engine/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPersistSourceIntakeAndLastMessageID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	msg := message.NewMessage("chan-1", "", 1)
	source := message.NewConnectorMessage("chan-1", 1, message.SourceMetaDataID)
	source.SetContent(message.ContentRaw, "MSH|raw", "HL7V2", false)
	msg.PutConnectorMessage(source)

	settings := storage.FromMode(storage.ModeDevelopment)
	ops := []channel.StatOp{{MetaDataID: message.SourceMetaDataID, Increment: stats.Received}}
	require.NoError(t, s.PersistSourceIntake(ctx, msg, source, settings, ops))

	id, err := s.LastMessageID(ctx, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	snap, err := s.LoadStatsSnapshot(ctx, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap[message.SourceMetaDataID][stats.Received])
	assert.Equal(t, int64(1), snap[stats.AggregateMetaDataID][stats.Received])
}

func TestStatisticsClampAtZero(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	dcm := message.NewConnectorMessage("chan-1", 1, 1)
	decErr := stats.Queued
	ops := []channel.StatOp{{MetaDataID: 1, Increment: stats.Sent, Decrement: &decErr}}
	require.NoError(t, s.PersistDestinationFinal(ctx, dcm, storage.FromMode(storage.ModeProduction), ops))

	snap, err := s.LoadStatsSnapshot(ctx, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap[1][stats.Queued]) // never went negative
	assert.Equal(t, int64(1), snap[1][stats.Sent])
}

func TestAllTerminal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d1 := message.NewConnectorMessage("chan-1", 1, 1)
	d1.Status = message.StatusSent
	require.NoError(t, s.PersistDestinationIntake(ctx, d1))

	d2 := message.NewConnectorMessage("chan-1", 1, 2)
	d2.Status = message.StatusQueued
	require.NoError(t, s.PersistDestinationIntake(ctx, d2))

	terminal, err := s.AllTerminal(ctx, 1, "chan-1")
	require.NoError(t, err)
	assert.False(t, terminal)

	d2.Status = message.StatusError
	require.NoError(t, s.PersistDestinationIntake(ctx, d2))

	terminal, err = s.AllTerminal(ctx, 1, "chan-1")
	require.NoError(t, err)
	assert.True(t, terminal)
}

func TestPendingAndUnfinishedDestinations(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	pending := message.NewConnectorMessage("chan-1", 1, 1)
	pending.Status = message.StatusPending
	pending.SetContent(message.ContentResponse, "ACK", "HL7V2", false)
	require.NoError(t, s.PersistDestinationPending(ctx, pending, storage.FromMode(storage.ModeDevelopment)))

	unfinished := message.NewConnectorMessage("chan-1", 2, 1)
	unfinished.Status = message.StatusQueued
	require.NoError(t, s.PersistDestinationIntake(ctx, unfinished))

	pendingRows, err := s.PendingDestinations(ctx, "chan-1")
	require.NoError(t, err)
	require.Len(t, pendingRows, 1)
	assert.Equal(t, int64(1), pendingRows[0].MessageID)
	resp, ok := pendingRows[0].GetContent(message.ContentResponse)
	require.True(t, ok)
	assert.Equal(t, "ACK", resp.Data)

	unfinishedRows, err := s.UnfinishedDestinations(ctx, "chan-1")
	require.NoError(t, err)
	require.Len(t, unfinishedRows, 1)
	assert.Equal(t, int64(2), unfinishedRows[0].MessageID)
}

func TestQueueEntryRoundTrip(t *testing.T) {
	s := openTestStore(t)

	cm := message.NewConnectorMessage("chan-1", 5, 1)
	cm.Status = message.StatusQueued
	require.NoError(t, s.EnqueueEntry("chan-1", 1, cm))

	loaded, err := s.LoadQueued("chan-1", 1)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, int64(5), loaded[0].MessageID)

	require.NoError(t, s.RemoveEntry("chan-1", 1, 5))
	loaded, err = s.LoadQueued("chan-1", 1)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
