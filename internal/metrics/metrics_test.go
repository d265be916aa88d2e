package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/corvushealth/engine/internal/stats"
)

func TestObserveSnapshotSeedsCounters(t *testing.T) {
	snapshot := map[int]map[stats.Status]int64{
		stats.AggregateMetaDataID: {stats.Received: 3, stats.Sent: 2},
		1:                         {stats.Sent: 2},
	}
	ObserveSnapshot("chan-metrics-test", snapshot)

	got := testutil.ToFloat64(MessagesTotal.WithLabelValues("chan-metrics-test", DestinationLabel, "RECEIVED"))
	assert.Equal(t, float64(3), got)

	got = testutil.ToFloat64(MessagesTotal.WithLabelValues("chan-metrics-test", "dest-1", "SENT"))
	assert.Equal(t, float64(2), got)
}

func TestDestinationLabel(t *testing.T) {
	assert.Equal(t, "dest-1", destinationLabel(1))
	assert.Equal(t, "dest-42", destinationLabel(42))
}
