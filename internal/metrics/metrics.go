// Package metrics implements Prometheus metrics for the channel runtime
// (spec §9 "metrics" collaborator): a numeric projection of the
// Statistics Accumulator (spec §4.4) plus dispatch-pipeline latency and
// queue depth. Grounded on the teacher's internal/metrics/metrics.go
// (promauto counter/gauge/histogram vecs), renamed from packet-capture
// to channel-engine domain names.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/corvushealth/engine/internal/stats"
)

var (
	// MessagesTotal counts ConnectorMessages by channel, destination
	// (metaDataId, "source" for the source leg), and status (spec §4.4
	// status vocabulary projected as a label instead of a map key).
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_messages_total",
			Help: "Total ConnectorMessages by channel, destination, and status",
		},
		[]string{"channel", "destination", "status"},
	)

	// DispatchLatencySeconds measures time spent in each transactional
	// phase of the dispatch pipeline (spec §4.1 T1-T4).
	DispatchLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_dispatch_latency_seconds",
			Help:    "Latency of dispatch pipeline phases in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
		[]string{"channel", "phase"},
	)

	// QueueDepth tracks the current number of entries in a destination's
	// retry queue (spec §4.2 queue worker).
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_queue_depth",
			Help: "Current number of entries in a destination's retry queue",
		},
		[]string{"channel", "destination"},
	)

	// ChannelState tracks each channel's current lifecycle state as a
	// gauge of 0/1, one time series per (channel, state) pair (spec §4.1
	// state machine).
	ChannelState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_channel_state",
			Help: "Current lifecycle state of a channel (1 for the active state, 0 otherwise)",
		},
		[]string{"channel", "state"},
	)

	// ConnectorErrorsTotal counts errors raised by a connector (source or
	// destination) by type.
	ConnectorErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_connector_errors_total",
			Help: "Total number of connector errors",
		},
		[]string{"channel", "connector", "error_type"},
	)
)

// DestinationLabel is the destination label value for a channel's
// source leg, mirroring how the store keys source rows (spec §4.4:
// "statistics table ... keyed by (metaDataId, serverId)", with the
// source treated as metaDataId 0).
const DestinationLabel = "source"

// ObserveSnapshot seeds MessagesTotal from a restored Accumulator
// snapshot (metaDataID -> stats.Status -> count) for channelID, adding
// each positive count. It is the only code in this repository that adds
// to MessagesTotal: stats.Accumulator.UpdateStatus does not touch these
// metrics, and DispatchLatencySeconds, QueueDepth and
// ConnectorErrorsTotal are registered but nothing records into them.
func ObserveSnapshot(channelID string, snapshot map[int]map[stats.Status]int64) {
	for metaDataID, byStatus := range snapshot {
		destination := DestinationLabel
		if metaDataID != stats.AggregateMetaDataID && metaDataID != 0 {
			destination = destinationLabel(metaDataID)
		}
		for status, count := range byStatus {
			if count <= 0 {
				continue
			}
			MessagesTotal.WithLabelValues(channelID, destination, status.String()).Add(float64(count))
		}
	}
}

func destinationLabel(metaDataID int) string {
	return "dest-" + strconv.Itoa(metaDataID)
}
