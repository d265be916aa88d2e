package channel

import (
	"context"

	"github.com/corvushealth/engine/internal/message"
	"github.com/corvushealth/engine/internal/stats"
	"github.com/corvushealth/engine/internal/storage"
)

// StatOp is one statistics mutation to apply as part of a persistence
// transaction (spec §4.4: "the channel accumulates per-pipeline increments
// and emits them as part of its transactional write for the enclosing
// phase").
type StatOp struct {
	MetaDataID int
	Increment  stats.Status
	Decrement  *stats.Status
}

// Store is the persistence boundary the dispatch pipeline writes
// through. Each method corresponds to one of spec §4.1's named
// transactions (T1-T4) or an untransacted single-row write; a concrete
// implementation (internal/store, backed by modernc.org/sqlite) groups
// the writes of one method call into a single SQL transaction.
type Store interface {
	// ChannelTablesExist reports whether per-channel content tables have
	// already been provisioned (spec §3: "durable when channel tables
	// exist").
	ChannelTablesExist(channelID string) bool
	EnsureChannelTables(ctx context.Context, channelID string) error

	// LoadStatsSnapshot restores the Statistics Accumulator at channel
	// start (spec §4.1 "Start": "load accumulated statistics from the
	// store").
	LoadStatsSnapshot(ctx context.Context, channelID string) (map[int]map[stats.Status]int64, error)

	// LastMessageID returns the highest persisted messageId for a
	// channel, used to seed the local monotonic allocator (spec §4.1 step
	// 1: "durable when channel tables exist").
	LastMessageID(ctx context.Context, channelID string) (int64, error)

	// T1: source intake (spec §4.1 step 4).
	PersistSourceIntake(ctx context.Context, msg *message.Message, source *message.ConnectorMessage, settings storage.Settings, ops []StatOp) error

	// PersistSourceFiltered persists a FILTERED source status and its
	// stat ops in one transaction (spec §4.1 step 8).
	PersistSourceFiltered(ctx context.Context, source *message.ConnectorMessage, ops []StatOp) error

	// PersistSourceError persists an ERROR source status, its
	// processingError text, and stat ops in one transaction (spec §4.1
	// "Error surface").
	PersistSourceError(ctx context.Context, source *message.ConnectorMessage, ops []StatOp) error

	// T2: source processing (spec §4.1 step 9).
	PersistSourceProcessing(ctx context.Context, source *message.ConnectorMessage, settings storage.Settings, ops []StatOp) error

	// PersistDestinationIntake inserts the destination ConnectorMessage
	// row before its filter/transform run (spec §4.1 step 11, first
	// bullet).
	PersistDestinationIntake(ctx context.Context, dest *message.ConnectorMessage) error

	// PersistDestinationFiltered persists a FILTERED destination status
	// and stat ops in one transaction (spec §4.1 step 11, "If filtered").
	PersistDestinationFiltered(ctx context.Context, dest *message.ConnectorMessage, ops []StatOp) error

	// PersistDestinationTransformed persists TRANSFORMED status and
	// ENCODED content if enabled (spec §4.1 step 11, "Run destination
	// transformer").
	PersistDestinationTransformed(ctx context.Context, dest *message.ConnectorMessage, settings storage.Settings) error

	// PersistDestinationPending persists a PENDING checkpoint with
	// RESPONSE content before the response transformer runs (spec §4.1
	// step 11, "mark PENDING checkpoint"; recovery reads this back).
	PersistDestinationPending(ctx context.Context, dest *message.ConnectorMessage, settings storage.Settings) error

	// T3: per-destination finalization (spec §4.1 step 11, last bullet).
	PersistDestinationFinal(ctx context.Context, dest *message.ConnectorMessage, settings storage.Settings, ops []StatOp) error

	// PersistDestinationQueued persists a QUEUED status on send failure
	// for a queue-enabled destination (spec §4.1 step 11, "On send
	// error").
	PersistDestinationQueued(ctx context.Context, dest *message.ConnectorMessage, ops []StatOp) error

	// PersistDestinationError persists an ERROR status, code, and message
	// on a terminal send failure (spec §4.1 step 11, "else mark ERROR").
	PersistDestinationError(ctx context.Context, dest *message.ConnectorMessage, ops []StatOp) error

	// PersistDestinationExcluded synthesizes and persists a FILTERED row
	// for a destination the DestinationSet excluded (spec §4.1 step 12).
	PersistDestinationExcluded(ctx context.Context, dest *message.ConnectorMessage, ops []StatOp) error

	// AllTerminal reports whether every non-source ConnectorMessage for a
	// message has reached a terminal status, gating content pruning (spec
	// §4.1 step 13).
	AllTerminal(ctx context.Context, messageID int64, channelID string) (bool, error)

	// T4: finish (spec §4.1 step 13).
	PersistFinish(ctx context.Context, msg *message.Message, source *message.ConnectorMessage, settings storage.Settings, prune bool) error

	// PersistPostProcessorError records a post-processor failure
	// separately from T4 (spec §4.1 step 13: "on error, write a
	// post-processor error row separately").
	PersistPostProcessorError(ctx context.Context, msg *message.Message, errText string) error

	// PersistSourceMap unconditionally writes the final SOURCE_MAP slot
	// (spec §4.1 step 14).
	PersistSourceMap(ctx context.Context, source *message.ConnectorMessage) error
}
