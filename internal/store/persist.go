package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/corvushealth/engine/internal/channel"
	"github.com/corvushealth/engine/internal/message"
	"github.com/corvushealth/engine/internal/stats"
	"github.com/corvushealth/engine/internal/storage"
)

// LastMessageID returns the highest persisted messageId for channelID, or
// 0 if the channel has never run (spec §4.1 step 1).
func (s *Store) LastMessageID(ctx context.Context, channelID string) (int64, error) {
	var max sql.NullInt64
	row := s.db.QueryRowContext(ctx, `SELECT MAX(message_id) FROM messages WHERE channel_id = ?`, channelID)
	if err := row.Scan(&max); err != nil {
		return 0, fmt.Errorf("store: last message id: %w", err)
	}
	return max.Int64, nil
}

// LoadStatsSnapshot restores the Statistics Accumulator at channel start
// (spec §4.1 "Start").
func (s *Store) LoadStatsSnapshot(ctx context.Context, channelID string) (map[int]map[stats.Status]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT meta_data_id, status, count FROM statistics WHERE channel_id = ?`, channelID)
	if err != nil {
		return nil, fmt.Errorf("store: load stats snapshot: %w", err)
	}
	defer rows.Close()

	out := make(map[int]map[stats.Status]int64)
	for rows.Next() {
		var metaDataID int
		var status int
		var count int64
		if err := rows.Scan(&metaDataID, &status, &count); err != nil {
			return nil, fmt.Errorf("store: load stats snapshot: %w", err)
		}
		if out[metaDataID] == nil {
			out[metaDataID] = make(map[stats.Status]int64)
		}
		out[metaDataID][stats.Status(status)] = count
	}
	return out, rows.Err()
}

// PersistSourceIntake is T1 (spec §4.1 step 4): insert the message row,
// the source connector_message row, its RAW content if enabled, and the
// RECEIVED stat op, in one transaction.
func (s *Store) PersistSourceIntake(ctx context.Context, msg *message.Message, source *message.ConnectorMessage, settings storage.Settings, ops []channel.StatOp) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (channel_id, message_id, server_id, received_date, processed)
			VALUES (?, ?, ?, ?, FALSE)
			ON CONFLICT(channel_id, message_id) DO NOTHING
		`, msg.ChannelID, msg.MessageID, msg.ServerID, msg.ReceivedDate); err != nil {
			return err
		}
		if err := upsertConnectorMessage(ctx, tx, source); err != nil {
			return err
		}
		if settings.StoreRaw {
			if err := upsertContent(ctx, tx, source, message.ContentRaw); err != nil {
				return err
			}
		}
		return applyStatOps(ctx, tx, source.ChannelID, ops)
	})
}

// PersistSourceFiltered persists a FILTERED source status and its stat
// ops in one transaction (spec §4.1 step 8).
func (s *Store) PersistSourceFiltered(ctx context.Context, source *message.ConnectorMessage, ops []channel.StatOp) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := upsertConnectorMessage(ctx, tx, source); err != nil {
			return err
		}
		return applyStatOps(ctx, tx, source.ChannelID, ops)
	})
}

// PersistSourceError persists an ERROR source status, its processingError
// text, and stat ops in one transaction (spec §4.1 "Error surface").
func (s *Store) PersistSourceError(ctx context.Context, source *message.ConnectorMessage, ops []channel.StatOp) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := upsertConnectorMessage(ctx, tx, source); err != nil {
			return err
		}
		return applyStatOps(ctx, tx, source.ChannelID, ops)
	})
}

// PersistSourceProcessing is T2 (spec §4.1 step 9): TRANSFORMED status,
// TRANSFORMED/ENCODED content if enabled, and stat ops.
func (s *Store) PersistSourceProcessing(ctx context.Context, source *message.ConnectorMessage, settings storage.Settings, ops []channel.StatOp) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := upsertConnectorMessage(ctx, tx, source); err != nil {
			return err
		}
		if settings.StoreTransformed {
			if err := upsertContent(ctx, tx, source, message.ContentTransformed); err != nil {
				return err
			}
		}
		if settings.StoreEncoded {
			if err := upsertContent(ctx, tx, source, message.ContentEncoded); err != nil {
				return err
			}
		}
		return applyStatOps(ctx, tx, source.ChannelID, ops)
	})
}

// PersistDestinationIntake inserts the destination connector_message row
// before its filter/transform run (spec §4.1 step 11, first bullet).
func (s *Store) PersistDestinationIntake(ctx context.Context, dest *message.ConnectorMessage) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return upsertConnectorMessage(ctx, tx, dest)
	})
}

// PersistDestinationFiltered persists a FILTERED destination status and
// stat ops (spec §4.1 step 11, "If filtered").
func (s *Store) PersistDestinationFiltered(ctx context.Context, dest *message.ConnectorMessage, ops []channel.StatOp) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := upsertConnectorMessage(ctx, tx, dest); err != nil {
			return err
		}
		return applyStatOps(ctx, tx, dest.ChannelID, ops)
	})
}

// PersistDestinationTransformed persists TRANSFORMED status and ENCODED
// content if enabled (spec §4.1 step 11, "Run destination transformer").
func (s *Store) PersistDestinationTransformed(ctx context.Context, dest *message.ConnectorMessage, settings storage.Settings) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := upsertConnectorMessage(ctx, tx, dest); err != nil {
			return err
		}
		if settings.StoreTransformed {
			if err := upsertContent(ctx, tx, dest, message.ContentTransformed); err != nil {
				return err
			}
		}
		if settings.StoreEncoded {
			if err := upsertContent(ctx, tx, dest, message.ContentEncoded); err != nil {
				return err
			}
		}
		return nil
	})
}

// PersistDestinationPending persists a PENDING checkpoint with RESPONSE
// content before the response transformer runs (spec §4.1 step 11, "mark
// PENDING checkpoint"; recovery reads this back).
func (s *Store) PersistDestinationPending(ctx context.Context, dest *message.ConnectorMessage, settings storage.Settings) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := upsertConnectorMessage(ctx, tx, dest); err != nil {
			return err
		}
		if settings.StoreResponse {
			if err := upsertContent(ctx, tx, dest, message.ContentResponse); err != nil {
				return err
			}
		}
		return nil
	})
}

// PersistDestinationFinal is T3 (spec §4.1 step 11, last bullet):
// SENT status, SENT/RESPONSE_TRANSFORMED content if enabled, and stat
// ops.
func (s *Store) PersistDestinationFinal(ctx context.Context, dest *message.ConnectorMessage, settings storage.Settings, ops []channel.StatOp) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := upsertConnectorMessage(ctx, tx, dest); err != nil {
			return err
		}
		if settings.StoreSent {
			if err := upsertContent(ctx, tx, dest, message.ContentSent); err != nil {
				return err
			}
		}
		if settings.StoreResponseTransformed {
			if err := upsertContent(ctx, tx, dest, message.ContentResponseTransformed); err != nil {
				return err
			}
		}
		return applyStatOps(ctx, tx, dest.ChannelID, ops)
	})
}

// PersistDestinationQueued persists a QUEUED status on send failure for a
// queue-enabled destination (spec §4.1 step 11, "On send error").
func (s *Store) PersistDestinationQueued(ctx context.Context, dest *message.ConnectorMessage, ops []channel.StatOp) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := upsertConnectorMessage(ctx, tx, dest); err != nil {
			return err
		}
		return applyStatOps(ctx, tx, dest.ChannelID, ops)
	})
}

// PersistDestinationError persists an ERROR status, code, and message on a
// terminal send failure (spec §4.1 step 11, "else mark ERROR").
func (s *Store) PersistDestinationError(ctx context.Context, dest *message.ConnectorMessage, ops []channel.StatOp) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := upsertConnectorMessage(ctx, tx, dest); err != nil {
			return err
		}
		return applyStatOps(ctx, tx, dest.ChannelID, ops)
	})
}

// PersistDestinationExcluded synthesizes and persists a FILTERED row for a
// destination the DestinationSet excluded (spec §4.1 step 12).
func (s *Store) PersistDestinationExcluded(ctx context.Context, dest *message.ConnectorMessage, ops []channel.StatOp) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := upsertConnectorMessage(ctx, tx, dest); err != nil {
			return err
		}
		return applyStatOps(ctx, tx, dest.ChannelID, ops)
	})
}

// AllTerminal reports whether every non-source connector_message for
// messageID has reached a terminal status (spec §4.1 step 13).
func (s *Store) AllTerminal(ctx context.Context, messageID int64, channelID string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status FROM connector_messages
		WHERE channel_id = ? AND message_id = ? AND meta_data_id != ?
	`, channelID, messageID, message.SourceMetaDataID)
	if err != nil {
		return false, fmt.Errorf("store: all terminal: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status int
		if err := rows.Scan(&status); err != nil {
			return false, fmt.Errorf("store: all terminal: %w", err)
		}
		if !message.Status(status).IsTerminal() {
			return false, nil
		}
	}
	return true, rows.Err()
}

// PersistFinish is T4 (spec §4.1 step 13): marks the message processed
// and, if every destination reached a terminal status and
// RemoveContentOnCompletion is set, prunes content rows for the message.
func (s *Store) PersistFinish(ctx context.Context, msg *message.Message, source *message.ConnectorMessage, settings storage.Settings, prune bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE messages SET processed = TRUE WHERE channel_id = ? AND message_id = ?
		`, msg.ChannelID, msg.MessageID); err != nil {
			return err
		}
		if prune && settings.RemoveContentOnCompletion {
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM content WHERE channel_id = ? AND message_id = ?
			`, msg.ChannelID, msg.MessageID); err != nil {
				return err
			}
		}
		return nil
	})
}

// PersistPostProcessorError records a post-processor failure separately
// from T4 (spec §4.1 step 13: "on error, write a post-processor error row
// separately").
func (s *Store) PersistPostProcessorError(ctx context.Context, msg *message.Message, errText string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE connector_messages SET post_processor_error = ?
			WHERE channel_id = ? AND message_id = ? AND meta_data_id = ?
		`, errText, msg.ChannelID, msg.MessageID, message.SourceMetaDataID)
		return err
	})
}

// PersistSourceMap unconditionally writes the final SOURCE_MAP slot (spec
// §4.1 step 14) regardless of storage settings — the source map is the
// one artifact every downstream recovery/debugging path needs to reread.
func (s *Store) PersistSourceMap(ctx context.Context, source *message.ConnectorMessage) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE connector_messages SET source_map = ?
			WHERE channel_id = ? AND message_id = ? AND meta_data_id = ?
		`, encodeMap(source.SourceMap), source.ChannelID, source.MessageID, source.MetaDataID)
		return err
	})
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func upsertConnectorMessage(ctx context.Context, tx *sql.Tx, cm *message.ConnectorMessage) error {
	var sendDate, responseDate interface{}
	if !cm.SendDate.IsZero() {
		sendDate = cm.SendDate
	}
	if !cm.ResponseDate.IsZero() {
		responseDate = cm.ResponseDate
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO connector_messages (
			channel_id, message_id, meta_data_id, status, send_attempts,
			send_date, response_date, processing_error, response_error,
			post_processor_error, error_code, source_map, channel_map,
			connector_map, response_map
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id, message_id, meta_data_id) DO UPDATE SET
			status = excluded.status,
			send_attempts = excluded.send_attempts,
			send_date = excluded.send_date,
			response_date = excluded.response_date,
			processing_error = excluded.processing_error,
			response_error = excluded.response_error,
			post_processor_error = excluded.post_processor_error,
			error_code = excluded.error_code,
			source_map = excluded.source_map,
			channel_map = excluded.channel_map,
			connector_map = excluded.connector_map,
			response_map = excluded.response_map
	`,
		cm.ChannelID, cm.MessageID, cm.MetaDataID, int(cm.Status), cm.SendAttempts,
		sendDate, responseDate, cm.ProcessingError, cm.ResponseError,
		cm.PostProcessorError, cm.ErrorCode, encodeMap(cm.SourceMap), encodeMap(cm.ChannelMap),
		encodeMap(cm.ConnectorMap), encodeMap(cm.ResponseMap),
	)
	return err
}

func upsertContent(ctx context.Context, tx *sql.Tx, cm *message.ConnectorMessage, t message.ContentType) error {
	c, ok := cm.GetContent(t)
	if !ok {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO content (channel_id, message_id, meta_data_id, content_type, data, data_type, encrypted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id, message_id, meta_data_id, content_type) DO UPDATE SET
			data = excluded.data, data_type = excluded.data_type, encrypted = excluded.encrypted
	`, cm.ChannelID, cm.MessageID, cm.MetaDataID, int(t), c.Data, c.DataType, c.Encrypted)
	return err
}

// applyStatOps mirrors stats.Accumulator's aggregation rule (RECEIVED only
// from the source, SENT only from destinations, everything else from any
// connector) so a persisted snapshot reloads to the same counts the
// in-memory Accumulator would have reached by applying the same ops.
func applyStatOps(ctx context.Context, tx *sql.Tx, channelID string, ops []channel.StatOp) error {
	for _, op := range ops {
		if err := bumpStat(ctx, tx, channelID, op.MetaDataID, op.Increment, 1); err != nil {
			return err
		}
		if aggregateApplies(op.MetaDataID, op.Increment) {
			if err := bumpStat(ctx, tx, channelID, stats.AggregateMetaDataID, op.Increment, 1); err != nil {
				return err
			}
		}
		if op.Decrement != nil {
			if err := bumpStat(ctx, tx, channelID, op.MetaDataID, *op.Decrement, -1); err != nil {
				return err
			}
			if aggregateApplies(op.MetaDataID, *op.Decrement) {
				if err := bumpStat(ctx, tx, channelID, stats.AggregateMetaDataID, *op.Decrement, -1); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func aggregateApplies(metaDataID int, status stats.Status) bool {
	isSource := metaDataID == message.SourceMetaDataID
	switch status {
	case stats.Received:
		return isSource
	case stats.Sent:
		return !isSource
	default:
		return true
	}
}

func bumpStat(ctx context.Context, tx *sql.Tx, channelID string, metaDataID int, status stats.Status, delta int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO statistics (channel_id, meta_data_id, status, count)
		VALUES (?, ?, ?, MAX(?, 0))
		ON CONFLICT(channel_id, meta_data_id, status) DO UPDATE SET
			count = MAX(count + ?, 0)
	`, channelID, metaDataID, int(status), delta, delta)
	return err
}
