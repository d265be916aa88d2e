package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/corvushealth/engine/internal/message"
)

// PendingDestinations returns destination connector_messages left at the
// PENDING checkpoint (response captured, response transformer not yet
// run) when the process last stopped (spec §4.4 "Recovery task").
func (s *Store) PendingDestinations(ctx context.Context, channelID string) ([]*message.ConnectorMessage, error) {
	return s.queryConnectorMessages(ctx, `
		SELECT channel_id, message_id, meta_data_id, status, send_attempts,
			processing_error, response_error, post_processor_error, error_code,
			source_map, channel_map, connector_map, response_map
		FROM connector_messages
		WHERE channel_id = ? AND meta_data_id != ? AND status = ?
	`, channelID, message.SourceMetaDataID, int(message.StatusPending))
}

// UnfinishedDestinations returns destination connector_messages that had
// not yet reached PENDING or a terminal status when the process last
// stopped — candidates for re-enqueueing onto the destination's queue
// (spec §4.4 "Recovery task").
func (s *Store) UnfinishedDestinations(ctx context.Context, channelID string) ([]*message.ConnectorMessage, error) {
	return s.queryConnectorMessages(ctx, `
		SELECT channel_id, message_id, meta_data_id, status, send_attempts,
			processing_error, response_error, post_processor_error, error_code,
			source_map, channel_map, connector_map, response_map
		FROM connector_messages
		WHERE channel_id = ? AND meta_data_id != ?
			AND status NOT IN (?, ?, ?, ?)
	`, channelID, message.SourceMetaDataID,
		int(message.StatusPending), int(message.StatusSent), int(message.StatusFiltered), int(message.StatusError))
}

func (s *Store) queryConnectorMessages(ctx context.Context, query string, args ...interface{}) ([]*message.ConnectorMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query connector messages: %w", err)
	}
	defer rows.Close()

	var out []*message.ConnectorMessage
	for rows.Next() {
		cm, err := scanConnectorMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan connector message: %w", err)
		}
		if err := s.loadContent(ctx, cm); err != nil {
			return nil, err
		}
		out = append(out, cm)
	}
	return out, rows.Err()
}

func scanConnectorMessage(rows *sql.Rows) (*message.ConnectorMessage, error) {
	var (
		channelID                                                       string
		messageID                                                       int64
		metaDataID, status, sendAttempts, errorCode                     int
		processingError, responseError, postProcessorError              sql.NullString
		sourceMapJSON, channelMapJSON, connectorMapJSON, responseMapJSON string
	)
	if err := rows.Scan(
		&channelID, &messageID, &metaDataID, &status, &sendAttempts,
		&processingError, &responseError, &postProcessorError, &errorCode,
		&sourceMapJSON, &channelMapJSON, &connectorMapJSON, &responseMapJSON,
	); err != nil {
		return nil, err
	}

	cm := message.NewConnectorMessage(channelID, messageID, metaDataID)
	cm.Status = message.Status(status)
	cm.SendAttempts = sendAttempts
	cm.ProcessingError = processingError.String
	cm.ResponseError = responseError.String
	cm.PostProcessorError = postProcessorError.String
	cm.ErrorCode = errorCode
	cm.SourceMap = decodeMap(sourceMapJSON)
	cm.ChannelMap = decodeMap(channelMapJSON)
	cm.ConnectorMap = decodeMap(connectorMapJSON)
	cm.ResponseMap = decodeMap(responseMapJSON)
	return cm, nil
}

func (s *Store) loadContent(ctx context.Context, cm *message.ConnectorMessage) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT content_type, data, data_type, encrypted FROM content
		WHERE channel_id = ? AND message_id = ? AND meta_data_id = ?
	`, cm.ChannelID, cm.MessageID, cm.MetaDataID)
	if err != nil {
		return fmt.Errorf("store: load content: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var contentType int
		var c message.Content
		if err := rows.Scan(&contentType, &c.Data, &c.DataType, &c.Encrypted); err != nil {
			return fmt.Errorf("store: load content: %w", err)
		}
		cm.Content[message.ContentType(contentType)] = c
	}
	return rows.Err()
}

// EnqueueEntry persists a destination's retry-queue entry so it survives a
// restart (connector.QueueStore; spec §3 "Destination Queue entry").
func (s *Store) EnqueueEntry(channelID string, metaDataID int, cm *message.ConnectorMessage) error {
	ctx := context.Background()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := upsertConnectorMessage(ctx, tx, cm); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO queue_entries (channel_id, meta_data_id, message_id, payload)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(channel_id, meta_data_id, message_id) DO UPDATE SET payload = excluded.payload
		`, channelID, metaDataID, cm.MessageID, encodeMap(cm.ChannelMap))
		return err
	})
}

// RemoveEntry deletes a durable queue entry once it reaches a terminal
// status (connector.QueueStore).
func (s *Store) RemoveEntry(channelID string, metaDataID int, messageID int64) error {
	ctx := context.Background()
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM queue_entries WHERE channel_id = ? AND meta_data_id = ? AND message_id = ?
	`, channelID, metaDataID, messageID)
	if err != nil {
		return fmt.Errorf("store: remove queue entry: %w", err)
	}
	return nil
}

// LoadQueued rehydrates (channelID, metaDataID)'s in-memory queue at
// channel start from the connector_messages rows its durable entries
// reference (connector.QueueStore; spec §3 "the queue's in-memory buffer
// is rehydrated from durable storage at channel start").
func (s *Store) LoadQueued(channelID string, metaDataID int) ([]*message.ConnectorMessage, error) {
	ctx := context.Background()
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id FROM queue_entries WHERE channel_id = ? AND meta_data_id = ?
	`, channelID, metaDataID)
	if err != nil {
		return nil, fmt.Errorf("store: load queued: %w", err)
	}
	var messageIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: load queued: %w", err)
		}
		messageIDs = append(messageIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*message.ConnectorMessage, 0, len(messageIDs))
	for _, id := range messageIDs {
		cms, err := s.queryConnectorMessages(ctx, `
			SELECT channel_id, message_id, meta_data_id, status, send_attempts,
				processing_error, response_error, post_processor_error, error_code,
				source_map, channel_map, connector_map, response_map
			FROM connector_messages
			WHERE channel_id = ? AND meta_data_id = ? AND message_id = ?
		`, channelID, metaDataID, id)
		if err != nil {
			return nil, err
		}
		out = append(out, cms...)
	}
	return out, nil
}
