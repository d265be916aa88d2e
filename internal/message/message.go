package message

import "time"

// Message is the umbrella record for one received arrival: a monotonic
// messageId, identity, and a mapping from metaDataId (0 = source, 1+ =
// each destination in declared order) to its ConnectorMessage (spec §3).
type Message struct {
	MessageID    int64
	ServerID     string
	ChannelID    string
	ReceivedDate time.Time
	Processed    bool

	connectorMessages map[int]*ConnectorMessage
	order             []int
}

// NewMessage allocates a Message with no connector messages yet attached.
func NewMessage(channelID, serverID string, messageID int64) *Message {
	return &Message{
		MessageID:         messageID,
		ServerID:          serverID,
		ChannelID:         channelID,
		ReceivedDate:      time.Now(),
		connectorMessages: make(map[int]*ConnectorMessage),
	}
}

// PutConnectorMessage attaches (or replaces) the ConnectorMessage for a
// metaDataId, tracking first-insertion order for stable iteration.
func (m *Message) PutConnectorMessage(cm *ConnectorMessage) {
	if _, exists := m.connectorMessages[cm.MetaDataID]; !exists {
		m.order = append(m.order, cm.MetaDataID)
	}
	m.connectorMessages[cm.MetaDataID] = cm
}

// GetConnectorMessage returns the ConnectorMessage for a metaDataId, or
// nil if the dispatch loop has not reached it yet.
func (m *Message) GetConnectorMessage(metaDataID int) *ConnectorMessage {
	return m.connectorMessages[metaDataID]
}

// Source returns the source ConnectorMessage (metaDataId 0).
func (m *Message) Source() *ConnectorMessage {
	return m.connectorMessages[SourceMetaDataID]
}

// ConnectorMessages returns every attached ConnectorMessage in the order
// they were first inserted (source first, then destinations in declared
// order).
func (m *Message) ConnectorMessages() []*ConnectorMessage {
	out := make([]*ConnectorMessage, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.connectorMessages[id])
	}
	return out
}

// Count returns the number of attached ConnectorMessages.
func (m *Message) Count() int {
	return len(m.connectorMessages)
}
