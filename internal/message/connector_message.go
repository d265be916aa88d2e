package message

import "time"

// SourceMetaDataID is the reserved metaDataId for a Message's source
// ConnectorMessage; destinations are numbered 1..N in declared order.
const SourceMetaDataID = 0

// ConnectorMessage is the per-connector-per-message unit: content, status,
// maps, and timestamps (spec §3).
type ConnectorMessage struct {
	MetaDataID int
	MessageID  int64
	ChannelID  string

	Status Status

	SendAttempts int
	SendDate     time.Time
	ResponseDate time.Time

	ProcessingError    string
	ResponseError      string
	PostProcessorError string
	ErrorCode          int

	// SourceMap is conceptually read-only once the filter starts running;
	// it is populated from the source connector's metadata and shared
	// (copied) to every destination ConnectorMessage.
	SourceMap    map[string]interface{}
	ChannelMap   map[string]interface{}
	ConnectorMap map[string]interface{}
	ResponseMap  map[string]interface{}

	Content map[ContentType]Content
}

// NewConnectorMessage allocates a ConnectorMessage at StatusReceived with
// empty maps and content, ready to be populated by the dispatch pipeline.
func NewConnectorMessage(channelID string, messageID int64, metaDataID int) *ConnectorMessage {
	return &ConnectorMessage{
		MetaDataID:   metaDataID,
		MessageID:    messageID,
		ChannelID:    channelID,
		Status:       StatusReceived,
		SourceMap:    make(map[string]interface{}),
		ChannelMap:   make(map[string]interface{}),
		ConnectorMap: make(map[string]interface{}),
		ResponseMap:  make(map[string]interface{}),
		Content:      make(map[ContentType]Content),
	}
}

// SetContent stores a content slot.
func (cm *ConnectorMessage) SetContent(t ContentType, data string, dataType string, encrypted bool) {
	cm.Content[t] = Content{Data: data, DataType: dataType, Encrypted: encrypted}
}

// GetContent returns a content slot and whether it was present.
func (cm *ConnectorMessage) GetContent(t ContentType) (Content, bool) {
	c, ok := cm.Content[t]
	return c, ok
}

// EncodedOrTransformedOrRaw implements the "destination RAW input"
// computation of spec §4.1 step 10: prefer ENCODED, else TRANSFORMED,
// else RAW.
func (cm *ConnectorMessage) EncodedOrTransformedOrRaw() Content {
	if c, ok := cm.Content[ContentEncoded]; ok {
		return c
	}
	if c, ok := cm.Content[ContentTransformed]; ok {
		return c
	}
	return cm.Content[ContentRaw]
}

// CloneForDestination produces a fresh ConnectorMessage for a destination,
// with its own scratch maps but sharing the source's channelMap contents
// (copied, not referenced — spec's "shared across destinations within one
// message" is satisfied by copying the map the source built by the time
// destinations start, not by aliasing the source's live map) and a copy of
// sourceMap (read-only by the time destinations run).
func (cm *ConnectorMessage) CloneForDestination(metaDataID int) *ConnectorMessage {
	dest := NewConnectorMessage(cm.ChannelID, cm.MessageID, metaDataID)
	for k, v := range cm.SourceMap {
		dest.SourceMap[k] = v
	}
	for k, v := range cm.ChannelMap {
		dest.ChannelMap[k] = v
	}
	return dest
}

// MergeChannelMap copies changes a destination made to its channelMap copy
// back into the source ConnectorMessage's channelMap, so later
// destinations (and the post-processor) observe prior destinations'
// writes — this is what "shared across destinations within one message"
// means operationally given Go's lack of aliased maps across goroutines
// dispatched sequentially.
func (cm *ConnectorMessage) MergeChannelMap(from *ConnectorMessage) {
	for k, v := range from.ChannelMap {
		cm.ChannelMap[k] = v
	}
}
