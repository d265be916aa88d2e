package channel

// StateChangeEvent is emitted on every accepted state transition (spec
// §4.1).
type StateChangeEvent struct {
	ChannelID   string
	ChannelName string
	Previous    State
	Current     State
}

// MessageCompleteEvent is emitted once dispatch finishes step 15 of the
// pipeline (spec §4.1 step 15).
type MessageCompleteEvent struct {
	ChannelID   string
	ChannelName string
	MessageID   int64
}

// Publisher is the channel-level event sink: state transitions and
// message completion, forwarded to the in-process eventbus and the
// dashboard gRPC push stream (spec §9 "event-based dashboard updates").
type Publisher interface {
	PublishStateChange(e StateChangeEvent)
	PublishMessageComplete(e MessageCompleteEvent)
}

// NoopPublisher discards every event; used by tests and standalone runs
// with no dashboard attached.
type NoopPublisher struct{}

func (NoopPublisher) PublishStateChange(StateChangeEvent)       {}
func (NoopPublisher) PublishMessageComplete(MessageCompleteEvent) {}
