package event

import (
	"github.com/corvushealth/engine/internal/channel"
	"github.com/corvushealth/engine/internal/connector"
)

// Topic names events are published under. Subscribers (the dashboard
// push server) pick the ones they care about.
const (
	TopicStateChange      = "channel.stateChange"
	TopicMessageComplete  = "channel.messageComplete"
	TopicConnectionStatus = "connector.connectionStatus"
	TopicConnectorCount   = "connector.count"
)

// ChannelAdapter implements channel.Publisher over a Bus, scoping every
// event to the owning channel's ID for partition routing.
type ChannelAdapter struct {
	bus *Bus
}

// NewChannelAdapter returns a channel.Publisher that republishes onto
// bus.
func NewChannelAdapter(bus *Bus) *ChannelAdapter {
	return &ChannelAdapter{bus: bus}
}

func (a *ChannelAdapter) PublishStateChange(e channel.StateChangeEvent) {
	_ = a.bus.Publish(Event{Topic: TopicStateChange, ChannelID: e.ChannelID, Payload: e})
}

func (a *ChannelAdapter) PublishMessageComplete(e channel.MessageCompleteEvent) {
	_ = a.bus.Publish(Event{Topic: TopicMessageComplete, ChannelID: e.ChannelID, Payload: e})
}

var _ channel.Publisher = (*ChannelAdapter)(nil)

// ConnectorAdapter implements connector.EventSink over a Bus, for the
// per-channel sink each Channel.Start hands to its connectors.
type ConnectorAdapter struct {
	bus       *Bus
	channelID string
}

// NewConnectorAdapter returns a connector.EventSink scoped to channelID.
func NewConnectorAdapter(bus *Bus, channelID string) *ConnectorAdapter {
	return &ConnectorAdapter{bus: bus, channelID: channelID}
}

// ConnectionStatusEvent is the payload published on TopicConnectionStatus.
type ConnectionStatusEvent struct {
	ChannelID     string
	ConnectorName string
	Status        connector.ConnectionStatus
}

// ConnectorCountEvent is the payload published on TopicConnectorCount.
type ConnectorCountEvent struct {
	ChannelID     string
	ConnectorName string
	Delta         int
}

func (a *ConnectorAdapter) ConnectionStatus(connectorName string, status connector.ConnectionStatus) {
	_ = a.bus.Publish(Event{
		Topic:     TopicConnectionStatus,
		ChannelID: a.channelID,
		Payload:   ConnectionStatusEvent{ChannelID: a.channelID, ConnectorName: connectorName, Status: status},
	})
}

func (a *ConnectorAdapter) ConnectorCount(connectorName string, delta int) {
	_ = a.bus.Publish(Event{
		Topic:     TopicConnectorCount,
		ChannelID: a.channelID,
		Payload:   ConnectorCountEvent{ChannelID: a.channelID, ConnectorName: connectorName, Delta: delta},
	})
}

var _ connector.EventSink = (*ConnectorAdapter)(nil)
