// Package connector defines the Source and Destination Connector
// capability-set interfaces (spec §9): the contracts a Channel dispatches
// against, independent of transport. Concrete variants (TCP/MLLP, Kafka)
// compose a connector-specific struct on top of these.
package connector

import (
	"context"

	"github.com/corvushealth/engine/internal/message"
)

// EventSink is the small, immutable handle a connector uses to emit
// lifecycle and connection-status events, rather than holding a back
// reference to its owning Channel (spec §9 "from back-pointers to message
// passing").
type EventSink interface {
	ConnectionStatus(connectorName string, status ConnectionStatus)
	ConnectorCount(connectorName string, delta int)
}

// ConnectionStatus mirrors the ConnectionStatusEvent states dispatched at
// every meaningful connector boundary (spec §4.2).
type ConnectionStatus int

const (
	StatusConnecting ConnectionStatus = iota
	StatusConnected
	StatusSending
	StatusWaitingForResponse
	StatusIdle
	StatusFailure
	StatusDisconnected
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusConnecting:
		return "CONNECTING"
	case StatusConnected:
		return "CONNECTED"
	case StatusSending:
		return "SENDING"
	case StatusWaitingForResponse:
		return "WAITING_FOR_RESPONSE"
	case StatusIdle:
		return "IDLE"
	case StatusFailure:
		return "FAILURE"
	case StatusDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Dispatcher is what a Source Connector calls to hand a freshly received
// message into the owning Channel's dispatch pipeline. It is provided at
// start time, not held as a mutable back-reference.
type Dispatcher interface {
	// Dispatch runs the dispatch pipeline (spec §4.1) for one arrival and
	// returns the resulting Message. With async intake it returns once the
	// arrival is persisted and handed to the channel's async worker.
	Dispatch(ctx context.Context, rawData string, sourceMap map[string]interface{}) (*message.Message, error)
}

// Source is the capability set a Source Connector provides (spec §9).
type Source interface {
	Name() string
	Deploy(ctx context.Context) error
	Undeploy(ctx context.Context) error
	Start(ctx context.Context, sink EventSink, dispatcher Dispatcher) error
	Stop(ctx context.Context) error

	// InboundDataType is the declared data type RAW content is stamped
	// with (spec §3 ConnectorMessage content slots), e.g. "HL7V2".
	InboundDataType() string
}

// Destination is the capability set a Destination Connector provides
// (spec §9, §4.2).
type Destination interface {
	Name() string
	MetaDataID() int
	Deploy(ctx context.Context) error
	Undeploy(ctx context.Context) error
	Start(ctx context.Context, sink EventSink) error
	Stop(ctx context.Context) error

	// Send transmits the destination's ENCODED (or TRANSFORMED/RAW)
	// content. A non-nil error marks the attempt as failed.
	Send(ctx context.Context, cm *message.ConnectorMessage) error

	// GetResponse returns response content captured by the most recent
	// Send, if the connector captures responses at all.
	GetResponse(ctx context.Context, cm *message.ConnectorMessage) (message.Content, bool, error)

	// QueueEnabled reports whether send failures should be queued for
	// retry rather than marked ERROR immediately.
	QueueEnabled() bool
}

// Pausable is an optional capability: connectors that can suspend
// in-flight work without a full stop/start cycle implement it (channel
// PAUSING/PAUSED, spec §4.1).
type Pausable interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
}
