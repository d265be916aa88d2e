// Package message implements the Message/ConnectorMessage umbrella data
// model described in spec §3: the per-arrival envelope that flows through
// a Channel's dispatch pipeline, with typed content slots, status, and the
// four mutable maps.
package message

// ContentType names one of the typed content slots a ConnectorMessage
// carries.
type ContentType int

const (
	ContentRaw ContentType = iota
	ContentProcessedRaw
	ContentTransformed
	ContentEncoded
	ContentSent
	ContentResponse
	ContentResponseTransformed
	ContentProcessedResponse
	ContentSourceMap
)

func (c ContentType) String() string {
	switch c {
	case ContentRaw:
		return "RAW"
	case ContentProcessedRaw:
		return "PROCESSED_RAW"
	case ContentTransformed:
		return "TRANSFORMED"
	case ContentEncoded:
		return "ENCODED"
	case ContentSent:
		return "SENT"
	case ContentResponse:
		return "RESPONSE"
	case ContentResponseTransformed:
		return "RESPONSE_TRANSFORMED"
	case ContentProcessedResponse:
		return "PROCESSED_RESPONSE"
	case ContentSourceMap:
		return "SOURCE_MAP"
	default:
		return "UNKNOWN"
	}
}

// Content is one typed content slot: the payload, its declared data type
// (e.g. "HL7V2", "JSON", "RAW"), and whether it is encrypted at rest.
type Content struct {
	Data      string
	DataType  string
	Encrypted bool
}

// Status is a ConnectorMessage's lifecycle status (spec §3).
type Status int

const (
	StatusReceived Status = iota
	StatusFiltered
	StatusTransformed
	StatusSent
	StatusQueued
	StatusError
	StatusPending
)

func (s Status) String() string {
	switch s {
	case StatusReceived:
		return "RECEIVED"
	case StatusFiltered:
		return "FILTERED"
	case StatusTransformed:
		return "TRANSFORMED"
	case StatusSent:
		return "SENT"
	case StatusQueued:
		return "QUEUED"
	case StatusError:
		return "ERROR"
	case StatusPending:
		return "PENDING"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether status represents a non-source connector
// having reached a stable end state for the purposes of content pruning
// (spec §4.1 step 13): SENT, FILTERED, or ERROR.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusFiltered || s == StatusError
}
