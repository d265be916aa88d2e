// Package tcp implements the TCP/MLLP Source and Destination connectors —
// the exemplar wire protocol described in spec §4.3.
package tcp

import "bytes"

// TransmissionMode selects how message boundaries are framed on the wire.
type TransmissionMode string

const (
	ModeMLLP  TransmissionMode = "MLLP"
	ModeFrame TransmissionMode = "FRAME"
	ModeRaw   TransmissionMode = "RAW"
)

const (
	mllpStart byte = 0x0B
	mllpEnd1  byte = 0x1C
	mllpEnd2  byte = 0x0D
)

// Framer frames and unframes payloads for a TransmissionMode (spec §4.3
// "Framing").
type Framer struct {
	Mode  TransmissionMode
	Start []byte
	End   []byte
}

// NewFramer builds a Framer. For ModeMLLP, Start/End are ignored in favor
// of the fixed VT / FS+CR bytes. For ModeFrame, start/end are the
// operator-supplied byte sequences. For ModeRaw, both are unused.
func NewFramer(mode TransmissionMode, start, end []byte) *Framer {
	return &Framer{Mode: mode, Start: start, End: end}
}

// Frame wraps a payload with this Framer's start/end markers.
func (f *Framer) Frame(payload []byte) []byte {
	switch f.Mode {
	case ModeMLLP:
		out := make([]byte, 0, len(payload)+3)
		out = append(out, mllpStart)
		out = append(out, payload...)
		out = append(out, mllpEnd1, mllpEnd2)
		return out
	case ModeFrame:
		out := make([]byte, 0, len(payload)+len(f.Start)+len(f.End))
		out = append(out, f.Start...)
		out = append(out, payload...)
		out = append(out, f.End...)
		return out
	default: // ModeRaw
		return payload
	}
}

// HasCompleteMessage reports whether buf contains at least one complete
// frame, per spec §4.3: MLLP — FS followed by CR is present; FRAME — the
// end sequence is present; RAW — the buffer is non-empty.
func (f *Framer) HasCompleteMessage(buf []byte) bool {
	switch f.Mode {
	case ModeMLLP:
		return indexOfMLLPEnd(buf) >= 0
	case ModeFrame:
		if len(f.End) == 0 {
			return false
		}
		return bytes.Contains(buf, f.End)
	default: // ModeRaw
		return len(buf) > 0
	}
}

// Unframe extracts the first complete message from buf and returns it
// along with the number of bytes consumed (including framing markers),
// so the caller can advance its buffer. ok is false if no complete
// message is present.
func (f *Framer) Unframe(buf []byte) (payload []byte, consumed int, ok bool) {
	switch f.Mode {
	case ModeMLLP:
		startIdx := bytes.IndexByte(buf, mllpStart)
		if startIdx < 0 {
			return nil, 0, false
		}
		rest := buf[startIdx+1:]
		endIdx := indexOfMLLPEnd(rest)
		if endIdx < 0 {
			return nil, 0, false
		}
		payload = rest[:endIdx]
		consumed = startIdx + 1 + endIdx + 2
		return payload, consumed, true
	case ModeFrame:
		if len(f.Start) == 0 || len(f.End) == 0 {
			return nil, 0, false
		}
		startIdx := bytes.Index(buf, f.Start)
		if startIdx < 0 {
			return nil, 0, false
		}
		rest := buf[startIdx+len(f.Start):]
		endIdx := bytes.Index(rest, f.End)
		if endIdx < 0 {
			return nil, 0, false
		}
		payload = rest[:endIdx]
		consumed = startIdx + len(f.Start) + endIdx + len(f.End)
		return payload, consumed, true
	default: // ModeRaw: the whole buffer is one message
		if len(buf) == 0 {
			return nil, 0, false
		}
		return buf, len(buf), true
	}
}

// indexOfMLLPEnd finds the offset of FS (0x1C) immediately followed by CR
// (0x0D) in buf, or -1 if absent.
func indexOfMLLPEnd(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == mllpEnd1 && buf[i+1] == mllpEnd2 {
			return i
		}
	}
	return -1
}
