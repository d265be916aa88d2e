package tcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramerRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		f    *Framer
		msg  []byte
	}{
		{"mllp", NewFramer(ModeMLLP, nil, nil), []byte("MSH|^~\\&|A|B|C|D|20260101000000||ADT^A01|1|P|2.5\rEVN|A01|20260101000000\r")},
		{"frame-custom", NewFramer(ModeFrame, []byte("<<<"), []byte(">>>")), []byte("hello world")},
		{"raw", NewFramer(ModeRaw, nil, nil), []byte("just the bytes")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			framed := tc.f.Frame(tc.msg)
			require.True(t, tc.f.HasCompleteMessage(framed))
			payload, consumed, ok := tc.f.Unframe(framed)
			require.True(t, ok)
			assert.Equal(t, tc.msg, payload)
			assert.Equal(t, len(framed), consumed)
		})
	}
}

func TestFramerIncompleteMessage(t *testing.T) {
	f := NewFramer(ModeMLLP, nil, nil)
	partial := []byte{mllpStart}
	partial = append(partial, []byte("MSH|partial")...)
	assert.False(t, f.HasCompleteMessage(partial))
	_, _, ok := f.Unframe(partial)
	assert.False(t, ok)
}

func TestFramerMultipleMessagesInBuffer(t *testing.T) {
	f := NewFramer(ModeMLLP, nil, nil)
	one := f.Frame([]byte("first"))
	two := f.Frame([]byte("second"))
	buf := append(append([]byte{}, one...), two...)

	require.True(t, f.HasCompleteMessage(buf))
	payload, consumed, ok := f.Unframe(buf)
	require.True(t, ok)
	assert.Equal(t, []byte("first"), payload)
	buf = buf[consumed:]

	require.True(t, f.HasCompleteMessage(buf))
	payload, consumed, ok = f.Unframe(buf)
	require.True(t, ok)
	assert.Equal(t, []byte("second"), payload)
	buf = buf[consumed:]
	assert.Empty(t, buf)
}

func TestBuildAckEchoesControlID(t *testing.T) {
	raw := "MSH|^~\\&|SND|FAC|RCV|FAC|20260101000000||ADT^A01|CTRL-123|P|2.5\rEVN|A01|20260101000000\r"
	ack := BuildAck(raw, AckApplicationAccept)
	assert.Contains(t, ack, "MSA|AA|CTRL-123|")
	assert.Contains(t, ack, "|ACK|CTRL-123|P|2.5\r")
}

func TestAckCodeForStatus(t *testing.T) {
	assert.Equal(t, AckApplicationAccept, AckCodeForStatus(false, false))
	assert.Equal(t, AckApplicationError, AckCodeForStatus(true, false))
	assert.Equal(t, AckApplicationReject, AckCodeForStatus(false, true))
}
