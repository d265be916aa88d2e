package tcp

import (
	"fmt"
	"net"
	"time"

	"github.com/corvushealth/engine/internal/log"
	"github.com/corvushealth/engine/internal/message"
)

// buildResponse synthesizes the bytes to write back after dispatch,
// according to the Receiver's configured ResponseMode (spec §4.3, §6).
// It returns nil if no response should be sent.
func (r *Receiver) buildResponse(raw string, msg *message.Message) []byte {
	switch r.cfg.ResponseMode {
	case ResponseNone, "":
		return nil
	case ResponseDestination:
		if content, ok := r.destinationResponseContent(msg); ok {
			return r.framer.Frame([]byte(content))
		}
		fallthrough
	default: // ResponseAuto
		code := r.ackCodeFor(msg)
		return r.framer.Frame([]byte(BuildAck(raw, code)))
	}
}

// destinationResponseContent returns the first destination's captured
// RESPONSE content, if any destination produced one.
func (r *Receiver) destinationResponseContent(msg *message.Message) (string, bool) {
	if msg == nil {
		return "", false
	}
	for _, cm := range msg.ConnectorMessages() {
		if cm.MetaDataID == message.SourceMetaDataID {
			continue
		}
		if c, ok := cm.GetContent(message.ContentResponse); ok {
			return c.Data, true
		}
	}
	return "", false
}

// ackCodeFor derives the AUTO ack code from the source ConnectorMessage's
// terminal status (spec §6: AE on processing error, AR on a hard reject,
// AA otherwise).
func (r *Receiver) ackCodeFor(msg *message.Message) AckCode {
	if msg == nil {
		return AckApplicationReject
	}
	src := msg.Source()
	if src == nil {
		return AckApplicationReject
	}
	return AckCodeForStatus(src.Status == message.StatusError, false)
}

// respond writes the synthesized response for one dispatched message,
// choosing the connection per RespondOnNewConnection (spec §4.3).
func (r *Receiver) respond(conn net.Conn, raw string, msg *message.Message) {
	data := r.buildResponse(raw, msg)
	if data == nil {
		return
	}

	switch r.cfg.RespondOnNewConnection {
	case RespondNewConnection, RespondNewConnectionOnRecover:
		addr := fmt.Sprintf("%s:%d", r.cfg.ResponseAddress, r.cfg.ResponsePort)
		rc, err := net.DialTimeout("tcp", addr, 5*time.Second)
		if err != nil {
			log.Get().WithError(err).Warn("tcp receiver: dial response connection failed")
			return
		}
		defer rc.Close()
		if _, err := rc.Write(data); err != nil {
			log.Get().WithError(err).Warn("tcp receiver: write response on new connection failed")
		}
	default: // RespondDisabled falls back to writing on the originating socket
		if _, err := conn.Write(data); err != nil {
			log.Get().WithError(err).Warn("tcp receiver: write response failed")
		}
	}
}
