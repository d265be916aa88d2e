package tcp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/corvushealth/engine/internal/connector"
	"github.com/corvushealth/engine/internal/message"
)

// pooledConn is one entry in the Dispatcher's connection pool: a live
// socket, its buffered reader, and the idle timer that closes it after
// sendTimeout of inactivity. Responses read from it are kept in
// Dispatcher.lastResponse (for GetResponse).
type pooledConn struct {
	conn     net.Conn
	reader   *bufio.Reader
	idleTimer *time.Timer
}

// poolKey identifies a pooled connection by destination endpoint plus
// local bind, since CheckRemoteHost/LocalAddress/LocalPort can vary
// per-destination even when Host/Port repeat (spec §4.2, §6).
type poolKey struct {
	host      string
	port      int
	localAddr string
	localPort int
}

// Dispatcher is the TCP/MLLP Destination Connector (spec §4.3 "TCP
// Dispatcher"): connection pooling keyed by endpoint, ${var} template
// resolution, and optional response capture.
type Dispatcher struct {
	name       string
	metaDataID int
	cfg        DestinationConfig
	framer     *Framer

	mu   sync.Mutex
	pool map[poolKey]*pooledConn

	lastResponse map[int64]message.Content // by ConnectorMessage.MessageID

	sink EventSink
}

// EventSink is a narrowing alias kept local so dispatcher.go reads
// self-contained; it is connector.EventSink.
type EventSink = connector.EventSink

// NewDispatcher constructs a TCP Destination Connector.
func NewDispatcher(name string, metaDataID int, cfg DestinationConfig) *Dispatcher {
	return &Dispatcher{
		name:         name,
		metaDataID:   metaDataID,
		cfg:          cfg,
		framer:       NewFramer(cfg.TransmissionMode, cfg.StartOfMessageBytes, cfg.EndOfMessageBytes),
		pool:         make(map[poolKey]*pooledConn),
		lastResponse: make(map[int64]message.Content),
	}
}

func (d *Dispatcher) Name() string     { return d.name }
func (d *Dispatcher) MetaDataID() int  { return d.metaDataID }

func (d *Dispatcher) Deploy(ctx context.Context) error   { return nil }
func (d *Dispatcher) Undeploy(ctx context.Context) error { return nil }

func (d *Dispatcher) Start(ctx context.Context, sink EventSink) error {
	d.sink = sink
	return nil
}

// Stop closes every pooled connection.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, pc := range d.pool {
		pc.idleTimer.Stop()
		_ = pc.conn.Close()
		delete(d.pool, k)
	}
	return nil
}

func (d *Dispatcher) QueueEnabled() bool { return d.cfg.QueueEnabledFlag }

// Send resolves the outbound payload (template if configured, else the
// destination's ENCODED/TRANSFORMED/RAW content), frames it, and writes
// it to a pooled connection for (host, port[, local bind]) (spec §4.2
// step: "transmit via its connector", §4.3 connection pooling).
func (d *Dispatcher) Send(ctx context.Context, cm *message.ConnectorMessage) error {
	payload := d.resolvePayload(cm)
	framed := d.framer.Frame([]byte(payload))

	key := poolKey{host: d.cfg.Host, port: d.cfg.Port, localAddr: d.cfg.LocalAddress, localPort: d.cfg.LocalPort}

	if d.sink != nil {
		d.sink.ConnectionStatus(d.name, connector.StatusSending)
	}

	pc, err := d.acquire(key)
	if err != nil {
		if d.sink != nil {
			d.sink.ConnectionStatus(d.name, connector.StatusFailure)
		}
		return fmt.Errorf("tcp dispatcher %s: %w", d.name, err)
	}

	if d.cfg.SendTimeout > 0 {
		_ = pc.conn.SetWriteDeadline(time.Now().Add(d.cfg.SendTimeout))
	}
	if _, err := pc.conn.Write(framed); err != nil {
		d.evict(key)
		if d.sink != nil {
			d.sink.ConnectionStatus(d.name, connector.StatusFailure)
		}
		return fmt.Errorf("tcp dispatcher %s: write failed: %w", d.name, err)
	}
	d.resetIdle(key, pc)

	if d.cfg.IgnoreResponse {
		if d.sink != nil {
			d.sink.ConnectionStatus(d.name, connector.StatusIdle)
		}
		return nil
	}

	if d.sink != nil {
		d.sink.ConnectionStatus(d.name, connector.StatusWaitingForResponse)
	}
	resp, err := d.readResponse(pc)
	if err != nil {
		if d.cfg.QueueOnResponseTimeout && isTimeout(err) {
			// keep the connection; the caller's queue retries
			return fmt.Errorf("tcp dispatcher %s: timeout waiting for response: %w", d.name, err)
		}
		d.evict(key)
		if d.sink != nil {
			d.sink.ConnectionStatus(d.name, connector.StatusFailure)
		}
		return fmt.Errorf("tcp dispatcher %s: response: %w", d.name, err)
	}
	d.mu.Lock()
	d.lastResponse[cm.MessageID] = message.Content{Data: resp, DataType: d.cfg.DataType}
	d.mu.Unlock()
	if d.sink != nil {
		d.sink.ConnectionStatus(d.name, connector.StatusIdle)
	}
	return nil
}

// GetResponse returns the response content captured by the most recent
// Send for this ConnectorMessage's MessageID.
func (d *Dispatcher) GetResponse(ctx context.Context, cm *message.ConnectorMessage) (message.Content, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.lastResponse[cm.MessageID]
	return c, ok, nil
}

func (d *Dispatcher) resolvePayload(cm *message.ConnectorMessage) string {
	if d.cfg.Template != "" {
		return resolveTemplate(d.cfg.Template, cm)
	}
	return cm.EncodedOrTransformedOrRaw().Data
}

// acquire returns a pooled connection for key, reusing an open one when
// KeepConnectionOpen is set, otherwise dialing fresh every time.
func (d *Dispatcher) acquire(key poolKey) (*pooledConn, error) {
	d.mu.Lock()
	if d.cfg.KeepConnectionOpen {
		if pc, ok := d.pool[key]; ok {
			d.mu.Unlock()
			return pc, nil
		}
	}
	d.mu.Unlock()

	conn, err := d.dial(key)
	if err != nil {
		return nil, err
	}
	pc := &pooledConn{conn: conn, reader: bufio.NewReader(conn)}
	pc.idleTimer = time.AfterFunc(d.idleTimeout(), func() {
		if d.cfg.KeepConnectionOpen {
			d.evict(key)
		} else {
			_ = conn.Close()
		}
	})

	if d.cfg.KeepConnectionOpen {
		d.mu.Lock()
		d.pool[key] = pc
		d.mu.Unlock()
	}
	return pc, nil
}

func (d *Dispatcher) dial(key poolKey) (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", key.host, key.port)
	dialer := &net.Dialer{Timeout: d.socketTimeout()}
	if key.localAddr != "" || key.localPort != 0 {
		dialer.LocalAddr = &net.TCPAddr{IP: net.ParseIP(key.localAddr), Port: key.localPort}
	}
	if d.cfg.TLS.Enabled {
		tlsCfg, err := buildTLSConfig(d.cfg.TLS, false)
		if err != nil {
			return nil, err
		}
		rawConn, err := dialer.Dial("tcp", addr)
		if err != nil {
			return nil, err
		}
		return tlsClientHandshake(rawConn, tlsCfg)
	}
	return dialer.Dial("tcp", addr)
}

func (d *Dispatcher) socketTimeout() time.Duration {
	if d.cfg.SocketTimeout > 0 {
		return d.cfg.SocketTimeout
	}
	return 30 * time.Second
}

func (d *Dispatcher) idleTimeout() time.Duration {
	if d.cfg.SendTimeout > 0 {
		return d.cfg.SendTimeout
	}
	return 30 * time.Second
}

func (d *Dispatcher) resetIdle(key poolKey, pc *pooledConn) {
	if pc.idleTimer != nil {
		pc.idleTimer.Reset(d.idleTimeout())
	}
}

func (d *Dispatcher) evict(key poolKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pc, ok := d.pool[key]; ok {
		pc.idleTimer.Stop()
		_ = pc.conn.Close()
		delete(d.pool, key)
	}
}

// readResponse blocks for one framed message on pc's reader, honoring
// ResponseTimeout.
func (d *Dispatcher) readResponse(pc *pooledConn) (string, error) {
	if d.cfg.ResponseTimeout > 0 {
		_ = pc.conn.SetReadDeadline(time.Now().Add(d.cfg.ResponseTimeout))
	}

	var acc []byte
	buf := make([]byte, 4096)
	for {
		if d.framer.HasCompleteMessage(acc) {
			payload, _, ok := d.framer.Unframe(acc)
			if ok {
				return string(payload), nil
			}
		}
		n, err := pc.reader.Read(buf)
		if n > 0 {
			acc = append(acc, buf[:n]...)
		}
		if err != nil {
			return "", err
		}
	}
}
