package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/tevino/abool"

	"github.com/corvushealth/engine/internal/connector"
	"github.com/corvushealth/engine/internal/log"
)

// BatchAdaptor subdivides one socket arrival into sequential sub-messages
// (spec §4.3, §5: "the batch adaptor... subdivides one arrival into many
// sub-messages, each delivered sequentially"). A nil adaptor treats the
// whole frame as a single message.
type BatchAdaptor func(payload []byte) [][]byte

// Receiver is the TCP/MLLP Source Connector (spec §4.3 "TCP Receiver").
type Receiver struct {
	name string
	cfg  SourceConfig

	framer *Framer
	batch  BatchAdaptor

	listener net.Listener
	sink     connector.EventSink
	dispatch connector.Dispatcher

	conns   map[net.Conn]struct{}
	connsMu sync.Mutex

	running   abool.AtomicBool
	cancel    context.CancelFunc
	stopped   chan struct{}
}

// NewReceiver constructs a TCP Receiver from config. batch may be nil.
func NewReceiver(name string, cfg SourceConfig, batch BatchAdaptor) *Receiver {
	return &Receiver{
		name:   name,
		cfg:    cfg,
		framer: NewFramer(cfg.TransmissionMode, cfg.StartOfMessageBytes, cfg.EndOfMessageBytes),
		batch:  batch,
		conns:  make(map[net.Conn]struct{}),
	}
}

func (r *Receiver) Name() string { return r.name }

func (r *Receiver) Deploy(ctx context.Context) error   { return nil }
func (r *Receiver) Undeploy(ctx context.Context) error { return nil }

func (r *Receiver) InboundDataType() string { return r.cfg.DataType }

// Start validates config, binds/connects, and begins accepting (SERVER)
// or maintaining a reconnecting outbound connection (CLIENT). It returns
// once the listener/initial connection is established; subsequent
// accept/read loops run on background goroutines.
func (r *Receiver) Start(ctx context.Context, sink connector.EventSink, dispatch connector.Dispatcher) error {
	if r.cfg.RespondOnNewConnection == RespondNewConnection &&
		(r.cfg.ResponseAddress == "" || r.cfg.ResponsePort == 0) {
		return fmt.Errorf("tcp receiver %s: respond_on_new_connection=NEW_CONNECTION requires response_address and response_port", r.name)
	}

	r.sink = sink
	r.dispatch = dispatch

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.stopped = make(chan struct{})
	r.running.Set()

	switch r.cfg.ServerMode {
	case ServerModeClient:
		go r.runClient(runCtx)
		return nil
	default:
		ln, err := r.bindWithRetry()
		if err != nil {
			cancel()
			return err
		}
		r.listener = ln
		go r.acceptLoop(runCtx)
		return nil
	}
}

// Stop cancels all background work and closes every open connection.
func (r *Receiver) Stop(ctx context.Context) error {
	if !r.running.IsSet() {
		return nil
	}
	r.running.UnSet()
	if r.cancel != nil {
		r.cancel()
	}
	if r.listener != nil {
		_ = r.listener.Close()
	}
	r.connsMu.Lock()
	for c := range r.conns {
		_ = c.Close()
	}
	r.connsMu.Unlock()
	return nil
}

// bindWithRetry binds the listener, retrying bindRetryAttempts times at
// bindRetryInterval on EADDRINUSE before surfacing the error (spec §8
// boundary behavior).
func (r *Receiver) bindWithRetry() (net.Listener, error) {
	addr := fmt.Sprintf("%s:%d", r.cfg.Host, r.cfg.Port)
	attempts := r.cfg.BindRetryAttempts
	var lastErr error
	for i := 0; i <= attempts; i++ {
		var ln net.Listener
		var err error
		if r.cfg.TLS.Enabled {
			tlsCfg, terr := buildTLSConfig(r.cfg.TLS, true)
			if terr != nil {
				return nil, terr
			}
			ln, err = tlsListen(addr, tlsCfg)
		} else {
			ln, err = net.Listen("tcp", addr)
		}
		if err == nil {
			return ln, nil
		}
		lastErr = err
		if !isAddrInUse(err) {
			return nil, err
		}
		if i < attempts {
			time.Sleep(r.cfg.BindRetryInterval)
		}
	}
	return nil, fmt.Errorf("tcp receiver %s: bind %s failed after %d attempts: %w", r.name, addr, attempts, lastErr)
}

func isAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}

func (r *Receiver) acceptLoop(ctx context.Context) {
	defer close(r.stopped)
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Get().WithError(err).Warn("tcp receiver accept failed")
				continue
			}
		}
		if r.cfg.MaxConnections > 0 && r.connCount() >= r.cfg.MaxConnections {
			_ = conn.Close()
			continue
		}
		r.trackConn(conn)
		go r.serveConn(ctx, conn)
	}
}

func (r *Receiver) runClient(ctx context.Context) {
	defer close(r.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		addr := fmt.Sprintf("%s:%d", r.cfg.Host, r.cfg.Port)
		var conn net.Conn
		var err error
		if r.cfg.TLS.Enabled {
			tc, terr := buildTLSConfig(r.cfg.TLS, false)
			if terr != nil {
				log.Get().WithError(terr).Error("tcp receiver client tls config")
				return
			}
			conn, err = tlsDial(addr, tc)
		} else {
			conn, err = net.Dial("tcp", addr)
		}
		if err != nil {
			log.Get().WithError(err).Warn("tcp receiver client connect failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.cfg.ReconnectInterval):
				continue
			}
		}
		r.trackConn(conn)
		r.serveConn(ctx, conn)
		// serveConn returns when the connection drops; loop to reconnect.
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.cfg.ReconnectInterval):
		}
	}
}

func (r *Receiver) trackConn(c net.Conn) {
	r.connsMu.Lock()
	r.conns[c] = struct{}{}
	r.connsMu.Unlock()
	if r.sink != nil {
		r.sink.ConnectorCount(r.name, 1)
		r.sink.ConnectionStatus(r.name, connector.StatusConnected)
	}
}

func (r *Receiver) untrackConn(c net.Conn) {
	r.connsMu.Lock()
	delete(r.conns, c)
	r.connsMu.Unlock()
	_ = c.Close()
	if r.sink != nil {
		r.sink.ConnectorCount(r.name, -1)
		r.sink.ConnectionStatus(r.name, connector.StatusDisconnected)
	}
}

func (r *Receiver) connCount() int {
	r.connsMu.Lock()
	defer r.connsMu.Unlock()
	return len(r.conns)
}

// serveConn accumulates bytes from conn into a buffer and, while a
// complete frame is present, unframes and dispatches it (spec §4.3 "Per
// socket").
func (r *Receiver) serveConn(ctx context.Context, conn net.Conn) {
	defer r.untrackConn(conn)

	bufSize := r.cfg.BufferSize
	if bufSize <= 0 {
		bufSize = 65536
	}
	readBuf := make([]byte, bufSize)
	var acc []byte

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if r.cfg.ReceiveTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(r.cfg.ReceiveTimeout))
		}

		n, err := conn.Read(readBuf)
		if n > 0 {
			acc = append(acc, readBuf[:n]...)
		}
		if err != nil {
			if isTimeout(err) {
				if !r.cfg.KeepConnectionOpen {
					return // destroy the socket on timeout (spec §5 Timeouts)
				}
				continue // informational only
			}
			return // peer closed or hard error: discard partial buffer
		}

		for r.framer.HasCompleteMessage(acc) {
			payload, consumed, ok := r.framer.Unframe(acc)
			if !ok {
				break
			}
			acc = acc[consumed:]
			r.handleFrame(ctx, conn, payload)
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (r *Receiver) handleFrame(ctx context.Context, conn net.Conn, payload []byte) {
	frames := [][]byte{payload}
	if r.batch != nil {
		if split := r.batch(payload); len(split) > 0 {
			frames = split
		}
	}
	for _, f := range frames {
		raw := string(f)
		msg, err := r.dispatch.Dispatch(ctx, raw, map[string]interface{}{})
		if err != nil {
			log.Get().WithError(err).Error("tcp receiver dispatch failed")
			continue
		}
		r.respond(conn, raw, msg)
	}
}
