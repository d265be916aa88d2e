// Package daemon implements the channel runtime's daemon lifecycle: load
// global + per-channel configuration, deploy and start every enabled
// channel, serve the gRPC control plane (internal/rpc) and dashboard event
// stream (internal/event) over a Unix domain socket, and expose Prometheus
// metrics. Grounded on the teacher's internal/daemon/daemon.go (process
// lifecycle, signal handling, PID file, graceful shutdown), generalized
// from a single packet-capture task manager to a registry of running
// channels.
package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/corvushealth/engine/internal/config"
	_ "github.com/corvushealth/engine/internal/connector/kafka"
	_ "github.com/corvushealth/engine/internal/connector/tcp"
	"github.com/corvushealth/engine/internal/event"
	"github.com/corvushealth/engine/internal/log"
	"github.com/corvushealth/engine/internal/metrics"
	"github.com/corvushealth/engine/internal/rpc"
	"github.com/corvushealth/engine/internal/store"
)

const (
	dashboardBusPartitions = 8
	dashboardBusQueueSize  = 256
)

// Daemon manages the engine daemon process lifecycle: one gRPC control
// plane, one running Runtime of channels, one metrics server.
type Daemon struct {
	config     *config.GlobalConfig
	configPath string
	channelDir string
	socketPath string
	pidFile    string

	store   *store.Store
	bus     *event.Bus
	runtime *Runtime

	grpcServer    *grpc.Server
	grpcListener  net.Listener
	metricsServer *metrics.Server

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	sigChan      chan os.Signal
}

// New loads the global configuration and constructs a Daemon in the
// not-yet-started state. channelDir is the directory of per-channel YAML
// definitions (internal/config ChannelDefinition).
func New(configPath, channelDir, socketPath, pidFile string) (*Daemon, error) {
	globalConfig, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: load config: %w", err)
	}

	d := &Daemon{
		config:       globalConfig,
		configPath:   configPath,
		channelDir:   channelDir,
		socketPath:   socketPath,
		pidFile:      pidFile,
		shutdownChan: make(chan struct{}),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Start initializes logging, the store, the channel registry, the control
// plane, and metrics, then deploys and starts every enabled channel.
func (d *Daemon) Start() error {
	d.initLogging()

	logger := log.Get().WithField("node", d.config.Node.ID)
	logger.Info("starting engine daemon")

	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("daemon: write pid file: %w", err)
	}

	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("daemon: start metrics: %w", err)
	}

	st, err := store.Open(d.config.Store.DSN)
	if err != nil {
		return fmt.Errorf("daemon: open store: %w", err)
	}
	d.store = st

	d.bus = event.NewBus(dashboardBusPartitions, dashboardBusQueueSize)
	d.runtime = NewRuntime(d.store, d.bus)

	if err := d.runtime.LoadDir(d.channelDir); err != nil {
		return fmt.Errorf("daemon: load channel definitions: %w", err)
	}

	if err := d.startControlPlane(); err != nil {
		return fmt.Errorf("daemon: start control plane: %w", err)
	}

	if err := d.runtime.StartAll(d.ctx); err != nil {
		logger.WithError(err).Error("one or more channels failed to start")
	}

	logger.Info("engine daemon started")
	return nil
}

// startControlPlane listens on the Unix domain socket and serves the
// control-plane (rpc.Server) and dashboard (event.DashboardServer)
// services on one grpc.Server.
func (d *Daemon) startControlPlane() error {
	socketPath := d.socketPath
	if socketPath == "" {
		socketPath = d.config.Control.Socket
	}
	if socketPath == "" {
		socketPath = rpc.DefaultSocketPath
	}
	_ = os.Remove(socketPath) // stale socket from an unclean previous shutdown

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	d.grpcListener = ln

	d.grpcServer = grpc.NewServer()
	rpc.Register(d.grpcServer, rpc.NewServer(d.runtime))
	event.RegisterDashboardServer(d.grpcServer, event.NewDashboardServer(d.bus))

	go func() {
		if err := d.grpcServer.Serve(ln); err != nil {
			log.Get().WithError(err).Warn("control plane server stopped")
		}
	}()

	log.Get().WithField("socket", socketPath).Info("control plane listening")
	return nil
}

// Stop performs graceful shutdown of every daemon component.
func (d *Daemon) Stop() {
	logger := log.Get()
	logger.Info("initiating graceful shutdown")

	if d.runtime != nil {
		d.runtime.StopAll(context.Background())
	}

	if d.grpcServer != nil {
		logger.Info("stopping control plane")
		d.grpcServer.GracefulStop()
	}

	if d.metricsServer != nil {
		logger.Info("stopping metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Error("error stopping metrics server")
		}
	}

	if d.bus != nil {
		d.bus.Close()
	}

	d.cancel()

	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	if err := d.removePIDFile(); err != nil {
		logger.WithError(err).Error("error removing pid file")
	}

	logger.Info("engine daemon stopped")
}

// Run blocks until a shutdown signal (SIGTERM/SIGINT), a SIGHUP reload, or
// an externally triggered shutdown occurs.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	log.Get().Info("engine daemon running, waiting for signals")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				log.Get().WithField("signal", sig.String()).Info("received shutdown signal")
				d.Stop()
				return nil
			case syscall.SIGHUP:
				log.Get().Info("received reload signal")
				if err := d.Reload(); err != nil {
					log.Get().WithError(err).Error("failed to reload")
				}
			}

		case <-d.shutdownChan:
			log.Get().Info("shutdown triggered by command")
			d.Stop()
			return nil

		case <-d.ctx.Done():
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// TriggerShutdown requests a graceful shutdown from outside Run's signal
// loop (e.g. a future daemon-control RPC method).
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
	}
}

// Reload re-reads the global configuration and rescans the channel
// directory for new channel definitions. Running channels are left alone;
// use the control plane's Reload method to pick up a changed definition
// for one already-running channel.
func (d *Daemon) Reload() error {
	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("daemon: reload config: %w", err)
	}
	d.config = newConfig

	if err := d.runtime.LoadDir(d.channelDir); err != nil {
		return fmt.Errorf("daemon: rescan channel directory: %w", err)
	}

	log.Get().Info("configuration reloaded")
	return nil
}

func (d *Daemon) initLogging() {
	log.Init(d.config.Log)
}

func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		log.Get().Info("metrics server disabled")
		return nil
	}
	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	if err := d.metricsServer.Start(d.ctx); err != nil {
		return err
	}
	log.Get().WithField("addr", d.config.Metrics.Listen).Info("metrics server started")
	return nil
}

func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	return os.WriteFile(d.pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
