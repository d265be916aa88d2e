package channel

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc"
	"github.com/tevino/abool"
	"go.uber.org/multierr"

	"github.com/corvushealth/engine/internal/connector"
	"github.com/corvushealth/engine/internal/log"
	"github.com/corvushealth/engine/internal/message"
	"github.com/corvushealth/engine/internal/script"
	"github.com/corvushealth/engine/internal/stats"
	"github.com/corvushealth/engine/internal/storage"
)

// Scripts is the set of operator scripts a Channel runs around its
// source, keyed by the points named in spec §4.1.
type Scripts struct {
	Deploy              string
	Undeploy            string
	Preprocessor        string
	Filter              string
	Transformer         string
	Postprocessor       string
}

// Config is the declarative definition a Channel is built from.
type Config struct {
	ChannelID   string
	ChannelName string

	Source     connector.Source
	Scripts    Scripts
	Settings   storage.Settings // source-side storage settings
	Destinations []DestinationSpec

	// AsyncIntake routes step 5's ring buffer instead of running the
	// whole pipeline synchronously under the source's dispatch call
	// (spec §4.1 "Dispatch pipeline (asynchronous mode)").
	AsyncIntake bool
	RingSize    int

	MessageRecoveryEnabled bool

	// EventSink overrides the default connection-status sink handed to
	// connectors, letting callers route connector events through
	// internal/event's bus-backed adapter instead of discarding them.
	// Nil falls back to a no-op sink.
	EventSink connector.EventSink
}

// Channel is the runtime unit: one source, N destinations, the dispatch
// pipeline between them, and the state machine governing lifecycle (spec
// §4.1).
type Channel struct {
	cfg Config

	machine   *machine
	publisher Publisher
	store     Store
	executor  script.Executor
	allocator MessageIDAllocator
	accum     *stats.Accumulator

	destinations []*destination

	// workers supervises every destination queue worker goroutine so Stop
	// can wait for them to exit cleanly, rather than fire-and-forget
	// goroutines. A panic in a worker is caught and re-raised from Wait
	// in stop.
	workers conc.WaitGroup

	asyncRing    chan asyncEnvelope
	asyncCancel  context.CancelFunc
	asyncRunning abool.AtomicBool
}

// asyncEnvelope is one item placed on the async intake ring by step 5 of
// the dispatch pipeline (spec §4.1 "Dispatch pipeline (asynchronous
// mode)").
type asyncEnvelope struct {
	msg    *message.Message
	source *message.ConnectorMessage
}

// New constructs a Channel in the STOPPED state. Call Start to deploy
// and run it.
func New(cfg Config, store Store, executor script.Executor, publisher Publisher) *Channel {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	c := &Channel{
		cfg:       cfg,
		store:     store,
		executor:  executor,
		publisher: publisher,
		accum:     stats.NewAccumulator(cfg.ChannelID),
	}
	c.machine = newMachine(cfg.ChannelID, cfg.ChannelName, publisher)
	for _, spec := range cfg.Destinations {
		c.destinations = append(c.destinations, newDestination(spec, executor))
	}
	return c
}

func (c *Channel) State() State { return c.machine.State() }

// Start executes the deploy script, restores statistics, runs recovery,
// deploys/starts every connector, and finally starts the source (spec
// §4.1 "Start"). Any failure rolls back everything already started, in
// reverse order, and leaves the channel STOPPED.
func (c *Channel) Start(ctx context.Context) error {
	if err := c.machine.transition(StateStarting); err != nil {
		return err
	}

	started := make([]func(context.Context) error, 0, len(c.destinations)+1)
	rollback := func() {
		for i := len(started) - 1; i >= 0; i-- {
			if err := started[i](ctx); err != nil {
				log.Get().WithError(err).Warn("channel start rollback: stop failed, continuing")
			}
		}
		c.machine.forceStopped()
	}

	if c.cfg.Scripts.Deploy != "" {
		if _, err := c.executor.Execute(ctx, c.cfg.Scripts.Deploy, script.Bindings{}); err != nil {
			rollback()
			return fmt.Errorf("channel %s: deploy script: %w", c.cfg.ChannelID, err)
		}
	}

	if snapshot, err := c.store.LoadStatsSnapshot(ctx, c.cfg.ChannelID); err == nil {
		c.accum.Load(snapshot)
	} else {
		log.Get().WithError(err).Warn("channel start: failed to load statistics snapshot, starting from zero")
	}

	lastID, err := c.store.LastMessageID(ctx, c.cfg.ChannelID)
	if err != nil {
		log.Get().WithError(err).Warn("channel start: failed to read last message id, starting from zero")
	}
	c.allocator = NewLocalAllocator(lastID)

	if c.cfg.MessageRecoveryEnabled {
		if err := c.runRecovery(ctx); err != nil {
			log.Get().WithError(err).Warn("channel start: recovery task failed, continuing")
		}
	}

	for _, d := range c.destinations {
		if err := d.conn.Deploy(ctx); err != nil {
			rollback()
			return fmt.Errorf("channel %s: deploy destination %s: %w", c.cfg.ChannelID, d.name, err)
		}
	}
	if err := c.cfg.Source.Deploy(ctx); err != nil {
		rollback()
		return fmt.Errorf("channel %s: deploy source: %w", c.cfg.ChannelID, err)
	}

	sink := c.cfg.EventSink
	if sink == nil {
		sink = connectorEventSink{publisher: c.publisher, channelID: c.cfg.ChannelID}
	}

	for _, d := range c.destinations {
		d := d
		if err := d.conn.Start(ctx, sink); err != nil {
			rollback()
			return fmt.Errorf("channel %s: start destination %s: %w", c.cfg.ChannelID, d.name, err)
		}
		started = append(started, func(ctx context.Context) error { return d.conn.Stop(ctx) })

		if d.queueEnabled() {
			if qs, ok := c.store.(connector.QueueStore); ok {
				if err := d.queue.Rehydrate(qs, c.cfg.ChannelID, d.metaDataID); err != nil {
					log.Get().WithError(err).Warn("channel start: queue rehydrate failed, continuing with an empty queue")
				}
			}
			qctx, cancel := context.WithCancel(ctx)
			d.workerCancel = cancel
			c.workers.Go(func() {
				connector.RunWorker(qctx, d.queue, d.conn, d.workerCfg, func(cm *message.ConnectorMessage) {
					c.onQueueTerminal(qctx, d, cm)
				})
			})
			started = append(started, func(context.Context) error { cancel(); return nil })
		}
	}

	dispatcher := channelDispatcher{channel: c}
	if err := c.cfg.Source.Start(ctx, sink, dispatcher); err != nil {
		rollback()
		return fmt.Errorf("channel %s: start source: %w", c.cfg.ChannelID, err)
	}
	started = append(started, func(ctx context.Context) error { return c.cfg.Source.Stop(ctx) })

	if c.cfg.AsyncIntake {
		c.startAsyncWorker(ctx)
	}

	return c.machine.transition(StateStarted)
}

// Stop stops the source, its destination queue workers, the
// destinations, and finally runs the undeploy script, ending STOPPED
// regardless of intermediate failures (spec §4.1 "Stop").
func (c *Channel) Stop(ctx context.Context) error {
	return c.stop(ctx, true)
}

// Halt is Stop without the undeploy script (spec §4.1 "halt").
func (c *Channel) Halt(ctx context.Context) error {
	return c.stop(ctx, false)
}

func (c *Channel) stop(ctx context.Context, runUndeploy bool) error {
	if c.machine.State() == StateStopped {
		return nil
	}
	if err := c.machine.transition(StateStopping); err != nil {
		// force through: stop must always be attemptable regardless of
		// current state (spec: "Even if any step fails the state must
		// end STOPPED").
		log.Get().WithError(err).Warn("channel stop: illegal transition, forcing through")
	}

	var errs error

	if c.asyncRunning.IsSet() {
		c.asyncCancel()
		c.asyncRunning.UnSet()
	}

	errs = multierr.Append(errs, c.cfg.Source.Stop(ctx))

	for _, d := range c.destinations {
		if d.workerCancel != nil {
			d.workerCancel()
		}
	}
	c.workers.Wait()
	for _, d := range c.destinations {
		errs = multierr.Append(errs, d.conn.Stop(ctx))
	}

	if runUndeploy && c.cfg.Scripts.Undeploy != "" {
		if _, err := c.executor.Execute(ctx, c.cfg.Scripts.Undeploy, script.Bindings{}); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if errs != nil {
		log.Get().WithError(errs).Warn("channel stop completed with errors")
	}

	c.machine.forceStopped()
	return nil
}

// Pause transitions STARTED -> PAUSING -> PAUSED, calling Pause on every
// connector that implements connector.Pausable. Pausing an already
// PAUSED channel is idempotent; pausing a STOPPED channel fails (spec
// §4.1).
func (c *Channel) Pause(ctx context.Context) error {
	if c.machine.State() == StatePaused {
		log.Get().Warn("channel pause: already paused, ignoring")
		return nil
	}
	if err := c.machine.transition(StatePausing); err != nil {
		return err
	}
	if p, ok := c.cfg.Source.(connector.Pausable); ok {
		if err := p.Pause(ctx); err != nil {
			c.machine.forceStopped()
			return fmt.Errorf("channel %s: pause source: %w", c.cfg.ChannelID, err)
		}
	}
	for _, d := range c.destinations {
		if p, ok := d.conn.(connector.Pausable); ok {
			if err := p.Pause(ctx); err != nil {
				c.machine.forceStopped()
				return fmt.Errorf("channel %s: pause destination %s: %w", c.cfg.ChannelID, d.name, err)
			}
		}
	}
	return c.machine.transition(StatePaused)
}

// Resume transitions PAUSED -> STARTING -> STARTED. Resuming a STARTED
// channel fails (spec §4.1: "resume on STARTED fails").
func (c *Channel) Resume(ctx context.Context) error {
	if err := c.machine.transition(StateStarting); err != nil {
		return err
	}
	if p, ok := c.cfg.Source.(connector.Pausable); ok {
		if err := p.Resume(ctx); err != nil {
			c.machine.forceStopped()
			return fmt.Errorf("channel %s: resume source: %w", c.cfg.ChannelID, err)
		}
	}
	for _, d := range c.destinations {
		if p, ok := d.conn.(connector.Pausable); ok {
			if err := p.Resume(ctx); err != nil {
				c.machine.forceStopped()
				return fmt.Errorf("channel %s: resume destination %s: %w", c.cfg.ChannelID, d.name, err)
			}
		}
	}
	return c.machine.transition(StateStarted)
}

// connectorEventSink is the default connector.EventSink when Config
// doesn't supply one: it discards connection events rather than routing
// them through the channel-level Publisher, which only carries state
// transitions and message completions (spec §4.1). Callers who want
// connection-status/count events on the dashboard stream pass
// internal/event's bus-backed adapter as Config.EventSink instead.
type connectorEventSink struct {
	publisher Publisher
	channelID string
}

func (s connectorEventSink) ConnectionStatus(connectorName string, status connector.ConnectionStatus) {}

func (s connectorEventSink) ConnectorCount(connectorName string, delta int) {}
