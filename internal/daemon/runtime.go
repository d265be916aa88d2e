package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/corvushealth/engine/internal/channel"
	"github.com/corvushealth/engine/internal/config"
	"github.com/corvushealth/engine/internal/event"
	"github.com/corvushealth/engine/internal/log"
	"github.com/corvushealth/engine/internal/metrics"
	"github.com/corvushealth/engine/internal/rpc"
	"github.com/corvushealth/engine/internal/script"
	"github.com/corvushealth/engine/internal/store"
)

var _ rpc.ChannelManager = (*Runtime)(nil)

// entry is one loaded channel: its on-disk definition and, once deployed,
// the running *channel.Channel built from it.
type entry struct {
	def *config.ChannelDefinition
	ch  *channel.Channel
}

// Runtime owns every channel the daemon knows about and implements
// rpc.ChannelManager against them. It is the thing command.CommandHandler
// was to the teacher's task.TaskManager: the in-process registry a
// control-plane call is dispatched through.
type Runtime struct {
	store *store.Store
	bus   *event.Bus

	mu       sync.RWMutex
	channels map[string]*entry
}

// NewRuntime wires a Runtime against the shared store and event bus every
// channel it deploys will use.
func NewRuntime(st *store.Store, bus *event.Bus) *Runtime {
	return &Runtime{
		store:    st,
		bus:      bus,
		channels: make(map[string]*entry),
	}
}

// LoadDir reads every *.yaml/*.yml channel definition under dir and
// registers it (without deploying or starting it — StartAll/StartChannel
// does that). Re-scanning a directory that contains an already-running
// channel's definition updates the definition in place without touching
// its running *channel.Channel; call ReloadChannel to pick up the new
// definition for a channel that's already started.
func (r *Runtime) LoadDir(dir string) error {
	matches, err := channelDefinitionFiles(dir)
	if err != nil {
		return fmt.Errorf("daemon: scan channel directory %s: %w", dir, err)
	}
	for _, path := range matches {
		def, err := config.LoadChannelDefinition(path)
		if err != nil {
			return fmt.Errorf("daemon: load %s: %w", path, err)
		}
		r.mu.Lock()
		if e, ok := r.channels[def.ID]; ok {
			e.def = def
		} else {
			r.channels[def.ID] = &entry{def: def}
		}
		r.mu.Unlock()
	}
	return nil
}

func channelDefinitionFiles(dir string) ([]string, error) {
	var out []string
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// StartAll deploys and starts every enabled, loaded channel, in
// channel-id order for reproducible logs. Channel dependency ordering
// (spec S5) is a promotion-pipeline concern, not a daemon-startup one —
// see internal/promotion for that slice of the spec.
func (r *Runtime) StartAll(ctx context.Context) error {
	r.mu.RLock()
	var ids []string
	for id, e := range r.channels {
		if e.def.Enabled {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()
	sort.Strings(ids)

	for _, id := range ids {
		if err := r.StartChannel(ctx, id); err != nil {
			return fmt.Errorf("daemon: start %s: %w", id, err)
		}
	}
	return nil
}

// StopAll halts every running channel, logging (not failing) individual
// errors so one stuck channel doesn't block the rest from stopping.
func (r *Runtime) StopAll(ctx context.Context) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		if err := r.StopChannel(ctx, id); err != nil {
			log.Get().WithError(err).WithField("channel", id).Error("error stopping channel")
		}
	}
}

func (r *Runtime) get(channelID string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("daemon: unknown channel %q", channelID)
	}
	return e, nil
}

// build constructs a fresh *channel.Channel from e's definition, wiring
// the shared store, a no-op script executor (spec §9: scripting sandbox
// internals are out of scope here), and an event-bus-backed publisher/sink
// so dashboard clients see this channel's lifecycle and connector events.
func (r *Runtime) build(e *entry) (*channel.Channel, error) {
	cfg, err := e.def.Build()
	if err != nil {
		return nil, err
	}
	cfg.EventSink = event.NewConnectorAdapter(r.bus, e.def.ID)
	publisher := event.NewChannelAdapter(r.bus)
	ch := channel.New(cfg, r.store, script.NoopExecutor, publisher)
	return ch, nil
}

// DeployChannel (re)builds a channel's connectors and scripts from its
// on-disk definition without starting it, per spec §4.1's DEPLOYING state.
func (r *Runtime) DeployChannel(ctx context.Context, channelID string) error {
	e, err := r.get(channelID)
	if err != nil {
		return err
	}
	ch, err := r.build(e)
	if err != nil {
		return err
	}
	r.mu.Lock()
	e.ch = ch
	r.mu.Unlock()
	return nil
}

// StartChannel deploys (if not already) and starts channelID.
func (r *Runtime) StartChannel(ctx context.Context, channelID string) error {
	e, err := r.get(channelID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	ch := e.ch
	r.mu.Unlock()
	if ch == nil {
		if err := r.DeployChannel(ctx, channelID); err != nil {
			return err
		}
		e, _ = r.get(channelID)
		ch = e.ch
	}
	if err := ch.Start(ctx); err != nil {
		return err
	}
	metrics.ChannelState.WithLabelValues(channelID, ch.State().String()).Set(1)
	return nil
}

// StopChannel stops channelID if it is running. Stopping a channel that
// was never deployed is a no-op, not an error — the control plane may
// legitimately call Stop on something that failed to start.
func (r *Runtime) StopChannel(ctx context.Context, channelID string) error {
	e, err := r.get(channelID)
	if err != nil {
		return err
	}
	r.mu.RLock()
	ch := e.ch
	r.mu.RUnlock()
	if ch == nil {
		return nil
	}
	return ch.Stop(ctx)
}

// ReloadChannel stops, rebuilds from the on-disk definition, and restarts
// channelID — the only way to pick up changed scripts or connector
// config short of a daemon restart.
func (r *Runtime) ReloadChannel(ctx context.Context, channelID string) error {
	if err := r.StopChannel(ctx, channelID); err != nil {
		return err
	}
	r.mu.Lock()
	if e, ok := r.channels[channelID]; ok {
		e.ch = nil
	}
	r.mu.Unlock()
	return r.StartChannel(ctx, channelID)
}

// ChannelStatus reports channelID's current lifecycle state.
func (r *Runtime) ChannelStatus(ctx context.Context, channelID string) (string, error) {
	e, err := r.get(channelID)
	if err != nil {
		return "", err
	}
	r.mu.RLock()
	ch := e.ch
	r.mu.RUnlock()
	if ch == nil {
		return channel.StateStopped.String(), nil
	}
	return ch.State().String(), nil
}
