// Package event is the dashboard event path: an in-process publish-
// subscribe bus fed by every Channel and connector (spec §4.1
// "stateChange, messageComplete" events; §4.2 "Connection status
// events"), plus a gRPC stream that pushes the same events to an
// external dashboard status aggregator (spec §1 collaborator).
package event

import (
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/corvushealth/engine/internal/log"
)

// Event is one published occurrence, topic-routed and partitioned by
// ChannelID so that events for one channel are always delivered in
// publish order.
type Event struct {
	Topic     string
	ChannelID string
	Payload   any
}

// Handler receives events for a subscribed topic. It must not block for
// long: a slow handler backs up its partition's queue.
type Handler func(Event)

// Stats reports bus throughput, for /status and metrics reporting.
type Stats struct {
	Published int64
	Delivered int64
	Dropped   int64
}

// Bus is a partitioned, in-process event bus (grounded on the teacher's
// internal/eventbus.InMemoryEventBus: fixed partition count, each with
// its own goroutine and bounded queue, partitioned by a hash of the
// routing key so per-channel ordering is preserved without a global
// lock on the hot path).
type Bus struct {
	partitions []*partition

	mu          sync.RWMutex
	subscribers map[string][]Handler

	published int64
	delivered int64
	dropped   int64

	closed atomic.Bool
}

type partition struct {
	queue chan Event
	done  chan struct{}
}

// NewBus creates a Bus with partitionCount worker goroutines, each with
// a queue of queueSize. Non-positive values fall back to 4 partitions and
// a queue size of 256.
func NewBus(partitionCount, queueSize int) *Bus {
	if partitionCount <= 0 {
		partitionCount = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	b := &Bus{
		partitions:  make([]*partition, partitionCount),
		subscribers: make(map[string][]Handler),
	}
	for i := range b.partitions {
		p := &partition{queue: make(chan Event, queueSize), done: make(chan struct{})}
		b.partitions[i] = p
		go b.run(p)
	}
	return b
}

func (b *Bus) run(p *partition) {
	for {
		select {
		case ev := <-p.queue:
			b.deliver(ev)
		case <-p.done:
			return
		}
	}
}

func (b *Bus) deliver(ev Event) {
	b.mu.RLock()
	handlers := b.subscribers[ev.Topic]
	b.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Get().Warnf("event: subscriber panic on topic %s: %v", ev.Topic, r)
				}
			}()
			h(ev)
		}()
	}
	atomic.AddInt64(&b.delivered, 1)
}

// Publish routes ev to its partition by hashing ChannelID, then to every
// handler subscribed to ev.Topic. A full partition queue drops the event
// rather than blocking the publisher (dashboard events are best-effort).
func (b *Bus) Publish(ev Event) error {
	if b.closed.Load() {
		return fmt.Errorf("event: bus is closed")
	}
	p := b.partitions[b.partitionFor(ev.ChannelID)]
	select {
	case p.queue <- ev:
		atomic.AddInt64(&b.published, 1)
		return nil
	default:
		atomic.AddInt64(&b.dropped, 1)
		return fmt.Errorf("event: partition queue full, dropped topic %s", ev.Topic)
	}
}

// Subscribe registers handler for topic. Subscriptions may not be
// removed; the bus is sized for a small, fixed set of long-lived
// subscribers (in this repository, the dashboard push server).
func (b *Bus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[topic] = append(b.subscribers[topic], handler)
}

// Close stops every partition worker. Safe to call once; further
// Publish calls return an error.
func (b *Bus) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	for _, p := range b.partitions {
		close(p.done)
	}
}

// Snapshot reports current throughput counters.
func (b *Bus) Snapshot() Stats {
	return Stats{
		Published: atomic.LoadInt64(&b.published),
		Delivered: atomic.LoadInt64(&b.delivered),
		Dropped:   atomic.LoadInt64(&b.dropped),
	}
}

func (b *Bus) partitionFor(channelID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(channelID))
	return int(h.Sum32()) % len(b.partitions)
}
