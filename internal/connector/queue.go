package connector

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/corvushealth/engine/internal/message"
)

// QueueStore is the durability hook a Destination Queue uses so its
// in-memory buffer can be rehydrated from persisted rows at channel start
// (spec §3 "Destination Queue entry", §6).
type QueueStore interface {
	EnqueueEntry(channelID string, metaDataID int, cm *message.ConnectorMessage) error
	RemoveEntry(channelID string, metaDataID int, messageID int64) error
	LoadQueued(channelID string, metaDataID int) ([]*message.ConnectorMessage, error)
}

// ResponseValidator inspects a destination's response; a non-nil error
// makes RunWorker treat the attempt as a failed send and retry it
// (spec §4.2 queue worker).
type ResponseValidator func(cm *message.ConnectorMessage, resp message.Content) error

// Queue is a FIFO retry queue for one destination's failed sends. Pushes
// append to the tail; retries re-insert at the tail too (spec §5 ordering
// guarantees: "retries re-insert at the tail").
type Queue struct {
	mu      sync.Mutex
	entries *list.List
	notify  chan struct{}
}

// NewQueue creates an empty in-memory queue.
func NewQueue() *Queue {
	return &Queue{entries: list.New(), notify: make(chan struct{}, 1)}
}

// Push appends an entry to the tail of the queue.
func (q *Queue) Push(cm *message.ConnectorMessage) {
	q.mu.Lock()
	q.entries.PushBack(cm)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes and returns the entry at the head of the queue, or
// (nil, false) if empty.
func (q *Queue) Pop() (*message.ConnectorMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.entries.Front()
	if front == nil {
		return nil, false
	}
	q.entries.Remove(front)
	return front.Value.(*message.ConnectorMessage), true
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entries.Len()
}

// Rehydrate loads durably queued entries for (channelID, metaDataID) from
// the store into the in-memory buffer — called once at channel start
// (spec §3 "the queue's in-memory buffer is rehydrated from durable
// storage at channel start").
func (q *Queue) Rehydrate(store QueueStore, channelID string, metaDataID int) error {
	entries, err := store.LoadQueued(channelID, metaDataID)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range entries {
		q.entries.PushBack(e)
	}
	return nil
}

// WorkerConfig parameterizes the destination queue worker loop (spec
// §4.2).
type WorkerConfig struct {
	PollInterval  time.Duration
	RetryInterval time.Duration
	RetryCount    int // 0 = unlimited retries
	Validator     ResponseValidator
}

// RunWorker drains Queue, retrying sends against dest until ctx is
// cancelled. It implements the full queue worker contract of spec §4.2:
// inter-attempt backoff, response validation, retry-count exhaustion, and
// persistence of terminal status via onTerminal.
//
// onTerminal is called once an entry reaches a stable end state (SENT or
// ERROR after exhausting retryCount) so the caller can persist status,
// attempts, and statistics — kept out of this function so Queue stays
// store-agnostic.
func RunWorker(ctx context.Context, q *Queue, dest Destination, cfg WorkerConfig, onTerminal func(cm *message.ConnectorMessage)) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 1 * time.Second
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cm, ok := q.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.notify:
			case <-time.After(cfg.PollInterval):
			}
			continue
		}

		if cm.SendAttempts > 0 && cfg.RetryInterval > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(cfg.RetryInterval):
			}
		}

		cm.SendAttempts++
		err := dest.Send(ctx, cm)
		if err == nil {
			if cfg.Validator != nil {
				if resp, ok, rerr := dest.GetResponse(ctx, cm); rerr == nil && ok {
					err = cfg.Validator(cm, resp)
				}
			}
		}

		if err == nil {
			cm.Status = message.StatusSent
			onTerminal(cm)
			continue
		}

		exhausted := cfg.RetryCount > 0 && cm.SendAttempts >= cfg.RetryCount
		if exhausted {
			cm.Status = message.StatusError
			cm.ProcessingError = err.Error()
			onTerminal(cm)
			continue
		}
		q.Push(cm)
	}
}
