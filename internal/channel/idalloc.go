package channel

import "go.uber.org/atomic"

// MessageIDAllocator hands out the next messageId for a channel (spec
// §4.1 step 1). The non-cluster implementation is a per-channel
// monotonic counter; cluster mode substitutes a block allocator from
// internal/cluster that satisfies the same interface.
type MessageIDAllocator interface {
	Next() int64
}

// LocalAllocator is a single-process, per-channel monotonic counter
// seeded from the store's last persisted messageId at channel start.
type LocalAllocator struct {
	counter *atomic.Int64
}

// NewLocalAllocator seeds the counter one past the last persisted id.
func NewLocalAllocator(lastPersisted int64) *LocalAllocator {
	a := &LocalAllocator{counter: atomic.NewInt64(lastPersisted)}
	return a
}

func (a *LocalAllocator) Next() int64 {
	return a.counter.Inc()
}
