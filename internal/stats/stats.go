// Package stats implements the channel-level Statistics Accumulator
// described in spec §4.4: channelId -> metaDataId (AggregateMetaDataID =
// aggregate) ->
// status -> count, with channel-aggregate accumulation rules and
// clamp-at-zero decrements.
package stats

import (
	"sync"

	"go.uber.org/atomic"
)

// AggregateMetaDataID is the pseudo metaDataId used for the channel-level
// aggregate counters.
const AggregateMetaDataID = -1

// Tracked statuses (spec §4.4). PENDING is tracked separately from QUEUED
// per the Open Question resolution in spec §9/SPEC_FULL §D.
type Status int

const (
	Received Status = iota
	Filtered
	Sent
	Error
	Queued
	Pending
)

func (s Status) String() string {
	switch s {
	case Received:
		return "RECEIVED"
	case Filtered:
		return "FILTERED"
	case Sent:
		return "SENT"
	case Error:
		return "ERROR"
	case Queued:
		return "QUEUED"
	case Pending:
		return "PENDING"
	default:
		return "UNKNOWN"
	}
}

type counterKey struct {
	metaDataID int
	status     Status
}

// Accumulator is a single channel's statistics. Safe for concurrent use.
type Accumulator struct {
	channelID string

	mu       sync.RWMutex
	counters map[counterKey]*atomic.Int64

	// allowNegatives permits decrements to go below zero (spec invariant
	// says counters never go negative unless this is set).
	allowNegatives bool
}

// NewAccumulator creates an empty Accumulator for a channel.
func NewAccumulator(channelID string) *Accumulator {
	return &Accumulator{
		channelID: channelID,
		counters:  make(map[counterKey]*atomic.Int64),
	}
}

// SetAllowNegatives toggles whether decrements clamp at zero.
func (a *Accumulator) SetAllowNegatives(allow bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allowNegatives = allow
}

func (a *Accumulator) counter(key counterKey) *atomic.Int64 {
	a.mu.RLock()
	c, ok := a.counters[key]
	a.mu.RUnlock()
	if ok {
		return c
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok = a.counters[key]; ok {
		return c
	}
	c = atomic.NewInt64(0)
	a.counters[key] = c
	return c
}

// UpdateStatus is the single atomic unit of statistics mutation: it
// increments incrementStatus and, if set, decrements decrementStatus, both
// for metaDataID and for the channel aggregate — applying the aggregate
// accumulation rule (RECEIVED only from source, SENT only from
// destinations, FILTERED/ERROR from any connector).
func (a *Accumulator) UpdateStatus(metaDataID int, increment Status, decrement *Status) {
	a.bump(metaDataID, increment, 1)
	if a.aggregateApplies(metaDataID, increment) {
		a.bump(AggregateMetaDataID, increment, 1)
	}
	if decrement != nil {
		a.bump(metaDataID, *decrement, -1)
		if a.aggregateApplies(metaDataID, *decrement) {
			a.bump(AggregateMetaDataID, *decrement, -1)
		}
	}
}

func (a *Accumulator) aggregateApplies(metaDataID int, status Status) bool {
	isSource := metaDataID == 0
	switch status {
	case Received:
		return isSource
	case Sent:
		return !isSource
	default: // Filtered, Error, Queued, Pending accumulate from any connector
		return true
	}
}

func (a *Accumulator) bump(metaDataID int, status Status, delta int64) {
	c := a.counter(counterKey{metaDataID: metaDataID, status: status})
	if delta < 0 {
		a.mu.RLock()
		allow := a.allowNegatives
		a.mu.RUnlock()
		for {
			cur := c.Load()
			next := cur + delta
			if !allow && next < 0 {
				next = 0
			}
			if c.CAS(cur, next) {
				return
			}
		}
	}
	c.Add(delta)
}

// Get returns the current count for (metaDataID, status).
func (a *Accumulator) Get(metaDataID int, status Status) int64 {
	return a.counter(counterKey{metaDataID: metaDataID, status: status}).Load()
}

// Snapshot returns a copy of every tracked counter, keyed by metaDataId
// then status, in the same shape the store's statistics snapshot and
// metrics.ObserveSnapshot use.
func (a *Accumulator) Snapshot() map[int]map[Status]int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[int]map[Status]int64)
	for k, v := range a.counters {
		if out[k.metaDataID] == nil {
			out[k.metaDataID] = make(map[Status]int64)
		}
		out[k.metaDataID][k.status] = v.Load()
	}
	return out
}

// Load seeds counters from a previously persisted snapshot (channel
// start, spec §4.1 "Start").
func (a *Accumulator) Load(snapshot map[int]map[Status]int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for metaDataID, byStatus := range snapshot {
		for status, count := range byStatus {
			a.counters[counterKey{metaDataID: metaDataID, status: status}] = atomic.NewInt64(count)
		}
	}
}
