// Package cluster provides cluster-mode collaborators: a consistent-hash
// ring over node IDs, and a block-based message-ID allocator that draws
// contiguous ranges from a shared counter instead of a per-process
// monotonic counter (spec §3, §6 "Cluster-safe message ID allocation &
// node affinity").
package cluster

import (
	"sync"

	"github.com/serialx/hashring"
)

// Ring is a consistent-hash ring of cluster node IDs, used to decide
// which node owns a given channel (spec §6: "node affinity").
type Ring struct {
	mu   sync.RWMutex
	ring *hashring.HashRing
}

// NewRing builds a ring over the given node IDs.
func NewRing(nodes ...string) *Ring {
	return &Ring{ring: hashring.New(nodes)}
}

// Owner returns the node ID the ring assigns to key (typically a channel
// ID), or false if the ring has no nodes.
func (r *Ring) Owner(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ring.GetNode(key)
}

// AddNode adds a node to the ring, e.g. on cluster membership join.
func (r *Ring) AddNode(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ring = r.ring.AddNode(node)
}

// RemoveNode removes a node from the ring, e.g. on cluster membership
// leave or a failed health check.
func (r *Ring) RemoveNode(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ring = r.ring.RemoveNode(node)
}
