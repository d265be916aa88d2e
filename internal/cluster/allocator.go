package cluster

import (
	"sync"

	"github.com/corvushealth/engine/internal/log"
)

// BlockSize is the number of message IDs a node reserves from the shared
// counter in a single round-trip.
const BlockSize = 1000

// BlockStore reserves a contiguous range of message IDs for a channel
// from a store-backed shared counter (spec §4.1 step 1 "cluster-safe
// block allocator").
type BlockStore interface {
	// ReserveBlock atomically advances the channel's counter by size and
	// returns the first ID in the newly reserved block.
	ReserveBlock(channelID string, size int64) (start int64, err error)
}

// BlockAllocator hands out message IDs from a locally-cached block,
// refilling from a BlockStore when exhausted (spec §3 "cluster mode
// selects block-allocated message IDs"). It implements
// channel.MessageIDAllocator.
type BlockAllocator struct {
	mu        sync.Mutex
	store     BlockStore
	channelID string
	blockSize int64

	next int64
	end  int64 // exclusive upper bound of the current block
}

// NewBlockAllocator constructs an allocator that reserves blocks of
// blockSize (BlockSize if <= 0) from store for channelID.
func NewBlockAllocator(store BlockStore, channelID string, blockSize int64) *BlockAllocator {
	if blockSize <= 0 {
		blockSize = BlockSize
	}
	return &BlockAllocator{store: store, channelID: channelID, blockSize: blockSize}
}

// Next returns the next message ID, reserving a new block from the
// store when the current one is exhausted. If reservation fails (store
// unreachable), it keeps counting up locally past the last known block
// end rather than blocking dispatch, and logs the failure; the next
// successful reservation re-synchronizes with the shared counter.
func (a *BlockAllocator) Next() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.next >= a.end {
		start, err := a.store.ReserveBlock(a.channelID, a.blockSize)
		if err != nil {
			log.Get().WithError(err).Warn("cluster: block reservation failed, continuing with local ids")
			a.end = a.next + a.blockSize
		} else {
			a.next = start
			a.end = start + a.blockSize
		}
	}

	id := a.next
	a.next++
	return id
}
