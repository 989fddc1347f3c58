package syncengine

import (
	"sync"

	"github.com/CalvinMagezi/vaultsync/internal/model"
)

// outboundQueueCap bounds the offline outbound queue; the oldest entry is
// evicted past it.
const outboundQueueCap = 1000

// outboundQueue buffers local changes detected while the transport is
// disconnected, so they can be drained into the relay on reconnect. It is
// a plain ring of the newest outboundQueueCap entries;
// once full, the oldest is dropped to make room for the newest —
// the journal itself still has the complete history, so a drop here only
// means that change is no longer offered for immediate catchup and instead
// waits for the peer's own index-request to pull it from this device later.
type outboundQueue struct {
	mu    sync.Mutex
	items []model.ChangeEntry
}

func newOutboundQueue() *outboundQueue {
	return &outboundQueue{}
}

// Push appends entry, evicting the oldest queued entry if at capacity.
func (q *outboundQueue) Push(entry model.ChangeEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= outboundQueueCap {
		q.items = q.items[1:]
	}
	q.items = append(q.items, entry)
}

// Drain removes and returns every queued entry, oldest first.
func (q *outboundQueue) Drain() []model.ChangeEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len reports the number of currently queued entries.
func (q *outboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
