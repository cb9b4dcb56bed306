package livestream

import (
	"context"
	"sync"
)

// clientSlot is one attached viewer. queue is nil for PullDelivery viewers.
type clientSlot struct {
	kind  DeliveryKind
	queue *payloadQueue
}

// ClientTable is an arena of viewer slots indexed by ClientID.
// Removing a viewer tombstones its slot in place so IDs held by other
// viewers stay valid.
type ClientTable struct {
	mu    sync.RWMutex
	slots []*clientSlot
}

// NewClientTable returns an empty table.
func NewClientTable() *ClientTable {
	return &ClientTable{}
}

// Insert appends a slot for a viewer of the given kind and returns its ID.
func (t *ClientTable) Insert(kind DeliveryKind) ClientID {
	slot := &clientSlot{kind: kind}
	if kind == PushDelivery {
		slot.queue = newPayloadQueue()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots = append(t.slots, slot)
	return ClientID(len(t.slots) - 1)
}

// Remove tombstones the slot at id. It reports whether a live slot was
// removed; unknown or already removed IDs are a no-op.
func (t *ClientTable) Remove(id ClientID) bool {
	t.mu.Lock()
	slot := t.slotLocked(id)
	if slot == nil {
		t.mu.Unlock()
		return false
	}
	t.slots[id] = nil
	t.mu.Unlock()

	if slot.queue != nil {
		slot.queue.close()
	}
	return true
}

// CountActive returns the number of slots that have not been removed.
func (t *ClientTable) CountActive() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, slot := range t.slots {
		if slot != nil {
			n++
		}
	}
	return n
}

// Broadcast enqueues p for every live PushDelivery slot and returns the
// number of queues it reached. It never waits on a reader.
// Every viewer receives the same slice; readers must not modify it.
func (t *ClientTable) Broadcast(p []byte) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, slot := range t.slots {
		if slot == nil || slot.queue == nil {
			continue
		}
		if slot.queue.push(p) {
			n++
		}
	}
	return n
}

// ReadOne blocks until a payload is queued for id, the slot is removed, or
// ctx is done. Unknown and removed slots return ErrClientNotFound and
// PullDelivery slots return ErrNotPushClient, both without blocking.
func (t *ClientTable) ReadOne(ctx context.Context, id ClientID) ([]byte, error) {
	t.mu.RLock()
	slot := t.slotLocked(id)
	t.mu.RUnlock()

	if slot == nil {
		return nil, ErrClientNotFound
	}
	if slot.queue == nil {
		return nil, ErrNotPushClient
	}

	p, ok, err := slot.queue.pop(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrClientNotFound
	}
	return p, nil
}

// Backlog returns the number of payloads waiting in id's queue.
func (t *ClientTable) Backlog(id ClientID) int {
	t.mu.RLock()
	slot := t.slotLocked(id)
	t.mu.RUnlock()

	if slot == nil || slot.queue == nil {
		return 0
	}
	return slot.queue.len()
}

// slotLocked returns the live slot at id or nil.
// Caller must hold t.mu.
func (t *ClientTable) slotLocked(id ClientID) *clientSlot {
	if id < 0 || int(id) >= len(t.slots) {
		return nil
	}
	return t.slots[id]
}
