// Package buffer implements the frame replacer and buffer pool manager.
package buffer

import (
	deadlock "github.com/sasha-s/go-deadlock"
	"github.com/latchdb/latchdb/types"
)

type node struct {
	frame      types.FrameID
	prev, next *node
}

// LRUReplacer is a bounded least-recently-unpinned victim selector over
// frame identifiers. It is a doubly linked list — most recently unpinned
// at the head, victim at the tail — plus a map from frame id to list node,
// giving O(1) victim selection, pin and unpin instead of a linear scan.
type LRUReplacer struct {
	mu       deadlock.Mutex
	capacity uint32
	nodes    map[types.FrameID]*node
	head     *node // most recently unpinned
	tail     *node // victim candidate
}

// NewLRUReplacer returns a replacer with room for capacity frames.
func NewLRUReplacer(capacity uint32) *LRUReplacer {
	return &LRUReplacer{
		capacity: capacity,
		nodes:    make(map[types.FrameID]*node, capacity),
	}
}

// Victim removes and returns the least-recently-unpinned frame, or
// (0, false) if the replacer is empty.
func (r *LRUReplacer) Victim() (types.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tail == nil {
		return 0, false
	}
	victim := r.tail
	r.unlink(victim)
	delete(r.nodes, victim.frame)
	return victim.frame, true
}

// Pin removes frame from LRU tracking: it is now in use and ineligible for
// eviction. Idempotent.
func (r *LRUReplacer) Pin(frame types.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[frame]
	if !ok {
		return
	}
	r.unlink(n)
	delete(r.nodes, frame)
}

// Unpin inserts frame as most-recently-used if it is not already tracked.
// Idempotent; ignores attempts to track more than capacity frames.
func (r *LRUReplacer) Unpin(frame types.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[frame]; ok {
		return
	}
	if uint32(len(r.nodes)) >= r.capacity {
		return
	}
	n := &node{frame: frame}
	r.nodes[frame] = n
	r.pushFront(n)
}

// Size returns the number of frames currently tracked as evictable.
func (r *LRUReplacer) Size() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint32(len(r.nodes))
}

func (r *LRUReplacer) pushFront(n *node) {
	n.prev = nil
	n.next = r.head
	if r.head != nil {
		r.head.prev = n
	}
	r.head = n
	if r.tail == nil {
		r.tail = n
	}
}

func (r *LRUReplacer) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		r.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		r.tail = n.prev
	}
	n.prev, n.next = nil, nil
}
