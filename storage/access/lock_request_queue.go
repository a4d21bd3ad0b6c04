package access

import (
	"encoding/binary"
	"sync"

	deadlock "github.com/sasha-s/go-deadlock"
	"github.com/spaolacci/murmur3"

	"github.com/latchdb/latchdb/storage/page"
	"github.com/latchdb/latchdb/types"
)

// LockMode is the mode a LockRequest asks for.
type LockMode int32

const (
	Shared LockMode = iota
	Exclusive
)

// LockRequest is one entry of a LockRequestQueue.
type LockRequest struct {
	txnID   types.TxnID
	mode    LockMode
	granted bool
}

// lockRequestQueue is the per-RID FIFO of pending/granted lock requests.
// cond is bound to mu: waiters release mu while asleep and re-acquire it
// before re-checking grant eligibility.
type lockRequestQueue struct {
	mu        deadlock.Mutex
	cond      *sync.Cond
	requests  []*LockRequest
	upgrading types.TxnID
}

func newLockRequestQueue() *lockRequestQueue {
	q := &lockRequestQueue{upgrading: types.InvalidTxnID}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *lockRequestQueue) find(txnID types.TxnID) *LockRequest {
	for _, r := range q.requests {
		if r.txnID == txnID {
			return r
		}
	}
	return nil
}

func (q *lockRequestQueue) remove(target *LockRequest) {
	for i, r := range q.requests {
		if r == target {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			return
		}
	}
}

// isGrantable reports whether req can be granted right now: req is
// grantable iff every other transaction's granted request is compatible in
// mode with req, and no other transaction's still-waiting request arrived
// earlier than req (FIFO fairness).
//
// A granted, mode-incompatible holder blocks req no matter where it sits in
// q.requests: LockUpgrade mutates its own entry in place rather than moving
// it to the tail, so req's slice position is not a reliable stand-in for
// "already examined". A self-match must not short-circuit past holders that
// were appended after req's original index.
func (q *lockRequestQueue) isGrantable(req *LockRequest) bool {
	self := -1
	for i, r := range q.requests {
		if r == req {
			self = i
			break
		}
	}

	for i, r := range q.requests {
		if r == req || r.txnID == req.txnID {
			continue
		}
		if r.granted {
			if r.mode == Exclusive || req.mode == Exclusive {
				return false
			}
			continue
		}
		if i < self {
			return false
		}
	}
	return true
}

// lockStripe is one shard of the lock table: its own latch plus the RID
// queues that hash into it.
type lockStripe struct {
	mu     deadlock.Mutex
	queues map[page.RID]*lockRequestQueue
}

// lockTable shards RID -> LockRequestQueue across N stripes, hashed with
// murmur3, to reduce contention on queue creation/lookup: callers only ever
// take a stripe latch before the per-queue latch within that same stripe,
// never across stripes, so there is no lock-ordering cycle to deadlock on.
type lockTable struct {
	stripes []*lockStripe
}

func newLockTable(n uint32) *lockTable {
	if n == 0 {
		n = 1
	}
	stripes := make([]*lockStripe, n)
	for i := range stripes {
		stripes[i] = &lockStripe{queues: make(map[page.RID]*lockRequestQueue)}
	}
	return &lockTable{stripes: stripes}
}

func ridHash(rid page.RID) uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(rid.PageID))
	binary.LittleEndian.PutUint32(buf[4:8], rid.Slot)
	return murmur3.Sum32(buf[:])
}

func (lt *lockTable) stripeFor(rid page.RID) *lockStripe {
	return lt.stripes[ridHash(rid)%uint32(len(lt.stripes))]
}

func (lt *lockTable) getOrCreate(rid page.RID) *lockRequestQueue {
	s := lt.stripeFor(rid)
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[rid]
	if !ok {
		q = newLockRequestQueue()
		s.queues[rid] = q
	}
	return q
}

func (lt *lockTable) get(rid page.RID) (*lockRequestQueue, bool) {
	s := lt.stripeFor(rid)
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[rid]
	return q, ok
}

// forEach visits every (RID, queue) pair. Each stripe's latch is held only
// for the duration of that stripe's callback invocations.
func (lt *lockTable) forEach(fn func(rid page.RID, q *lockRequestQueue)) {
	for _, s := range lt.stripes {
		s.mu.Lock()
		for rid, q := range s.queues {
			fn(rid, q)
		}
		s.mu.Unlock()
	}
}
