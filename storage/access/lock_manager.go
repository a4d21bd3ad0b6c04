package access

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"github.com/latchdb/latchdb/common"
	"github.com/latchdb/latchdb/storage/page"
	"github.com/latchdb/latchdb/types"
)

// LockManager arbitrates SHARED and EXCLUSIVE record locks under strict
// two-phase-locking discipline, with a background waits-for-graph deadlock
// detector. Each RID gets its own FIFO LockRequestQueue with
// condition-variable blocking, so waiters for one record never contend on
// a lock held for an unrelated record, and grants respect isolation-level
// gated preconditions.
type LockManager struct {
	table *lockTable

	txnsMu deadlock.Mutex
	txns   map[types.TxnID]*Transaction

	graphMu  deadlock.Mutex
	waitsFor map[types.TxnID]map[types.TxnID]struct{}

	enableCycleDetection bool
	cycleInterval        time.Duration
	stopCh               chan struct{}
	stopped              chan struct{}

	log *zap.Logger
}

// NewLockManager constructs a lock manager and, if cfg.EnableCycleDetection
// is set, launches the background detector goroutine immediately.
func NewLockManager(cfg common.Config, log *zap.Logger) *LockManager {
	cfg = cfg.WithDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	lm := &LockManager{
		table:                newLockTable(cfg.LockStripes),
		txns:                 make(map[types.TxnID]*Transaction),
		waitsFor:             make(map[types.TxnID]map[types.TxnID]struct{}),
		enableCycleDetection: cfg.EnableCycleDetection,
		cycleInterval:        cfg.CycleDetectionInterval,
		stopCh:               make(chan struct{}),
		stopped:              make(chan struct{}),
		log:                  log,
	}
	if lm.enableCycleDetection {
		go lm.runDetector()
	} else {
		close(lm.stopped)
	}
	return lm
}

// Close stops the detector goroutine and waits for it to exit. Safe to
// call even if detection was never enabled.
func (lm *LockManager) Close() {
	if !lm.enableCycleDetection {
		return
	}
	close(lm.stopCh)
	<-lm.stopped
}

// RegisterTransaction and UnregisterTransaction maintain the live-txn
// registry the detector consults to tell granted holders from aborted
// ghosts: an edge is only added between two transactions that are both
// still live and non-aborted. Called by TransactionManager.
func (lm *LockManager) RegisterTransaction(txn *Transaction) {
	lm.txnsMu.Lock()
	lm.txns[txn.ID()] = txn
	lm.txnsMu.Unlock()
}

func (lm *LockManager) UnregisterTransaction(id types.TxnID) {
	lm.txnsMu.Lock()
	delete(lm.txns, id)
	lm.txnsMu.Unlock()
}

func (lm *LockManager) lookupTxn(id types.TxnID) *Transaction {
	lm.txnsMu.Lock()
	defer lm.txnsMu.Unlock()
	return lm.txns[id]
}

// checkPrecondition enforces which lock requests are legal for txn's
// isolation level and current 2PL phase before the request is ever queued.
// mode is the mode being requested (Shared/Exclusive); isUpgrade
// distinguishes LockUpgrade from a direct LockShared/LockExclusive call,
// since READ_UNCOMMITTED forbids both the same way.
func (lm *LockManager) checkPrecondition(txn *Transaction, mode LockMode, isUpgrade bool) bool {
	if txn.IsAborted() {
		return false
	}

	wantsShared := mode == Shared && !isUpgrade
	if (wantsShared || isUpgrade) && txn.Isolation() == ReadUncommitted {
		txn.Abort(LockSharedOnReadUncommitted)
		return false
	}

	if txn.State() != GROWING {
		if wantsShared && txn.Isolation() == ReadCommitted {
			return true // READ_COMMITTED permits shared locks in SHRINKING too
		}
		txn.Abort(LockOnShrinking)
		return false
	}
	return true
}

// transitionOnUnlock applies the per-isolation rule for what an unlock does
// to a transaction's 2PL phase. Only ever moves a transaction out of
// GROWING; once SHRINKING/COMMITTED/ABORTED this is a no-op.
func (lm *LockManager) transitionOnUnlock(txn *Transaction, releasedExclusive bool) {
	if txn.State() != GROWING {
		return
	}
	switch txn.Isolation() {
	case RepeatableRead:
		txn.SetState(SHRINKING)
	case ReadCommitted, ReadUncommitted:
		if releasedExclusive {
			txn.SetState(SHRINKING)
		}
	}
}

// LockShared acquires rid in shared mode for txn, blocking until the
// request is granted, the transaction is aborted, or the precondition
// check itself aborts it.
func (lm *LockManager) LockShared(txn *Transaction, rid page.RID) bool {
	if !lm.checkPrecondition(txn, Shared, false) {
		return false
	}
	return lm.acquire(txn, rid, Shared)
}

// LockExclusive acquires rid in exclusive mode. Calling this while txn
// already holds SHARED on rid is undefined behavior — use LockUpgrade
// instead.
func (lm *LockManager) LockExclusive(txn *Transaction, rid page.RID) bool {
	if !lm.checkPrecondition(txn, Exclusive, false) {
		return false
	}
	return lm.acquire(txn, rid, Exclusive)
}

func (lm *LockManager) acquire(txn *Transaction, rid page.RID, mode LockMode) bool {
	q := lm.table.getOrCreate(rid)
	q.mu.Lock()

	req := &LockRequest{txnID: txn.ID(), mode: mode}
	q.requests = append(q.requests, req)
	txn.markWaiting(rid)

	for {
		if txn.IsAborted() {
			q.remove(req)
			q.cond.Broadcast()
			q.mu.Unlock()
			txn.clearWaiting(rid)
			return false
		}
		if q.isGrantable(req) {
			req.granted = true
			txn.clearWaiting(rid)
			if mode == Shared {
				txn.SharedLockSet().Add(rid)
			} else {
				txn.ExclusiveLockSet().Add(rid)
			}
			q.cond.Broadcast()
			q.mu.Unlock()
			return true
		}
		q.cond.Wait()
	}
}

// LockUpgrade promotes txn's held SHARED lock on rid to EXCLUSIVE. It is
// the caller's responsibility to already hold SHARED on rid — calling this
// without it panics via common.Assert.
func (lm *LockManager) LockUpgrade(txn *Transaction, rid page.RID) bool {
	if !lm.checkPrecondition(txn, Exclusive, true) {
		return false
	}

	q := lm.table.getOrCreate(rid)
	q.mu.Lock()

	if q.upgrading != types.InvalidTxnID {
		q.mu.Unlock()
		txn.Abort(UpgradeConflict)
		return false
	}

	req := q.find(txn.ID())
	common.Assert(req != nil && req.mode == Shared && req.granted,
		"LockUpgrade: rid is not locked in shared mode by txn %d", txn.ID())

	q.upgrading = txn.ID()
	req.mode = Exclusive
	req.granted = false
	txn.markWaiting(rid)

	for {
		if txn.IsAborted() {
			q.remove(req)
			if q.upgrading == txn.ID() {
				q.upgrading = types.InvalidTxnID
			}
			q.cond.Broadcast()
			q.mu.Unlock()
			txn.clearWaiting(rid)
			return false
		}
		if q.isGrantable(req) {
			req.granted = true
			q.upgrading = types.InvalidTxnID
			txn.clearWaiting(rid)
			txn.SharedLockSet().Remove(rid)
			txn.ExclusiveLockSet().Add(rid)
			q.cond.Broadcast()
			q.mu.Unlock()
			return true
		}
		q.cond.Wait()
	}
}

// Unlock releases txn's lock on rid, if any, and advances its 2PL state
// machine. Unlocking a RID txn does not hold is a no-op, not an error.
func (lm *LockManager) Unlock(txn *Transaction, rid page.RID) bool {
	q, ok := lm.table.get(rid)
	if !ok {
		return true
	}

	q.mu.Lock()
	req := q.find(txn.ID())
	releasedExclusive := false
	if req != nil {
		releasedExclusive = req.mode == Exclusive
		q.remove(req)
	}
	q.cond.Broadcast()
	q.mu.Unlock()

	txn.SharedLockSet().Remove(rid)
	txn.ExclusiveLockSet().Remove(rid)
	if req != nil {
		lm.transitionOnUnlock(txn, releasedExclusive)
	}
	return true
}
