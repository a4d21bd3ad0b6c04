package access

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/latchdb/latchdb/storage/page"
	"github.com/latchdb/latchdb/types"
)

// TransactionManager owns transaction-id allocation and the begin/commit/
// abort lifecycle. It only touches the lock manager: log-manager records
// and catalog-driven rollback are an executor's responsibility, since
// table/index undo needs to interpret write sets this package never does.
type TransactionManager struct {
	nextTxnID types.TxnID
	lockMgr   *LockManager
	log       *zap.Logger

	mu   sync.Mutex
	live map[types.TxnID]*Transaction
}

func NewTransactionManager(lockMgr *LockManager, log *zap.Logger) *TransactionManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &TransactionManager{
		lockMgr: lockMgr,
		log:     log,
		live:    make(map[types.TxnID]*Transaction),
	}
}

// Begin starts a new transaction at the given isolation level, registers
// it with the lock manager so the deadlock detector can see it, and returns
// it in state GROWING.
func (tm *TransactionManager) Begin(isolation IsolationLevel) *Transaction {
	id := types.TxnID(atomic.AddInt32((*int32)(&tm.nextTxnID), 1))
	txn := NewTransaction(id, isolation)

	tm.mu.Lock()
	tm.live[id] = txn
	tm.mu.Unlock()

	tm.lockMgr.RegisterTransaction(txn)
	tm.log.Debug("txn begin", zap.Int32("txn_id", int32(id)))
	return txn
}

// Commit moves txn to COMMITTED and releases all of its locks.
func (tm *TransactionManager) Commit(txn *Transaction) {
	txn.SetState(COMMITTED)
	tm.releaseLocks(txn)
	tm.forget(txn)
	tm.log.Debug("txn commit", zap.Int32("txn_id", int32(txn.ID())))
}

// Abort moves txn to ABORTED (idempotent — the deadlock detector may have
// already done this) and releases all of its locks. Undo of the
// transaction's writes against table/index storage is the executor's
// responsibility; the lock manager never interprets write sets.
func (tm *TransactionManager) Abort(txn *Transaction, reason AbortReason) {
	txn.Abort(reason)
	tm.releaseLocks(txn)
	tm.forget(txn)
	tm.log.Debug("txn abort", zap.Int32("txn_id", int32(txn.ID())), zap.String("reason", reason.String()))
}

func (tm *TransactionManager) releaseLocks(txn *Transaction) {
	rids := make([]page.RID, 0, txn.SharedLockSet().Cardinality()+txn.ExclusiveLockSet().Cardinality())
	rids = append(rids, txn.ExclusiveLockSet().ToSlice()...)
	rids = append(rids, txn.SharedLockSet().ToSlice()...)
	for _, rid := range rids {
		tm.lockMgr.Unlock(txn, rid)
	}
}

func (tm *TransactionManager) forget(txn *Transaction) {
	tm.mu.Lock()
	delete(tm.live, txn.ID())
	tm.mu.Unlock()
	tm.lockMgr.UnregisterTransaction(txn.ID())
}

// Lookup returns the live transaction with the given id, or nil if it has
// already committed/aborted and been forgotten.
func (tm *TransactionManager) Lookup(id types.TxnID) *Transaction {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.live[id]
}
