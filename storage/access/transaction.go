// Package access implements transaction state and the record-level lock
// manager.
package access

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/latchdb/latchdb/storage/page"
	"github.com/latchdb/latchdb/types"
)

// TransactionState is the 2PL phase a transaction is in.
//
//	GROWING --(unlock)--> SHRINKING --(commit)--> COMMITTED
//	GROWING --(commit)--------------> COMMITTED
//	{GROWING, SHRINKING} --(abort)--> ABORTED
type TransactionState int32

const (
	GROWING TransactionState = iota
	SHRINKING
	COMMITTED
	ABORTED
)

func (s TransactionState) String() string {
	switch s {
	case GROWING:
		return "GROWING"
	case SHRINKING:
		return "SHRINKING"
	case COMMITTED:
		return "COMMITTED"
	case ABORTED:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// IsolationLevel governs which lock operations are legal for a transaction.
type IsolationLevel int32

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
)

// AbortReason records why the lock manager aborted a transaction.
type AbortReason int32

const (
	NoAbortReason AbortReason = iota
	Deadlock
	UpgradeConflict
	LockOnShrinking
	LockSharedOnReadUncommitted
)

func (r AbortReason) String() string {
	switch r {
	case Deadlock:
		return "DEADLOCK"
	case UpgradeConflict:
		return "UPGRADE_CONFLICT"
	case LockOnShrinking:
		return "LOCK_ON_SHRINKING"
	case LockSharedOnReadUncommitted:
		return "LOCKSHARED_ON_READ_UNCOMMITTED"
	default:
		return "NONE"
	}
}

// WType is the kind of a logged write, used only for rollback bookkeeping;
// the lock manager never interprets write sets.
type WType int32

const (
	Insert WType = iota
	Delete
	Update
)

// WriteRecord is one entry of a transaction's undo log.
type WriteRecord struct {
	RID   page.RID
	Type  WType
	TupleBefore []byte
	TableOID    uint32
}

// Transaction is the passive, per-transaction record mutated by the lock
// manager and by executors. Field access beyond state and abort reason is
// via the thread-safe lock sets, which the lock manager mutates directly;
// state/reason have their own small mutex because the background deadlock
// detector writes them from a different goroutine than the one the
// transaction is running on.
type Transaction struct {
	id        types.TxnID
	isolation IsolationLevel

	mu          sync.Mutex
	state       TransactionState
	abortReason AbortReason

	sharedLockSet    mapset.Set[page.RID]
	exclusiveLockSet mapset.Set[page.RID]

	// waitingOn records which RID queues this transaction is currently
	// blocked on, so the deadlock detector can target its broadcast
	// instead of waking every queue in the manager.
	waitMu    sync.Mutex
	waitingOn map[page.RID]struct{}

	indexWriteSet []WriteRecord
	tableWriteSet []WriteRecord
}

// NewTransaction creates a transaction in state GROWING.
func NewTransaction(id types.TxnID, isolation IsolationLevel) *Transaction {
	return &Transaction{
		id:               id,
		isolation:        isolation,
		state:            GROWING,
		sharedLockSet:    mapset.NewSet[page.RID](),
		exclusiveLockSet: mapset.NewSet[page.RID](),
		waitingOn:        make(map[page.RID]struct{}),
	}
}

func (t *Transaction) ID() types.TxnID { return t.id }

func (t *Transaction) Isolation() IsolationLevel { return t.isolation }

func (t *Transaction) State() TransactionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetState transitions the transaction's 2PL phase. Once ABORTED, the
// state never changes again.
func (t *Transaction) SetState(s TransactionState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == ABORTED {
		return
	}
	t.state = s
}

func (t *Transaction) IsAborted() bool { return t.State() == ABORTED }

// Abort moves the transaction to ABORTED and records why, unless it is
// already aborted (first reason wins).
func (t *Transaction) Abort(reason AbortReason) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == ABORTED {
		return
	}
	t.state = ABORTED
	t.abortReason = reason
}

func (t *Transaction) AbortReason() AbortReason {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.abortReason
}

func (t *Transaction) SharedLockSet() mapset.Set[page.RID] { return t.sharedLockSet }

func (t *Transaction) ExclusiveLockSet() mapset.Set[page.RID] { return t.exclusiveLockSet }

func (t *Transaction) IsSharedLocked(rid page.RID) bool { return t.sharedLockSet.Contains(rid) }

func (t *Transaction) IsExclusiveLocked(rid page.RID) bool {
	return t.exclusiveLockSet.Contains(rid)
}

// markWaiting/clearWaiting/waitSet back the targeted-broadcast optimization:
// record which queues a transaction waits on so the detector can notify
// exactly those, rather than every queue.
func (t *Transaction) markWaiting(rid page.RID) {
	t.waitMu.Lock()
	t.waitingOn[rid] = struct{}{}
	t.waitMu.Unlock()
}

func (t *Transaction) clearWaiting(rid page.RID) {
	t.waitMu.Lock()
	delete(t.waitingOn, rid)
	t.waitMu.Unlock()
}

func (t *Transaction) waitSet() []page.RID {
	t.waitMu.Lock()
	defer t.waitMu.Unlock()
	out := make([]page.RID, 0, len(t.waitingOn))
	for rid := range t.waitingOn {
		out = append(out, rid)
	}
	return out
}

func (t *Transaction) AddToWriteSet(tableWrite bool, rec WriteRecord) {
	if tableWrite {
		t.tableWriteSet = append(t.tableWriteSet, rec)
	} else {
		t.indexWriteSet = append(t.indexWriteSet, rec)
	}
}

func (t *Transaction) TableWriteSet() []WriteRecord { return t.tableWriteSet }

func (t *Transaction) IndexWriteSet() []WriteRecord { return t.indexWriteSet }
