package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latchdb/latchdb/storage/page"
)

func TestNewTransactionStartsGrowing(t *testing.T) {
	txn := NewTransaction(1, RepeatableRead)
	assert.Equal(t, GROWING, txn.State())
	assert.False(t, txn.IsAborted())
}

func TestAbortFirstReasonWins(t *testing.T) {
	txn := NewTransaction(1, RepeatableRead)
	txn.Abort(Deadlock)
	txn.Abort(UpgradeConflict)
	assert.Equal(t, Deadlock, txn.AbortReason())
}

func TestSetStateIsNoopOnceAborted(t *testing.T) {
	txn := NewTransaction(1, RepeatableRead)
	txn.Abort(Deadlock)
	txn.SetState(GROWING)
	assert.Equal(t, ABORTED, txn.State())
}

func TestLockSetMembership(t *testing.T) {
	txn := NewTransaction(1, RepeatableRead)
	rid := page.NewRID(5, 2)
	assert.False(t, txn.IsSharedLocked(rid))
	txn.SharedLockSet().Add(rid)
	assert.True(t, txn.IsSharedLocked(rid))
}

func TestWriteSetsAreSeparateByTarget(t *testing.T) {
	txn := NewTransaction(1, RepeatableRead)
	rid := page.NewRID(1, 0)
	txn.AddToWriteSet(true, WriteRecord{RID: rid, Type: Insert, TableOID: 7})
	txn.AddToWriteSet(false, WriteRecord{RID: rid, Type: Update, TableOID: 7})
	assert.Len(t, txn.TableWriteSet(), 1)
	assert.Len(t, txn.IndexWriteSet(), 1)
}
