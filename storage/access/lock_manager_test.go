package access

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/latchdb/latchdb/common"
	"github.com/latchdb/latchdb/storage/page"
)

func newTestLockManager(t *testing.T) *LockManager {
	t.Helper()
	lm := NewLockManager(common.Config{EnableCycleDetection: false}, zap.NewNop())
	t.Cleanup(lm.Close)
	return lm
}

func TestSimpleSharedLockGrantsImmediately(t *testing.T) {
	lm := newTestLockManager(t)
	txn := NewTransaction(1, RepeatableRead)
	lm.RegisterTransaction(txn)
	rid := page.NewRID(10, 0)

	assert.True(t, lm.LockShared(txn, rid))
	assert.True(t, txn.IsSharedLocked(rid))
	assert.Equal(t, GROWING, txn.State())
}

func TestTwoSharedLocksAreCompatible(t *testing.T) {
	lm := newTestLockManager(t)
	t1 := NewTransaction(1, RepeatableRead)
	t2 := NewTransaction(2, RepeatableRead)
	lm.RegisterTransaction(t1)
	lm.RegisterTransaction(t2)
	rid := page.NewRID(10, 0)

	assert.True(t, lm.LockShared(t1, rid))
	assert.True(t, lm.LockShared(t2, rid))
}

func TestExclusiveBlocksBehindGrantedShared(t *testing.T) {
	lm := newTestLockManager(t)
	t1 := NewTransaction(1, RepeatableRead)
	t2 := NewTransaction(2, RepeatableRead)
	lm.RegisterTransaction(t1)
	lm.RegisterTransaction(t2)
	rid := page.NewRID(10, 0)

	require.True(t, lm.LockShared(t1, rid))

	done := make(chan bool, 1)
	go func() { done <- lm.LockExclusive(t2, rid) }()

	select {
	case <-done:
		t.Fatal("exclusive lock must not be granted while a shared lock is held")
	case <-time.After(50 * time.Millisecond):
	}

	require.True(t, lm.Unlock(t1, rid))

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("exclusive lock should have been granted after shared lock released")
	}
}

func TestLockOnShrinkingAborts(t *testing.T) {
	lm := newTestLockManager(t)
	txn := NewTransaction(1, RepeatableRead)
	lm.RegisterTransaction(txn)
	ridA := page.NewRID(10, 0)
	ridB := page.NewRID(10, 1)

	require.True(t, lm.LockExclusive(txn, ridA))
	require.True(t, lm.Unlock(txn, ridA))
	assert.Equal(t, SHRINKING, txn.State())

	assert.False(t, lm.LockShared(txn, ridB))
	assert.True(t, txn.IsAborted())
	assert.Equal(t, LockOnShrinking, txn.AbortReason())
}

func TestReadCommittedAllowsSharedDuringShrinking(t *testing.T) {
	lm := newTestLockManager(t)
	txn := NewTransaction(1, ReadCommitted)
	lm.RegisterTransaction(txn)
	ridA := page.NewRID(10, 0)
	ridB := page.NewRID(10, 1)

	require.True(t, lm.LockExclusive(txn, ridA))
	require.True(t, lm.Unlock(txn, ridA))
	assert.Equal(t, SHRINKING, txn.State())

	assert.True(t, lm.LockShared(txn, ridB))
	assert.False(t, txn.IsAborted())
}

func TestReadUncommittedForbidsSharedLocks(t *testing.T) {
	lm := newTestLockManager(t)
	txn := NewTransaction(1, ReadUncommitted)
	lm.RegisterTransaction(txn)
	rid := page.NewRID(10, 0)

	assert.False(t, lm.LockShared(txn, rid))
	assert.True(t, txn.IsAborted())
	assert.Equal(t, LockSharedOnReadUncommitted, txn.AbortReason())
}

func TestLockUpgradeMovesSharedToExclusive(t *testing.T) {
	lm := newTestLockManager(t)
	txn := NewTransaction(1, RepeatableRead)
	lm.RegisterTransaction(txn)
	rid := page.NewRID(10, 0)

	require.True(t, lm.LockShared(txn, rid))
	assert.True(t, lm.LockUpgrade(txn, rid))
	assert.False(t, txn.IsSharedLocked(rid))
	assert.True(t, txn.IsExclusiveLocked(rid))
}

func TestConcurrentUpgradeConflictAborts(t *testing.T) {
	lm := newTestLockManager(t)
	t1 := NewTransaction(1, RepeatableRead)
	t2 := NewTransaction(2, RepeatableRead)
	lm.RegisterTransaction(t1)
	lm.RegisterTransaction(t2)
	rid := page.NewRID(10, 0)

	require.True(t, lm.LockShared(t1, rid))
	require.True(t, lm.LockShared(t2, rid))

	done := make(chan bool, 1)
	go func() { done <- lm.LockUpgrade(t1, rid) }()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, lm.LockUpgrade(t2, rid), "a second concurrent upgrader must abort with UpgradeConflict")
	assert.Equal(t, UpgradeConflict, t2.AbortReason())

	require.True(t, lm.Unlock(t2, rid))
	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("first upgrader should have been granted once the competing shared lock released")
	}
}

func TestUnlockOfUnheldRIDIsNoop(t *testing.T) {
	lm := newTestLockManager(t)
	txn := NewTransaction(1, RepeatableRead)
	lm.RegisterTransaction(txn)
	assert.True(t, lm.Unlock(txn, page.NewRID(1, 0)))
}
