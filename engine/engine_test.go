package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latchdb/latchdb/common"
	"github.com/latchdb/latchdb/storage/access"
	"github.com/latchdb/latchdb/storage/disk"
	"github.com/latchdb/latchdb/storage/page"
)

func TestEngineLifecycle(t *testing.T) {
	dm := disk.NewVirtualDiskManager()
	e := New(common.Config{PoolSize: 4}, dm, nil)
	defer e.Close()

	assert.NotEmpty(t, e.ID().String())

	txn := e.Transactions().Begin(access.RepeatableRead)
	pg, id := e.BufferPool().NewPage()
	require.NotNil(t, pg)

	rid := page.NewRID(id, 0)
	require.True(t, e.Locks().LockExclusive(txn, rid))
	e.Transactions().Commit(txn)

	stats := e.Stats()
	assert.Equal(t, 4, stats.PoolSize)
}
