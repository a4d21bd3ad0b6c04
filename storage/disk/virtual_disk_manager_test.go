package disk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latchdb/latchdb/common"
	"github.com/latchdb/latchdb/types"
)

func TestVirtualDiskManagerRoundTrip(t *testing.T) {
	dm := NewVirtualDiskManager()

	id := dm.AllocatePage()
	want := make([]byte, common.PageSize)
	for i := range want {
		want[i] = byte(i % 251)
	}

	assert.NoError(t, dm.WritePage(id, want))

	got := make([]byte, common.PageSize)
	assert.NoError(t, dm.ReadPage(id, got))
	assert.Equal(t, want, got)
	assert.EqualValues(t, 1, dm.GetNumWrites())
}

func TestVirtualDiskManagerReadPastEOFZeroFills(t *testing.T) {
	dm := NewVirtualDiskManager()
	out := make([]byte, common.PageSize)
	for i := range out {
		out[i] = 0xFF
	}
	assert.NoError(t, dm.ReadPage(types.PageID(9), out))
	for _, b := range out {
		assert.EqualValues(t, 0, b)
	}
}

func TestVirtualDiskManagerAllocatePageIsSequential(t *testing.T) {
	dm := NewVirtualDiskManager()
	a := dm.AllocatePage()
	b := dm.AllocatePage()
	assert.Equal(t, a+1, b)
}
