// Package disk provides the Disk Manager contract consumed by the buffer
// pool, plus two implementations: a real file-backed one and an in-memory
// one for tests.
package disk

import "github.com/latchdb/latchdb/types"

// DiskManager is the external collaborator the buffer pool reads pages from
// and writes pages to. The buffer pool manager owns page-id allocation
// itself so it can stripe ids across cooperating pool instances;
// AllocatePage/DeallocatePage here are purely informational bookkeeping at
// the disk layer.
type DiskManager interface {
	ReadPage(id types.PageID, out []byte) error
	WritePage(id types.PageID, data []byte) error
	AllocatePage() types.PageID
	DeallocatePage(id types.PageID)
	GetNumWrites() uint64
	ShutDown()
	Size() int64
}
