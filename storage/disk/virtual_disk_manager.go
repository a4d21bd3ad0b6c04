package disk

import (
	"sync"

	"github.com/dsnet/golib/memfile"
	"github.com/latchdb/latchdb/common"
	"github.com/latchdb/latchdb/types"
)

// VirtualDiskManager is an in-memory DiskManager backed by memfile, used in
// tests and for ephemeral engines that never touch a real file.
type VirtualDiskManager struct {
	mu         sync.Mutex
	db         *memfile.File
	nextPageID types.PageID
	numWrites  uint64
	size       int64
}

// NewVirtualDiskManager returns an empty in-memory disk.
func NewVirtualDiskManager() *VirtualDiskManager {
	return &VirtualDiskManager{db: memfile.New(nil)}
}

func (d *VirtualDiskManager) ShutDown() {}

func (d *VirtualDiskManager) WritePage(id types.PageID, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	offset := int64(id) * common.PageSize
	if _, err := d.db.WriteAt(data, offset); err != nil {
		return err
	}
	if offset+int64(len(data)) > d.size {
		d.size = offset + int64(len(data))
	}
	d.numWrites++
	return nil
}

func (d *VirtualDiskManager) ReadPage(id types.PageID, out []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	offset := int64(id) * common.PageSize
	if offset >= d.size {
		for i := range out {
			out[i] = 0
		}
		return nil
	}
	n, _ := d.db.ReadAt(out, offset)
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	return nil
}

func (d *VirtualDiskManager) AllocatePage() types.PageID {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextPageID
	d.nextPageID++
	return id
}

func (d *VirtualDiskManager) DeallocatePage(types.PageID) {}

func (d *VirtualDiskManager) GetNumWrites() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.numWrites
}

func (d *VirtualDiskManager) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}
