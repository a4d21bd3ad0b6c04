package disk

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/latchdb/latchdb/common"
	"github.com/latchdb/latchdb/types"
)

// FileDiskManager is the file-backed DiskManager implementation. It does
// not keep a write-ahead log of its own; a log manager is an optional
// external collaborator this package does not implement.
type FileDiskManager struct {
	mu         sync.Mutex
	db         *os.File
	fileName   string
	nextPageID types.PageID
	numWrites  uint64
	size       int64
}

// NewFileDiskManager opens (creating if necessary) dbFilename for use as
// page storage.
func NewFileDiskManager(dbFilename string) (*FileDiskManager, error) {
	file, err := os.OpenFile(dbFilename, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	fileSize := info.Size()
	nPages := fileSize / common.PageSize

	return &FileDiskManager{
		db:         file,
		fileName:   dbFilename,
		nextPageID: types.PageID(nPages),
		size:       fileSize,
	}, nil
}

func (d *FileDiskManager) ShutDown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.db.Close()
}

func (d *FileDiskManager) WritePage(id types.PageID, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	offset := int64(id) * common.PageSize
	if _, err := d.db.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	n, err := d.db.Write(data)
	if err != nil {
		return err
	}
	if n != common.PageSize {
		return errors.New("disk: short write")
	}
	if offset+int64(n) > d.size {
		d.size = offset + int64(n)
	}
	d.numWrites++
	return d.db.Sync()
}

func (d *FileDiskManager) ReadPage(id types.PageID, out []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	offset := int64(id) * common.PageSize
	if offset >= d.size {
		for i := range out {
			out[i] = 0
		}
		return nil
	}
	if _, err := d.db.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	n, err := d.db.Read(out)
	if err != nil && err != io.EOF {
		return err
	}
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	return nil
}

func (d *FileDiskManager) AllocatePage() types.PageID {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextPageID
	d.nextPageID++
	return id
}

// DeallocatePage is informational bookkeeping only and does nothing here;
// the buffer pool allocates page ids itself and never reuses them.
func (d *FileDiskManager) DeallocatePage(types.PageID) {}

func (d *FileDiskManager) GetNumWrites() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.numWrites
}

func (d *FileDiskManager) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}
