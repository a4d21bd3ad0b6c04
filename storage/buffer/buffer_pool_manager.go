package buffer

import (
	deadlock "github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"github.com/latchdb/latchdb/storage/disk"
	"github.com/latchdb/latchdb/storage/page"
	"github.com/latchdb/latchdb/types"
)

// BufferPoolManager maps page ids to frame slots and coordinates the free
// list, the replacer and the disk manager to satisfy new/fetch/unpin/flush/
// delete requests. All public operations are atomic with respect to a
// single pool-wide latch; none of them suspend the caller except for the
// underlying disk I/O.
type BufferPoolManager struct {
	mu deadlock.Mutex

	disk     disk.DiskManager
	frames   []*page.Page
	replacer *LRUReplacer
	freeList []types.FrameID
	pageTbl  map[types.PageID]types.FrameID

	nextPageID    types.PageID
	numInstances  uint32
	instanceIndex uint32

	log *zap.Logger
}

// New returns an empty buffer pool of poolSize frames, backed by dm.
// numInstances/instanceIndex stripe page-id allocation across a family of
// cooperating pool instances; pass numInstances=1, instanceIndex=0 for a
// standalone pool.
func New(poolSize uint32, dm disk.DiskManager, numInstances, instanceIndex uint32, log *zap.Logger) *BufferPoolManager {
	if numInstances == 0 {
		numInstances = 1
	}
	if log == nil {
		log = zap.NewNop()
	}

	frames := make([]*page.Page, poolSize)
	freeList := make([]types.FrameID, poolSize)
	for i := uint32(0); i < poolSize; i++ {
		frames[i] = page.New()
		freeList[i] = types.FrameID(i)
	}

	return &BufferPoolManager{
		disk:          dm,
		frames:        frames,
		replacer:      NewLRUReplacer(poolSize),
		freeList:      freeList,
		pageTbl:       make(map[types.PageID]types.FrameID),
		nextPageID:    types.PageID(instanceIndex),
		numInstances:  numInstances,
		instanceIndex: instanceIndex,
		log:           log,
	}
}

// allocatePage returns the next page id owned by this instance and advances
// the allocator: ids are congruent to instanceIndex modulo numInstances, so
// cooperating instances never hand out the same id.
func (b *BufferPoolManager) allocatePage() types.PageID {
	id := b.nextPageID
	b.nextPageID += types.PageID(b.numInstances)
	return id
}

// findReplace picks a frame to (re)use: free list first, else the
// replacer's victim. On a replacer victim, a dirty resident page is
// flushed and its page-table entry erased before the caller installs the
// new mapping.
func (b *BufferPoolManager) findReplace() (types.FrameID, bool) {
	if len(b.freeList) > 0 {
		frame := b.freeList[0]
		b.freeList = b.freeList[1:]
		return frame, true
	}

	frame, ok := b.replacer.Victim()
	if !ok {
		return 0, false
	}

	victim := b.frames[frame]
	if victim.ID().IsValid() {
		if victim.IsDirty() {
			_ = b.disk.WritePage(victim.ID(), victim.Data()[:])
		}
		delete(b.pageTbl, victim.ID())
	}
	return frame, true
}

// NewPage allocates a fresh page id and pins it into a frame. Returns
// (nil, INVALID) if every frame is pinned.
func (b *BufferPoolManager) NewPage() (*page.Page, types.PageID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	frame, ok := b.findReplace()
	if !ok {
		return nil, types.InvalidPageID
	}

	id := b.allocatePage()
	pg := b.frames[frame]
	pg.Reset(id)
	pg.IncPin()
	b.pageTbl[id] = frame
	b.replacer.Pin(frame)

	b.log.Debug("new page", zap.Int32("page_id", int32(id)), zap.Int32("frame_id", int32(frame)))
	return pg, id
}

// FetchPage returns the requested page, pinned, loading it from disk if
// necessary. Returns nil if the page is not resident and no frame can be
// freed for it.
func (b *BufferPoolManager) FetchPage(id types.PageID) *page.Page {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frame, ok := b.pageTbl[id]; ok {
		pg := b.frames[frame]
		pg.IncPin()
		b.replacer.Pin(frame)
		return pg
	}

	frame, ok := b.findReplace()
	if !ok {
		return nil
	}

	data := make([]byte, len(b.frames[frame].Data()))
	if err := b.disk.ReadPage(id, data); err != nil {
		// Put the frame back rather than leaking it.
		b.freeList = append(b.freeList, frame)
		b.log.Error("fetch page: disk read failed", zap.Int32("page_id", int32(id)), zap.Error(err))
		return nil
	}

	pg := b.frames[frame]
	pg.Reset(id)
	copy(pg.Data()[:], data)
	pg.IncPin()
	b.pageTbl[id] = frame
	b.replacer.Pin(frame)
	return pg
}

// UnpinPage decrements a resident page's pin count, marking it dirty if
// requested (the dirty bit is only ever set here, never cleared). Once the
// count reaches zero the frame becomes eligible for eviction.
func (b *BufferPoolManager) UnpinPage(id types.PageID, isDirty bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frame, ok := b.pageTbl[id]
	if !ok {
		return false
	}
	pg := b.frames[frame]
	if pg.PinCount() == 0 {
		return false
	}
	if isDirty {
		pg.SetDirty(true)
	}
	pg.DecPin()
	if pg.PinCount() == 0 {
		b.replacer.Unpin(frame)
	}
	return true
}

// FlushPage unconditionally writes a resident page's data to disk. The
// dirty bit is a hint and need not be cleared: this manager tracks page
// residency, not a write-ahead log, so it has no durability barrier to
// enforce beyond getting bytes to disk.
func (b *BufferPoolManager) FlushPage(id types.PageID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frame, ok := b.pageTbl[id]
	if !ok || !id.IsValid() {
		return false
	}
	pg := b.frames[frame]
	return b.disk.WritePage(id, pg.Data()[:]) == nil
}

// FlushAllPages writes every resident page's data to disk.
func (b *BufferPoolManager) FlushAllPages() {
	b.mu.Lock()
	ids := make([]types.PageID, 0, len(b.pageTbl))
	for id := range b.pageTbl {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	for _, id := range ids {
		b.FlushPage(id)
	}
}

// DeletePage removes a page from the cache, flushing it first if dirty,
// and returns its frame to the free list. Returns false if the page is
// resident and still pinned; absence is not an error.
func (b *BufferPoolManager) DeletePage(id types.PageID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frame, ok := b.pageTbl[id]
	if !ok {
		return true
	}

	pg := b.frames[frame]
	if pg.PinCount() > 0 {
		return false
	}

	if pg.IsDirty() {
		_ = b.disk.WritePage(id, pg.Data()[:])
	}
	b.disk.DeallocatePage(id)
	delete(b.pageTbl, id)
	b.replacer.Pin(frame) // ensure it isn't sitting in the replacer
	pg.Free()
	b.freeList = append(b.freeList, frame)
	return true
}

// PoolSize returns the number of frames in this pool.
func (b *BufferPoolManager) PoolSize() int { return len(b.frames) }
