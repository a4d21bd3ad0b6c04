package page

import (
	"github.com/latchdb/latchdb/common"
	"github.com/latchdb/latchdb/types"
)

// Page is one frame slot: a fixed-size data buffer plus the book-keeping
// the buffer pool needs to decide residency.
type Page struct {
	id       types.PageID
	pinCount int32
	isDirty  bool
	data     [common.PageSize]byte

	// latch guards reads/writes of data. It is orthogonal to the buffer
	// pool's own latch, which only protects the page table / free list /
	// replacer / allocator, never page contents.
	latch common.ReaderWriterLatch
}

// New returns a page slot initialized to the invalid page id, ready to be
// installed by the buffer pool.
func New() *Page {
	return &Page{id: types.InvalidPageID, latch: common.NewRWLatch()}
}

func (p *Page) ID() types.PageID { return p.id }

func (p *Page) PinCount() int32 { return p.pinCount }

func (p *Page) IsDirty() bool { return p.isDirty }

// Data returns the raw backing buffer. Callers must hold RLatch/WLatch
// around any access.
func (p *Page) Data() *[common.PageSize]byte { return &p.data }

func (p *Page) RLatch()   { p.latch.RLock() }
func (p *Page) RUnlatch() { p.latch.RUnlock() }
func (p *Page) WLatch()   { p.latch.WLock() }
func (p *Page) WUnlatch() { p.latch.WUnlock() }

// Reset reinstalls this frame for a new resident page. Called by the
// buffer pool under its own latch, never concurrently with pin/unpin.
func (p *Page) Reset(id types.PageID) {
	p.id = id
	p.pinCount = 0
	p.isDirty = false
	p.data = [common.PageSize]byte{}
}

func (p *Page) IncPin() { p.pinCount++ }

func (p *Page) DecPin() {
	if p.pinCount > 0 {
		p.pinCount--
	}
}

func (p *Page) SetDirty(dirty bool) {
	if dirty {
		p.isDirty = true
	}
}

// Free resets the frame to an unused state, dropping any page identity.
func (p *Page) Free() {
	p.id = types.InvalidPageID
	p.pinCount = 0
	p.isDirty = false
}
