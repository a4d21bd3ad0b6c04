package page

import "github.com/latchdb/latchdb/types"

// RID is the record identifier for a tuple: a page id paired with a slot
// number. It is opaque, hashable and comparable, and stable for the
// tuple's lifetime.
type RID struct {
	PageID types.PageID
	Slot   uint32
}

// NewRID builds a RID from its components.
func NewRID(pageID types.PageID, slot uint32) RID {
	return RID{PageID: pageID, Slot: slot}
}
