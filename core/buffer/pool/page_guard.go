package pool

import "github.com/grovedb/grove/core/storage/page"

// guard is the shared half of Read/WritePageGuard: a pinned frame plus the
// page latch held on it. Done releases the latch first and only then
// unpins, so a frame is never evictable while latched.
type guard struct {
	m        *BufferPoolManager
	fr       *frame
	pageID   page.PageID
	released bool
}

// PageID returns the id of the guarded page.
func (g *guard) PageID() page.PageID { return g.pageID }

// ReadPageGuard is a shared, read-only view of a pinned page. Multiple
// readers may hold guards on the same page concurrently.
type ReadPageGuard struct {
	guard
}

// Data exposes the page bytes. Callers must not mutate them.
func (g *ReadPageGuard) Data() []byte { return g.fr.data }

// Done releases the guard. Idempotent.
func (g *ReadPageGuard) Done() {
	if g.released {
		return
	}
	g.released = true
	g.fr.latch.RUnlock()
	g.m.unpin(g.fr, false)
}

// WritePageGuard is an exclusive, mutable view of a pinned page. Dropping
// it marks the frame dirty.
type WritePageGuard struct {
	guard
}

// Data exposes the page bytes for mutation.
func (g *WritePageGuard) Data() []byte { return g.fr.data }

// Done releases the guard and marks the page dirty. Idempotent.
func (g *WritePageGuard) Done() {
	if g.released {
		return
	}
	g.released = true
	g.fr.latch.Unlock()
	g.m.unpin(g.fr, true)
}
