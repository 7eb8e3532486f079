package btree

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/grovedb/grove/core/storage/page"
)

// Remove deletes key's entry, rebalancing by redistribution where a
// sibling can spare an entry and by merge otherwise. Returns false on a
// miss. Merges propagate upward; a root left with a single child is
// collapsed, and a root leaf that empties resets the tree.
func (t *BTree[K]) Remove(key K) (bool, error) {
	ctx := &opContext{}
	defer ctx.releaseAll()

	hg, err := t.bpm.WritePage(t.headerPageID)
	if err != nil {
		return false, err
	}
	ctx.header = hg
	h, err := page.HeaderFrom(hg.Data())
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
	}
	if h.RootPageID() == page.InvalidPageID {
		return false, nil
	}

	id := h.RootPageID()
	var leaf *page.LeafPage[K]
descent:
	for {
		g, err := t.bpm.WritePage(id)
		if err != nil {
			return false, err
		}
		ctx.push(g)
		isRoot := ctx.topIsRoot()
		switch pt := page.TypeOf(g.Data()); pt {
		case page.TypeInternal:
			ip, err := page.InternalFrom(g.Data(), t.codec)
			if err != nil {
				return false, fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
			}
			// A root internal with one separator collapses if its children
			// merge, so it only counts as safe with two or more.
			safe := ip.Size() > ip.MinSize()
			if isRoot {
				safe = ip.Size() >= 2
			}
			if safe {
				ctx.releaseAncestors()
			}
			id = ip.ChildLookup(key)
		case page.TypeLeaf:
			lp, err := page.LeafFrom(g.Data(), t.codec)
			if err != nil {
				return false, fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
			}
			safe := lp.Size() > lp.MinSize()
			if isRoot {
				safe = lp.Size() > 1
			}
			if safe {
				ctx.releaseAncestors()
			}
			leaf = lp
			break descent
		default:
			return false, fmt.Errorf("%w: descent reached %s page", ErrTreeCorrupted, pt)
		}
	}

	if !leaf.Delete(key) {
		return false, nil
	}
	if err := t.rebalance(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// rebalance walks the held guard stack upward from the leaf, fixing each
// underflow until a node absorbs the change or the root is adjusted.
func (t *BTree[K]) rebalance(ctx *opContext) error {
	for {
		// No parent guard held means the descent proved this node safe: it
		// can lose one entry without underflowing (and if it is the root,
		// without emptying). Nothing left to fix.
		if ctx.header == nil && len(ctx.guards) == 1 {
			return nil
		}
		cur := ctx.top()
		switch pt := page.TypeOf(cur.Data()); pt {
		case page.TypeLeaf:
			lp, err := page.LeafFrom(cur.Data(), t.codec)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
			}
			if ctx.topIsRoot() {
				if lp.Size() > 0 {
					return nil
				}
				h, err := page.HeaderFrom(ctx.header.Data())
				if err != nil {
					return fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
				}
				h.SetRootPageID(page.InvalidPageID)
				id := cur.PageID()
				cur.Done()
				ctx.pop()
				t.logger.Debug("tree emptied", zap.Uint64("old_root_page_id", uint64(id)))
				return t.bpm.DeletePage(id)
			}
			if lp.Size() >= lp.MinSize() {
				return nil
			}
			merged, err := t.fixLeafUnderflow(ctx, lp)
			if err != nil {
				return err
			}
			if !merged {
				return nil
			}
		case page.TypeInternal:
			ip, err := page.InternalFrom(cur.Data(), t.codec)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
			}
			if ctx.topIsRoot() {
				if ip.Size() > 0 {
					return nil
				}
				// Single remaining child becomes the root; tree shrinks.
				newRoot := ip.ChildAt(0)
				h, err := page.HeaderFrom(ctx.header.Data())
				if err != nil {
					return fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
				}
				h.SetRootPageID(newRoot)
				id := cur.PageID()
				cur.Done()
				ctx.pop()
				t.logger.Debug("root collapsed",
					zap.Uint64("old_root_page_id", uint64(id)),
					zap.Uint64("new_root_page_id", uint64(newRoot)))
				return t.bpm.DeletePage(id)
			}
			if ip.Size() >= ip.MinSize() {
				return nil
			}
			merged, err := t.fixInternalUnderflow(ctx, ip)
			if err != nil {
				return err
			}
			if !merged {
				return nil
			}
		default:
			return fmt.Errorf("%w: rebalance reached %s page", ErrTreeCorrupted, pt)
		}
	}
}

// fixLeafUnderflow borrows from or merges with an adjacent sibling of the
// underflowing leaf on top of the guard stack. Returns true when a merge
// removed an entry from the parent, which may now underflow in turn; the
// leaf's guard has then been popped.
func (t *BTree[K]) fixLeafUnderflow(ctx *opContext, lp *page.LeafPage[K]) (bool, error) {
	cur := ctx.top()
	parentGuard := ctx.guards[len(ctx.guards)-2]
	parent, err := page.InternalFrom(parentGuard.Data(), t.codec)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
	}
	idx := parent.ChildIndex(cur.PageID())
	if idx < 0 {
		return false, fmt.Errorf("%w: parent page %d lost child %d",
			ErrTreeCorrupted, parentGuard.PageID(), cur.PageID())
	}

	// The parent write guard is held, so sibling guards cannot race with
	// any other path into these pages.
	if idx > 0 {
		sg, err := t.bpm.WritePage(parent.ChildAt(idx - 1))
		if err != nil {
			return false, err
		}
		left, err := page.LeafFrom(sg.Data(), t.codec)
		if err != nil {
			sg.Done()
			return false, fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
		}
		if left.Size() > left.MinSize() {
			left.MoveLastToFrontOf(lp)
			parent.SetKeyAt(idx, lp.KeyAt(0))
			sg.Done()
			return false, nil
		}
		// Merge into the left sibling.
		lp.MoveAllTo(left)
		left.SetNextPageID(lp.NextPageID())
		parent.RemoveAt(idx)
		sg.Done()
		id := cur.PageID()
		cur.Done()
		ctx.pop()
		if err := t.bpm.DeletePage(id); err != nil {
			return true, err
		}
		return true, nil
	}

	// Leftmost child: work with the right sibling instead.
	sg, err := t.bpm.WritePage(parent.ChildAt(1))
	if err != nil {
		return false, err
	}
	right, err := page.LeafFrom(sg.Data(), t.codec)
	if err != nil {
		sg.Done()
		return false, fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
	}
	if right.Size() > right.MinSize() {
		right.MoveFirstToEndOf(lp)
		parent.SetKeyAt(1, right.KeyAt(0))
		sg.Done()
		return false, nil
	}
	// Absorb the right sibling.
	right.MoveAllTo(lp)
	lp.SetNextPageID(right.NextPageID())
	parent.RemoveAt(1)
	id := sg.PageID()
	sg.Done()
	cur.Done()
	ctx.pop()
	if err := t.bpm.DeletePage(id); err != nil {
		return true, err
	}
	return true, nil
}

// fixInternalUnderflow is the internal-page counterpart: separators rotate
// through the parent on a borrow and glue the halves on a merge.
func (t *BTree[K]) fixInternalUnderflow(ctx *opContext, ip *page.InternalPage[K]) (bool, error) {
	cur := ctx.top()
	parentGuard := ctx.guards[len(ctx.guards)-2]
	parent, err := page.InternalFrom(parentGuard.Data(), t.codec)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
	}
	idx := parent.ChildIndex(cur.PageID())
	if idx < 0 {
		return false, fmt.Errorf("%w: parent page %d lost child %d",
			ErrTreeCorrupted, parentGuard.PageID(), cur.PageID())
	}

	if idx > 0 {
		sg, err := t.bpm.WritePage(parent.ChildAt(idx - 1))
		if err != nil {
			return false, err
		}
		left, err := page.InternalFrom(sg.Data(), t.codec)
		if err != nil {
			sg.Done()
			return false, fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
		}
		if left.Size() > left.MinSize() {
			newSep := left.MoveLastToFrontOf(ip, parent.KeyAt(idx))
			parent.SetKeyAt(idx, newSep)
			sg.Done()
			return false, nil
		}
		ip.MoveAllTo(left, parent.KeyAt(idx))
		parent.RemoveAt(idx)
		sg.Done()
		id := cur.PageID()
		cur.Done()
		ctx.pop()
		if err := t.bpm.DeletePage(id); err != nil {
			return true, err
		}
		return true, nil
	}

	sg, err := t.bpm.WritePage(parent.ChildAt(1))
	if err != nil {
		return false, err
	}
	right, err := page.InternalFrom(sg.Data(), t.codec)
	if err != nil {
		sg.Done()
		return false, fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
	}
	if right.Size() > right.MinSize() {
		newSep := right.MoveFirstToEndOf(ip, parent.KeyAt(1))
		parent.SetKeyAt(1, newSep)
		sg.Done()
		return false, nil
	}
	right.MoveAllTo(ip, parent.KeyAt(1))
	parent.RemoveAt(1)
	id := sg.PageID()
	sg.Done()
	cur.Done()
	ctx.pop()
	if err := t.bpm.DeletePage(id); err != nil {
		return true, err
	}
	return true, nil
}
