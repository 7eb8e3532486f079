package btree

import (
	"fmt"

	"github.com/grovedb/grove/core/buffer/pool"
	"github.com/grovedb/grove/core/storage/page"
)

// Iterator walks leaf entries in ascending key order, hopping sibling
// links between leaves. It holds a read guard on the current leaf, so the
// caller must Close it (or exhaust it) before taking write operations that
// could need the same page, and must not run it concurrently with inserts
// or removals: the sibling hop acquires pages left to right while a merge
// latches right to left. Key and RID are only valid while !IsEnd().
type Iterator[K comparable] struct {
	t     *BTree[K]
	guard *pool.ReadPageGuard
	leaf  *page.LeafPage[K]
	index int
}

// Begin positions an iterator at the smallest key. An empty tree yields an
// exhausted iterator.
func (t *BTree[K]) Begin() (*Iterator[K], error) {
	return t.beginAt(func(ip *page.InternalPage[K]) page.PageID {
		return ip.ChildAt(0)
	}, func(lp *page.LeafPage[K]) int {
		return 0
	})
}

// BeginAt positions an iterator at the first key >= key.
func (t *BTree[K]) BeginAt(key K) (*Iterator[K], error) {
	return t.beginAt(func(ip *page.InternalPage[K]) page.PageID {
		return ip.ChildLookup(key)
	}, func(lp *page.LeafPage[K]) int {
		return lp.LowerBound(key)
	})
}

func (t *BTree[K]) beginAt(pick func(*page.InternalPage[K]) page.PageID, start func(*page.LeafPage[K]) int) (*Iterator[K], error) {
	hg, err := t.bpm.ReadPage(t.headerPageID)
	if err != nil {
		return nil, err
	}
	h, err := page.HeaderFrom(hg.Data())
	if err != nil {
		hg.Done()
		return nil, fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
	}
	root := h.RootPageID()
	if root == page.InvalidPageID {
		hg.Done()
		return &Iterator[K]{t: t}, nil
	}
	g, err := t.bpm.ReadPage(root)
	hg.Done()
	if err != nil {
		return nil, err
	}

	for {
		switch pt := page.TypeOf(g.Data()); pt {
		case page.TypeInternal:
			ip, err := page.InternalFrom(g.Data(), t.codec)
			if err != nil {
				g.Done()
				return nil, fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
			}
			ng, err := t.bpm.ReadPage(pick(ip))
			g.Done()
			if err != nil {
				return nil, err
			}
			g = ng
		case page.TypeLeaf:
			lp, err := page.LeafFrom(g.Data(), t.codec)
			if err != nil {
				g.Done()
				return nil, fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
			}
			it := &Iterator[K]{t: t, guard: g, leaf: lp, index: start(lp)}
			// A lower bound past the leaf's last entry belongs to the next
			// leaf over.
			if it.index >= lp.Size() {
				if err := it.advanceLeaf(); err != nil {
					return nil, err
				}
			}
			return it, nil
		default:
			g.Done()
			return nil, fmt.Errorf("%w: descent reached %s page", ErrTreeCorrupted, pt)
		}
	}
}

// IsEnd reports whether the iterator is exhausted.
func (it *Iterator[K]) IsEnd() bool { return it.guard == nil }

// Key returns the key at the current position.
func (it *Iterator[K]) Key() K { return it.leaf.KeyAt(it.index) }

// RID returns the RID at the current position.
func (it *Iterator[K]) RID() page.RID { return it.leaf.RIDAt(it.index) }

// Next advances one entry, following the sibling link off the end of a
// leaf. Calling Next on an exhausted iterator is a no-op.
func (it *Iterator[K]) Next() error {
	if it.guard == nil {
		return nil
	}
	it.index++
	if it.index < it.leaf.Size() {
		return nil
	}
	return it.advanceLeaf()
}

// advanceLeaf swaps the current leaf guard for one on the next sibling,
// skipping any empty leaves. At the rightmost leaf it leaves the iterator
// exhausted.
func (it *Iterator[K]) advanceLeaf() error {
	for {
		next := it.leaf.NextPageID()
		it.guard.Done()
		it.guard, it.leaf = nil, nil
		if next == page.InvalidPageID {
			return nil
		}
		g, err := it.t.bpm.ReadPage(next)
		if err != nil {
			return err
		}
		lp, err := page.LeafFrom(g.Data(), it.t.codec)
		if err != nil {
			g.Done()
			return fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
		}
		it.guard, it.leaf, it.index = g, lp, 0
		if lp.Size() > 0 {
			return nil
		}
	}
}

// Close releases the iterator's leaf guard. Safe to call more than once.
func (it *Iterator[K]) Close() {
	if it.guard != nil {
		it.guard.Done()
		it.guard, it.leaf = nil, nil
	}
}
