package btree

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/grovedb/grove/core/buffer/pool"
	"github.com/grovedb/grove/core/storage/page"
)

// Insert adds (key, rid), splitting overflowing nodes up to and including
// the root. Returns false when the key already exists; the tree does not
// overwrite. The descent holds write guards only on the suffix of the path
// that might still split.
func (t *BTree[K]) Insert(key K, rid page.RID) (bool, error) {
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

	root := h.RootPageID()
	if root == page.InvalidPageID {
		return t.startNewTree(h, key, rid)
	}

	id := root
	var leaf *page.LeafPage[K]
descent:
	for {
		g, err := t.bpm.WritePage(id)
		if err != nil {
			return false, err
		}
		ctx.push(g)
		switch pt := page.TypeOf(g.Data()); pt {
		case page.TypeInternal:
			ip, err := page.InternalFrom(g.Data(), t.codec)
			if err != nil {
				return false, fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
			}
			if ip.Size() < ip.MaxSize() {
				ctx.releaseAncestors()
			}
			id = ip.ChildLookup(key)
		case page.TypeLeaf:
			lp, err := page.LeafFrom(g.Data(), t.codec)
			if err != nil {
				return false, fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
			}
			if lp.Size() < lp.MaxSize() {
				ctx.releaseAncestors()
			}
			leaf = lp
			break descent
		default:
			return false, fmt.Errorf("%w: descent reached %s page", ErrTreeCorrupted, pt)
		}
	}

	if _, dup := leaf.Lookup(key); dup {
		return false, nil
	}
	if leaf.Size() < leaf.MaxSize() {
		leaf.Insert(key, rid)
		return true, nil
	}
	if err := t.insertAndSplit(ctx, leaf, key, rid); err != nil {
		return false, err
	}
	return true, nil
}

// startNewTree allocates the first leaf and makes it the root.
func (t *BTree[K]) startNewTree(h *page.HeaderPage, key K, rid page.RID) (bool, error) {
	id, err := t.bpm.NewPage()
	if err != nil {
		return false, err
	}
	g, err := t.bpm.WritePage(id)
	if err != nil {
		_ = t.bpm.DeletePage(id)
		return false, err
	}
	lp, err := page.InitLeaf(g.Data(), t.codec, t.leafMaxSize)
	if err != nil {
		g.Done()
		_ = t.bpm.DeletePage(id)
		return false, err
	}
	lp.Insert(key, rid)
	h.SetRootPageID(id)
	g.Done()
	t.logger.Debug("started new tree", zap.Uint64("root_page_id", uint64(id)))
	return true, nil
}

// insertAndSplit handles an insert into a full leaf: it pre-allocates and
// guards every page the split chain will need, and only then mutates, so
// an allocation failure leaves the tree untouched.
func (t *BTree[K]) insertAndSplit(ctx *opContext, leaf *page.LeafPage[K], key K, rid page.RID) error {
	// The held guards are exactly the suffix of the path that may split:
	// count how many nodes actually will. If the whole suffix is full the
	// header guard is still held and the root splits too.
	splits := 1
	i := len(ctx.guards) - 2
	for ; i >= 0; i-- {
		ip, err := page.InternalFrom(ctx.guards[i].Data(), t.codec)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
		}
		if ip.Size() < ip.MaxSize() {
			break
		}
		splits++
	}
	newRoot := i < 0
	total := splits
	if newRoot {
		total++
	}

	type allocated struct {
		id page.PageID
		g  *pool.WritePageGuard
	}
	pages := make([]allocated, 0, total)
	abort := func(cause error) error {
		for _, a := range pages {
			a.g.Done()
			_ = t.bpm.DeletePage(a.id)
		}
		return fmt.Errorf("%w: %v", ErrSplitAborted, cause)
	}
	for j := 0; j < total; j++ {
		id, err := t.bpm.NewPage()
		if err != nil {
			return abort(err)
		}
		g, err := t.bpm.WritePage(id)
		if err != nil {
			_ = t.bpm.DeletePage(id)
			return abort(err)
		}
		pages = append(pages, allocated{id: id, g: g})
	}
	defer func() {
		for _, a := range pages {
			a.g.Done()
		}
	}()

	leaf.Insert(key, rid)

	right, err := page.InitLeaf(pages[0].g.Data(), t.codec, t.leafMaxSize)
	if err != nil {
		return err
	}
	leaf.MoveHalfTo(right)
	right.SetNextPageID(leaf.NextPageID())
	leaf.SetNextPageID(pages[0].id)

	sepKey := right.KeyAt(0)
	childID := pages[0].id
	leftID := ctx.top().PageID()
	next := 1
	level := len(ctx.guards) - 2

	for {
		if level < 0 {
			a := pages[next]
			nr, err := page.InitInternal(a.g.Data(), t.codec, t.internalMaxSize)
			if err != nil {
				return err
			}
			nr.PopulateNewRoot(leftID, sepKey, childID)
			h, err := page.HeaderFrom(ctx.header.Data())
			if err != nil {
				return fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
			}
			h.SetRootPageID(a.id)
			t.logger.Debug("root split, tree grew",
				zap.Uint64("new_root_page_id", uint64(a.id)))
			return nil
		}

		parent, err := page.InternalFrom(ctx.guards[level].Data(), t.codec)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
		}
		ci := parent.ChildIndex(leftID)
		if ci < 0 {
			return fmt.Errorf("%w: parent page %d lost child %d",
				ErrTreeCorrupted, ctx.guards[level].PageID(), leftID)
		}
		parent.InsertAt(ci+1, sepKey, childID)
		if parent.Size() <= parent.MaxSize() {
			return nil
		}

		a := pages[next]
		next++
		rp, err := page.InitInternal(a.g.Data(), t.codec, t.internalMaxSize)
		if err != nil {
			return err
		}
		sepKey = parent.SplitInto(rp)
		childID = a.id
		leftID = ctx.guards[level].PageID()
		level--
	}
}
