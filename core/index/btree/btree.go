// Package btree implements a disk-backed B+Tree index whose nodes live in
// buffer-pool pages. Every page access goes through a scoped guard from the
// pool; structure-modifying operations descend with write guards under a
// latch-crabbing discipline and release ancestors as soon as a child is
// proven safe.
package btree

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/grovedb/grove/core/buffer/pool"
	"github.com/grovedb/grove/core/storage/page"
)

var (
	// ErrTreeCorrupted reports a structural invariant violation: a descent
	// that reached a page of the wrong type, or a parent without the child
	// it was just entered from. Not recoverable; the operation aborts.
	ErrTreeCorrupted = errors.New("b+tree structural invariant violated")
	// ErrSplitAborted reports that a split could not allocate its new
	// pages. The tree is left unchanged.
	ErrSplitAborted = errors.New("split aborted, tree unchanged")
	// ErrInvalidMaxSize reports node max sizes that do not fit the page.
	ErrInvalidMaxSize = errors.New("node max size out of range for page size")
)

// BTree is a unique-key index from fixed-width keys to RIDs. It owns no
// page content; all state lives in pool-managed pages anchored by the
// header page, whose identity is fixed at construction.
type BTree[K comparable] struct {
	name            string
	bpm             *pool.BufferPoolManager
	codec           page.KeyCodec[K]
	leafMaxSize     int
	internalMaxSize int
	headerPageID    page.PageID
	logger          *zap.Logger
}

// New creates an empty tree, allocating its header page.
func New[K comparable](name string, bpm *pool.BufferPoolManager, codec page.KeyCodec[K],
	leafMaxSize, internalMaxSize int, logger *zap.Logger) (*BTree[K], error) {

	t, err := newTree(name, bpm, codec, leafMaxSize, internalMaxSize, logger)
	if err != nil {
		return nil, err
	}
	headerID, err := bpm.NewPage()
	if err != nil {
		return nil, fmt.Errorf("allocating header page: %w", err)
	}
	g, err := bpm.WritePage(headerID)
	if err != nil {
		return nil, fmt.Errorf("initializing header page: %w", err)
	}
	page.InitHeader(g.Data())
	g.Done()
	t.headerPageID = headerID

	t.logger.Info("created b+tree index",
		zap.String("index", name),
		zap.Uint64("header_page_id", uint64(headerID)),
		zap.Int("leaf_max_size", leafMaxSize),
		zap.Int("internal_max_size", internalMaxSize))
	return t, nil
}

// Open attaches to an existing tree by its header page.
func Open[K comparable](name string, bpm *pool.BufferPoolManager, codec page.KeyCodec[K],
	leafMaxSize, internalMaxSize int, headerPageID page.PageID, logger *zap.Logger) (*BTree[K], error) {

	t, err := newTree(name, bpm, codec, leafMaxSize, internalMaxSize, logger)
	if err != nil {
		return nil, err
	}
	g, err := bpm.ReadPage(headerPageID)
	if err != nil {
		return nil, fmt.Errorf("reading header page %d: %w", headerPageID, err)
	}
	_, err = page.HeaderFrom(g.Data())
	g.Done()
	if err != nil {
		return nil, fmt.Errorf("%w: page %d is not a tree header: %v", ErrTreeCorrupted, headerPageID, err)
	}
	t.headerPageID = headerPageID
	return t, nil
}

func newTree[K comparable](name string, bpm *pool.BufferPoolManager, codec page.KeyCodec[K],
	leafMaxSize, internalMaxSize int, logger *zap.Logger) (*BTree[K], error) {

	if logger == nil {
		logger = zap.NewNop()
	}
	ps := bpm.PageSize()
	if leafMaxSize < 2 || leafMaxSize > page.MaxLeafSize(codec.Width, ps) {
		return nil, fmt.Errorf("%w: leaf max size %d (page size %d, key width %d)",
			ErrInvalidMaxSize, leafMaxSize, ps, codec.Width)
	}
	if internalMaxSize < 2 || internalMaxSize > page.MaxInternalSize(codec.Width, ps) {
		return nil, fmt.Errorf("%w: internal max size %d (page size %d, key width %d)",
			ErrInvalidMaxSize, internalMaxSize, ps, codec.Width)
	}
	return &BTree[K]{
		name:            name,
		bpm:             bpm,
		codec:           codec,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		logger:          logger.Named("btree"),
	}, nil
}

// HeaderPageID returns the tree's fixed anchor page.
func (t *BTree[K]) HeaderPageID() page.PageID { return t.headerPageID }

// GetRootPageID reads the current root id from the header page.
func (t *BTree[K]) GetRootPageID() (page.PageID, error) {
	g, err := t.bpm.ReadPage(t.headerPageID)
	if err != nil {
		return page.InvalidPageID, err
	}
	defer g.Done()
	h, err := page.HeaderFrom(g.Data())
	if err != nil {
		return page.InvalidPageID, fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
	}
	return h.RootPageID(), nil
}

// IsEmpty reports whether the tree holds no entries.
func (t *BTree[K]) IsEmpty() (bool, error) {
	root, err := t.GetRootPageID()
	if err != nil {
		return false, err
	}
	return root == page.InvalidPageID, nil
}

// GetValue looks up the RID stored under key. The descent takes read
// guards and releases each parent as soon as the child is guarded.
func (t *BTree[K]) GetValue(key K) (page.RID, bool, error) {
	hg, err := t.bpm.ReadPage(t.headerPageID)
	if err != nil {
		return page.RID{}, false, err
	}
	h, err := page.HeaderFrom(hg.Data())
	if err != nil {
		hg.Done()
		return page.RID{}, false, fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
	}
	root := h.RootPageID()
	if root == page.InvalidPageID {
		hg.Done()
		return page.RID{}, false, nil
	}
	g, err := t.bpm.ReadPage(root)
	hg.Done()
	if err != nil {
		return page.RID{}, false, err
	}

	for {
		switch pt := page.TypeOf(g.Data()); pt {
		case page.TypeInternal:
			ip, err := page.InternalFrom(g.Data(), t.codec)
			if err != nil {
				g.Done()
				return page.RID{}, false, fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
			}
			child := ip.ChildLookup(key)
			ng, err := t.bpm.ReadPage(child)
			g.Done()
			if err != nil {
				return page.RID{}, false, err
			}
			g = ng
		case page.TypeLeaf:
			lp, err := page.LeafFrom(g.Data(), t.codec)
			if err != nil {
				g.Done()
				return page.RID{}, false, fmt.Errorf("%w: %v", ErrTreeCorrupted, err)
			}
			rid, ok := lp.Lookup(key)
			g.Done()
			return rid, ok, nil
		default:
			g.Done()
			return page.RID{}, false, fmt.Errorf("%w: descent reached %s page", ErrTreeCorrupted, pt)
		}
	}
}

// Close flushes every dirty page the tree may have touched.
func (t *BTree[K]) Close() error {
	return t.bpm.FlushAll()
}
