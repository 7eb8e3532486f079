// Package pool implements the buffer pool manager: a fixed set of in-memory
// frames caching disk pages, with pin counts, per-page latches exposed as
// scoped guards, and LRU-K victim selection when the pool is full.
package pool

import (
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/grovedb/grove/core/buffer/replacer"
	"github.com/grovedb/grove/core/storage/disk"
	"github.com/grovedb/grove/core/storage/page"
)

var (
	ErrPoolFull   = errors.New("buffer pool is full and no frame is evictable")
	ErrPagePinned = errors.New("page is pinned and cannot be deleted")
)

// frame is one pool slot: a page-sized buffer plus residency bookkeeping.
// The latch serializes access to the buffer; pinCount and dirty are
// protected by the pool mutex.
type frame struct {
	id       replacer.FrameID
	data     []byte
	pageID   page.PageID
	pinCount int
	dirty    bool
	latch    sync.RWMutex
}

// BufferPoolManager mediates every page access: it pins pages into frames,
// faults them in from disk on a miss, records accesses with the replacer,
// and reclaims frames through it when the free list runs dry.
type BufferPoolManager struct {
	poolSize  int
	disk      *disk.Manager
	repl      *replacer.LRUKReplacer
	frames    []*frame
	pageTable map[page.PageID]replacer.FrameID
	freeList  []replacer.FrameID
	mu        sync.Mutex
	logger    *zap.Logger
	metrics   *poolMetrics
}

// NewBufferPoolManager creates a pool of poolSize frames over dm, evicting
// with an LRU-K replacer of the given k. A nil meter disables metrics.
func NewBufferPoolManager(poolSize, k int, dm *disk.Manager, meter metric.Meter, logger *zap.Logger) (*BufferPoolManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}
	metrics, err := newPoolMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("creating pool metrics: %w", err)
	}
	m := &BufferPoolManager{
		poolSize:  poolSize,
		disk:      dm,
		repl:      replacer.NewLRUKReplacer(poolSize, k, logger),
		frames:    make([]*frame, poolSize),
		pageTable: make(map[page.PageID]replacer.FrameID, poolSize),
		freeList:  make([]replacer.FrameID, 0, poolSize),
		logger:    logger.Named("buffer_pool"),
		metrics:   metrics,
	}
	for i := 0; i < poolSize; i++ {
		m.frames[i] = &frame{
			id:     replacer.FrameID(i),
			data:   make([]byte, dm.PageSize()),
			pageID: page.InvalidPageID,
		}
		m.freeList = append(m.freeList, replacer.FrameID(i))
	}
	m.logger.Info("buffer pool initialized",
		zap.Int("pool_size", poolSize), zap.Int("lru_k", k), zap.Int("page_size", dm.PageSize()))
	return m, nil
}

// PageSize returns the size of every frame buffer.
func (m *BufferPoolManager) PageSize() int { return m.disk.PageSize() }

// NewPage allocates a fresh, zero-filled page on disk and returns its id.
// The page is faulted into a frame by the first guard taken on it.
func (m *BufferPoolManager) NewPage() (page.PageID, error) {
	return m.disk.Allocate()
}

// ReadPage pins the page and returns a shared guard on it. Blocks while a
// writer holds the page.
func (m *BufferPoolManager) ReadPage(id page.PageID) (*ReadPageGuard, error) {
	fr, err := m.pin(id, replacer.AccessLookup)
	if err != nil {
		return nil, err
	}
	fr.latch.RLock()
	return &ReadPageGuard{guard{m: m, fr: fr, pageID: id}}, nil
}

// WritePage pins the page and returns an exclusive guard on it.
func (m *BufferPoolManager) WritePage(id page.PageID) (*WritePageGuard, error) {
	fr, err := m.pin(id, replacer.AccessIndex)
	if err != nil {
		return nil, err
	}
	fr.latch.Lock()
	return &WritePageGuard{guard{m: m, fr: fr, pageID: id}}, nil
}

// pin makes the page resident and non-evictable, bumping its pin count.
func (m *BufferPoolManager) pin(id page.PageID, kind replacer.AccessType) (*frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fid, ok := m.pageTable[id]; ok {
		fr := m.frames[fid]
		fr.pinCount++
		if err := m.repl.RecordAccess(fid, kind); err != nil {
			fr.pinCount--
			return nil, err
		}
		_ = m.repl.SetEvictable(fid, false)
		m.metrics.inc(m.metrics.hits)
		return fr, nil
	}

	m.metrics.inc(m.metrics.misses)
	fid, err := m.reclaimFrame()
	if err != nil {
		return nil, err
	}
	fr := m.frames[fid]
	if err := m.disk.ReadPage(id, fr.data); err != nil {
		m.freeList = append(m.freeList, fid)
		return nil, err
	}
	fr.pageID = id
	fr.pinCount = 1
	fr.dirty = false
	m.pageTable[id] = fid
	if err := m.repl.RecordAccess(fid, kind); err != nil {
		return nil, err
	}
	_ = m.repl.SetEvictable(fid, false)
	return fr, nil
}

// reclaimFrame produces a free frame, evicting through the replacer and
// flushing the victim if dirty. Caller holds m.mu.
func (m *BufferPoolManager) reclaimFrame() (replacer.FrameID, error) {
	if n := len(m.freeList); n > 0 {
		fid := m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
		return fid, nil
	}

	fid, ok := m.repl.Evict()
	if !ok {
		return 0, ErrPoolFull
	}
	fr := m.frames[fid]
	if fr.dirty {
		if err := m.disk.WritePage(fr.pageID, fr.data); err != nil {
			// The frame still holds a valid page; put it back under
			// tracking so a later eviction can retry.
			_ = m.repl.RecordAccess(fid, replacer.AccessUnknown)
			_ = m.repl.SetEvictable(fid, true)
			return 0, fmt.Errorf("flushing victim page %d: %w", fr.pageID, err)
		}
		fr.dirty = false
		m.metrics.inc(m.metrics.flushes)
	}
	m.logger.Debug("evicted page from frame",
		zap.Uint64("page_id", uint64(fr.pageID)), zap.Int("frame_id", int(fid)))
	delete(m.pageTable, fr.pageID)
	fr.pageID = page.InvalidPageID
	m.metrics.inc(m.metrics.evictions)
	return fid, nil
}

// unpin drops one pin; at zero the frame becomes evictable. Guards call
// this after releasing the page latch.
func (m *BufferPoolManager) unpin(fr *frame, dirty bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if dirty {
		fr.dirty = true
	}
	if fr.pinCount > 0 {
		fr.pinCount--
	}
	if fr.pinCount == 0 {
		_ = m.repl.SetEvictable(fr.id, true)
	}
}

// DeletePage evicts the page from the pool, forgets its replacer history
// and deallocates it on disk. Fails if any guard still pins it.
func (m *BufferPoolManager) DeletePage(id page.PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fid, ok := m.pageTable[id]; ok {
		fr := m.frames[fid]
		if fr.pinCount > 0 {
			return fmt.Errorf("%w: page %d", ErrPagePinned, id)
		}
		m.repl.Remove(fid)
		delete(m.pageTable, id)
		fr.pageID = page.InvalidPageID
		fr.dirty = false
		m.freeList = append(m.freeList, fid)
	}
	m.disk.Deallocate(id)
	return nil
}

// FlushPage writes the page's frame back to disk if it is resident.
func (m *BufferPoolManager) FlushPage(id page.PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.pageTable[id]
	if !ok {
		return nil
	}
	fr := m.frames[fid]
	if !fr.dirty {
		return nil
	}
	if err := m.disk.WritePage(id, fr.data); err != nil {
		return err
	}
	fr.dirty = false
	m.metrics.inc(m.metrics.flushes)
	return nil
}

// FlushAll writes every dirty resident page back to disk.
func (m *BufferPoolManager) FlushAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, fr := range m.frames {
		if fr.pageID == page.InvalidPageID || !fr.dirty {
			continue
		}
		if err := m.disk.WritePage(fr.pageID, fr.data); err != nil {
			return err
		}
		fr.dirty = false
		m.metrics.inc(m.metrics.flushes)
	}
	return nil
}

// Replacer exposes the pool's replacer, mainly for inspection in tests.
func (m *BufferPoolManager) Replacer() *replacer.LRUKReplacer { return m.repl }
