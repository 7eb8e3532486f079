// Package replacer implements the LRU-K page-eviction policy used by the
// buffer pool. It tracks, per frame, the timestamps of recent accesses on a
// logical clock and picks eviction victims by backward k-distance.
package replacer

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// FrameID identifies a buffer pool frame slot, 0 <= id < pool size.
type FrameID int

// AccessType records what kind of operation touched a frame.
type AccessType uint8

const (
	AccessUnknown AccessType = iota
	AccessLookup
	AccessScan
	AccessIndex
)

var (
	// ErrInvalidFrameID reports a frame id outside [0, capacity).
	ErrInvalidFrameID = errors.New("frame id outside replacer capacity")
	// ErrFrameNotFound reports an operation on a frame with no recorded access.
	ErrFrameNotFound = errors.New("frame not tracked by replacer")
)

type accessStamp struct {
	ts   uint64
	kind AccessType
}

// lruKNode is the per-frame bookkeeping record: its access history on the
// logical clock, oldest first, and whether the pool allows evicting it.
type lruKNode struct {
	fid       FrameID
	history   []accessStamp
	evictable bool
}

// LRUKReplacer chooses eviction victims among registered frames.
//
// Frames are registered lazily: the first RecordAccess for an in-range id
// creates its record. Victim choice is two-tiered: frames with fewer than k
// recorded accesses ("infinite backward k-distance") always win over frames
// with k or more, ordered by oldest most-recent access; among frames with a
// finite k-distance the largest distance wins. Ties break toward the
// smallest frame id.
//
// A single mutex covers the clock, the histories and the evictable count,
// so every method is atomic with respect to every other.
type LRUKReplacer struct {
	mu        sync.Mutex
	nodes     map[FrameID]*lruKNode
	clock     uint64
	k         int
	capacity  int
	evictable int
	logger    *zap.Logger
}

// NewLRUKReplacer creates a replacer for a pool of capacity frames keeping
// the k most recent accesses per frame.
func NewLRUKReplacer(capacity, k int, logger *zap.Logger) *LRUKReplacer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LRUKReplacer{
		nodes:    make(map[FrameID]*lruKNode, capacity),
		k:        k,
		capacity: capacity,
		logger:   logger.Named("lruk_replacer"),
	}
}

// RecordAccess advances the logical clock and appends the access to the
// frame's history, registering the frame on first sight.
func (r *LRUKReplacer) RecordAccess(fid FrameID, kind AccessType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fid < 0 || int(fid) >= r.capacity {
		return fmt.Errorf("%w: %d (capacity %d)", ErrInvalidFrameID, fid, r.capacity)
	}
	r.clock++
	node, ok := r.nodes[fid]
	if !ok {
		node = &lruKNode{fid: fid}
		r.nodes[fid] = node
	}
	node.history = append(node.history, accessStamp{ts: r.clock, kind: kind})
	return nil
}

// SetEvictable toggles a frame's eligibility. The evictable count moves
// only on an actual transition, so repeated calls are harmless. A frame
// whose history was cleared by Evict counts as untracked until the next
// RecordAccess.
func (r *LRUKReplacer) SetEvictable(fid FrameID, evictable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[fid]
	if !ok || len(node.history) == 0 {
		return fmt.Errorf("%w: %d", ErrFrameNotFound, fid)
	}
	if node.evictable != evictable {
		if evictable {
			r.evictable++
		} else {
			r.evictable--
		}
		node.evictable = evictable
	}
	return nil
}

// Evict picks a victim, clears its history, marks it non-evictable and
// returns its id. The second result is false when nothing is evictable;
// that is not an error. The clock advances even then.
func (r *LRUKReplacer) Evict() (FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clock++

	var victim *lruKNode
	victimInf := false
	for _, node := range r.nodes {
		if !node.evictable {
			continue
		}
		inf := len(node.history) < r.k
		switch {
		case victim == nil:
			victim, victimInf = node, inf
		case inf && !victimInf:
			victim, victimInf = node, inf
		case inf == victimInf && r.prefer(node, victim, inf):
			victim = node
		}
	}
	if victim == nil {
		return 0, false
	}

	r.logger.Debug("evicting frame",
		zap.Int("frame_id", int(victim.fid)),
		zap.Int("accesses", len(victim.history)),
		zap.Bool("infinite_k_distance", victimInf))

	victim.history = nil
	victim.evictable = false
	r.evictable--
	return victim.fid, true
}

// prefer reports whether a should be evicted before b, both being in the
// same tier. Map iteration order is arbitrary, so the frame-id tie-break
// keeps the choice deterministic.
func (r *LRUKReplacer) prefer(a, b *lruKNode, infinite bool) bool {
	if infinite {
		// Oldest most-recent access wins. SetEvictable rejects frames with
		// a cleared history, so evictable histories are non-empty here.
		at := a.history[len(a.history)-1].ts
		bt := b.history[len(b.history)-1].ts
		if at != bt {
			return at < bt
		}
		return a.fid < b.fid
	}
	// Largest backward k-distance wins, i.e. the smallest k-th most recent
	// timestamp.
	at := a.history[len(a.history)-r.k].ts
	bt := b.history[len(b.history)-r.k].ts
	if at != bt {
		return at < bt
	}
	return a.fid < b.fid
}

// Remove unconditionally drops a frame's record; the pool calls this when
// it deallocates the underlying page. Unknown frames are a no-op.
func (r *LRUKReplacer) Remove(fid FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[fid]
	if !ok {
		return
	}
	if node.evictable {
		r.evictable--
	}
	delete(r.nodes, fid)
}

// Size returns the number of currently evictable frames.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictable
}
