package page

import (
	"encoding/binary"
	"fmt"
)

// InternalPage is a typed view over an internal node's bytes: size
// separator keys and size+1 child page ids. Child i covers keys in
// [key(i), key(i+1)), with child 0 covering everything below key(1).
//
// Layout: common header, then entries from offset 8. Entry i is the key
// bytes followed by the child page id (uint64); entry 0's key slot is
// unused. A page holding size keys stores size+1 entries, and the arrays
// reserve one extra slot for insert-then-split overflow.
type InternalPage[K comparable] struct {
	data  []byte
	codec KeyCodec[K]
}

const childSize = 8

// InitInternal formats raw page bytes as an empty internal page.
func InitInternal[K comparable](data []byte, codec KeyCodec[K], maxSize int) (*InternalPage[K], error) {
	if maxSize < 2 || commonHdrSize+(maxSize+2)*(codec.Width+childSize) > len(data) {
		return nil, fmt.Errorf("%w: internal max size %d, key width %d, page size %d",
			ErrPageTooSmall, maxSize, codec.Width, len(data))
	}
	setType(data, TypeInternal)
	setRawSize(data, 0)
	setRawMaxSize(data, maxSize)
	return &InternalPage[K]{data: data, codec: codec}, nil
}

// InternalFrom borrows raw page bytes as an internal view after checking
// the tag.
func InternalFrom[K comparable](data []byte, codec KeyCodec[K]) (*InternalPage[K], error) {
	if t := TypeOf(data); t != TypeInternal {
		return nil, fmt.Errorf("%w: have %s, want internal", ErrWrongPageType, t)
	}
	return &InternalPage[K]{data: data, codec: codec}, nil
}

// Size is the number of separator keys; the page holds Size()+1 children.
func (p *InternalPage[K]) Size() int    { return rawSize(p.data) }
func (p *InternalPage[K]) MaxSize() int { return rawMaxSize(p.data) }

// MinSize is the underflow threshold in keys for a non-root internal page.
func (p *InternalPage[K]) MinSize() int { return p.MaxSize() / 2 }

func (p *InternalPage[K]) entryOff(i int) int {
	return commonHdrSize + i*(p.codec.Width+childSize)
}

// KeyAt returns separator key i, 1 <= i <= Size().
func (p *InternalPage[K]) KeyAt(i int) K {
	return p.codec.Decode(p.data[p.entryOff(i):])
}

func (p *InternalPage[K]) SetKeyAt(i int, k K) {
	p.codec.Encode(p.data[p.entryOff(i):], k)
}

// ChildAt returns child page id i, 0 <= i <= Size().
func (p *InternalPage[K]) ChildAt(i int) PageID {
	return PageID(binary.LittleEndian.Uint64(p.data[p.entryOff(i)+p.codec.Width:]))
}

func (p *InternalPage[K]) SetChildAt(i int, id PageID) {
	binary.LittleEndian.PutUint64(p.data[p.entryOff(i)+p.codec.Width:], uint64(id))
}

// ChildLookup returns the child covering k: the child after the rightmost
// separator <= k, or child 0 when k sorts below every separator.
func (p *InternalPage[K]) ChildLookup(k K) PageID {
	low, high := 1, p.Size()
	idx := 0
	for low <= high {
		mid := low + (high-low)/2
		if p.codec.Compare(p.KeyAt(mid), k) <= 0 {
			idx = mid
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return p.ChildAt(idx)
}

// ChildIndex returns the slot holding the given child id, or -1.
func (p *InternalPage[K]) ChildIndex(id PageID) int {
	for i := 0; i <= p.Size(); i++ {
		if p.ChildAt(i) == id {
			return i
		}
	}
	return -1
}

// PopulateNewRoot turns an empty internal page into a root with one
// separator: left covers keys below k, right covers the rest.
func (p *InternalPage[K]) PopulateNewRoot(left PageID, k K, right PageID) {
	p.SetChildAt(0, left)
	p.SetKeyAt(1, k)
	p.SetChildAt(1, right)
	setRawSize(p.data, 1)
}

// InsertAt places (k, child) as entry i, 1 <= i <= Size()+1, shifting the
// tail right. The caller checks for overflow afterwards.
func (p *InternalPage[K]) InsertAt(i int, k K, child PageID) {
	n := p.Size()
	copy(p.data[p.entryOff(i+1):p.entryOff(n+2)], p.data[p.entryOff(i):p.entryOff(n+1)])
	p.SetKeyAt(i, k)
	p.SetChildAt(i, child)
	setRawSize(p.data, n+1)
}

// RemoveAt drops separator i and child i, 1 <= i <= Size(), shifting the
// tail left.
func (p *InternalPage[K]) RemoveAt(i int) {
	n := p.Size()
	copy(p.data[p.entryOff(i):p.entryOff(n)], p.data[p.entryOff(i+1):p.entryOff(n+1)])
	setRawSize(p.data, n-1)
}

// SplitInto moves the upper half into dst and returns the promoted median.
// The page must be overfull (maxSize+1 keys); it keeps ceil(maxSize/2)
// keys, the median leaves the page entirely, and dst receives the rest.
// dst must be freshly initialized and empty.
func (p *InternalPage[K]) SplitInto(dst *InternalPage[K]) K {
	n := p.Size()
	keep := (p.MaxSize() + 1) / 2
	promoted := p.KeyAt(keep + 1)
	moved := n - keep - 1

	// dst entry 0 takes the median's child; its key slot stays unused.
	dst.SetChildAt(0, p.ChildAt(keep+1))
	copy(dst.data[dst.entryOff(1):dst.entryOff(moved+1)], p.data[p.entryOff(keep+2):p.entryOff(n+1)])
	setRawSize(dst.data, moved)
	setRawSize(p.data, keep)
	return promoted
}

// MoveLastToFrontOf shifts this page's last child onto the front of dst,
// rotating separators through middle: dst's new first separator becomes
// middle and the removed last key is returned as the parent's new
// separator. Borrow by dst from its left sibling.
func (p *InternalPage[K]) MoveLastToFrontOf(dst *InternalPage[K], middle K) K {
	n, dn := p.Size(), dst.Size()
	newMiddle := p.KeyAt(n)
	last := p.ChildAt(n)

	copy(dst.data[dst.entryOff(1):dst.entryOff(dn+2)], dst.data[dst.entryOff(0):dst.entryOff(dn+1)])
	dst.SetChildAt(0, last)
	dst.SetKeyAt(1, middle)
	setRawSize(dst.data, dn+1)
	setRawSize(p.data, n-1)
	return newMiddle
}

// MoveFirstToEndOf shifts this page's first child onto the end of dst,
// rotating separators through middle. Borrow by dst from its right sibling;
// the removed first key is returned as the parent's new separator.
func (p *InternalPage[K]) MoveFirstToEndOf(dst *InternalPage[K], middle K) K {
	n, dn := p.Size(), dst.Size()
	newMiddle := p.KeyAt(1)
	dst.SetKeyAt(dn+1, middle)
	dst.SetChildAt(dn+1, p.ChildAt(0))
	setRawSize(dst.data, dn+1)

	copy(p.data[p.entryOff(0):p.entryOff(n)], p.data[p.entryOff(1):p.entryOff(n+1)])
	setRawSize(p.data, n-1)
	return newMiddle
}

// MoveAllTo merges this page into its left sibling dst, gluing the halves
// with the parent separator middle. The page ends up empty.
func (p *InternalPage[K]) MoveAllTo(dst *InternalPage[K], middle K) {
	n, dn := p.Size(), dst.Size()
	dst.SetKeyAt(dn+1, middle)
	dst.SetChildAt(dn+1, p.ChildAt(0))
	copy(dst.data[dst.entryOff(dn+2):dst.entryOff(dn+n+2)], p.data[p.entryOff(1):p.entryOff(n+1)])
	setRawSize(dst.data, dn+n+1)
	setRawSize(p.data, 0)
}
