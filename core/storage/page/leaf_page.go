package page

import (
	"encoding/binary"
	"fmt"
)

// LeafPage is a typed view over a leaf node's bytes: sorted (key, RID)
// entries plus a right-sibling link.
//
// Layout: common header, next page id (uint64) at offset 8, then entries
// from offset 16. Entry i is the key bytes followed by the 12-byte RID.
// The arrays reserve one slot past max size so an insert can overflow the
// page and be split afterwards.
type LeafPage[K comparable] struct {
	data  []byte
	codec KeyCodec[K]
}

const (
	offNextPageID = commonHdrSize
	leafHdrSize   = commonHdrSize + 8
)

// InitLeaf formats raw page bytes as an empty leaf with the given max size.
func InitLeaf[K comparable](data []byte, codec KeyCodec[K], maxSize int) (*LeafPage[K], error) {
	if maxSize < 2 || leafHdrSize+(maxSize+1)*(codec.Width+ridSize) > len(data) {
		return nil, fmt.Errorf("%w: leaf max size %d, key width %d, page size %d",
			ErrPageTooSmall, maxSize, codec.Width, len(data))
	}
	setType(data, TypeLeaf)
	setRawSize(data, 0)
	setRawMaxSize(data, maxSize)
	l := &LeafPage[K]{data: data, codec: codec}
	l.SetNextPageID(InvalidPageID)
	return l, nil
}

// LeafFrom borrows raw page bytes as a leaf view after checking the tag.
func LeafFrom[K comparable](data []byte, codec KeyCodec[K]) (*LeafPage[K], error) {
	if t := TypeOf(data); t != TypeLeaf {
		return nil, fmt.Errorf("%w: have %s, want leaf", ErrWrongPageType, t)
	}
	return &LeafPage[K]{data: data, codec: codec}, nil
}

func (l *LeafPage[K]) Size() int    { return rawSize(l.data) }
func (l *LeafPage[K]) MaxSize() int { return rawMaxSize(l.data) }

// MinSize is the underflow threshold: a non-root leaf must keep at least
// ceil(maxSize/2) entries.
func (l *LeafPage[K]) MinSize() int { return (l.MaxSize() + 1) / 2 }

func (l *LeafPage[K]) NextPageID() PageID {
	return PageID(binary.LittleEndian.Uint64(l.data[offNextPageID:]))
}

func (l *LeafPage[K]) SetNextPageID(id PageID) {
	binary.LittleEndian.PutUint64(l.data[offNextPageID:], uint64(id))
}

func (l *LeafPage[K]) entryOff(i int) int {
	return leafHdrSize + i*(l.codec.Width+ridSize)
}

func (l *LeafPage[K]) KeyAt(i int) K {
	return l.codec.Decode(l.data[l.entryOff(i):])
}

func (l *LeafPage[K]) RIDAt(i int) RID {
	return decodeRID(l.data[l.entryOff(i)+l.codec.Width:])
}

func (l *LeafPage[K]) setEntry(i int, k K, r RID) {
	off := l.entryOff(i)
	l.codec.Encode(l.data[off:], k)
	encodeRID(l.data[off+l.codec.Width:], r)
}

// search returns the index of the first entry with key >= k, and whether
// that entry is an exact match.
func (l *LeafPage[K]) search(k K) (int, bool) {
	low, high := 0, l.Size()-1
	for low <= high {
		mid := low + (high-low)/2
		switch c := l.codec.Compare(l.KeyAt(mid), k); {
		case c == 0:
			return mid, true
		case c < 0:
			low = mid + 1
		default:
			high = mid - 1
		}
	}
	return low, false
}

// LowerBound returns the index of the first entry with key >= k, which is
// Size() when every key is smaller.
func (l *LeafPage[K]) LowerBound(k K) int {
	i, _ := l.search(k)
	return i
}

// Lookup returns the RID stored under k, if present.
func (l *LeafPage[K]) Lookup(k K) (RID, bool) {
	if i, found := l.search(k); found {
		return l.RIDAt(i), true
	}
	return RID{}, false
}

// Insert places (k, r) at its sorted position, shifting the tail right.
// A duplicate key is rejected. The caller checks for overflow afterwards.
func (l *LeafPage[K]) Insert(k K, r RID) bool {
	i, found := l.search(k)
	if found {
		return false
	}
	n := l.Size()
	copy(l.data[l.entryOff(i+1):l.entryOff(n+1)], l.data[l.entryOff(i):l.entryOff(n)])
	l.setEntry(i, k, r)
	setRawSize(l.data, n+1)
	return true
}

// Delete removes k's entry, shifting the tail left. Returns false on a miss.
func (l *LeafPage[K]) Delete(k K) bool {
	i, found := l.search(k)
	if !found {
		return false
	}
	n := l.Size()
	copy(l.data[l.entryOff(i):l.entryOff(n-1)], l.data[l.entryOff(i+1):l.entryOff(n)])
	setRawSize(l.data, n-1)
	return true
}

// MoveHalfTo moves the upper entries into dst, leaving ceil(maxSize/2)
// entries behind. dst must be a freshly initialized empty leaf. Sibling
// links are the caller's job since a view does not know its own page id.
func (l *LeafPage[K]) MoveHalfTo(dst *LeafPage[K]) {
	n := l.Size()
	keep := (l.MaxSize() + 1) / 2
	moved := n - keep
	copy(dst.data[dst.entryOff(0):dst.entryOff(moved)], l.data[l.entryOff(keep):l.entryOff(n)])
	setRawSize(dst.data, moved)
	setRawSize(l.data, keep)
}

// MoveAllTo appends every entry to the end of dst and empties the page.
// Used when merging into the left sibling.
func (l *LeafPage[K]) MoveAllTo(dst *LeafPage[K]) {
	n, dn := l.Size(), dst.Size()
	copy(dst.data[dst.entryOff(dn):dst.entryOff(dn+n)], l.data[l.entryOff(0):l.entryOff(n)])
	setRawSize(dst.data, dn+n)
	setRawSize(l.data, 0)
}

// MoveLastToFrontOf shifts this page's last entry onto the front of dst
// (borrow by dst from its left sibling).
func (l *LeafPage[K]) MoveLastToFrontOf(dst *LeafPage[K]) {
	n, dn := l.Size(), dst.Size()
	copy(dst.data[dst.entryOff(1):dst.entryOff(dn+1)], dst.data[dst.entryOff(0):dst.entryOff(dn)])
	copy(dst.data[dst.entryOff(0):dst.entryOff(1)], l.data[l.entryOff(n-1):l.entryOff(n)])
	setRawSize(dst.data, dn+1)
	setRawSize(l.data, n-1)
}

// MoveFirstToEndOf shifts this page's first entry onto the end of dst
// (borrow by dst from its right sibling).
func (l *LeafPage[K]) MoveFirstToEndOf(dst *LeafPage[K]) {
	n, dn := l.Size(), dst.Size()
	copy(dst.data[dst.entryOff(dn):dst.entryOff(dn+1)], l.data[l.entryOff(0):l.entryOff(1)])
	copy(l.data[l.entryOff(0):l.entryOff(n-1)], l.data[l.entryOff(1):l.entryOff(n)])
	setRawSize(dst.data, dn+1)
	setRawSize(l.data, n-1)
}
