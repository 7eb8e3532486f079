package page

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestInternal(t *testing.T, maxSize int) *InternalPage[Key8] {
	t.Helper()
	p, err := InitInternal(make([]byte, 4096), Codec8(), maxSize)
	require.NoError(t, err)
	return p
}

func internalKeys(p *InternalPage[Key8]) []uint64 {
	out := make([]uint64, p.Size())
	for i := 1; i <= p.Size(); i++ {
		k := p.KeyAt(i)
		out[i-1] = binary.BigEndian.Uint64(k[:])
	}
	return out
}

func internalChildren(p *InternalPage[Key8]) []PageID {
	out := make([]PageID, p.Size()+1)
	for i := 0; i <= p.Size(); i++ {
		out[i] = p.ChildAt(i)
	}
	return out
}

// buildInternal fills an empty page so that child i is page id children[i]
// and separator i is keys[i-1].
func buildInternal(t *testing.T, p *InternalPage[Key8], children []PageID, keys []uint64) {
	t.Helper()
	require.Len(t, children, len(keys)+1)
	p.PopulateNewRoot(children[0], key8(keys[0]), children[1])
	for i := 1; i < len(keys); i++ {
		p.InsertAt(i+1, key8(keys[i]), children[i+1])
	}
	require.Equal(t, keys, internalKeys(p))
	require.Equal(t, children, internalChildren(p))
}

func TestInternalChildLookup(t *testing.T) {
	p := newTestInternal(t, 4)
	buildInternal(t, p, []PageID{10, 20, 30, 40}, []uint64{100, 200, 300})

	// Child i covers [key(i), key(i+1)); child 0 covers everything below.
	require.Equal(t, PageID(10), p.ChildLookup(key8(50)))
	require.Equal(t, PageID(10), p.ChildLookup(key8(99)))
	require.Equal(t, PageID(20), p.ChildLookup(key8(100)))
	require.Equal(t, PageID(20), p.ChildLookup(key8(150)))
	require.Equal(t, PageID(30), p.ChildLookup(key8(200)))
	require.Equal(t, PageID(40), p.ChildLookup(key8(300)))
	require.Equal(t, PageID(40), p.ChildLookup(key8(999)))
}

func TestInternalChildIndex(t *testing.T) {
	p := newTestInternal(t, 4)
	buildInternal(t, p, []PageID{10, 20, 30}, []uint64{100, 200})

	require.Equal(t, 0, p.ChildIndex(10))
	require.Equal(t, 2, p.ChildIndex(30))
	require.Equal(t, -1, p.ChildIndex(99))
}

func TestInternalInsertAtAndRemoveAt(t *testing.T) {
	p := newTestInternal(t, 4)
	buildInternal(t, p, []PageID{10, 30}, []uint64{300})

	p.InsertAt(1, key8(100), PageID(20))
	require.Equal(t, []uint64{100, 300}, internalKeys(p))
	require.Equal(t, []PageID{10, 20, 30}, internalChildren(p))

	p.RemoveAt(2)
	require.Equal(t, []uint64{100}, internalKeys(p))
	require.Equal(t, []PageID{10, 20}, internalChildren(p))
}

// An overfull page of maxSize+1 keys keeps ceil(maxSize/2), promotes the
// median out entirely, and moves the rest right.
func TestInternalSplitInto(t *testing.T) {
	p := newTestInternal(t, 2)
	dst := newTestInternal(t, 2)
	buildInternal(t, p, []PageID{10, 20, 30, 40}, []uint64{100, 200, 300})

	mid := p.SplitInto(dst)
	require.Equal(t, key8(200), mid)
	require.Equal(t, []uint64{100}, internalKeys(p))
	require.Equal(t, []PageID{10, 20}, internalChildren(p))
	require.Equal(t, []uint64{300}, internalKeys(dst))
	require.Equal(t, []PageID{30, 40}, internalChildren(dst))
}

func TestInternalBorrowRotatesSeparators(t *testing.T) {
	left := newTestInternal(t, 4)
	right := newTestInternal(t, 4)
	buildInternal(t, left, []PageID{10, 20, 30}, []uint64{100, 200})
	buildInternal(t, right, []PageID{50, 60}, []uint64{500})

	// Borrow by right from left; 300 is the parent separator between them.
	newSep := left.MoveLastToFrontOf(right, key8(300))
	require.Equal(t, key8(200), newSep)
	require.Equal(t, []uint64{100}, internalKeys(left))
	require.Equal(t, []PageID{10, 20}, internalChildren(left))
	require.Equal(t, []uint64{300, 500}, internalKeys(right))
	require.Equal(t, []PageID{30, 50, 60}, internalChildren(right))

	// And back the other way.
	newSep = right.MoveFirstToEndOf(left, key8(200))
	require.Equal(t, key8(300), newSep)
	require.Equal(t, []uint64{100, 200}, internalKeys(left))
	require.Equal(t, []PageID{10, 20, 30}, internalChildren(left))
	require.Equal(t, []uint64{500}, internalKeys(right))
	require.Equal(t, []PageID{50, 60}, internalChildren(right))
}

func TestInternalMoveAllTo(t *testing.T) {
	left := newTestInternal(t, 6)
	right := newTestInternal(t, 6)
	buildInternal(t, left, []PageID{10, 20}, []uint64{100})
	buildInternal(t, right, []PageID{30, 40, 50}, []uint64{300, 400})

	right.MoveAllTo(left, key8(200))
	require.Equal(t, []uint64{100, 200, 300, 400}, internalKeys(left))
	require.Equal(t, []PageID{10, 20, 30, 40, 50}, internalChildren(left))
	require.Equal(t, 0, right.Size())
}

func TestInternalFromChecksTag(t *testing.T) {
	data := make([]byte, 4096)
	_, err := InitLeaf(data, Codec8(), 4)
	require.NoError(t, err)

	_, err = InternalFrom(data, Codec8())
	require.ErrorIs(t, err, ErrWrongPageType)
}

func TestInternalMinSize(t *testing.T) {
	require.Equal(t, 1, newTestInternal(t, 3).MinSize())
	require.Equal(t, 2, newTestInternal(t, 4).MinSize())
	require.Equal(t, 2, newTestInternal(t, 5).MinSize())
}
