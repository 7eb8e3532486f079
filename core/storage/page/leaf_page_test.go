package page

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// key8 builds a Key8 whose bytes.Compare order matches numeric order.
func key8(v uint64) (k Key8) {
	binary.BigEndian.PutUint64(k[:], v)
	return
}

func rid(p uint64, s uint32) RID {
	return RID{PageID: PageID(p), Slot: s}
}

func newTestLeaf(t *testing.T, maxSize int) *LeafPage[Key8] {
	t.Helper()
	l, err := InitLeaf(make([]byte, 4096), Codec8(), maxSize)
	require.NoError(t, err)
	return l
}

func leafKeys(l *LeafPage[Key8]) []uint64 {
	out := make([]uint64, l.Size())
	for i := range out {
		k := l.KeyAt(i)
		out[i] = binary.BigEndian.Uint64(k[:])
	}
	return out
}

func TestLeafInsertKeepsSortedOrder(t *testing.T) {
	l := newTestLeaf(t, 8)

	for _, v := range []uint64{50, 10, 30, 20, 40} {
		require.True(t, l.Insert(key8(v), rid(v, 0)))
	}
	require.Equal(t, []uint64{10, 20, 30, 40, 50}, leafKeys(l))

	for _, v := range []uint64{10, 30, 50} {
		r, ok := l.Lookup(key8(v))
		require.True(t, ok)
		require.Equal(t, rid(v, 0), r)
	}
	_, ok := l.Lookup(key8(25))
	require.False(t, ok)
}

func TestLeafInsertRejectsDuplicate(t *testing.T) {
	l := newTestLeaf(t, 4)

	require.True(t, l.Insert(key8(7), rid(7, 0)))
	require.False(t, l.Insert(key8(7), rid(7, 1)))
	require.Equal(t, 1, l.Size())

	r, ok := l.Lookup(key8(7))
	require.True(t, ok)
	require.Equal(t, rid(7, 0), r)
}

func TestLeafDelete(t *testing.T) {
	l := newTestLeaf(t, 8)

	for _, v := range []uint64{1, 2, 3, 4} {
		require.True(t, l.Insert(key8(v), rid(v, 0)))
	}
	require.False(t, l.Delete(key8(9)))
	require.True(t, l.Delete(key8(2)))
	require.Equal(t, []uint64{1, 3, 4}, leafKeys(l))
	require.True(t, l.Delete(key8(1)))
	require.True(t, l.Delete(key8(4)))
	require.Equal(t, []uint64{3}, leafKeys(l))
}

func TestLeafLowerBound(t *testing.T) {
	l := newTestLeaf(t, 8)
	for _, v := range []uint64{10, 20, 30} {
		require.True(t, l.Insert(key8(v), rid(v, 0)))
	}

	require.Equal(t, 0, l.LowerBound(key8(5)))
	require.Equal(t, 0, l.LowerBound(key8(10)))
	require.Equal(t, 1, l.LowerBound(key8(15)))
	require.Equal(t, 2, l.LowerBound(key8(30)))
	require.Equal(t, 3, l.LowerBound(key8(31)))
}

// After an overflow insert, MoveHalfTo leaves ceil(maxSize/2) entries and
// moves the rest; with maxSize 2 and keys 1,2,3 the split is {1} / {2,3}.
func TestLeafMoveHalfTo(t *testing.T) {
	l := newTestLeaf(t, 2)
	r := newTestLeaf(t, 2)

	for _, v := range []uint64{1, 2, 3} {
		require.True(t, l.Insert(key8(v), rid(v, 0)))
	}
	l.MoveHalfTo(r)

	require.Equal(t, []uint64{1}, leafKeys(l))
	require.Equal(t, []uint64{2, 3}, leafKeys(r))
}

func TestLeafMergeAndBorrow(t *testing.T) {
	left := newTestLeaf(t, 4)
	right := newTestLeaf(t, 4)

	for _, v := range []uint64{1, 2, 3} {
		require.True(t, left.Insert(key8(v), rid(v, 0)))
	}
	for _, v := range []uint64{10, 20} {
		require.True(t, right.Insert(key8(v), rid(v, 0)))
	}

	// Borrow from the left sibling into right's front.
	left.MoveLastToFrontOf(right)
	require.Equal(t, []uint64{1, 2}, leafKeys(left))
	require.Equal(t, []uint64{3, 10, 20}, leafKeys(right))

	// Borrow back from the right sibling onto left's end.
	right.MoveFirstToEndOf(left)
	require.Equal(t, []uint64{1, 2, 3}, leafKeys(left))
	require.Equal(t, []uint64{10, 20}, leafKeys(right))

	// Merge right into left.
	right.MoveAllTo(left)
	require.Equal(t, []uint64{1, 2, 3, 10, 20}, leafKeys(left))
	require.Equal(t, 0, right.Size())
}

func TestLeafNextPageID(t *testing.T) {
	l := newTestLeaf(t, 4)
	require.Equal(t, InvalidPageID, l.NextPageID())
	l.SetNextPageID(PageID(42))
	require.Equal(t, PageID(42), l.NextPageID())
}

func TestLeafFromChecksTag(t *testing.T) {
	data := make([]byte, 4096)
	_, err := InitInternal(data, Codec8(), 4)
	require.NoError(t, err)

	_, err = LeafFrom(data, Codec8())
	require.ErrorIs(t, err, ErrWrongPageType)
}

func TestInitLeafRejectsOversizedMax(t *testing.T) {
	data := make([]byte, 128)
	max := MaxLeafSize(8, len(data))
	_, err := InitLeaf(data, Codec8(), max)
	require.NoError(t, err)
	_, err = InitLeaf(make([]byte, 128), Codec8(), max+1)
	require.ErrorIs(t, err, ErrPageTooSmall)
	_, err = InitLeaf(make([]byte, 128), Codec8(), 1)
	require.ErrorIs(t, err, ErrPageTooSmall)
}

func TestLeafMinSize(t *testing.T) {
	require.Equal(t, 2, newTestLeaf(t, 3).MinSize())
	require.Equal(t, 2, newTestLeaf(t, 4).MinSize())
	require.Equal(t, 3, newTestLeaf(t, 5).MinSize())
}
