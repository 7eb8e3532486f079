package page

import (
	"bytes"
	"encoding/binary"
)

// Fixed-width key types. Key comparison sits on the descent hot path, so
// keys are concrete byte arrays compared with bytes.Compare rather than an
// interface dispatched per comparison.
type (
	Key4  [4]byte
	Key8  [8]byte
	Key16 [16]byte
	Key32 [32]byte
	Key64 [64]byte
)

// RID locates a record in the table heap: the page holding it and the slot
// within that page. Stored in leaf entries as 12 bytes.
type RID struct {
	PageID PageID
	Slot   uint32
}

const ridSize = 12

func encodeRID(dst []byte, r RID) {
	binary.LittleEndian.PutUint64(dst, uint64(r.PageID))
	binary.LittleEndian.PutUint32(dst[8:], r.Slot)
}

func decodeRID(src []byte) RID {
	return RID{
		PageID: PageID(binary.LittleEndian.Uint64(src)),
		Slot:   binary.LittleEndian.Uint32(src[8:]),
	}
}

// KeyCodec fixes how one key width is laid out on a page and ordered.
// The tree and the typed page views are parameterized by it; the five
// constructors below are the supported instantiations.
type KeyCodec[K comparable] struct {
	Width   int
	Encode  func(dst []byte, k K)
	Decode  func(src []byte) K
	Compare func(a, b K) int
}

func Codec4() KeyCodec[Key4] {
	return KeyCodec[Key4]{
		Width:   4,
		Encode:  func(dst []byte, k Key4) { copy(dst, k[:]) },
		Decode:  func(src []byte) (k Key4) { copy(k[:], src); return },
		Compare: func(a, b Key4) int { return bytes.Compare(a[:], b[:]) },
	}
}

func Codec8() KeyCodec[Key8] {
	return KeyCodec[Key8]{
		Width:   8,
		Encode:  func(dst []byte, k Key8) { copy(dst, k[:]) },
		Decode:  func(src []byte) (k Key8) { copy(k[:], src); return },
		Compare: func(a, b Key8) int { return bytes.Compare(a[:], b[:]) },
	}
}

func Codec16() KeyCodec[Key16] {
	return KeyCodec[Key16]{
		Width:   16,
		Encode:  func(dst []byte, k Key16) { copy(dst, k[:]) },
		Decode:  func(src []byte) (k Key16) { copy(k[:], src); return },
		Compare: func(a, b Key16) int { return bytes.Compare(a[:], b[:]) },
	}
}

func Codec32() KeyCodec[Key32] {
	return KeyCodec[Key32]{
		Width:   32,
		Encode:  func(dst []byte, k Key32) { copy(dst, k[:]) },
		Decode:  func(src []byte) (k Key32) { copy(k[:], src); return },
		Compare: func(a, b Key32) int { return bytes.Compare(a[:], b[:]) },
	}
}

func Codec64() KeyCodec[Key64] {
	return KeyCodec[Key64]{
		Width:   64,
		Encode:  func(dst []byte, k Key64) { copy(dst, k[:]) },
		Decode:  func(src []byte) (k Key64) { copy(k[:], src); return },
		Compare: func(a, b Key64) int { return bytes.Compare(a[:], b[:]) },
	}
}

// MaxLeafSize returns the largest leaf max size that still leaves one
// overflow slot free (insert happens before split, so the arrays must hold
// maxSize+1 entries).
func MaxLeafSize(keyWidth, pageSize int) int {
	return (pageSize-leafHdrSize)/(keyWidth+ridSize) - 1
}

// MaxInternalSize is the internal-page counterpart of MaxLeafSize, counted
// in separator keys. An internal page stores maxSize+1 children plus one
// overflow entry.
func MaxInternalSize(keyWidth, pageSize int) int {
	return (pageSize-commonHdrSize)/(keyWidth+childSize) - 2
}
