// Package page defines the on-page binary layouts used by the index: the
// header, leaf and internal page formats, the fixed-width key codecs, and
// the record id stored in leaf slots. All layouts are little-endian views
// over pool-owned page buffers; nothing here allocates page memory.
package page

import (
	"encoding/binary"
	"errors"
)

// PageID identifies a page on disk. Page 0 holds the file header and is
// never handed out, so 0 doubles as the invalid sentinel.
type PageID uint64

const InvalidPageID PageID = 0

// PageType is the tag stored in the first two bytes of every page.
type PageType uint16

const (
	TypeInvalid PageType = iota
	TypeLeaf
	TypeInternal
	TypeHeader
)

func (t PageType) String() string {
	switch t {
	case TypeLeaf:
		return "leaf"
	case TypeInternal:
		return "internal"
	case TypeHeader:
		return "header"
	}
	return "invalid"
}

var (
	ErrWrongPageType = errors.New("page type tag does not match requested view")
	ErrPageTooSmall  = errors.New("page cannot hold the requested max size")
)

// Common page header, shared by every typed page:
//
//	offset 0: page type (uint16)
//	offset 2: current size (uint16)
//	offset 4: max size (uint16)
//	offset 6: reserved
const (
	offPageType   = 0
	offSize       = 2
	offMaxSize    = 4
	commonHdrSize = 8
)

// TypeOf reads the type tag of a raw page. Callers read the tag first and
// then borrow the page as the matching typed view via HeaderFrom, LeafFrom
// or InternalFrom.
func TypeOf(data []byte) PageType {
	return PageType(binary.LittleEndian.Uint16(data[offPageType:]))
}

func setType(data []byte, t PageType) {
	binary.LittleEndian.PutUint16(data[offPageType:], uint16(t))
}

func rawSize(data []byte) int {
	return int(binary.LittleEndian.Uint16(data[offSize:]))
}

func setRawSize(data []byte, n int) {
	binary.LittleEndian.PutUint16(data[offSize:], uint16(n))
}

func rawMaxSize(data []byte) int {
	return int(binary.LittleEndian.Uint16(data[offMaxSize:]))
}

func setRawMaxSize(data []byte, n int) {
	binary.LittleEndian.PutUint16(data[offMaxSize:], uint16(n))
}
