package page

import (
	"encoding/binary"
	"fmt"
)

// HeaderPage is the single-field page anchoring a tree: it records the
// current root page id. Its identity is fixed when the tree is created and
// survives every root change.
//
// Layout: common header, then root page id (uint64) at offset 8.
type HeaderPage struct {
	data []byte
}

const offRootPageID = commonHdrSize

// InitHeader formats raw page bytes as a header page with an invalid root.
func InitHeader(data []byte) *HeaderPage {
	setType(data, TypeHeader)
	setRawSize(data, 0)
	setRawMaxSize(data, 0)
	h := &HeaderPage{data: data}
	h.SetRootPageID(InvalidPageID)
	return h
}

// HeaderFrom borrows raw page bytes as a header page after checking the tag.
func HeaderFrom(data []byte) (*HeaderPage, error) {
	if t := TypeOf(data); t != TypeHeader {
		return nil, fmt.Errorf("%w: have %s, want header", ErrWrongPageType, t)
	}
	return &HeaderPage{data: data}, nil
}

func (h *HeaderPage) RootPageID() PageID {
	return PageID(binary.LittleEndian.Uint64(h.data[offRootPageID:]))
}

func (h *HeaderPage) SetRootPageID(id PageID) {
	binary.LittleEndian.PutUint64(h.data[offRootPageID:], uint64(id))
}
