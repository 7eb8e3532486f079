package page

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderPageRoundTrip(t *testing.T) {
	data := make([]byte, 4096)
	h := InitHeader(data)
	require.Equal(t, TypeHeader, TypeOf(data))
	require.Equal(t, InvalidPageID, h.RootPageID())

	h.SetRootPageID(PageID(17))

	h2, err := HeaderFrom(data)
	require.NoError(t, err)
	require.Equal(t, PageID(17), h2.RootPageID())
}

func TestHeaderFromChecksTag(t *testing.T) {
	data := make([]byte, 4096)
	_, err := InitLeaf(data, Codec8(), 4)
	require.NoError(t, err)

	_, err = HeaderFrom(data)
	require.ErrorIs(t, err, ErrWrongPageType)

	_, err = HeaderFrom(make([]byte, 4096))
	require.ErrorIs(t, err, ErrWrongPageType)
}
