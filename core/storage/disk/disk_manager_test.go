package disk

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/grovedb/grove/core/storage/page"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "grove.db")
	dm, err := NewManager(path, DefaultPageSize, logger)
	require.NoError(t, err)
	return dm, path
}

func TestAllocateAndRoundTrip(t *testing.T) {
	dm, _ := newTestManager(t)
	defer dm.Close()

	id, err := dm.Allocate()
	require.NoError(t, err)
	require.NotEqual(t, page.InvalidPageID, id)

	// Freshly allocated pages come back zeroed.
	buf := make([]byte, DefaultPageSize)
	require.NoError(t, dm.ReadPage(id, buf))
	for _, b := range buf {
		require.Zero(t, b)
	}

	want := make([]byte, DefaultPageSize)
	for i := range want {
		want[i] = byte(i)
	}
	require.NoError(t, dm.WritePage(id, want))
	require.NoError(t, dm.ReadPage(id, buf))
	require.Equal(t, want, buf)
}

func TestReopenPreservesPages(t *testing.T) {
	dm, path := newTestManager(t)

	id1, err := dm.Allocate()
	require.NoError(t, err)
	id2, err := dm.Allocate()
	require.NoError(t, err)

	payload := make([]byte, DefaultPageSize)
	binary.LittleEndian.PutUint64(payload, 0xDEADBEEF)
	require.NoError(t, dm.WritePage(id2, payload))
	require.NoError(t, dm.Close())

	dm2, err := NewManager(path, DefaultPageSize, zap.NewNop())
	require.NoError(t, err)
	defer dm2.Close()

	buf := make([]byte, DefaultPageSize)
	require.NoError(t, dm2.ReadPage(id2, buf))
	require.Equal(t, payload, buf)

	// The page count survived the reopen, so the next allocation does not
	// collide with the existing pages.
	id3, err := dm2.Allocate()
	require.NoError(t, err)
	require.NotEqual(t, id1, id3)
	require.NotEqual(t, id2, id3)
}

func TestDeallocateReusesPage(t *testing.T) {
	dm, _ := newTestManager(t)
	defer dm.Close()

	id, err := dm.Allocate()
	require.NoError(t, err)
	dm.Deallocate(id)

	reused, err := dm.Allocate()
	require.NoError(t, err)
	require.Equal(t, id, reused)
}

func TestInvalidPageIDs(t *testing.T) {
	dm, _ := newTestManager(t)
	defer dm.Close()

	buf := make([]byte, DefaultPageSize)
	require.ErrorIs(t, dm.ReadPage(page.InvalidPageID, buf), ErrInvalidPageID)
	require.ErrorIs(t, dm.WritePage(page.PageID(99), buf), ErrInvalidPageID)
}

func TestOpenRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-db")
	require.NoError(t, os.WriteFile(path, make([]byte, DefaultPageSize), 0666))

	_, err := NewManager(path, DefaultPageSize, zap.NewNop())
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestOpenRejectsPageSizeMismatch(t *testing.T) {
	dm, path := newTestManager(t)
	_, err := dm.Allocate()
	require.NoError(t, err)
	require.NoError(t, dm.Close())

	_, err = NewManager(path, DefaultPageSize*2, zap.NewNop())
	require.ErrorIs(t, err, ErrPageSizeMismatch)
}
