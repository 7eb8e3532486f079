// Package disk provides the file-backed page store underneath the buffer
// pool: fixed-size pages addressed by id, with a header page holding the
// file metadata.
package disk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/grovedb/grove/core/storage/page"
)

const (
	// DefaultPageSize is the page size in bytes unless configured otherwise.
	DefaultPageSize = 4096

	dbMagic       uint32 = 0x47524F56 // "GROV"
	formatVersion uint32 = 1
)

var (
	ErrIO               = errors.New("i/o error")
	ErrInvalidPageID    = errors.New("page id invalid or past end of file")
	ErrBadMagic         = errors.New("file is not a grove database")
	ErrPageSizeMismatch = errors.New("file page size does not match configured page size")
)

// File header, stored in page 0:
//
//	offset  0: magic (uint32)
//	offset  4: format version (uint32)
//	offset  8: page size (uint32)
//	offset 12: reserved
//	offset 16: page count (uint64)
const (
	offMagic     = 0
	offVersion   = 4
	offPageSize  = 8
	offPageCount = 16
)

// Manager owns one database file and serves page-granular reads and writes
// at offset id*pageSize. Page 0 is the file header and is never allocated
// to callers. Deallocated pages go to an in-memory free list and are reused
// by later allocations; the file itself is not shrunk.
type Manager struct {
	filePath string
	file     *os.File
	pageSize int
	numPages uint64
	freeList []page.PageID
	mu       sync.Mutex
	logger   *zap.Logger
}

// NewManager opens the database file at filePath, creating and formatting
// it if absent. An existing file must carry the grove magic and the same
// page size.
func NewManager(filePath string, pageSize int, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	file, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrIO, filePath, err)
	}
	dm := &Manager{
		filePath: filePath,
		file:     file,
		pageSize: pageSize,
		logger:   logger.Named("disk_manager"),
	}

	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: stating %s: %v", ErrIO, filePath, err)
	}
	if fi.Size() == 0 {
		// Fresh file: page 0 becomes the header.
		dm.numPages = 1
		if err := dm.writeHeader(); err != nil {
			file.Close()
			return nil, err
		}
		dm.logger.Info("created database file",
			zap.String("path", filePath), zap.Int("page_size", pageSize))
		return dm, nil
	}

	if err := dm.readHeader(); err != nil {
		file.Close()
		return nil, err
	}
	dm.logger.Info("opened database file",
		zap.String("path", filePath), zap.Uint64("pages", dm.numPages))
	return dm, nil
}

func (dm *Manager) writeHeader() error {
	buf := make([]byte, dm.pageSize)
	binary.LittleEndian.PutUint32(buf[offMagic:], dbMagic)
	binary.LittleEndian.PutUint32(buf[offVersion:], formatVersion)
	binary.LittleEndian.PutUint32(buf[offPageSize:], uint32(dm.pageSize))
	binary.LittleEndian.PutUint64(buf[offPageCount:], dm.numPages)
	if _, err := dm.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("%w: writing file header: %v", ErrIO, err)
	}
	return nil
}

func (dm *Manager) readHeader() error {
	buf := make([]byte, dm.pageSize)
	if _, err := dm.file.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("%w: reading file header: %v", ErrIO, err)
	}
	if binary.LittleEndian.Uint32(buf[offMagic:]) != dbMagic {
		return fmt.Errorf("%w: %s", ErrBadMagic, dm.filePath)
	}
	if filePageSize := int(binary.LittleEndian.Uint32(buf[offPageSize:])); filePageSize != dm.pageSize {
		return fmt.Errorf("%w: file has %d, configured %d", ErrPageSizeMismatch, filePageSize, dm.pageSize)
	}
	dm.numPages = binary.LittleEndian.Uint64(buf[offPageCount:])
	if dm.numPages == 0 {
		dm.numPages = 1
	}
	return nil
}

// PageSize returns the configured page size in bytes.
func (dm *Manager) PageSize() int { return dm.pageSize }

// Allocate hands out a fresh page id, reusing a deallocated page when one
// is available and extending the file otherwise. New pages are zero-filled
// on disk before the id is returned.
func (dm *Manager) Allocate() (page.PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if n := len(dm.freeList); n > 0 {
		id := dm.freeList[n-1]
		dm.freeList = dm.freeList[:n-1]
		return id, nil
	}

	id := page.PageID(dm.numPages)
	zero := make([]byte, dm.pageSize)
	if _, err := dm.file.WriteAt(zero, int64(id)*int64(dm.pageSize)); err != nil {
		return page.InvalidPageID, fmt.Errorf("%w: extending file for page %d: %v", ErrIO, id, err)
	}
	dm.numPages++
	if err := dm.writeHeader(); err != nil {
		dm.numPages--
		return page.InvalidPageID, err
	}
	return id, nil
}

// Deallocate returns a page to the free list for reuse.
func (dm *Manager) Deallocate(id page.PageID) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if id == page.InvalidPageID || uint64(id) >= dm.numPages {
		return
	}
	dm.freeList = append(dm.freeList, id)
}

// ReadPage fills buf with the page's on-disk bytes. buf must be pageSize long.
func (dm *Manager) ReadPage(id page.PageID, buf []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if id == page.InvalidPageID || uint64(id) >= dm.numPages {
		return fmt.Errorf("%w: %d", ErrInvalidPageID, id)
	}
	if _, err := dm.file.ReadAt(buf[:dm.pageSize], int64(id)*int64(dm.pageSize)); err != nil {
		return fmt.Errorf("%w: reading page %d: %v", ErrIO, id, err)
	}
	return nil
}

// WritePage writes buf as the page's on-disk bytes.
func (dm *Manager) WritePage(id page.PageID, buf []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if id == page.InvalidPageID || uint64(id) >= dm.numPages {
		return fmt.Errorf("%w: %d", ErrInvalidPageID, id)
	}
	if _, err := dm.file.WriteAt(buf[:dm.pageSize], int64(id)*int64(dm.pageSize)); err != nil {
		return fmt.Errorf("%w: writing page %d: %v", ErrIO, id, err)
	}
	return nil
}

// Sync flushes the file to stable storage.
func (dm *Manager) Sync() error {
	if err := dm.file.Sync(); err != nil {
		return fmt.Errorf("%w: syncing %s: %v", ErrIO, dm.filePath, err)
	}
	return nil
}

// Close syncs and closes the file.
func (dm *Manager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return nil
	}
	if err := dm.file.Sync(); err != nil {
		dm.file.Close()
		dm.file = nil
		return fmt.Errorf("%w: syncing on close: %v", ErrIO, err)
	}
	err := dm.file.Close()
	dm.file = nil
	if err != nil {
		return fmt.Errorf("%w: closing %s: %v", ErrIO, dm.filePath, err)
	}
	return nil
}
