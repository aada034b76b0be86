// Package iohandle provides the uniform read/write/sync/size interface the
// rest of bitkv uses to talk to a segment file, with two interchangeable
// backings: a buffered *os.File for the writable tail, and a read-only mmap
// view for immutable segments.
package iohandle

import (
	"io"
	"os"

	"github.com/edsrzf/mmap-go"

	errs "github.com/KevinZh0A/bitkv/pkg/errors"
)

// Handle is the minimal surface every segment backing must provide. Writes
// are always positioned: there is no implicit append cursor, so a DataFile
// can reposition (e.g. after truncating a corrupt tail) just by changing the
// offset it passes to the next call.
type Handle interface {
	// WriteAt writes p at the given offset.
	WriteAt(p []byte, off int64) (int, error)
	// ReadAt reads len(p) bytes starting at off.
	ReadAt(p []byte, off int64) (int, error)
	// Sync flushes any buffered writes durably to disk.
	Sync() error
	// Size returns the current length of the underlying file.
	Size() (int64, error)
	// Truncate resizes the underlying file, used by replay to discard a
	// trailing corrupt or partially-written record.
	Truncate(size int64) error
	// Close releases the handle's resources.
	Close() error
}

// FileHandle is the buffered *os.File backing used for the active segment's
// writable tail.
type FileHandle struct {
	f *os.File
}

// OpenFile opens (creating if necessary) path for positioned reads and
// writes. The file is opened without O_APPEND: every write carries its own
// offset, so the OS cursor is never relied upon.
func OpenFile(path string) (*FileHandle, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return &FileHandle{f: f}, nil
}

// OpenFileReadOnly opens an existing file for read-only positioned reads,
// used for immutable segments that were not requested to be mmap'd.
func OpenFileReadOnly(path string) (*FileHandle, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileHandle{f: f}, nil
}

func (h *FileHandle) WriteAt(p []byte, off int64) (int, error) { return h.f.WriteAt(p, off) }
func (h *FileHandle) ReadAt(p []byte, off int64) (int, error)  { return h.f.ReadAt(p, off) }
func (h *FileHandle) Sync() error                              { return h.f.Sync() }
func (h *FileHandle) Truncate(size int64) error                { return h.f.Truncate(size) }
func (h *FileHandle) Close() error                             { return h.f.Close() }

func (h *FileHandle) Size() (int64, error) {
	fi, err := h.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// MmapHandle is a read-only mmap.MMap view over an immutable segment. It is
// used for accelerated reads on sealed segments and, when mmap_at_startup is
// configured, for replay scans too.
type MmapHandle struct {
	f    *os.File
	data mmap.MMap
}

// OpenMmap mmaps path read-only. The backing *os.File is kept open for the
// lifetime of the mapping and closed alongside it.
func OpenMmap(path string) (*MmapHandle, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0644)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	// mmap.Map refuses a zero-length mapping; an empty segment (e.g. one
	// opened at startup with mmap_at_startup set) falls back to an empty
	// in-memory view rather than erroring.
	if fi.Size() == 0 {
		return &MmapHandle{f: f, data: mmap.MMap{}}, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &MmapHandle{f: f, data: m}, nil
}

func (h *MmapHandle) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(h.data)) {
		return 0, io.EOF
	}
	n := copy(p, h.data[off:])
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func (h *MmapHandle) WriteAt(p []byte, off int64) (int, error) { return 0, errs.ErrUnsupported }
func (h *MmapHandle) Truncate(size int64) error                { return errs.ErrUnsupported }
func (h *MmapHandle) Sync() error                              { return nil }
func (h *MmapHandle) Size() (int64, error)                     { return int64(len(h.data)), nil }

func (h *MmapHandle) Close() error {
	if len(h.data) > 0 {
		if err := h.data.Unmap(); err != nil {
			h.f.Close()
			return err
		}
	}
	return h.f.Close()
}
