// Package datafile implements one numbered segment of the log: the
// combination of an iohandle.Handle and a monotonically increasing
// write offset that the record codec is appended into and read back from.
package datafile

import (
	"bufio"
	"io"
	"path/filepath"

	"github.com/KevinZh0A/bitkv/internal/iohandle"
	"github.com/KevinZh0A/bitkv/internal/record"
	"github.com/KevinZh0A/bitkv/pkg/errors"
	"github.com/KevinZh0A/bitkv/pkg/seginfo"
)

// DataFile owns one segment's IOHandle and tracks the offset the next
// record will be written at (if the segment is still the active, writable
// one).
type DataFile struct {
	ID          uint32
	path        string
	handle      iohandle.Handle
	writeOffset uint64
	readOnly    bool
}

// Create opens a brand-new, empty, writable segment for id under dir.
func Create(dir string, id uint32) (*DataFile, error) {
	path := filepath.Join(dir, seginfo.DataFileName(id))
	h, err := iohandle.OpenFile(path)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, dir, seginfo.DataFileName(id))
	}
	return &DataFile{ID: id, path: path, handle: h}, nil
}

// OpenWritable reopens an existing segment for continued appends, used when
// replay designates the highest file_id as the active segment.
func OpenWritable(dir string, id uint32) (*DataFile, error) {
	path := filepath.Join(dir, seginfo.DataFileName(id))
	h, err := iohandle.OpenFile(path)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, dir, seginfo.DataFileName(id))
	}

	size, err := h.Size()
	if err != nil {
		h.Close()
		return nil, err
	}

	return &DataFile{ID: id, path: path, handle: h, writeOffset: uint64(size)}, nil
}

// OpenImmutable opens an existing, sealed segment read-only, backed by mmap
// when useMmap is set.
func OpenImmutable(dir string, id uint32, useMmap bool) (*DataFile, error) {
	path := filepath.Join(dir, seginfo.DataFileName(id))

	var h iohandle.Handle
	var err error
	if useMmap {
		h, err = iohandle.OpenMmap(path)
	} else {
		h, err = iohandle.OpenFileReadOnly(path)
	}
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, dir, seginfo.DataFileName(id))
	}

	size, err := h.Size()
	if err != nil {
		h.Close()
		return nil, err
	}

	return &DataFile{ID: id, path: path, handle: h, writeOffset: uint64(size), readOnly: true}, nil
}

// WriteOffset returns the next offset a write would land at.
func (d *DataFile) WriteOffset() uint64 { return d.writeOffset }

// Path returns the segment's file path, used by merge and backup.
func (d *DataFile) Path() string { return d.path }

// offsetWriter adapts a Handle's positioned writes to the io.Writer the
// record codec encodes into, advancing past each write.
type offsetWriter struct {
	h   iohandle.Handle
	off int64
}

func (w *offsetWriter) Write(p []byte) (int, error) {
	n, err := w.h.WriteAt(p, w.off)
	w.off += int64(n)
	return n, err
}

// Append encodes rec and writes it at the current write offset, returning a
// LogPointer to the freshly written record and its encoded length.
func (d *DataFile) Append(rec *record.Record) (record.LogPointer, int, error) {
	if d.readOnly {
		return record.LogPointer{}, 0, errors.ErrUnsupported
	}

	off := d.writeOffset
	n, err := record.Encode(&offsetWriter{h: d.handle, off: int64(off)}, rec)
	if err != nil {
		return record.LogPointer{}, 0, errors.ClassifySyncError(err, seginfo.DataFileName(d.ID), d.path, int(off))
	}
	d.writeOffset += uint64(n)

	return record.LogPointer{FileID: d.ID, Offset: off, Size: uint32(n)}, n, nil
}

// readBufferSize is the buffered-reader size ReadRecord decodes through:
// large enough that a typical record costs one ReadAt, small enough that a
// point read never drags in a meaningful slice of the segment.
const readBufferSize = 4 * 1024

// ReadRecord decodes exactly one record starting at offset, returning the
// record and its encoded length. The decode streams through a bounded
// section of the segment, which keeps the truncated-vs-corrupt distinction
// in Decode's hands instead of guessing a header size up front.
func (d *DataFile) ReadRecord(offset uint64) (*record.Record, uint32, error) {
	name := seginfo.DataFileName(d.ID)

	size, err := d.handle.Size()
	if err != nil {
		return nil, 0, err
	}
	if int64(offset) >= size {
		return nil, 0, io.EOF
	}

	section := io.NewSectionReader(d.handle, int64(offset), size-int64(offset))
	rec, consumed, err := record.Decode(bufio.NewReaderSize(section, readBufferSize), name, int(offset))
	if err != nil {
		return nil, uint32(consumed), err
	}
	return rec, uint32(consumed), nil
}

// Sync flushes the segment durably to disk.
func (d *DataFile) Sync() error {
	if err := d.handle.Sync(); err != nil {
		return errors.ClassifySyncError(err, seginfo.DataFileName(d.ID), d.path, int(d.writeOffset))
	}
	return nil
}

// SetOffset truncates the segment to o and repositions the write cursor
// there. Used by replay to discard a trailing partially-written record
// after a crash mid-append.
func (d *DataFile) SetOffset(o uint64) error {
	if err := d.handle.Truncate(int64(o)); err != nil {
		return err
	}
	d.writeOffset = o
	return nil
}

// Seal closes the writable handle and reopens the segment read-only,
// optionally mmap'd, converting it from the active segment into an
// immutable one.
func (d *DataFile) Seal(useMmap bool) error {
	if err := d.handle.Sync(); err != nil {
		return err
	}
	if err := d.handle.Close(); err != nil {
		return err
	}

	var h iohandle.Handle
	var err error
	if useMmap {
		h, err = iohandle.OpenMmap(d.path)
	} else {
		h, err = iohandle.OpenFileReadOnly(d.path)
	}
	if err != nil {
		return err
	}

	d.handle = h
	d.readOnly = true
	return nil
}

// Size returns the segment's current on-disk length.
func (d *DataFile) Size() (int64, error) { return d.handle.Size() }

// Close releases the segment's handle.
func (d *DataFile) Close() error { return d.handle.Close() }
