// Package merge holds the engine-independent pieces of compaction: the hint
// file codec and the merge-finished marker. The six-step compaction
// protocol itself needs a staging Engine and the live Engine's write lock,
// so it lives in internal/engine/merge.go; this package is the leaf it is
// built on.
package merge

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/KevinZh0A/bitkv/internal/record"
	"github.com/KevinZh0A/bitkv/pkg/errors"
)

// HintEntry is one line of a hint file: the key, its sequence number, and
// the LogPointer to its rewritten location in the compacted segment.
type HintEntry struct {
	Key      []byte
	Sequence uint64
	Pointer  record.LogPointer
}

// HintWriter appends HintEntry records to a segment's hint file during
// merge.
type HintWriter struct {
	f *os.File
	w *bufio.Writer
}

// CreateHintFile creates (truncating if present) the hint file at path.
func CreateHintFile(path string) (*HintWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, path, path)
	}
	return &HintWriter{f: f, w: bufio.NewWriter(f)}, nil
}

// Append writes one entry to the hint file.
func (h *HintWriter) Append(e HintEntry) error {
	var hdr [binary.MaxVarintLen64 * 4]byte
	n := binary.PutUvarint(hdr[0:], uint64(len(e.Key)))
	n += binary.PutUvarint(hdr[n:], e.Sequence)
	n += binary.PutUvarint(hdr[n:], uint64(e.Pointer.FileID))
	n += binary.PutUvarint(hdr[n:], e.Pointer.Offset)
	n += binary.PutUvarint(hdr[n:], uint64(e.Pointer.Size))

	if _, err := h.w.Write(hdr[:n]); err != nil {
		return err
	}
	_, err := h.w.Write(e.Key)
	return err
}

// Close flushes and syncs the hint file.
func (h *HintWriter) Close() error {
	if err := h.w.Flush(); err != nil {
		return err
	}
	if err := h.f.Sync(); err != nil {
		return err
	}
	return h.f.Close()
}

// LoadHint reads every entry from the hint file at path, in write order.
func LoadHint(path string) ([]HintEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, path, path)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var entries []HintEntry

	for {
		keyLen, err := binary.ReadUvarint(r)
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.NewUnexpectedEOFError(path, -1, err)
		}

		seq, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, errors.NewUnexpectedEOFError(path, -1, err)
		}
		fileID, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, errors.NewUnexpectedEOFError(path, -1, err)
		}
		offset, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, errors.NewUnexpectedEOFError(path, -1, err)
		}
		size, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, errors.NewUnexpectedEOFError(path, -1, err)
		}

		key := make([]byte, keyLen)
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, errors.NewUnexpectedEOFError(path, -1, err)
		}

		entries = append(entries, HintEntry{
			Key:      key,
			Sequence: seq,
			Pointer:  record.LogPointer{FileID: uint32(fileID), Offset: offset, Size: uint32(size)},
		})
	}

	return entries, nil
}
