package merge

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"

	atomicfile "github.com/natefinch/atomic"

	"github.com/KevinZh0A/bitkv/pkg/errors"
)

// MarkerFileName is the merge-finished marker's fixed name within a
// directory.
const MarkerFileName = "merge-finished"

// WriteMarker atomically writes the merge-finished marker into dir,
// recording unmergedFileID: the exclusive upper bound file_id up to which
// compaction completed. The write goes through
// atomic.WriteFile so a crash mid-write never leaves a half-written marker
// that a subsequent Open could misread.
func WriteMarker(dir string, unmergedFileID uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], unmergedFileID)

	path := filepath.Join(dir, MarkerFileName)
	if err := atomicfile.WriteFile(path, bytes.NewReader(buf[:])); err != nil {
		return errors.ClassifySyncError(err, MarkerFileName, path, 0)
	}
	return nil
}

// ReadMarker reads the merge-finished marker from dir, if present.
func ReadMarker(dir string) (unmergedFileID uint32, present bool, err error) {
	path := filepath.Join(dir, MarkerFileName)

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return 0, false, nil
		}
		return 0, false, errors.ClassifyFileOpenError(readErr, path, MarkerFileName)
	}

	if len(data) != 4 {
		return 0, false, errors.NewUnexpectedEOFError(MarkerFileName, 0, nil)
	}

	return binary.BigEndian.Uint32(data), true, nil
}

// RemoveMarker deletes the merge-finished marker from dir, if present.
func RemoveMarker(dir string) error {
	path := filepath.Join(dir, MarkerFileName)
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
