// Package seginfo names and discovers the data and hint files that make up
// a bitkv directory.
//
// Filename format: a zero-padded, fixed-width decimal file_id plus a fixed
// suffix — "000000001.data", "000000001.hint". Unlike a timestamped naming
// scheme, this format is stable for the lifetime of a file_id: LogPointers
// reference a file_id directly, and the file_id must be recoverable from the
// name alone without any other metadata.
package seginfo

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	// DataSuffix is the fixed suffix for data segment files.
	DataSuffix = ".data"

	// HintSuffix is the fixed suffix for hint files.
	HintSuffix = ".hint"

	// idWidth is the zero-padded width of the file_id component. Names sort
	// lexicographically for every file_id below one billion; larger ids are
	// printed with 10 digits and do not.
	idWidth = 9
)

// DataFileName returns the on-disk filename for a data segment's id.
func DataFileName(id uint32) string {
	return fmt.Sprintf("%0*d%s", idWidth, id, DataSuffix)
}

// HintFileName returns the on-disk filename for a segment's hint file.
func HintFileName(id uint32) string {
	return fmt.Sprintf("%0*d%s", idWidth, id, HintSuffix)
}

// ParseFileID extracts the file_id from a data or hint filename, ignoring
// any directory component.
func ParseFileID(path string) (uint32, error) {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, DataSuffix)
	name = strings.TrimSuffix(name, HintSuffix)

	id, err := strconv.ParseUint(name, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("seginfo: %q does not match the file_id naming convention: %w", path, err)
	}

	return uint32(id), nil
}

// ListDataFileIDs returns every data segment's file_id found in dir, sorted
// ascending.
func ListDataFileIDs(dir string) ([]uint32, error) {
	return listIDs(dir, "*"+DataSuffix)
}

// ListHintFileIDs returns every hint file's file_id found in dir, sorted
// ascending.
func ListHintFileIDs(dir string) ([]uint32, error) {
	return listIDs(dir, "*"+HintSuffix)
}

func listIDs(dir, pattern string) ([]uint32, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("seginfo: failed to scan %s for %s: %w", dir, pattern, err)
	}

	ids := make([]uint32, 0, len(matches))
	for _, m := range matches {
		id, err := ParseFileID(m)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
