package engine

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	atomicfile "github.com/natefinch/atomic"

	"github.com/KevinZh0A/bitkv/internal/datafile"
	"github.com/KevinZh0A/bitkv/internal/merge"
	"github.com/KevinZh0A/bitkv/internal/record"
	"github.com/KevinZh0A/bitkv/pkg/filesys"
	"github.com/KevinZh0A/bitkv/pkg/seginfo"
)

// seqNoFileName is the optional snapshot of the last allocated sequence
// number. It is written on Close and after every merge, so that sequence
// numbers continue monotonically after reopen even when the segment scan
// observes nothing (an empty tail, or a B+tree index that was already
// current).
const seqNoFileName = "seq-no.dat"

// pendingRecord is one replayed record waiting for its group's commit
// marker before it may touch the keydir.
type pendingRecord struct {
	rec *record.Record
	ptr record.LogPointer
}

// loadDataFiles enumerates the directory's segments in ascending file_id
// order, opens all but the highest read-only (mmap-backed when
// mmap_at_startup is set), and designates the highest as the active,
// writable segment. An empty directory gets a fresh segment with file_id 1.
func (e *Engine) loadDataFiles() error {
	dir := e.options.DataDir

	ids, err := seginfo.ListDataFileIDs(dir)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		df, err := datafile.Create(dir, 1)
		if err != nil {
			return err
		}
		e.activeFile = df
		return nil
	}

	for _, id := range ids[:len(ids)-1] {
		df, err := datafile.OpenImmutable(dir, id, e.options.MmapAtStartup)
		if err != nil {
			return err
		}
		e.olderFiles[id] = df
	}

	active, err := datafile.OpenWritable(dir, ids[len(ids)-1])
	if err != nil {
		return err
	}
	e.activeFile = active
	return nil
}

// loadIndex rebuilds the keydir from disk. For each segment, a hint file —
// if one exists — is loaded first, and the scan resumes from the end of the
// hint-covered prefix. Scanned records are buffered by write-group id and
// applied only when the group's BatchCommit marker is reached; groups left
// without a marker at the end of the log are discarded as uncommitted, and
// their bytes accounted as reclaimable. A decode failure in the active
// segment's tail truncates the segment at the last good record boundary; a
// decode failure in any immutable segment is fatal.
func (e *Engine) loadIndex() error {
	dir := e.options.DataDir
	pending := make(map[uint64][]pendingRecord)
	var maxSeq uint64

	for _, id := range e.sortedFileIDs() {
		df := e.fileByID(id)

		var scanFrom uint64
		hintPath := filepath.Join(dir, seginfo.HintFileName(id))
		if ok, _ := filesys.Exists(hintPath); ok {
			covered, seq, err := e.loadHintFile(hintPath)
			if err != nil {
				return err
			}
			scanFrom = covered
			if seq > maxSeq {
				maxSeq = seq
			}
		}

		seq, err := e.scanSegment(df, scanFrom, pending)
		if err != nil {
			return err
		}
		if seq > maxSeq {
			maxSeq = seq
		}
	}

	for group, records := range pending {
		e.log.Warnw("discarding uncommitted write group found at startup",
			"group", group, "records", len(records))
		for _, p := range records {
			e.addReclaimableLocked(p.ptr.FileID, uint64(p.ptr.Size))
		}
	}

	persisted, err := loadSeqNo(dir)
	if err != nil {
		return err
	}
	if persisted > maxSeq {
		maxSeq = persisted
	}
	e.maxSeq = maxSeq
	e.groupSeq = maxSeq >> seqGroupBits
	return nil
}

// loadHintFile applies every entry of the hint file at path to the keydir
// and reports the end of the byte range the hint covers plus the highest
// sequence it mentions. Hint entries were live committed records when the
// hint was written, so they bypass the pending-group machinery.
func (e *Engine) loadHintFile(path string) (covered uint64, maxSeq uint64, err error) {
	entries, err := merge.LoadHint(path)
	if err != nil {
		return 0, 0, err
	}

	for _, h := range entries {
		if h.Sequence > maxSeq {
			maxSeq = h.Sequence
		}
		if end := h.Pointer.Offset + uint64(h.Pointer.Size); end > covered {
			covered = end
		}
		if prior := e.keydir.Put(h.Key, h.Pointer); prior != nil && *prior != h.Pointer {
			e.addReclaimableLocked(prior.FileID, uint64(prior.Size))
		}
	}
	return covered, maxSeq, nil
}

// scanSegment decodes df's records from offset onward, buffering entries by
// write group and applying each group at its commit marker.
func (e *Engine) scanSegment(df *datafile.DataFile, offset uint64, pending map[uint64][]pendingRecord) (uint64, error) {
	var maxSeq uint64

	for {
		rec, size, err := df.ReadRecord(offset)
		if err == io.EOF {
			return maxSeq, nil
		}
		if err != nil {
			if df == e.activeFile {
				// Crash mid-append: everything before this offset decoded
				// cleanly, so resume writing from here.
				e.log.Warnw("truncating corrupt segment tail",
					"fileID", df.ID, "offset", offset, "error", err)
				return maxSeq, df.SetOffset(offset)
			}
			return maxSeq, err
		}

		if rec.Sequence > maxSeq {
			maxSeq = rec.Sequence
		}

		ptr := record.LogPointer{FileID: df.ID, Offset: offset, Size: size}
		group := rec.Sequence >> seqGroupBits

		if rec.Type == record.BatchCommit {
			for _, p := range pending[group] {
				e.applyReplayedRecord(p)
			}
			delete(pending, group)
			e.addReclaimableLocked(ptr.FileID, uint64(ptr.Size))
		} else {
			pending[group] = append(pending[group], pendingRecord{rec: rec, ptr: ptr})
		}

		offset += uint64(size)
	}
}

// applyReplayedRecord folds one committed record into the keydir, keeping
// the reclaimable-byte accounting consistent with the live write path. The
// prior-equals-new guard keeps a reopened B+tree index — which already
// holds the same pointers the scan produces — from double-counting.
func (e *Engine) applyReplayedRecord(p pendingRecord) {
	if p.rec.Type == record.Tombstone {
		e.addReclaimableLocked(p.ptr.FileID, uint64(p.ptr.Size))
		if prior := e.keydir.Delete(p.rec.Key); prior != nil {
			e.addReclaimableLocked(prior.FileID, uint64(prior.Size))
		}
		return
	}

	if prior := e.keydir.Put(p.rec.Key, p.ptr); prior != nil && *prior != p.ptr {
		e.addReclaimableLocked(prior.FileID, uint64(prior.Size))
	}
}

// loadSeqNo reads the persisted sequence counter, if present.
func loadSeqNo(dir string) (uint64, error) {
	path := filepath.Join(dir, seqNoFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	seq, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		// A torn counter file is recoverable: replay already derived the
		// maximum sequence from the log itself.
		return 0, nil
	}
	return seq, nil
}

// persistSeqNoLocked atomically snapshots the highest allocated sequence
// number to seq-no.dat. Callers must hold mu.
func (e *Engine) persistSeqNoLocked() error {
	path := filepath.Join(e.options.DataDir, seqNoFileName)
	payload := strconv.FormatUint(e.maxSeq, 10)
	return atomicfile.WriteFile(path, strings.NewReader(payload))
}
