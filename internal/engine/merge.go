package engine

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/KevinZh0A/bitkv/internal/datafile"
	"github.com/KevinZh0A/bitkv/internal/merge"
	"github.com/KevinZh0A/bitkv/internal/record"
	"github.com/KevinZh0A/bitkv/pkg/errors"
	"github.com/KevinZh0A/bitkv/pkg/filesys"
	"github.com/KevinZh0A/bitkv/pkg/options"
	"github.com/KevinZh0A/bitkv/pkg/seginfo"
)

// mergeDirSuffix names the staging directory merge writes its compacted
// output into, rooted next to the live directory.
const mergeDirSuffix = "-merge"

// Merge compacts the log: every record still referenced by the keydir is
// rewritten from the immutable segments into a staging engine, paired with
// a hint file per compacted segment, and the staging output then atomically
// replaces the merged segments. Only one merge may run at a time; a
// concurrent call fails with ErrMergeInProgress. A merge whose reclaimable
// ratio is below data_file_merge_ratio is a no-op.
func (e *Engine) Merge() error {
	if e.closed.Load() {
		return errors.ErrEngineClosed
	}
	if !e.merging.CompareAndSwap(false, true) {
		return errors.ErrMergeInProgress
	}
	defer e.merging.Store(false)

	e.mu.Lock()

	var reclaimable uint64
	for _, n := range e.reclaimable {
		reclaimable += n
	}
	diskSize, err := dirSize(e.options.DataDir)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if diskSize > 0 && float64(reclaimable)/float64(diskSize) < e.options.DataFileMergeRatio {
		e.mu.Unlock()
		e.log.Infow("merge skipped: reclaimable ratio below threshold",
			"reclaimable", reclaimable,
			"diskSize", diskSize,
			"ratio", e.options.DataFileMergeRatio,
		)
		return nil
	}

	// Seal the active segment so the merge boundary is a whole file; every
	// immutable file_id below the new active one is mergeable.
	if e.activeFile.WriteOffset() > 0 {
		if err := e.rotateLocked(); err != nil {
			e.mu.Unlock()
			return err
		}
	}
	unmergedFileID := e.activeFile.ID

	mergeIDs := make([]uint32, 0, len(e.olderFiles))
	mergeFiles := make(map[uint32]*datafile.DataFile, len(e.olderFiles))
	for _, id := range e.sortedFileIDs() {
		if id < unmergedFileID {
			mergeIDs = append(mergeIDs, id)
			mergeFiles[id] = e.olderFiles[id]
		}
	}
	e.mu.Unlock()

	if len(mergeIDs) == 0 {
		return nil
	}

	e.log.Infow("merge started",
		"mergeableSegments", len(mergeIDs), "unmergedFileID", unmergedFileID)

	stagingDir := stagingDirFor(e.options.DataDir)
	if err := e.writeStagingOutput(stagingDir, mergeIDs, mergeFiles, unmergedFileID); err != nil {
		filesys.DeleteDir(stagingDir)
		return err
	}

	return e.installMergedSegments(stagingDir, mergeIDs, unmergedFileID)
}

// writeStagingOutput runs the read-heavy middle of the protocol without the
// write lock: a staging engine is opened under stagingDir, every live
// record from the mergeable segments is rewritten into it alongside its
// hint entry, and the merge-finished marker seals the result.
func (e *Engine) writeStagingOutput(
	stagingDir string,
	mergeIDs []uint32,
	mergeFiles map[uint32]*datafile.DataFile,
	unmergedFileID uint32,
) error {
	// Leftovers from a previous failed merge are garbage by definition: the
	// absence of a marker means it never completed.
	if err := filesys.DeleteDir(stagingDir); err != nil {
		return err
	}

	stagingOpts := *e.options
	stagingOpts.DataDir = stagingDir
	stagingOpts.SyncWrites = false
	stagingOpts.BytesPerSync = 0
	stagingOpts.MmapAtStartup = false
	// The staging keydir is never read; the cheap in-memory variant avoids
	// dragging a B+tree index file into the staging directory.
	stagingOpts.IndexType = options.IndexTypeBTree

	staging, err := Open(context.Background(), &stagingOpts, e.log.Named("merge"))
	if err != nil {
		return err
	}
	defer staging.Close()

	var hintWriter *merge.HintWriter
	var hintFileID uint32
	defer func() {
		if hintWriter != nil {
			hintWriter.Close()
		}
	}()

	for _, id := range mergeIDs {
		df := mergeFiles[id]
		var offset uint64
		for {
			rec, size, err := df.ReadRecord(offset)
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}

			if rec.Type == record.Normal {
				// The record is live iff the keydir still points at this
				// exact location.
				if ptr, ok := e.keydir.Get(rec.Key); ok && ptr.FileID == id && ptr.Offset == offset {
					newPtr, err := staging.appendMergeRecord(rec)
					if err != nil {
						return err
					}

					if hintWriter == nil || hintFileID != newPtr.FileID {
						if hintWriter != nil {
							if err := hintWriter.Close(); err != nil {
								return err
							}
						}
						hintPath := filepath.Join(stagingDir, seginfo.HintFileName(newPtr.FileID))
						if hintWriter, err = merge.CreateHintFile(hintPath); err != nil {
							return err
						}
						hintFileID = newPtr.FileID
					}

					if err := hintWriter.Append(merge.HintEntry{
						Key:      rec.Key,
						Sequence: rec.Sequence,
						Pointer:  newPtr,
					}); err != nil {
						return err
					}
				}
			}

			offset += uint64(size)
		}
	}

	if hintWriter != nil {
		err := hintWriter.Close()
		hintWriter = nil
		if err != nil {
			return err
		}
	}
	if err := staging.Sync(); err != nil {
		return err
	}

	return merge.WriteMarker(stagingDir, unmergedFileID)
}

// installMergedSegments is the epilogue, run under the write lock: the
// merged segments are deleted from the live directory, the staging output
// moves in, the affected keydir entries are repointed at the compacted
// segments via their hint files, and the sequence counter is persisted.
func (e *Engine) installMergedSegments(stagingDir string, mergeIDs []uint32, unmergedFileID uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	dir := e.options.DataDir

	for _, id := range mergeIDs {
		if df := e.olderFiles[id]; df != nil {
			df.Close()
			delete(e.olderFiles, id)
		}
		if err := os.Remove(filepath.Join(dir, seginfo.DataFileName(id))); err != nil && !os.IsNotExist(err) {
			return err
		}
		if err := os.Remove(filepath.Join(dir, seginfo.HintFileName(id))); err != nil && !os.IsNotExist(err) {
			return err
		}
		delete(e.reclaimable, id)
	}

	if err := moveMergeOutput(stagingDir, dir); err != nil {
		return err
	}
	if err := filesys.DeleteDir(stagingDir); err != nil {
		return err
	}

	movedIDs, err := seginfo.ListDataFileIDs(dir)
	if err != nil {
		return err
	}
	for _, id := range movedIDs {
		if id >= unmergedFileID {
			continue
		}

		df, err := datafile.OpenImmutable(dir, id, false)
		if err != nil {
			return err
		}
		e.olderFiles[id] = df

		hintPath := filepath.Join(dir, seginfo.HintFileName(id))
		if ok, _ := filesys.Exists(hintPath); !ok {
			continue
		}
		entries, err := merge.LoadHint(hintPath)
		if err != nil {
			return err
		}
		for _, h := range entries {
			// Entries overwritten or deleted while the merge ran already
			// point past the merge boundary; only stale pointers into the
			// just-deleted segments are rewritten.
			if cur, ok := e.keydir.Get(h.Key); ok && cur.FileID < unmergedFileID {
				e.keydir.Put(h.Key, h.Pointer)
			}
		}
	}

	if err := e.persistSeqNoLocked(); err != nil {
		return err
	}

	e.log.Infow("merge completed",
		"mergedSegments", len(mergeIDs),
		"compactedSegments", len(movedIDs),
		"unmergedFileID", unmergedFileID,
	)
	return nil
}

// appendMergeRecord appends a record rewritten by merge into the staging
// engine's log, rotating segments as needed. The record keeps its original
// sequence number and bypasses the keydir and commit-marker machinery
// entirely: merged records were already committed in their source segment,
// and the hint file written alongside them is what replay will load.
func (e *Engine) appendMergeRecord(rec *record.Record) (record.LogPointer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ptr, _, err := e.appendLocked(rec)
	return ptr, err
}

// recoverFromMerge adopts or discards a staging directory left behind by a
// crash. A staging directory carrying a merge-finished marker is complete:
// the segments it replaced are deleted from the live directory and its
// contents move in, exactly as the merge epilogue would have done. A
// staging directory without a marker never finished and is discarded.
func (e *Engine) recoverFromMerge() error {
	dir := e.options.DataDir
	stagingDir := stagingDirFor(dir)

	ok, err := filesys.Exists(stagingDir)
	if err != nil || !ok {
		return err
	}

	unmergedFileID, present, err := merge.ReadMarker(stagingDir)
	if err != nil {
		return errors.NewStorageError(errors.ErrMergeMarkerMissing,
			errors.ErrorCodeMergeMarkerMissing,
			"staging directory has an unreadable merge marker").
			WithPath(stagingDir).
			WithDetail("cause", err.Error())
	}
	if !present {
		e.log.Warnw("discarding incomplete merge staging directory", "dir", stagingDir)
		return filesys.DeleteDir(stagingDir)
	}

	ids, err := seginfo.ListDataFileIDs(dir)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id >= unmergedFileID {
			continue
		}
		if err := os.Remove(filepath.Join(dir, seginfo.DataFileName(id))); err != nil && !os.IsNotExist(err) {
			return err
		}
		if err := os.Remove(filepath.Join(dir, seginfo.HintFileName(id))); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	if err := moveMergeOutput(stagingDir, dir); err != nil {
		return err
	}
	if err := filesys.DeleteDir(stagingDir); err != nil {
		return err
	}

	e.log.Infow("adopted completed merge after restart",
		"stagingDir", stagingDir, "unmergedFileID", unmergedFileID)
	return nil
}

// moveMergeOutput renames the staging directory's data segments, hint
// files, and merge-finished marker into the live directory, skipping the
// staging engine's own bookkeeping files (its lock and sequence snapshot).
func moveMergeOutput(stagingDir, dir string) error {
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		keep := strings.HasSuffix(name, seginfo.DataSuffix) ||
			strings.HasSuffix(name, seginfo.HintSuffix) ||
			name == merge.MarkerFileName
		if !keep {
			continue
		}
		if err := os.Rename(filepath.Join(stagingDir, name), filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// stagingDirFor derives the staging directory path for a live directory.
func stagingDirFor(dir string) string {
	return filepath.Clean(dir) + mergeDirSuffix
}
