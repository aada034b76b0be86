// Package engine provides the core database engine implementation for the
// bitkv storage system.
//
// The engine serves as the central coordinator and entry point for all
// database operations. It orchestrates the interaction between the main
// subsystems:
//   - Keydir: the in-memory (or on-disk B+tree) index mapping every live key
//     to the log position of its most recent record
//   - DataFiles: the append-only segment log all mutations are written to
//   - Merge: the compaction process that rewrites live records into fresh
//     segments and reclaims superseded bytes
//
// The engine implements a thread-safe interface with proper lifecycle
// management. A single write mutex serializes every mutating operation
// (Put, Delete, batch commit, segment rotation, merge prologue/epilogue);
// readers take only the keydir's read path and the segment read path, so
// they never contend with each other.
package engine

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/KevinZh0A/bitkv/internal/datafile"
	"github.com/KevinZh0A/bitkv/internal/index"
	"github.com/KevinZh0A/bitkv/internal/index/bptree"
	"github.com/KevinZh0A/bitkv/internal/index/skiplist"
	"github.com/KevinZh0A/bitkv/internal/record"
	"github.com/KevinZh0A/bitkv/pkg/errors"
	"github.com/KevinZh0A/bitkv/pkg/filesys"
	"github.com/KevinZh0A/bitkv/pkg/logger"
	"github.com/KevinZh0A/bitkv/pkg/options"
)

const (
	// fileLockName is the lock file whose exclusive hold marks the directory
	// as owned by a live engine instance.
	fileLockName = "flock"

	// seqGroupBits is the width of the per-group component of a sequence
	// number. The high bits carry the write-group id (one id per Put, Delete,
	// or batch commit), the low bits the record's position within its group,
	// with the group's BatchCommit marker always holding the highest position.
	// Replay buffers records by group id and applies a group only when its
	// marker is seen, which is how a partial tail is detected and discarded.
	// options.MaxBatchNumLimit is derived from this width.
	seqGroupBits = 20
)

// Engine represents the main database engine that coordinates all
// subsystems. It acts as the primary interface for database operations and
// manages the lifecycle of all internal components.
type Engine struct {
	options *options.Options
	log     *zap.SugaredLogger

	// mu is the write mutex: held exclusively across every mutating
	// operation, including the fsync it may trigger. Readers take the read
	// side only to resolve a file_id to its open segment handle.
	mu         sync.RWMutex
	activeFile *datafile.DataFile
	olderFiles map[uint32]*datafile.DataFile
	keydir     index.KeyDir

	fileLock *flock.Flock
	closed   atomic.Bool
	merging  atomic.Bool

	// groupSeq is the last allocated write-group id; maxSeq the highest
	// sequence number ever appended. Both guarded by mu.
	groupSeq uint64
	maxSeq   uint64

	// bytesSinceSync counts payload appended since the last fsync, for the
	// bytes_per_sync policy. Guarded by mu.
	bytesSinceSync int64

	// reclaimable tracks superseded bytes per file_id: overwritten records,
	// tombstones, commit markers, and uncommitted tails. Merge uses the total
	// for its ratio gate and clears the entries of every file it rewrites.
	// Guarded by mu.
	reclaimable map[uint32]uint64
}

// Stats is a point-in-time snapshot of the engine's footprint.
type Stats struct {
	// KeyNum is the number of live keys in the keydir.
	KeyNum int
	// DataFileNum is the number of open segments, active file included.
	DataFileNum int
	// ReclaimableBytes is the total of superseded bytes a merge could free.
	ReclaimableBytes uint64
	// DiskSize is the total on-disk size of the data directory.
	DiskSize int64
}

// Open acquires ownership of the directory named by opts.DataDir and brings
// an Engine to its steady state: the directory file lock is taken (failing
// with ErrDatabaseInUse if another instance holds it), any interrupted merge
// is recovered, every segment is replayed into the keydir, and the highest
// file_id becomes the active, writable segment.
func Open(ctx context.Context, opts *options.Options, log *zap.SugaredLogger) (*Engine, error) {
	if log == nil {
		log = logger.Nop()
	}
	if opts == nil {
		defaults := options.NewDefaultOptions()
		opts = &defaults
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if err := filesys.CreateDir(opts.DataDir, 0755, true); err != nil {
		if ok, _ := filesys.Exists(opts.DataDir); !ok {
			return nil, errors.NewStorageError(errors.ErrDatabaseDirNotExist,
				errors.ErrorCodeDatabaseDirNotExist,
				"database directory does not exist and could not be created").
				WithPath(opts.DataDir).
				WithDetail("cause", err.Error())
		}
		return nil, errors.ClassifyDirectoryCreationError(err, opts.DataDir)
	}

	fileLock := flock.New(filepath.Join(opts.DataDir, fileLockName))
	held, err := fileLock.TryLock()
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, opts.DataDir, fileLockName)
	}
	if !held {
		return nil, errors.ErrDatabaseInUse
	}

	e := &Engine{
		options:     opts,
		log:         log,
		olderFiles:  make(map[uint32]*datafile.DataFile),
		fileLock:    fileLock,
		reclaimable: make(map[uint32]uint64),
	}

	if e.keydir, err = newKeyDir(opts); err != nil {
		fileLock.Unlock()
		return nil, err
	}

	if err := e.recoverFromMerge(); err != nil {
		e.releaseOnOpenFailure()
		return nil, err
	}
	if err := e.loadDataFiles(); err != nil {
		e.releaseOnOpenFailure()
		return nil, err
	}
	if err := e.loadIndex(); err != nil {
		e.releaseOnOpenFailure()
		return nil, err
	}

	log.Infow("engine opened",
		"dir", opts.DataDir,
		"segments", len(e.olderFiles)+1,
		"activeFileID", e.activeFile.ID,
		"keys", e.keydir.Size(),
		"indexType", opts.IndexType,
	)
	return e, nil
}

// newKeyDir constructs the keydir variant selected by opts.IndexType.
func newKeyDir(opts *options.Options) (index.KeyDir, error) {
	switch opts.IndexType {
	case options.IndexTypeSkipList:
		return skiplist.New(), nil
	case options.IndexTypeBPlusTree:
		return bptree.Open(opts.DataDir)
	default:
		return index.NewMapIndex(), nil
	}
}

// releaseOnOpenFailure unwinds the partially-opened state when Open fails
// after the file lock was taken.
func (e *Engine) releaseOnOpenFailure() {
	if e.activeFile != nil {
		e.activeFile.Close()
	}
	for _, df := range e.olderFiles {
		df.Close()
	}
	if e.keydir != nil {
		e.keydir.Close()
	}
	e.fileLock.Unlock()
}

// Put stores value under key, replacing any prior value. The write is
// appended to the active segment (rotating it first if the record would
// overflow the configured threshold) and then published to the keydir.
func (e *Engine) Put(key, value []byte) error {
	if e.closed.Load() {
		return errors.ErrEngineClosed
	}
	if len(key) == 0 {
		return errors.ErrEmptyKey
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ptrs, err := e.commitGroupLocked([]*record.Record{
		{Type: record.Normal, Key: key, Value: value},
	}, false)
	if err != nil {
		return err
	}

	if prior := e.keydir.Put(key, ptrs[0]); prior != nil {
		e.addReclaimableLocked(prior.FileID, uint64(prior.Size))
	}
	return nil
}

// Get returns the current value for key, or ErrKeyNotFound if the key has
// no live record.
func (e *Engine) Get(key []byte) ([]byte, error) {
	if e.closed.Load() {
		return nil, errors.ErrEngineClosed
	}
	if len(key) == 0 {
		return nil, errors.ErrEmptyKey
	}

	ptr, ok := e.keydir.Get(key)
	if !ok {
		return nil, errors.ErrKeyNotFound
	}
	return e.readValue(key, ptr)
}

// Delete removes key. Deleting an absent key succeeds without writing
// anything; deleting a live key appends a tombstone and erases the keydir
// entry, accounting both the tombstone and the superseded record as
// reclaimable.
func (e *Engine) Delete(key []byte) error {
	if e.closed.Load() {
		return errors.ErrEngineClosed
	}
	if len(key) == 0 {
		return errors.ErrEmptyKey
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.keydir.Get(key); !ok {
		return nil
	}

	ptrs, err := e.commitGroupLocked([]*record.Record{
		{Type: record.Tombstone, Key: key},
	}, false)
	if err != nil {
		return err
	}

	e.addReclaimableLocked(ptrs[0].FileID, uint64(ptrs[0].Size))
	if prior := e.keydir.Delete(key); prior != nil {
		e.addReclaimableLocked(prior.FileID, uint64(prior.Size))
	}
	return nil
}

// ListKeys returns every live key in the keydir's natural order.
func (e *Engine) ListKeys() [][]byte {
	return e.keydir.ListKeys()
}

// Fold iterates every live key/value pair, invoking f until it returns
// false. Keys deleted between the snapshot and their resolution are skipped.
func (e *Engine) Fold(f func(key, value []byte) bool) error {
	if e.closed.Load() {
		return errors.ErrEngineClosed
	}

	for _, key := range e.keydir.ListKeys() {
		value, err := e.Get(key)
		if err != nil {
			if err == errors.ErrKeyNotFound {
				continue
			}
			return err
		}
		if !f(key, value) {
			break
		}
	}
	return nil
}

// NewIterator builds a snapshot iterator over the current key set, ordered
// forward or reverse, optionally restricted to keys sharing prefix. Values
// are resolved lazily on each Next call.
func (e *Engine) NewIterator(reverse bool, prefix []byte) *index.Iterator {
	return index.NewIterator(e.keydir, reverse, prefix, func(key []byte) ([]byte, bool, error) {
		ptr, ok := e.keydir.Get(key)
		if !ok {
			return nil, false, nil
		}
		value, err := e.readValue(key, ptr)
		if err != nil {
			return nil, false, err
		}
		return value, true, nil
	})
}

// Sync flushes the active segment durably to disk.
func (e *Engine) Sync() error {
	if e.closed.Load() {
		return errors.ErrEngineClosed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.activeFile.Sync(); err != nil {
		return err
	}
	e.bytesSinceSync = 0
	return nil
}

// Backup copies every file in the data directory into targetDir, excluding
// the lock file. The write lock is held for the duration, so the copy is a
// consistent snapshot of a quiescent engine.
func (e *Engine) Backup(targetDir string) error {
	if e.closed.Load() {
		return errors.ErrEngineClosed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.activeFile.Sync(); err != nil {
		return err
	}
	if err := filesys.CreateDir(targetDir, 0755, true); err != nil {
		return errors.ClassifyDirectoryCreationError(err, targetDir)
	}

	entries, err := os.ReadDir(e.options.DataDir)
	if err != nil {
		return errors.ClassifyFileOpenError(err, e.options.DataDir, "")
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() || entry.Name() == fileLockName {
			continue
		}
		src := filepath.Join(e.options.DataDir, entry.Name())
		dst := filepath.Join(targetDir, entry.Name())
		if err := filesys.CopyFile(src, dst); err != nil {
			return errors.ClassifyFileOpenError(err, targetDir, entry.Name())
		}
	}

	e.log.Infow("backup completed", "dir", e.options.DataDir, "target", targetDir)
	return nil
}

// Stats reports the engine's current key count, segment count, reclaimable
// bytes, and on-disk footprint.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var reclaimable uint64
	for _, n := range e.reclaimable {
		reclaimable += n
	}

	diskSize, err := dirSize(e.options.DataDir)
	if err != nil {
		e.log.Warnw("failed to size data directory", "dir", e.options.DataDir, "error", err)
	}

	return Stats{
		KeyNum:           e.keydir.Size(),
		DataFileNum:      len(e.olderFiles) + 1,
		ReclaimableBytes: reclaimable,
		DiskSize:         diskSize,
	}
}

// Close flushes the active segment, persists the sequence counter, releases
// every file handle, and drops the directory lock. A second Close returns
// ErrEngineClosed.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return errors.ErrEngineClosed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.persistSeqNoLocked(); err != nil {
		e.log.Errorw("failed to persist sequence counter", "error", err)
	}

	var firstErr error
	if err := e.activeFile.Sync(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.activeFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	for _, df := range e.olderFiles {
		if err := df.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := e.keydir.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.fileLock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}

	e.log.Infow("engine closed", "dir", e.options.DataDir)
	return firstErr
}

// readValue resolves key's pointer to its decoded value, verifying the
// record's CRC along the way.
func (e *Engine) readValue(key []byte, ptr record.LogPointer) ([]byte, error) {
	e.mu.RLock()
	var df *datafile.DataFile
	if e.activeFile != nil && e.activeFile.ID == ptr.FileID {
		df = e.activeFile
	} else {
		df = e.olderFiles[ptr.FileID]
	}
	e.mu.RUnlock()

	if df == nil {
		return nil, errors.NewUnknownSegmentError(key, ptr.FileID, ptr.Offset)
	}

	rec, _, err := df.ReadRecord(ptr.Offset)
	if err != nil {
		return nil, err
	}
	if rec.Type != record.Normal {
		return nil, errors.ErrKeyNotFound
	}
	return rec.Value, nil
}

// fileByID resolves a file_id to its open segment. Callers must hold mu.
func (e *Engine) fileByID(id uint32) *datafile.DataFile {
	if e.activeFile != nil && e.activeFile.ID == id {
		return e.activeFile
	}
	return e.olderFiles[id]
}

// commitGroupLocked appends one write group — every entry followed by its
// BatchCommit marker — to the log, rotating segments as needed, and applies
// the configured sync policy. A bare Put or Delete is simply a group of one
// entry. forceSync requests an fsync regardless of the sync_writes policy;
// batch commits use it so that a single fsync covers the whole group.
// Returns one LogPointer per entry, in order. Callers must hold mu.
func (e *Engine) commitGroupLocked(entries []*record.Record, forceSync bool) ([]record.LogPointer, error) {
	e.groupSeq++
	group := e.groupSeq << seqGroupBits
	for i, rec := range entries {
		rec.Sequence = group | uint64(i)
	}
	commit := &record.Record{
		Type:     record.BatchCommit,
		Sequence: group | uint64(len(entries)),
	}

	ptrs := make([]record.LogPointer, 0, len(entries))
	var written int
	for _, rec := range entries {
		ptr, n, err := e.appendLocked(rec)
		if err != nil {
			return nil, err
		}
		ptrs = append(ptrs, ptr)
		written += n
	}

	commitPtr, n, err := e.appendLocked(commit)
	if err != nil {
		return nil, err
	}
	written += n
	e.addReclaimableLocked(commitPtr.FileID, uint64(commitPtr.Size))
	e.maxSeq = commit.Sequence

	if e.options.SyncWrites || forceSync {
		if err := e.activeFile.Sync(); err != nil {
			return nil, err
		}
		e.bytesSinceSync = 0
		return ptrs, nil
	}

	e.bytesSinceSync += int64(written)
	if e.options.BytesPerSync > 0 && e.bytesSinceSync >= e.options.BytesPerSync {
		if err := e.activeFile.Sync(); err != nil {
			return nil, err
		}
		e.bytesSinceSync = 0
	}
	return ptrs, nil
}

// appendLocked writes rec to the active segment, rotating first if the
// record would push it past the configured threshold. Callers must hold mu.
func (e *Engine) appendLocked(rec *record.Record) (record.LogPointer, int, error) {
	need := uint64(record.EncodedLen(rec))
	if e.activeFile.WriteOffset() > 0 &&
		e.activeFile.WriteOffset()+need > uint64(e.options.DataFileSize) {
		if err := e.rotateLocked(); err != nil {
			return record.LogPointer{}, 0, err
		}
	}
	return e.activeFile.Append(rec)
}

// rotateLocked seals the active segment and opens a fresh one under the
// next file_id. Callers must hold mu.
func (e *Engine) rotateLocked() error {
	sealed := e.activeFile
	if err := sealed.Seal(false); err != nil {
		return err
	}
	e.olderFiles[sealed.ID] = sealed

	next, err := datafile.Create(e.options.DataDir, sealed.ID+1)
	if err != nil {
		return err
	}
	e.activeFile = next
	e.bytesSinceSync = 0

	e.log.Infow("rotated active segment", "sealedFileID", sealed.ID, "activeFileID", next.ID)
	return nil
}

// addReclaimableLocked accounts n superseded bytes against fileID. Callers
// must hold mu.
func (e *Engine) addReclaimableLocked(fileID uint32, n uint64) {
	e.reclaimable[fileID] += n
}

// sortedFileIDs returns every open segment's file_id in ascending order,
// active file included. Callers must hold mu.
func (e *Engine) sortedFileIDs() []uint32 {
	ids := make([]uint32, 0, len(e.olderFiles)+1)
	for id := range e.olderFiles {
		ids = append(ids, id)
	}
	if e.activeFile != nil {
		ids = append(ids, e.activeFile.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// dirSize sums the sizes of every regular file under dir.
func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
