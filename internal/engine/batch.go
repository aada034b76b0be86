package engine

import (
	"sync"

	"github.com/KevinZh0A/bitkv/internal/batch"
	"github.com/KevinZh0A/bitkv/internal/record"
	"github.com/KevinZh0A/bitkv/pkg/errors"
)

// Batch buffers a group of mutations and commits them atomically: every
// entry plus a terminal commit marker is appended under the write lock and
// covered by a single fsync, and only then is the keydir updated. Reads
// through the Engine never observe uncommitted entries, and a crash before
// the marker reaches disk leaves the database indistinguishable from the
// batch never having run.
//
// A Batch is safe for concurrent use, though batches are typically built
// and committed by a single goroutine.
type Batch struct {
	engine *Engine

	mu        sync.Mutex
	buf       *batch.Buffer
	committed bool
}

// NewBatch returns an empty batch capped at the configured max_batch_num.
func (e *Engine) NewBatch() *Batch {
	return &Batch{
		engine: e,
		buf:    batch.NewBuffer(e.options.MaxBatchNum),
	}
}

// Put buffers a write of value under key. Writing the same key twice keeps
// only the last entry.
func (b *Batch) Put(key, value []byte) error {
	if len(key) == 0 {
		return errors.ErrEmptyKey
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.committed {
		return errors.ErrBatchCommitted
	}
	return b.buf.Put(key, value)
}

// Delete buffers a tombstone for key.
func (b *Batch) Delete(key []byte) error {
	if len(key) == 0 {
		return errors.ErrEmptyKey
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.committed {
		return errors.ErrBatchCommitted
	}
	return b.buf.Delete(key)
}

// Len reports how many distinct keys the batch currently buffers.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

// Commit makes every buffered entry durable and visible atomically. The
// entries are appended in buffer order, the commit marker follows, one
// fsync covers the whole group, and only then is the keydir updated. A
// committed batch cannot be reused.
func (b *Batch) Commit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.committed {
		return errors.ErrBatchCommitted
	}

	e := b.engine
	if e.closed.Load() {
		return errors.ErrEngineClosed
	}
	if b.buf.Len() == 0 {
		return errors.ErrEmptyBatch
	}

	entries := b.buf.Entries()
	records := make([]*record.Record, len(entries))
	for i, entry := range entries {
		t := record.Normal
		if entry.Tombstone {
			t = record.Tombstone
		}
		records[i] = &record.Record{Type: t, Key: entry.Key, Value: entry.Value}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ptrs, err := e.commitGroupLocked(records, true)
	if err != nil {
		return err
	}

	for i, entry := range entries {
		if entry.Tombstone {
			e.addReclaimableLocked(ptrs[i].FileID, uint64(ptrs[i].Size))
			if prior := e.keydir.Delete(entry.Key); prior != nil {
				e.addReclaimableLocked(prior.FileID, uint64(prior.Size))
			}
			continue
		}
		if prior := e.keydir.Put(entry.Key, ptrs[i]); prior != nil {
			e.addReclaimableLocked(prior.FileID, uint64(prior.Size))
		}
	}

	b.committed = true
	e.log.Infow("batch committed", "entries", len(entries))
	return nil
}
