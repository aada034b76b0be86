// Package bitkv provides an embedded, single-node key/value store built on
// the Bitcask design: all mutations are appended to an on-disk log
// partitioned into fixed-threshold segments, while an in-memory keydir maps
// every live key to its most recent record. The store targets workloads
// that need durable point reads and writes at very low latency on a working
// set whose keys fit in memory even when the values do not.
//
// DB is the primary entry point for interacting with a store: it exposes
// Put/Get/Delete along with ordered iteration, atomic batches, operator
// triggered compaction, and crash-consistent backups.
package bitkv

import (
	"context"

	"github.com/KevinZh0A/bitkv/internal/engine"
	"github.com/KevinZh0A/bitkv/internal/index"
	"github.com/KevinZh0A/bitkv/pkg/logger"
	"github.com/KevinZh0A/bitkv/pkg/options"
)

// DB represents one open bitkv store. It encapsulates the core engine
// responsible for data handling and the configuration options applied to
// this instance. A DB is safe for concurrent use from multiple goroutines.
type DB struct {
	engine  *engine.Engine // The underlying engine handling read/write operations.
	options *options.Options
}

// Stats is re-exported so callers don't need to import the engine package.
type Stats = engine.Stats

// Open creates or reopens the store rooted at the configured data
// directory. The service name is attached to every log line so multiple
// instances (or bitkv plus the hosting application) can be told apart in
// shared output.
func Open(ctx context.Context, service string, opts ...options.OptionFunc) (*DB, error) {
	log := logger.New(service)

	defaultOpts := options.NewDefaultOptions()
	for _, opt := range opts {
		opt(&defaultOpts)
	}

	eng, err := engine.Open(ctx, &defaultOpts, log)
	if err != nil {
		return nil, err
	}

	return &DB{engine: eng, options: &defaultOpts}, nil
}

// Put stores a key-value pair. If the key already exists, its value is
// replaced and the superseded record becomes reclaimable by the next merge.
func (db *DB) Put(key, value []byte) error {
	return db.engine.Put(key, value)
}

// Get retrieves the value associated with key, or ErrKeyNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	return db.engine.Get(key)
}

// Delete removes key. Deleting an absent key succeeds without writing.
func (db *DB) Delete(key []byte) error {
	return db.engine.Delete(key)
}

// ListKeys returns every live key in sorted order.
func (db *DB) ListKeys() [][]byte {
	return db.engine.ListKeys()
}

// Fold invokes f for every live key/value pair until f returns false.
func (db *DB) Fold(f func(key, value []byte) bool) error {
	return db.engine.Fold(f)
}

// NewIterator returns a snapshot iterator over the current key set, in
// forward or reverse order, optionally restricted to keys sharing prefix.
func (db *DB) NewIterator(reverse bool, prefix []byte) *index.Iterator {
	return db.engine.NewIterator(reverse, prefix)
}

// NewBatch returns an empty atomic write group. Entries buffered in the
// batch are invisible to readers until Commit publishes them all at once.
func (db *DB) NewBatch() *engine.Batch {
	return db.engine.NewBatch()
}

// Merge compacts the store, rewriting only live records into fresh
// segments and reclaiming superseded bytes. Only one merge runs at a time.
func (db *DB) Merge() error {
	return db.engine.Merge()
}

// Sync flushes the active segment durably to disk.
func (db *DB) Sync() error {
	return db.engine.Sync()
}

// Backup copies the store's files into targetDir as a consistent snapshot.
func (db *DB) Backup(targetDir string) error {
	return db.engine.Backup(targetDir)
}

// Stats reports the store's key count, segment count, reclaimable bytes,
// and on-disk size.
func (db *DB) Stats() Stats {
	return db.engine.Stats()
}

// Close gracefully shuts down the store, flushing pending writes, closing
// every file handle, and releasing the directory lock.
func (db *DB) Close() error {
	return db.engine.Close()
}
