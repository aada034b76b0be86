// Package index defines the KeyDir contract shared by bitkv's three keydir
// variants (the in-memory ordered map in this package, the concurrent
// skiplist in internal/index/skiplist, and the on-disk B+tree in
// internal/index/bptree) plus the snapshot Iterator built on top of any of
// them.
//
// The Engine is parameterized over the KeyDir contract rather than a
// concrete implementation, so the variants stay interchangeable.
package index

import (
	"github.com/KevinZh0A/bitkv/internal/record"
)

// KeyDir is the contract every keydir variant satisfies. Implementations
// must provide their own internal synchronization: the Engine serializes
// writers through its own write mutex, but reads (Get, NewIterator's snapshot
// construction) are expected to proceed without contending with each other.
type KeyDir interface {
	// Put inserts or replaces key's pointer, returning the prior pointer if
	// one existed.
	Put(key []byte, ptr record.LogPointer) (prior *record.LogPointer)

	// Get looks up key's current pointer.
	Get(key []byte) (record.LogPointer, bool)

	// Delete removes key, returning its prior pointer if one existed.
	Delete(key []byte) (prior *record.LogPointer)

	// ListKeys returns every live key, in the variant's natural order.
	ListKeys() [][]byte

	// Size returns the number of live keys.
	Size() int

	// Close releases any resources the variant owns (e.g. an on-disk B+tree
	// file handle). Implementations that own nothing may no-op.
	Close() error
}
