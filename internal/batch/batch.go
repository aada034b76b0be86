// Package batch holds the engine-independent pieces of an atomic write
// group: the pending-entry buffer and its last-write-wins accumulation
// rule. The commit protocol itself needs the Engine's write lock, active
// DataFile, and keydir, so it lives in internal/engine/batch.go; this
// package is the leaf the orchestration layer is built on.
package batch

import errs "github.com/KevinZh0A/bitkv/pkg/errors"

// Entry is one pending mutation inside a Buffer.
type Entry struct {
	Key       []byte
	Value     []byte
	Tombstone bool
}

// Buffer accumulates pending entries for a single batch. Same key written
// twice keeps only the last entry.
type Buffer struct {
	order   []string
	entries map[string]*Entry
	max     int
}

// NewBuffer returns an empty Buffer capped at maxEntries.
func NewBuffer(maxEntries int) *Buffer {
	return &Buffer{entries: make(map[string]*Entry), max: maxEntries}
}

// Put buffers a Normal write for key.
func (b *Buffer) Put(key, value []byte) error {
	return b.set(key, value, false)
}

// Delete buffers a Tombstone for key.
func (b *Buffer) Delete(key []byte) error {
	return b.set(key, nil, true)
}

func (b *Buffer) set(key, value []byte, tombstone bool) error {
	k := string(key)
	if _, exists := b.entries[k]; !exists {
		if len(b.entries) >= b.max {
			return errs.ErrExceedMaxBatchNum
		}
		b.order = append(b.order, k)
	}
	b.entries[k] = &Entry{Key: key, Value: value, Tombstone: tombstone}
	return nil
}

// Len reports how many distinct keys are currently buffered.
func (b *Buffer) Len() int { return len(b.order) }

// Entries returns the buffered entries in the order their keys were first
// touched, which is the order Commit appends them in.
func (b *Buffer) Entries() []*Entry {
	out := make([]*Entry, 0, len(b.order))
	for _, k := range b.order {
		out = append(out, b.entries[k])
	}
	return out
}
