package index

import (
	"sort"
	"sync"

	"github.com/KevinZh0A/bitkv/internal/record"
)

// MapIndex is the default "ordered tree" keydir variant: a single
// sync.RWMutex guarding a Go map, plus a lazily-rebuilt sorted key slice for
// ListKeys (and so NewIterator) ordering. Writers are already serialized by the Engine's
// write mutex, so contention on mu is minimal in practice.
type MapIndex struct {
	mu     sync.RWMutex
	m      map[string]record.LogPointer
	sorted []string
	dirty  bool
}

// NewMapIndex returns an empty MapIndex.
func NewMapIndex() *MapIndex {
	return &MapIndex{m: make(map[string]record.LogPointer, 1024)}
}

func (idx *MapIndex) Put(key []byte, ptr record.LogPointer) *record.LogPointer {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	k := string(key)
	prior, existed := idx.m[k]
	idx.m[k] = ptr
	if !existed {
		idx.dirty = true
	}
	if existed {
		return &prior
	}
	return nil
}

func (idx *MapIndex) Get(key []byte) (record.LogPointer, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ptr, ok := idx.m[string(key)]
	return ptr, ok
}

func (idx *MapIndex) Delete(key []byte) *record.LogPointer {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	k := string(key)
	prior, existed := idx.m[k]
	if !existed {
		return nil
	}
	delete(idx.m, k)
	idx.dirty = true
	return &prior
}

func (idx *MapIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.m)
}

func (idx *MapIndex) ListKeys() [][]byte {
	idx.mu.Lock()
	idx.rebuildSortedLocked()
	sorted := idx.sorted
	idx.mu.Unlock()

	keys := make([][]byte, len(sorted))
	for i, k := range sorted {
		keys[i] = []byte(k)
	}
	return keys
}

func (idx *MapIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	clear(idx.m)
	idx.sorted = nil
	return nil
}

// rebuildSortedLocked refreshes the cached sorted key slice. Callers must
// hold idx.mu for writing.
func (idx *MapIndex) rebuildSortedLocked() {
	if !idx.dirty && idx.sorted != nil {
		return
	}
	sorted := make([]string, 0, len(idx.m))
	for k := range idx.m {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	idx.sorted = sorted
	idx.dirty = false
}
