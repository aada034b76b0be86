// Package skiplist implements the "SkipList" keydir variant: a concurrent
// ordered map over github.com/huandu/skiplist. It satisfies
// internal/index.KeyDir the same way internal/index.MapIndex does, but keeps
// its keys permanently sorted instead of rebuilding a sorted view on demand,
// which favors iteration-heavy workloads (index_type=SkipList).
package skiplist

import (
	"sync"

	sl "github.com/huandu/skiplist"

	"github.com/KevinZh0A/bitkv/internal/index"
	"github.com/KevinZh0A/bitkv/internal/record"
)

// Index is the skiplist-backed KeyDir. The skip list orders entries by raw
// key bytes via the library's built-in Bytes comparable. huandu/skiplist is
// not safe for concurrent mutation, so an RWMutex guards the structure; the
// probabilistic level layout still makes every operation O(log n) without
// MapIndex's full-sort rebuilds.
type Index struct {
	mu   sync.RWMutex
	list *sl.SkipList
}

// New returns an empty skiplist-backed KeyDir.
func New() *Index {
	return &Index{list: sl.New(sl.Bytes)}
}

func (idx *Index) Put(key []byte, ptr record.LogPointer) *record.LogPointer {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	k := append([]byte(nil), key...)
	if elem := idx.list.Get(k); elem != nil {
		prior := elem.Value.(record.LogPointer)
		elem.Value = ptr
		return &prior
	}

	idx.list.Set(k, ptr)
	return nil
}

func (idx *Index) Get(key []byte) (record.LogPointer, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	elem := idx.list.Get(key)
	if elem == nil {
		return record.LogPointer{}, false
	}
	return elem.Value.(record.LogPointer), true
}

func (idx *Index) Delete(key []byte) *record.LogPointer {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	elem := idx.list.Remove(key)
	if elem == nil {
		return nil
	}
	prior := elem.Value.(record.LogPointer)
	return &prior
}

func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.list.Len()
}

// ListKeys walks the skiplist front to back, which is already key-sorted
// order by construction.
func (idx *Index) ListKeys() [][]byte {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	keys := make([][]byte, 0, idx.list.Len())
	for e := idx.list.Front(); e != nil; e = e.Next() {
		k := e.Key().([]byte)
		keys = append(keys, append([]byte(nil), k...))
	}
	return keys
}

func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.list = sl.New(sl.Bytes)
	return nil
}

var _ index.KeyDir = (*Index)(nil)
