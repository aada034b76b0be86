package index

import (
	"bytes"
	"sort"

	errs "github.com/KevinZh0A/bitkv/pkg/errors"
)

// Resolver fetches the current value for key at the time Next is called,
// looking up the key's keydir pointer itself; it reports false when the key
// is no longer present. The Engine supplies this as a thin wrapper around a
// keydir lookup plus DataFile.ReadRecord.
type Resolver func(key []byte) ([]byte, bool, error)

// Iterator holds a snapshot of the key set taken at construction time —
// not the values. Each call to Next performs a fresh keydir lookup plus a
// fresh resolve, so it observes the *current* value for a key and reports
// ErrIterSkip if the key has since been deleted. This trades
// snapshot-value consistency for bounded memory: full MVCC would need
// versioned storage.
type Iterator struct {
	keys    [][]byte
	pos     int
	reverse bool
	kd      KeyDir
	resolve Resolver
	closed  bool
}

// NewIterator builds a snapshot iterator over kd's current key set.
func NewIterator(kd KeyDir, reverse bool, prefix []byte, resolve Resolver) *Iterator {
	all := kd.ListKeys()

	keys := make([][]byte, 0, len(all))
	for _, k := range all {
		if len(prefix) == 0 || bytes.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		cmp := bytes.Compare(keys[i], keys[j])
		if reverse {
			return cmp > 0
		}
		return cmp < 0
	})

	return &Iterator{keys: keys, kd: kd, reverse: reverse, resolve: resolve}
}

// Rewind resets the iterator to its first key.
func (it *Iterator) Rewind() { it.pos = 0 }

// Seek positions the iterator at the first snapshot key that would sort at
// or after key (or at or before key, under a reverse iterator), using
// binary search over the snapshot. It reports whether such a key exists.
func (it *Iterator) Seek(key []byte) bool {
	n := len(it.keys)
	idx := sort.Search(n, func(i int) bool {
		cmp := bytes.Compare(it.keys[i], key)
		if it.reverse {
			return cmp <= 0
		}
		return cmp >= 0
	})
	it.pos = idx
	return idx < n
}

// Valid reports whether the iterator currently points at a snapshot key.
func (it *Iterator) Valid() bool { return it.pos < len(it.keys) }

// Next resolves the key at the current position and advances. It returns
// ErrIterSkip (not a fatal error) when the key was deleted after the
// snapshot was taken; callers should loop until Valid() is false or a
// non-skip result is returned.
func (it *Iterator) Next() (key, value []byte, err error) {
	if it.closed {
		return nil, nil, errs.ErrIterClosed
	}
	if it.pos >= len(it.keys) {
		return nil, nil, errs.ErrKeyNotFound
	}

	k := it.keys[it.pos]
	it.pos++

	val, ok, err := it.resolve(k)
	if err != nil {
		return k, nil, err
	}
	if !ok {
		return k, nil, errs.ErrIterSkip
	}
	return k, val, nil
}

// Close releases the iterator's snapshot. The underlying keydir is
// untouched — there is nothing to release beyond the snapshot slice itself.
func (it *Iterator) Close() error {
	it.closed = true
	it.keys = nil
	return nil
}
