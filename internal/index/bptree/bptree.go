// Package bptree implements the "BPlusTree" keydir variant: a persistent,
// on-disk B+tree over go.etcd.io/bbolt, storing one bucket of
// key -> encoded LogPointer. Unlike the in-memory variants, this index
// survives process restart on its own, but bitkv still replays the segment
// log on Open for consistency with the other variants.
package bptree

import (
	"encoding/binary"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/KevinZh0A/bitkv/internal/index"
	"github.com/KevinZh0A/bitkv/internal/record"
	"github.com/KevinZh0A/bitkv/pkg/errors"
)

const (
	fileName   = "index.bolt"
	bucketName = "keydir"

	// fileID(4) + offset(8) + size(4)
	encodedPointerLen = 16
)

// Index is the bbolt-backed KeyDir.
type Index struct {
	db   *bolt.DB
	path string

	// size is tracked in memory to avoid a full bucket scan on every Size
	// call; it is seeded from the bucket's key count at Open.
	mu   sync.Mutex
	size int
}

// Open opens (creating if necessary) the B+tree index file under dir.
func Open(dir string) (*Index, error) {
	path := filepath.Join(dir, fileName)

	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: 0})
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, dir, fileName)
	}

	var count int
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return err
		}
		count = b.Stats().KeyN
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Index{db: db, path: path, size: count}, nil
}

func encodePointer(ptr record.LogPointer) []byte {
	buf := make([]byte, encodedPointerLen)
	binary.BigEndian.PutUint32(buf[0:4], ptr.FileID)
	binary.BigEndian.PutUint64(buf[4:12], ptr.Offset)
	binary.BigEndian.PutUint32(buf[12:16], ptr.Size)
	return buf
}

func decodePointer(buf []byte) record.LogPointer {
	return record.LogPointer{
		FileID: binary.BigEndian.Uint32(buf[0:4]),
		Offset: binary.BigEndian.Uint64(buf[4:12]),
		Size:   binary.BigEndian.Uint32(buf[12:16]),
	}
}

func (idx *Index) Put(key []byte, ptr record.LogPointer) *record.LogPointer {
	var prior *record.LogPointer

	idx.mu.Lock()
	defer idx.mu.Unlock()

	_ = idx.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if v := b.Get(key); v != nil {
			p := decodePointer(v)
			prior = &p
		} else {
			idx.size++
		}
		return b.Put(key, encodePointer(ptr))
	})

	return prior
}

func (idx *Index) Get(key []byte) (record.LogPointer, bool) {
	var ptr record.LogPointer
	var found bool

	_ = idx.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if v := b.Get(key); v != nil {
			ptr = decodePointer(v)
			found = true
		}
		return nil
	})

	return ptr, found
}

func (idx *Index) Delete(key []byte) *record.LogPointer {
	var prior *record.LogPointer

	idx.mu.Lock()
	defer idx.mu.Unlock()

	_ = idx.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		v := b.Get(key)
		if v == nil {
			return nil
		}
		p := decodePointer(v)
		prior = &p
		idx.size--
		return b.Delete(key)
	})

	return prior
}

func (idx *Index) Size() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.size
}

// ListKeys walks the bucket in its natural byte-sorted order.
func (idx *Index) ListKeys() [][]byte {
	var keys [][]byte

	_ = idx.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		keys = make([][]byte, 0, b.Stats().KeyN)
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, append([]byte(nil), k...))
			return nil
		})
	})

	return keys
}

func (idx *Index) Close() error {
	return idx.db.Close()
}

var _ index.KeyDir = (*Index)(nil)
