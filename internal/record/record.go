// Package record implements the on-disk log record codec: the variable-width
// header, key/value payload, and trailing CRC32 that every bitkv data file is
// built from. It is the most foundational piece of the engine — DataFile,
// the keydir, and the merge subsystem all exchange Records and LogPointers
// rather than raw bytes.
package record

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	errs "github.com/KevinZh0A/bitkv/pkg/errors"
)

// RecordType tags what a Record represents on disk.
type RecordType uint8

const (
	// Normal is a live key/value write.
	Normal RecordType = iota

	// Tombstone marks a key as deleted. It carries no value.
	Tombstone

	// BatchCommit terminates a group of Normal/Tombstone records, making
	// them visible atomically. It carries no key or value. Every write,
	// whether a bare Put/Delete or an explicit Batch, ends with exactly one
	// of these: a bare Put is simply a batch of one entry. See DESIGN.md for
	// why every write, not only an explicit Batch, carries a marker.
	BatchCommit
)

func (t RecordType) String() string {
	switch t {
	case Normal:
		return "Normal"
	case Tombstone:
		return "Tombstone"
	case BatchCommit:
		return "BatchCommit"
	default:
		return "Unknown"
	}
}

// LogPointer identifies a single physical record: which file it lives in,
// the byte offset of its header, and the total encoded size of the record.
// LogPointers are stable for the lifetime of their FileID; merge is the only
// operation that invalidates one, by rewriting the record under a new
// pointer entirely.
type LogPointer struct {
	FileID uint32
	Offset uint64
	Size   uint32
}

// Record is one decoded log entry.
type Record struct {
	Type     RecordType
	Sequence uint64
	Key      []byte
	Value    []byte
	CRC      uint32
}

// maxHeaderSize bounds type(1) + three uvarints at their widest (10 bytes
// each for a full uint64). Decode does not read a header of this size up
// front: it streams the header one field at a time.
const maxHeaderSize = 1 + binary.MaxVarintLen64*3

// IsTombstone reports whether r marks its key as deleted.
func (r *Record) IsTombstone() bool { return r.Type == Tombstone }

// EncodedLen returns the exact number of bytes Encode will write for r,
// without performing the encode — used by the Engine to decide whether a
// record needs to trigger segment rotation before it is appended.
func EncodedLen(r *Record) int {
	n := 1
	n += uvarintLen(r.Sequence)
	n += uvarintLen(uint64(len(r.Key)))
	n += uvarintLen(uint64(len(r.Value)))
	n += len(r.Key)
	n += len(r.Value)
	n += 4 // crc32
	return n
}

func uvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// Encode writes r's header, key, value, and trailing CRC32 to w, returning
// the number of bytes written. The CRC covers every byte from the type tag
// through the value, inclusive.
func Encode(w io.Writer, r *Record) (int, error) {
	buf := make([]byte, EncodedLen(r))
	n := 0

	buf[n] = byte(r.Type)
	n++
	n += binary.PutUvarint(buf[n:], r.Sequence)
	n += binary.PutUvarint(buf[n:], uint64(len(r.Key)))
	n += binary.PutUvarint(buf[n:], uint64(len(r.Value)))
	n += copy(buf[n:], r.Key)
	n += copy(buf[n:], r.Value)

	crc := crc32.ChecksumIEEE(buf[:n])
	binary.LittleEndian.PutUint32(buf[n:], crc)
	n += 4

	written, err := w.Write(buf[:n])
	if err != nil {
		return written, err
	}
	return written, nil
}

// Decode reads exactly one record from r. It returns io.EOF only when the
// stream is exhausted before any byte of the record was read; a record
// truncated partway through returns errs.IsUnexpectedEOF-satisfying error.
// A CRC mismatch returns errs.IsInvalidCRC-satisfying error; an unrecognized
// type tag returns an unknown-record-type error. A zero-length key or value
// decodes as nil. fileName/offset are used purely to annotate the returned
// error with location context.
func Decode(r io.Reader, fileName string, offset int) (*Record, int, error) {
	var typeByte [1]byte
	if _, err := io.ReadFull(r, typeByte[:]); err != nil {
		if err == io.EOF {
			return nil, 0, io.EOF
		}
		return nil, 0, errs.NewUnexpectedEOFError(fileName, offset, err)
	}

	rt := RecordType(typeByte[0])
	switch rt {
	case Normal, Tombstone, BatchCommit:
	default:
		return nil, 1, errs.NewUnknownRecordTypeError(fileName, offset, typeByte[0])
	}

	br := newByteReader(r)
	br.consumed = append(br.consumed, typeByte[0])
	n := 1

	seq, bn, err := readUvarint(br)
	n += bn
	if err != nil {
		return nil, n, errs.NewUnexpectedEOFError(fileName, offset, err)
	}

	keySize, bn, err := readUvarint(br)
	n += bn
	if err != nil {
		return nil, n, errs.NewUnexpectedEOFError(fileName, offset, err)
	}

	valSize, bn, err := readUvarint(br)
	n += bn
	if err != nil {
		return nil, n, errs.NewUnexpectedEOFError(fileName, offset, err)
	}

	var key []byte
	if keySize > 0 {
		key = make([]byte, keySize)
	}
	if _, err := io.ReadFull(br, key); err != nil {
		return nil, n, errs.NewUnexpectedEOFError(fileName, offset, err)
	}
	n += len(key)

	var val []byte
	if valSize > 0 {
		val = make([]byte, valSize)
	}
	if _, err := io.ReadFull(br, val); err != nil {
		return nil, n, errs.NewUnexpectedEOFError(fileName, offset, err)
	}
	n += len(val)

	var crcBuf [4]byte
	if _, err := io.ReadFull(br, crcBuf[:]); err != nil {
		return nil, n, errs.NewUnexpectedEOFError(fileName, offset, err)
	}
	n += 4
	crc := binary.LittleEndian.Uint32(crcBuf[:])

	computed := crc32.ChecksumIEEE(br.consumed[:len(br.consumed)-4])
	if computed != crc {
		return nil, n, errs.NewInvalidCRCError(fileName, offset, crc, computed)
	}

	return &Record{Type: rt, Sequence: seq, Key: key, Value: val, CRC: crc}, n, nil
}

// byteReader wraps an io.Reader, tracking every byte it has handed out so
// Decode can recompute the CRC over the exact bytes it consumed without a
// second pass over the source.
type byteReader struct {
	r        io.Reader
	consumed []byte
}

func newByteReader(r io.Reader) *byteReader {
	return &byteReader{r: r, consumed: make([]byte, 0, 64)}
}

func (b *byteReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if n > 0 {
		b.consumed = append(b.consumed, p[:n]...)
	}
	return n, err
}

func (b *byteReader) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(b, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func readUvarint(br *byteReader) (uint64, int, error) {
	before := len(br.consumed)
	v, err := binary.ReadUvarint(br)
	return v, len(br.consumed) - before, err
}
