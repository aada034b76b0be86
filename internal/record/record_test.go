package record

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/KevinZh0A/bitkv/pkg/errors"
)

func encodeToBytes(t *testing.T, rec *Record) []byte {
	t.Helper()

	var buf bytes.Buffer
	n, err := Encode(&buf, rec)
	require.NoError(t, err)
	require.Equal(t, buf.Len(), n)
	require.Equal(t, EncodedLen(rec), n)
	return buf.Bytes()
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		rec  *Record
	}{
		{"normal", &Record{Type: Normal, Sequence: 1, Key: []byte("alpha"), Value: []byte("1")}},
		{"normal empty value", &Record{Type: Normal, Sequence: 7, Key: []byte("k"), Value: nil}},
		{"tombstone", &Record{Type: Tombstone, Sequence: 42, Key: []byte("gone")}},
		{"batch commit", &Record{Type: BatchCommit, Sequence: 1<<20 | 3}},
		{"large sequence", &Record{Type: Normal, Sequence: 1 << 60, Key: []byte("k"), Value: []byte("v")}},
		{"binary key and value", &Record{Type: Normal, Sequence: 9, Key: []byte{0x00, 0xff, 0x10}, Value: bytes.Repeat([]byte{0xab}, 300)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := encodeToBytes(t, tt.rec)

			decoded, n, err := Decode(bytes.NewReader(encoded), "test.data", 0)
			require.NoError(t, err)
			assert.Equal(t, len(encoded), n)
			assert.Equal(t, tt.rec.Type, decoded.Type)
			assert.Equal(t, tt.rec.Sequence, decoded.Sequence)
			assert.Equal(t, []byte(tt.rec.Key), decoded.Key)
			assert.Equal(t, []byte(tt.rec.Value), decoded.Value)
		})
	}
}

func TestDecodeSequential(t *testing.T) {
	var buf bytes.Buffer
	records := []*Record{
		{Type: Normal, Sequence: 1, Key: []byte("a"), Value: []byte("1")},
		{Type: Tombstone, Sequence: 2, Key: []byte("a")},
		{Type: BatchCommit, Sequence: 3},
	}
	for _, rec := range records {
		_, err := Encode(&buf, rec)
		require.NoError(t, err)
	}

	r := bytes.NewReader(buf.Bytes())
	for _, want := range records {
		got, _, err := Decode(r, "test.data", 0)
		require.NoError(t, err)
		assert.Equal(t, want.Type, got.Type)
		assert.Equal(t, want.Sequence, got.Sequence)
	}

	_, _, err := Decode(r, "test.data", 0)
	assert.Equal(t, io.EOF, err)
}

func TestDecodeTruncated(t *testing.T) {
	rec := &Record{Type: Normal, Sequence: 5, Key: []byte("key"), Value: []byte("a longer value payload")}
	encoded := encodeToBytes(t, rec)

	// Every cut short of the full record is a truncation, except offset 0
	// which is a clean EOF.
	for cut := 1; cut < len(encoded); cut++ {
		_, _, err := Decode(bytes.NewReader(encoded[:cut]), "test.data", 0)
		require.Error(t, err, "cut at %d", cut)
		require.True(t, errs.IsUnexpectedEOF(err), "cut at %d: %v", cut, err)
	}

	_, _, err := Decode(bytes.NewReader(nil), "test.data", 0)
	assert.Equal(t, io.EOF, err)
}

func TestDecodeCRCMismatch(t *testing.T) {
	rec := &Record{Type: Normal, Sequence: 5, Key: []byte("key"), Value: []byte("value")}
	encoded := encodeToBytes(t, rec)

	// Flip one payload byte; the checksum must catch it.
	corrupted := append([]byte(nil), encoded...)
	corrupted[len(corrupted)-5] ^= 0x01

	_, _, err := Decode(bytes.NewReader(corrupted), "test.data", 0)
	require.Error(t, err)
	assert.True(t, errs.IsInvalidCRC(err))
}

func TestDecodeUnknownType(t *testing.T) {
	rec := &Record{Type: Normal, Sequence: 5, Key: []byte("key"), Value: []byte("value")}
	encoded := encodeToBytes(t, rec)
	encoded[0] = 0x7f

	_, _, err := Decode(bytes.NewReader(encoded), "test.data", 0)
	require.Error(t, err)

	se, ok := errs.AsStorageError(err)
	require.True(t, ok)
	assert.Equal(t, errs.ErrorCodeUnknownRecordType, se.Code())
}

func TestEncodedLenMatchesVarintWidths(t *testing.T) {
	small := &Record{Type: Normal, Sequence: 1, Key: []byte("k"), Value: []byte("v")}
	large := &Record{Type: Normal, Sequence: 1 << 62, Key: []byte("k"), Value: []byte("v")}

	assert.Greater(t, EncodedLen(large), EncodedLen(small))
	assert.Equal(t, len(encodeToBytes(t, small)), EncodedLen(small))
	assert.Equal(t, len(encodeToBytes(t, large)), EncodedLen(large))
}

func TestRecordTypeString(t *testing.T) {
	assert.Equal(t, "Normal", Normal.String())
	assert.Equal(t, "Tombstone", Tombstone.String())
	assert.Equal(t, "BatchCommit", BatchCommit.String())
	assert.Equal(t, "Unknown", RecordType(99).String())
}
