package record

import (
	"encoding/binary"
	"errors"
	"math"
)

// Checksum (4) + Timestamp (8) + KeySize (4) + ValueSize (4)
const HeaderSize = 20

// MaxFieldSize is the largest key or value a 32-bit size field can describe.
const MaxFieldSize uint64 = math.MaxUint32

var (
	// ErrTruncatedRecord means the buffer ends before the record does. During
	// recovery this marks the torn tail of an interrupted append.
	ErrTruncatedRecord = errors.New("record: truncated record")

	// ErrCorruptRecord means the record is complete but its checksum does not
	// match its contents.
	ErrCorruptRecord = errors.New("record: checksum mismatch")
)

// Header is the fixed-width prefix of every record on disk.
//
//	+----------+-----------+----------+------------+-----+-------+
//	| checksum | timestamp | key size | value size | key | value |
//	+----------+-----------+----------+------------+-----+-------+
//	           |----------------- checksummed ------------------|
//
// All integers are big-endian.
type Header struct {
	Checksum  uint32
	Timestamp int64 // Unix nanoseconds
	KeySize   uint32
	ValueSize uint32
}

// RecordSize is the full on-disk length of the record this header starts.
func (h Header) RecordSize() int64 {
	return HeaderSize + int64(h.KeySize) + int64(h.ValueSize)
}

// IsTombstone reports whether the header belongs to a deletion marker.
// A zero-length value is reserved for tombstones.
func (h Header) IsTombstone() bool {
	return h.ValueSize == 0
}

// Record is a decoded key-value record. Key and Value alias the buffer the
// record was decoded from.
type Record struct {
	Header
	Key   []byte
	Value []byte
}

// Encode lays out a record as header, key, value and fills in the checksum.
func Encode(timestamp int64, key, value []byte) []byte {
	buf := make([]byte, HeaderSize+len(key)+len(value))

	binary.BigEndian.PutUint64(buf[4:12], uint64(timestamp))
	binary.BigEndian.PutUint32(buf[12:16], uint32(len(key)))
	binary.BigEndian.PutUint32(buf[16:20], uint32(len(value)))
	copy(buf[HeaderSize:], key)
	copy(buf[HeaderSize+len(key):], value)

	binary.BigEndian.PutUint32(buf[0:4], CalculateCRC(buf[4:]))

	return buf
}

// EncodeTombstone encodes the deletion marker for key.
func EncodeTombstone(timestamp int64, key []byte) []byte {
	return Encode(timestamp, key, nil)
}

// DecodeHeader parses the fixed header at the start of buf. It does not look
// at the payload and does not verify the checksum.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrTruncatedRecord
	}

	return Header{
		Checksum:  binary.BigEndian.Uint32(buf[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(buf[4:12])),
		KeySize:   binary.BigEndian.Uint32(buf[12:16]),
		ValueSize: binary.BigEndian.Uint32(buf[16:20]),
	}, nil
}

// Decode parses one record from the start of buf and verifies its checksum.
// Declared sizes are checked against len(buf) before anything is sliced, so
// a short buffer yields ErrTruncatedRecord rather than a panic. Bytes after
// the record are ignored.
func Decode(buf []byte) (*Record, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}

	size := h.RecordSize()
	if int64(len(buf)) < size {
		return nil, ErrTruncatedRecord
	}

	if !ValidateCRC(buf[4:size], h.Checksum) {
		return nil, ErrCorruptRecord
	}

	keyEnd := HeaderSize + int64(h.KeySize)

	return &Record{
		Header: h,
		Key:    buf[HeaderSize:keyEnd],
		Value:  buf[keyEnd:size],
	}, nil
}
