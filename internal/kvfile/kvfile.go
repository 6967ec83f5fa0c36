// Package kvfile implements the on-disk spill file format used by the
// default sorting engine: a flat sequence of length-prefixed key/value
// entries between a small header and a checksummed footer.
//
// Layout:
//
//	header  (8 bytes):  magic uint32 | version uint8 | flags uint8 | reserved uint16
//	body:               repeated [klen uint32][key][vlen uint32][value]
//	footer (16 bytes):  entryCount uint64 | xxhash64(body) uint64
//
// All integers are little-endian. The body is written in sorted order by
// the producing sort or merge; readers rely on that.
package kvfile

import (
	"encoding/binary"
	"fmt"

	shuffleerrors "github.com/graphtide/shuffle/errors"
)

const (
	// magic identifies a spill file ("GSP1").
	magic = uint32(0x31505347)

	version = uint8(1)

	// flagSubKV marks files whose values carry sub-key entries.
	flagSubKV = uint8(1 << 0)

	headerSize = 8
	footerSize = 16

	lenSize = 4
)

// AppendEntry appends one length-prefixed entry to dst and returns the
// extended slice. The same framing is used inside received buffers and
// inside spill file bodies.
func AppendEntry(dst, key, value []byte) []byte {
	var scratch [lenSize]byte
	binary.LittleEndian.PutUint32(scratch[:], uint32(len(key)))
	dst = append(dst, scratch[:]...)
	dst = append(dst, key...)
	binary.LittleEndian.PutUint32(scratch[:], uint32(len(value)))
	dst = append(dst, scratch[:]...)
	dst = append(dst, value...)
	return dst
}

// NextEntry decodes the first entry of b, returning the key, the value and
// the remaining bytes. The returned slices alias b.
func NextEntry(b []byte) (key, value, rest []byte, err error) {
	key, rest, err = nextField(b)
	if err != nil {
		return nil, nil, nil, err
	}
	value, rest, err = nextField(rest)
	if err != nil {
		return nil, nil, nil, err
	}
	return key, value, rest, nil
}

func nextField(b []byte) (field, rest []byte, err error) {
	if len(b) < lenSize {
		return nil, nil, shuffleerrors.ErrTruncatedEntry
	}
	n := binary.LittleEndian.Uint32(b)
	b = b[lenSize:]
	if uint64(len(b)) < uint64(n) {
		return nil, nil, fmt.Errorf("%w: need %d bytes, have %d", shuffleerrors.ErrTruncatedEntry, n, len(b))
	}
	return b[:n], b[n:], nil
}

// EntrySize returns the encoded size of one entry.
func EntrySize(key, value []byte) int {
	return 2*lenSize + len(key) + len(value)
}
