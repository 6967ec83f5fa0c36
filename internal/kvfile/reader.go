package kvfile

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/edsrzf/mmap-go"
	"go.uber.org/multierr"

	shuffleerrors "github.com/graphtide/shuffle/errors"
)

// Reader scans a spill file sequentially. The file is memory-mapped and the
// body checksum is verified once at open time, so Next never touches the
// disk error path; all returned slices alias the mapping and are valid
// until Close.
type Reader struct {
	mm    mmap.MMap
	body  []byte
	count uint64
	subKV bool

	key   []byte
	value []byte
	read  uint64
	err   error
}

// Open memory-maps path and validates its framing and checksum.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open spill file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat spill file: %w", err)
	}
	size := stat.Size()
	if size < headerSize+footerSize {
		return nil, shuffleerrors.ErrTruncatedFile
	}

	// The whole body is hashed at open and then scanned front to back.
	fadviseSequential(int(f.Fd()), 0, size)

	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap spill file: %w", err)
	}

	r := &Reader{mm: mm}
	if err := r.init([]byte(mm)); err != nil {
		return nil, multierr.Append(err, r.Close())
	}
	return r, nil
}

func (r *Reader) init(data []byte) error {
	if binary.LittleEndian.Uint32(data[0:4]) != magic {
		return shuffleerrors.ErrInvalidMagic
	}
	if data[4] != version {
		return fmt.Errorf("%w: version %d", shuffleerrors.ErrInvalidMagic, data[4])
	}
	r.subKV = data[5]&flagSubKV != 0

	footer := data[len(data)-footerSize:]
	r.count = binary.LittleEndian.Uint64(footer[0:8])
	sum := binary.LittleEndian.Uint64(footer[8:16])

	r.body = data[headerSize : len(data)-footerSize]
	if xxhash.Sum64(r.body) != sum {
		return shuffleerrors.ErrChecksumFailed
	}
	return nil
}

// Next advances to the next entry, returning false at end of file or on a
// framing error (check Err).
func (r *Reader) Next() bool {
	if r.err != nil || r.read >= r.count {
		return false
	}
	key, value, rest, err := NextEntry(r.body)
	if err != nil {
		r.err = err
		return false
	}
	r.key, r.value, r.body = key, value, rest
	r.read++
	return true
}

// Key returns the current entry's key. Valid after Next returned true.
func (r *Reader) Key() []byte { return r.key }

// Value returns the current entry's value. Valid after Next returned true.
func (r *Reader) Value() []byte { return r.value }

// Err returns the first framing error encountered by Next.
func (r *Reader) Err() error { return r.err }

// Count returns the total number of entries in the file.
func (r *Reader) Count() uint64 { return r.count }

// SubKV reports whether the file was written with sub-key entries.
func (r *Reader) SubKV() bool { return r.subKV }

// Close unmaps the file. No slices returned earlier may be used afterwards.
func (r *Reader) Close() error {
	if r.mm == nil {
		return nil
	}
	mm := r.mm
	r.mm = nil
	return mm.Unmap()
}
