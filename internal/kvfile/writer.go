package kvfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/multierr"

	shuffleerrors "github.com/graphtide/shuffle/errors"
)

// Writer streams sorted entries into a spill file. Entries must be appended
// in the order chosen by the caller's comparator; the writer does not sort.
type Writer struct {
	f      *os.File
	path   string
	bw     *bufio.Writer
	digest *xxhash.Digest
	count  uint64
	closed bool
}

// NewWriter creates path and writes the file header. sizeHint, when
// positive, is the expected body size in bytes and is used to reserve disk
// blocks up front so a full disk fails the flush early instead of midway.
func NewWriter(path string, subKV bool, sizeHint int64) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create spill file: %w", err)
	}
	if sizeHint > 0 {
		if err := fallocateFile(f, headerSize+sizeHint+footerSize); err != nil {
			return nil, multierr.Append(fmt.Errorf("pre-allocate spill file: %w", err), f.Close())
		}
	}

	w := &Writer{
		f:      f,
		path:   path,
		bw:     bufio.NewWriterSize(f, 1<<20),
		digest: xxhash.New(),
	}

	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], magic)
	hdr[4] = version
	if subKV {
		hdr[5] = flagSubKV
	}
	if _, err := w.bw.Write(hdr[:]); err != nil {
		return nil, multierr.Append(fmt.Errorf("write spill header: %w", err), f.Close())
	}
	return w, nil
}

// Append writes one entry. The checksum digest tracks every body byte.
func (w *Writer) Append(key, value []byte) error {
	if w.closed {
		return shuffleerrors.ErrWriterClosed
	}
	var scratch [lenSize]byte

	binary.LittleEndian.PutUint32(scratch[:], uint32(len(key)))
	if err := w.writeBody(scratch[:]); err != nil {
		return err
	}
	if err := w.writeBody(key); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(scratch[:], uint32(len(value)))
	if err := w.writeBody(scratch[:]); err != nil {
		return err
	}
	if err := w.writeBody(value); err != nil {
		return err
	}
	w.count++
	return nil
}

func (w *Writer) writeBody(b []byte) error {
	// Digest.Write never fails.
	_, _ = w.digest.Write(b)
	if _, err := w.bw.Write(b); err != nil {
		return fmt.Errorf("write spill body: %w", err)
	}
	return nil
}

// Count returns the number of entries appended so far.
func (w *Writer) Count() uint64 {
	return w.count
}

// Close writes the footer and syncs the file. The file is valid only after
// Close returns nil.
func (w *Writer) Close() error {
	if w.closed {
		return shuffleerrors.ErrWriterClosed
	}
	w.closed = true

	var ftr [footerSize]byte
	binary.LittleEndian.PutUint64(ftr[0:8], w.count)
	binary.LittleEndian.PutUint64(ftr[8:16], w.digest.Sum64())
	if _, err := w.bw.Write(ftr[:]); err != nil {
		return multierr.Append(fmt.Errorf("write spill footer: %w", err), w.f.Close())
	}
	if err := w.bw.Flush(); err != nil {
		return multierr.Append(fmt.Errorf("flush spill file: %w", err), w.f.Close())
	}
	// Written length can undershoot the fallocate size hint when a combiner
	// shrank the output; trim so readers see exactly header+body+footer.
	off, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return multierr.Append(fmt.Errorf("seek spill file: %w", err), w.f.Close())
	}
	if err := w.f.Truncate(off); err != nil {
		return multierr.Append(fmt.Errorf("truncate spill file: %w", err), w.f.Close())
	}
	if err := w.f.Sync(); err != nil {
		return multierr.Append(fmt.Errorf("sync spill file: %w", err), w.f.Close())
	}
	return w.f.Close()
}

// Abort discards the partially written file.
func (w *Writer) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return multierr.Append(w.f.Close(), os.Remove(w.path))
}
