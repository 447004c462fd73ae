// Package segment reads and writes index segment files.
//
// Layout, all integers little-endian:
//
//	[toc_offset u64]
//	main region: posting bytes of every term, in term order
//	table of contents, one entry per term in the same order:
//	  [offset u64][length u64][doc_freq u32][term_len u32][term bytes]
//
// Offsets are absolute file positions, so the first term's postings start
// at HeaderSize.
package segment

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/internal/indexer/tmpdir"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/logger"
)

const (
	HeaderSize = 8
	// entryFixedSize is the part of a TOC entry before the term bytes.
	entryFixedSize = 8 + 8 + 4 + 4
	bufferSize     = 64 << 10
)

// Writer streams a segment into a freshly created file. Postings go straight
// to the file; the table of contents is buffered until Finish.
type Writer struct {
	f       *os.File
	w       *bufio.Writer
	offset  uint64
	toc     bytes.Buffer
	entries int
	logger  *slog.Logger
}

// NewWriter reserves the header in f. f must be empty.
func NewWriter(f *os.File) (*Writer, error) {
	w := &Writer{
		f:      f,
		w:      bufio.NewWriterSize(f, bufferSize),
		offset: HeaderSize,
		logger: logger.WithComponent("segment"),
	}
	var header [HeaderSize]byte
	if _, err := w.w.Write(header[:]); err != nil {
		return nil, fmt.Errorf("writing header placeholder: %w", err)
	}
	return w, nil
}

// Offset is the absolute position the next main-region byte will land at.
func (w *Writer) Offset() uint64 {
	return w.offset
}

// Write appends p to the main region.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.offset += uint64(n)
	return n, err
}

func (w *Writer) WriteMain(buf []byte) error {
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing postings: %w", err)
	}
	return nil
}

// WriteContentEntry queues a table-of-contents entry. Entries must be added
// in ascending term order.
func (w *Writer) WriteContentEntry(term string, docFreq uint32, offset, length uint64) {
	var fixed [entryFixedSize]byte
	binary.LittleEndian.PutUint64(fixed[0:8], offset)
	binary.LittleEndian.PutUint64(fixed[8:16], length)
	binary.LittleEndian.PutUint32(fixed[16:20], docFreq)
	binary.LittleEndian.PutUint32(fixed[20:24], uint32(len(term)))
	w.toc.Write(fixed[:])
	w.toc.WriteString(term)
	w.entries++
}

// Size is the byte length of the file once Finish has run.
func (w *Writer) Size() uint64 {
	return w.offset + uint64(w.toc.Len())
}

// Entries returns the number of TOC entries written so far.
func (w *Writer) Entries() int {
	return w.entries
}

// Finish appends the table of contents, points the header at it and closes
// the file.
func (w *Writer) Finish() error {
	tocStart := w.offset
	if _, err := w.w.Write(w.toc.Bytes()); err != nil {
		return fmt.Errorf("writing table of contents: %w", err)
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("flushing segment file: %w", err)
	}
	var header [HeaderSize]byte
	binary.LittleEndian.PutUint64(header[:], tocStart)
	if _, err := w.f.WriteAt(header[:], 0); err != nil {
		return fmt.Errorf("updating header: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("syncing segment file: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("closing segment file: %w", err)
	}
	return nil
}

// Abort closes and removes a segment that will not be finished.
func (w *Writer) Abort() {
	path := w.f.Name()
	if err := w.f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		w.logger.Debug("closing aborted segment", "path", path, "error", err)
	}
	if err := os.Remove(path); err != nil {
		w.logger.Debug("removing aborted segment", "path", path, "error", err)
	}
}

// WriteIndex flushes idx into a new temp file and returns its path. idx
// should be discarded afterwards.
func WriteIndex(idx *index.MemoryIndex, tmp *tmpdir.Dir) (string, error) {
	path, f, err := tmp.Create()
	if err != nil {
		return "", err
	}
	w, err := NewWriter(f)
	if err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	for _, term := range idx.SortedTerms() {
		hits := idx.Hits(term)
		start := w.Offset()
		for _, hit := range hits {
			if err := w.WriteMain(hit); err != nil {
				w.Abort()
				return "", fmt.Errorf("writing term %q: %w", term, err)
			}
		}
		w.WriteContentEntry(term, uint32(len(hits)), start, w.Offset()-start)
	}
	if err := w.Finish(); err != nil {
		w.Abort()
		return "", err
	}
	return path, nil
}
