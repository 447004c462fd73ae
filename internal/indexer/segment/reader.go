package segment

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/errors"
)

// Entry is one table-of-contents record.
type Entry struct {
	Term    string
	DocFreq uint32
	Offset  uint64
	Length  uint64
}

// Reader walks a segment front to back with two cursors: one over the main
// region and one over the table of contents. A Reader owns its file and
// deletes it on Close.
type Reader struct {
	path     string
	mainFile *os.File
	tocFile  *os.File
	main     *bufio.Reader
	contents *bufio.Reader
	mainPos  uint64
	tocStart uint64
	tocPos   uint64
	size     uint64
	next     *Entry
	prevTerm string
	havePrev bool
	keep     bool
	closed   bool
}

// OpenReader opens a segment for a single consuming pass. The file is
// removed when the Reader is closed, and also when opening fails.
func OpenReader(path string) (*Reader, error) {
	r, err := open(path)
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	return r, nil
}

func open(path string) (*Reader, error) {
	mainFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	info, err := mainFile.Stat()
	if err != nil {
		mainFile.Close()
		return nil, fmt.Errorf("stat segment file: %w", err)
	}
	r := &Reader{
		path:     path,
		mainFile: mainFile,
		main:     bufio.NewReaderSize(mainFile, bufferSize),
		size:     uint64(info.Size()),
	}

	var header [HeaderSize]byte
	if _, err := io.ReadFull(r.main, header[:]); err != nil {
		r.closeFiles()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, apperrors.Corruptf("%s: truncated header", path)
		}
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}
	r.mainPos = HeaderSize
	r.tocStart = binary.LittleEndian.Uint64(header[:])
	if r.tocStart < HeaderSize || r.tocStart > r.size {
		r.closeFiles()
		return nil, apperrors.Corruptf("%s: table of contents offset %d outside file of %d bytes",
			path, r.tocStart, r.size)
	}

	r.tocFile, err = os.Open(path)
	if err != nil {
		r.closeFiles()
		return nil, fmt.Errorf("opening segment contents: %w", err)
	}
	if _, err := r.tocFile.Seek(int64(r.tocStart), io.SeekStart); err != nil {
		r.closeFiles()
		return nil, fmt.Errorf("seeking to table of contents: %w", err)
	}
	r.contents = bufio.NewReaderSize(r.tocFile, bufferSize)
	r.tocPos = r.tocStart

	if r.next, err = r.readEntry(); err != nil {
		r.closeFiles()
		return nil, err
	}
	return r, nil
}

// readEntry decodes the next TOC entry, or returns nil at the end of the
// table.
func (r *Reader) readEntry() (*Entry, error) {
	var fixed [entryFixedSize]byte
	n, err := io.ReadFull(r.contents, fixed[:])
	switch {
	case err == io.EOF:
		return nil, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, apperrors.Corruptf("%s: truncated entry at offset %d (%d bytes)", r.path, r.tocPos, n)
	case err != nil:
		return nil, fmt.Errorf("reading table of contents of %s: %w", r.path, err)
	}
	e := &Entry{
		Offset:  binary.LittleEndian.Uint64(fixed[0:8]),
		Length:  binary.LittleEndian.Uint64(fixed[8:16]),
		DocFreq: binary.LittleEndian.Uint32(fixed[16:20]),
	}
	termLen := uint64(binary.LittleEndian.Uint32(fixed[20:24]))
	r.tocPos += entryFixedSize

	if termLen > r.size-r.tocPos {
		return nil, apperrors.Corruptf("%s: term of %d bytes at offset %d runs past end of file",
			r.path, termLen, r.tocPos)
	}
	term := make([]byte, termLen)
	if _, err := io.ReadFull(r.contents, term); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, apperrors.Corruptf("%s: truncated term at offset %d", r.path, r.tocPos)
		}
		return nil, fmt.Errorf("reading term of %s: %w", r.path, err)
	}
	if !utf8.Valid(term) {
		return nil, apperrors.Corruptf("%s: term at offset %d is not valid UTF-8", r.path, r.tocPos)
	}
	r.tocPos += termLen
	e.Term = string(term)
	if r.havePrev && e.Term <= r.prevTerm {
		return nil, apperrors.Corruptf("%s: term %q follows %q out of order", r.path, e.Term, r.prevTerm)
	}
	r.prevTerm, r.havePrev = e.Term, true

	if e.Length > math.MaxInt64 {
		return nil, apperrors.Corruptf("%s: entry %q declares %d bytes", r.path, e.Term, e.Length)
	}
	if e.Offset < HeaderSize || e.Offset > r.tocStart || e.Length > r.tocStart-e.Offset {
		return nil, apperrors.Corruptf("%s: entry %q spans [%d, +%d) outside main region ending at %d",
			r.path, e.Term, e.Offset, e.Length, r.tocStart)
	}
	return e, nil
}

// Peek returns the next unread entry without consuming it, or nil once the
// table is exhausted.
func (r *Reader) Peek() *Entry {
	return r.next
}

// IsAt reports whether the next entry is for term.
func (r *Reader) IsAt(term string) bool {
	return r.next != nil && r.next.Term == term
}

// MoveEntryTo copies the next entry's postings into w's main region and
// advances to the following entry. It writes no TOC entry; the caller
// records the combined entry.
func (r *Reader) MoveEntryTo(w *Writer) error {
	return r.copyNext(w)
}

func (r *Reader) copyNext(dst io.Writer) error {
	e := r.next
	if e == nil {
		return fmt.Errorf("%s: no entry to move", r.path)
	}
	if e.Offset != r.mainPos {
		return apperrors.Corruptf("%s: entry %q starts at %d but postings cursor is at %d",
			r.path, e.Term, e.Offset, r.mainPos)
	}
	if _, err := io.CopyN(dst, r.main, int64(e.Length)); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.Corruptf("%s: postings of %q truncated", r.path, e.Term)
		}
		return fmt.Errorf("copying postings of %q: %w", e.Term, err)
	}
	r.mainPos += e.Length

	next, err := r.readEntry()
	if err != nil {
		return err
	}
	r.next = next
	return nil
}

// skip advances past the next entry without reading its postings.
func (r *Reader) skip() error {
	next, err := r.readEntry()
	if err != nil {
		return err
	}
	r.next = next
	return nil
}

// Path returns the file backing the reader.
func (r *Reader) Path() string {
	return r.path
}

// Close releases both cursors and deletes the segment file.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	err := r.closeFiles()
	if r.keep {
		return err
	}
	if rmErr := os.Remove(r.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) && err == nil {
		err = fmt.Errorf("removing segment file: %w", rmErr)
	}
	return err
}

func (r *Reader) closeFiles() error {
	r.closed = true
	var err error
	if r.mainFile != nil {
		err = r.mainFile.Close()
	}
	if r.tocFile != nil {
		if cerr := r.tocFile.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Walk visits every entry of the segment at path together with its postings,
// leaving the file in place.
func Walk(path string, fn func(e Entry, postings []byte) error) error {
	r, err := open(path)
	if err != nil {
		return err
	}
	r.keep = true
	defer r.Close()

	var buf bytes.Buffer
	for r.next != nil {
		e := *r.next
		buf.Reset()
		if err := r.copyNext(&buf); err != nil {
			return err
		}
		if err := fn(e, buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// ScanContents visits the table of contents only, leaving the file in place.
func ScanContents(path string, fn func(e Entry) error) error {
	r, err := open(path)
	if err != nil {
		return err
	}
	r.keep = true
	defer r.Close()

	for r.next != nil {
		if err := fn(*r.next); err != nil {
			return err
		}
		if err := r.skip(); err != nil {
			return err
		}
	}
	return nil
}
