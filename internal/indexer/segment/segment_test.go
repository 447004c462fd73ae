package segment

import (
	"bytes"
	"encoding/binary"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/internal/indexer/tmpdir"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/logger"
)

func buildIndex(docs ...string) *index.MemoryIndex {
	m := index.NewMemoryIndex()
	for i, d := range docs {
		m.Merge(index.FromDocument(uint32(i), d))
	}
	return m
}

func TestWriteIndexLayout(t *testing.T) {
	tmp := tmpdir.New(t.TempDir(), 0)
	path, err := WriteIndex(index.FromDocument(0, "b a"), tmp)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	le := binary.LittleEndian
	var want []byte
	want = le.AppendUint64(want, 24)
	// main region: "a" then "b"
	want = le.AppendUint32(want, 0)
	want = le.AppendUint32(want, 1)
	want = le.AppendUint32(want, 0)
	want = le.AppendUint32(want, 0)
	// table of contents
	for _, e := range []struct {
		term   string
		offset uint64
	}{{"a", 8}, {"b", 16}} {
		want = le.AppendUint64(want, e.offset)
		want = le.AppendUint64(want, 8)
		want = le.AppendUint32(want, 1)
		want = le.AppendUint32(want, 1)
		want = append(want, e.term...)
	}
	require.Equal(t, want, data)
}

func TestRoundTrip(t *testing.T) {
	m := buildIndex("the cat sat on the mat", "the dog sat", "a zebra")
	expected := map[string][]byte{}
	dfs := map[string]uint32{}
	for _, term := range m.SortedTerms() {
		var buf []byte
		for _, h := range m.Hits(term) {
			buf = append(buf, h...)
		}
		expected[term] = buf
		dfs[term] = uint32(len(m.Hits(term)))
	}

	path, err := WriteIndex(m, tmpdir.New(t.TempDir(), 0))
	require.NoError(t, err)

	var terms []string
	err = Walk(path, func(e Entry, postings []byte) error {
		terms = append(terms, e.Term)
		require.Equal(t, dfs[e.Term], e.DocFreq, e.Term)
		require.Equal(t, expected[e.Term], postings, e.Term)
		require.Equal(t, uint64(len(postings)), e.Length)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, terms, len(expected))
	for i := 1; i < len(terms); i++ {
		require.Less(t, terms[i-1], terms[i])
	}

	// Walk leaves the file in place
	_, err = os.Stat(path)
	require.NoError(t, err)

	var scanned int
	require.NoError(t, ScanContents(path, func(e Entry) error {
		scanned++
		return nil
	}))
	require.Equal(t, len(terms), scanned)
}

func TestReaderMoveEntryAndDelete(t *testing.T) {
	dir := t.TempDir()
	tmp := tmpdir.New(dir, 0)
	src, err := WriteIndex(buildIndex("apple banana", "banana cherry"), tmp)
	require.NoError(t, err)

	r, err := OpenReader(src)
	require.NoError(t, err)
	require.Equal(t, "apple", r.Peek().Term)
	require.True(t, r.IsAt("apple"))
	require.False(t, r.IsAt("banana"))

	outPath, f, err := tmp.Create()
	require.NoError(t, err)
	w, err := NewWriter(f)
	require.NoError(t, err)

	for r.Peek() != nil {
		e := *r.Peek()
		start := w.Offset()
		require.NoError(t, r.MoveEntryTo(w))
		w.WriteContentEntry(e.Term, e.DocFreq, start, w.Offset()-start)
	}
	require.Nil(t, r.Peek())
	require.False(t, r.IsAt("apple"))
	require.NoError(t, w.Finish())

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	_, err = os.Stat(src)
	require.True(t, os.IsNotExist(err))

	var got []Entry
	require.NoError(t, ScanContents(outPath, func(e Entry) error {
		got = append(got, e)
		return nil
	}))
	require.Len(t, got, 3)
	require.Equal(t, "banana", got[1].Term)
	require.Equal(t, uint32(2), got[1].DocFreq)
}

func TestEmptySegment(t *testing.T) {
	path, err := WriteIndex(index.NewMemoryIndex(), tmpdir.New(t.TempDir(), 0))
	require.NoError(t, err)
	r, err := OpenReader(path)
	require.NoError(t, err)
	require.Nil(t, r.Peek())
	require.NoError(t, r.Close())
}

func TestCorruptSegments(t *testing.T) {
	le := binary.LittleEndian
	entry := func(offset, length uint64, df uint32, term []byte) []byte {
		var b []byte
		b = le.AppendUint64(b, offset)
		b = le.AppendUint64(b, length)
		b = le.AppendUint32(b, df)
		b = le.AppendUint32(b, uint32(len(term)))
		return append(b, term...)
	}
	segment := func(main []byte, toc ...[]byte) []byte {
		b := le.AppendUint64(nil, uint64(HeaderSize+len(main)))
		b = append(b, main...)
		for _, e := range toc {
			b = append(b, e...)
		}
		return b
	}
	main := make([]byte, 8)

	tests := []struct {
		name string
		data []byte
	}{
		{"truncated header", []byte{1, 2, 3}},
		{"toc offset past end", le.AppendUint64(nil, 1000)},
		{"toc offset inside header", le.AppendUint64(nil, 3)},
		{"invalid utf8 term", segment(main, entry(8, 8, 1, []byte{0xff, 0xfe}))},
		{"length past main region", segment(main, entry(8, 64, 1, []byte("x")))},
		{"length not representable", segment(main, entry(8, 1<<63, 1, []byte("x")))},
		{"truncated entry", segment(main, entry(8, 8, 1, []byte("x"))[:10])},
		{"term past end of file", segment(main, entry(8, 8, 1, []byte("xyz"))[:26])},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "seg.dat")
			require.NoError(t, os.WriteFile(path, tt.data, 0o644))

			_, err := OpenReader(path)
			require.ErrorIs(t, err, apperrors.ErrCorruptSegment)
			_, statErr := os.Stat(path)
			require.True(t, os.IsNotExist(statErr), "failed open removes the scratch file")
		})
	}
}

func TestCorruptOffsetMismatch(t *testing.T) {
	le := binary.LittleEndian
	var data []byte
	data = le.AppendUint64(data, 24)
	data = append(data, make([]byte, 16)...)
	for _, e := range []struct {
		term   string
		offset uint64
	}{{"a", 8}, {"b", 8}} {
		data = le.AppendUint64(data, e.offset)
		data = le.AppendUint64(data, 8)
		data = le.AppendUint32(data, 1)
		data = le.AppendUint32(data, 1)
		data = append(data, e.term...)
	}
	path := filepath.Join(t.TempDir(), "seg.dat")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	err := Walk(path, func(Entry, []byte) error { return nil })
	require.ErrorIs(t, err, apperrors.ErrCorruptSegment)
}

func TestWalkStopsOnCallbackError(t *testing.T) {
	path, err := WriteIndex(buildIndex("one two three"), tmpdir.New(t.TempDir(), 0))
	require.NoError(t, err)

	stop := errors.New("stop")
	calls := 0
	err = Walk(path, func(Entry, []byte) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, calls)
}

func TestCorruptTermOrder(t *testing.T) {
	tests := []struct {
		name  string
		terms []string
	}{
		{"descending", []string{"b", "a"}},
		{"duplicate", []string{"a", "a"}},
		{"duplicate empty", []string{"", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTOC(t, tt.terms)
			err := ScanContents(path, func(Entry) error { return nil })
			require.ErrorIs(t, err, apperrors.ErrCorruptSegment)
		})
	}
}

func TestSingleEmptyTermAccepted(t *testing.T) {
	path := writeTOC(t, []string{""})
	var terms []string
	require.NoError(t, ScanContents(path, func(e Entry) error {
		terms = append(terms, e.Term)
		return nil
	}))
	require.Equal(t, []string{""}, terms)
}

// writeTOC builds a segment with one 8-byte posting per term.
func writeTOC(t *testing.T, terms []string) string {
	t.Helper()
	le := binary.LittleEndian
	mainEnd := uint64(HeaderSize + 8*len(terms))
	var data []byte
	data = le.AppendUint64(data, mainEnd)
	data = append(data, make([]byte, 8*len(terms))...)
	for i, term := range terms {
		data = le.AppendUint64(data, uint64(HeaderSize+8*i))
		data = le.AppendUint64(data, 8)
		data = le.AppendUint32(data, 1)
		data = le.AppendUint32(data, uint32(len(term)))
		data = append(data, term...)
	}
	path := filepath.Join(t.TempDir(), "seg.dat")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestAbortLogsCleanupFailure(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var buf bytes.Buffer
	logger.SetupWriter(&buf, "debug", "json")

	tmp := tmpdir.New(t.TempDir(), 0)
	path, f, err := tmp.Create()
	require.NoError(t, err)
	w, err := NewWriter(f)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	w.Abort()
	out := buf.String()
	require.Contains(t, out, `"msg":"removing aborted segment"`)
	require.Contains(t, out, `"component":"segment"`)
}
