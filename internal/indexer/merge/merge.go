// Package merge combines segment files into a single index file.
//
// Segments are kept in levels. Level 0 holds segments as they arrive; once a
// level reaches the fan-in width its files are merged into one segment that
// is pushed onto the next level. Finish folds whatever is left into one file
// named MergedFileName.
package merge

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/internal/indexer/tmpdir"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/metrics"
)

const (
	DefaultFanIn   = 8
	MergedFileName = "index.dat"

	// finalLevel labels merges performed by Finish.
	finalLevel = -1
)

// FileMerge is not safe for concurrent use. The pipeline drives it from a
// single goroutine.
type FileMerge struct {
	outputDir string
	tmp       *tmpdir.Dir
	fanIn     int
	levels    [][]string
	added     int
	merges    int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type Option func(*FileMerge)

// WithFanIn sets how many segments one merge step combines. Values below 2
// are ignored.
func WithFanIn(n int) Option {
	return func(m *FileMerge) {
		if n >= 2 {
			m.fanIn = n
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *FileMerge) { m.metrics = mt }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *FileMerge) { m.logger = l }
}

// New creates a merger that writes intermediate files through tmp and the
// final index into outputDir.
func New(outputDir string, tmp *tmpdir.Dir, opts ...Option) *FileMerge {
	m := &FileMerge{
		outputDir: outputDir,
		tmp:       tmp,
		fanIn:     DefaultFanIn,
		logger:    logger.WithComponent("merge"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddFile takes ownership of the segment at path. It may merge a full level
// before returning; the inputs of a merge are deleted once consumed.
func (m *FileMerge) AddFile(path string) error {
	m.added++
	for level := 0; ; level++ {
		if level == len(m.levels) {
			m.levels = append(m.levels, nil)
		}
		m.levels[level] = append(m.levels[level], path)
		if len(m.levels[level]) < m.fanIn {
			m.metrics.SetPending(m.Pending())
			return nil
		}

		batch := m.levels[level]
		m.levels[level] = nil
		merged, err := m.mergeFiles(batch, level+1)
		if err != nil {
			return fmt.Errorf("merging level %d: %w", level, err)
		}
		path = merged
	}
}

// Finish merges every pending segment into outputDir/index.dat and returns
// its path. It fails with ErrNoOutput when no segment was ever added.
func (m *FileMerge) Finish() (string, error) {
	// Each level is taken newest first; a batch is reversed again before
	// merging.
	var queue []string
	for _, level := range m.levels {
		for i := len(level) - 1; i >= 0; i-- {
			queue = append(queue, level[i])
		}
	}
	m.levels = nil

	var batch []string
	for i, path := range queue {
		batch = append(batch, path)
		if len(batch) < m.fanIn {
			continue
		}
		merged, err := m.mergeReversed(batch)
		if err != nil {
			m.removeAll(queue[i+1:])
			return "", err
		}
		batch = []string{merged}
	}
	if len(batch) > 1 {
		merged, err := m.mergeReversed(batch)
		if err != nil {
			return "", err
		}
		batch = []string{merged}
	}
	m.metrics.SetPending(0)

	if len(batch) == 0 {
		return "", apperrors.ErrNoOutput
	}
	final := filepath.Join(m.outputDir, MergedFileName)
	if err := os.Rename(batch[0], final); err != nil {
		os.Remove(batch[0])
		return "", fmt.Errorf("renaming %s to %s: %w", batch[0], final, err)
	}
	m.logger.Info("index written", "path", final, "segments", m.added, "merges", m.merges)
	return final, nil
}

// Discard deletes every pending segment. It is used when a build is
// abandoned.
func (m *FileMerge) Discard() {
	for _, level := range m.levels {
		m.removeAll(level)
	}
	m.levels = nil
	m.metrics.SetPending(0)
}

// Pending returns the number of segments waiting in the levels.
func (m *FileMerge) Pending() int {
	n := 0
	for _, level := range m.levels {
		n += len(level)
	}
	return n
}

// Added returns how many segments were handed to AddFile.
func (m *FileMerge) Added() int {
	return m.added
}

// Merges returns how many merge steps ran.
func (m *FileMerge) Merges() int {
	return m.merges
}

func (m *FileMerge) mergeReversed(paths []string) (string, error) {
	for i, j := 0, len(paths)-1; i < j; i, j = i+1, j-1 {
		paths[i], paths[j] = paths[j], paths[i]
	}
	return m.mergeFiles(paths, finalLevel)
}

// mergeFiles merges paths into a new temp segment. The inputs are removed
// whether or not the merge succeeds.
func (m *FileMerge) mergeFiles(paths []string, level int) (string, error) {
	readers := make([]*segment.Reader, 0, len(paths))
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()
	for i, p := range paths {
		r, err := segment.OpenReader(p)
		if err != nil {
			m.removeAll(paths[i+1:])
			return "", err
		}
		readers = append(readers, r)
	}

	outPath, f, err := m.tmp.Create()
	if err != nil {
		return "", err
	}
	w, err := segment.NewWriter(f)
	if err != nil {
		f.Close()
		os.Remove(outPath)
		return "", err
	}
	if err := mergeStreams(readers, w); err != nil {
		w.Abort()
		return "", err
	}
	if err := w.Finish(); err != nil {
		w.Abort()
		return "", err
	}

	var closeErr error
	for _, r := range readers {
		if err := r.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
	}
	readers = nil
	if closeErr != nil {
		os.Remove(outPath)
		return "", closeErr
	}

	m.merges++
	m.metrics.ObserveMerge(level)
	m.metrics.ObserveSegment("merge", int64(w.Size()))
	m.logger.Debug("segments merged",
		"inputs", len(paths),
		"output", outPath,
		"level", level,
		"terms", w.Entries(),
	)
	return outPath, nil
}

// mergeStreams repeatedly picks the smallest next term across readers, moves
// its postings from every reader positioned at it, and records one combined
// entry.
func mergeStreams(readers []*segment.Reader, out *segment.Writer) error {
	for {
		var (
			term   string
			df     uint32
			length uint64
			found  bool
		)
		for _, r := range readers {
			e := r.Peek()
			if e == nil {
				continue
			}
			switch {
			case !found || e.Term < term:
				term, df, length, found = e.Term, e.DocFreq, e.Length, true
			case e.Term == term:
				df += e.DocFreq
				length += e.Length
			}
		}
		if !found {
			return nil
		}

		start := out.Offset()
		for _, r := range readers {
			if !r.IsAt(term) {
				continue
			}
			if err := r.MoveEntryTo(out); err != nil {
				return err
			}
		}
		if moved := out.Offset() - start; moved != length {
			return fmt.Errorf("%w: moved %d bytes for %q, entries declared %d",
				apperrors.ErrInternal, moved, term, length)
		}
		out.WriteContentEntry(term, df, start, length)
	}
}

func (m *FileMerge) removeAll(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil {
			m.logger.Debug("removing segment", "path", p, "error", err)
		}
	}
}
