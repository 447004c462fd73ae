// Package indexer builds an on-disk inverted index from a list of text files.
//
// Documents are tokenized, folded into in-memory indexes, flushed to segment
// files whenever the accumulated index grows large, and the segments are
// merged into a single index.dat in the output directory. The work runs
// either on the calling goroutine or as a four-stage pipeline.
package indexer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/internal/indexer/merge"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/internal/indexer/notify"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/internal/indexer/tmpdir"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/tracing"
)

const (
	ModeSequential = "sequential"
	ModePipeline   = "pipeline"

	// maxDocuments is the number of distinct u32 document ids.
	maxDocuments = 1 << 32
)

type Engine struct {
	cfg     config.IndexerConfig
	metrics *metrics.Metrics
}

// NewEngine prepares an engine writing into cfg.OutputDir, creating the
// directory if needed. m may be nil.
func NewEngine(cfg config.IndexerConfig, m *metrics.Metrics) (*Engine, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &Engine{cfg: cfg, metrics: m}, nil
}

// build carries the state of one Build call.
type build struct {
	cfg       config.IndexerConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
	documents atomic.Int64
	words     atomic.Int64
	segments  atomic.Int64
}

// Build indexes documents, in order, into OutputDir/index.dat. Document ids
// are positions in the slice. A failed Build leaves no segment files behind.
func (e *Engine) Build(ctx context.Context, documents []string) (*notify.Report, error) {
	started := time.Now()
	mode := ModePipeline
	if e.cfg.SingleThreaded {
		mode = ModeSequential
	}
	buildID := newBuildID()
	ctx = logger.WithBuildID(ctx, buildID)
	ctx, span := tracing.StartSpan(ctx, "build", buildID)
	b := &build{
		cfg:     e.cfg,
		metrics: e.metrics,
		logger:  logger.FromContext(ctx).With("component", "indexer"),
	}

	final, err := e.run(ctx, b, mode, documents)
	span.End()
	e.metrics.ObserveBuild(mode, err, time.Since(started))
	if err != nil {
		b.logger.Error("build failed", "mode", mode, "error", err)
		return nil, err
	}

	report := &notify.Report{
		BuildID:    buildID,
		OutputPath: final.path,
		Mode:       mode,
		Documents:  b.documents.Load(),
		Words:      b.words.Load(),
		Terms:      final.terms,
		Segments:   b.segments.Load(),
		Merges:     final.merges,
		SizeBytes:  final.size,
		StartedAt:  started.UTC(),
		Duration:   span.Duration,
	}
	span.SetAttr("documents", report.Documents)
	span.SetAttr("terms", report.Terms)
	span.Log(b.logger)
	b.logger.Info("build complete",
		"mode", mode,
		"path", report.OutputPath,
		"documents", report.Documents,
		"words", report.Words,
		"terms", report.Terms,
		"segments", report.Segments,
		"merges", report.Merges,
		"duration", report.Duration,
	)
	return report, nil
}

type output struct {
	path   string
	terms  int64
	size   int64
	merges int
}

func (e *Engine) run(ctx context.Context, b *build, mode string, documents []string) (*output, error) {
	if uint64(len(documents)) > maxDocuments {
		return nil, apperrors.Inputf("%d documents exceed the %d document id limit", len(documents), uint64(maxDocuments))
	}
	b.logger.Info("build started",
		"mode", mode,
		"documents", len(documents),
		"output_dir", e.cfg.OutputDir,
	)

	indexCtx, indexSpan := tracing.StartChildSpan(ctx, "index")
	var (
		fm  *merge.FileMerge
		err error
	)
	if mode == ModeSequential {
		fm, err = b.runSequential(indexCtx, documents)
	} else {
		fm, err = b.runPipeline(indexCtx, documents)
	}
	indexSpan.SetAttr("segments", b.segments.Load())
	indexSpan.End()
	if err != nil {
		return nil, err
	}

	_, finishSpan := tracing.StartChildSpan(ctx, "finish")
	defer finishSpan.End()
	path, err := fm.Finish()
	if err != nil {
		return nil, err
	}
	out := &output{path: path, merges: fm.Merges()}
	err = segment.ScanContents(path, func(segment.Entry) error {
		out.terms++
		return nil
	})
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("verifying %s: %w", path, err)
	}
	if info, err := os.Stat(path); err == nil {
		out.size = info.Size()
	}
	finishSpan.SetAttr("merges", out.merges)
	return out, nil
}

// runSequential does every step on the calling goroutine. On success the
// returned merge holds all segments and still needs Finish.
func (b *build) runSequential(ctx context.Context, documents []string) (*merge.FileMerge, error) {
	tmp := tmpdir.New(b.cfg.OutputDir, b.cfg.TempMaxAttempts)
	fm := b.newMerge(tmp)

	acc := b.newIndex()
	for i, path := range documents {
		if err := ctx.Err(); err != nil {
			fm.Discard()
			return nil, err
		}
		text, err := readDocument(path)
		if err != nil {
			fm.Discard()
			return nil, err
		}
		acc.Merge(b.indexDocument(uint32(i), text))
		if !acc.IsLarge() {
			continue
		}
		if err := b.flush(acc, tmp, fm); err != nil {
			fm.Discard()
			return nil, err
		}
		acc = b.newIndex()
	}
	if !acc.IsEmpty() {
		if err := b.flush(acc, tmp, fm); err != nil {
			fm.Discard()
			return nil, err
		}
	}
	return fm, nil
}

func (b *build) flush(idx *index.MemoryIndex, tmp *tmpdir.Dir, fm *merge.FileMerge) error {
	path, err := b.writeSegment(idx, tmp)
	if err != nil {
		return err
	}
	return fm.AddFile(path)
}

// writeSegment flushes idx to a new temp file.
func (b *build) writeSegment(idx *index.MemoryIndex, tmp *tmpdir.Dir) (string, error) {
	terms, words := idx.Len(), idx.WordCount()
	path, err := segment.WriteIndex(idx, tmp)
	if err != nil {
		return "", fmt.Errorf("writing segment: %w", err)
	}
	b.segments.Add(1)
	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	b.metrics.ObserveSegment("flush", size)
	b.logger.Debug("segment flushed", "path", path, "terms", terms, "words", words, "bytes", size)
	return path, nil
}

func (b *build) newIndex() *index.MemoryIndex {
	return index.NewMemoryIndex().WithThreshold(b.cfg.LargeThreshold)
}

func (b *build) newMerge(tmp *tmpdir.Dir) *merge.FileMerge {
	return merge.New(b.cfg.OutputDir, tmp,
		merge.WithFanIn(b.cfg.FanIn),
		merge.WithMetrics(b.metrics),
		merge.WithLogger(b.logger),
	)
}

// indexDocument tokenizes one document and logs progress every
// ProgressEvery documents.
func (b *build) indexDocument(docID uint32, text string) *index.MemoryIndex {
	idx := index.FromDocument(docID, text)
	b.documents.Add(1)
	b.words.Add(idx.WordCount())
	b.metrics.ObserveDocument(idx.WordCount())
	if every := b.cfg.ProgressEvery; every > 0 && docID%uint32(every) == 0 {
		b.logger.Info("indexed document",
			"doc_id", docID,
			"bytes", len(text),
			"words", idx.WordCount(),
		)
	}
	return idx
}

// readDocument loads a whole file, which must be UTF-8 text.
func readDocument(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
	}
	if !utf8.Valid(data) {
		return "", apperrors.Inputf("%s is not valid UTF-8", path)
	}
	return string(data), nil
}

func newBuildID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
