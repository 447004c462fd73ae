package indexer

import (
	"context"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/internal/indexer/merge"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/internal/indexer/tmpdir"
)

// runPipeline connects four stages with bounded channels:
//
//	read -> index -> accumulate -> write segments
//
// and feeds the written segments to the merge on the calling goroutine. A
// stage that cannot send because the group context is cancelled stops
// without error, so the first real failure is the one reported.
func (b *build) runPipeline(ctx context.Context, documents []string) (*merge.FileMerge, error) {
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	capacity := b.cfg.QueueCapacity
	texts := make(chan string, capacity)
	docs := make(chan *index.MemoryIndex, capacity)
	large := make(chan *index.MemoryIndex, capacity)
	files := make(chan string, capacity)

	g.Go(func() error { return readDocuments(gctx, documents, texts) })
	g.Go(func() error { return b.indexDocuments(gctx, texts, docs) })
	g.Go(func() error { return b.accumulate(gctx, docs, large) })
	// The writer and the merge each name their own temp files.
	g.Go(func() error {
		return b.writeSegments(gctx, large, files, tmpdir.New(b.cfg.OutputDir, b.cfg.TempMaxAttempts))
	})

	fm := b.newMerge(tmpdir.New(b.cfg.OutputDir, b.cfg.TempMaxAttempts))
	var mergeErr error
	for path := range files {
		if mergeErr != nil || gctx.Err() != nil {
			os.Remove(path)
			continue
		}
		if err := fm.AddFile(path); err != nil {
			mergeErr = err
			cancel()
		}
	}

	err := g.Wait()
	switch {
	case err != nil:
	case mergeErr != nil:
		err = mergeErr
	default:
		err = parent.Err()
	}
	if err != nil {
		fm.Discard()
		return nil, err
	}
	return fm, nil
}

func readDocuments(ctx context.Context, paths []string, out chan<- string) error {
	defer close(out)
	for _, path := range paths {
		if ctx.Err() != nil {
			return nil
		}
		text, err := readDocument(path)
		if err != nil {
			return err
		}
		select {
		case out <- text:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

func (b *build) indexDocuments(ctx context.Context, in <-chan string, out chan<- *index.MemoryIndex) error {
	defer close(out)
	var docID uint32
	for text := range in {
		idx := b.indexDocument(docID, text)
		docID++
		select {
		case out <- idx:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// accumulate folds per-document indexes together and passes each one on
// once it is large, plus whatever remains at the end.
func (b *build) accumulate(ctx context.Context, in <-chan *index.MemoryIndex, out chan<- *index.MemoryIndex) error {
	defer close(out)
	acc := b.newIndex()
	for idx := range in {
		acc.Merge(idx)
		if !acc.IsLarge() {
			continue
		}
		select {
		case out <- acc:
		case <-ctx.Done():
			return nil
		}
		acc = b.newIndex()
	}
	if acc.IsEmpty() || ctx.Err() != nil {
		return nil
	}
	select {
	case out <- acc:
	case <-ctx.Done():
	}
	return nil
}

func (b *build) writeSegments(ctx context.Context, in <-chan *index.MemoryIndex, out chan<- string, tmp *tmpdir.Dir) error {
	defer close(out)
	for idx := range in {
		if ctx.Err() != nil {
			return nil
		}
		path, err := b.writeSegment(idx, tmp)
		if err != nil {
			return err
		}
		select {
		case out <- path:
		case <-ctx.Done():
			os.Remove(path)
			return nil
		}
	}
	return nil
}
