package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/internal/indexer/merge"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/metrics"
)

func testConfig(outputDir string, singleThreaded bool, threshold int64) config.IndexerConfig {
	cfg := config.Default().Indexer
	cfg.OutputDir = outputDir
	cfg.SingleThreaded = singleThreaded
	cfg.LargeThreshold = threshold
	cfg.FanIn = 2
	cfg.QueueCapacity = 2
	cfg.ProgressEvery = 1
	return cfg
}

func writeDocs(t *testing.T, texts ...string) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, len(texts))
	for i, text := range texts {
		paths[i] = filepath.Join(dir, fmt.Sprintf("doc%03d.txt", i))
		require.NoError(t, os.WriteFile(paths[i], []byte(text), 0o644))
	}
	return paths
}

type posting struct{ doc, pos uint32 }

type termInfo struct {
	df       uint32
	postings []posting
}

// readIndex decodes a finished index whose documents never repeat a term,
// so every Hit is exactly one document id and one position.
func readIndex(t *testing.T, path string) map[string]termInfo {
	t.Helper()
	out := map[string]termInfo{}
	err := segment.Walk(path, func(e segment.Entry, postings []byte) error {
		words, err := index.Words(postings)
		if err != nil {
			return err
		}
		info := termInfo{df: e.DocFreq}
		for i := 0; i+1 < len(words); i += 2 {
			info.postings = append(info.postings, posting{words[i], words[i+1]})
		}
		sort.Slice(info.postings, func(i, j int) bool { return info.postings[i].doc < info.postings[j].doc })
		out[e.Term] = info
		return nil
	})
	require.NoError(t, err)
	return out
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

var modes = []struct {
	name           string
	singleThreaded bool
}{
	{ModeSequential, true},
	{ModePipeline, false},
}

func TestBuildSmallCorpus(t *testing.T) {
	for _, mode := range modes {
		for _, threshold := range []int64{0, index.DefaultLargeThreshold} {
			t.Run(fmt.Sprintf("%s/threshold=%d", mode.name, threshold), func(t *testing.T) {
				out := t.TempDir()
				e, err := NewEngine(testConfig(out, mode.singleThreaded, threshold), nil)
				require.NoError(t, err)

				report, err := e.Build(context.Background(), writeDocs(t, "the cat sat", "The dog, sat."))
				require.NoError(t, err)
				require.Equal(t, filepath.Join(out, merge.MergedFileName), report.OutputPath)
				require.Equal(t, []string{merge.MergedFileName}, dirNames(t, out))
				require.Equal(t, mode.name, report.Mode)
				require.Equal(t, int64(2), report.Documents)
				require.Equal(t, int64(6), report.Words)
				require.Equal(t, int64(4), report.Terms)
				if threshold == 0 {
					require.Equal(t, int64(2), report.Segments)
				} else {
					require.Equal(t, int64(1), report.Segments)
				}

				got := readIndex(t, report.OutputPath)
				require.Equal(t, map[string]termInfo{
					"cat": {df: 1, postings: []posting{{0, 1}}},
					"dog": {df: 1, postings: []posting{{1, 1}}},
					"sat": {df: 2, postings: []posting{{0, 2}, {1, 2}}},
					"the": {df: 2, postings: []posting{{0, 0}, {1, 0}}},
				}, got)
			})
		}
	}
}

func TestBuildModesAgree(t *testing.T) {
	var texts []string
	for i := 0; i < 40; i++ {
		texts = append(texts, fmt.Sprintf("common w%d v%d u%d", i%7, i%3, i))
	}
	docs := writeDocs(t, texts...)

	results := map[string]map[string]termInfo{}
	for _, mode := range modes {
		out := t.TempDir()
		e, err := NewEngine(testConfig(out, mode.singleThreaded, 5), nil)
		require.NoError(t, err)
		report, err := e.Build(context.Background(), docs)
		require.NoError(t, err, mode.name)
		require.Positive(t, report.Merges)
		require.Equal(t, []string{merge.MergedFileName}, dirNames(t, out))
		results[mode.name] = readIndex(t, report.OutputPath)
	}

	seq := results[ModeSequential]
	require.Equal(t, seq, results[ModePipeline])
	require.Equal(t, uint32(40), seq["common"].df)
	require.Equal(t, uint32(14), seq["v0"].df)
	require.Equal(t, []posting{{39, 3}}, seq["u39"].postings)
	require.Len(t, seq, 1+7+3+40)
}

func TestBuildWithoutWords(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			out := t.TempDir()
			e, err := NewEngine(testConfig(out, mode.singleThreaded, 0), nil)
			require.NoError(t, err)

			_, err = e.Build(context.Background(), writeDocs(t, "  ,. ", ""))
			require.ErrorIs(t, err, apperrors.ErrNoOutput)
			require.Empty(t, dirNames(t, out))

			_, err = e.Build(context.Background(), nil)
			require.ErrorIs(t, err, apperrors.ErrNoOutput)
		})
	}
}

func TestBuildInputErrorsLeaveNothing(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name+"/missing", func(t *testing.T) {
			out := t.TempDir()
			e, err := NewEngine(testConfig(out, mode.singleThreaded, 0), nil)
			require.NoError(t, err)

			docs := writeDocs(t, "one two", "three four", "five")
			docs = append(docs[:2], filepath.Join(t.TempDir(), "missing.txt"), docs[2])
			_, err = e.Build(context.Background(), docs)
			require.ErrorIs(t, err, apperrors.ErrInvalidInput)
			require.Equal(t, apperrors.ExitInvalidInput, apperrors.ExitCode(err))
			require.Empty(t, dirNames(t, out))
		})
		t.Run(mode.name+"/not utf8", func(t *testing.T) {
			out := t.TempDir()
			e, err := NewEngine(testConfig(out, mode.singleThreaded, 0), nil)
			require.NoError(t, err)

			docs := writeDocs(t, "fine text", "\xff\xfe bad")
			_, err = e.Build(context.Background(), docs)
			require.ErrorIs(t, err, apperrors.ErrInvalidInput)
			require.Empty(t, dirNames(t, out))
		})
	}
}

func TestBuildSegmentWriteFailure(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			out := t.TempDir()
			taken := filepath.Join(out, "tmp00000001.dat")
			require.NoError(t, os.WriteFile(taken, nil, 0o644))

			cfg := testConfig(out, mode.singleThreaded, 0)
			cfg.TempMaxAttempts = 1
			e, err := NewEngine(cfg, nil)
			require.NoError(t, err)

			_, err = e.Build(context.Background(), writeDocs(t, "a b", "c d", "e f"))
			require.ErrorIs(t, err, apperrors.ErrTempExhausted)
			require.Equal(t, apperrors.ExitTempExhausted, apperrors.ExitCode(err))
			require.Equal(t, []string{"tmp00000001.dat"}, dirNames(t, out))
		})
	}
}

func TestBuildCancelled(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			out := t.TempDir()
			e, err := NewEngine(testConfig(out, mode.singleThreaded, 0), nil)
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err = e.Build(ctx, writeDocs(t, "a b", "c d"))
			require.ErrorIs(t, err, context.Canceled)
			require.Empty(t, dirNames(t, out))
		})
	}
}

func TestBuildRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	out := t.TempDir()
	e, err := NewEngine(testConfig(out, false, 0), m)
	require.NoError(t, err)

	_, err = e.Build(context.Background(), writeDocs(t, "a b c", "d e", "f"))
	require.NoError(t, err)
	require.Equal(t, 3.0, testutil.ToFloat64(m.DocsIndexedTotal))
	require.Equal(t, 6.0, testutil.ToFloat64(m.WordsIndexedTotal))
	require.Equal(t, 3.0, testutil.ToFloat64(m.SegmentsWrittenTotal.WithLabelValues("flush")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.BuildsTotal.WithLabelValues(ModePipeline, "ok")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.PendingSegments))
}

func TestExpandPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.txt", "a.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "c.txt"), []byte("x"), 0o644))
	single := filepath.Join(t.TempDir(), "single.txt")
	require.NoError(t, os.WriteFile(single, []byte("x"), 0o644))

	paths, err := ExpandPaths([]string{single, dir})
	require.NoError(t, err)
	require.Equal(t, []string{
		single,
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.txt"),
	}, paths)

	_, err = ExpandPaths([]string{filepath.Join(dir, "nope")})
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
