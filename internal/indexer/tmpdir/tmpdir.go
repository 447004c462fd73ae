// Package tmpdir hands out fresh scratch files inside the output directory.
// A Dir belongs to one goroutine; the builder never shares one between
// concurrent writers.
package tmpdir

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/errors"
)

const DefaultMaxAttempts = 999

// Dir generates tmpNNNNNNNN.dat names from an increasing counter.
type Dir struct {
	dir         string
	n           uint64
	maxAttempts int
}

func New(dir string, maxAttempts int) *Dir {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Dir{dir: dir, n: 1, maxAttempts: maxAttempts}
}

// Path returns the directory files are created in.
func (d *Dir) Path() string {
	return d.dir
}

// Create opens a new file for writing. Names that already exist are skipped
// until the attempt budget runs out.
func (d *Dir) Create() (string, *os.File, error) {
	for attempt := 1; ; attempt++ {
		path := filepath.Join(d.dir, fmt.Sprintf("tmp%08x.dat", d.n))
		d.n++
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return path, f, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", nil, fmt.Errorf("creating temp file %s: %w", path, err)
		}
		if attempt >= d.maxAttempts {
			return "", nil, fmt.Errorf("%w: %d names taken in %s, last %s",
				apperrors.ErrTempExhausted, attempt, d.dir, path)
		}
	}
}
