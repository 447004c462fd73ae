package indexer

import (
	"fmt"
	"os"
	"path/filepath"

	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-index-builder/pkg/errors"
)

// ExpandPaths turns command-line arguments into document paths. A directory
// contributes its regular files, not recursively, in name order; anything
// else is taken as a document.
func ExpandPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
		}
		for _, entry := range entries {
			if entry.Type().IsRegular() {
				paths = append(paths, filepath.Join(arg, entry.Name()))
			}
		}
	}
	return paths, nil
}
