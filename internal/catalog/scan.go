package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Scanner walks a folder for playable media files.
type Scanner struct {
	logger *slog.Logger
}

func NewScanner(logger *slog.Logger) *Scanner {
	return &Scanner{logger: logger}
}

// ScanFolder returns the absolute paths of every image and video under root,
// sorted by path. Hidden directories are skipped.
func (s *Scanner) ScanFolder(ctx context.Context, root string) ([]string, error) {
	absPath, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory")
	}

	var files []string
	err = filepath.WalkDir(absPath, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if p != absPath && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := KindForFile(d.Name()); ok {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	if s.logger != nil {
		s.logger.Info("scanned folder", "path", absPath, "count", len(files))
	}
	return files, nil
}
