package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"codeguard/internal/worker"

	"go.uber.org/zap"
)

// ErrEnumeration is returned when the root cannot be walked
var ErrEnumeration = errors.New("failed to enumerate input files")

// FileLister enumerates the input files of a run
type FileLister struct {
	logger *zap.Logger
}

// NewFileLister creates a lister
func NewFileLister(logger *zap.Logger) *FileLister {
	return &FileLister{logger: logger}
}

// List walks root recursively and returns one task per regular file whose
// name ends in ext. Tasks are in lexical walk order and indexed in that order.
func (l *FileLister) List(root, ext string, ignoreCase bool) ([]worker.Task, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEnumeration, root, err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnumeration, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrEnumeration, root)
	}

	match := extensionMatcher(ext, ignoreCase)

	var tasks []worker.Task
	var totalSize int64
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || !match(d.Name()) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}

		tasks = append(tasks, worker.Task{
			Index: len(tasks),
			Path:  path,
			Rel:   filepath.ToSlash(rel),
			Size:  fi.Size(),
		})
		totalSize += fi.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnumeration, err)
	}

	l.logger.Info("Finished listing files",
		zap.String("root", absRoot),
		zap.String("extension", ext),
		zap.Int("total_files", len(tasks)),
		zap.Int64("total_size_bytes", totalSize),
	)

	return tasks, nil
}

func extensionMatcher(ext string, ignoreCase bool) func(name string) bool {
	if ignoreCase {
		ext = strings.ToLower(ext)
		return func(name string) bool {
			return strings.HasSuffix(strings.ToLower(name), ext)
		}
	}
	return func(name string) bool {
		return strings.HasSuffix(name, ext)
	}
}
