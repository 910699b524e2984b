// Package fileselect builds an upload selection from local filesystem paths.
// Paths may contain doublestar glob patterns; the result is an ordered list of
// file handles suitable for uploader.Session.Select.
package fileselect

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/filedrop-io/go-uploadutils/uploader"
)

// Selector expands path patterns into file handles.
type Selector struct {
	pathModifier pathutil.PathModifier
	pathChecker  pathutil.PathChecker
	logger       log.Logger
}

// NewSelector creates a selector with the default path helpers.
func NewSelector(logger log.Logger) Selector {
	return Selector{
		pathModifier: pathutil.NewPathModifier(),
		pathChecker:  pathutil.NewPathChecker(),
		logger:       logger,
	}
}

// Expand resolves the given paths and glob patterns into file handles, in
// input order. Patterns that match nothing and paths that do not exist are
// logged and skipped. Directories are skipped. A path matched more than once
// is selected once (identity is the cleaned absolute path), but two different
// paths with the same base name both stay in the selection.
func (s Selector) Expand(patterns []string) ([]uploader.FileHandle, error) {
	var expandedPaths []string
	for _, pattern := range patterns {
		if !strings.Contains(pattern, "*") {
			expandedPaths = append(expandedPaths, pattern)
			continue
		}

		base, glob := doublestar.SplitPattern(pattern)
		absBase, err := s.pathModifier.AbsPath(base)
		if err != nil {
			return nil, fmt.Errorf("resolve pattern base %s: %w", base, err)
		}
		matches, err := doublestar.Glob(os.DirFS(absBase), glob, doublestar.WithNoFollow())
		if err != nil {
			s.logger.Warnf("Error in path pattern '%s': %s", pattern, err)
			continue
		}
		if matches == nil {
			s.logger.Warnf("No match for path pattern: %s", pattern)
			continue
		}

		for _, match := range matches {
			expandedPaths = append(expandedPaths, filepath.Join(base, match))
		}
	}

	seen := map[string]bool{}
	var files []uploader.FileHandle
	for _, path := range expandedPaths {
		absPath, err := s.pathModifier.AbsPath(path)
		if err != nil {
			s.logger.Warnf("Failed to parse path %s, error: %s", path, err)
			continue
		}
		if seen[absPath] {
			continue
		}

		exists, err := s.pathChecker.IsPathExists(absPath)
		if err != nil {
			s.logger.Warnf("Failed to check path %s, error: %s", absPath, err)
		}
		if !exists {
			s.logger.Warnf("Path doesn't exist: %s", path)
			continue
		}

		info, err := os.Stat(absPath)
		if err != nil {
			s.logger.Warnf("Failed to stat path %s, error: %s", absPath, err)
			continue
		}
		if info.IsDir() {
			s.logger.Debugf("Skipping directory: %s", absPath)
			continue
		}

		seen[absPath] = true
		files = append(files, fileHandle{
			path: absPath,
			name: filepath.Base(absPath),
			size: info.Size(),
		})
	}

	return files, nil
}

// fileHandle is an uploader.FileHandle backed by a file on disk. The size is
// captured at selection time; the file is expected not to change during a
// transfer attempt.
type fileHandle struct {
	path string
	name string
	size int64
}

func (f fileHandle) Name() string { return f.name }

func (f fileHandle) Size() int64 { return f.size }

// ByteRange reads the bytes in [start, end) into memory and returns a reader
// over them. An in-memory reader keeps the range rewindable, which the
// retryable HTTP transports rely on.
func (f fileHandle) ByteRange(start, end int64) (io.Reader, error) {
	if start < 0 || end < start {
		return nil, fmt.Errorf("invalid range [%d, %d)", start, end)
	}

	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.NewSectionReader(file, start, end-start))
	if err != nil {
		return nil, fmt.Errorf("read range [%d, %d) of %s: %w", start, end, f.path, err)
	}
	if int64(len(data)) != end-start {
		return nil, fmt.Errorf("short read: got %d bytes for range [%d, %d) of %s", len(data), start, end, f.path)
	}

	return bytes.NewReader(data), nil
}
