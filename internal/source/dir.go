package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

const (
	componentsDir = "components"
	sharedDir     = "shared"
)

// Dir reads reference pages from a file system laid out as
//
//	components/<name>.md
//	shared/<name>.md
//
// The version argument of Fetch is ignored; the tree is whatever is on disk.
type Dir struct {
	id     string
	fsys   fs.FS
	logger *zap.Logger
}

// NewDir creates a source over fsys. Its ID is "fs", which says nothing
// about the tree; callers caching the result should prefer NewLocalDir.
func NewDir(fsys fs.FS, logger *zap.Logger) *Dir {
	return newDir("fs", fsys, logger)
}

// NewLocalDir creates a source over a directory on disk, identified by its
// absolute path.
func NewLocalDir(root string, logger *zap.Logger) *Dir {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return newDir("dir:"+root, os.DirFS(root), logger)
}

func newDir(id string, fsys fs.FS, logger *zap.Logger) *Dir {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dir{id: id, fsys: fsys, logger: logger}
}

// ID returns "fixture", "fs" or "dir:<absolute path>".
func (d *Dir) ID() string {
	return d.id
}

// Fetch reads every page. Unreadable pages are skipped.
func (d *Dir) Fetch(ctx context.Context, version string) (*Bundle, error) {
	if d.fsys == nil {
		return nil, errors.New("source: file system is nil")
	}

	components, err := d.readDir(ctx, componentsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if err != nil {
		return nil, err
	}
	shared, err := d.readDir(ctx, sharedDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	return &Bundle{
		Version:    version,
		Shared:     shared,
		Components: components,
	}, nil
}

func (d *Dir) readDir(ctx context.Context, dir string) ([]Document, error) {
	entries, err := fs.ReadDir(d.fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("source: reading %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	docs := make([]Document, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !isComponentPage(entry.Name()) {
			continue
		}

		name := path.Join(dir, entry.Name())
		data, err := fs.ReadFile(d.fsys, name)
		if err != nil {
			d.logger.Warn("Skipping unreadable page", zap.String("path", name), zap.Error(err))
			continue
		}
		docs = append(docs, Document{Name: documentName(entry.Name()), Text: string(data)})
	}
	return docs, nil
}
