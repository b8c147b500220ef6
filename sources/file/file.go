package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"go.miragespace.co/esmodule/sources"
)

const scheme = "file://"

// FSSource reads modules from a file system, such as a directory or an
// embed.FS.
type FSSource struct {
	fsys fs.FS
}

var _ sources.Source = (*FSSource)(nil)

func init() {
	sources.Register(NewDirSource, func(uri string) bool {
		return strings.HasPrefix(uri, scheme)
	})
}

// NewDirSource opens file://<dir>.
func NewDirSource(uri string) (sources.Source, error) {
	dir := strings.TrimPrefix(uri, scheme)
	if dir == "" {
		dir = "."
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("sources: opening %s: %w", uri, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sources: %s is not a directory", dir)
	}

	return NewFSSource(os.DirFS(dir)), nil
}

func NewFSSource(fsys fs.FS) *FSSource {
	return &FSSource{
		fsys: fsys,
	}
}

func (f *FSSource) Load(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, err := fs.ReadFile(f.fsys, path)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
		return nil, fmt.Errorf("%w: %s", sources.ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("sources: reading %s: %w", path, err)
	}

	return b, nil
}
