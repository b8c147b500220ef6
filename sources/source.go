package sources

import (
	"context"
	"fmt"
	"path"
	"strings"
)

var (
	ErrNotFound        = fmt.Errorf("sources: module not found")
	ErrBackingNotFound = fmt.Errorf("sources: backing not found")
)

// Source returns the text of modules by their resolved path.
type Source interface {
	Load(ctx context.Context, path string) ([]byte, error)
}

// Resolve returns the path of the module imported as specifier from the
// module at parent. Relative specifiers are resolved against the directory of
// parent, everything else against the root of the source.
func Resolve(specifier, parent string) string {
	if strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") {
		return path.Join(path.Dir(parent), specifier)
	}
	return path.Clean(strings.TrimPrefix(specifier, "/"))
}
