package memory

import (
	"context"
	"fmt"
	"strings"

	"go.miragespace.co/esmodule/sources"

	"github.com/puzpuzpuz/xsync/v2"
)

type MemorySource struct {
	store *xsync.MapOf[string, []byte]
}

var _ sources.Source = (*MemorySource)(nil)

func init() {
	sources.Register(func(uri string) (sources.Source, error) {
		return NewMemorySource(), nil
	}, func(uri string) bool {
		return strings.HasPrefix(uri, "memory")
	})
}

func NewMemorySource() *MemorySource {
	return &MemorySource{
		store: xsync.NewMapOf[[]byte](),
	}
}

func (m *MemorySource) Load(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, ok := m.store.Load(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", sources.ErrNotFound, path)
	}

	return v, nil
}

func (m *MemorySource) Put(path string, source []byte) {
	m.store.Store(path, source)
}

func (m *MemorySource) Del(path string) (deleted bool) {
	_, deleted = m.store.LoadAndDelete(path)
	return
}
