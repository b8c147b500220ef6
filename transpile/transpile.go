package transpile

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

var ErrTranspile = fmt.Errorf("transpile: typescript")

// IsTypescript reports whether the module at path needs TranspileTypescript
// before it can be rewritten.
func IsTypescript(modulePath string) bool {
	switch path.Ext(modulePath) {
	case ".ts", ".mts", ".cts":
		return true
	}
	return false
}

// TranspileTypescript strips types from the module read from reader. Import
// and export statements are kept as ES module syntax.
func TranspileTypescript(ctx context.Context, reader io.Reader) (string, error) {
	src, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}

	type result struct {
		code string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		res := api.Transform(string(src), api.TransformOptions{
			Loader:   api.LoaderTS,
			Target:   api.ES2017,
			LogLevel: api.LogLevelSilent,
		})
		if len(res.Errors) > 0 {
			msgs := make([]string, 0, len(res.Errors))
			for _, e := range res.Errors {
				if e.Location != nil {
					msgs = append(msgs, fmt.Sprintf("%d:%d: %s", e.Location.Line, e.Location.Column, e.Text))
				} else {
					msgs = append(msgs, e.Text)
				}
			}
			done <- result{err: fmt.Errorf("%w: %s", ErrTranspile, strings.Join(msgs, "; "))}
			return
		}
		done <- result{code: string(res.Code)}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.code, r.err
	}
}
