package modules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.miragespace.co/esmodule/rewrite"
	"go.miragespace.co/esmodule/sources"
	"go.miragespace.co/esmodule/transpile"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

const DefaultTimeout = time.Second * 5

var ErrCircularImport = fmt.Errorf("circular import")

// Rewriter turns module source into a script calling the loader for its
// imports and assigning its exports onto the exports object.
type Rewriter interface {
	Rewrite(source, loaderSymbol, exportsSymbol string) (string, error)
}

type Config struct {
	Logger        *zap.Logger
	Source        sources.Source
	Rewriter      Rewriter
	LoaderSymbol  string
	ExportsSymbol string
	Timeout       time.Duration
}

// Loader evaluates imported modules in a single goja runtime. It must only
// be used from the event loop that owns the runtime.
type Loader struct {
	logger        *zap.Logger
	source        sources.Source
	rewriter      Rewriter
	loaderSymbol  string
	exportsSymbol string
	timeout       time.Duration
	cache         map[string]*goja.Object
	loading       map[string]struct{}
}

func NewLoader(cfg Config) (*Loader, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if cfg.Rewriter == nil {
		return nil, fmt.Errorf("rewriter cannot be nil")
	}
	if !rewrite.IsIdentifier(cfg.LoaderSymbol) {
		return nil, fmt.Errorf("%w: loader %q", rewrite.ErrInvalidSymbol, cfg.LoaderSymbol)
	}
	if !rewrite.IsIdentifier(cfg.ExportsSymbol) {
		return nil, fmt.Errorf("%w: exports %q", rewrite.ErrInvalidSymbol, cfg.ExportsSymbol)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Loader{
		logger:        cfg.Logger,
		source:        cfg.Source,
		rewriter:      cfg.Rewriter,
		loaderSymbol:  cfg.LoaderSymbol,
		exportsSymbol: cfg.ExportsSymbol,
		timeout:       cfg.Timeout,
		cache:         make(map[string]*goja.Object),
		loading:       make(map[string]struct{}),
	}, nil
}

// Importer returns the loader function handed to the module at parent.
// Specifiers are resolved relative to parent, and failures are thrown into
// the calling script.
func (l *Loader) Importer(vm *goja.Runtime, parent string) func(goja.FunctionCall) goja.Value {
	return func(fc goja.FunctionCall) goja.Value {
		specifier := fc.Argument(0).String()
		exports, err := l.Load(vm, sources.Resolve(specifier, parent))
		if err != nil {
			panic(vm.NewGoError(fmt.Errorf("import %q from %q: %w", specifier, parent, err)))
		}
		return exports
	}
}

// Load returns the exports of the module at path, evaluating it on first use.
func (l *Loader) Load(vm *goja.Runtime, path string) (*goja.Object, error) {
	if exports, ok := l.cache[path]; ok {
		return exports, nil
	}
	if _, ok := l.loading[path]; ok {
		return nil, fmt.Errorf("%w: %s", ErrCircularImport, path)
	}

	l.loading[path] = struct{}{}
	defer delete(l.loading, path)

	script, err := l.Compile(path)
	if err != nil {
		return nil, err
	}

	prog, err := goja.Compile(path, script, true)
	if err != nil {
		return nil, fmt.Errorf("error compiling module %s: %w", path, err)
	}

	fnValue, err := vm.RunProgram(prog)
	if err != nil {
		return nil, fmt.Errorf("error evaluating module %s: %w", path, err)
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, fmt.Errorf("internal error: module %s is not wrapped in a function", path)
	}

	exports := vm.NewObject()
	if _, err := fn(goja.Undefined(), exports, vm.ToValue(l.Importer(vm, path))); err != nil {
		return nil, fmt.Errorf("error evaluating module %s: %w", path, err)
	}

	l.cache[path] = exports

	l.logger.Debug("Module loaded",
		zap.String("module", path),
		zap.Int("loaded", len(l.cache)),
	)

	return exports, nil
}

// Compile reads the module at path and returns the wrapped script that
// evaluates to its module function.
func (l *Loader) Compile(path string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	raw, err := l.source.Load(ctx, path)
	if err != nil {
		return "", err
	}

	source := rewrite.NormalizeNewLines(string(raw))
	if transpile.IsTypescript(path) {
		source, err = transpile.TranspileTypescript(ctx, strings.NewReader(source))
		if err != nil {
			return "", err
		}
	}

	body, err := l.rewriter.Rewrite(source, l.loaderSymbol, l.exportsSymbol)
	if err != nil {
		return "", err
	}

	return wrapModule(l.exportsSymbol, l.loaderSymbol, body)
}

// Len is the number of modules evaluated so far.
func (l *Loader) Len() int {
	return len(l.cache)
}
