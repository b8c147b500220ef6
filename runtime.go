package esmodule

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"go.miragespace.co/esmodule/extensions/zap_console"
	"go.miragespace.co/esmodule/modules"
	"go.miragespace.co/esmodule/rewrite"
	"go.miragespace.co/esmodule/sources"
	"go.miragespace.co/esmodule/sources/memory"
	"go.miragespace.co/esmodule/transpile"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"
	"golang.org/x/sys/cpu"
)

const (
	DefaultLoaderSymbol  = "__ImportModule"
	DefaultExportsSymbol = "__exports"
)

type RuntimeConfig struct {
	// Shards > 1 evaluates the entry module in multiple JavaScript runtimes
	// and spreads calls across them round-robin.
	Shards int
	// Source holds the imported modules. Defaults to an empty memory source.
	Source        sources.Source
	Rewriter      *rewrite.Rewriter
	LoaderSymbol  string
	ExportsSymbol string
	// LoadTimeout bounds reading a single module from Source.
	LoadTimeout time.Duration
}

type Runtime struct {
	logger    *zap.Logger
	config    RuntimeConfig
	shards    []atomic.Pointer[runtimeInstance]
	_         cpu.CacheLinePad
	nextShard uint32
	_         cpu.CacheLinePad
	numShards int
}

// NewRuntime returns a runtime evaluating ES modules rewritten into scripts.
// No module is loaded until LoadModule or LoadEntry is called.
func NewRuntime(logger *zap.Logger, config RuntimeConfig) (*Runtime, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	if config.Shards == 0 {
		config.Shards = 1
	}
	if config.Shards < 1 {
		return nil, fmt.Errorf("shards cannot be smaller than 1")
	}

	if config.LoaderSymbol == "" {
		config.LoaderSymbol = DefaultLoaderSymbol
	}
	if config.ExportsSymbol == "" {
		config.ExportsSymbol = DefaultExportsSymbol
	}
	if !rewrite.IsIdentifier(config.LoaderSymbol) || !rewrite.IsIdentifier(config.ExportsSymbol) {
		return nil, fmt.Errorf("%w: runtime symbols must be plain identifiers", rewrite.ErrInvalidSymbol)
	}
	if config.LoaderSymbol == config.ExportsSymbol {
		return nil, fmt.Errorf("%w: loader and exports symbols must differ", rewrite.ErrInvalidSymbol)
	}

	if config.Source == nil {
		config.Source = memory.NewMemorySource()
	}
	if config.Rewriter == nil {
		r, err := rewrite.New(rewrite.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		config.Rewriter = r
	}
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = modules.DefaultTimeout
	}

	rt := &Runtime{
		logger:    logger,
		config:    config,
		shards:    make([]atomic.Pointer[runtimeInstance], config.Shards),
		numShards: config.Shards,
	}

	for i := range rt.shards {
		rt.shards[i] = atomic.Pointer[runtimeInstance]{}
		rt.shards[i].Store(nilInstance)
	}

	logger.Info("Module runtime configured",
		zap.Int("shards", config.Shards),
		zap.String("loader", config.LoaderSymbol),
		zap.String("exports", config.ExportsSymbol),
	)

	return rt, nil
}

// LoadEntry reads the entry module at path from the configured source and
// loads it with LoadModule.
func (rt *Runtime) LoadEntry(ctx context.Context, path string, interrupt bool) error {
	ctx, cancel := context.WithTimeout(ctx, rt.config.LoadTimeout)
	defer cancel()

	source, err := rt.config.Source.Load(ctx, path)
	if err != nil {
		return fmt.Errorf("error reading entry module: %w", err)
	}

	return rt.LoadModule(path, string(source), interrupt)
}

// LoadModule replaces the running entry module on-the-fly. The module is
// evaluated at global scope in a fresh runtime per shard, and its imports are
// resolved relative to name. Specifying interrupt will interrupt the
// currently running VM instead of a graceful exit.
func (rt *Runtime) LoadModule(name, source string, interrupt bool) (err error) {
	source = rewrite.NormalizeNewLines(source)
	if transpile.IsTypescript(name) {
		ctx, cancel := context.WithTimeout(context.Background(), rt.config.LoadTimeout)
		source, err = transpile.TranspileTypescript(ctx, strings.NewReader(source))
		cancel()
		if err != nil {
			return err
		}
	}

	script, err := rt.config.Rewriter.Rewrite(source, rt.config.LoaderSymbol, rt.config.ExportsSymbol)
	if err != nil {
		return err
	}

	prog, err := goja.Compile(name, script, false)
	if err != nil {
		return fmt.Errorf("error compiling module: %w", err)
	}

	// force GC on module reload
	defer runtime.GC()

	start := time.Now()
	for i := range rt.shards {
		instance, err := rt.getInstance(name)
		if err != nil {
			return err
		}

		err = <-instance.loadProgram(prog)
		if err != nil {
			instance.stop(true)
			return err
		}

		old := rt.shards[i].Swap(instance)
		if old != nilInstance {
			old.stop(interrupt)
		}
	}

	duration := time.Since(start)
	rt.logger.Info("All shards reloaded",
		zap.Duration("duration", duration),
		zap.String("module", name),
		zap.Int("shards", rt.numShards),
	)

	return nil
}

func (rt *Runtime) nextInstance() *runtimeInstance {
	n := atomic.AddUint32(&rt.nextShard, 1)
	return rt.shards[int(n)%rt.numShards].Load()
}

// requireLoader serves require() of CommonJS modules from the same source
// as imported ES modules.
func (rt *Runtime) requireLoader(path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), rt.config.LoadTimeout)
	defer cancel()

	b, err := rt.config.Source.Load(ctx, sources.Resolve(path, ""))
	if errors.Is(err, sources.ErrNotFound) {
		return nil, require.ModuleFileDoesNotExistError
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (rt *Runtime) newRegistry(entry string) *require.Registry {
	registry := require.NewRegistryWithLoader(rt.requireLoader)

	consoleModule := zap_console.RequireWithLogger(rt.logger.With(zap.String("entry", entry)))
	registry.RegisterNativeModule(zap_console.ModuleName, consoleModule)

	return registry
}

func (rt *Runtime) Stop(interrupt bool) {
	for i := range rt.shards {
		old := rt.shards[i].Swap(nilInstance)
		if old != nilInstance {
			old.stop(interrupt)
		}
	}
}
