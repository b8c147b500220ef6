package esmodule

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

var ErrRuntimeNotReady = fmt.Errorf("module runtime is not ready")

type callResult struct {
	value any
	err   error
}

// Call evaluates code in the global scope of the entry module and returns
// the exported result.
func (rt *Runtime) Call(ctx context.Context, code string) (any, error) {
	return rt.call(ctx, code, false)
}

// CallAsync is Call, except that a returned promise is awaited. A rejected
// promise is returned as an error wrapping promise.ErrRejected.
func (rt *Runtime) CallAsync(ctx context.Context, code string) (any, error) {
	return rt.call(ctx, code, true)
}

func (rt *Runtime) call(ctx context.Context, code string, async bool) (any, error) {
	instance := rt.nextInstance()
	if instance == nil {
		return nil, ErrRuntimeNotReady
	}

	done := make(chan callResult, 1)
	instance.eventLoop.RunOnLoop(func(vm *goja.Runtime) {
		v, err := vm.RunString(code)
		if err != nil {
			done <- callResult{err: err}
			return
		}

		if !async {
			done <- callResult{value: exportValue(v)}
			return
		}

		if err := instance.resolver.ResolveVM(vm, v, func(value goja.Value, err error) {
			done <- callResult{value: exportValue(value), err: err}
		}); err != nil {
			rt.logger.Error("Unexpected runtime exception", zap.Error(err))
			done <- callResult{err: err}
		}
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.value, res.err
	}
}

// Exports returns the exports of the entry module.
func (rt *Runtime) Exports(ctx context.Context) (map[string]any, error) {
	instance := rt.nextInstance()
	if instance == nil {
		return nil, ErrRuntimeNotReady
	}

	done := make(chan map[string]any, 1)
	instance.eventLoop.RunOnLoop(func(vm *goja.Runtime) {
		exports := instance.symbols.Exports()
		m := make(map[string]any, len(exports.Keys()))
		for _, key := range exports.Keys() {
			m[key] = exportValue(exports.Get(key))
		}
		done <- m
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case m := <-done:
		return m, nil
	}
}

func exportValue(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}
