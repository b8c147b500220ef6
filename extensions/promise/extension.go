package promise

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
)

var ErrRejected = fmt.Errorf("promise rejected")

// Settler receives the settled value of a promise, or the rejection as an
// error. It is called on the event loop.
type Settler func(value goja.Value, err error)

type PromiseResolver struct {
	eventLoop       *eventloop.EventLoop
	runtimeResolver goja.Callable
}

func NewResolver(eventLoop *eventloop.EventLoop) (*PromiseResolver, error) {
	t := &PromiseResolver{
		eventLoop: eventLoop,
	}

	setup := make(chan error, 1)
	eventLoop.RunOnLoop(func(vm *goja.Runtime) {
		_, err := vm.RunProgram(promiseResolverProg)
		if err != nil {
			setup <- err
			return
		}

		promiseResolver := vm.Get(promiseResolverSymbol)
		wrapper, ok := goja.AssertFunction(promiseResolver)
		if !ok {
			setup <- fmt.Errorf("internal error: %s is not a function", promiseResolverSymbol)
			return
		}
		t.runtimeResolver = wrapper

		setup <- nil
	})

	err := <-setup
	if err != nil {
		return nil, err
	}

	return t, nil
}

// Resolve waits for value, which may or may not be a thenable, to settle.
func (p *PromiseResolver) Resolve(value goja.Value, settle Settler) error {
	errCh := make(chan error, 1)
	p.eventLoop.RunOnLoop(func(vm *goja.Runtime) {
		errCh <- p.ResolveVM(vm, value, settle)
	})

	return <-errCh
}

// ResolveVM is Resolve for callers already running on the event loop.
func (p *PromiseResolver) ResolveVM(vm *goja.Runtime, value goja.Value, settle Settler) error {
	resolve := func(fc goja.FunctionCall) goja.Value {
		settle(fc.Argument(0), nil)
		return goja.Undefined()
	}
	reject := func(fc goja.FunctionCall) goja.Value {
		settle(nil, RejectionError(fc.Argument(0)))
		return goja.Undefined()
	}

	_, err := p.runtimeResolver(
		goja.Undefined(),
		value,
		vm.ToValue(resolve),
		vm.ToValue(reject),
	)
	return err
}

// RejectionError converts a rejection reason into an error wrapping
// ErrRejected.
func RejectionError(reason goja.Value) error {
	if reason == nil || goja.IsUndefined(reason) || goja.IsNull(reason) {
		return ErrRejected
	}
	if err, ok := reason.Export().(error); ok {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	return fmt.Errorf("%w: %s", ErrRejected, reason.String())
}
