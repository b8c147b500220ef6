package esmodule

import (
	"context"
	"fmt"

	"go.miragespace.co/esmodule/extensions/promise"
	"go.miragespace.co/esmodule/extensions/zap_console"
	"go.miragespace.co/esmodule/modules"
	"go.miragespace.co/esmodule/polyfill"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/url"
	"go.uber.org/zap"
)

var nilInstance *runtimeInstance = nil

type runtimeInstance struct {
	logger    *zap.Logger
	entry     string
	eventLoop *eventloop.EventLoop
	resolver  *promise.PromiseResolver
	loader    *modules.Loader
	symbols   *polyfill.RuntimeSymbols
	vm        *goja.Runtime
}

func (rt *Runtime) getInstance(entry string) (instance *runtimeInstance, err error) {
	eventLoop := eventloop.NewEventLoop(
		eventloop.EnableConsole(false),
		eventloop.WithRegistry(rt.newRegistry(entry)),
	)
	eventLoop.Start()

	defer func() {
		if err != nil {
			eventLoop.StopNoWait()
		}
	}()

	instance = &runtimeInstance{
		logger:    rt.logger.With(zap.String("entry", entry)),
		entry:     entry,
		eventLoop: eventLoop,
	}

	instance.symbols, err = polyfill.PolyfillRuntime(eventLoop, rt.config.ExportsSymbol)
	if err != nil {
		return
	}

	instance.resolver, err = promise.NewResolver(eventLoop)
	if err != nil {
		return
	}

	instance.loader, err = modules.NewLoader(modules.Config{
		Logger:        instance.logger,
		Source:        rt.config.Source,
		Rewriter:      rt.config.Rewriter,
		LoaderSymbol:  rt.config.LoaderSymbol,
		ExportsSymbol: rt.config.ExportsSymbol,
		Timeout:       rt.config.LoadTimeout,
	})
	if err != nil {
		return
	}

	err = <-instance.prepareInstance(rt.config.LoaderSymbol)

	return
}

func (inst *runtimeInstance) stop(interrupt bool) {
	if interrupt {
		inst.vm.Interrupt(context.Canceled)
	}
	inst.eventLoop.StopNoWait()
}

func (inst *runtimeInstance) prepareInstance(loaderSymbol string) (setup chan error) {
	setup = make(chan error, 1)

	inst.eventLoop.RunOnLoop(func(vm *goja.Runtime) {
		url.Enable(vm)
		zap_console.Enable(vm)

		if err := vm.Set(loaderSymbol, inst.loader.Importer(vm, inst.entry)); err != nil {
			setup <- err
			return
		}

		inst.vm = vm // reference is kept for .Interrupt

		setup <- nil
	})

	return
}

func (inst *runtimeInstance) loadProgram(prog *goja.Program) (setup chan error) {
	setup = make(chan error, 1)

	inst.eventLoop.RunOnLoop(func(vm *goja.Runtime) {
		_, err := vm.RunProgram(prog)
		if err != nil {
			setup <- fmt.Errorf("error evaluating entry module %s: %w", inst.entry, err)
			return
		}

		inst.logger.Debug("Entry module evaluated",
			zap.Int("modules", inst.loader.Len()),
		)

		setup <- nil
	})

	return
}
