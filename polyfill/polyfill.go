package polyfill

import (
	_ "embed"
	"fmt"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
)

var ErrSymbolExists = fmt.Errorf("runtime symbol already defined")

//go:embed polyfill.js
var polyfillScript string

var polyfillProg = goja.MustCompile("polyfill", polyfillScript, false)

type RuntimeSymbols struct {
	exportsName     string
	exportsInstance *goja.Object
}

// Exports is the exports object of the entry module.
func (r *RuntimeSymbols) Exports() *goja.Object {
	return r.exportsInstance
}

func (r *RuntimeSymbols) ExportsName() string {
	return r.exportsName
}

// PolyfillRuntime installs the polyfills and a fresh global exports object
// named exportsSymbol. The global must not exist yet.
func PolyfillRuntime(eventLoop *eventloop.EventLoop, exportsSymbol string) (s *RuntimeSymbols, err error) {
	setup := make(chan error, 1)
	eventLoop.RunOnLoop(func(vm *goja.Runtime) {
		_, err := vm.RunProgram(polyfillProg)
		if err != nil {
			setup <- err
			return
		}

		if existing := vm.GlobalObject().Get(exportsSymbol); existing != nil && !goja.IsUndefined(existing) {
			setup <- fmt.Errorf("%w: %s", ErrSymbolExists, exportsSymbol)
			return
		}

		exports := vm.NewObject()
		if err := vm.Set(exportsSymbol, exports); err != nil {
			setup <- err
			return
		}

		s = &RuntimeSymbols{
			exportsName:     exportsSymbol,
			exportsInstance: exports,
		}

		setup <- nil
	})

	err = <-setup
	return
}
