package zap_console

import (
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/dop251/goja_nodejs/util"
	"go.uber.org/zap"
)

const ModuleName = "console"

type Console struct {
	runtime *goja.Runtime
	util    *goja.Object
}

// log formats its arguments with util.format and writes them to zap, along
// with the position of the calling module code.
func (c *Console) log(log func(msg string, fields ...zap.Field)) func(goja.FunctionCall, *goja.Runtime) goja.Value {
	return func(call goja.FunctionCall, vm *goja.Runtime) goja.Value {
		format, ok := goja.AssertFunction(c.util.Get("format"))
		if !ok {
			panic(c.runtime.NewTypeError("util.format is not a function"))
		}

		ret, err := format(c.util, call.Arguments...)
		if err != nil {
			panic(err)
		}

		fields := make([]zap.Field, 0, 3)
		if stacks := vm.CaptureCallStack(0, nil); len(stacks) > 1 {
			caller := stacks[1]
			fields = append(fields,
				zap.String("position", caller.Position().String()),
				zap.String("funcName", caller.FuncName()),
				zap.String("module", caller.SrcName()),
			)
		}

		log(ret.String(), fields...)

		return goja.Undefined()
	}
}

// RequireWithLogger returns a native module loader for a console that writes
// to logger.
func RequireWithLogger(logger *zap.Logger) require.ModuleLoader {
	return func(runtime *goja.Runtime, module *goja.Object) {
		c := &Console{
			runtime: runtime,
		}

		c.util = require.Require(runtime, util.ModuleName).(*goja.Object)

		o := module.Get("exports").(*goja.Object)
		o.Set("log", c.log(logger.Info))
		o.Set("info", c.log(logger.Info))
		o.Set("debug", c.log(logger.Debug))
		o.Set("error", c.log(logger.Error))
		o.Set("warn", c.log(logger.Warn))
	}
}

func Enable(runtime *goja.Runtime) {
	runtime.Set("console", require.Require(runtime, ModuleName))
}
