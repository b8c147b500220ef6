package promise

import "github.com/dop251/goja"

const promiseResolverSymbol = "__runtimeResolverAwait"

const promiseResolverScript = `
const __runtimeResolverAwait = (value, resolve, reject) => {
    Promise.resolve(value).then(resolve, reject)
}
`

var promiseResolverProg = goja.MustCompile("promiseResolver", promiseResolverScript, false)
