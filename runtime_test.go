package esmodule

import (
	"context"
	"testing"
	"time"

	"go.miragespace.co/esmodule/extensions/promise"
	"go.miragespace.co/esmodule/rewrite"
	"go.miragespace.co/esmodule/sources/memory"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testEntry = `"use strict"
import { greet, counter } from './lib/greet.js'
import * as util from './lib/util.js'

export const name = "entry"
export function hello(who) {
	return greet(util.upper(who))
}
export async function later(value) {
	return new Promise((resolve) => {
		setTimeout(() => resolve(value), 20)
	})
}
export function fail() {
	return Promise.reject(new Error("failed on purpose"))
}
export default counter
`

func testSource() *memory.MemorySource {
	src := memory.NewMemorySource()
	src.Put("lib/greet.js", []byte("import { upper } from './util.js'\n"+
		"globalThis.greetLoaded = (globalThis.greetLoaded || 0) + 1\n"+
		"export const counter = globalThis.greetLoaded;\n"+
		"export function greet(who) { return 'hello ' + who }\n"))
	src.Put("lib/util.js", []byte("export function upper(s) { return s.toUpperCase() }\n"))
	return src
}

func newTestRuntime(t *testing.T, config RuntimeConfig) *Runtime {
	if config.Source == nil {
		config.Source = testSource()
	}
	rt, err := NewRuntime(zaptest.NewLogger(t), config)
	require.NoError(t, err)
	t.Cleanup(func() {
		rt.Stop(true)
	})
	return rt
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestEmptyRuntime(t *testing.T) {
	as := require.New(t)
	rt := newTestRuntime(t, RuntimeConfig{})

	_, err := rt.Call(testContext(t), "1")
	as.ErrorIs(err, ErrRuntimeNotReady)

	_, err = rt.Exports(testContext(t))
	as.ErrorIs(err, ErrRuntimeNotReady)
}

func TestRuntimeLoadModule(t *testing.T) {
	as := require.New(t)
	rt := newTestRuntime(t, RuntimeConfig{})

	as.NoError(rt.LoadModule("main.js", testEntry, false))

	v, err := rt.Call(testContext(t), `hello("world")`)
	as.NoError(err)
	as.Equal("hello WORLD", v)

	exports, err := rt.Exports(testContext(t))
	as.NoError(err)
	as.Equal("entry", exports["name"])
	as.EqualValues(1, exports["default"])
	as.Contains(exports, "hello")

	// greet.js is evaluated once even though util.js is imported twice
	v, err = rt.Call(testContext(t), `globalThis.greetLoaded`)
	as.NoError(err)
	as.EqualValues(1, v)
}

func TestRuntimeCallAsync(t *testing.T) {
	as := require.New(t)
	rt := newTestRuntime(t, RuntimeConfig{})

	as.NoError(rt.LoadModule("main.js", testEntry, false))

	v, err := rt.CallAsync(testContext(t), `later("promise")`)
	as.NoError(err)
	as.Equal("promise", v)

	v, err = rt.CallAsync(testContext(t), `name`)
	as.NoError(err)
	as.Equal("entry", v)
}

func TestRuntimeCallAsyncRejected(t *testing.T) {
	as := require.New(t)
	rt := newTestRuntime(t, RuntimeConfig{})

	as.NoError(rt.LoadModule("main.js", testEntry, false))

	_, err := rt.CallAsync(testContext(t), `fail()`)
	as.ErrorIs(err, promise.ErrRejected)
	as.Contains(err.Error(), "failed on purpose")
}

func TestRuntimeCallAsyncCanceled(t *testing.T) {
	as := require.New(t)
	rt := newTestRuntime(t, RuntimeConfig{})

	as.NoError(rt.LoadModule("main.js", testEntry, false))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := rt.CallAsync(ctx, `new Promise(() => {})`)
	as.ErrorIs(err, context.DeadlineExceeded)
}

func TestRuntimeCallThrows(t *testing.T) {
	as := require.New(t)
	rt := newTestRuntime(t, RuntimeConfig{})

	as.NoError(rt.LoadModule("main.js", testEntry, false))

	_, err := rt.Call(testContext(t), `throw new Error("sync failure")`)
	as.Error(err)
	as.Contains(err.Error(), "sync failure")
}

func TestRuntimeMissingImport(t *testing.T) {
	as := require.New(t)
	rt := newTestRuntime(t, RuntimeConfig{})

	err := rt.LoadModule("main.js", "import { x } from './nowhere.js'\n", false)
	as.Error(err)
	as.Contains(err.Error(), "./nowhere.js")

	_, err = rt.Call(testContext(t), "1")
	as.ErrorIs(err, ErrRuntimeNotReady)
}

func TestRuntimeCircularImport(t *testing.T) {
	as := require.New(t)

	src := memory.NewMemorySource()
	src.Put("a.js", []byte("import { b } from './b.js'\nexport const a = 1;\n"))
	src.Put("b.js", []byte("import { a } from './a.js'\nexport const b = 2;\n"))
	rt := newTestRuntime(t, RuntimeConfig{Source: src})

	err := rt.LoadModule("main.js", "import { a } from './a.js'\n", false)
	as.Error(err)
	as.Contains(err.Error(), "circular import")
}

func TestRuntimeRewriteError(t *testing.T) {
	as := require.New(t)
	rt := newTestRuntime(t, RuntimeConfig{})

	err := rt.LoadModule("main.js", "import x, { y } from './lib/util.js'\n", false)
	as.ErrorIs(err, rewrite.ErrImportSyntax)
}

func TestRuntimeLoadEntry(t *testing.T) {
	as := require.New(t)

	src := testSource()
	src.Put("app/main.ts", []byte("import { upper } from '../lib/util.js'\n"+
		"export function shout(s: string): string {\n\treturn upper(s) + '!'\n}\n"))
	rt := newTestRuntime(t, RuntimeConfig{Source: src})

	as.NoError(rt.LoadEntry(testContext(t), "app/main.ts", false))

	v, err := rt.Call(testContext(t), `shout("hey")`)
	as.NoError(err)
	as.Equal("HEY!", v)
}

func TestRuntimeReload(t *testing.T) {
	as := require.New(t)
	rt := newTestRuntime(t, RuntimeConfig{})

	as.NoError(rt.LoadModule("main.js", "export const version = 1;\n", false))
	as.NoError(rt.LoadModule("main.js", "export const version = 2;\n", true))

	exports, err := rt.Exports(testContext(t))
	as.NoError(err)
	as.EqualValues(2, exports["version"])
}

func TestRuntimeShards(t *testing.T) {
	as := require.New(t)
	rt := newTestRuntime(t, RuntimeConfig{Shards: 2})

	as.NoError(rt.LoadModule("main.js", testEntry, false))

	for i := 0; i < 4; i++ {
		v, err := rt.Call(testContext(t), `globalThis.greetLoaded`)
		as.NoError(err)
		as.EqualValues(1, v)
	}
}

func TestRuntimeRequireFromSource(t *testing.T) {
	as := require.New(t)

	src := testSource()
	src.Put("cjs/pad.js", []byte("module.exports = (s) => '[' + s + ']'\n"))
	rt := newTestRuntime(t, RuntimeConfig{Source: src})

	as.NoError(rt.LoadModule("main.js", "export const pad = require('./cjs/pad.js');\n", false))

	v, err := rt.Call(testContext(t), `pad("x")`)
	as.NoError(err)
	as.Equal("[x]", v)
}

func TestNewRuntimeValidation(t *testing.T) {
	as := require.New(t)
	logger := zaptest.NewLogger(t)

	_, err := NewRuntime(nil, RuntimeConfig{})
	as.Error(err)

	_, err = NewRuntime(logger, RuntimeConfig{Shards: -1})
	as.Error(err)

	_, err = NewRuntime(logger, RuntimeConfig{LoaderSymbol: "load.module"})
	as.ErrorIs(err, rewrite.ErrInvalidSymbol)

	_, err = NewRuntime(logger, RuntimeConfig{LoaderSymbol: "same", ExportsSymbol: "same"})
	as.ErrorIs(err, rewrite.ErrInvalidSymbol)
}
