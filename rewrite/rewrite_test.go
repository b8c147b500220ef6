package rewrite

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
)

const (
	testLoader  = "__ImportModule"
	testExports = "__exports"
)

const testModule = `"use strict"
import { helper, VERSION as version } from './util.js'
import * as path from "./lib/path.js"
import Config from './config.js'

export const NAME = "demo";
export function run(input) {
	return helper(path.join(input), Config, version)
}
export default class Demo extends Base {}
`

func TestRewriteNamedImports(t *testing.T) {
	as := require.New(t)

	out, err := Rewrite("import { a, b as c } from './m.js'\n", testLoader, testExports)
	as.NoError(err)
	as.Equal("/* import { a, b as c } from './m.js' */ "+
		"const __Module_Exports_From___m_js_0 = __ImportModule(`./m.js`); "+
		"const a = __Module_Exports_From___m_js_0.a; "+
		"const c = __Module_Exports_From___m_js_0.b;\n", out)
}

func TestRewriteExportConst(t *testing.T) {
	as := require.New(t)

	out, err := Rewrite("export const X = 1;", testLoader, testExports)
	as.NoError(err)
	as.Equal("const X = 1;\n// exports\n__exports.X = X;\n", out)
}

func TestRewriteDefaultFunction(t *testing.T) {
	as := require.New(t)

	res, err := defaultRewriter.Transform("export default function Foo(){}", testLoader, testExports)
	as.NoError(err)
	as.Equal([]ExportedSymbol{{ExportedAs: "default", Local: "Foo"}}, res.Symbols)
	as.True(strings.HasPrefix(res.Source, "function Foo(){}\n"))
	as.Contains(res.Source, "__exports.default = Foo;")
}

func TestRewriteDefaultClassExtends(t *testing.T) {
	as := require.New(t)

	res, err := defaultRewriter.Transform("export default class MyExport extends NotMyExport {}", testLoader, testExports)
	as.NoError(err)
	as.Equal([]ExportedSymbol{{ExportedAs: "default", Local: "MyExport"}}, res.Symbols)
	as.Equal("class MyExport extends NotMyExport {}\n// exports\n__exports.default = MyExport;\n", res.Source)
}

func TestRewriteDoubledExportUnchanged(t *testing.T) {
	as := require.New(t)

	src := "const a = 1;\nexport export const X = 1;\n"
	out, err := Rewrite(src, testLoader, testExports)
	as.NoError(err)
	as.Equal(src, out)
}

func TestRewriteSamePathTwice(t *testing.T) {
	as := require.New(t)

	src := "import a from './m.js'\nimport b from './m.js'\n"
	res, err := defaultRewriter.Transform(src, testLoader, testExports)
	as.NoError(err)
	as.Len(res.Imports, 2)

	as.Contains(res.Source, "const a = __Module_Exports_From___m_js_1.default;")
	as.Contains(res.Source, "const b = __Module_Exports_From___m_js_0.default;")
	as.Equal(1, strings.Count(res.Source, "const __Module_Exports_From___m_js_0 ="))
	as.Equal(1, strings.Count(res.Source, "const __Module_Exports_From___m_js_1 ="))
}

func TestRewriteBindingCount(t *testing.T) {
	as := require.New(t)

	out, err := Rewrite("import { a, b, c, d as e } from 'pkg'", testLoader, testExports)
	as.NoError(err)
	as.Equal(4, strings.Count(out, "= __Module_Exports_From_pkg_0."))
	as.Contains(out, "const e = __Module_Exports_From_pkg_0.d;")
}

func TestRewriteExportsInDocumentOrder(t *testing.T) {
	as := require.New(t)

	src := "export const a = 1;\nexport function b() {}\nexport default b\n"
	res, err := defaultRewriter.Transform(src, testLoader, testExports)
	as.NoError(err)
	as.Equal("const a = 1;\nfunction b() {}\nb\n"+
		"\n// exports\n"+
		"__exports.a = a;\n"+
		"__exports.b = b;\n"+
		"__exports.default = b;\n", res.Source)

	as.Len(res.Exports, 3)
	as.Less(res.Exports[0].Index, res.Exports[1].Index)
	as.Less(res.Exports[1].Index, res.Exports[2].Index)
}

func TestRewriteAdjacentExports(t *testing.T) {
	as := require.New(t)

	out, err := Rewrite("export const a = 1;export let b = 2;", testLoader, testExports)
	as.NoError(err)
	as.Equal("const a = 1;let b = 2;\n// exports\n__exports.a = a;\n__exports.b = b;\n", out)
}

func TestRewriteModule(t *testing.T) {
	as := require.New(t)

	res, err := defaultRewriter.Transform(testModule, testLoader, testExports)
	as.NoError(err)

	as.Len(res.Imports, 3)
	as.Equal("./util.js", res.Imports[0].Path)
	as.Equal("./lib/path.js", res.Imports[1].Path)
	as.Equal("./config.js", res.Imports[2].Path)

	as.Equal([]ExportedSymbol{
		{ExportedAs: "NAME", Local: "NAME"},
		{ExportedAs: "run", Local: "run"},
		{ExportedAs: "default", Local: "Demo"},
	}, res.Symbols)

	as.Contains(res.Source, "const helper = __Module_Exports_From___util_js_2.helper;")
	as.Contains(res.Source, "const version = __Module_Exports_From___util_js_2.VERSION;")
	as.Contains(res.Source, "const path = __Module_Exports_From___lib_path_js_1;")
	as.Contains(res.Source, "const Config = __Module_Exports_From___config_js_0.default;")
	as.Contains(res.Source, "\nconst NAME = \"demo\";\n")
	as.Contains(res.Source, "\nfunction run(input) {\n")
	as.Contains(res.Source, "\nclass Demo extends Base {}\n")
	as.NotContains(res.Source, "export ")

	// imports stay on their own lines
	as.Equal(strings.Count(testModule, "\n"), strings.Count(res.Source[:strings.Index(res.Source, "\n// exports")], "\n"))
}

func TestRewriteNewLines(t *testing.T) {
	as := require.New(t)

	r, err := New(WithNewLines(true), WithModulePrefix("__mod_"))
	as.NoError(err)

	out, err := r.Rewrite("import { a } from 'x'", testLoader, testExports)
	as.NoError(err)
	as.Equal("/* import { a } from 'x' */\nconst __mod_x_0 = __ImportModule(`x`);\nconst a = __mod_x_0.a;", out)
}

func TestRewriteEscapesPath(t *testing.T) {
	as := require.New(t)

	out, err := Rewrite("import a from \"./we`ird${x}.js\"", testLoader, testExports)
	as.NoError(err)
	as.Contains(out, "__ImportModule(`./we\\`ird\\${x}.js`);")
}

func TestRewriteDottedSymbols(t *testing.T) {
	as := require.New(t)

	out, err := Rewrite("import a from 'a'\nexport const b = a;", "loader.load", "module.exports")
	as.NoError(err)
	as.Contains(out, "= loader.load(`a`);")
	as.Contains(out, "module.exports.b = b;")
}

func TestRewriteWithoutModuleSyntax(t *testing.T) {
	as := require.New(t)

	src := "const important = 'from me';\nfunction exported() {}\n"
	out, err := Rewrite(src, testLoader, testExports)
	as.NoError(err)
	as.Equal(src, out)
}

func TestRewriteCRLF(t *testing.T) {
	as := require.New(t)

	out, err := Rewrite("export const X = 1;\r\nexport default X\r\n", testLoader, testExports)
	as.NoError(err)
	as.Equal("const X = 1;\nX\n\n// exports\n__exports.X = X;\n__exports.default = X;\n", out)

	out, err = Rewrite("import a from './a.js'\r\nexport default Foo\r\n", testLoader, testExports)
	as.NoError(err)
	as.NotContains(out, "\r")
	as.NotContains(out, "export ")
	as.Contains(out, "__exports.default = Foo;")

	out, err = Rewrite("export default Foo\r", testLoader, testExports)
	as.NoError(err)
	as.Equal("Foo\r\n// exports\n__exports.default = Foo;\n", out)
}

func TestRewriteCustomPostSymbolKeyword(t *testing.T) {
	as := require.New(t)

	r, err := New(WithPostSymbolKeywords("implements"), WithMatchTimeout(time.Second))
	as.NoError(err)

	src := "export default class Impl implements Iface {}\n"
	res, err := r.Transform(src, testLoader, testExports)
	as.NoError(err)
	as.Equal([]ExportedSymbol{{ExportedAs: "default", Local: "Impl"}}, res.Symbols)
	as.Equal("class Impl implements Iface {}\n\n// exports\n__exports.default = Impl;\n", res.Source)

	// extends is still recognised
	res, err = r.Transform("export class A extends B {}", testLoader, testExports)
	as.NoError(err)
	as.Equal([]ExportedSymbol{{ExportedAs: "A", Local: "A"}}, res.Symbols)

	res, err = defaultRewriter.Transform(src, testLoader, testExports)
	as.NoError(err)
	as.Equal("Iface", res.Symbols[0].Local)
}

func TestRewriteErrors(t *testing.T) {
	cases := []struct {
		name   string
		source string
		phase  Phase
		text   string
		err    error
	}{
		{
			name:   "mixed import",
			source: "const a = 1;\nimport x, { y } from 'p'\n",
			phase:  PhaseImports,
			text:   "import x, { y } from 'p'",
			err:    ErrImportSyntax,
		},
		{
			name:   "multiple as",
			source: "import { a as b as c } from 'p'",
			phase:  PhaseImports,
			text:   "import { a as b as c } from 'p'",
			err:    ErrImportSyntax,
		},
		{
			name:   "anonymous default export",
			source: "export default function () {}",
			phase:  PhaseExports,
			text:   "export default function ",
			err:    ErrExportSyntax,
		},
		{
			name:   "default symbol on next line",
			source: "export default\nFoo",
			phase:  PhaseExports,
			text:   "export default",
			err:    ErrExportSyntax,
		},
		{
			name:   "export list",
			source: "const a = 1;\nexport {a}\n",
			phase:  PhaseExports,
			text:   "export {",
			err:    ErrExportSyntax,
		},
		{
			name:   "spaced export list",
			source: "export  { a as b }",
			phase:  PhaseExports,
			text:   "export  {",
			err:    ErrExportSyntax,
		},
		{
			name:   "re-export",
			source: "export * from './x.js'",
			phase:  PhaseExports,
			text:   "export *",
			err:    ErrExportSyntax,
		},
		{
			name:   "generator",
			source: "export const a = 1;\nexport function* gen() {}\n",
			phase:  PhaseExports,
			text:   "export function*",
			err:    ErrExportSyntax,
		},
		{
			name:   "async generator",
			source: "export async function *gen() {}",
			phase:  PhaseExports,
			text:   "export async function *",
			err:    ErrExportSyntax,
		},
		{
			name:   "invalid utf8",
			source: "import a from 'x'\n\xff",
			phase:  PhaseImports,
			err:    ErrPattern,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			as := require.New(t)

			out, err := Rewrite(tc.source, testLoader, testExports)
			as.Empty(out)
			as.ErrorIs(err, tc.err)

			var rewriteErr *Error
			as.True(errors.As(err, &rewriteErr))
			as.Equal(tc.phase, rewriteErr.Phase)
			if tc.text != "" {
				as.Equal(tc.text, rewriteErr.Text)
				as.Contains(err.Error(), tc.text)
			}
		})
	}
}

func TestRewriteInvalidSymbols(t *testing.T) {
	as := require.New(t)

	_, err := Rewrite("", "1loader", testExports)
	as.ErrorIs(err, ErrInvalidSymbol)

	_, err = Rewrite("", testLoader, "exports object")
	as.ErrorIs(err, ErrInvalidSymbol)

	_, err = New(WithModulePrefix("not-a-prefix"))
	as.ErrorIs(err, ErrInvalidSymbol)
}

func TestModuleSymbol(t *testing.T) {
	as := require.New(t)

	as.Equal("__Module_Exports_From___lib_a_b_js_3", ModuleSymbol(DefaultModulePrefix, "./lib/a-b.js", 3))
	as.Equal(ModuleSymbol(DefaultModulePrefix, "./a.js", 1), ModuleSymbol(DefaultModulePrefix, "./a.js", 1))
	as.NotEqual(ModuleSymbol(DefaultModulePrefix, "./a.js", 1), ModuleSymbol(DefaultModulePrefix, "./a.js", 2))
}

func TestRewriterLogsStatements(t *testing.T) {
	as := require.New(t)

	r, err := New(WithLogger(zaptest.NewLogger(t)))
	as.NoError(err)

	out, err := r.Rewrite(testModule, testLoader, testExports)
	as.NoError(err)
	as.NotEmpty(out)
}

func TestRewriteConcurrentCallsAreIndependent(t *testing.T) {
	as := require.New(t)

	sources := make([]string, 16)
	expected := make([]string, len(sources))
	for i := range sources {
		sources[i] = fmt.Sprintf("import a from './m%d.js'\nimport b from './m%d.js'\nexport const c%d = a + b;\n", i, i, i)
		out, err := Rewrite(sources[i], testLoader, testExports)
		as.NoError(err)
		expected[i] = out
	}

	results := make([]string, len(sources))
	var g errgroup.Group
	for i := range sources {
		g.Go(func() error {
			out, err := Rewrite(sources[i], testLoader, testExports)
			results[i] = out
			return err
		})
	}
	as.NoError(g.Wait())
	as.Equal(expected, results)

	for i, out := range results {
		as.Contains(out, fmt.Sprintf("___m%d_js_0", i))
		as.Contains(out, fmt.Sprintf("___m%d_js_1", i))
		as.NotContains(out, "_js_2")
	}
}
