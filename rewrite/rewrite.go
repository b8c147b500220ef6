// Package rewrite converts ES module import and export statements into calls
// against a synchronous module loader function and assignments onto a
// per-module exports object, so that a module can be evaluated as a plain
// script.
//
//	import { a, b as c } from './m.js'
//
// becomes
//
//	/* import { a, b as c } from './m.js' */ const __Module_Exports_From___m_js_0 = __ImportModule(`./m.js`); const a = __Module_Exports_From___m_js_0.a; const c = __Module_Exports_From___m_js_0.b;
//
// and
//
//	export default function Foo() {}
//
// becomes `function Foo() {}` with `__exports.default = Foo;` appended to the
// end of the source.
//
// Statements are found with regular expressions, not a parser. The word
// export inside a string or comment can be rewritten by mistake, and import
// statements must fit on one line. The head of an export declaration must
// also fit on one line: `export default` followed by the symbol on the next
// line fails. Mixed default and named imports fail, as do export lists
// (`export { a }`), re-exports (`export * from`) and generator declarations,
// so a source is either rewritten completely or not at all. CRLF line
// endings are converted to LF.
package rewrite

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	pool "github.com/libp2p/go-buffer-pool"
	"go.uber.org/zap"
)

const (
	importExpr = "\\bimport\\b(.+?)\\bfrom\\s*([\"'`])(.+?)\\2"
	exportExpr = `(^|[^A-Za-z0-9_$])export\s+([A-Za-z0-9_$ \t]+)(?=(\(|=|$|\r|\n|;|extends|\{))`

	// export lists, re-exports and generator declarations have no single
	// declared symbol to bind
	unsupportedExportExpr = `(^|[^A-Za-z0-9_$])(export\s*[{*]|export\s+(?:async\s+)?function\s*\*)`
)

var templateEscaper = strings.NewReplacer("\\", "\\\\", "`", "\\`", "${", "\\${")

type Option func(*Rewriter)

// WithLogger logs every rewritten statement at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Rewriter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithModulePrefix changes the prefix of generated module symbols.
func WithModulePrefix(prefix string) Option {
	return func(r *Rewriter) {
		r.modulePrefix = prefix
	}
}

// WithPostSymbolKeywords adds keywords, besides `extends`, that can follow the
// exported symbol in a declaration head.
func WithPostSymbolKeywords(keywords ...string) Option {
	return func(r *Rewriter) {
		r.postSymbolKeywords = append(r.postSymbolKeywords, keywords...)
	}
}

// WithNewLines puts every generated import statement on its own line. The
// default keeps them on the line of the import they replace, so line numbers
// in the output match the input.
func WithNewLines(newLines bool) Option {
	return func(r *Rewriter) {
		r.newLines = newLines
	}
}

// WithMatchTimeout bounds the time spent matching a single statement pattern.
func WithMatchTimeout(timeout time.Duration) Option {
	return func(r *Rewriter) {
		r.matchTimeout = timeout
	}
}

// Rewriter holds rewrite configuration. It keeps no per-source state and is
// safe for concurrent use.
type Rewriter struct {
	logger             *zap.Logger
	modulePrefix       string
	postSymbolKeywords []string
	newLines           bool
	matchTimeout       time.Duration
	importPattern      *Pattern
	exportPattern      *Pattern
	unsupportedPattern *Pattern
}

// Result is the outcome of Transform. Imports and Exports are in document
// order, with offsets into the input of their respective pass.
type Result struct {
	Source  string
	Imports []ImportStatement
	Exports []ExportStatement
	Symbols []ExportedSymbol
}

func New(opts ...Option) (*Rewriter, error) {
	r := &Rewriter{
		logger:             zap.NewNop(),
		modulePrefix:       DefaultModulePrefix,
		postSymbolKeywords: slices.Clone(DefaultPostSymbolKeywords),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.modulePrefix != "" && !IsIdentifier(r.modulePrefix) {
		return nil, newError(PhaseSetup, r.modulePrefix, ErrInvalidSymbol)
	}

	var err error
	r.importPattern, err = CompilePattern(importExpr, r.matchTimeout)
	if err != nil {
		return nil, newError(PhaseSetup, importExpr, err)
	}
	r.exportPattern, err = CompilePattern(exportExpr, r.matchTimeout)
	if err != nil {
		return nil, newError(PhaseSetup, exportExpr, err)
	}
	r.unsupportedPattern, err = CompilePattern(unsupportedExportExpr, r.matchTimeout)
	if err != nil {
		return nil, newError(PhaseSetup, unsupportedExportExpr, err)
	}

	return r, nil
}

var defaultRewriter = func() *Rewriter {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}()

// NormalizeNewLines converts CRLF line endings to LF. Transform applies it
// before matching, so its output always uses LF.
func NormalizeNewLines(source string) string {
	return strings.ReplaceAll(source, "\r\n", "\n")
}

// Rewrite rewrites source with the default configuration.
func Rewrite(source, loaderSymbol, exportsSymbol string) (string, error) {
	return defaultRewriter.Rewrite(source, loaderSymbol, exportsSymbol)
}

func (r *Rewriter) Rewrite(source, loaderSymbol, exportsSymbol string) (string, error) {
	res, err := r.Transform(source, loaderSymbol, exportsSymbol)
	if err != nil {
		return "", err
	}
	return res.Source, nil
}

// Transform rewrites imports, then exports, of source. loaderSymbol names the
// function called with a module path to obtain that module's exports, and
// exportsSymbol the object receiving this module's exports. Both must exist
// when the output is evaluated.
func (r *Rewriter) Transform(source, loaderSymbol, exportsSymbol string) (*Result, error) {
	if !isIdentifierPath(loaderSymbol) {
		return nil, newError(PhaseSetup, loaderSymbol, ErrInvalidSymbol)
	}
	if !isIdentifierPath(exportsSymbol) {
		return nil, newError(PhaseSetup, exportsSymbol, ErrInvalidSymbol)
	}

	res := &Result{}

	out, err := r.rewriteImports(NormalizeNewLines(source), loaderSymbol, res)
	if err != nil {
		return nil, err
	}

	out, err = r.rewriteExports(out, exportsSymbol, res)
	if err != nil {
		return nil, err
	}

	res.Source = out
	return res, nil
}

func (r *Rewriter) rewriteImports(source, loaderSymbol string, res *Result) (string, error) {
	symbols := &symbolAllocator{prefix: r.modulePrefix}

	out, err := r.importPattern.ReplaceAllMatches(source, func(m Match) (string, error) {
		stmt := ImportStatement{
			Text:   m.Text,
			Clause: m.Captures[0].Text,
			Path:   m.Captures[2].Text,
			Index:  m.Index,
			Length: m.Length,
		}

		moduleSymbol := symbols.next(stmt.Path)
		bindings, err := ParseImportClause(stmt.Clause, moduleSymbol)
		if err != nil {
			return "", newError(PhaseImports, stmt.Text, err)
		}

		r.logger.Debug("rewriting import",
			zap.String("statement", stmt.Text),
			zap.String("module", moduleSymbol),
			zap.Int("bindings", len(bindings)),
		)

		res.Imports = append(res.Imports, stmt)
		return r.importReplacement(stmt, moduleSymbol, loaderSymbol, bindings), nil
	})
	if err != nil {
		return "", wrapPatternError(PhaseImports, source, err)
	}

	slices.Reverse(res.Imports)
	return out, nil
}

func (r *Rewriter) importReplacement(stmt ImportStatement, moduleSymbol, loaderSymbol string, bindings []Binding) string {
	sep := " "
	if r.newLines {
		sep = "\n"
	}

	b := pool.NewBuffer(nil)
	defer b.Reset()

	b.WriteString("/* ")
	b.WriteString(strings.ReplaceAll(stmt.Text, "*/", "*\\/"))
	b.WriteString(" */")
	b.WriteString(sep)

	b.WriteString("const ")
	b.WriteString(moduleSymbol)
	b.WriteString(" = ")
	b.WriteString(loaderSymbol)
	b.WriteString("(`")
	b.WriteString(templateEscaper.Replace(stmt.Path))
	b.WriteString("`);")

	for _, binding := range bindings {
		b.WriteString(sep)
		b.WriteString("const ")
		b.WriteString(binding.Local)
		b.WriteString(" = ")
		b.WriteString(binding.Source)
		b.WriteString(";")
	}

	return b.String()
}

func (r *Rewriter) rewriteExports(source, exportsSymbol string, res *Result) (string, error) {
	unsupported, err := r.unsupportedPattern.Match(source)
	if err != nil {
		return "", wrapPatternError(PhaseExports, source, err)
	}
	if len(unsupported) > 0 {
		return "", newError(PhaseExports, unsupported[0].Captures[1].Text,
			fmt.Errorf("%w: export lists, re-exports and generators are not supported", ErrExportSyntax))
	}

	out, err := r.exportPattern.ReplaceAllMatches(source, func(m Match) (string, error) {
		stmt := ExportStatement{
			Text:              m.Text,
			Prefix:            m.Captures[0].Text,
			KeywordsAndSymbol: m.Captures[1].Text,
			Terminator:        m.Captures[2].Text,
			Index:             m.Index,
			Length:            m.Length,
		}

		replacement, symbol, err := ParseExportClause(stmt, r.postSymbolKeywords)
		if err != nil {
			return "", newError(PhaseExports, stmt.Text, err)
		}
		if symbol == nil {
			r.logger.Debug("leaving export unchanged", zap.String("statement", stmt.Text))
			return replacement, nil
		}

		r.logger.Debug("rewriting export",
			zap.String("statement", stmt.Text),
			zap.String("symbol", symbol.Local),
			zap.String("exportedAs", symbol.ExportedAs),
		)

		res.Exports = append(res.Exports, stmt)
		res.Symbols = append(res.Symbols, *symbol)
		return replacement, nil
	})
	if err != nil {
		return "", wrapPatternError(PhaseExports, source, err)
	}

	// matches were visited last to first
	slices.Reverse(res.Exports)
	slices.Reverse(res.Symbols)

	if len(res.Symbols) == 0 {
		return out, nil
	}

	var b strings.Builder
	b.WriteString(out)
	b.WriteString("\n// exports\n")
	for _, s := range res.Symbols {
		b.WriteString(exportsSymbol)
		b.WriteString(".")
		b.WriteString(s.ExportedAs)
		b.WriteString(" = ")
		b.WriteString(s.Local)
		b.WriteString(";\n")
	}

	return b.String(), nil
}

func wrapPatternError(phase Phase, source string, err error) error {
	var rewriteErr *Error
	if errors.As(err, &rewriteErr) {
		return err
	}
	return newError(phase, excerpt(source), err)
}

func excerpt(s string) string {
	const limit = 80
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
