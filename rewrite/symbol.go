package rewrite

import (
	"fmt"

	"github.com/dlclark/regexp2"
)

const DefaultModulePrefix = "__Module_Exports_From_"

var (
	nonSymbolChars = regexp2.MustCompile(`[^a-zA-Z0-9_]`, regexp2.None)
	identifierPath = regexp2.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(\.[A-Za-z_$][A-Za-z0-9_$]*)*\z`, regexp2.None)
	identifier     = regexp2.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*\z`, regexp2.None)
)

// ModuleSymbol derives the identifier that holds the exports of the module
// imported from path at the given import site.
func ModuleSymbol(prefix, path string, counter int) string {
	sanitized, err := nonSymbolChars.Replace(path, "_", -1, -1)
	if err != nil {
		// only possible on a match timeout, which nonSymbolChars does not set
		panic(err)
	}
	return fmt.Sprintf("%s%s_%d", prefix, sanitized, counter)
}

// symbolAllocator hands out module symbols for one rewrite call.
type symbolAllocator struct {
	prefix  string
	counter int
}

func (a *symbolAllocator) next(path string) string {
	s := ModuleSymbol(a.prefix, path, a.counter)
	a.counter++
	return s
}

// IsIdentifier reports whether s can be used as a plain JavaScript
// identifier. Reserved words are not rejected.
func IsIdentifier(s string) bool {
	ok, _ := identifier.MatchString(s)
	return ok
}

func isIdentifierPath(s string) bool {
	ok, _ := identifierPath.MatchString(s)
	return ok
}

var reservedWords = map[string]struct{}{
	"await": {}, "break": {}, "case": {}, "catch": {}, "class": {}, "const": {}, "continue": {},
	"debugger": {}, "default": {}, "delete": {}, "do": {}, "else": {}, "enum": {}, "export": {},
	"extends": {}, "false": {}, "finally": {}, "for": {}, "function": {}, "if": {}, "import": {},
	"in": {}, "instanceof": {}, "let": {}, "new": {}, "null": {}, "return": {}, "static": {},
	"super": {}, "switch": {}, "this": {}, "throw": {}, "true": {}, "try": {}, "typeof": {},
	"var": {}, "void": {}, "while": {}, "with": {}, "yield": {},
}

func isReserved(s string) bool {
	_, ok := reservedWords[s]
	return ok
}
