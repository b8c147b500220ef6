package rewrite

import (
	"fmt"
	"slices"
	"strings"
)

// DefaultPostSymbolKeywords are keywords that may follow the exported symbol
// in a declaration head, as in `export default class A extends B {}`.
var DefaultPostSymbolKeywords = []string{"extends"}

// ExportStatement is a single matched export statement. Index and Length are
// rune offsets into the source the statement was found in. The terminator is
// not part of Text.
type ExportStatement struct {
	Text              string
	Prefix            string
	KeywordsAndSymbol string
	Terminator        string
	Index             int
	Length            int
}

// ExportedSymbol is a local symbol exported from a module, under ExportedAs.
type ExportedSymbol struct {
	ExportedAs string
	Local      string
}

// ParseExportClause rewrites the declaration head of an export statement
// into a plain local declaration and reports the symbol it exports.
//
// A nil symbol means the statement was left unchanged: this happens when the
// keyword run itself starts with `export`, so `export export x` is never
// rewritten twice.
func ParseExportClause(stmt ExportStatement, postSymbolKeywords []string) (string, *ExportedSymbol, error) {
	tokens := strings.Fields(stmt.KeywordsAndSymbol)
	if len(tokens) == 0 {
		return "", nil, fmt.Errorf("%w: nothing is exported by %q", ErrExportSyntax, stmt.Text)
	}

	if strings.HasPrefix(tokens[0], "export") {
		return stmt.Text, nil, nil
	}

	end := slices.IndexFunc(tokens, func(t string) bool {
		return slices.Contains(postSymbolKeywords, t)
	})
	if end < 0 {
		end = len(tokens)
	}
	if end == 0 {
		return "", nil, fmt.Errorf("%w: %q has no symbol before %q", ErrExportSyntax, stmt.Text, tokens[0])
	}
	symbol := tokens[end-1]

	if isReserved(symbol) {
		return "", nil, fmt.Errorf("%w: %q exports keyword %q instead of a named symbol", ErrExportSyntax, stmt.Text, symbol)
	}

	isDefault := false
	keywords := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t == DefaultExport {
			isDefault = true
			continue
		}
		keywords = append(keywords, t)
	}

	exported := &ExportedSymbol{
		ExportedAs: symbol,
		Local:      symbol,
	}
	if isDefault {
		exported.ExportedAs = DefaultExport
	}

	run := stmt.KeywordsAndSymbol
	trailing := run[len(strings.TrimRight(run, " \t")):]

	return stmt.Prefix + strings.Join(keywords, " ") + trailing, exported, nil
}
