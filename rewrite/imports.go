package rewrite

import (
	"fmt"
	"strings"
)

// DefaultExport is the exports property read by default imports and written
// by default exports.
const DefaultExport = "default"

var importEntryPattern = MustCompilePattern(`^(\*|[A-Za-z_$][A-Za-z0-9_$]*)(?:\s+as\s+([A-Za-z_$][A-Za-z0-9_$]*))?\z`)

// Binding is one local declaration produced by an import: Local is bound to
// the value of the Source expression.
type Binding struct {
	Source string
	Local  string
}

// ImportStatement is a single matched import statement. Index and Length
// are rune offsets into the source the statement was found in.
type ImportStatement struct {
	Text   string
	Clause string
	Path   string
	Index  int
	Length int
}

// ParseImportClause turns the text between `import` and `from` into
// bindings against moduleSymbol.
//
//	* as ns        -> ns = moduleSymbol
//	name           -> name = moduleSymbol.default
//	{ a, b as c }  -> a = moduleSymbol.a, c = moduleSymbol.b
//
// Mixing a default or namespace import with named imports in one statement
// is not supported and reported as an error.
func ParseImportClause(clause, moduleSymbol string) ([]Binding, error) {
	clause = strings.TrimSpace(clause)
	if clause == "" {
		return nil, fmt.Errorf("%w: empty import clause", ErrImportSyntax)
	}

	named := strings.HasPrefix(clause, "{")
	if named {
		if !strings.HasSuffix(clause, "}") || strings.Count(clause, "{") != 1 || strings.Count(clause, "}") != 1 {
			return nil, fmt.Errorf("%w: unsupported import clause %q, mixed default and named imports are not supported", ErrImportSyntax, clause)
		}
	} else if strings.ContainsAny(clause, "{},") {
		return nil, fmt.Errorf("%w: unsupported import clause %q, mixed default and named imports are not supported", ErrImportSyntax, clause)
	}

	entries := strings.Split(clause, ",")
	bindings := make([]Binding, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(strings.Trim(strings.TrimSpace(entry), "{}"))
		if entry == "" {
			if named {
				// `{}` and trailing commas
				continue
			}
			return nil, fmt.Errorf("%w: empty import entry in %q", ErrImportSyntax, clause)
		}

		b, err := parseImportEntry(entry, moduleSymbol, named)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}

	return bindings, nil
}

func parseImportEntry(entry, moduleSymbol string, named bool) (Binding, error) {
	as := 0
	for _, token := range strings.Fields(entry) {
		if token == "as" {
			as++
		}
	}
	if as > 1 {
		return Binding{}, fmt.Errorf("%w: import entry %q uses \"as\" more than once", ErrImportSyntax, entry)
	}

	m, err := importEntryPattern.MatchOne(entry)
	if err != nil {
		return Binding{}, fmt.Errorf("%w: malformed import entry %q", ErrImportSyntax, entry)
	}

	imported := m.Captures[0].Text
	local := imported
	if m.Captures[1].Matched {
		local = m.Captures[1].Text
	}

	var source string
	switch {
	case imported == "*":
		if !m.Captures[1].Matched {
			return Binding{}, fmt.Errorf("%w: namespace import %q needs an alias", ErrImportSyntax, entry)
		}
		source = moduleSymbol
	case named:
		source = moduleSymbol + "." + imported
	default:
		if m.Captures[1].Matched {
			return Binding{}, fmt.Errorf("%w: default import %q cannot be renamed with \"as\"", ErrImportSyntax, entry)
		}
		source = moduleSymbol + "." + DefaultExport
	}

	if isReserved(local) {
		return Binding{}, fmt.Errorf("%w: import entry %q binds reserved word %q", ErrImportSyntax, entry, local)
	}

	return Binding{
		Source: source,
		Local:  local,
	}, nil
}
