package rewrite

import (
	"fmt"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// Capture is one capture group of a Match. Index and Length count runes.
type Capture struct {
	Text    string
	Index   int
	Length  int
	Matched bool
}

// Match is a single pattern match with its capture groups, excluding the
// whole-match group 0.
type Match struct {
	Text     string
	Index    int
	Length   int
	Captures []Capture
}

// Replacer returns the text that replaces a match.
type Replacer func(match string, captures []string) (string, error)

// Pattern wraps a compiled regular expression. Offsets reported by a Pattern
// are rune offsets into the searched text.
type Pattern struct {
	expr string
	re   *regexp2.Regexp
}

func CompilePattern(expr string, timeout time.Duration) (*Pattern, error) {
	re, err := regexp2.Compile(expr, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid regex %q: %v", ErrPattern, expr, err)
	}
	if timeout > 0 {
		re.MatchTimeout = timeout
	}
	return &Pattern{
		expr: expr,
		re:   re,
	}, nil
}

func MustCompilePattern(expr string) *Pattern {
	p, err := CompilePattern(expr, 0)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pattern) String() string {
	return p.expr
}

// checkEncoding makes sure rune offsets can be mapped back onto text. Invalid
// UTF-8 decodes to replacement runes, so the byte length of the decoded runes
// no longer matches the byte length of the input.
func checkEncoding(text string, runes []rune) error {
	encoded := 0
	for _, r := range runes {
		encoded += utf8.RuneLen(r)
	}
	if encoded != len(text) {
		return fmt.Errorf("%w: text is %d bytes but decodes to %d bytes of runes, offsets would be corrupted",
			ErrPattern, len(text), encoded)
	}
	return nil
}

// Match returns all non-overlapping matches in document order.
func (p *Pattern) Match(text string) ([]Match, error) {
	runes := []rune(text)
	if err := checkEncoding(text, runes); err != nil {
		return nil, err
	}

	var matches []Match

	m, err := p.re.FindRunesMatch(runes)
	for ; m != nil && err == nil; m, err = p.re.FindNextMatch(m) {
		groups := m.Groups()
		match := Match{
			Text:     m.String(),
			Index:    m.Index,
			Length:   m.Length,
			Captures: make([]Capture, 0, len(groups)-1),
		}
		for _, g := range groups[1:] {
			match.Captures = append(match.Captures, Capture{
				Text:    g.String(),
				Index:   g.Index,
				Length:  g.Length,
				Matched: len(g.Captures) > 0,
			})
		}
		matches = append(matches, match)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: matching %q: %v", ErrPattern, p.expr, err)
	}

	return matches, nil
}

// MatchOne expects exactly one match in text.
func (p *Pattern) MatchOne(text string) (Match, error) {
	matches, err := p.Match(text)
	if err != nil {
		return Match{}, err
	}
	if len(matches) != 1 {
		return Match{}, fmt.Errorf("%w: expected exactly one match in %q, found %d", ErrPattern, text, len(matches))
	}
	return matches[0], nil
}

// ReplaceAll replaces every match with the output of fn.
func (p *Pattern) ReplaceAll(text string, fn Replacer) (string, error) {
	return p.ReplaceAllMatches(text, func(m Match) (string, error) {
		captures := make([]string, len(m.Captures))
		for i, c := range m.Captures {
			captures[i] = c.Text
		}
		return fn(m.Text, captures)
	})
}

// ReplaceAllMatches replaces every match with the output of fn. Replacements
// are applied from the last match to the first so that the offsets of matches
// not yet replaced stay valid.
func (p *Pattern) ReplaceAllMatches(text string, fn func(m Match) (string, error)) (string, error) {
	matches, err := p.Match(text)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return text, nil
	}

	out := []rune(text)
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		if m.Index < 0 || m.Index+m.Length > len(out) {
			return "", fmt.Errorf("%w: match %q at %d+%d is outside of text (%d runes)",
				ErrPattern, m.Text, m.Index, m.Length, len(out))
		}

		replacement, err := fn(m)
		if err != nil {
			return "", err
		}
		out = slices.Replace(out, m.Index, m.Index+m.Length, []rune(replacement)...)
	}

	return string(out), nil
}
