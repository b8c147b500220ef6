package rewrite

import (
	"fmt"
)

var (
	ErrPattern       = fmt.Errorf("rewrite: pattern")
	ErrImportSyntax  = fmt.Errorf("rewrite: import syntax")
	ErrExportSyntax  = fmt.Errorf("rewrite: export syntax")
	ErrInvalidSymbol = fmt.Errorf("rewrite: invalid symbol")
)

// Phase names the rewrite pass an error was raised in.
type Phase string

const (
	PhaseSetup   Phase = "setup"
	PhaseImports Phase = "imports"
	PhaseExports Phase = "exports"
)

// Error is returned for every failed rewrite. Text holds the statement (or
// input) that could not be rewritten, and Err unwraps to one of the Err*
// sentinels above.
type Error struct {
	Phase Phase
	Text  string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("rewrite %s: %q: %v", e.Phase, e.Text, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(phase Phase, text string, err error) *Error {
	return &Error{
		Phase: phase,
		Text:  text,
		Err:   err,
	}
}
