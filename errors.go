package reactive

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyPath is returned when a write targets the root itself.
	ErrEmptyPath = errors.New("reactive: empty path")
	// ErrNoStorage is returned by New when persistence is enabled without an
	// adapter.
	ErrNoStorage = errors.New("reactive: persistence enabled without a storage adapter")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("reactive: store closed")
	// ErrNoEngine is returned when a selector expression has no engine.
	ErrNoEngine = errors.New("reactive: selector engine not configured")
	// ErrNotFound is returned when a read targets a missing path.
	ErrNotFound = errors.New("reactive: path not found")
	// ErrNotContainer is returned when a path runs through a scalar that
	// cannot hold children.
	ErrNotContainer = errors.New("reactive: path does not address a container")
	// ErrSelectorTimeout interrupts a JS selector that ran past its limit.
	ErrSelectorTimeout = errors.New("reactive: selector timed out")
)

// SelectorError carries the engine and expression of a failed selector.
type SelectorError struct {
	Engine string
	Expr   string
	Err    error
}

func (e *SelectorError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("reactive: %s selector %s: %v", e.Engine, describeExpression(e.Expr), e.Err)
}

func (e *SelectorError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func wrapEngineError(engine string, err error) error {
	if err == nil {
		return nil
	}
	var selErr *SelectorError
	if errors.As(err, &selErr) {
		return err
	}
	if strings.HasPrefix(err.Error(), "reactive:") {
		return err
	}
	return fmt.Errorf("reactive: %s engine: %w", engine, err)
}

// wrapSelectorError attaches engine and expression metadata, filling blanks
// on an existing SelectorError instead of nesting it.
func wrapSelectorError(engine, expr string, err error) error {
	if err == nil {
		return nil
	}
	var selErr *SelectorError
	if errors.As(err, &selErr) {
		if selErr.Engine == "" {
			selErr.Engine = engine
		}
		if selErr.Expr == "" {
			selErr.Expr = expr
		}
		return selErr
	}
	return &SelectorError{Engine: engine, Expr: expr, Err: err}
}
