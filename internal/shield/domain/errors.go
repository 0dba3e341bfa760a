package domain

import (
	"errors"
	"fmt"
)

// ErrNoFallback is returned when a dataset cannot be parsed and no fallback
// dataset is available either.
var ErrNoFallback = errors.New("no fallback tracker data available")

// DataParseError reports a malformed tracker dataset. It is non-fatal: the
// manager falls back to the bootstrap snapshot.
type DataParseError struct {
	Tag string
	Err error
}

func (e *DataParseError) Error() string {
	return fmt.Sprintf("parse tracker data %q: %v", e.Tag, e.Err)
}

func (e *DataParseError) Unwrap() error { return e.Err }

// CompileError reports that the native compiler rejected the rules generated
// for one ruleset. The ruleset keeps its last good compiled rules.
type CompileError struct {
	Ruleset    string
	Identifier RuleIdentifier
	Err        error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile ruleset %q: %v", e.Ruleset, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }
