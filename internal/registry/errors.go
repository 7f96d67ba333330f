package registry

import (
	"errors"
	"fmt"
)

// ErrZeroTotal is the division-by-zero case of Sum: nothing in the registry
// has a footprint. Sum guards it and reports 0%.
var ErrZeroTotal = errors.New("registry: aggregate size is zero")

// DuplicateKeyError reports a second insert of the same asset id. It means the
// manifest declares an asset twice or the traversal produced a record twice.
type DuplicateKeyError struct {
	Key string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("registry: duplicate asset %q", e.Key)
}

// IsDuplicateKey reports whether err is (or wraps) a *DuplicateKeyError.
func IsDuplicateKey(err error) bool {
	var e *DuplicateKeyError
	return errors.As(err, &e)
}

// ParseError reports a malformed row in a persisted report. Line is 1-based;
// Column is the header label of the offending field, or empty for row-level
// problems.
type ParseError struct {
	Path   string
	Line   int
	Column string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("parse %s:%d: column %s: %v", e.Path, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("parse %s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsParse reports whether err is (or wraps) a *ParseError.
func IsParse(err error) bool {
	var e *ParseError
	return errors.As(err, &e)
}
