package extract

import "fmt"

// ParseError reports a failure to parse a document at a given line
type ParseError struct {
	Line int // 1-based line number, 0 if unknown
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse document: line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("parse document: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// DuplicateTableError reports a table name that normalizes to an existing table
type DuplicateTableError struct {
	Table string
}

func (e *DuplicateTableError) Error() string {
	return fmt.Sprintf("table %s already added", e.Table)
}

// DuplicateFieldError reports a field that recurs within a table
type DuplicateFieldError struct {
	Table string
	Field string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("field %s already added for table %s", e.Field, e.Table)
}
