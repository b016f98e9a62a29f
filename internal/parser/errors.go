package parser

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedInput is matched by every error that rejects extract content.
	ErrMalformedInput = errors.New("malformed statement input")

	ErrMissingField  = errors.New("field index out of range")
	ErrEmptyValue    = errors.New("empty value")
	ErrInvalidNumber = errors.New("invalid number")
	ErrInvalidDate   = errors.New("invalid date")
)

// ParseError locates a rejected value inside an extract.
type ParseError struct {
	Line       int // 1-based
	Field      int // 0-based, as in the record layout
	RecordType string
	Err        error
}

func (e *ParseError) Error() string {
	if e.RecordType == "" {
		return fmt.Sprintf("line %d field %d: %v", e.Line, e.Field, e.Err)
	}
	return fmt.Sprintf("line %d (record type %s) field %d: %v", e.Line, e.RecordType, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is makes every ParseError match ErrMalformedInput.
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformedInput
}
