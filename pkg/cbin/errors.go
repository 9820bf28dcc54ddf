package cbin

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAContainer is returned when the input does not start with the CBIN magic.
	ErrNotAContainer = errors.New("not a CBIN container")
	// ErrTruncated is returned when the input is shorter than the fixed preamble.
	ErrTruncated = errors.New("truncated CBIN data")
	// ErrEmptyKey is returned when the cipher is given a zero-length key.
	ErrEmptyKey = errors.New("cipher key must not be empty")
	// ErrInvalidKey is returned when key material is not valid hex.
	ErrInvalidKey = errors.New("invalid cipher key")
	// ErrTokenNUL is returned when a token string contains a NUL byte and
	// therefore cannot be written to the NUL-terminated token table.
	ErrTokenNUL = errors.New("token contains NUL byte")
)

// Decode stages reported in a RecordError.
const (
	StageSectionCount = "section-count"
	StageSection      = "section"
	StageKey          = "key"
	StageValue        = "value"
	StageTokens       = "tokens"
)

// RecordError describes a single record that could not be read. The decoder
// recovers from these and records them in Document.Diagnostics.
type RecordError struct {
	Stage  string
	Index  int
	Offset int64 // absolute file offset of the record
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s record %d at 0x%X: %v", e.Stage, e.Index, e.Offset, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// SyntaxError reports a malformed line in the text form.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}
