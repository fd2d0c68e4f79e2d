// Package corerr defines the numeric error taxonomy shared by the
// transaction buffer, builder buffer, and LWN manager.
package corerr

import (
	"errors"
	"fmt"
)

// Kind identifies an error category by the numeric code the original
// engine reports it under.
type Kind int

const (
	BadXid             Kind = 20002
	ConflictingXid     Kind = 50039
	ChunkOverflow      Kind = 50040
	BadSplit           Kind = 50041
	SplitNot0501       Kind = 50042
	BadSplit2          Kind = 50043
	EmptyRollback      Kind = 50044
	LwnChunksExhausted Kind = 50052
	LwnRecordTooBig    Kind = 50053
	LwnOverflow        Kind = 50054
	FatalPoolLeak      Kind = 50062
	PoolExhausted      Kind = 50063
	DuplicateOrphanLob Kind = 60009
)

// Error is a single error type carrying the numeric code and a
// human-readable message with the relevant identifiers inlined.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%05d: %s", int(e.Kind), e.Message)
}

// Code returns the numeric code carried by the error.
func (e *Error) Code() int {
	return int(e.Kind)
}

// Is reports whether target is a *Error of the same Kind, so callers can
// use errors.Is(err, corerr.New(corerr.ChunkOverflow, "")) style checks
// via KindOf instead, or compare Kind directly after a type assertion.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

// New constructs an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
