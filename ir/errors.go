package ir

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies the failures reported by the symbol table and the passes.
type ErrorKind int

const (
	InvalidErrorKind ErrorKind = iota
	DuplicateSymbol
	UnknownSymbol
	SymbolInUse
	SignatureMismatch
	SessionLookupFailure
	SessionUnavailable
	UnexpectedMutation
	InvalidAssetPath

	// MutationOfImmutable is only ever reported as a warning: the assignment is removed instead.
	MutationOfImmutable
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case DuplicateSymbol:
		return "DuplicateSymbol"
	case UnknownSymbol:
		return "UnknownSymbol"
	case SymbolInUse:
		return "SymbolInUse"
	case SignatureMismatch:
		return "SignatureMismatch"
	case SessionLookupFailure:
		return "SessionLookupFailure"
	case SessionUnavailable:
		return "SessionUnavailable"
	case UnexpectedMutation:
		return "UnexpectedMutation"
	case InvalidAssetPath:
		return "InvalidAssetPath"
	case MutationOfImmutable:
		return "MutationOfImmutable"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is a diagnostic attached to the location of the offending symbol or operation.
type Error struct {
	Kind ErrorKind

	// Loc is the location of the offending operation, or "@name" for a symbol.
	Loc string

	Msg string

	// Err is the underlying cause, if any (e.g. the session error).
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	if e.Loc != "" {
		msg = fmt.Sprintf("%s: %s", e.Loc, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates an *Error of the given kind located at loc.
func Errorf(kind ErrorKind, loc string, format string, args ...any) *Error {
	return &Error{Kind: kind, Loc: loc, Msg: fmt.Sprintf(format, args...)}
}

// WrapErrorf creates an *Error of the given kind that wraps cause.
func WrapErrorf(cause error, kind ErrorKind, loc string, format string, args ...any) *Error {
	e := Errorf(kind, loc, format, args...)
	e.Err = cause
	return e
}

// KindOf returns the ErrorKind of the first *Error in err's chain, or InvalidErrorKind.
func KindOf(err error) ErrorKind {
	var irErr *Error
	if errors.As(err, &irErr) {
		return irErr.Kind
	}
	return InvalidErrorKind
}

// IsKind reports whether err (or anything it wraps) is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// SymbolLoc returns the location used for diagnostics about a symbol.
func SymbolLoc(name string) string {
	return "@" + name
}
