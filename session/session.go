// Package session defines the contract of the external execution session that holds the live values of
// the model variables, and provides implementations of it:
//
//   - Fake: in-memory canned values, for tests and for the deterministic test variant of the passes.
//   - Checkpoint: variables read from a checkpoint file (see ReadCheckpoint).
//
// See package ctxsession for a Session backed by a GoMLX context.
package session

import (
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

var (
	// ErrUnknownVariable is returned (wrapped) when the session has no variable with the requested name.
	ErrUnknownVariable = errors.New("unknown variable")

	// ErrUninitialized is returned (wrapped) when reading the value of a variable not yet initialized.
	ErrUninitialized = errors.New("variable not initialized")

	// ErrUnavailable is returned (wrapped) when the session cannot be reached at all.
	ErrUnavailable = errors.New("session unavailable")
)

// Session is a synchronous, authoritative source of the current state of the variables.
//
// Every call is a blocking round trip that may perform I/O. Implementations are not required to be
// safe for concurrent use: the passes call them from a single goroutine.
type Session interface {
	// ValueOf returns the current value of the variable.
	ValueOf(name string) (*tensors.Tensor, error)

	// IsInitialized reports whether the variable holds a value.
	IsInitialized(name string) (bool, error)

	// ShapeOf returns the shape (dtype and dimensions) of the variable.
	ShapeOf(name string) (shapes.Shape, error)

	// Variables lists the names of all variables known to the session, sorted.
	Variables() ([]string, error)
}

// IsUnknownVariable reports whether err was caused by a lookup of an unknown variable.
func IsUnknownVariable(err error) bool {
	return errors.Is(err, ErrUnknownVariable)
}
