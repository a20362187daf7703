package nucleo

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCycleDetected is returned when a computation transitively reads itself,
// or when the eager recomputation pass finds a back-edge in the dependency
// graph. The failing Get or Set is aborted; store state for atoms outside
// the cycle remains consistent and usable.
var ErrCycleDetected = errors.New("nucleo: cycle detected in atom dependencies")

// ErrNotWritable is returned when Set is called on an atom that has neither
// a primitive value slot nor a write function. The set is rejected before
// any mutation.
var ErrNotWritable = errors.New("nucleo: atom is not writable")

// ErrDivergentUpdate is returned when the flush loop fails to reach a
// fixpoint within the store's iteration bound. This indicates a
// non-converging update cycle in user write functions or listeners, for
// example two listeners that keep setting each other's atoms.
var ErrDivergentUpdate = errors.New("nucleo: flush loop did not converge")

// ErrArgsMismatch is returned by the untyped SetAny when the supplied
// arguments do not match the atom's declared argument type. The typed Set
// methods make this unrepresentable.
var ErrArgsMismatch = errors.New("nucleo: set arguments type mismatch")

// CycleError reports the chain of atoms that formed a dependency cycle.
// It unwraps to ErrCycleDetected.
type CycleError struct {
	// Path holds the labels of the atoms on the active computation stack,
	// from the outermost to the atom that was re-entered.
	Path []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return "nucleo: cycle detected: " + strings.Join(e.Path, " -> ")
}

// Unwrap returns ErrCycleDetected for errors.Is support.
func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// ReadError wraps a failure reported by an atom's compute function.
// The error is cached like a value: dependents short-circuit with the same
// failure until one of the source atom's inputs changes again.
type ReadError struct {
	// Atom is the label of the atom whose computation failed.
	Atom string

	// Err is the error reported by the compute function.
	Err error
}

// Error implements the error interface.
func (e *ReadError) Error() string {
	return fmt.Sprintf("nucleo: reading %s: %v", e.Atom, e.Err)
}

// Unwrap returns the underlying compute error for errors.Is/As support.
func (e *ReadError) Unwrap() error { return e.Err }
