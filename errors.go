package morphidx

import (
	"fmt"

	"github.com/hupe1980/morphidx/persistence"
	"github.com/hupe1980/morphidx/rtree"
)

var (
	// ErrNegativeRadius is returned for a negative radius.
	ErrNegativeRadius = rtree.ErrNegativeRadius

	// ErrVersionMismatch is returned when a persisted file's struct version
	// differs from the expected one. Fatal.
	ErrVersionMismatch = persistence.ErrVersionMismatch
)

// ErrLengthMismatch indicates parallel input arrays of differing lengths.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrLengthMismatch struct {
	Lengths []int
	cause   error
}

func (e *ErrLengthMismatch) Error() string {
	return fmt.Sprintf("input arrays must have the same length: got %v", e.Lengths)
}

func (e *ErrLengthMismatch) Unwrap() error { return e.cause }

// ErrInvalidRadius indicates a negative radius at a given input position.
//
// It unwraps to ErrNegativeRadius.
type ErrInvalidRadius struct {
	Index  int
	Radius float32
	cause  error
}

func (e *ErrInvalidRadius) Error() string {
	return fmt.Sprintf("invalid radius %v at index %d", e.Radius, e.Index)
}

func (e *ErrInvalidRadius) Unwrap() error { return e.cause }

func validateLengths(lens ...int) error {
	for _, n := range lens[1:] {
		if n != lens[0] {
			return &ErrLengthMismatch{Lengths: lens}
		}
	}
	return nil
}

func validateRadii(radii []float32) error {
	for i, r := range radii {
		if r < 0 {
			return &ErrInvalidRadius{Index: i, Radius: r, cause: ErrNegativeRadius}
		}
	}
	return nil
}
