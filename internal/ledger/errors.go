package ledger

import "errors"

// Error taxonomy of the central ledger. Callers classify with
// errors.Is. None of these are retried by the caller; only transient
// delivery failures on the gateway side are, and those never surface
// here.
var (
	// ErrValidation marks malformed or out-of-range input.
	ErrValidation = errors.New("invalid input")
	// ErrNotFound marks an unknown user, slot, booking or sensor.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an operation against incompatible state,
	// such as booking an occupied slot or completing a non-active
	// booking. The caller must re-fetch state.
	ErrConflict = errors.New("conflict")
)
