package core

import "errors"

var (
	// ErrPropagation marks orbital elements that could not be propagated
	// (missing or malformed TLE, non-finite state). The failing entity is
	// excluded from the batch; the batch itself carries on.
	ErrPropagation = errors.New("propagation failed")

	// ErrBudgetViolation reports a broken tier-accounting invariant. Callers
	// keep the last good committed state rather than rendering past the cap.
	ErrBudgetViolation = errors.New("render budget violated")
)
