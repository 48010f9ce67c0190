/*
errors.go - Centralized error types for the cadence core

PURPOSE:
  All error types of the core in one place. Outer layers (dosing, api)
  wrap these with additional context.

NOTE ON FAIL-CLOSED CONFIG:
  Malformed schedule configuration (missing interval, empty custom day set)
  is deliberately NOT an error anywhere in this package: such an item is
  simply never due. Only caller-supplied dates that fail to parse are
  treated as fatal input errors.

SEE ALSO:
  - day.go: ParseDay returns InvalidDateError
  - factory: rejects malformed config at construction instead
*/
package cadence

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidDateInput is returned when a caller-supplied date string
	// fails to parse. The core never silently defaults a bad date.
	ErrInvalidDateInput = errors.New("invalid date input")

	// ErrInvalidRange is returned when a date range ends before it starts.
	ErrInvalidRange = errors.New("invalid range: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidDateError reports the exact input that failed to parse.
type InvalidDateError struct {
	Input string
	Cause error
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid date input %q: %v", e.Input, e.Cause)
}

func (e *InvalidDateError) Unwrap() error { return ErrInvalidDateInput }

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidDateInput) || errors.Is(err, ErrInvalidRange)
}
