package dosing

import "errors"

// Sentinel errors for the dosing domain. Use with errors.Is().
var (
	// ErrProtocolNotFound is returned when a referenced protocol doesn't exist.
	ErrProtocolNotFound = errors.New("protocol not found")

	// ErrDoseNotFound is returned when a referenced dose record doesn't exist.
	ErrDoseNotFound = errors.New("dose record not found")
)

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProtocolNotFound) || errors.Is(err, ErrDoseNotFound)
}
