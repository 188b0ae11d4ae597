package settings

import "errors"

var (
	// ErrNotFound is returned by a Repository when a key has no record.
	ErrNotFound = errors.New("settings: not found")

	// ErrNotLoaded is returned when writing a key that was never loaded.
	ErrNotLoaded = errors.New("settings: key not loaded")

	// ErrInvalidValue is returned when a key's validator rejects a write.
	ErrInvalidValue = errors.New("settings: invalid value")

	// ErrUnavailable is returned when the backing storage fails.
	ErrUnavailable = errors.New("settings: storage unavailable")
)
