package starlink

import "errors"

// Domain errors for the Starlink bridge package.
var (
	// ErrDeviceInfoUnavailable is returned when the dish identity cannot be
	// fetched at startup, either at transport level or because the dish
	// returned a non-zero status.
	ErrDeviceInfoUnavailable = errors.New("starlink: device info unavailable")

	// ErrSettingsUnavailable is returned when the custom name cannot be loaded.
	ErrSettingsUnavailable = errors.New("starlink: settings unavailable")

	// ErrRegistrationFailed is returned when the tree cannot be published.
	ErrRegistrationFailed = errors.New("starlink: registration failed")

	// ErrAlreadyInitialized is returned by a second call to Initialize.
	ErrAlreadyInitialized = errors.New("starlink: already initialized")

	// ErrNotRunning is returned for writes before Initialize completed.
	ErrNotRunning = errors.New("starlink: publisher not running")

	// ErrInvalidCustomName is returned when a custom name fails validation.
	ErrInvalidCustomName = errors.New("starlink: invalid custom name")
)
