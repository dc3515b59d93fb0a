package pulse

import "errors"

// Sentinel errors returned by the Heartbeat.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEnabledDirNotSet is returned when no enabled directory is configured
	// and the PULSE_ENABLED_DIR environment variable is unset.
	ErrEnabledDirNotSet = errors.New("enabled directory not set")

	// ErrEnabledDirMissing is returned when the configured enabled directory
	// does not resolve to an existing directory.
	ErrEnabledDirMissing = errors.New("enabled directory does not exist")

	// ErrClosed is returned when an operation is attempted on a closed handle.
	ErrClosed = errors.New("heartbeat closed")
)
