package pulse

import (
	"fmt"
	"os"
)

// EnvEnabledDir is the environment variable naming the directory where the
// library announces its per-process marker file. Used when
// Config.EnabledDir is empty; if neither is set, New fails.
const EnvEnabledDir = "PULSE_ENABLED_DIR"

// Config is the configuration for a Heartbeat.
//
// WindowSize, BufferDepth and the rate bounds are immutable after New; they
// are published in the shared state record for external monitors.
type Config struct {
	// WindowSize is the number of inter-beat intervals in the moving
	// average window. Must be positive.
	WindowSize int64 `yaml:"windowSize"`

	// BufferDepth is the capacity of the shared log ring. The ring wraps
	// and, when a text log is configured, flushes once per BufferDepth
	// recorded beats. Must be positive.
	BufferDepth int64 `yaml:"bufferDepth"`

	// LogPath is the optional text log file path. Empty disables the text
	// log; the shared log ring is maintained either way.
	LogPath string `yaml:"logPath"`

	// MinRate and MaxRate are the configured target rate bounds in beats
	// per second. Informational for external monitors; the library never
	// acts on them.
	MinRate float64 `yaml:"minRate"`
	MaxRate float64 `yaml:"maxRate"`

	// EnabledDir is the directory for the per-process marker file.
	// Defaults to the PULSE_ENABLED_DIR environment variable; the
	// directory must exist.
	EnabledDir string `yaml:"enabledDir"`

	// ShmDir is the directory backing the shared memory regions.
	// Defaults to /dev/shm when present, the OS temp directory otherwise.
	ShmDir string `yaml:"shmDir"`
}

// DefaultConfig returns a Config with sensible defaults.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		WindowSize:  20,
		BufferDepth: 64,
		ShmDir:      DefaultShmDir(),
	}
}

// SetDefaults fills in missing configuration values with defaults.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.WindowSize == 0 {
		cfg.WindowSize = defaults.WindowSize
	}
	if cfg.BufferDepth == 0 {
		cfg.BufferDepth = defaults.BufferDepth
	}
	if cfg.ShmDir == "" {
		cfg.ShmDir = defaults.ShmDir
	}
	if cfg.EnabledDir == "" {
		cfg.EnabledDir = os.Getenv(EnvEnabledDir)
	}
}

// Validate checks the configuration for correctness.
//
// Returns:
//   - error: ErrInvalidConfig-wrapped description of the first violation, or nil
func (c *Config) Validate() error {
	if c.WindowSize <= 0 {
		return fmt.Errorf("%w: windowSize must be positive, got %d", ErrInvalidConfig, c.WindowSize)
	}
	if c.BufferDepth <= 0 {
		return fmt.Errorf("%w: bufferDepth must be positive, got %d", ErrInvalidConfig, c.BufferDepth)
	}
	if c.MinRate < 0 || c.MaxRate < 0 {
		return fmt.Errorf("%w: rate bounds must be non-negative", ErrInvalidConfig)
	}
	if c.MaxRate > 0 && c.MinRate > c.MaxRate {
		return fmt.Errorf("%w: minRate %f exceeds maxRate %f", ErrInvalidConfig, c.MinRate, c.MaxRate)
	}

	return nil
}

// DefaultShmDir returns the default directory backing shared memory
// regions: /dev/shm when it exists, the OS temp directory otherwise.
func DefaultShmDir() string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return "/dev/shm"
	}

	return os.TempDir()
}
