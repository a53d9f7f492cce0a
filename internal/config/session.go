package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/finmail/internal/common"
)

// Snapshot backends.
const (
	SnapshotFile   = "file"
	SnapshotSQLite = "sqlite"
	SnapshotNone   = "none"
)

// SessionConfig configures the review session manager.
type SessionConfig struct {
	Backend         string
	SnapshotDir     string
	MaxAge          time.Duration
	CleanupInterval time.Duration
}

// Validate checks the snapshot backend and timings.
func (c SessionConfig) Validate() error {
	switch c.Backend {
	case SnapshotFile:
		if c.SnapshotDir == "" {
			return fmt.Errorf("%w: session snapshot directory", common.ErrMissingConfig)
		}
	case SnapshotSQLite, SnapshotNone:
	default:
		return fmt.Errorf("%w: unknown session backend %q", common.ErrInvalidConfig, c.Backend)
	}
	if c.MaxAge <= 0 || c.CleanupInterval <= 0 {
		return fmt.Errorf("%w: session durations must be positive", common.ErrInvalidConfig)
	}
	return nil
}

// LoadSessionConfig loads the session configuration.
func LoadSessionConfig() (*SessionConfig, error) {
	config := SessionConfig{
		Backend:         SnapshotFile,
		SnapshotDir:     dataPath("sessions"),
		MaxAge:          24 * time.Hour,
		CleanupInterval: time.Hour,
	}

	if v := viper.GetString("session.backend"); v != "" {
		config.Backend = strings.ToLower(v)
	}
	if v := viper.GetString("session.snapshot_dir"); v != "" {
		config.SnapshotDir = ExpandPath(v)
	}
	if v := viper.GetDuration("session.max_age"); v > 0 {
		config.MaxAge = v
	}
	if v := viper.GetDuration("session.cleanup_interval"); v > 0 {
		config.CleanupInterval = v
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
