package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/Veraticus/finmail/internal/common"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfig selects and locates the record store.
type DatabaseConfig struct {
	Driver   string
	Path     string // SQLite file
	URL      string // PostgreSQL connection string
	MaxConns int32
}

// Validate checks that the selected driver has what it needs.
func (c DatabaseConfig) Validate() error {
	switch c.Driver {
	case DriverSQLite:
		if c.Path == "" {
			return fmt.Errorf("%w: database path", common.ErrMissingConfig)
		}
	case DriverPostgres:
		if c.URL == "" {
			return fmt.Errorf("%w: database url", common.ErrMissingConfig)
		}
		if c.MaxConns <= 0 {
			return fmt.Errorf("%w: max connections must be positive", common.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown database driver %q", common.ErrInvalidConfig, c.Driver)
	}
	return nil
}

// LoadDatabaseConfig loads the database configuration. A DATABASE_URL in the
// environment selects postgres when no driver is configured.
func LoadDatabaseConfig() (*DatabaseConfig, error) {
	config := DatabaseConfig{
		Driver:   DriverSQLite,
		Path:     dataPath("finmail.db"),
		MaxConns: 10,
	}

	driver := strings.ToLower(viper.GetString("database.driver"))
	if v := viper.GetString("database.path"); v != "" {
		config.Path = ExpandPath(v)
	}
	if v := viper.GetString("database.url"); v != "" {
		config.URL = v
	}
	if v := viper.GetInt32("database.max_conns"); v != 0 {
		config.MaxConns = v
	}

	if config.URL == "" {
		config.URL = os.Getenv("DATABASE_URL")
	}
	switch {
	case driver == "postgresql":
		config.Driver = DriverPostgres
	case driver != "":
		config.Driver = driver
	case config.URL != "":
		config.Driver = DriverPostgres
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
