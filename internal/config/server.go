package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/finmail/internal/common"
)

// ServerConfig configures the HTTP agent surface.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Validate checks the listen address and timeouts.
func (c ServerConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: server address", common.ErrMissingConfig)
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: server timeouts must be positive", common.ErrInvalidConfig)
	}
	return nil
}

// LoadServerConfig loads the server configuration. PORT overrides the default port.
func LoadServerConfig() (*ServerConfig, error) {
	config := ServerConfig{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
	}

	if v := viper.GetString("server.addr"); v != "" {
		config.Addr = v
	} else if v := os.Getenv("PORT"); v != "" {
		config.Addr = ":" + v
	}
	if v := viper.GetDuration("server.read_timeout"); v > 0 {
		config.ReadTimeout = v
	}
	if v := viper.GetDuration("server.write_timeout"); v > 0 {
		config.WriteTimeout = v
	}
	if v := viper.GetDuration("server.shutdown_timeout"); v > 0 {
		config.ShutdownTimeout = v
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
