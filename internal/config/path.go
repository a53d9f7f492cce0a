// Package config loads typed configuration from viper and the environment.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Default locations, before expansion.
const (
	dataDir   = "~/.local/share/finmail"
	configDir = "~/.config/finmail"
)

// ExpandPath resolves a leading ~ and $VAR references.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return os.ExpandEnv(path)
}

func dataPath(elem ...string) string {
	return ExpandPath(filepath.Join(append([]string{dataDir}, elem...)...))
}

func configPath(elem ...string) string {
	return ExpandPath(filepath.Join(append([]string{configDir}, elem...)...))
}
