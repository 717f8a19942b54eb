// file: internal/config/paths.go
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// ExpandPath expands a leading '~' to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrapf(err, "failed to expand home directory in %q", path)
	}
	return filepath.Join(home, path[1:]), nil
}

// DefaultConfigPath returns the default location of the configuration file.
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("configs", "tableside.yaml")
	}
	return filepath.Join(homeDir, ".config", "tableside", "tableside.yaml")
}
