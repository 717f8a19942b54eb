// file: internal/session/backend_file.go
package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/tableside/internal/config"
	"github.com/dkoosis/tableside/internal/logging"
)

// FileBackend stores the session as JSON in a file readable only by the owner.
// It is the fallback when the OS keyring is not available.
type FileBackend struct {
	path   string
	logger logging.Logger
	mutex  sync.RWMutex
}

var _ Backend = (*FileBackend)(nil)

// NewFileBackend creates a file backend at path, creating its directory.
func NewFileBackend(path string, logger logging.Logger) (*FileBackend, error) {
	if path == "" {
		return nil, errors.New("session file path is required")
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o700); err != nil {
		return nil, errors.Wrap(err, "failed to create session directory")
	}
	return &FileBackend{
		path:   expanded,
		logger: logging.OrNoop(logger).WithField("component", "file_session_backend"),
	}, nil
}

// Path returns the file location.
func (f *FileBackend) Path() string { return f.path }

// Save implements Backend.
func (f *FileBackend) Save(_ context.Context, s Session) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal session")
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return errors.Wrap(err, "failed to write session file")
	}
	f.logger.Debug("Saved session to file.", "role", s.Role)
	return nil
}

// Load implements Backend.
func (f *FileBackend) Load(_ context.Context) (Session, bool, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	// #nosec G304 -- path comes from configuration.
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Session{}, false, nil
		}
		return Session{}, false, errors.Wrap(err, "failed to read session file")
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, false, errors.Wrap(err, "failed to parse session file")
	}
	return s, true, nil
}

// Delete implements Backend.
func (f *FileBackend) Delete(_ context.Context) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to delete session file")
	}
	return nil
}

// Name implements Backend.
func (f *FileBackend) Name() string { return config.BackendFile }
