// file: internal/session/backend_keyring.go
package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/tableside/internal/config"
	"github.com/dkoosis/tableside/internal/logging"
	"github.com/zalando/go-keyring"
)

const (
	defaultKeyringService = "TablesideSession"
	keyringUser           = "SessionDetails" // Account name for the keyring entry.
)

// KeyringBackend stores the session in the OS keychain.
type KeyringBackend struct {
	service string
	logger  logging.Logger
}

var _ Backend = (*KeyringBackend)(nil)

// NewKeyringBackend creates a keyring backend under service.
func NewKeyringBackend(service string, logger logging.Logger) *KeyringBackend {
	if service == "" {
		service = defaultKeyringService
	}
	return &KeyringBackend{
		service: service,
		logger:  logging.OrNoop(logger).WithField("component", "keyring_session_backend"),
	}
}

// IsAvailable checks if the OS keyring service is accessible.
func (k *KeyringBackend) IsAvailable() bool {
	_, err := keyring.Get(k.service, keyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			k.logger.Debug("Keyring service is accessible (no session stored).")
			return true
		}
		k.logger.Warn("Keyring service is inaccessible or permissions are insufficient.", "error", err)
		return false
	}
	k.logger.Debug("Keyring service is accessible and holds a session.")
	return true
}

// Save implements Backend.
func (k *KeyringBackend) Save(_ context.Context, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "failed to encode session for secure storage")
	}

	if err := keyring.Set(k.service, keyringUser, string(data)); err != nil {
		k.logger.Error("keyring.Set operation failed.", "error", fmt.Sprintf("%+v", err))
		k.logger.Warn("Potential macOS Keychain issues: check Keychain Access permissions and that the 'login' keychain is unlocked.")
		return errors.Wrap(err, "failed to save session to system keyring")
	}

	k.logger.Info("Session saved to system keyring.", "role", s.Role)
	return nil
}

// Load implements Backend.
func (k *KeyringBackend) Load(_ context.Context) (Session, bool, error) {
	raw, err := keyring.Get(k.service, keyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return Session{}, false, nil
		}
		return Session{}, false, errors.Wrap(err, "failed to load session from system keyring")
	}

	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		k.logger.Error("Session in keyring is corrupted, attempting deletion.", "error", err)
		_ = k.Delete(context.Background())
		return Session{}, false, errors.Wrap(err, "failed to parse session from secure storage")
	}
	return s, true, nil
}

// Delete implements Backend.
func (k *KeyringBackend) Delete(_ context.Context) error {
	if err := keyring.Delete(k.service, keyringUser); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "failed to delete session from system keyring")
	}
	k.logger.Info("Session deleted from system keyring.")
	return nil
}

// Name implements Backend.
func (k *KeyringBackend) Name() string { return config.BackendKeyring }
