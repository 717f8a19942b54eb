// file: internal/session/backend.go
package session

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/tableside/internal/config"
	"github.com/dkoosis/tableside/internal/logging"
	"github.com/redis/go-redis/v9"
)

// Backend persists a single session.
type Backend interface {
	// Save replaces any stored session.
	Save(ctx context.Context, s Session) error
	// Load returns the stored session, or ok=false when none is stored.
	Load(ctx context.Context) (s Session, ok bool, err error)
	// Delete removes the stored session. Deleting nothing is not an error.
	Delete(ctx context.Context) error
	// Name identifies the backend in logs and status output.
	Name() string
}

// NewBackend creates the backend selected by cfg. "auto" uses the OS keyring
// when it is reachable and falls back to the file at cfg.TokenPath.
func NewBackend(cfg config.SessionConfig, logger logging.Logger) (Backend, error) {
	logger = logging.OrNoop(logger)

	switch cfg.Backend {
	case config.BackendKeyring:
		return NewKeyringBackend(cfg.KeyringService, logger), nil
	case config.BackendFile:
		return NewFileBackend(cfg.TokenPath, logger)
	case config.BackendMemory:
		return NewMemoryBackend(), nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedisBackend(client, cfg.RedisPrefix, logger), nil
	case config.BackendAuto, "":
		kr := NewKeyringBackend(cfg.KeyringService, logger)
		if kr.IsAvailable() {
			logger.Info("Using secure session storage (OS keyring).")
			return kr, nil
		}
		logger.Info("Secure session storage not available, falling back to file-based storage.",
			"path", cfg.TokenPath)
		return NewFileBackend(cfg.TokenPath, logger)
	default:
		return nil, errors.Newf("unknown session backend %q", cfg.Backend)
	}
}

// MemoryBackend keeps the session in process memory only.
type MemoryBackend struct {
	mu      sync.Mutex
	session *Session
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Save implements Backend.
func (m *MemoryBackend) Save(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = &s
	return nil
}

// Load implements Backend.
func (m *MemoryBackend) Load(_ context.Context) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false, nil
	}
	return *m.session, true, nil
}

// Delete implements Backend.
func (m *MemoryBackend) Delete(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

// Name implements Backend.
func (m *MemoryBackend) Name() string { return config.BackendMemory }
