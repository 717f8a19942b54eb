// file: internal/session/store.go
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/tableside/internal/logging"
)

// Store is the process-wide session store. Route guards read it through
// Current and RequireRole; only a completed flow writes it; only logout clears it.
type Store struct {
	backend  Backend
	verifier *Verifier
	now      func() time.Time
	logger   logging.Logger

	mu      sync.Mutex
	loaded  bool
	current *Session
}

// Option configures a Store.
type Option func(*Store)

// WithVerifier makes Establish cross-check the session token's role claim.
func WithVerifier(v *Verifier) Option {
	return func(s *Store) { s.verifier = v }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.logger = logging.OrNoop(l).WithField("component", "session_store") }
}

// NewStore creates a store over backend. Nothing is read until first use.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		now:     time.Now,
		logger:  logging.GetNoopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BackendName reports where sessions are persisted.
func (s *Store) BackendName() string { return s.backend.Name() }

// Establish persists sess. The role must come from the verified
// post-verification response; when a verifier is configured the token's role
// claim must agree with it, otherwise nothing is written.
func (s *Store) Establish(ctx context.Context, sess Session) (Session, error) {
	if err := sess.Validate(); err != nil {
		return Session{}, err
	}

	if s.verifier != nil {
		role, exp, err := s.verifier.Verify(sess.Token)
		if err != nil {
			return Session{}, errors.Mark(err, ErrInvalidSession)
		}
		if role != sess.Role {
			s.logger.Warn("Session token role disagrees with verified response; session not written.",
				"responseRole", sess.Role, "tokenRole", role)
			return Session{}, errors.Wrapf(ErrRoleMismatch, "response role %s, token role %s", sess.Role, role)
		}
		if sess.ExpiresAt.IsZero() {
			sess.ExpiresAt = exp
		}
	}
	if sess.EstablishedAt.IsZero() {
		sess.EstablishedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Save(ctx, sess); err != nil {
		return Session{}, err
	}
	s.current = &sess
	s.loaded = true
	s.logger.Info("Session established.", "role", sess.Role, "backend", s.backend.Name())
	return sess, nil
}

// Current returns the session, reading the backend on first use. An absent,
// unreadable or expired session is reported as ok=false.
func (s *Store) Current(ctx context.Context) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		sess, ok, err := s.backend.Load(ctx)
		if err != nil {
			s.logger.Warn("Could not read persisted session; treating as not authenticated.", "error", err)
			return Session{}, false
		}
		s.loaded = true
		if ok {
			s.current = &sess
		}
	}
	if s.current == nil {
		return Session{}, false
	}
	if s.current.Expired(s.now()) {
		s.logger.Info("Persisted session has expired.", "role", s.current.Role)
		if err := s.backend.Delete(ctx); err != nil {
			s.logger.Warn("Failed to remove expired session.", "error", err)
		}
		s.current = nil
		return Session{}, false
	}
	return *s.current, true
}

// RequireRole returns the current session if its role is one of roles.
// With no roles any authenticated session passes.
func (s *Store) RequireRole(ctx context.Context, roles ...Role) (Session, error) {
	sess, ok := s.Current(ctx)
	if !ok {
		return Session{}, ErrNotAuthenticated
	}
	if len(roles) == 0 {
		return sess, nil
	}
	for _, r := range roles {
		if sess.Role == r {
			return sess, nil
		}
	}
	return Session{}, errors.Wrapf(ErrForbidden, "role %s", sess.Role)
}

// Clear removes the session. It is the explicit logout path.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Delete(ctx); err != nil {
		return err
	}
	s.current = nil
	s.loaded = true
	s.logger.Info("Session cleared.", "backend", s.backend.Name())
	return nil
}
