// Package pretoken holds the short-lived pre-authentication token issued after
// a successful first factor. The token only authorizes the second-factor
// exchange for one pending verification.
// file: internal/pretoken/holder.go
package pretoken

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// Scope names an operation the token may be released for.
type Scope string

// The only scopes a pre-auth token is valid for.
const (
	ScopeResend Scope = "resend"
	ScopeVerify Scope = "verify"
)

// Sentinel errors.
var (
	ErrAbsent     = errors.New("no pre-auth token held")
	ErrOutOfScope = errors.New("pre-auth token is not valid for this operation")
	ErrMismatch   = errors.New("pre-auth token belongs to a different pending verification")
)

// Token is an opaque pre-auth token. Its value is only reachable through Reveal,
// and formatting it never prints the value.
type Token struct {
	value string
}

// NewToken wraps a raw token value.
func NewToken(value string) Token {
	return Token{value: value}
}

// IsZero reports whether the token is empty.
func (t Token) IsZero() bool { return t.value == "" }

// Reveal returns the raw value for placing on the wire.
func (t Token) Reveal() string { return t.value }

// String redacts the token.
func (t Token) String() string {
	if t.value == "" {
		return "<none>"
	}
	return "<redacted>"
}

// GoString redacts the token in %#v output.
func (t Token) GoString() string { return t.String() }

// Holder keeps at most one token, bound to the id of the pending verification
// that produced it.
type Holder struct {
	mu        sync.Mutex
	token     Token
	pendingID string
}

// NewHolder returns an empty holder.
func NewHolder() *Holder {
	return &Holder{}
}

// Set replaces any held token with tok for pendingID.
func (h *Holder) Set(pendingID string, tok Token) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = tok
	h.pendingID = pendingID
}

// Rebind moves the token held for fromID to toID, used when a resend renews
// the pending verification. A non-empty tok replaces the held value; with no
// token held, a non-empty tok is adopted. It fails if a token is held for a
// different pending verification.
func (h *Holder) Rebind(fromID, toID string, tok Token) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.token.IsZero() && h.pendingID != fromID {
		return ErrMismatch
	}
	if !tok.IsZero() {
		h.token = tok
	}
	if h.token.IsZero() {
		h.pendingID = ""
		return nil
	}
	h.pendingID = toID
	return nil
}

// For releases the token for scope and pendingID.
func (h *Holder) For(scope Scope, pendingID string) (Token, error) {
	if scope != ScopeResend && scope != ScopeVerify {
		return Token{}, errors.Wrapf(ErrOutOfScope, "scope %q", scope)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.token.IsZero() {
		return Token{}, ErrAbsent
	}
	if h.pendingID != pendingID {
		return Token{}, ErrMismatch
	}
	return h.token, nil
}

// Present reports whether any token is held.
func (h *Holder) Present() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.token.IsZero()
}

// Invalidate drops the held token. It is safe to call repeatedly.
func (h *Holder) Invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = Token{}
	h.pendingID = ""
}
