// Package session persists the credential established at the end of an
// authentication flow. It is the only state that outlives a flow: empty at
// process start, written once per successful flow, cleared on explicit logout.
// file: internal/session/session.go
package session

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Role is the authorization role carried by a session.
type Role string

// Known roles.
const (
	RoleAdmin    Role = "ADMIN"
	RoleStaff    Role = "STAFF"
	RoleCustomer Role = "CUSTOMER"
)

// Logical areas route guards redirect to.
const (
	AreaAdmin = "admin"
	AreaStaff = "staff"
	AreaHome  = "home"
	AreaLogin = "login"
)

// Sentinel errors.
var (
	ErrNotAuthenticated = errors.New("no session established")
	ErrForbidden        = errors.New("session role is not permitted")
	ErrInvalidSession   = errors.New("invalid session")
	ErrRoleMismatch     = errors.New("session token role does not match the verified role")
)

// ParseRole normalizes a role string from the auth service. Case is ignored and
// a "ROLE_" prefix is accepted. Unknown values return ok=false.
func ParseRole(s string) (Role, bool) {
	r := strings.ToUpper(strings.TrimSpace(s))
	r = strings.TrimPrefix(r, "ROLE_")
	switch Role(r) {
	case RoleAdmin, RoleStaff, RoleCustomer:
		return Role(r), true
	default:
		return "", false
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleCustomer:
		return true
	}
	return false
}

// HomeFor returns the area a route guard sends a role to.
func HomeFor(r Role) string {
	switch r {
	case RoleAdmin:
		return AreaAdmin
	case RoleStaff:
		return AreaStaff
	case RoleCustomer:
		return AreaHome
	default:
		return AreaLogin
	}
}

// Session is the established credential.
type Session struct {
	Token         string    `json:"sessionToken"`
	Role          Role      `json:"role"`
	EstablishedAt time.Time `json:"establishedAt"`
	// ExpiresAt is zero when the auth service did not say.
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Validate checks that s can be persisted.
func (s Session) Validate() error {
	if s.Token == "" {
		return errors.Wrap(ErrInvalidSession, "empty session token")
	}
	if !s.Role.Valid() {
		return errors.Wrapf(ErrInvalidSession, "unknown role %q", s.Role)
	}
	return nil
}

// Expired reports whether s has an expiry that is not after now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// String omits the token.
func (s Session) String() string {
	return "session{role=" + string(s.Role) + ", established=" + s.EstablishedAt.Format(time.RFC3339) + "}"
}
