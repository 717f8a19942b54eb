// file: internal/authflow/types.go
package authflow

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/tableside/internal/autherr"
	"github.com/dkoosis/tableside/internal/fsm"
	"github.com/dkoosis/tableside/internal/session"
)

// Guard errors. They are returned before any network call is made and are not
// auth service failures, so autherr.KindOf reports them as UNKNOWN.
var (
	ErrInvalidState    = errors.New("operation not allowed in the current flow state")
	ErrCooldownActive  = errors.New("resend cooldown still running")
	ErrInFlight        = errors.New("operation already in flight")
	ErrStaleResponse   = errors.New("response arrived for an abandoned verification")
	ErrNoPending       = errors.New("no pending verification")
	ErrPendingMismatch = errors.New("code is for a verification that is no longer current")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnsupported     = errors.New("operation not offered by this flow variant")
)

// ClaimContext links a reward to the account being registered. It is carried
// unmodified to the post-verification redirect and consumed once.
type ClaimContext struct {
	ClaimToken string
	ReturnURL  string
}

// FirstFactor is the user input that starts a flow. Which fields are required
// depends on the variant:
//
//	LOGIN_2FA                      Identifier, Secret
//	REGISTRATION                   Name, Email (or Identifier), Secret, optional Claim
//	PASSWORD_RESET_*               Identifier (the account email)
type FirstFactor struct {
	Identifier string
	Secret     string
	Name       string
	Email      string
	Claim      *ClaimContext
}

// CodeSubmission is the second factor. NewPassword is required by the
// self-chosen reset variant and ignored otherwise. A non-empty PendingID must
// name the current pending verification.
type CodeSubmission struct {
	Code        string
	NewPassword string
	PendingID   string
}

// OAuthCredential is a third-party identity assertion.
type OAuthCredential struct {
	Provider   string
	Credential string
}

// PendingVerification exists between first-factor success and second-factor
// resolution. The pre-auth token that belongs to it is kept by the flow and is
// never exposed.
type PendingVerification struct {
	ID                string
	Email             string
	IssuedAt          time.Time
	CooldownSeconds   int
	CooldownExpiresAt time.Time
}

// Outcome is the result of a successful second factor.
type Outcome struct {
	State fsm.State
	// Session is nil for password reset variants.
	Session            *session.Session
	ResetDone          bool
	MustChangePassword bool
	Claim              *ClaimContext
	ClaimAcknowledged  bool
	// Redirect is the claim return URL when one was given, otherwise the area
	// for the session role, or the login area after a reset.
	Redirect string
}

// Snapshot is what an observer needs to re-render.
type Snapshot struct {
	Variant           Variant
	State             fsm.State
	Pending           *PendingVerification
	CooldownRemaining int
	LastError         error
	LastErrorKind     autherr.Kind
}

func invalidInput(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidInput, format, args...)
}

// validate checks the first factor for variant v and returns it normalized.
func (ff FirstFactor) validate(v Variant) (FirstFactor, error) {
	ff.Identifier = strings.TrimSpace(ff.Identifier)
	ff.Email = strings.TrimSpace(ff.Email)
	ff.Name = strings.TrimSpace(ff.Name)

	if ff.Claim != nil {
		if v != VariantRegistration {
			return ff, invalidInput("claim context is only accepted during registration")
		}
		if strings.TrimSpace(ff.Claim.ClaimToken) == "" {
			return ff, invalidInput("claim token is empty")
		}
	}

	switch v {
	case VariantLogin2FA:
		if ff.Identifier == "" {
			return ff, invalidInput("identifier is required")
		}
		if ff.Secret == "" {
			return ff, invalidInput("password is required")
		}
	case VariantRegistration:
		if ff.Email == "" {
			ff.Email = ff.Identifier
		}
		if ff.Name == "" {
			return ff, invalidInput("name is required")
		}
		if !looksLikeEmail(ff.Email) {
			return ff, invalidInput("a valid email is required")
		}
		if ff.Secret == "" {
			return ff, invalidInput("password is required")
		}
	case VariantResetSelfChosen, VariantResetServerDefault:
		if !looksLikeEmail(ff.Identifier) {
			return ff, invalidInput("a valid email is required")
		}
	default:
		return ff, errors.Wrapf(ErrUnsupported, "%s has no first factor", v)
	}
	return ff, nil
}

func looksLikeEmail(s string) bool {
	at := strings.LastIndex(s, "@")
	return at > 0 && at < len(s)-1
}

// validate checks the code for variant v. codeLen > 0 requires exactly that
// many digits.
func (cs CodeSubmission) validate(v Variant, codeLen int) (CodeSubmission, error) {
	cs.Code = strings.TrimSpace(cs.Code)
	if cs.Code == "" {
		return cs, invalidInput("code is required")
	}
	if codeLen > 0 {
		if len(cs.Code) != codeLen {
			return cs, invalidInput("code must be %d digits", codeLen)
		}
		for _, r := range cs.Code {
			if r < '0' || r > '9' {
				return cs, invalidInput("code must be %d digits", codeLen)
			}
		}
	}
	if v == VariantResetSelfChosen && cs.NewPassword == "" {
		return cs, invalidInput("new password is required")
	}
	return cs, nil
}
