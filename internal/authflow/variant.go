// file: internal/authflow/variant.go
package authflow

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/tableside/internal/authclient"
	"github.com/dkoosis/tableside/internal/config"
)

// Variant selects the payload shapes and timings of a flow.
type Variant string

// Flow variants.
const (
	VariantLogin2FA           Variant = "LOGIN_2FA"
	VariantRegistration       Variant = "REGISTRATION"
	VariantResetSelfChosen    Variant = "PASSWORD_RESET_SELF_CHOSEN"
	VariantResetServerDefault Variant = "PASSWORD_RESET_SERVER_DEFAULT"
	VariantOAuthShortcut      Variant = "OAUTH_SHORTCUT"
)

const (
	defaultLoginCooldown       = 60 * time.Second
	defaultCodeCooldown        = 30 * time.Second
	defaultClaimTimeout        = 5 * time.Second
	defaultRegistrationCodeLen = 6
)

// ErrUnknownVariant is returned for a variant or entry point the flow does not know.
var ErrUnknownVariant = errors.New("unknown flow variant")

// ParseVariant accepts the variant name in any case.
func ParseVariant(s string) (Variant, error) {
	v := Variant(strings.ToUpper(strings.TrimSpace(s)))
	if !v.Valid() {
		return "", errors.Wrapf(ErrUnknownVariant, "%q", s)
	}
	return v, nil
}

// Valid reports whether v is a known variant.
func (v Variant) Valid() bool {
	switch v {
	case VariantLogin2FA, VariantRegistration, VariantResetSelfChosen,
		VariantResetServerDefault, VariantOAuthShortcut:
		return true
	}
	return false
}

// VariantFor returns the variant an entry point runs.
func VariantFor(entry authclient.Entry) (Variant, error) {
	switch entry {
	case authclient.EntryAdminLogin, authclient.EntryCustomerLogin:
		return VariantLogin2FA, nil
	case authclient.EntryRegistration:
		return VariantRegistration, nil
	case authclient.EntryCustomerReset:
		return VariantResetSelfChosen, nil
	case authclient.EntryAdminReset:
		return VariantResetServerDefault, nil
	default:
		return "", errors.Wrapf(ErrUnknownVariant, "entry point %q", entry)
	}
}

func (v Variant) defaultEntry() authclient.Entry {
	switch v {
	case VariantLogin2FA:
		return authclient.EntryCustomerLogin
	case VariantRegistration:
		return authclient.EntryRegistration
	case VariantResetSelfChosen:
		return authclient.EntryCustomerReset
	case VariantResetServerDefault:
		return authclient.EntryAdminReset
	default:
		return ""
	}
}

// accepts reports whether entry may drive v. OAuth has no code endpoints.
func (v Variant) accepts(entry authclient.Entry) bool {
	if v == VariantOAuthShortcut {
		return entry == ""
	}
	got, err := VariantFor(entry)
	return err == nil && got == v
}

func (v Variant) isReset() bool {
	return v == VariantResetSelfChosen || v == VariantResetServerDefault
}

// supportsOAuth reports whether the OAuth side channel is offered. The admin
// pages have no social sign-in.
func (v Variant) supportsOAuth(entry authclient.Entry) bool {
	switch v {
	case VariantOAuthShortcut, VariantRegistration:
		return true
	case VariantLogin2FA:
		return entry == authclient.EntryCustomerLogin
	}
	return false
}

// cooldownFor resolves the resend cooldown from configuration, falling back to
// the built-in defaults.
func cooldownFor(v Variant, fc *config.FlowConfig) time.Duration {
	var d time.Duration
	switch v {
	case VariantLogin2FA:
		d = defaultLoginCooldown
		if fc != nil && fc.LoginCooldown > 0 {
			d = fc.LoginCooldown
		}
	case VariantRegistration:
		d = defaultCodeCooldown
		if fc != nil && fc.RegistrationCooldown > 0 {
			d = fc.RegistrationCooldown
		}
	case VariantResetSelfChosen, VariantResetServerDefault:
		d = defaultCodeCooldown
		if fc != nil && fc.ResetCooldown > 0 {
			d = fc.ResetCooldown
		}
	}
	return d
}
