// file: internal/authflow/variant_test.go
package authflow

import (
	"testing"
	"time"

	"github.com/dkoosis/tableside/internal/authclient"
	"github.com/dkoosis/tableside/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariantFor(t *testing.T) {
	tests := map[authclient.Entry]Variant{
		authclient.EntryAdminLogin:    VariantLogin2FA,
		authclient.EntryCustomerLogin: VariantLogin2FA,
		authclient.EntryRegistration:  VariantRegistration,
		authclient.EntryCustomerReset: VariantResetSelfChosen,
		authclient.EntryAdminReset:    VariantResetServerDefault,
	}
	for entry, want := range tests {
		got, err := VariantFor(entry)
		require.NoError(t, err, entry)
		assert.Equal(t, want, got, entry)
		assert.True(t, want.accepts(entry))
	}
	_, err := VariantFor("kiosk")
	assert.ErrorIs(t, err, ErrUnknownVariant)
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant(" password_reset_self_chosen ")
	require.NoError(t, err)
	assert.Equal(t, VariantResetSelfChosen, v)

	_, err = ParseVariant("PASSWORD_RESET")
	assert.ErrorIs(t, err, ErrUnknownVariant)
}

func TestCooldownDefaults(t *testing.T) {
	assert.Equal(t, 60*time.Second, cooldownFor(VariantLogin2FA, nil))
	assert.Equal(t, 30*time.Second, cooldownFor(VariantRegistration, nil))
	assert.Equal(t, 30*time.Second, cooldownFor(VariantResetServerDefault, nil))
	assert.Zero(t, cooldownFor(VariantOAuthShortcut, nil))

	fc := config.DefaultConfig().Flow
	fc.ResetCooldown = 45 * time.Second
	assert.Equal(t, 45*time.Second, cooldownFor(VariantResetSelfChosen, &fc))
}

func TestOAuthOffering(t *testing.T) {
	assert.True(t, VariantOAuthShortcut.supportsOAuth(""))
	assert.True(t, VariantLogin2FA.supportsOAuth(authclient.EntryCustomerLogin))
	assert.False(t, VariantLogin2FA.supportsOAuth(authclient.EntryAdminLogin))
	assert.False(t, VariantResetServerDefault.supportsOAuth(authclient.EntryAdminReset))
}
