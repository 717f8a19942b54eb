// file: internal/session/keyring_diagnostics.go
package session

import (
	"runtime"

	"github.com/zalando/go-keyring"
)

const probeUser = "DiagnosticProbe"

// KeyringDiagnosis is the result of a set/get/delete round trip against the
// keyring, run under a probe account so a stored session is never touched.
type KeyringDiagnosis struct {
	Service    string
	User       string
	Available  bool
	SetOK      bool
	SetError   error
	GetOK      bool
	GetError   error
	ValueMatch bool
	DeleteOK   bool
	DeleteErr  error
}

// Healthy reports whether every probe step succeeded.
func (d KeyringDiagnosis) Healthy() bool {
	return d.Available && d.SetOK && d.GetOK && d.ValueMatch && d.DeleteOK
}

// FirstError returns the first failed step's error, if any.
func (d KeyringDiagnosis) FirstError() error {
	for _, err := range []error{d.SetError, d.GetError, d.DeleteErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

// Diagnose probes the keyring.
func (k *KeyringBackend) Diagnose() KeyringDiagnosis {
	d := KeyringDiagnosis{Service: k.service, User: keyringUser, Available: k.IsAvailable()}
	const probe = "tableside-keyring-probe"

	if err := keyring.Set(k.service, probeUser, probe); err != nil {
		d.SetError = err
		k.logger.Warn("Keyring probe set failed.", "error", err)
		return d
	}
	d.SetOK = true

	got, err := keyring.Get(k.service, probeUser)
	if err != nil {
		d.GetError = err
		k.logger.Warn("Keyring probe get failed.", "error", err)
	} else {
		d.GetOK = true
		d.ValueMatch = got == probe
	}

	if err := keyring.Delete(k.service, probeUser); err != nil {
		d.DeleteErr = err
		k.logger.Warn("Keyring probe delete failed.", "error", err)
	} else {
		d.DeleteOK = true
	}
	return d
}

// KeyringAdvice returns platform-specific troubleshooting steps.
func KeyringAdvice(service string) string {
	switch runtime.GOOS {
	case "darwin":
		return "1. Open Keychain Access and make sure the 'login' keychain is unlocked.\n" +
			"2. Delete any stale '" + service + "' entries and retry.\n" +
			"3. Approve the permission dialog when tableside first writes to the keychain."
	case "linux":
		return "1. Make sure a Secret Service provider (gnome-keyring or KWallet) is running.\n" +
			"2. Check that DBUS_SESSION_BUS_ADDRESS is set in this shell.\n" +
			"3. Otherwise set session.backend to \"file\" in the configuration."
	case "windows":
		return "1. Open Credential Manager and remove stale '" + service + "' entries.\n" +
			"2. Otherwise set session.backend to \"file\" in the configuration."
	default:
		return "No keyring support is known for this platform; set session.backend to \"file\"."
	}
}
