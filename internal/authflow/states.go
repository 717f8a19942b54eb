// Package authflow sequences the credential and email-code authentication flow
// for every entry point of the front end: administrator and customer login,
// customer registration, and both password recovery flows.
// file: internal/authflow/states.go
package authflow

import "github.com/dkoosis/tableside/internal/fsm"

// Flow states.
const (
	StateIdle        fsm.State = "IDLE"        // No pending verification.
	StateCodeSent    fsm.State = "CODE_SENT"   // First factor accepted, waiting for the emailed code.
	StateVerifying   fsm.State = "VERIFYING"   // Code (or OAuth credential) submitted, awaiting the auth service.
	StateClaiming    fsm.State = "CLAIMING"    // Session written, best-effort reward claim running.
	StateEstablished fsm.State = "ESTABLISHED" // Session written.
	StateCompleted   fsm.State = "COMPLETED"   // Password reset confirmed. No session.
)

// IsTerminal reports states a flow only leaves through Abandon.
func IsTerminal(s fsm.State) bool {
	return s == StateEstablished || s == StateCompleted
}
