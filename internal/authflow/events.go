// file: internal/authflow/events.go
package authflow

import "github.com/dkoosis/tableside/internal/fsm"

// Flow events.
const (
	EventCodeSent     fsm.Event = "code_sent"     // Dispatch accepted.
	EventVerify       fsm.Event = "verify"        // Code submitted.
	EventVerifyFailed fsm.Event = "verify_failed" // Recoverable verification failure.
	EventOAuth        fsm.Event = "oauth"         // OAuth credential submitted.
	EventClaim        fsm.Event = "claim"         // Verified with a claim context attached.
	EventEstablish    fsm.Event = "establish"     // Session written.
	EventComplete     fsm.Event = "complete"      // Reset confirmed.
	EventFail         fsm.Event = "fail"          // Terminal failure for this attempt.
	EventAbandon      fsm.Event = "abandon"       // Torn down by the caller or a restart.
)
