// Package autherr defines the closed set of authentication error kinds and the
// classifier that maps transport failures and auth service responses onto them.
// file: internal/autherr/errors.go
package autherr

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind is one of a closed set of failure categories surfaced to the UI.
type Kind string

// Error kinds.
const (
	KindInvalidCredentials   Kind = "INVALID_CREDENTIALS"
	KindAccountDeactivated   Kind = "ACCOUNT_DEACTIVATED"
	KindRateLimited          Kind = "RATE_LIMITED"
	KindCodeExpiredOrInvalid Kind = "CODE_EXPIRED_OR_INVALID"
	KindDuplicateIdentifier  Kind = "DUPLICATE_IDENTIFIER"
	KindNetworkUnreachable   Kind = "NETWORK_UNREACHABLE"
	KindTimeout              Kind = "TIMEOUT"
	KindUnknown              Kind = "UNKNOWN"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{
	KindInvalidCredentials,
	KindAccountDeactivated,
	KindRateLimited,
	KindCodeExpiredOrInvalid,
	KindDuplicateIdentifier,
	KindNetworkUnreachable,
	KindTimeout,
	KindUnknown,
}

// Op names the auth service operation a failure came from.
type Op string

// Operations of the auth service contract.
const (
	OpDispatch Op = "dispatch"
	OpResend   Op = "resend"
	OpVerify   Op = "verify"
	OpOAuth    Op = "oauth"
	OpClaim    Op = "claim"
)

// Error is a classified auth failure.
type Error struct {
	Kind    Kind
	Op      Op
	Status  int    // HTTP status, 0 for transport failures.
	Message string // Server supplied message, if any. Never contains secrets.
	cause   error
}

// New creates a classified error without an underlying cause.
func New(kind Kind, op Op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, cause: errors.New(message)}
}

// Wrap classifies cause as kind.
func Wrap(cause error, kind Kind, op Op) *Error {
	if cause == nil {
		cause = errors.Newf("%s failed", op)
	}
	return &Error{Kind: kind, Op: op, Message: cause.Error(), cause: errors.WithStack(cause)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("%s: %s (status %d): %s", e.Op, e.Kind, e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Kind, e.Status)
	case e.Message != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches another *Error of the same kind, so errors.Is(err, autherr.Timeout) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// Sentinels usable with errors.Is. They match any operation.
var (
	InvalidCredentials   = &Error{Kind: KindInvalidCredentials}
	AccountDeactivated   = &Error{Kind: KindAccountDeactivated}
	RateLimited          = &Error{Kind: KindRateLimited}
	CodeExpiredOrInvalid = &Error{Kind: KindCodeExpiredOrInvalid}
	DuplicateIdentifier  = &Error{Kind: KindDuplicateIdentifier}
	NetworkUnreachable   = &Error{Kind: KindNetworkUnreachable}
	Timeout              = &Error{Kind: KindTimeout}
	Unknown              = &Error{Kind: KindUnknown}
)

// KindOf returns the kind carried by err, or KindUnknown when err is not classified.
// A nil error has no kind and returns "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// As extracts the classified error, classifying unknown shapes as KindUnknown.
func As(err error, op Op) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Wrap(err, KindUnknown, op)
}

// IsTerminal reports kinds that end the current attempt: the flow returns to IDLE.
func IsTerminal(kind Kind) bool {
	return kind == KindRateLimited || kind == KindAccountDeactivated
}

// IsLocalRecoverable reports kinds the user can fix in place without leaving the current step.
func IsLocalRecoverable(kind Kind) bool {
	return kind == KindDuplicateIdentifier || kind == KindCodeExpiredOrInvalid
}

// IsResubmittable reports kinds recovered by manual resubmission. They are never retried automatically.
func IsResubmittable(kind Kind) bool {
	return kind == KindNetworkUnreachable || kind == KindTimeout
}
