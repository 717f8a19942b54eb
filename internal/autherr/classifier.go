// file: internal/autherr/classifier.go
package autherr

import (
	"context"
	"net"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
)

// Rule maps a response shape to a kind. Empty fields match anything.
// Contains is matched case-insensitively against the server message; any one
// substring is enough.
type Rule struct {
	Statuses []int
	Ops      []Op
	Contains []string
	Kind     Kind
}

func (r Rule) matches(op Op, status int, message string) bool {
	if len(r.Statuses) > 0 && !containsInt(r.Statuses, status) {
		return false
	}
	if len(r.Ops) > 0 && !containsOp(r.Ops, op) {
		return false
	}
	if len(r.Contains) == 0 {
		return true
	}
	lower := strings.ToLower(message)
	for _, s := range r.Contains {
		if strings.Contains(lower, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// DefaultRules is the built-in table. Order matters: the first match wins, so
// message-specific rules precede the status-only fallbacks for the same status.
func DefaultRules() []Rule {
	return []Rule{
		{Contains: []string{"deactivated", "disabled", "inactive", "suspended", "locked"}, Statuses: []int{400, 401, 403, 423}, Kind: KindAccountDeactivated},
		{Contains: []string{"already exists", "already registered", "already in use", "duplicate", "taken"}, Statuses: []int{400, 409, 422}, Kind: KindDuplicateIdentifier},
		{Contains: []string{"too many", "rate limit", "try again later", "cooldown"}, Statuses: []int{400, 403, 429}, Kind: KindRateLimited},
		{Contains: []string{"expired", "invalid code", "incorrect code", "wrong code", "otp", "verification code"}, Statuses: []int{400, 401, 403, 404, 410, 422}, Kind: KindCodeExpiredOrInvalid},
		{Statuses: []int{429}, Kind: KindRateLimited},
		{Statuses: []int{409}, Kind: KindDuplicateIdentifier},
		{Statuses: []int{423}, Kind: KindAccountDeactivated},
		{Statuses: []int{410}, Kind: KindCodeExpiredOrInvalid},
		{Statuses: []int{400, 401, 403, 404, 422}, Ops: []Op{OpVerify, OpResend}, Kind: KindCodeExpiredOrInvalid},
		{Statuses: []int{400, 401, 403, 404, 422}, Ops: []Op{OpDispatch, OpOAuth}, Kind: KindInvalidCredentials},
		{Statuses: []int{408, 504}, Kind: KindTimeout},
		{Statuses: []int{502, 503}, Kind: KindNetworkUnreachable},
	}
}

// Classifier turns raw transport and server signals into classified errors.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a classifier with the given rules, or DefaultRules when none are given.
func NewClassifier(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// Default is the classifier used when callers do not provide one.
var Default = NewClassifier()

// KindFor returns the kind for an HTTP status and server message.
func (c *Classifier) KindFor(op Op, status int, message string) Kind {
	for _, r := range c.rules {
		if r.matches(op, status, message) {
			return r.Kind
		}
	}
	return KindUnknown
}

// FromResponse classifies a non-success HTTP response.
func (c *Classifier) FromResponse(op Op, status int, message string) *Error {
	return &Error{
		Kind:    c.KindFor(op, status, message),
		Op:      op,
		Status:  status,
		Message: message,
		cause:   errors.Newf("auth service returned status %d", status),
	}
}

// FromTransport classifies a failure that happened before a response was read.
func (c *Classifier) FromTransport(op Op, err error) *Error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return already
	}
	return Wrap(err, transportKind(err), op)
}

func transportKind(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) {
		return KindNetworkUnreachable
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindNetworkUnreachable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNetworkUnreachable
	}
	return KindUnknown
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsOp(list []Op, v Op) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
