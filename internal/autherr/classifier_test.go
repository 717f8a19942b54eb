// file: internal/autherr/classifier_test.go
package autherr

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifier_KindFor(t *testing.T) {
	c := NewClassifier()
	tests := []struct {
		name    string
		op      Op
		status  int
		message string
		want    Kind
	}{
		{"wrong password", OpDispatch, 401, "Invalid username or password", KindInvalidCredentials},
		{"unknown account", OpDispatch, 404, "User not found", KindInvalidCredentials},
		{"deactivated account", OpDispatch, 403, "Your account has been deactivated", KindAccountDeactivated},
		{"locked status", OpDispatch, 423, "", KindAccountDeactivated},
		{"duplicate email", OpDispatch, 400, "Email already exists", KindDuplicateIdentifier},
		{"conflict status", OpDispatch, 409, "", KindDuplicateIdentifier},
		{"too many requests", OpResend, 429, "", KindRateLimited},
		{"rate limit message", OpResend, 400, "Too many requests, try again later", KindRateLimited},
		{"expired code", OpVerify, 400, "Verification code expired", KindCodeExpiredOrInvalid},
		{"bad code on verify", OpVerify, 401, "Unauthorized", KindCodeExpiredOrInvalid},
		{"gone", OpVerify, 410, "", KindCodeExpiredOrInvalid},
		{"gateway timeout", OpDispatch, 504, "", KindTimeout},
		{"service unavailable", OpOAuth, 503, "", KindNetworkUnreachable},
		{"server error", OpDispatch, 500, "boom", KindUnknown},
		{"teapot", OpClaim, 418, "", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.KindFor(tt.op, tt.status, tt.message))
		})
	}
}

func TestClassifier_FromResponse_CarriesDetails(t *testing.T) {
	err := Default.FromResponse(OpVerify, 400, "code expired")
	require.NotNil(t, err)
	assert.Equal(t, KindCodeExpiredOrInvalid, err.Kind)
	assert.Equal(t, OpVerify, err.Op)
	assert.Equal(t, 400, err.Status)
	assert.Contains(t, err.Error(), "CODE_EXPIRED_OR_INVALID")
	assert.True(t, errors.Is(err, CodeExpiredOrInvalid))
	assert.False(t, errors.Is(err, Timeout))
}

func TestClassifier_FromTransport(t *testing.T) {
	c := NewClassifier()

	deadline := fmt.Errorf("request: %w", context.DeadlineExceeded)
	assert.Equal(t, KindTimeout, c.FromTransport(OpDispatch, deadline).Kind)

	refused := &url.Error{Op: "Post", URL: "http://x", Err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}}
	assert.Equal(t, KindNetworkUnreachable, c.FromTransport(OpDispatch, refused).Kind)

	dns := &url.Error{Op: "Post", URL: "http://x", Err: &net.DNSError{Err: "no such host", Name: "x"}}
	assert.Equal(t, KindNetworkUnreachable, c.FromTransport(OpDispatch, dns).Kind)

	assert.Equal(t, KindUnknown, c.FromTransport(OpDispatch, errors.New("weird")).Kind)
	assert.Nil(t, c.FromTransport(OpDispatch, nil))
}

func TestClassifier_CustomRules(t *testing.T) {
	c := NewClassifier(Rule{Statuses: []int{500}, Contains: []string{"maintenance"}, Kind: KindNetworkUnreachable})
	assert.Equal(t, KindNetworkUnreachable, c.KindFor(OpDispatch, 500, "Down for MAINTENANCE"))
	assert.Equal(t, KindUnknown, c.KindFor(OpDispatch, 401, ""))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	wrapped := errors.Wrap(New(KindRateLimited, OpResend, "slow down"), "resend")
	assert.Equal(t, KindRateLimited, KindOf(wrapped))
}

func TestAs_ClassifiesUnknownShapes(t *testing.T) {
	ae := As(errors.New("plain"), OpClaim)
	require.NotNil(t, ae)
	assert.Equal(t, KindUnknown, ae.Kind)
	assert.Equal(t, OpClaim, ae.Op)
	assert.Nil(t, As(nil, OpClaim))
}

func TestRecoveryPolicy(t *testing.T) {
	for _, k := range Kinds {
		groups := 0
		if IsTerminal(k) {
			groups++
		}
		if IsLocalRecoverable(k) {
			groups++
		}
		if IsResubmittable(k) {
			groups++
		}
		assert.LessOrEqual(t, groups, 1, "kind %s belongs to more than one recovery group", k)
	}
	assert.True(t, IsTerminal(KindAccountDeactivated))
	assert.True(t, IsLocalRecoverable(KindDuplicateIdentifier))
	assert.True(t, IsResubmittable(KindTimeout))
}
