// Package authclient is the contract between the auth flow and the remote
// auth service, plus its JSON-over-HTTP implementation.
// file: internal/authclient/client.go
package authclient

import (
	"context"
	"time"

	"github.com/dkoosis/tableside/internal/pretoken"
)

// Entry identifies which front-end entry point a request comes from. It selects
// the endpoint set used for dispatch, resend and verify.
type Entry string

// Known entry points.
const (
	EntryAdminLogin    Entry = "admin_login"
	EntryCustomerLogin Entry = "customer_login"
	EntryRegistration  Entry = "registration"
	EntryCustomerReset Entry = "customer_reset"
	EntryAdminReset    Entry = "admin_reset"
)

// Registration is the full account payload. The client is the source of truth
// for it until verification succeeds, so it is replayed on every resend and on
// the final verification.
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// DispatchRequest asks the service to check the first factor and email a code.
// Secret is empty for password-reset entries.
type DispatchRequest struct {
	Entry        Entry
	Identifier   string
	Secret       string
	Registration *Registration
}

// ResendRequest asks for a fresh code for an existing pending verification.
// Credentials are not replayed for logins; the pre-auth token authorizes it.
type ResendRequest struct {
	Entry        Entry
	Email        string
	Registration *Registration
}

// Dispatch is the first-factor confirmation. PreAuthToken is zero when the
// service issued none (registration, password reset).
type Dispatch struct {
	PreAuthToken pretoken.Token
	Email        string
}

// VerifyRequest carries the second factor.
type VerifyRequest struct {
	Entry        Entry
	Email        string
	Code         string
	NewPassword  string
	Registration *Registration
}

// Verification is the result of a successful second factor or OAuth exchange.
// Role is the raw role string from the service.
type Verification struct {
	SessionToken       string
	Role               string
	ExpiresAt          time.Time
	ResetDone          bool
	MustChangePassword bool
}

// OAuthRequest exchanges a third-party identity credential for a session.
type OAuthRequest struct {
	Provider   string
	Credential string
}

// ClaimRequest links a pending reward to a newly verified account.
type ClaimRequest struct {
	ClaimToken string
	Email      string
}

// Client is the auth service as the flow sees it. Every error returned is an
// *autherr.Error. Implementations never retry.
type Client interface {
	DispatchFirstFactor(ctx context.Context, req DispatchRequest) (Dispatch, error)
	ResendFirstFactor(ctx context.Context, req ResendRequest, tok pretoken.Token) (Dispatch, error)
	VerifySecondFactor(ctx context.Context, req VerifyRequest, tok pretoken.Token) (Verification, error)
	OAuthExchange(ctx context.Context, req OAuthRequest) (Verification, error)
	ClaimReward(ctx context.Context, req ClaimRequest) error
}
