// file: internal/authclient/http_test.go
package authclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dkoosis/tableside/internal/autherr"
	"github.com/dkoosis/tableside/internal/config"
	"github.com/dkoosis/tableside/internal/metrics"
	"github.com/dkoosis/tableside/internal/pretoken"
	"github.com/dkoosis/tableside/internal/schema"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	Path   string
	Auth   string
	ReqID  string
	Body   map[string]any
	Method string
}

type fakeService struct {
	mu       sync.Mutex
	requests []recorded
	status   int
	reply    string
}

func (f *fakeService) handler(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	f.mu.Lock()
	f.requests = append(f.requests, recorded{
		Path:   r.URL.Path,
		Auth:   r.Header.Get("Authorization"),
		ReqID:  r.Header.Get("X-Request-ID"),
		Body:   body,
		Method: r.Method,
	})
	status, reply := f.status, f.reply
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(reply))
}

func (f *fakeService) set(status int, reply string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status, f.reply = status, reply
}

func (f *fakeService) last(t *testing.T) recorded {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, svc *fakeService, opts ...Option) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(svc.handler))
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig().AuthService
	cfg.BaseURL = srv.URL
	cfg.RequestsPerSecond = 100
	cfg.Burst = 100

	v := schema.NewValidator(config.SchemaConfig{}, nil)
	require.NoError(t, v.Initialize(context.Background()))

	c, err := NewHTTPClient(cfg, append([]Option{WithValidator(v)}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestDispatch_LoginSendsCredentialsWithoutToken(t *testing.T) {
	svc := &fakeService{reply: `{"preAuthToken":"pre-1","email":"a@example.com"}`}
	c := newTestClient(t, svc)

	d, err := c.DispatchFirstFactor(context.Background(), DispatchRequest{
		Entry: EntryAdminLogin, Identifier: "alice", Secret: "pw",
	})
	require.NoError(t, err)
	assert.Equal(t, "pre-1", d.PreAuthToken.Reveal())
	assert.Equal(t, "a@example.com", d.Email)

	req := svc.last(t)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, config.DefaultEndpoints()[config.EntryAdminLogin].Dispatch, req.Path)
	assert.Empty(t, req.Auth, "Dispatch never carries a pre-auth token.")
	assert.Equal(t, "alice", req.Body["identifier"])
	_, err = uuid.Parse(req.ReqID)
	assert.NoError(t, err)
}

func TestResendAndVerify_CarryBearerToken(t *testing.T) {
	svc := &fakeService{reply: `{}`}
	c := newTestClient(t, svc)
	tok := pretoken.NewToken("pre-xyz")

	_, err := c.ResendFirstFactor(context.Background(), ResendRequest{Entry: EntryCustomerLogin, Email: "c@example.com"}, tok)
	require.NoError(t, err)
	req := svc.last(t)
	assert.Equal(t, "Bearer pre-xyz", req.Auth)
	assert.Equal(t, map[string]any{"email": "c@example.com"}, req.Body)

	svc.set(0, `{"token":"sess","role":"CUSTOMER","expiresAt":"2030-01-01T00:00:00Z"}`)
	v, err := c.VerifySecondFactor(context.Background(), VerifyRequest{Entry: EntryCustomerLogin, Email: "c@example.com", Code: "123456"}, tok)
	require.NoError(t, err)
	assert.Equal(t, "sess", v.SessionToken)
	assert.Equal(t, "CUSTOMER", v.Role)
	assert.Equal(t, 2030, v.ExpiresAt.Year())
	assert.Equal(t, "Bearer pre-xyz", svc.last(t).Auth)
}

func TestRegistration_ReplaysFullPayload(t *testing.T) {
	svc := &fakeService{reply: `{}`}
	c := newTestClient(t, svc)
	reg := &Registration{Name: "Bob", Email: "bob@example.com", Password: "pw"}

	_, err := c.DispatchFirstFactor(context.Background(), DispatchRequest{Entry: EntryRegistration, Registration: reg})
	require.NoError(t, err)
	_, err = c.ResendFirstFactor(context.Background(), ResendRequest{Entry: EntryRegistration, Email: reg.Email, Registration: reg}, pretoken.Token{})
	require.NoError(t, err)
	resend := svc.last(t)
	assert.Equal(t, "Bob", resend.Body["name"])
	assert.Equal(t, "pw", resend.Body["password"])
	assert.Empty(t, resend.Auth)

	svc.set(0, `{"token":"sess","role":"CUSTOMER"}`)
	_, err = c.VerifySecondFactor(context.Background(), VerifyRequest{Entry: EntryRegistration, Email: reg.Email, Code: "123456", Registration: reg}, pretoken.Token{})
	require.NoError(t, err)
	verify := svc.last(t)
	assert.Equal(t, "Bob", verify.Body["name"])
	assert.Equal(t, "123456", verify.Body["code"])
}

func TestVerify_CustomerResetSendsNewPassword(t *testing.T) {
	svc := &fakeService{reply: `{"resetDone":true}`}
	c := newTestClient(t, svc)

	v, err := c.VerifySecondFactor(context.Background(), VerifyRequest{
		Entry: EntryCustomerReset, Email: "c@example.com", Code: "111111", NewPassword: "new-pw",
	}, pretoken.Token{})
	require.NoError(t, err)
	assert.True(t, v.ResetDone)
	assert.Equal(t, "new-pw", svc.last(t).Body["newPassword"])
	assert.Equal(t, config.DefaultEndpoints()[config.EntryCustomerReset].Verify, svc.last(t).Path)
}

func TestErrors_AreClassified(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reply  string
		call   func(c *HTTPClient) error
		want   autherr.Kind
	}{
		{"wrong password", 401, `{"message":"Invalid username or password"}`, func(c *HTTPClient) error {
			_, err := c.DispatchFirstFactor(context.Background(), DispatchRequest{Entry: EntryAdminLogin, Identifier: "alice", Secret: "wrong"})
			return err
		}, autherr.KindInvalidCredentials},
		{"deactivated", 403, `{"error":"Account deactivated"}`, func(c *HTTPClient) error {
			_, err := c.DispatchFirstFactor(context.Background(), DispatchRequest{Entry: EntryCustomerLogin, Identifier: "x", Secret: "y"})
			return err
		}, autherr.KindAccountDeactivated},
		{"expired code", 400, `{"message":"OTP expired"}`, func(c *HTTPClient) error {
			_, err := c.VerifySecondFactor(context.Background(), VerifyRequest{Entry: EntryAdminLogin, Email: "a", Code: "000000"}, pretoken.NewToken("t"))
			return err
		}, autherr.KindCodeExpiredOrInvalid},
		{"plain text error", 429, `slow down`, func(c *HTTPClient) error {
			_, err := c.ResendFirstFactor(context.Background(), ResendRequest{Entry: EntryAdminLogin, Email: "a"}, pretoken.NewToken("t"))
			return err
		}, autherr.KindRateLimited},
		{"schema violation", 200, `{"role":"ADMIN"}`, func(c *HTTPClient) error {
			_, err := c.VerifySecondFactor(context.Background(), VerifyRequest{Entry: EntryAdminLogin, Email: "a", Code: "1"}, pretoken.NewToken("t"))
			return err
		}, autherr.KindUnknown},
		{"unknown entry", 200, `{}`, func(c *HTTPClient) error {
			_, err := c.DispatchFirstFactor(context.Background(), DispatchRequest{Entry: "kiosk"})
			return err
		}, autherr.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{status: tt.status, reply: tt.reply}
			c := newTestClient(t, svc)
			err := tt.call(c)
			require.Error(t, err)
			assert.Equal(t, tt.want, autherr.KindOf(err))
		})
	}
}

func TestTransportFailures(t *testing.T) {
	cfg := config.DefaultConfig().AuthService
	cfg.BaseURL = "http://127.0.0.1:1"
	c, err := NewHTTPClient(cfg)
	require.NoError(t, err)
	_, err = c.DispatchFirstFactor(context.Background(), DispatchRequest{Entry: EntryAdminLogin, Identifier: "a", Secret: "b"})
	assert.Equal(t, autherr.KindNetworkUnreachable, autherr.KindOf(err))

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	cfg.BaseURL = slow.URL
	c, err = NewHTTPClient(cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.DispatchFirstFactor(ctx, DispatchRequest{Entry: EntryAdminLogin, Identifier: "a", Secret: "b"})
	assert.Equal(t, autherr.KindTimeout, autherr.KindOf(err))
}

func TestClaimAndOAuth(t *testing.T) {
	svc := &fakeService{status: http.StatusNoContent}
	m := metrics.NewCollector(4)
	c := newTestClient(t, svc, WithMetrics(m))

	require.NoError(t, c.ClaimReward(context.Background(), ClaimRequest{ClaimToken: "claim-1", Email: "b@example.com"}))
	assert.Equal(t, "claim-1", svc.last(t).Body["claimToken"])

	svc.set(0, `{"token":"sess","role":"customer"}`)
	v, err := c.OAuthExchange(context.Background(), OAuthRequest{Provider: "google", Credential: "id-token"})
	require.NoError(t, err)
	assert.Equal(t, "sess", v.SessionToken)
	assert.Empty(t, svc.last(t).Auth)

	snap := m.Snapshot()
	assert.Equal(t, 1, snap.Operations["claim"].Calls)
	assert.Equal(t, 1, snap.Operations["oauth"].Calls)
}

func TestThrottle(t *testing.T) {
	svc := &fakeService{reply: `{}`}
	rl := NewRateLimiter(0.01, 1)
	c := newTestClient(t, svc, WithRateLimiter(rl))

	_, err := c.ResendFirstFactor(context.Background(), ResendRequest{Entry: EntryAdminLogin, Email: "a"}, pretoken.NewToken("t"))
	require.NoError(t, err)
	_, err = c.ResendFirstFactor(context.Background(), ResendRequest{Entry: EntryAdminLogin, Email: "a"}, pretoken.NewToken("t"))
	require.ErrorIs(t, err, ErrThrottled)
	kind := autherr.KindOf(err)
	assert.Equal(t, autherr.KindTimeout, kind, "A local throttle is not the server rate-limiting the account.")
	assert.False(t, autherr.IsTerminal(kind))
	assert.True(t, autherr.IsResubmittable(kind))

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Len(t, svc.requests, 1, "A throttled request never reaches the server.")
}
