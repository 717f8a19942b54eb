// file: internal/authflow/helpers_test.go
package authflow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkoosis/tableside/internal/authclient"
	"github.com/dkoosis/tableside/internal/fsm"
	"github.com/dkoosis/tableside/internal/metrics"
	"github.com/dkoosis/tableside/internal/pretoken"
	"github.com/dkoosis/tableside/internal/session"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// idleTicker never ticks, so observers only see state changes.
func idleTicker(time.Duration) (<-chan time.Time, func()) {
	return make(chan time.Time), func() {}
}

// fakeClient records every call. Unset handlers succeed with canned replies.
type fakeClient struct {
	mu sync.Mutex

	dispatchFn func(ctx context.Context, req authclient.DispatchRequest) (authclient.Dispatch, error)
	resendFn   func(ctx context.Context, req authclient.ResendRequest, tok pretoken.Token) (authclient.Dispatch, error)
	verifyFn   func(ctx context.Context, req authclient.VerifyRequest, tok pretoken.Token) (authclient.Verification, error)
	oauthFn    func(ctx context.Context, req authclient.OAuthRequest) (authclient.Verification, error)
	claimFn    func(ctx context.Context, req authclient.ClaimRequest) error

	dispatches   []authclient.DispatchRequest
	resends      []authclient.ResendRequest
	resendTokens []pretoken.Token
	verifies     []authclient.VerifyRequest
	verifyTokens []pretoken.Token
	oauths       []authclient.OAuthRequest
	claims       []authclient.ClaimRequest
}

var _ authclient.Client = (*fakeClient)(nil)

func (f *fakeClient) DispatchFirstFactor(ctx context.Context, req authclient.DispatchRequest) (authclient.Dispatch, error) {
	f.mu.Lock()
	f.dispatches = append(f.dispatches, req)
	n := len(f.dispatches)
	fn := f.dispatchFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return authclient.Dispatch{PreAuthToken: pretoken.NewToken(fmt.Sprintf("pre-%d", n)), Email: "alice@example.com"}, nil
}

func (f *fakeClient) ResendFirstFactor(ctx context.Context, req authclient.ResendRequest, tok pretoken.Token) (authclient.Dispatch, error) {
	f.mu.Lock()
	f.resends = append(f.resends, req)
	f.resendTokens = append(f.resendTokens, tok)
	fn := f.resendFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, req, tok)
	}
	return authclient.Dispatch{}, nil
}

func (f *fakeClient) VerifySecondFactor(ctx context.Context, req authclient.VerifyRequest, tok pretoken.Token) (authclient.Verification, error) {
	f.mu.Lock()
	f.verifies = append(f.verifies, req)
	f.verifyTokens = append(f.verifyTokens, tok)
	fn := f.verifyFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, req, tok)
	}
	return authclient.Verification{SessionToken: "sess-admin", Role: "ADMIN"}, nil
}

func (f *fakeClient) OAuthExchange(ctx context.Context, req authclient.OAuthRequest) (authclient.Verification, error) {
	f.mu.Lock()
	f.oauths = append(f.oauths, req)
	fn := f.oauthFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return authclient.Verification{SessionToken: "sess-google", Role: "CUSTOMER"}, nil
}

func (f *fakeClient) ClaimReward(ctx context.Context, req authclient.ClaimRequest) error {
	f.mu.Lock()
	f.claims = append(f.claims, req)
	fn := f.claimFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return nil
}

func (f *fakeClient) counts() (dispatch, resend, verify, oauth, claim int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dispatches), len(f.resends), len(f.verifies), len(f.oauths), len(f.claims)
}

func (f *fakeClient) lastVerify(t *testing.T) (authclient.VerifyRequest, pretoken.Token) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.verifies)
	return f.verifies[len(f.verifies)-1], f.verifyTokens[len(f.verifyTokens)-1]
}

type harness struct {
	flow    *Controller
	client  *fakeClient
	clock   *fakeClock
	store   *session.Store
	metrics *metrics.Collector
}

func newHarness(t *testing.T, variant Variant, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		client:  &fakeClient{},
		clock:   newFakeClock(),
		metrics: metrics.NewCollector(8),
	}
	h.store = session.NewStore(session.NewMemoryBackend(), session.WithClock(h.clock.Now))

	var seq int
	var seqMu sync.Mutex
	base := []Option{
		WithClock(h.clock.Now),
		WithTicker(idleTicker, time.Second),
		WithMetrics(h.metrics),
		WithIDGenerator(func() string {
			seqMu.Lock()
			defer seqMu.Unlock()
			seq++
			return fmt.Sprintf("pv-%d", seq)
		}),
	}
	flow, err := New(variant, h.client, h.store, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(flow.Abandon)
	h.flow = flow
	return h
}

// recordStates collects every state an observer sees, without repeats.
func recordStates(c *Controller) func() []fsm.State {
	var mu sync.Mutex
	var seen []fsm.State
	c.OnChange(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if len(seen) == 0 || seen[len(seen)-1] != s.State {
			seen = append(seen, s.State)
		}
	})
	return func() []fsm.State {
		mu.Lock()
		defer mu.Unlock()
		return append([]fsm.State(nil), seen...)
	}
}

var adminLogin = FirstFactor{Identifier: "alice", Secret: "correct-horse"}
