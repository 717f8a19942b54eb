// file: internal/authflow/controller.go
package authflow

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/tableside/internal/authclient"
	"github.com/dkoosis/tableside/internal/autherr"
	"github.com/dkoosis/tableside/internal/config"
	"github.com/dkoosis/tableside/internal/cooldown"
	"github.com/dkoosis/tableside/internal/fsm"
	"github.com/dkoosis/tableside/internal/logging"
	"github.com/dkoosis/tableside/internal/metrics"
	"github.com/dkoosis/tableside/internal/pretoken"
	"github.com/dkoosis/tableside/internal/session"
	"github.com/google/uuid"
)

// DefaultOAuthProvider is used when an OAuth credential names no provider.
const DefaultOAuthProvider = "google"

// SessionWriter persists the session at the end of a successful flow.
// *session.Store satisfies it.
type SessionWriter interface {
	Establish(ctx context.Context, sess session.Session) (session.Session, error)
}

type opKind string

const (
	opDispatch opKind = "dispatch"
	opResend   opKind = "resend"
	opVerify   opKind = "verify"
	opOAuth    opKind = "oauth"
)

// pendingState is the pending verification plus what the flow must replay.
type pendingState struct {
	PendingVerification
	registration *authclient.Registration
	claim        *ClaimContext
}

type settings struct {
	entry        authclient.Entry
	flow         *config.FlowConfig
	cooldown     time.Duration
	codeLen      int
	codeLenSet   bool
	claimTimeout time.Duration
	now          func() time.Time
	timerOpts    []cooldown.Option
	logger       logging.Logger
	metrics      *metrics.Collector
	newID        func() string
}

// Option configures a Controller.
type Option func(*settings)

// WithEntry selects the entry point, for example admin rather than customer login.
func WithEntry(e authclient.Entry) Option { return func(s *settings) { s.entry = e } }

// WithFlowConfig takes cooldowns, claim timeout and code length from configuration.
func WithFlowConfig(fc config.FlowConfig) Option { return func(s *settings) { s.flow = &fc } }

// WithCooldown overrides the resend cooldown.
func WithCooldown(d time.Duration) Option { return func(s *settings) { s.cooldown = d } }

// WithCodeLength requires codes of exactly n digits. Zero accepts any non-empty code.
func WithCodeLength(n int) Option {
	return func(s *settings) { s.codeLen, s.codeLenSet = n, true }
}

// WithClaimTimeout bounds the best-effort reward claim.
func WithClaimTimeout(d time.Duration) Option { return func(s *settings) { s.claimTimeout = d } }

// WithClock replaces the time source of the flow and its cooldown.
func WithClock(now func() time.Time) Option { return func(s *settings) { s.now = now } }

// WithTicker replaces the cooldown tick source that drives OnChange notifications.
func WithTicker(tk cooldown.Ticker, interval time.Duration) Option {
	return func(s *settings) { s.timerOpts = append(s.timerOpts, cooldown.WithTicker(tk, interval)) }
}

// WithLogger sets the flow logger.
func WithLogger(l logging.Logger) Option { return func(s *settings) { s.logger = l } }

// WithMetrics records flow transitions and claims on m.
func WithMetrics(m *metrics.Collector) Option { return func(s *settings) { s.metrics = m } }

// WithIDGenerator replaces the pending verification id source.
func WithIDGenerator(fn func() string) Option { return func(s *settings) { s.newID = fn } }

// Controller runs one authentication flow. Each instance owns its pending
// verification, pre-auth token and cooldown; the session store is the only
// state shared between controllers. Methods are safe for concurrent use and
// each operation kind allows a single call in flight.
type Controller struct {
	variant      Variant
	entry        authclient.Entry
	client       authclient.Client
	sessions     SessionWriter
	timer        *cooldown.Timer
	tokens       *pretoken.Holder
	machine      *fsm.Machine
	logger       logging.Logger
	metrics      *metrics.Collector
	now          func() time.Time
	newID        func() string
	cooldown     time.Duration
	codeLen      int
	claimTimeout time.Duration

	mu sync.Mutex
	// generation changes whenever the flow is torn down or restarted; a
	// response is applied only if the generation it started under is current.
	generation uint64
	pending    *pendingState
	lastErr    error
	inFlight   map[opKind]uint64

	obsMu     sync.Mutex
	observers map[int]func(Snapshot)
	nextObs   int
}

// New creates a controller in IDLE.
func New(variant Variant, client authclient.Client, sessions SessionWriter, opts ...Option) (*Controller, error) {
	if !variant.Valid() {
		return nil, errors.Wrapf(ErrUnknownVariant, "%q", variant)
	}
	if client == nil {
		return nil, errors.New("auth service client is required")
	}
	if sessions == nil {
		return nil, errors.New("session writer is required")
	}

	s := settings{now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(&s)
	}
	if s.entry == "" {
		s.entry = variant.defaultEntry()
	}
	if !variant.accepts(s.entry) {
		return nil, errors.Wrapf(ErrUnknownVariant, "entry point %q cannot run %s", s.entry, variant)
	}

	c := &Controller{
		variant:      variant,
		entry:        s.entry,
		client:       client,
		sessions:     sessions,
		tokens:       pretoken.NewHolder(),
		logger:       logging.OrNoop(s.logger).WithField("component", "auth_flow").WithField("variant", string(variant)),
		metrics:      s.metrics,
		now:          s.now,
		newID:        s.newID,
		cooldown:     s.cooldown,
		codeLen:      s.codeLen,
		claimTimeout: s.claimTimeout,
		inFlight:     make(map[opKind]uint64),
		observers:    make(map[int]func(Snapshot)),
	}
	if c.cooldown <= 0 {
		c.cooldown = cooldownFor(variant, s.flow)
	}
	if !s.codeLenSet {
		c.codeLen = 0
		if variant == VariantRegistration {
			c.codeLen = defaultRegistrationCodeLen
			if s.flow != nil {
				c.codeLen = s.flow.RegistrationCodeLength
			}
		}
	}
	if c.claimTimeout <= 0 {
		c.claimTimeout = defaultClaimTimeout
		if s.flow != nil && s.flow.ClaimTimeout > 0 {
			c.claimTimeout = s.flow.ClaimTimeout
		}
	}

	c.timer = cooldown.New(append([]cooldown.Option{cooldown.WithClock(c.now)}, s.timerOpts...)...)
	c.timer.OnTick(func(int) { c.notify() })

	m, err := newMachine(c, c.logger)
	if err != nil {
		return nil, err
	}
	c.machine = m
	return c, nil
}

// Variant returns the flow variant.
func (c *Controller) Variant() Variant { return c.variant }

// Entry returns the entry point whose endpoints the flow calls.
func (c *Controller) Entry() authclient.Entry { return c.entry }

// SubmitCredentials sends the first factor. Any previous pending verification
// and its token are invalidated first. On failure the flow is left in IDLE with
// no pending verification.
func (c *Controller) SubmitCredentials(ctx context.Context, ff FirstFactor) (PendingVerification, error) {
	ff, err := ff.validate(c.variant)
	if err != nil {
		return PendingVerification{}, err
	}

	c.mu.Lock()
	if c.busyLocked(opDispatch, opOAuth) {
		c.mu.Unlock()
		return PendingVerification{}, ErrInFlight
	}
	state := c.machine.Current()
	if state != StateIdle && state != StateCodeSent {
		c.mu.Unlock()
		return PendingVerification{}, errors.Wrapf(ErrInvalidState, "cannot submit credentials in %s", state)
	}
	c.resetLocked(ctx)
	c.lastErr = nil
	gen := c.generation
	c.inFlight[opDispatch] = gen
	c.mu.Unlock()
	c.notify()

	req := authclient.DispatchRequest{Entry: c.entry}
	var reg *authclient.Registration
	switch c.variant {
	case VariantRegistration:
		reg = &authclient.Registration{Name: ff.Name, Email: ff.Email, Password: ff.Secret}
		req.Registration = reg
	case VariantLogin2FA:
		req.Identifier, req.Secret = ff.Identifier, ff.Secret
	default:
		req.Identifier = ff.Identifier
	}

	d, err := c.client.DispatchFirstFactor(ctx, req)

	c.mu.Lock()
	c.endLocked(opDispatch, gen)
	if gen != c.generation || c.machine.Current() != StateIdle {
		c.mu.Unlock()
		c.logger.Info("Discarding first-factor response for a superseded flow.")
		return PendingVerification{}, ErrStaleResponse
	}
	if err != nil {
		err = autherr.As(err, autherr.OpDispatch)
		c.lastErr = err
		c.mu.Unlock()
		c.logger.Info("First factor rejected.", "kind", autherr.KindOf(err))
		c.notify()
		return PendingVerification{}, err
	}

	p := &pendingState{registration: reg, claim: ff.Claim}
	p.ID = c.newID()
	p.IssuedAt = c.now()
	p.Email = d.Email
	if p.Email == "" {
		p.Email = ff.Identifier
		if c.variant == VariantRegistration {
			p.Email = ff.Email
		}
	}
	if !d.PreAuthToken.IsZero() {
		c.tokens.Set(p.ID, d.PreAuthToken)
	}
	c.armLocked(p)
	c.fireLogged(ctx, EventCodeSent)
	out := p.PendingVerification
	c.mu.Unlock()

	c.logger.Info("Verification code sent.", "pendingID", out.ID, "cooldownSeconds", out.CooldownSeconds)
	c.notify()
	return out, nil
}

// ResendCode asks the auth service to send another code. It is rejected with
// ErrCooldownActive, without a network call, while the cooldown runs.
func (c *Controller) ResendCode(ctx context.Context) error {
	c.mu.Lock()
	if state := c.machine.Current(); state != StateCodeSent {
		c.mu.Unlock()
		return errors.Wrapf(ErrInvalidState, "cannot resend in %s", state)
	}
	if c.pending == nil {
		c.mu.Unlock()
		return ErrNoPending
	}
	if remaining := c.timer.Remaining(); remaining > 0 {
		c.mu.Unlock()
		return errors.Wrapf(ErrCooldownActive, "%ds remaining", remaining)
	}
	if c.busyLocked(opResend, opVerify) {
		c.mu.Unlock()
		return ErrInFlight
	}
	p := *c.pending
	tok, err := c.tokens.For(pretoken.ScopeResend, p.ID)
	if err != nil && !errors.Is(err, pretoken.ErrAbsent) {
		c.mu.Unlock()
		return errors.Mark(err, ErrPendingMismatch)
	}
	gen := c.generation
	c.inFlight[opResend] = gen
	c.mu.Unlock()

	d, err := c.client.ResendFirstFactor(ctx, authclient.ResendRequest{
		Entry:        c.entry,
		Email:        p.Email,
		Registration: p.registration,
	}, tok)

	c.mu.Lock()
	c.endLocked(opResend, gen)
	if gen != c.generation || c.pending == nil || c.pending.ID != p.ID {
		c.mu.Unlock()
		c.logger.Info("Discarding resend response for a superseded verification.", "pendingID", p.ID)
		return ErrStaleResponse
	}
	if err != nil {
		err = autherr.As(err, autherr.OpResend)
		c.lastErr = err
		if autherr.IsTerminal(autherr.KindOf(err)) {
			c.teardownLocked()
			c.fireLogged(ctx, EventFail)
		}
		c.mu.Unlock()
		c.logger.Info("Resend rejected.", "kind", autherr.KindOf(err))
		c.notify()
		return err
	}

	// The renewed verification supersedes the old one. The token is opaque:
	// a fresh one replaces it, otherwise it carries over.
	renewed := p
	renewed.ID = c.newID()
	renewed.IssuedAt = c.now()
	if d.Email != "" {
		renewed.Email = d.Email
	}
	if err := c.tokens.Rebind(p.ID, renewed.ID, d.PreAuthToken); err != nil {
		c.logger.Warn("Pre-auth token did not follow the resent code.", "pendingID", p.ID, "error", err)
		c.tokens.Invalidate()
	}
	c.armLocked(&renewed)
	c.lastErr = nil
	c.mu.Unlock()

	c.logger.Info("Verification code resent.", "pendingID", renewed.ID)
	c.notify()
	return nil
}

// SubmitCode sends the second factor. On success the session is written and
// the flow ends in ESTABLISHED (after CLAIMING when a claim context is
// present), or in COMPLETED for password resets. A failed verification returns
// to CODE_SENT with the pending verification and cooldown untouched; terminal
// kinds return to IDLE.
func (c *Controller) SubmitCode(ctx context.Context, sub CodeSubmission) (Outcome, error) {
	if c.variant == VariantOAuthShortcut {
		return Outcome{}, errors.Wrap(ErrUnsupported, "OAuth flows have no code")
	}
	sub, err := sub.validate(c.variant, c.codeLen)
	if err != nil {
		return Outcome{}, err
	}

	c.mu.Lock()
	if c.busyLocked(opVerify, opResend) {
		c.mu.Unlock()
		return Outcome{}, ErrInFlight
	}
	if state := c.machine.Current(); state != StateCodeSent {
		c.mu.Unlock()
		return Outcome{}, errors.Wrapf(ErrInvalidState, "cannot submit a code in %s", state)
	}
	if c.pending != nil && sub.PendingID != "" && sub.PendingID != c.pending.ID {
		c.mu.Unlock()
		return Outcome{}, ErrPendingMismatch
	}
	if err := c.fire(ctx, EventVerify); err != nil {
		c.mu.Unlock()
		return Outcome{}, err
	}
	p := *c.pending
	tok, err := c.tokens.For(pretoken.ScopeVerify, p.ID)
	if err != nil && !errors.Is(err, pretoken.ErrAbsent) {
		c.fireLogged(ctx, EventVerifyFailed)
		c.mu.Unlock()
		return Outcome{}, errors.Mark(err, ErrPendingMismatch)
	}
	gen := c.generation
	c.inFlight[opVerify] = gen
	c.mu.Unlock()
	c.notify()

	v, err := c.client.VerifySecondFactor(ctx, authclient.VerifyRequest{
		Entry:        c.entry,
		Email:        p.Email,
		Code:         sub.Code,
		NewPassword:  sub.NewPassword,
		Registration: p.registration,
	}, tok)

	c.mu.Lock()
	if gen != c.generation {
		c.endLocked(opVerify, gen)
		c.mu.Unlock()
		c.logger.Info("Discarding verification response for an abandoned flow.", "pendingID", p.ID)
		return Outcome{}, ErrStaleResponse
	}
	if err != nil {
		err = autherr.As(err, autherr.OpVerify)
		c.endLocked(opVerify, gen)
		c.failVerifyLocked(ctx, err)
		c.mu.Unlock()
		c.logger.Info("Verification rejected.", "kind", autherr.KindOf(err))
		c.notify()
		return Outcome{}, err
	}

	if c.variant.isReset() {
		c.endLocked(opVerify, gen)
		c.teardownLocked()
		c.fireLogged(ctx, EventComplete)
		c.lastErr = nil
		c.mu.Unlock()
		c.logger.Info("Password reset confirmed.")
		c.notify()
		return Outcome{
			State:              StateCompleted,
			ResetDone:          true,
			MustChangePassword: v.MustChangePassword || c.variant == VariantResetServerDefault,
			Redirect:           session.AreaLogin,
		}, nil
	}

	sess, err := c.establishLocked(ctx, v, autherr.OpVerify)
	if err != nil {
		c.endLocked(opVerify, gen)
		c.failVerifyLocked(ctx, err)
		c.mu.Unlock()
		c.notify()
		return Outcome{}, err
	}
	c.teardownLocked()
	c.lastErr = nil
	out := Outcome{Session: &sess, Claim: p.claim, Redirect: session.HomeFor(sess.Role)}

	if p.claim == nil {
		c.endLocked(opVerify, gen)
		c.fireLogged(ctx, EventEstablish)
		out.State = StateEstablished
		c.mu.Unlock()
		c.notify()
		return out, nil
	}

	c.fireLogged(ctx, EventClaim)
	c.mu.Unlock()
	c.notify()

	out.ClaimAcknowledged = c.claimBestEffort(ctx, *p.claim, p.Email)
	if p.claim.ReturnURL != "" {
		out.Redirect = p.claim.ReturnURL
	}

	c.mu.Lock()
	c.endLocked(opVerify, gen)
	if gen == c.generation {
		c.fireLogged(ctx, EventEstablish)
	}
	out.State = c.machine.Current()
	c.mu.Unlock()
	c.notify()
	return out, nil
}

// ExchangeOAuth trades a third-party credential for a session. It runs from
// IDLE straight to VERIFYING with no code step.
func (c *Controller) ExchangeOAuth(ctx context.Context, cred OAuthCredential) (Outcome, error) {
	if strings.TrimSpace(cred.Credential) == "" {
		return Outcome{}, invalidInput("credential is required")
	}
	if cred.Provider == "" {
		cred.Provider = DefaultOAuthProvider
	}

	c.mu.Lock()
	if c.busyLocked(opOAuth, opDispatch) {
		c.mu.Unlock()
		return Outcome{}, ErrInFlight
	}
	if err := c.fire(ctx, EventOAuth); err != nil {
		c.mu.Unlock()
		return Outcome{}, err
	}
	gen := c.generation
	c.inFlight[opOAuth] = gen
	c.lastErr = nil
	c.mu.Unlock()
	c.notify()

	v, err := c.client.OAuthExchange(ctx, authclient.OAuthRequest{Provider: cred.Provider, Credential: cred.Credential})

	c.mu.Lock()
	defer c.notify()
	defer c.mu.Unlock()
	c.endLocked(opOAuth, gen)
	if gen != c.generation {
		c.logger.Info("Discarding OAuth response for an abandoned flow.")
		return Outcome{}, ErrStaleResponse
	}
	if err == nil {
		var sess session.Session
		if sess, err = c.establishLocked(ctx, v, autherr.OpOAuth); err == nil {
			c.fireLogged(ctx, EventEstablish)
			return Outcome{State: StateEstablished, Session: &sess, Redirect: session.HomeFor(sess.Role)}, nil
		}
	}
	err = autherr.As(err, autherr.OpOAuth)
	c.lastErr = err
	c.fireLogged(ctx, EventFail)
	c.logger.Info("OAuth exchange failed.", "provider", cred.Provider, "kind", autherr.KindOf(err))
	return Outcome{}, err
}

// Abandon tears the flow down: the pending verification and token are
// dropped, the cooldown stops, and any response still in flight will be
// discarded. Calling it on an idle flow does nothing.
func (c *Controller) Abandon() {
	c.mu.Lock()
	state := c.machine.Current()
	if state == StateIdle && c.pending == nil && len(c.inFlight) == 0 {
		c.mu.Unlock()
		return
	}
	c.resetLocked(context.Background())
	c.lastErr = nil
	c.mu.Unlock()

	c.logger.Debug("Flow abandoned.", "from", state)
	c.notify()
}

// State returns the current flow state.
func (c *Controller) State() fsm.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Current()
}

// Pending returns the current pending verification, if any.
func (c *Controller) Pending() (PendingVerification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return PendingVerification{}, false
	}
	return c.pending.PendingVerification, true
}

// CooldownRemaining returns the whole seconds until a resend is allowed.
func (c *Controller) CooldownRemaining() int {
	return c.timer.Remaining()
}

// LastError returns the most recent classified failure, cleared by success
// and by Abandon.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Snapshot returns the observable flow state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		Variant:           c.variant,
		State:             c.machine.Current(),
		CooldownRemaining: c.timer.Remaining(),
		LastError:         c.lastErr,
		LastErrorKind:     autherr.KindOf(c.lastErr),
	}
	if c.pending != nil {
		p := c.pending.PendingVerification
		s.Pending = &p
	}
	return s
}

// OnChange registers fn to be called after every state change and cooldown
// tick. It returns a function that removes the observer.
func (c *Controller) OnChange(fn func(Snapshot)) (cancel func()) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	return func() {
		c.obsMu.Lock()
		defer c.obsMu.Unlock()
		delete(c.observers, id)
	}
}

func (c *Controller) notify() {
	c.obsMu.Lock()
	if len(c.observers) == 0 {
		c.obsMu.Unlock()
		return
	}
	fns := make([]func(Snapshot), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.obsMu.Unlock()

	snap := c.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}

// claimBestEffort consumes the claim token. Its failure is logged and counted,
// never returned. The caller waits at most claimTimeout, even when the client
// ignores cancellation.
func (c *Controller) claimBestEffort(ctx context.Context, claim ClaimContext, email string) bool {
	cctx, cancel := context.WithTimeout(ctx, c.claimTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("Reward claim panicked; continuing.", "panic", r)
				done <- errors.Newf("reward claim panicked: %v", r)
			}
		}()
		done <- c.client.ClaimReward(cctx, authclient.ClaimRequest{ClaimToken: claim.ClaimToken, Email: email})
	}()

	var err error
	select {
	case err = <-done:
	case <-cctx.Done():
		err = autherr.Wrap(cctx.Err(), autherr.KindTimeout, autherr.OpClaim)
	}
	c.metrics.RecordClaim(err == nil)
	if err != nil {
		c.logger.Warn("Reward claim failed; registration continues.", "kind", autherr.KindOf(err), "error", err)
		c.metrics.RecordError("claim", err.Error())
		return false
	}
	c.logger.Info("Reward claimed.")
	return true
}

// establishLocked writes the session. The role comes from the verified
// response only.
func (c *Controller) establishLocked(ctx context.Context, v authclient.Verification, op autherr.Op) (session.Session, error) {
	role, ok := session.ParseRole(v.Role)
	if !ok || v.SessionToken == "" {
		return session.Session{}, autherr.New(autherr.KindUnknown, op, "verification response carries no usable session")
	}
	sess, err := c.sessions.Establish(ctx, session.Session{Token: v.SessionToken, Role: role, ExpiresAt: v.ExpiresAt})
	if err != nil {
		c.logger.Warn("Session not established.", "role", role, "error", err)
		c.metrics.RecordError("session", err.Error())
		return session.Session{}, autherr.Wrap(err, autherr.KindUnknown, op)
	}
	return sess, nil
}

// failVerifyLocked applies a failed verification: terminal kinds end the
// attempt, everything else returns to CODE_SENT.
func (c *Controller) failVerifyLocked(ctx context.Context, err error) {
	c.lastErr = err
	if autherr.IsTerminal(autherr.KindOf(err)) {
		c.teardownLocked()
		c.fireLogged(ctx, EventFail)
		return
	}
	c.fireLogged(ctx, EventVerifyFailed)
}

// armLocked makes p the pending verification and restarts the cooldown.
func (c *Controller) armLocked(p *pendingState) {
	c.timer.Start(c.cooldown)
	p.CooldownSeconds = int(c.cooldown / time.Second)
	p.CooldownExpiresAt = c.timer.Deadline()
	c.pending = p
}

func (c *Controller) teardownLocked() {
	c.tokens.Invalidate()
	c.timer.Stop()
	c.pending = nil
}

// resetLocked starts a new generation in IDLE. Responses still in flight
// belong to the old generation and are discarded when they arrive.
func (c *Controller) resetLocked(ctx context.Context) {
	c.teardownLocked()
	c.generation++
	clear(c.inFlight)
	if c.machine.Current() != StateIdle {
		c.fireLogged(ctx, EventAbandon)
	}
}

func (c *Controller) busyLocked(ops ...opKind) bool {
	for _, op := range ops {
		if _, ok := c.inFlight[op]; ok {
			return true
		}
	}
	return false
}

func (c *Controller) endLocked(op opKind, gen uint64) {
	if g, ok := c.inFlight[op]; ok && g == gen {
		delete(c.inFlight, op)
	}
}

// fire triggers ev. Transitions rejected by the machine are reported as
// ErrInvalidState; guard errors are returned as is.
func (c *Controller) fire(ctx context.Context, ev fsm.Event) error {
	if err := c.machine.Fire(context.WithoutCancel(ctx), ev); err != nil {
		if errors.Is(err, ErrNoPending) || errors.Is(err, ErrUnsupported) {
			return err
		}
		return errors.Mark(err, ErrInvalidState)
	}
	c.metrics.RecordFlowEvent(string(c.variant), string(ev))
	return nil
}

func (c *Controller) fireLogged(ctx context.Context, ev fsm.Event) {
	if err := c.fire(ctx, ev); err != nil {
		c.logger.Error("Unexpected flow transition failure.", "event", ev, "state", c.machine.Current(), "error", err)
	}
}
