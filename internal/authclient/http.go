// file: internal/authclient/http.go
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/tableside/internal/autherr"
	"github.com/dkoosis/tableside/internal/config"
	"github.com/dkoosis/tableside/internal/logging"
	"github.com/dkoosis/tableside/internal/metrics"
	"github.com/dkoosis/tableside/internal/pretoken"
	"github.com/dkoosis/tableside/internal/schema"
	"github.com/google/uuid"
)

const maxResponseBytes = 1 << 20

// HTTPClient implements Client over JSON/REST.
type HTTPClient struct {
	baseURL    string
	endpoints  map[string]config.EndpointSet
	oauthPath  string
	claimPath  string
	httpClient *http.Client
	limiter    *RateLimiter
	validator  schema.ValidatorInterface
	classifier *autherr.Classifier
	metrics    *metrics.Collector
	logger     logging.Logger
	requestID  func() string
}

var _ Client = (*HTTPClient)(nil)

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *HTTPClient) { c.httpClient = hc } }

// WithValidator validates response bodies before they are decoded.
func WithValidator(v schema.ValidatorInterface) Option { return func(c *HTTPClient) { c.validator = v } }

// WithClassifier replaces the default error classification table.
func WithClassifier(cl *autherr.Classifier) Option { return func(c *HTTPClient) { c.classifier = cl } }

// WithMetrics records every call on m.
func WithMetrics(m *metrics.Collector) Option { return func(c *HTTPClient) { c.metrics = m } }

// WithLogger sets the client logger.
func WithLogger(l logging.Logger) Option {
	return func(c *HTTPClient) { c.logger = logging.OrNoop(l).WithField("component", "auth_client") }
}

// WithRateLimiter replaces the throttle built from configuration.
func WithRateLimiter(rl *RateLimiter) Option { return func(c *HTTPClient) { c.limiter = rl } }

// NewHTTPClient builds a client from cfg.
func NewHTTPClient(cfg config.AuthServiceConfig, opts ...Option) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("auth service base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	endpoints := cfg.Endpoints
	if len(endpoints) == 0 {
		endpoints = config.DefaultEndpoints()
	}

	c := &HTTPClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		endpoints:  endpoints,
		oauthPath:  cfg.OAuthPath,
		claimPath:  cfg.ClaimPath,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
		classifier: autherr.Default,
		logger:     logging.GetNoopLogger(),
		requestID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Wire bodies.

type credentialsBody struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type emailBody struct {
	Email string `json:"email"`
}

type registrationVerifyBody struct {
	Registration
	Code string `json:"code"`
}

type verifyBody struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword,omitempty"`
}

type oauthBody struct {
	Provider   string `json:"provider"`
	Credential string `json:"credential"`
}

type claimBody struct {
	ClaimToken string `json:"claimToken"`
	Email      string `json:"email"`
}

type dispatchResponse struct {
	PreAuthToken string `json:"preAuthToken"`
	Email        string `json:"email"`
}

type verifyResponse struct {
	Token              string     `json:"token"`
	Role               string     `json:"role"`
	ExpiresAt          *time.Time `json:"expiresAt"`
	ResetDone          bool       `json:"resetDone"`
	MustChangePassword bool       `json:"mustChangePassword"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// DispatchFirstFactor implements Client.
func (c *HTTPClient) DispatchFirstFactor(ctx context.Context, req DispatchRequest) (Dispatch, error) {
	set, err := c.endpointSet(req.Entry, autherr.OpDispatch)
	if err != nil {
		return Dispatch{}, err
	}

	var body any
	switch {
	case req.Registration != nil:
		body = req.Registration
	case req.Secret == "":
		body = emailBody{Email: req.Identifier}
	default:
		body = credentialsBody{Identifier: req.Identifier, Password: req.Secret}
	}

	var resp dispatchResponse
	if err := c.do(ctx, autherr.OpDispatch, set.Dispatch, body, pretoken.Token{}, schema.DispatchResponse, &resp); err != nil {
		return Dispatch{}, err
	}
	return Dispatch{PreAuthToken: pretoken.NewToken(resp.PreAuthToken), Email: resp.Email}, nil
}

// ResendFirstFactor implements Client.
func (c *HTTPClient) ResendFirstFactor(ctx context.Context, req ResendRequest, tok pretoken.Token) (Dispatch, error) {
	set, err := c.endpointSet(req.Entry, autherr.OpResend)
	if err != nil {
		return Dispatch{}, err
	}
	path := set.Resend
	if path == "" {
		path = set.Dispatch
	}

	var body any = emailBody{Email: req.Email}
	if req.Registration != nil {
		body = req.Registration
	}

	var resp dispatchResponse
	if err := c.do(ctx, autherr.OpResend, path, body, tok, schema.DispatchResponse, &resp); err != nil {
		return Dispatch{}, err
	}
	return Dispatch{PreAuthToken: pretoken.NewToken(resp.PreAuthToken), Email: resp.Email}, nil
}

// VerifySecondFactor implements Client.
func (c *HTTPClient) VerifySecondFactor(ctx context.Context, req VerifyRequest, tok pretoken.Token) (Verification, error) {
	set, err := c.endpointSet(req.Entry, autherr.OpVerify)
	if err != nil {
		return Verification{}, err
	}

	var body any = verifyBody{Email: req.Email, Code: req.Code, NewPassword: req.NewPassword}
	if req.Registration != nil {
		body = registrationVerifyBody{Registration: *req.Registration, Code: req.Code}
	}

	var resp verifyResponse
	if err := c.do(ctx, autherr.OpVerify, set.Verify, body, tok, schema.VerifyResponse, &resp); err != nil {
		return Verification{}, err
	}
	return resp.verification(), nil
}

// OAuthExchange implements Client.
func (c *HTTPClient) OAuthExchange(ctx context.Context, req OAuthRequest) (Verification, error) {
	if c.oauthPath == "" {
		return Verification{}, autherr.New(autherr.KindUnknown, autherr.OpOAuth, "no OAuth endpoint configured")
	}
	var resp verifyResponse
	body := oauthBody{Provider: req.Provider, Credential: req.Credential}
	if err := c.do(ctx, autherr.OpOAuth, c.oauthPath, body, pretoken.Token{}, schema.OAuthResponse, &resp); err != nil {
		return Verification{}, err
	}
	return resp.verification(), nil
}

// ClaimReward implements Client.
func (c *HTTPClient) ClaimReward(ctx context.Context, req ClaimRequest) error {
	if c.claimPath == "" {
		return autherr.New(autherr.KindUnknown, autherr.OpClaim, "no claim endpoint configured")
	}
	body := claimBody{ClaimToken: req.ClaimToken, Email: req.Email}
	return c.do(ctx, autherr.OpClaim, c.claimPath, body, pretoken.Token{}, schema.ClaimResponse, nil)
}

func (r verifyResponse) verification() Verification {
	v := Verification{
		SessionToken:       r.Token,
		Role:               r.Role,
		ResetDone:          r.ResetDone,
		MustChangePassword: r.MustChangePassword,
	}
	if r.ExpiresAt != nil {
		v.ExpiresAt = *r.ExpiresAt
	}
	return v
}

func (c *HTTPClient) endpointSet(entry Entry, op autherr.Op) (config.EndpointSet, error) {
	set, ok := c.endpoints[string(entry)]
	if !ok {
		return config.EndpointSet{}, autherr.New(autherr.KindUnknown, op, "no endpoints configured for "+string(entry))
	}
	return set, nil
}

// do sends one POST and decodes the response into out. The pre-auth token is
// attached only when tok is non-zero, which only resend and verify pass.
func (c *HTTPClient) do(ctx context.Context, op autherr.Op, path string, body any, tok pretoken.Token, responseType string, out any) (err error) {
	start := time.Now()
	reqID := c.requestID()
	status := 0
	defer func() {
		kind := ""
		if err != nil {
			kind = string(autherr.KindOf(err))
		}
		c.metrics.RecordAPICall(string(op), time.Since(start), kind)
		c.logger.Debug("Auth service call finished.",
			"op", op, "requestID", reqID, "status", status,
			"duration", time.Since(start), "errorKind", kind)
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(err, ErrThrottled) {
			return autherr.Wrap(err, autherr.KindTimeout, op)
		}
		return c.classifier.FromTransport(op, err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return autherr.Wrap(errors.Wrap(err, "failed to encode request"), autherr.KindUnknown, op)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return autherr.Wrap(errors.Wrap(err, "failed to create request"), autherr.KindUnknown, op)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if !tok.IsZero() {
		req.Header.Set("Authorization", "Bearer "+tok.Reveal())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classifier.FromTransport(op, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Error closing auth service response body.", "op", op, "error", closeErr)
		}
	}()
	status = resp.StatusCode

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return c.classifier.FromTransport(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.classifier.FromResponse(op, resp.StatusCode, c.errorMessage(ctx, data))
	}

	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte("{}")
	}
	if c.validator != nil {
		if verr := c.validator.Validate(ctx, responseType, data); verr != nil {
			c.logger.Warn("Auth service response failed schema validation.", "op", op, "requestID", reqID, "error", verr)
			return autherr.Wrap(verr, autherr.KindUnknown, op)
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return autherr.Wrap(errors.Wrap(err, "failed to decode response"), autherr.KindUnknown, op)
	}
	return nil
}

// errorMessage extracts the server message from an error body. Non-JSON
// bodies are used verbatim, truncated.
func (c *HTTPClient) errorMessage(ctx context.Context, data []byte) string {
	var er errorResponse
	if err := json.Unmarshal(data, &er); err != nil {
		msg := strings.TrimSpace(string(data))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return msg
	}
	if c.validator != nil {
		if err := c.validator.Validate(ctx, schema.ErrorResponse, data); err != nil {
			c.logger.Debug("Error body does not match the error schema.", "error", err)
		}
	}
	if er.Message != "" {
		return er.Message
	}
	return er.Error
}
