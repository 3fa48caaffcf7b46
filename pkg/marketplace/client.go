package marketplace

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vrsc-agents/agent-sdk-go/pkg/signer"
)

// IAgentSigner is the part of *signer.Signer the client needs.
type IAgentSigner interface {
	Address() string
	PublicKeyHex() string
	SignMessage(ctx context.Context, message string) (string, error)
	CreateAuthenticatedChallenge(ctx context.Context, challengeID, challenge, identity string) (*signer.AuthenticatedChallenge, error)
}

// ClientConfig holds the configuration for the marketplace client
type ClientConfig struct {
	BaseURL string

	// JWKSURL, when set, is fetched and cached so session tokens are
	// verified rather than only decoded.
	JWKSURL             string
	JWKSRefreshInterval time.Duration

	// RequestsPerSec <= 0 disables client-side rate limiting.
	RequestsPerSec float64
	Burst          int

	Timeout    time.Duration
	Retry      *RetryConfig
	HTTPClient *http.Client

	// Registerer receives the client's metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer

	Logger *zap.Logger
}

// Client talks to the marketplace REST API on behalf of one agent.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryConfig
	metrics    *Metrics
	keySet     jwk.Set
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.RWMutex
	session *Session
}

// NewClient validates config and, if a JWKS URL is configured, performs the
// initial key fetch. ctx bounds the lifetime of the JWKS refresher.
func NewClient(ctx context.Context, config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("marketplace base URL is required")
	}
	baseURL, err := url.Parse(config.BaseURL)
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid marketplace base URL %q", config.BaseURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RequestsPerSec > 0 {
		burst := config.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSec), burst)
	}

	retry := DefaultRetryConfig
	if config.Retry != nil {
		retry = *config.Retry
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		limiter:    limiter,
		retry:      retry,
		metrics:    NewMetrics(config.Registerer),
		logger:     config.Logger,
		now:        time.Now,
	}

	if config.JWKSURL != "" {
		interval := config.JWKSRefreshInterval
		if interval <= 0 {
			interval = 15 * time.Minute
		}
		keySet, err := NewJWKCache(ctx, config.JWKSURL, interval)
		if err != nil {
			return nil, err
		}
		c.keySet = keySet
	}

	return c, nil
}

// Session returns the current login session, or nil.
func (c *Client) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// SetSessionToken installs a token obtained elsewhere, e.g. from a previous
// run of the agent.
func (c *Client) SetSessionToken(token string) (*Session, error) {
	session, err := parseSessionToken(token, c.keySet, c.now)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	return session, nil
}

// Logout forgets the current session.
func (c *Client) Logout() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
}

func (c *Client) bearerToken() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return "", ErrNotAuthenticated
	}
	if c.session.Expired(c.now()) {
		return "", ErrSessionExpired
	}
	return c.session.Token, nil
}

// GetChallenge asks the marketplace for a challenge bound to identity.
func (c *Client) GetChallenge(ctx context.Context, identity string) (*Challenge, error) {
	var challenge Challenge
	err := c.do(ctx, request{
		endpoint: "auth.challenge",
		method:   http.MethodGet,
		path:     "/v1/auth/challenge",
		query:    url.Values{"identity": []string{identity}},
	}, &challenge)
	if err != nil {
		return nil, err
	}
	if challenge.ChallengeID == "" || challenge.Challenge == "" {
		return nil, fmt.Errorf("marketplace returned an empty challenge")
	}
	return &challenge, nil
}

// Login signs a fresh challenge as identity and stores the returned session.
func (c *Client) Login(ctx context.Context, s IAgentSigner, identity string) (*Session, error) {
	challenge, err := c.GetChallenge(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to get login challenge: %w", err)
	}
	if !challenge.ExpiresAt.IsZero() && !c.now().Before(challenge.ExpiresAt) {
		return nil, fmt.Errorf("challenge %s expired at %s", challenge.ChallengeID, challenge.ExpiresAt)
	}

	auth, err := s.CreateAuthenticatedChallenge(ctx, challenge.ChallengeID, challenge.Challenge, identity)
	if err != nil {
		return nil, err
	}

	var resp LoginResponse
	err = c.do(ctx, request{
		endpoint: "auth.login",
		method:   http.MethodPost,
		path:     "/v1/auth/login",
		body: &LoginRequest{
			ChallengeID: auth.ChallengeID,
			Identity:    auth.Identity,
			Address:     auth.Address,
			Signature:   auth.Signature,
		},
	}, &resp)
	if err != nil {
		return nil, err
	}

	session, err := c.SetSessionToken(resp.Token)
	if err != nil {
		return nil, err
	}

	c.logger.Sugar().Infow("Logged in to marketplace",
		"identity", identity,
		"address", auth.Address,
		"subject", session.Subject,
		"expiresAt", session.ExpiresAt,
	)
	return session, nil
}

// Onboard registers the signer's address as a new agent. The agent has no
// on-chain identity yet, so the challenge is signed for the chain subject.
func (c *Client) Onboard(ctx context.Context, s IAgentSigner, name string) (*OnboardResponse, error) {
	challenge, err := c.GetChallenge(ctx, s.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to get onboarding challenge: %w", err)
	}

	auth, err := s.CreateAuthenticatedChallenge(ctx, challenge.ChallengeID, challenge.Challenge, "")
	if err != nil {
		return nil, err
	}

	var resp OnboardResponse
	err = c.do(ctx, request{
		endpoint: "agents.onboard",
		method:   http.MethodPost,
		path:     "/v1/agents/onboard",
		body: &OnboardRequest{
			Address:     auth.Address,
			Name:        name,
			PublicKey:   auth.PublicKey,
			ChallengeID: auth.ChallengeID,
			Signature:   auth.Signature,
		},
	}, &resp)
	if err != nil {
		return nil, err
	}

	c.logger.Sugar().Infow("Onboarded agent", "agentId", resp.AgentID, "status", resp.Status)
	return &resp, nil
}

// ListJobs returns jobs with the given status; empty status lists all.
func (c *Client) ListJobs(ctx context.Context, status JobStatus) ([]Job, error) {
	var query url.Values
	if status != "" {
		query = url.Values{"status": []string{string(status)}}
	}

	jobs := make([]Job, 0)
	err := c.do(ctx, request{
		endpoint:      "jobs.list",
		method:        http.MethodGet,
		path:          "/v1/jobs",
		query:         query,
		authenticated: true,
	}, &jobs)
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (c *Client) AcceptJob(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	err := c.do(ctx, request{
		endpoint:      "jobs.accept",
		method:        http.MethodPost,
		path:          "/v1/jobs/" + url.PathEscape(jobID) + "/accept",
		authenticated: true,
	}, &job)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// DeliverJob submits result for jobID, signed by s.
func (c *Client) DeliverJob(ctx context.Context, s IAgentSigner, jobID, result string) error {
	sig, err := s.SignMessage(ctx, SignedPayload(jobID, result))
	if err != nil {
		return fmt.Errorf("failed to sign delivery for job %s: %w", jobID, err)
	}
	return c.do(ctx, request{
		endpoint:      "jobs.deliver",
		method:        http.MethodPost,
		path:          "/v1/jobs/" + url.PathEscape(jobID) + "/deliver",
		body:          &DeliverRequest{Result: result, Signature: sig},
		authenticated: true,
	}, nil)
}

// SendMessage posts a signed chat message on jobID.
func (c *Client) SendMessage(ctx context.Context, s IAgentSigner, jobID, body string) error {
	sig, err := s.SignMessage(ctx, SignedPayload(jobID, body))
	if err != nil {
		return fmt.Errorf("failed to sign message for job %s: %w", jobID, err)
	}
	return c.do(ctx, request{
		endpoint:      "jobs.messages",
		method:        http.MethodPost,
		path:          "/v1/jobs/" + url.PathEscape(jobID) + "/messages",
		body:          &MessageRequest{Body: body, Signature: sig},
		authenticated: true,
	}, nil)
}

func (c *Client) GetPricing(ctx context.Context) ([]PriceQuote, error) {
	quotes := make([]PriceQuote, 0)
	err := c.do(ctx, request{
		endpoint: "pricing",
		method:   http.MethodGet,
		path:     "/v1/pricing",
	}, &quotes)
	if err != nil {
		return nil, err
	}
	return quotes, nil
}
