// Package verifier wraps a third-party single-email verification API
// behind a fixed-window rate limiter, a circuit breaker, and bounded
// retries. Limiter and breaker state persist across engine invocations.
package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/models"
)

// greylistRetryAfterHours is the fixed retry hint attached to grey-listed
// results. Producers attach it; no consumer currently re-schedules on it.
const greylistRetryAfterHours = 4

// Config holds verification client configuration
type Config struct {
	BaseURL          string
	APIKey           string
	Timeout          time.Duration
	RateLimit        int
	RateWindow       time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
	MaxRetries       int
	BackoffMs        int
}

// Result is a verification outcome mapped onto the closed internal set
type Result struct {
	Status          models.VerificationStatus
	ProviderStatus  string
	Role            bool
	FreeDomain      bool
	RetryAfterHours int // set only for greylisted
}

// Client calls the verification API. All shared limiter/breaker state is
// guarded by one mutex so concurrent callers stay safe.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	limiter limiter
	breaker breaker
	state   *StateStore

	maxRetries int
	backoffMs  int

	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a verification client. state may be nil, in which case the
// limiter window and breaker live only for the process lifetime.
func New(cfg Config, state *StateStore, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 30
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 3
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffMs <= 0 {
		cfg.BackoffMs = 500
	}

	c := &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "verifier"),
		limiter:    limiter{max: cfg.RateLimit, window: cfg.RateWindow},
		breaker:    breaker{threshold: cfg.BreakerThreshold, cooldown: cfg.BreakerCooldown},
		state:      state,
		maxRetries: cfg.MaxRetries,
		backoffMs:  cfg.BackoffMs,
		now:        time.Now,
		sleep:      time.Sleep,
	}

	if state != nil {
		if _, err := state.load(keyWindow, &c.limiter.state); err != nil {
			c.logger.Warn("failed to load limiter state, starting fresh", "error", err)
		}
		if _, err := state.load(keyBreaker, &c.breaker.state); err != nil {
			c.logger.Warn("failed to load breaker state, starting fresh", "error", err)
		}
	}

	return c
}

// Verify verifies a single email address. Rate-limit and open-circuit
// conditions fail fast without a network call; transient call failures
// are retried with exponential backoff, counting once toward the breaker
// after the retry budget is exhausted.
func (c *Client) Verify(ctx context.Context, email string) (*Result, error) {
	c.mu.Lock()
	now := c.now()
	if !c.breaker.allow(now) {
		c.persistLocked()
		c.mu.Unlock()
		return nil, ErrCircuitOpen
	}
	if retryAfter, ok := c.limiter.allow(now); !ok {
		c.persistLocked()
		c.mu.Unlock()
		return nil, &RateLimitedError{RetryAfterMs: retryAfter}
	}
	c.persistLocked()
	c.mu.Unlock()

	resp, err := c.callWithRetry(ctx, email)

	c.mu.Lock()
	if err != nil {
		c.breaker.recordFailure(c.now())
	} else {
		c.breaker.recordSuccess()
	}
	c.persistLocked()
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return mapResponse(resp), nil
}

// Credits returns the remaining verification credit balance
func (c *Client) Credits(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/credits", nil)
	if err != nil {
		return 0, fmt.Errorf("create credits request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("credits request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &APIError{StatusCode: resp.StatusCode}
	}

	var body struct {
		Credits int `json:"credits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, &APIError{StatusCode: resp.StatusCode, Message: "malformed credits response"}
	}
	return body.Credits, nil
}

// Reset clears limiter and breaker state, including the persisted copy.
// Exposed for tests and operational recovery.
func (c *Client) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.limiter.reset()
	c.breaker.reset()
	if c.state != nil {
		return c.state.Reset()
	}
	return nil
}

func (c *Client) persistLocked() {
	if c.state == nil {
		return
	}
	if err := c.state.save(keyWindow, c.limiter.state); err != nil {
		c.logger.Warn("failed to persist limiter state", "error", err)
	}
	if err := c.state.save(keyBreaker, c.breaker.state); err != nil {
		c.logger.Warn("failed to persist breaker state", "error", err)
	}
}

// providerResponse is the raw verification API body
type providerResponse struct {
	Status     string `json:"status"` // Valid, Invalid, Catch-All, Grey-listed, Spamtrap, Unknown
	Disposable bool   `json:"disposable"`
	Role       bool   `json:"role"`
	FreeDomain bool   `json:"free_domain"`
}

func (c *Client) callWithRetry(ctx context.Context, email string) (*providerResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.sleep(time.Duration(c.backoffMs) * time.Millisecond * (1 << (attempt - 1)))
		}

		resp, transient, err := c.doCall(ctx, email)
		if err == nil {
			return resp, nil
		}
		if !transient {
			return nil, err
		}
		lastErr = err
		c.logger.Debug("transient verification failure", "email", email, "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("verification retries exhausted: %w", lastErr)
}

// doCall performs one HTTP attempt. The second return value reports
// whether the failure is transient (timeout, network, 5xx, 429).
func (c *Client) doCall(ctx context.Context, email string) (*providerResponse, bool, error) {
	endpoint := c.baseURL + "/v1/verify?" + url.Values{"email": {email}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("verify request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, &APIError{StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, false, &APIError{StatusCode: resp.StatusCode}
	}

	var body providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, false, &APIError{StatusCode: resp.StatusCode, Message: "malformed verify response"}
	}
	return &body, false, nil
}

// mapResponse maps provider statuses onto the closed internal set.
// Disposable always overrides whatever status the provider reported.
func mapResponse(resp *providerResponse) *Result {
	r := &Result{
		ProviderStatus: resp.Status,
		Role:           resp.Role,
		FreeDomain:     resp.FreeDomain,
	}

	if resp.Disposable {
		r.Status = models.VerificationDisposable
		return r
	}

	switch resp.Status {
	case "Valid":
		r.Status = models.VerificationOK
	case "Invalid":
		r.Status = models.VerificationInvalid
	case "Catch-All":
		r.Status = models.VerificationCatchAll
	case "Grey-listed":
		r.Status = models.VerificationGreylisted
		r.RetryAfterHours = greylistRetryAfterHours
	case "Spamtrap":
		r.Status = models.VerificationSpamtrap
	default:
		r.Status = models.VerificationUnknown
	}
	return r
}
