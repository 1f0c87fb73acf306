package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrAPI marks every failure of a call to the external text-generation API,
// including empty responses. Callers check it with errors.Is.
var ErrAPI = errors.New("AI API error")

// ErrMissingAPIKey is returned by NewClient when no credential was supplied.
var ErrMissingAPIKey = errors.New("API key is required")

// Response is the text returned by a provider plus usage accounting.
type Response struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
	Duration     time.Duration

	// Truncated is set when the provider stopped at the output token cap
	Truncated bool
}

// Provider is a single hosted text-generation backend.
// Implementations make exactly one request per call; retries live in Client.
type Provider interface {
	Name() string
	Complete(ctx context.Context, model, prompt string, maxOutputTokens int) (*Response, error)
}

// Config holds client configuration
type Config struct {
	Provider          string      // "gemini" or "anthropic"
	APIKey            string      // Credential for Provider
	Model             string      // Model name passed to the provider
	MaxOutputTokens   int         // Response cap (default: 8192)
	Retry             RetryConfig // Retry configuration (uses defaults if zero)
	RequestsPerMinute int         // Throttle (0 = unlimited)
	Out               io.Writer   // Usage and retry log (default: os.Stdout)
}

// Client sends prompts to a Provider with retries, a circuit breaker,
// a concurrency limit and an optional requests-per-minute limiter.
type Client struct {
	provider        Provider
	model           string
	maxOutputTokens int
	retry           RetryConfig
	circuitBreaker  *CircuitBreaker
	concurrencySem  *semaphore.Weighted
	limiter         *rate.Limiter
	out             io.Writer
}

// NewClient creates a Client for the configured provider.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "", ProviderGemini:
		p, err = NewGeminiProvider(ctx, cfg.APIKey)
	case ProviderAnthropic:
		p = NewAnthropicProvider(cfg.APIKey)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", cfg.Provider, err)
	}

	return NewClientWithProvider(p, cfg), nil
}

// NewClientWithProvider wraps an existing Provider. Used by NewClient and by tests.
func NewClientWithProvider(p Provider, cfg *Config) *Client {
	retry := cfg.Retry
	if retry == (RetryConfig{}) {
		retry = DefaultRetryConfig()
	}

	maxTokens := cfg.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	c := &Client{
		provider:        p,
		model:           cfg.Model,
		maxOutputTokens: maxTokens,
		retry:           retry,
		out:             out,
	}

	if retry.CircuitBreakerEnabled {
		c.circuitBreaker = NewCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout)
		c.circuitBreaker.out = out
	}
	if retry.MaxConcurrentCalls > 0 {
		c.concurrencySem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return c
}

// HealthCheck returns an error while the circuit breaker is open and its
// timeout has not yet passed.
func (c *Client) HealthCheck() error {
	if c.circuitBreaker == nil {
		return nil
	}
	if wait := c.circuitBreaker.openFor(); wait > 0 {
		_, failures, _ := c.circuitBreaker.GetMetrics()
		return fmt.Errorf("%w: %w (failures=%d, retry in %v)", ErrAPI, ErrCircuitOpen, failures, wait.Round(time.Second))
	}
	return nil
}

// Generate sends prompt to the provider and returns its text.
// Every failure, including an empty response, wraps ErrAPI.
func (c *Client) Generate(ctx context.Context, prompt string) (*Response, error) {
	startTime := time.Now()

	var response *Response
	err := c.retryWithBackoff(ctx, "generate", func(attemptCtx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(attemptCtx); err != nil {
				return fmt.Errorf("rate limiter: %w", err)
			}
		}
		resp, apiErr := c.provider.Complete(attemptCtx, c.model, prompt, c.maxOutputTokens)
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s call failed: %w", ErrAPI, c.provider.Name(), err)
	}

	if strings.TrimSpace(response.Text) == "" {
		return nil, fmt.Errorf("%w: %s returned an empty response (prompt length %d)", ErrAPI, c.provider.Name(), len(prompt))
	}

	response.Duration = time.Since(startTime)
	if response.Model == "" {
		response.Model = c.model
	}

	if response.Truncated {
		fmt.Fprintf(c.out, "warning: %s response hit max_tokens=%d, README may be cut off\n", response.Model, c.maxOutputTokens)
	}
	fmt.Fprintf(c.out, "AI %s call: input=%d tokens, output=%d tokens, duration=%v\n",
		c.provider.Name(), response.InputTokens, response.OutputTokens, response.Duration.Round(time.Millisecond))

	return response, nil
}
