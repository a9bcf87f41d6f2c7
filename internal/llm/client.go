package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wonny/autoquant/backend/internal/contracts"
	"github.com/wonny/autoquant/backend/internal/metrics"
	"github.com/wonny/autoquant/backend/pkg/config"
	"github.com/wonny/autoquant/backend/pkg/httputil"
	"github.com/wonny/autoquant/backend/pkg/logger"
	"github.com/wonny/autoquant/backend/pkg/redis"
)

// Supported providers
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// backend is one provider's wire protocol
type backend interface {
	name() string
	modelName() string
	call(ctx context.Context, req contracts.CompletionRequest, temperature float64) (*contracts.CompletionResponse, error)
}

// Client is the completion service used by AI screening.
// Each Complete call: cache lookup → (breaker → provider) under the retry policy → cost + cache store.
// ⭐ SSOT: 외부 LLM 호출은 이 클라이언트를 통해서만 수행
type Client struct {
	backend     backend
	http        *httputil.Client
	retry       httputil.RetryPolicy
	breaker     *gobreaker.CircuitBreaker
	cache       *redis.Cache
	cacheTTL    time.Duration
	temperature float64
	maxTokens   int
	costs       *CostTracker
	metrics     *metrics.Registry
	logger      *logger.Logger
}

// Option customises a Client
type Option func(*Client)

// WithRetryPolicy overrides the policy built from config
func WithRetryPolicy(p httputil.RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithCache enables the response cache
func WithCache(cache *redis.Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithSharedLimit adds the cross-process Redis rate limit
func WithSharedLimit(limiter *redis.RateLimiter, perMinute int) Option {
	return func(c *Client) {
		if perMinute > 0 {
			c.http.WithRateLimiter(limiter, redis.CompletionRateLimit(c.backend.name(), perMinute))
		}
	}
}

// WithMetrics records calls, cost and cache lookups
func WithMetrics(m *metrics.Registry) Option {
	return func(c *Client) { c.metrics = m }
}

// NewRetryPolicy builds the completion retry policy from config.
// Retries is the total number of attempts.
func NewRetryPolicy(ai config.AIConfig) httputil.RetryPolicy {
	return httputil.RetryPolicy{
		MaxAttempts: ai.Retries,
		BaseDelay:   ai.RetryDelay,
		Multiplier:  ai.RetryMultiplier,
		Sleep:       httputil.SleepContext,
	}
}

// New creates the completion client for the configured provider
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Client, error) {
	ai := cfg.AI
	if ai.APIKey == "" {
		return nil, fmt.Errorf("AI_API_KEY is required for provider %s", ai.Provider)
	}

	// 재시도는 호출 단위(RetryPolicy)로만 수행
	transport := httputil.NewWithTimeout(cfg, log, ai.Timeout).
		WithLocalLimit(ai.RequestsPerMinute)

	var b backend
	switch ai.Provider {
	case ProviderOpenAI:
		b = &openAIBackend{http: transport, baseURL: ai.BaseURL, apiKey: ai.APIKey, model: ai.Model}
	case ProviderAnthropic:
		b = &anthropicBackend{http: transport, baseURL: ai.BaseURL, apiKey: ai.APIKey, model: ai.Model}
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", ai.Provider)
	}

	c := &Client{
		backend:     b,
		http:        transport,
		retry:       NewRetryPolicy(ai),
		temperature: ai.Temperature,
		maxTokens:   ai.MaxTokens,
		costs:       NewCostTracker(ai.Provider, ai.DailyBudget, ai.MonthlyBudget),
		logger:      log.WithField("provider", ai.Provider),
	}
	c.breaker = newBreaker("completion:"+ai.Provider, c.logger)

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// newBreaker opens after 5 consecutive failures and half-opens again after a minute.
// Permanent replies (4xx other than 429) do not count as failures.
func newBreaker(name string, log *logger.Logger) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{Name: name}
	st.MaxRequests = 1
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}
	st.IsSuccessful = func(err error) bool {
		return err == nil || httputil.IsPermanent(err)
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		log.WithFields(map[string]interface{}{
			"breaker": name,
			"from":    from.String(),
			"to":      to.String(),
		}).Warn("Completion circuit breaker state changed")
	}
	return gobreaker.NewCircuitBreaker(st)
}

// Provider returns the provider name
func (c *Client) Provider() string {
	return c.backend.name()
}

// Model returns the configured model
func (c *Client) Model() string {
	return c.backend.modelName()
}

// Costs returns the cumulative cost summary
func (c *Client) Costs() CostSummary {
	return c.costs.Summary()
}

// RecordScreening counts one finished screening for the cost summary
func (c *Client) RecordScreening() {
	c.costs.RecordScreening()
}

// Complete sends one prompt. Exhausted retries, an open breaker or a
// non-retryable provider reply all surface as a ProviderError.
func (c *Client) Complete(ctx context.Context, req contracts.CompletionRequest) (*contracts.CompletionResponse, error) {
	provider := c.backend.name()
	temperature := c.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = c.maxTokens
	}

	cacheKey := redis.CompletionKey(provider, c.backend.modelName(), promptHash(req, temperature))
	if cached, ok := c.lookup(ctx, cacheKey); ok {
		return cached, nil
	}

	var resp *contracts.CompletionResponse
	attempts := 0
	err := c.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		attempts++
		out, err := c.breaker.Execute(func() (interface{}, error) {
			return c.backend.call(ctx, req, temperature)
		})
		if err != nil {
			c.metrics.RecordCompletion(provider, "failure", 0)
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return httputil.Permanent(err)
			}
			return err
		}
		resp = out.(*contracts.CompletionResponse)
		return nil
	}, func(attempt int, delay time.Duration, err error) {
		c.logger.WithFields(map[string]interface{}{
			"attempt": attempt + 1,
			"delay":   delay.String(),
			"error":   err.Error(),
		}).Warn("Completion attempt failed, retrying")
	})
	if err != nil {
		c.logger.WithError(err).WithField("attempts", attempts).Error("Completion failed")
		return nil, contracts.ProviderError("llm.Complete",
			fmt.Errorf("%s failed after %d attempt(s): %w", provider, attempts, err))
	}

	cost := EstimateCost(provider, resp.PromptTokens, resp.CompletionTokens)
	resp.CostUSD = cost.InexactFloat64()
	c.costs.RecordCall(cost)
	c.metrics.RecordCompletion(provider, "success", resp.CostUSD)

	c.logger.WithFields(map[string]interface{}{
		"model":             resp.Model,
		"prompt_tokens":     resp.PromptTokens,
		"completion_tokens": resp.CompletionTokens,
		"cost_usd":          resp.CostUSD,
		"attempts":          attempts,
	}).Info("Completion succeeded")

	c.store(ctx, cacheKey, resp)
	return resp, nil
}

func (c *Client) lookup(ctx context.Context, key string) (*contracts.CompletionResponse, bool) {
	if c.cache == nil {
		return nil, false
	}
	var cached contracts.CompletionResponse
	found, err := c.cache.Get(ctx, key, &cached)
	if err != nil {
		c.logger.WithError(err).Warn("Completion cache read failed")
		return nil, false
	}
	c.metrics.RecordCacheLookup(found)
	if !found {
		return nil, false
	}
	c.costs.RecordCacheHit()
	cached.FromCache = true
	cached.CostUSD = 0
	c.logger.Debug("Completion served from cache")
	return &cached, true
}

func (c *Client) store(ctx context.Context, key string, resp *contracts.CompletionResponse) {
	if c.cache == nil || resp.Text == "" {
		return
	}
	if err := c.cache.Set(ctx, key, resp, c.cacheTTL); err != nil {
		c.logger.WithError(err).Warn("Completion cache write failed")
	}
}

func promptHash(req contracts.CompletionRequest, temperature float64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%.3f|%d|%t|", temperature, req.MaxTokens, req.JSONMode)
	h.Write([]byte(req.Prompt))
	return hex.EncodeToString(h.Sum(nil))
}
