package llm

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/JonMunkholm/WebDbChat/internal/errors"
	"github.com/JonMunkholm/WebDbChat/internal/logging"
	"github.com/JonMunkholm/WebDbChat/internal/metrics"
)

const (
	defaultMaxTokens   = 256
	defaultTemperature = 0.1
	defaultTimeout     = 30 * time.Second
	maxAttempts        = 2
)

// Client wraps a Provider with a token budget, a per-attempt deadline and a
// single retry for transient failures. It never interprets the output.
type Client struct {
	provider    Provider
	maxTokens   int
	temperature float64
	timeout     time.Duration
	retryDelay  time.Duration
	logger      *zap.Logger
}

// NewClient builds a Client from cfg. Zero values fall back to defaults:
// 256 tokens, temperature 0.1, 30s per attempt.
func NewClient(provider Provider, cfg Config, logger *zap.Logger) *Client {
	c := &Client{
		provider:    provider,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		retryDelay:  500 * time.Millisecond,
		logger:      logging.OrNop(logger),
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	if c.temperature <= 0 {
		c.temperature = defaultTemperature
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	return c
}

// Name returns the wrapped provider's name.
func (c *Client) Name() string { return c.provider.Name() }

// Generate returns raw model text for prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	req := GenerateRequest{Prompt: prompt, MaxTokens: c.maxTokens, Temperature: c.temperature}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.IncrementGenerationRetry(c.provider.Name())
			select {
			case <-ctx.Done():
				return "", apperrors.Wrap(ctx.Err(), apperrors.KindGenerationFailed, "generation canceled")
			case <-time.After(c.retryDelay):
			}
		}

		text, err := c.attempt(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if apperrors.IsKind(err, apperrors.KindGenerationTimeout) || !transient(err) || ctx.Err() != nil {
			break
		}
		c.logger.Warn("generation attempt failed, retrying",
			zap.String("provider", c.provider.Name()),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	if apperrors.IsKind(lastErr, apperrors.KindGenerationTimeout) {
		return "", lastErr
	}
	return "", apperrors.Wrap(lastErr, apperrors.KindGenerationFailed, "generation failed")
}

func (c *Client) attempt(ctx context.Context, req GenerateRequest) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	text, err := c.provider.Generate(attemptCtx, req)
	metrics.ObserveGeneration(c.provider.Name(), time.Since(start))
	if err == nil {
		return text, nil
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return "", apperrors.Wrapf(err, apperrors.KindGenerationTimeout, "generation exceeded %s", c.timeout)
	}
	return "", err
}

func transient(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
