package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// RetryPolicy bounds how often a retryable provider error is retried.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxElapsedTime:  time.Minute,
	}
}

func (p RetryPolicy) backOff(retryAfter *time.Duration) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	if retryAfter != nil && *retryAfter > eb.InitialInterval {
		eb.InitialInterval = *retryAfter
	}
	eb.MaxInterval = p.MaxInterval
	if eb.MaxInterval < eb.InitialInterval {
		eb.MaxInterval = eb.InitialInterval
	}
	eb.MaxElapsedTime = p.MaxElapsedTime
	eb.Reset()
	return backoff.WithMaxRetries(eb, p.MaxRetries)
}

type retryClient struct {
	client Client
	policy RetryPolicy
	logger zerolog.Logger
}

// WithRetry wraps client so that retryable errors (rate limits, 5xx, transport
// failures) are retried with exponential backoff. Other errors return at once.
func WithRetry(client Client, policy RetryPolicy, logger zerolog.Logger) Client {
	if policy.MaxRetries == 0 {
		return client
	}
	return &retryClient{
		client: client,
		policy: policy,
		logger: logger.With().Str("component", "llmRetry").Logger(),
	}
}

func (c *retryClient) Synchronous(ctx context.Context, req *Request) (*Response, error) {
	var b backoff.BackOff
	for attempt := 1; ; attempt++ {
		resp, err := c.client.Synchronous(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !IsRetryableError(err) {
			return nil, err
		}

		// The first failure decides the starting interval so a provider's
		// retry-after hint is honored.
		if b == nil {
			b = c.policy.backOff(ExtractRetryAfter(err))
		}
		next := b.NextBackOff()
		if next == backoff.Stop {
			c.logger.Error().Err(err).Int("attempts", attempt).Msg("Provider request failed after retries")
			return nil, err
		}

		c.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("next_delay", next).
			Str("model", req.Model).
			Msg("Retrying provider request")

		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

var _ Client = (*retryClient)(nil)
