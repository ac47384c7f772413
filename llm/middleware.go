package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LoggingMiddleware logs every provider exchange at debug level and failures at warn.
type LoggingMiddleware struct {
	logger zerolog.Logger
}

// NewLoggingMiddleware creates a LoggingMiddleware tagged with the provider id.
func NewLoggingMiddleware(logger zerolog.Logger, provider string) *LoggingMiddleware {
	return &LoggingMiddleware{
		logger: logger.With().Str("component", "llm").Str("provider", provider).Logger(),
	}
}

// BeforeRequest implements Middleware.BeforeRequest.
func (m *LoggingMiddleware) BeforeRequest(ctx context.Context, req *Request) (*Request, error) {
	m.logger.Debug().
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Int("tools", len(req.Tools)).
		Msg("Sending provider request")
	return req, nil
}

// AfterResponse implements Middleware.AfterResponse.
func (m *LoggingMiddleware) AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	ev := m.logger.Debug().
		Str("model", req.Model).
		Str("stop_reason", resp.StopReason).
		Int("blocks", len(resp.Content))
	if resp.Usage != nil {
		ev = ev.Int64("input_tokens", resp.Usage.InputTokens).Int64("output_tokens", resp.Usage.OutputTokens)
	}
	ev.Msg("Received provider response")
	return resp, nil
}

// OnError implements Middleware.OnError.
func (m *LoggingMiddleware) OnError(ctx context.Context, req *Request, err error) error {
	m.logger.Warn().Err(err).Str("model", req.Model).Msg("Provider request failed")
	return err
}

// WithTimeout bounds each Synchronous call of client by d. A zero d disables the bound.
func WithTimeout(client Client, d time.Duration) Client {
	if d <= 0 {
		return client
	}
	return ClientFunc(func(ctx context.Context, req *Request) (*Response, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return client.Synchronous(ctx, req)
	})
}

var _ Middleware = (*LoggingMiddleware)(nil)
