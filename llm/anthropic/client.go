package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aschepis/backscratcher/toolchat/llm"
	"github.com/rs/zerolog"
)

// AnthropicClient implements the llm.Client interface for Anthropic's API.
type AnthropicClient struct {
	client    *anthropic.Client
	maxTokens int64
	logger    zerolog.Logger
}

// NewAnthropicClient creates a new AnthropicClient with the given API key.
// baseURL is optional and mostly useful for proxies and tests. maxTokens is used
// when a request does not set its own limit.
func NewAnthropicClient(apiKey, baseURL string, maxTokens int64, logger zerolog.Logger) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if maxTokens <= 0 {
		maxTokens = llm.DefaultAnthropicMaxTokens
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// retries are handled by llm.WithRetry
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := anthropic.NewClient(opts...)
	return &AnthropicClient{
		client:    &client,
		maxTokens: maxTokens,
		logger:    logger.With().Str("component", "anthropicClient").Logger(),
	}, nil
}

// Synchronous implements llm.Client.Synchronous.
func (c *AnthropicClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, convertAnthropicError(err)
	}

	resp := FromMessage(message)
	if resp.Usage.CacheCreationInputTokens > 0 || resp.Usage.CacheReadInputTokens > 0 {
		c.logger.Debug().
			Int64("input_tokens", resp.Usage.InputTokens).
			Int64("cache_creation_tokens", resp.Usage.CacheCreationInputTokens).
			Int64("cache_read_tokens", resp.Usage.CacheReadInputTokens).
			Msg("Prompt cache stats")
	}
	return resp, nil
}

func (c *AnthropicClient) buildParams(req *llm.Request) (anthropic.MessageNewParams, error) {
	anthropicMsgs, err := ToMessageParams(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("failed to convert messages: %w", err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  anthropicMsgs,
	}
	if len(req.Tools) > 0 {
		params.Tools = ToToolUnionParams(req.Tools)
	}
	if system := SystemPrompt(req); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	return params, nil
}

// convertAnthropicError converts Anthropic API errors to llm.Error types.
func convertAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return llm.NewTransportError("Anthropic request failed", err).WithProvider(llm.ProviderAnthropic)
	}

	llmErr := llm.NewStatusError(apiErr.StatusCode, "Anthropic API error", err).WithProvider(llm.ProviderAnthropic)
	if llmErr.Type == llm.ErrorTypeRateLimit && apiErr.Response != nil {
		if secs, convErr := strconv.Atoi(apiErr.Response.Header.Get("Retry-After")); convErr == nil && secs > 0 {
			retryAfter := time.Duration(secs) * time.Second
			llmErr.RetryAfter = &retryAfter
		}
	}
	return llmErr
}

var _ llm.Client = (*AnthropicClient)(nil)
