package config

import (
	"context"
	"fmt"

	"github.com/aschepis/backscratcher/toolchat/llm"
	"github.com/rs/zerolog"
)

// NewLLMClient creates the provider client for key and decorates it with
// request logging and retries. Ollama calls are additionally bounded by the
// configured Ollama timeout.
func NewLLMClient(ctx context.Context, key *llm.ClientKey, cfg *ServerConfig, logger zerolog.Logger) (llm.Client, error) {
	if key == nil {
		return nil, fmt.Errorf("client key is required")
	}

	var (
		client llm.Client
		err    error
	)
	switch key.Provider {
	case llm.ProviderGemini:
		client, err = NewGeminiClient(ctx, key, logger)
	case llm.ProviderAnthropic:
		client, err = NewAnthropicClient(key, logger)
	case llm.ProviderOpenAI:
		client, err = NewOpenAIClient(key)
	case llm.ProviderOllama:
		client, err = NewOllamaClient(key)
		if err == nil && cfg != nil {
			client = llm.WithTimeout(client, seconds(cfg.Ollama.Timeout))
		}
	default:
		return nil, fmt.Errorf("unknown provider: %s", key.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", llm.DisplayName(key.Provider), err)
	}

	policy := llm.DefaultRetryPolicy()
	if cfg != nil {
		policy = cfg.RetryPolicy()
	}

	client = llm.WrapWithMiddleware(client, llm.NewLoggingMiddleware(logger, key.Provider))
	return llm.WithRetry(client, policy, logger), nil
}

// ClientFactory returns a factory suitable for chat.NewClientCache.
func ClientFactory(cfg *ServerConfig, logger zerolog.Logger) func(context.Context, *llm.ClientKey) (llm.Client, error) {
	return func(ctx context.Context, key *llm.ClientKey) (llm.Client, error) {
		return NewLLMClient(ctx, key, cfg, logger)
	}
}
