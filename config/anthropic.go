package config

import (
	"fmt"
	"os"

	"github.com/aschepis/backscratcher/toolchat/llm"
	llmanthropic "github.com/aschepis/backscratcher/toolchat/llm/anthropic"
	"github.com/rs/zerolog"
)

// LoadAnthropicConfig loads Anthropic configuration from server config.
// It returns the API key, base URL, model and output token limit to use for
// creating an Anthropic client.
func LoadAnthropicConfig(cfg *ServerConfig) (apiKey, baseURL, model string, maxTokens int64) {
	if cfg == nil {
		return getAnthropicAPIKeyFromEnv(), "", llm.DefaultAnthropicModel, llm.DefaultAnthropicMaxTokens
	}

	apiKey = cfg.Anthropic.APIKey
	baseURL = cfg.Anthropic.BaseURL
	model = cfg.Anthropic.Model
	maxTokens = cfg.Anthropic.MaxTokens

	if envAPIKey := getAnthropicAPIKeyFromEnv(); envAPIKey != "" {
		apiKey = envAPIKey
	}
	if model == "" {
		model = llm.DefaultAnthropicModel
	}
	if maxTokens <= 0 {
		maxTokens = llm.DefaultAnthropicMaxTokens
	}

	return apiKey, baseURL, model, maxTokens
}

// NewAnthropicClient creates a new Anthropic LLM client for a resolved client key.
func NewAnthropicClient(key *llm.ClientKey, logger zerolog.Logger) (*llmanthropic.AnthropicClient, error) {
	if key == nil || key.Provider != llm.ProviderAnthropic {
		return nil, fmt.Errorf("not an anthropic client key")
	}
	return llmanthropic.NewAnthropicClient(key.APIKey, key.BaseURL, key.MaxTokens, logger)
}

// getAnthropicAPIKeyFromEnv gets the Anthropic API key from environment variable.
func getAnthropicAPIKeyFromEnv() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}
