package config

import (
	"context"
	"fmt"
	"os"

	"github.com/aschepis/backscratcher/toolchat/llm"
	llmgemini "github.com/aschepis/backscratcher/toolchat/llm/gemini"
	"github.com/rs/zerolog"
)

// LoadGeminiConfig loads Gemini configuration from server config.
// It returns the API key and model to use for creating a Gemini client.
func LoadGeminiConfig(cfg *ServerConfig) (apiKey, model string) {
	if cfg == nil {
		return getGeminiAPIKeyFromEnv(), llm.DefaultGeminiModel
	}

	apiKey = cfg.Gemini.APIKey
	model = cfg.Gemini.Model

	if envAPIKey := getGeminiAPIKeyFromEnv(); envAPIKey != "" {
		apiKey = envAPIKey
	}
	if model == "" {
		model = llm.DefaultGeminiModel
	}

	return apiKey, model
}

// NewGeminiClient creates a new Gemini LLM client for a resolved client key.
func NewGeminiClient(ctx context.Context, key *llm.ClientKey, logger zerolog.Logger) (*llmgemini.GeminiClient, error) {
	if key == nil || key.Provider != llm.ProviderGemini {
		return nil, fmt.Errorf("not a gemini client key")
	}
	return llmgemini.NewGeminiClient(ctx, key.APIKey, key.Model, logger)
}

// getGeminiAPIKeyFromEnv gets the Google API key from environment variable.
func getGeminiAPIKeyFromEnv() string {
	return os.Getenv("GOOGLE_API_KEY")
}
