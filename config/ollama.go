package config

import (
	"fmt"
	"os"

	"github.com/aschepis/backscratcher/toolchat/llm"
	llmollama "github.com/aschepis/backscratcher/toolchat/llm/ollama"
)

// LoadOllamaConfig loads Ollama configuration from server config.
// It returns the host and model to use for creating an Ollama client.
func LoadOllamaConfig(cfg *ServerConfig) (host, model string) {
	if cfg == nil {
		host = getOllamaHostFromEnv()
		model = getOllamaModelFromEnv()
	} else {
		host = cfg.Ollama.Host
		model = cfg.Ollama.Model

		// Apply environment variable overrides
		if envHost := getOllamaHostFromEnv(); envHost != "" {
			host = envHost
		}
		if envModel := getOllamaModelFromEnv(); envModel != "" {
			model = envModel
		}
	}

	// Set defaults if still empty
	if host == "" {
		host = llm.DefaultOllamaHost
	}

	return host, model
}

// NewOllamaClient creates a new Ollama LLM client for a resolved client key.
func NewOllamaClient(key *llm.ClientKey) (*llmollama.OllamaClient, error) {
	if key == nil || key.Provider != llm.ProviderOllama {
		return nil, fmt.Errorf("not an ollama client key")
	}
	return llmollama.NewOllamaClient(key.Host, key.Model)
}

// getOllamaHostFromEnv gets the Ollama host from environment variable.
func getOllamaHostFromEnv() string {
	return os.Getenv("OLLAMA_HOST")
}

// getOllamaModelFromEnv gets the Ollama model from environment variable.
func getOllamaModelFromEnv() string {
	return os.Getenv("OLLAMA_MODEL")
}
