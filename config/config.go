package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/aschepis/backscratcher/toolchat/llm"
	"gopkg.in/yaml.v3"
)

// GeminiConfig represents configuration for the Gemini LLM provider.
type GeminiConfig struct {
	APIKey string `yaml:"api_key,omitempty"` // Google API key
	Model  string `yaml:"model,omitempty"`   // Default model name
}

// AnthropicConfig represents configuration for Anthropic LLM provider.
type AnthropicConfig struct {
	APIKey    string `yaml:"api_key,omitempty"`    // Anthropic API key
	BaseURL   string `yaml:"base_url,omitempty"`   // Custom base URL (default: official API)
	Model     string `yaml:"model,omitempty"`      // Default model name
	MaxTokens int64  `yaml:"max_tokens,omitempty"` // Output token limit per request
}

// OllamaConfig represents configuration for Ollama LLM provider.
type OllamaConfig struct {
	Host    string `yaml:"host,omitempty"`    // Ollama host (default: "http://localhost:11434")
	Model   string `yaml:"model,omitempty"`   // Default model name
	Timeout int    `yaml:"timeout,omitempty"` // Request timeout in seconds
}

// OpenAIConfig represents configuration for OpenAI LLM provider.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key,omitempty"`      // OpenAI API key
	BaseURL      string `yaml:"base_url,omitempty"`     // Custom base URL (default: official API)
	Model        string `yaml:"model,omitempty"`        // Default model name
	Organization string `yaml:"organization,omitempty"` // Organization ID
}

// BackendConfig points at the conversation store service.
type BackendConfig struct {
	URL        string `yaml:"url,omitempty"`
	Timeout    int    `yaml:"timeout,omitempty"`     // Per-request timeout in seconds
	MaxRetries uint64 `yaml:"max_retries,omitempty"` // Retries of 5xx and transport failures
}

// MCPConfig tunes tool server sessions.
type MCPConfig struct {
	ClientName    string `yaml:"client_name,omitempty"`
	ClientVersion string `yaml:"client_version,omitempty"`
	ToolTimeout   int    `yaml:"tool_timeout,omitempty"`   // Seconds per tools/call
	IdleTimeout   int    `yaml:"idle_timeout,omitempty"`   // Seconds before an unused session is closed
	SweepSchedule string `yaml:"sweep_schedule,omitempty"` // cron spec, e.g. "@every 5m"
}

// RetryConfig bounds provider retries.
type RetryConfig struct {
	MaxRetries      uint64 `yaml:"max_retries,omitempty"`
	InitialInterval int    `yaml:"initial_interval_ms,omitempty"`
	MaxInterval     int    `yaml:"max_interval_ms,omitempty"`
}

// StoreConfig configures the reference conversation store service.
type StoreConfig struct {
	Address string `yaml:"address,omitempty"`
	DBPath  string `yaml:"db_path,omitempty"`
}

// ServerConfig represents server-side configuration for the toolchatd gateway
// and the convstored backend.
type ServerConfig struct {
	// Server settings
	Server struct {
		Address string `yaml:"address,omitempty"` // HTTP listen address (default: :3000)
	} `yaml:"server,omitempty"`

	// LLM provider configurations
	Gemini    GeminiConfig    `yaml:"gemini,omitempty"`
	Anthropic AnthropicConfig `yaml:"anthropic,omitempty"`
	Ollama    OllamaConfig    `yaml:"ollama,omitempty"`
	OpenAI    OpenAIConfig    `yaml:"openai,omitempty"`

	LLMProviders    []string    `yaml:"llm_providers,omitempty"`
	DefaultProvider string      `yaml:"default_provider,omitempty"`
	SystemPrompt    string      `yaml:"system_prompt,omitempty"`
	TurnTimeout     int         `yaml:"turn_timeout,omitempty"` // Seconds per chat turn
	Retry           RetryConfig `yaml:"retry,omitempty"`

	Backend BackendConfig `yaml:"backend,omitempty"`
	MCP     MCPConfig     `yaml:"mcp,omitempty"`
	Store   StoreConfig   `yaml:"store,omitempty"`
}

// ClientConfig represents client-side configuration for the toolchat CLI.
type ClientConfig struct {
	GatewayURL  string `yaml:"gateway_url,omitempty"`
	UserID      string `yaml:"user_id,omitempty"`
	Provider    string `yaml:"provider,omitempty"`     // Provider id sent with each turn
	ChatTimeout int    `yaml:"chat_timeout,omitempty"` // Timeout in seconds for chat operations (default: 120)
}

// GetServerConfigPath returns the default server config file path.
// Can be overridden via TOOLCHAT_CONFIG_PATH environment variable.
func GetServerConfigPath() string {
	if envPath := os.Getenv("TOOLCHAT_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.toolchat/config.yaml"
	}
	return filepath.Join(homeDir, ".toolchat", "config.yaml")
}

// GetClientConfigPath returns the default client config file path.
// Can be overridden via TOOLCHAT_CLIENT_CONFIG_PATH environment variable.
func GetClientConfigPath() string {
	if envPath := os.Getenv("TOOLCHAT_CLIENT_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.toolchat/cli.yaml"
	}
	return filepath.Join(homeDir, ".toolchat", "cli.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// SaveServerConfig saves the server configuration to the specified path.
func SaveServerConfig(cfg *ServerConfig, path string) error {
	return saveYAML(cfg, path)
}

// SaveClientConfig saves the client configuration to the specified path.
func SaveClientConfig(cfg *ClientConfig, path string) error {
	return saveYAML(cfg, path)
}

func saveYAML(v interface{}, path string) error {
	expandedPath := expandPath(path)

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DefaultServerConfig returns the configuration used before any file or
// environment override is applied.
func DefaultServerConfig() ServerConfig {
	cfg := ServerConfig{
		Gemini: GeminiConfig{
			Model: llm.DefaultGeminiModel,
		},
		Anthropic: AnthropicConfig{
			Model:     llm.DefaultAnthropicModel,
			MaxTokens: llm.DefaultAnthropicMaxTokens,
		},
		Ollama: OllamaConfig{
			Host:    llm.DefaultOllamaHost,
			Timeout: 60,
		},
		OpenAI: OpenAIConfig{
			Model: llm.DefaultOpenAIModel,
		},
		LLMProviders:    []string{llm.ProviderGemini, llm.ProviderAnthropic, llm.ProviderOpenAI},
		DefaultProvider: llm.DefaultProvider,
		TurnTimeout:     120,
		Retry: RetryConfig{
			MaxRetries:      3,
			InitialInterval: 500,
			MaxInterval:     10000,
		},
		Backend: BackendConfig{
			URL:        "http://localhost:3333",
			Timeout:    10,
			MaxRetries: 3,
		},
		MCP: MCPConfig{
			ClientName:    "toolchat",
			ClientVersion: "1.0.0",
			ToolTimeout:   60,
			IdleTimeout:   1800,
			SweepSchedule: "@every 5m",
		},
		Store: StoreConfig{
			Address: ":3333",
			DBPath:  "conversations.db",
		},
	}
	cfg.Server.Address = ":3000"
	return cfg
}

// LoadServerConfig loads server-side configuration.
// Defaults are overridden by the file at path (if it exists) and then by
// environment variables.
func LoadServerConfig(path string) (*ServerConfig, error) {
	defaults := DefaultServerConfig()

	expandedPath := expandPath(path)
	if expandedPath != "" {
		if _, err := os.Stat(expandedPath); err == nil {
			data, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
			if err != nil {
				return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
			}

			var fileConfig ServerConfig
			if err := yaml.Unmarshal(data, &fileConfig); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}

			if err := mergo.Merge(&defaults, fileConfig, mergo.WithOverride); err != nil {
				return nil, fmt.Errorf("failed to merge config: %w", err)
			}
		}
	}

	applyEnvOverrides(&defaults)
	return &defaults, nil
}

// applyEnvOverrides applies environment variables that are not owned by a
// single provider loader.
func applyEnvOverrides(cfg *ServerConfig) {
	if v := os.Getenv("BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv("TOOLCHAT_ADDR"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("TOOLCHAT_DEFAULT_PROVIDER"); v != "" {
		cfg.DefaultProvider = v
	}
}

// ProviderConfig assembles the provider registry configuration from every
// provider section, with environment overrides applied.
func (c *ServerConfig) ProviderConfig() *llm.ProviderConfig {
	geminiKey, geminiModel := LoadGeminiConfig(c)
	anthropicKey, anthropicURL, anthropicModel, anthropicMax := LoadAnthropicConfig(c)
	openAIKey, openAIURL, openAIModel, openAIOrg := LoadOpenAIConfig(c)
	ollamaHost, ollamaModel := LoadOllamaConfig(c)

	return &llm.ProviderConfig{
		GeminiAPIKey:       geminiKey,
		GeminiModel:        geminiModel,
		AnthropicAPIKey:    anthropicKey,
		AnthropicBaseURL:   anthropicURL,
		AnthropicModel:     anthropicModel,
		AnthropicMaxTokens: anthropicMax,
		OllamaHost:         ollamaHost,
		OllamaModel:        ollamaModel,
		OpenAIAPIKey:       openAIKey,
		OpenAIBaseURL:      openAIURL,
		OpenAIModel:        openAIModel,
		OpenAIOrg:          openAIOrg,
	}
}

// NewProviderRegistry builds the provider registry described by the config.
func (c *ServerConfig) NewProviderRegistry() *llm.ProviderRegistry {
	return llm.NewProviderRegistry(c.ProviderConfig(), c.LLMProviders, c.DefaultProvider)
}

// RetryPolicy converts the retry section to an llm.RetryPolicy.
func (c *ServerConfig) RetryPolicy() llm.RetryPolicy {
	policy := llm.DefaultRetryPolicy()
	policy.MaxRetries = c.Retry.MaxRetries
	if c.Retry.InitialInterval > 0 {
		policy.InitialInterval = time.Duration(c.Retry.InitialInterval) * time.Millisecond
	}
	if c.Retry.MaxInterval > 0 {
		policy.MaxInterval = time.Duration(c.Retry.MaxInterval) * time.Millisecond
	}
	return policy
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

// TurnTimeoutDuration returns the per-turn bound, zero meaning none.
func (c *ServerConfig) TurnTimeoutDuration() time.Duration { return seconds(c.TurnTimeout) }

// ToolTimeoutDuration returns the per-tool-call bound, zero meaning none.
func (c *ServerConfig) ToolTimeoutDuration() time.Duration { return seconds(c.MCP.ToolTimeout) }

// IdleTimeoutDuration returns how long an unused tool session is kept.
func (c *ServerConfig) IdleTimeoutDuration() time.Duration { return seconds(c.MCP.IdleTimeout) }

// BackendTimeoutDuration returns the per-request bound for backend calls.
func (c *ServerConfig) BackendTimeoutDuration() time.Duration { return seconds(c.Backend.Timeout) }

// LoadClientConfig loads client-side configuration.
// Returns defaults if config file doesn't exist.
func LoadClientConfig(path string) (*ClientConfig, error) {
	defaults := ClientConfig{
		GatewayURL:  "http://localhost:3000",
		UserID:      "default-user",
		ChatTimeout: 120,
	}

	expandedPath := expandPath(path)
	data, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
	if err != nil {
		if os.IsNotExist(err) {
			applyClientEnvOverrides(&defaults)
			return &defaults, nil
		}
		return nil, fmt.Errorf("failed to read client config file %q: %w", expandedPath, err)
	}

	var fileConfig ClientConfig
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	if err := mergo.Merge(&defaults, fileConfig, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge client config: %w", err)
	}

	applyClientEnvOverrides(&defaults)
	return &defaults, nil
}

func applyClientEnvOverrides(cfg *ClientConfig) {
	if v := os.Getenv("TOOLCHAT_GATEWAY_URL"); v != "" {
		cfg.GatewayURL = v
	}
	if v := os.Getenv("TOOLCHAT_USER_ID"); v != "" {
		cfg.UserID = v
	}
}
