package llm

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// Provider identifiers accepted in turn requests.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "claude"
	ProviderOpenAI    = "chatgpt"
	ProviderOllama    = "ollama"

	// DefaultProvider is used when a request names no provider or an unknown one.
	DefaultProvider = ProviderGemini
)

const (
	DefaultGeminiModel        = "gemini-2.0-flash-exp"
	DefaultAnthropicModel     = "claude-3-5-sonnet-20241022"
	DefaultAnthropicMaxTokens = 4000
	DefaultOpenAIModel        = "gpt-4"
	DefaultOllamaHost         = "http://localhost:11434"
)

var displayNames = map[string]string{
	ProviderGemini:    "Gemini",
	ProviderAnthropic: "Claude",
	ProviderOpenAI:    "OpenAI",
	ProviderOllama:    "Ollama",
}

// DisplayName returns the human-facing provider name used in error messages.
func DisplayName(provider string) string {
	if name, ok := displayNames[provider]; ok {
		return name
	}
	return provider
}

// ClientKey uniquely identifies an LLM client configuration.
type ClientKey struct {
	Provider     string
	Model        string
	MaxTokens    int64
	APIKey       string // For credential-based providers
	Host         string // For Ollama
	BaseURL      string // For OpenAI and Anthropic
	Organization string // For OpenAI
}

// ProviderConfig holds the configuration needed for provider registry.
// This avoids import cycles by not importing the config package.
type ProviderConfig struct {
	GeminiAPIKey string
	GeminiModel  string

	AnthropicAPIKey    string
	AnthropicBaseURL   string
	AnthropicModel     string
	AnthropicMaxTokens int64

	OllamaHost  string
	OllamaModel string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	OpenAIOrg     string
}

// ProviderStatus describes one provider for listing endpoints.
type ProviderStatus struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
	Default    bool   `json:"default"`
}

// ProviderRegistry manages provider selection and configuration resolution.
// Client creation and caching is handled by the caller to avoid import cycles.
type ProviderRegistry struct {
	enabledProviders map[string]bool // Set of enabled providers
	defaultProvider  string
	mu               sync.RWMutex
	config           *ProviderConfig
}

// NewProviderRegistry creates a new ProviderRegistry with the given config and enabled providers.
// An empty defaultProvider selects DefaultProvider.
func NewProviderRegistry(providerConfig *ProviderConfig, enabledProviders []string, defaultProvider string) *ProviderRegistry {
	enabledMap := make(map[string]bool)
	for _, p := range enabledProviders {
		enabledMap[strings.ToLower(strings.TrimSpace(p))] = true
	}
	if defaultProvider == "" {
		defaultProvider = DefaultProvider
	}
	if providerConfig == nil {
		providerConfig = &ProviderConfig{}
	}

	return &ProviderRegistry{
		enabledProviders: enabledMap,
		defaultProvider:  defaultProvider,
		config:           providerConfig,
	}
}

// DefaultProvider returns the provider used when a request does not name a known one.
func (r *ProviderRegistry) DefaultProvider() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultProvider
}

// IsProviderEnabled checks if a provider is in the enabled providers list.
func (r *ProviderRegistry) IsProviderEnabled(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabledProviders[provider]
}

// Resolve maps a requested provider id to the provider that will serve it.
// Empty, unknown or disabled ids resolve to the default provider.
func (r *ProviderRegistry) Resolve(requested string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id := strings.ToLower(strings.TrimSpace(requested))
	if _, known := displayNames[id]; known && r.enabledProviders[id] {
		return id
	}
	return r.defaultProvider
}

// IsProviderConfigured checks if a provider has the required configuration (API keys, hosts, etc.).
func (r *ProviderRegistry) IsProviderConfigured(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isProviderConfiguredUnlocked(provider)
}

// Providers lists every enabled provider, sorted by id.
func (r *ProviderRegistry) Providers() []ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ProviderStatus
	for id := range r.enabledProviders {
		if _, known := displayNames[id]; !known {
			continue
		}
		out = append(out, ProviderStatus{
			ID:         id,
			Name:       DisplayName(id),
			Configured: r.isProviderConfiguredUnlocked(id),
			Default:    id == r.defaultProvider,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// isProviderConfiguredUnlocked is the unlocked version of IsProviderConfigured.
// Must be called with r.mu already locked.
func (r *ProviderRegistry) isProviderConfiguredUnlocked(provider string) bool {
	switch provider {
	case ProviderGemini:
		return r.geminiAPIKey() != ""
	case ProviderAnthropic:
		return r.anthropicAPIKey() != ""
	case ProviderOllama:
		// Ollama doesn't require API key, just a model to run
		return r.ollamaModel() != ""
	case ProviderOpenAI:
		return r.openAIAPIKey() != ""
	default:
		return false
	}
}

// ResolveClientKey returns the client configuration for a provider.
func (r *ProviderRegistry) ResolveClientKey(provider string) (*ClientKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := &ClientKey{Provider: provider}

	switch provider {
	case ProviderGemini:
		key.APIKey = r.geminiAPIKey()
		if key.APIKey == "" {
			return nil, fmt.Errorf("gemini API key not configured")
		}
		key.Model = firstNonEmpty(r.config.GeminiModel, DefaultGeminiModel)

	case ProviderAnthropic:
		key.APIKey = r.anthropicAPIKey()
		if key.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key not configured")
		}
		key.BaseURL = r.config.AnthropicBaseURL
		key.Model = firstNonEmpty(r.config.AnthropicModel, DefaultAnthropicModel)
		key.MaxTokens = r.config.AnthropicMaxTokens
		if key.MaxTokens <= 0 {
			key.MaxTokens = DefaultAnthropicMaxTokens
		}

	case ProviderOllama:
		key.Host = firstNonEmpty(r.config.OllamaHost, os.Getenv("OLLAMA_HOST"), DefaultOllamaHost)
		key.Model = r.ollamaModel()
		if key.Model == "" {
			return nil, fmt.Errorf("ollama model not specified and no default configured")
		}

	case ProviderOpenAI:
		key.APIKey = r.openAIAPIKey()
		if key.APIKey == "" {
			return nil, fmt.Errorf("openai API key not configured")
		}
		key.BaseURL = firstNonEmpty(r.config.OpenAIBaseURL, os.Getenv("OPENAI_BASE_URL"))
		key.Organization = firstNonEmpty(r.config.OpenAIOrg, os.Getenv("OPENAI_ORG_ID"))
		key.Model = firstNonEmpty(r.config.OpenAIModel, os.Getenv("OPENAI_MODEL"), DefaultOpenAIModel)

	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	return key, nil
}

func (r *ProviderRegistry) geminiAPIKey() string {
	return firstNonEmpty(r.config.GeminiAPIKey, os.Getenv("GOOGLE_API_KEY"))
}

func (r *ProviderRegistry) anthropicAPIKey() string {
	return firstNonEmpty(r.config.AnthropicAPIKey, os.Getenv("ANTHROPIC_API_KEY"))
}

func (r *ProviderRegistry) openAIAPIKey() string {
	return firstNonEmpty(r.config.OpenAIAPIKey, os.Getenv("OPENAI_API_KEY"))
}

func (r *ProviderRegistry) ollamaModel() string {
	return firstNonEmpty(r.config.OllamaModel, os.Getenv("OLLAMA_MODEL"))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
