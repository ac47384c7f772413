package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/aschepis/backscratcher/toolchat/llm"
	"github.com/rs/zerolog"
)

// ClientFactory builds a provider client for a resolved client key.
type ClientFactory func(ctx context.Context, key *llm.ClientKey) (llm.Client, error)

// ClientCache builds provider clients on first use and reuses them for
// every turn with the same configuration.
type ClientCache struct {
	mu      sync.RWMutex
	clients map[string]llm.Client
	factory ClientFactory
	logger  zerolog.Logger
}

// NewClientCache creates an empty cache over factory.
func NewClientCache(factory ClientFactory, logger zerolog.Logger) *ClientCache {
	return &ClientCache{
		clients: make(map[string]llm.Client),
		factory: factory,
		logger:  logger.With().Str("component", "clientCache").Logger(),
	}
}

func cacheKey(key *llm.ClientKey) string {
	return fmt.Sprintf("%s:%s:%d:%s:%s:%s:%s", key.Provider, key.Model, key.MaxTokens, key.APIKey, key.Host, key.BaseURL, key.Organization)
}

// Get returns the cached client for key, creating it if needed.
func (c *ClientCache) Get(ctx context.Context, key *llm.ClientKey) (llm.Client, error) {
	k := cacheKey(key)

	c.mu.RLock()
	client, ok := c.clients[k]
	c.mu.RUnlock()
	if ok {
		return client, nil
	}

	// Not cached: build without holding the lock
	client, err := c.factory(ctx, key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.clients[k]; ok {
		return existing, nil
	}
	c.clients[k] = client
	c.logger.Info().Str("provider", key.Provider).Str("model", key.Model).Msg("Created LLM client")
	return client, nil
}

// Len returns the number of cached clients.
func (c *ClientCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.clients)
}
