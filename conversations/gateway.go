package conversations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aschepis/backscratcher/toolchat/chat"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// DefaultBackendURL is used when no backend URL is configured.
const DefaultBackendURL = "http://localhost:3333"

// GatewayOptions tune backend calls.
type GatewayOptions struct {
	HTTPClient *http.Client
	// MaxRetries bounds retries of a call that failed with a 5xx status or a
	// transport error. Zero disables retries.
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultGatewayOptions returns the options used by NewGateway callers that
// have no configuration of their own.
func DefaultGatewayOptions() GatewayOptions {
	return GatewayOptions{
		HTTPClient:      &http.Client{Timeout: 10 * time.Second},
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// Gateway is a REST client for the conversation backend. It implements
// chat.Persister.
type Gateway struct {
	baseURL string
	opts    GatewayOptions
	logger  zerolog.Logger
}

// NewGateway creates a gateway for the backend at baseURL.
func NewGateway(baseURL string, opts GatewayOptions, logger zerolog.Logger) *Gateway {
	if baseURL == "" {
		baseURL = DefaultBackendURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    opts,
		logger:  logger.With().Str("component", "conversationGateway").Logger(),
	}
}

var _ chat.Persister = (*Gateway)(nil)

// Save stores a finished turn. A conversation without an id is created with
// the whole history; otherwise the new messages are appended one by one and
// the conversation's last provider is updated. Failures are logged and
// reported as a nil id.
func (g *Gateway) Save(ctx context.Context, req chat.SaveRequest) *string {
	logger := g.logger.With().Str("caller_id", req.CallerID).Str("provider", req.ProviderID).Logger()

	if req.ConversationID == nil || *req.ConversationID == "" {
		var first interface{}
		if len(req.History) > 0 {
			first = req.History[0].Content
		}
		messages := make([]NewMessage, len(req.History))
		for i, msg := range req.History {
			messages[i] = toNewMessage(msg, req.ProviderID, i >= req.FirstNew, req.ToolResults)
		}
		conv, err := g.Create(ctx, CreateRequest{
			UserID:   req.CallerID,
			Title:    Title(first),
			LastLLM:  req.ProviderID,
			Messages: messages,
		})
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create conversation")
			return nil
		}
		logger.Info().Str("conversation_id", conv.ID).Int("messages", len(messages)).Msg("Created conversation")
		return &conv.ID
	}

	id := *req.ConversationID
	logger = logger.With().Str("conversation_id", id).Logger()
	for i, msg := range req.NewMessages {
		if _, err := g.AppendMessage(ctx, id, toNewMessage(msg, req.ProviderID, true, req.ToolResults)); err != nil {
			logger.Error().Err(err).Int("saved", i).Int("total", len(req.NewMessages)).Msg("Failed to append message")
			return nil
		}
	}
	provider := req.ProviderID
	if _, err := g.Update(ctx, id, UpdateRequest{LastLLM: &provider}); err != nil {
		logger.Error().Err(err).Msg("Failed to update conversation")
		return nil
	}
	return &id
}

func toNewMessage(msg chat.Message, provider string, current bool, results []chat.ToolResult) NewMessage {
	out := NewMessage{Role: msg.Role, Content: msg.Content}
	if msg.Role != chat.RoleAssistant {
		return out
	}
	out.LLMProvider = &provider
	if current && len(results) > 0 {
		out.ToolResults = results
	}
	return out
}

// Create creates a conversation.
func (g *Gateway) Create(ctx context.Context, req CreateRequest) (*Conversation, error) {
	var conv Conversation
	if err := g.do(ctx, http.MethodPost, "/api/conversations", req, &conv); err != nil {
		return nil, err
	}
	if conv.ID == "" {
		return nil, &PersistenceError{Op: "create conversation", Message: "response has no id"}
	}
	return &conv, nil
}

// AppendMessage appends one message to a conversation.
func (g *Gateway) AppendMessage(ctx context.Context, id string, msg NewMessage) (*StoredMessage, error) {
	var stored StoredMessage
	if err := g.do(ctx, http.MethodPost, "/api/conversations/"+url.PathEscape(id)+"/messages", msg, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// Update patches conversation metadata.
func (g *Gateway) Update(ctx context.Context, id string, req UpdateRequest) (*Conversation, error) {
	var conv Conversation
	if err := g.do(ctx, http.MethodPatch, "/api/conversations/"+url.PathEscape(id), req, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// List returns a user's conversations, most recently updated first.
func (g *Gateway) List(ctx context.Context, userID string) ([]Summary, error) {
	var out []Summary
	if err := g.do(ctx, http.MethodGet, "/api/conversations?userId="+url.QueryEscape(userID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns a conversation with its messages.
func (g *Gateway) Get(ctx context.Context, id string) (*Detail, error) {
	var detail Detail
	if err := g.do(ctx, http.MethodGet, "/api/conversations/"+url.PathEscape(id)+"/messages", nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Delete removes a conversation and its messages.
func (g *Gateway) Delete(ctx context.Context, id string) error {
	return g.do(ctx, http.MethodDelete, "/api/conversations/"+url.PathEscape(id), nil, nil)
}

func (g *Gateway) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if g.opts.InitialInterval > 0 {
		eb.InitialInterval = g.opts.InitialInterval
	}
	if g.opts.MaxInterval > 0 {
		eb.MaxInterval = g.opts.MaxInterval
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, g.opts.MaxRetries), ctx)
}

// do performs one backend call. Idempotent methods are retried on 5xx
// responses and transport errors; a POST may have been committed before the
// failure, so it is attempted once.
func (g *Gateway) do(ctx context.Context, method, path string, body, out interface{}) error {
	op := method + " " + path
	transient := func(err error) error {
		if method == http.MethodPost {
			return backoff.Permanent(err)
		}
		return err
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return &PersistenceError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
	}

	attempt := func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
		if err != nil {
			return backoff.Permanent(&PersistenceError{Op: op, Err: err})
		}
		if payload != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		httpReq.Header.Set("Accept", "application/json")

		resp, err := g.opts.HTTPClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(&PersistenceError{Op: op, Err: err})
			}
			return transient(&PersistenceError{Op: op, Err: err})
		}
		defer resp.Body.Close() //nolint:errcheck // Nothing to do about close errors on a drained body

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			perr := &PersistenceError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(msg)}
			if resp.StatusCode >= 500 {
				return transient(perr)
			}
			return backoff.Permanent(perr)
		}

		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return backoff.Permanent(&PersistenceError{Op: op, Err: fmt.Errorf("decode response: %w", err)})
		}
		return nil
	}

	return backoff.RetryNotify(attempt, g.newBackOff(ctx), func(err error, wait time.Duration) {
		g.logger.Warn().Err(err).Dur("retry_in", wait).Msg("Conversation backend call failed, retrying")
	})
}

// errorMessage extracts {"error": "..."} bodies and falls back to the raw text.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}
