package chat

import (
	"context"
	"strings"
	"time"

	"github.com/aschepis/backscratcher/toolchat/llm"
	"github.com/rs/zerolog"
)

// DispatcherOptions tune turn execution.
type DispatcherOptions struct {
	// System is sent as the system prompt of every turn.
	System string
	// TurnTimeout bounds a whole turn. Zero means no bound.
	TurnTimeout time.Duration
	Policy      ToolCallPolicy
}

// Dispatcher validates turn requests, picks the provider and runs the turn.
type Dispatcher struct {
	registry  *llm.ProviderRegistry
	sessions  SessionLookup
	clients   *ClientCache
	persister Persister
	opts      DispatcherOptions
	logger    zerolog.Logger
}

// NewDispatcher wires a dispatcher. persister may be nil, in which case
// turns are not stored and the returned conversation id is the one sent.
func NewDispatcher(
	registry *llm.ProviderRegistry,
	sessions SessionLookup,
	clients *ClientCache,
	persister Persister,
	opts DispatcherOptions,
	logger zerolog.Logger,
) *Dispatcher {
	if opts.Policy.MaxCallsPerTurn == 0 {
		opts.Policy = FirstToolCallOnly
	}
	return &Dispatcher{
		registry:  registry,
		sessions:  sessions,
		clients:   clients,
		persister: persister,
		opts:      opts,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Validate checks the preconditions of a turn in order: messages, caller,
// tool session. It makes no network calls.
func (d *Dispatcher) Validate(req *TurnRequest) (ToolSession, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, NewValidationError("Messages array is required")
	}
	if strings.TrimSpace(req.CallerID) == "" {
		return nil, NewValidationError("User ID is required")
	}
	session, ok := d.sessions.LookupSession(req.CallerID)
	if !ok || !session.IsConnected() {
		return nil, &Error{Kind: KindValidation, Message: "Not connected to MCP server"}
	}
	return session, nil
}

// HandleTurn runs one chat turn.
func (d *Dispatcher) HandleTurn(ctx context.Context, req *TurnRequest) (*TurnResult, error) {
	session, err := d.Validate(req)
	if err != nil {
		return nil, err
	}

	provider := d.registry.Resolve(req.ProviderID)
	if !d.registry.IsProviderConfigured(provider) {
		return nil, NewConfigurationError(llm.DisplayName(provider)+" API key not configured", nil)
	}
	key, err := d.registry.ResolveClientKey(provider)
	if err != nil {
		return nil, NewConfigurationError(llm.DisplayName(provider)+" API key not configured", err)
	}

	logger := d.logger.With().Str("provider", provider).Str("caller_id", req.CallerID).Logger()

	if d.opts.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.TurnTimeout)
		defer cancel()
	}

	history, err := ToLLMMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	tools, err := ToToolSpecs(session.Tools(), session.Names())
	if err != nil {
		return nil, err
	}

	client, err := d.clients.Get(ctx, key)
	if err != nil {
		return nil, NewConfigurationError("failed to create "+llm.DisplayName(provider)+" client: "+err.Error(), err)
	}

	logger.Info().Int("messages", len(history)).Int("tools", len(tools)).Msg("Handling turn")

	handler := NewHandler(client, HandlerConfig{
		Provider:  provider,
		Model:     key.Model,
		System:    d.opts.System,
		MaxTokens: key.MaxTokens,
		Policy:    d.opts.Policy,
	}, d.logger)

	out, err := handler.Run(ctx, history, tools, session)
	if err != nil {
		logger.Error().Err(err).Msg("Turn failed")
		return nil, err
	}

	result := &TurnResult{
		Messages:       out.Messages,
		ToolResults:    out.ToolResults,
		ConversationID: req.ConversationID,
	}
	if d.persister != nil {
		// Storing the turn must not be cut short by the caller going away
		result.ConversationID = d.persister.Save(context.WithoutCancel(ctx), saveRequest(req, provider, out))
	}
	return result, nil
}

// saveRequest builds the persistence request: the whole history for a new
// conversation, the last caller message plus the new messages otherwise.
func saveRequest(req *TurnRequest, provider string, out *HandlerOutput) SaveRequest {
	history := make([]Message, 0, len(req.Messages)+len(out.Messages))
	history = append(history, req.Messages...)
	history = append(history, out.Messages...)

	newMessages := make([]Message, 0, len(out.Messages)+1)
	newMessages = append(newMessages, req.Messages[len(req.Messages)-1])
	newMessages = append(newMessages, out.Messages...)

	return SaveRequest{
		ConversationID: req.ConversationID,
		CallerID:       req.CallerID,
		ProviderID:     provider,
		History:        history,
		NewMessages:    newMessages,
		FirstNew:       len(req.Messages),
		ToolResults:    out.ToolResults,
	}
}
