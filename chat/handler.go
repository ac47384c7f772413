package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/aschepis/backscratcher/toolchat/llm"
	"github.com/rs/zerolog"
)

// FallbackResponse is returned when a turn produces no assistant text.
const FallbackResponse = "I received your message but couldn't generate a response."

type handlerState string

const (
	stateSending          handlerState = "sending"
	stateAwaitingResponse handlerState = "awaiting_response"
	stateDirectAnswer     handlerState = "direct_answer"
	stateToolRequested    handlerState = "tool_requested"
	stateExecutingTool    handlerState = "executing_tool"
	stateToolError        handlerState = "tool_error"
	stateSendingFollowUp  handlerState = "sending_follow_up"
	stateAwaitingFollowUp handlerState = "awaiting_follow_up"
	stateDone             handlerState = "done"
)

// HandlerConfig holds the request parameters of one provider.
type HandlerConfig struct {
	Provider  string
	Model     string
	System    string
	MaxTokens int64
	Policy    ToolCallPolicy
}

// Handler runs one turn against a provider client: a request, an optional
// tool round-trip and a follow-up request.
type Handler struct {
	client llm.Client
	cfg    HandlerConfig
	logger zerolog.Logger
}

// HandlerOutput is what a turn produced.
type HandlerOutput struct {
	Messages    []Message
	ToolResults []ToolResult
}

// NewHandler creates a handler for one provider client.
func NewHandler(client llm.Client, cfg HandlerConfig, logger zerolog.Logger) *Handler {
	if cfg.Policy.MaxCallsPerTurn == 0 {
		cfg.Policy = FirstToolCallOnly
	}
	return &Handler{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "chatHandler").Str("provider", cfg.Provider).Logger(),
	}
}

type turn struct {
	h       *Handler
	state   handlerState
	history []llm.Message
	tools   []llm.ToolSpec
	session ToolSession
	out     HandlerOutput
}

func (t *turn) enter(next handlerState) {
	t.h.logger.Debug().Str("from", string(t.state)).Str("to", string(next)).Msg("Turn state transition")
	t.state = next
}

// Run executes the turn. history must be non-empty. Provider failures abort
// the turn with a provider error; tool failures become an assistant message.
func (h *Handler) Run(ctx context.Context, history []llm.Message, tools []llm.ToolSpec, session ToolSession) (*HandlerOutput, error) {
	t := &turn{
		h:       h,
		state:   stateSending,
		history: history,
		tools:   tools,
		session: session,
		out:     HandlerOutput{ToolResults: []ToolResult{}},
	}

	t.enter(stateAwaitingResponse)
	resp, err := h.client.Synchronous(ctx, h.request(history, tools))
	if err != nil {
		return nil, NewProviderError(h.cfg.Provider, err)
	}

	outcome := llm.OutcomeFromResponse(resp)
	if !outcome.IsToolCall() {
		t.enter(stateDirectAnswer)
		return t.finish(outcome.Text), nil
	}

	t.enter(stateToolRequested)
	calls := resp.ToolUses()
	n := h.cfg.Policy.limit(len(calls))
	if len(calls) > n {
		dropped := make([]string, 0, len(calls)-n)
		for _, c := range calls[n:] {
			dropped = append(dropped, c.Name)
		}
		h.logger.Info().
			Int("candidates", outcome.CandidateCalls).
			Int("executed", n).
			Strs("dropped", dropped).
			Msg("Provider requested more tool calls than the policy allows")
	}
	calls = calls[:n]
	calls[0] = *outcome.Call

	t.enter(stateExecutingTool)
	results := make([]llm.ToolResultBlock, 0, len(calls))
	for i := range calls {
		call := &calls[i]
		if call.Input == nil {
			call.Input = map[string]interface{}{}
		}
		block, ok := t.execute(ctx, call)
		if !ok {
			t.enter(stateToolError)
			return t.finish(""), nil
		}
		results = append(results, block)
	}

	t.enter(stateSendingFollowUp)
	followUp := make([]llm.Message, 0, len(history)+2)
	followUp = append(followUp, history...)
	followUp = append(followUp, assistantToolMessage(outcome.Text, calls), llm.NewToolResultMessage(results))

	t.enter(stateAwaitingFollowUp)
	resp, err = h.client.Synchronous(ctx, h.request(followUp, tools))
	if err != nil {
		return nil, NewProviderError(h.cfg.Provider, err)
	}
	if extra := len(resp.ToolUses()); extra > 0 {
		h.logger.Info().Int("tool_calls", extra).Msg("Ignoring tool calls in follow-up response")
	}

	t.enter(stateDirectAnswer)
	return t.finish(resp.Text()), nil
}

// execute calls one tool. On failure it records the error and the assistant
// message explaining it, and reports false.
func (t *turn) execute(ctx context.Context, call *llm.ToolUseBlock) (llm.ToolResultBlock, bool) {
	name := call.Name
	if t.session != nil && t.session.Names() != nil {
		if original, ok := t.session.Names().ToOriginalName(call.Name); ok {
			name = original
		}
	}
	record := ToolResult{ToolName: name, ToolArgs: call.Input}

	var (
		value interface{}
		err   error
	)
	if t.session == nil {
		err = fmt.Errorf("no tool session")
	} else {
		value, err = t.session.CallTool(ctx, name, call.Input)
	}
	if err != nil {
		t.h.logger.Warn().Err(err).Str("tool", name).Msg("Tool execution failed")
		record.Error = err.Error()
		t.out.ToolResults = append(t.out.ToolResults, record)
		t.out.Messages = append(t.out.Messages, Message{
			Role:    RoleAssistant,
			Content: fmt.Sprintf("Error executing tool %s: %s", name, err.Error()),
		})
		return llm.ToolResultBlock{}, false
	}

	record.Result = value
	t.out.ToolResults = append(t.out.ToolResults, record)
	t.h.logger.Debug().Str("tool", name).Msg("Tool executed")

	return llm.ToolResultBlock{
		ID:      call.ID,
		Name:    call.Name,
		Content: resultText(value),
		Value:   value,
	}, true
}

// finish appends the assistant answer, falling back to a fixed message so a
// turn never ends without output.
func (t *turn) finish(text string) *HandlerOutput {
	if len(t.out.Messages) == 0 {
		if strings.TrimSpace(text) == "" {
			t.h.logger.Warn().Msg("Provider returned no text, using fallback response")
			text = FallbackResponse
		}
		t.out.Messages = append(t.out.Messages, Message{Role: RoleAssistant, Content: text})
	}
	t.enter(stateDone)
	return &t.out
}

func (h *Handler) request(messages []llm.Message, tools []llm.ToolSpec) *llm.Request {
	return &llm.Request{
		Model:     h.cfg.Model,
		System:    h.cfg.System,
		MaxTokens: h.cfg.MaxTokens,
		Messages:  messages,
		Tools:     tools,
	}
}

// assistantToolMessage echoes the provider's turn: its text, then the
// tool calls being answered.
func assistantToolMessage(text string, calls []llm.ToolUseBlock) llm.Message {
	msg := llm.NewToolUseMessage(calls)
	if text != "" {
		msg.Content = append([]llm.ContentBlock{{Type: llm.ContentBlockTypeText, Text: text}}, msg.Content...)
	}
	return msg
}
