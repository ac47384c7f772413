// Package chat runs one conversational turn: it validates the inbound
// request, shapes the caller's tools and history for the selected provider,
// drives the provider through at most one tool round-trip, and hands the
// result to conversation persistence.
package chat

import (
	"context"

	"github.com/aschepis/backscratcher/toolchat/mcp"
)

// Message roles accepted from callers.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message as exchanged with callers. Content is usually
// a string but any JSON value is accepted.
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// ToolResult records one tool invocation made during a turn.
type ToolResult struct {
	ToolName string                 `json:"toolName"`
	ToolArgs map[string]interface{} `json:"toolArgs"`
	Result   interface{}            `json:"result,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// Failed reports whether the invocation failed.
func (r ToolResult) Failed() bool {
	return r.Error != ""
}

// TurnRequest is the inbound chat request.
type TurnRequest struct {
	Messages       []Message `json:"messages"`
	ProviderID     string    `json:"selectedLLM,omitempty"`
	ConversationID *string   `json:"conversationId,omitempty"`
	CallerID       string    `json:"userId"`
}

// TurnResult is returned to the caller. ConversationID is nil when the turn
// could not be persisted.
type TurnResult struct {
	Messages       []Message    `json:"messages"`
	ToolResults    []ToolResult `json:"toolResults"`
	ConversationID *string      `json:"conversationId"`
}

// ToolSession is the part of a tool server session a turn needs.
// *mcp.Session implements it.
type ToolSession interface {
	IsConnected() bool
	Tools() []mcp.ToolDescriptor
	Names() *mcp.NameAdapter
	CallTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error)
}

// SessionLookup finds the tool session of a caller.
type SessionLookup interface {
	LookupSession(callerID string) (ToolSession, bool)
}

// SaveRequest carries everything conversation persistence needs after a turn.
type SaveRequest struct {
	ConversationID *string
	CallerID       string
	ProviderID     string
	// History is the full conversation: the request messages followed by the new ones.
	History []Message
	// NewMessages are the messages to append to an existing conversation.
	NewMessages []Message
	// FirstNew is the index in History of the first message produced by this turn.
	FirstNew    int
	ToolResults []ToolResult
}

// Persister stores the outcome of a turn and returns the conversation id,
// or nil when it could not be stored.
type Persister interface {
	Save(ctx context.Context, req SaveRequest) *string
}

type managerLookup struct {
	manager *mcp.Manager
}

// SessionsFromManager exposes an mcp.Manager as a SessionLookup.
func SessionsFromManager(m *mcp.Manager) SessionLookup {
	return managerLookup{manager: m}
}

func (l managerLookup) LookupSession(callerID string) (ToolSession, bool) {
	s, ok := l.manager.Lookup(callerID)
	if !ok {
		return nil, false
	}
	return s, true
}
