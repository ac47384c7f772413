package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/aschepis/backscratcher/toolchat/llm"
	"github.com/aschepis/backscratcher/toolchat/mcp"
	"github.com/rs/zerolog"
)

// scriptedClient replays responses in order and records every request.
type scriptedClient struct {
	mu        sync.Mutex
	responses []*llm.Response
	errs      []error
	requests  []*llm.Request
}

func (c *scriptedClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := len(c.requests)
	c.requests = append(c.requests, req)
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	if i >= len(c.responses) {
		return nil, errors.New("unexpected request")
	}
	return c.responses[i], nil
}

func (c *scriptedClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

type toolCall struct {
	name string
	args map[string]interface{}
}

type fakeSession struct {
	mu        sync.Mutex
	connected bool
	tools     []mcp.ToolDescriptor
	names     *mcp.NameAdapter
	results   map[string]interface{}
	failures  map[string]error
	invoked   []toolCall
}

func newFakeSession(tools ...mcp.ToolDescriptor) *fakeSession {
	return &fakeSession{
		connected: true,
		tools:     tools,
		names:     mcp.NewNameAdapter(),
		results:   map[string]interface{}{},
		failures:  map[string]error{},
	}
}

func (s *fakeSession) IsConnected() bool           { return s.connected }
func (s *fakeSession) Tools() []mcp.ToolDescriptor { return s.tools }
func (s *fakeSession) Names() *mcp.NameAdapter     { return s.names }

func (s *fakeSession) CallTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoked = append(s.invoked, toolCall{name: name, args: args})
	if err, ok := s.failures[name]; ok {
		return nil, err
	}
	return s.results[name], nil
}

func (s *fakeSession) invocations() []toolCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]toolCall(nil), s.invoked...)
}

type fakeSessions map[string]ToolSession

func (f fakeSessions) LookupSession(callerID string) (ToolSession, bool) {
	s, ok := f[callerID]
	return s, ok
}

type recordingPersister struct {
	mu    sync.Mutex
	saved []SaveRequest
	id    *string
}

func (p *recordingPersister) Save(ctx context.Context, req SaveRequest) *string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, req)
	return p.id
}

func textResponse(text string) *llm.Response {
	return &llm.Response{Content: []llm.ContentBlock{{Type: llm.ContentBlockTypeText, Text: text}}}
}

func toolResponse(text string, uses ...llm.ToolUseBlock) *llm.Response {
	resp := &llm.Response{}
	if text != "" {
		resp.Content = append(resp.Content, llm.ContentBlock{Type: llm.ContentBlockTypeText, Text: text})
	}
	for i := range uses {
		resp.Content = append(resp.Content, llm.ContentBlock{Type: llm.ContentBlockTypeToolUse, ToolUse: &uses[i]})
	}
	return resp
}

func strPtr(s string) *string { return &s }

var calculatorTool = mcp.ToolDescriptor{
	Name:        "calculator",
	Description: "Evaluates an expression",
	InputSchema: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"expr": map[string]interface{}{"type": "string"},
		},
		"required": []interface{}{"expr"},
	},
}

func zeroLogger() zerolog.Logger { return zerolog.Nop() }
