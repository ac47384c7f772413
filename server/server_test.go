package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aschepis/backscratcher/toolchat/chat"
	"github.com/aschepis/backscratcher/toolchat/llm"
	"github.com/aschepis/backscratcher/toolchat/mcp"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// scriptedLLM answers provider requests from a fixed script.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []*llm.Response
	err       error
	requests  int
}

func (c *scriptedLLM) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.requests
	c.requests++
	if c.err != nil {
		return nil, c.err
	}
	if i >= len(c.responses) {
		return nil, errors.New("unexpected request")
	}
	return c.responses[i], nil
}

func (c *scriptedLLM) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

func textReply(text string) *llm.Response {
	return &llm.Response{Content: []llm.ContentBlock{{Type: llm.ContentBlockTypeText, Text: text}}}
}

func toolReply(name string, input map[string]interface{}) *llm.Response {
	return &llm.Response{Content: []llm.ContentBlock{{
		Type:    llm.ContentBlockTypeToolUse,
		ToolUse: &llm.ToolUseBlock{ID: "call-1", Name: name, Input: input},
	}}}
}

// newToolServer serves a calculator tool over MCP streamable HTTP at /mcp.
func newToolServer(t *testing.T) *httptest.Server {
	t.Helper()

	s := mcpserver.NewMCPServer("test-tools", "1.0.0", mcpserver.WithToolCapabilities(false))
	s.AddTool(mcpgo.NewTool("calculator",
		mcpgo.WithDescription("Adds two numbers"),
		mcpgo.WithNumber("a", mcpgo.Required()),
		mcpgo.WithNumber("b", mcpgo.Required()),
	), func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		args := req.GetArguments()
		a, _ := args["a"].(float64)
		b, _ := args["b"].(float64)
		return mcpgo.NewToolResultText(fmt.Sprintf("%g", a+b)), nil
	})

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(s))
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

type gatewayFixture struct {
	server  *httptest.Server
	manager *mcp.Manager
	llm     *scriptedLLM
}

func newGatewayFixture(t *testing.T, persister chat.Persister, responses ...*llm.Response) *gatewayFixture {
	t.Helper()
	for _, name := range []string{"GOOGLE_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY", "OLLAMA_MODEL"} {
		t.Setenv(name, "")
	}

	logger := zerolog.Nop()
	fake := &scriptedLLM{responses: responses}
	registry := llm.NewProviderRegistry(&llm.ProviderConfig{GeminiAPIKey: "test-key"}, []string{"gemini", "claude"}, "")
	manager := mcp.NewManager(logger, mcp.SessionOptions{})
	t.Cleanup(manager.Close)

	clients := chat.NewClientCache(func(ctx context.Context, key *llm.ClientKey) (llm.Client, error) {
		return fake, nil
	}, logger)
	dispatcher := chat.NewDispatcher(registry, chat.SessionsFromManager(manager), clients, persister, chat.DispatcherOptions{}, logger)

	srv := New(Config{Address: "127.0.0.1:0", Logger: logger}, dispatcher, manager, registry)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &gatewayFixture{server: ts, manager: manager, llm: fake}
}

func (f *gatewayFixture) do(t *testing.T, method, path string, body interface{}, out interface{}) int {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response of %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (f *gatewayFixture) connect(t *testing.T, serverURL, userID string) connectResponse {
	t.Helper()
	var resp connectResponse
	status := f.do(t, http.MethodPost, "/api/mcp/connect", map[string]string{"serverUrl": serverURL, "userId": userID}, &resp)
	if status != http.StatusOK {
		t.Fatalf("connect status = %d, want 200", status)
	}
	return resp
}

func TestChatWithToolCall(t *testing.T) {
	tools := newToolServer(t)
	f := newGatewayFixture(t, nil,
		toolReply("calculator", map[string]interface{}{"a": 2.0, "b": 2.0}),
		textReply("The answer is 4."),
	)

	connected := f.connect(t, tools.URL, "alice")
	if !connected.Success || len(connected.Tools) != 1 || connected.Tools[0].Name != "calculator" {
		t.Fatalf("unexpected connect response: %+v", connected)
	}

	var result chat.TurnResult
	status := f.do(t, http.MethodPost, "/api/chat", map[string]interface{}{
		"messages":    []map[string]string{{"role": "user", "content": "What is 2+2?"}},
		"selectedLLM": "gemini",
		"userId":      "alice",
	}, &result)
	if status != http.StatusOK {
		t.Fatalf("chat status = %d, want 200", status)
	}

	if len(result.Messages) != 1 || result.Messages[0].Role != chat.RoleAssistant || result.Messages[0].Content != "The answer is 4." {
		t.Errorf("messages = %+v", result.Messages)
	}
	if len(result.ToolResults) != 1 {
		t.Fatalf("toolResults = %+v, want one entry", result.ToolResults)
	}
	tr := result.ToolResults[0]
	if tr.ToolName != "calculator" || tr.Result != float64(4) || tr.Failed() {
		t.Errorf("tool result = %+v", tr)
	}
	if result.ConversationID != nil {
		t.Errorf("conversationId = %q, want null without persistence", *result.ConversationID)
	}
	if n := f.llm.calls(); n != 2 {
		t.Errorf("provider requests = %d, want 2", n)
	}
}

func TestChatErrors(t *testing.T) {
	tools := newToolServer(t)
	f := newGatewayFixture(t, nil)
	f.connect(t, tools.URL, "connected-user")

	userMessage := []map[string]string{{"role": "user", "content": "hi"}}
	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantError  string
	}{
		{"invalid json", "{not json", http.StatusBadRequest, "Invalid request body"},
		{"no messages", map[string]interface{}{"userId": "connected-user"}, http.StatusBadRequest, "Messages array is required"},
		{"no user", map[string]interface{}{"messages": userMessage}, http.StatusBadRequest, "User ID is required"},
		{"not connected", map[string]interface{}{"messages": userMessage, "userId": "stranger"}, http.StatusBadRequest, "Not connected to MCP server"},
		{"provider without key", map[string]interface{}{"messages": userMessage, "userId": "connected-user", "selectedLLM": "claude"}, http.StatusInternalServerError, "Claude API key not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorBody
			status := f.do(t, http.MethodPost, "/api/chat", tt.body, &body)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if body.Error != tt.wantError {
				t.Errorf("error = %q, want %q", body.Error, tt.wantError)
			}
		})
	}
	if n := f.llm.calls(); n != 0 {
		t.Errorf("provider was called %d times for rejected turns", n)
	}
}

func TestChatProviderFailure(t *testing.T) {
	tools := newToolServer(t)
	f := newGatewayFixture(t, nil)
	f.llm.err = errors.New("quota exceeded")
	f.connect(t, tools.URL, "alice")

	var body errorBody
	status := f.do(t, http.MethodPost, "/api/chat", map[string]interface{}{
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
		"userId":   "alice",
	}, &body)
	if status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", status)
	}
	if body.Error != "Gemini request failed: quota exceeded" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestMCPEndpoints(t *testing.T) {
	tools := newToolServer(t)
	f := newGatewayFixture(t, nil)

	var body errorBody
	if status := f.do(t, http.MethodPost, "/api/mcp/connect", map[string]string{"userId": "alice"}, &body); status != http.StatusBadRequest {
		t.Errorf("connect without serverUrl: status = %d, want 400", status)
	}
	if status := f.do(t, http.MethodPost, "/api/mcp/connect", map[string]string{"serverUrl": "http://127.0.0.1:1"}, &body); status != http.StatusInternalServerError {
		t.Errorf("connect to dead server: status = %d, want 500", status)
	}

	var listed toolsResponse
	f.do(t, http.MethodGet, "/api/mcp/tools", nil, &listed)
	if listed.Connected || len(listed.Tools) != 0 {
		t.Errorf("default user before connect: %+v", listed)
	}

	// userId defaults to default-user
	f.connect(t, tools.URL, "")
	f.do(t, http.MethodGet, "/api/mcp/tools?userId=default-user", nil, &listed)
	if !listed.Connected || listed.ServerURL != tools.URL || len(listed.Tools) != 1 {
		t.Errorf("after connect: %+v", listed)
	}
	if !f.manager.IsConnected(DefaultUserID) {
		t.Error("manager has no session for the default user")
	}

	if status := f.do(t, http.MethodPost, "/api/mcp/disconnect", map[string]string{}, nil); status != http.StatusOK {
		t.Errorf("disconnect status = %d, want 200", status)
	}
	f.do(t, http.MethodGet, "/api/mcp/tools", nil, &listed)
	if listed.Connected {
		t.Error("still connected after disconnect")
	}
}

func TestProvidersAndHealth(t *testing.T) {
	f := newGatewayFixture(t, nil)

	var providers providersResponse
	if status := f.do(t, http.MethodGet, "/api/providers", nil, &providers); status != http.StatusOK {
		t.Fatalf("providers status = %d", status)
	}
	if providers.Default != llm.ProviderGemini {
		t.Errorf("default = %q, want gemini", providers.Default)
	}
	want := []llm.ProviderStatus{
		{ID: "claude", Name: "Claude", Configured: false, Default: false},
		{ID: "gemini", Name: "Gemini", Configured: true, Default: true},
	}
	if len(providers.Providers) != len(want) {
		t.Fatalf("providers = %+v", providers.Providers)
	}
	for i := range want {
		if providers.Providers[i] != want[i] {
			t.Errorf("providers[%d] = %+v, want %+v", i, providers.Providers[i], want[i])
		}
	}

	var health healthResponse
	if status := f.do(t, http.MethodGet, "/healthz", nil, &health); status != http.StatusOK || health.Status != "ok" {
		t.Errorf("healthz = %d %+v", status, health)
	}
}
