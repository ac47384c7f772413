package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aschepis/backscratcher/toolchat/chat"
)

func TestConnectAddress(t *testing.T) {
	tests := []struct {
		address string
		want    string
		wantErr bool
	}{
		{"", DefaultAddress, false},
		{"localhost:3000", "http://localhost:3000", false},
		{"https://chat.example.com/", "https://chat.example.com", false},
		{"http://", "", true},
	}
	for _, tt := range tests {
		c, err := Connect(tt.address, time.Second)
		if (err != nil) != tt.wantErr {
			t.Errorf("Connect(%q) error = %v, wantErr %v", tt.address, err, tt.wantErr)
			continue
		}
		if err == nil && c.baseURL != tt.want {
			t.Errorf("Connect(%q) baseURL = %q, want %q", tt.address, c.baseURL, tt.want)
		}
	}
}

func newGateway(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	c, err := Connect(ts.URL, 5*time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return c
}

func TestChat(t *testing.T) {
	c := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req chat.TurnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.CallerID != "alice" || req.ProviderID != "claude" || len(req.Messages) != 1 {
			t.Errorf("unexpected turn request: %+v", req)
		}
		id := "conv-1"
		_ = json.NewEncoder(w).Encode(chat.TurnResult{
			Messages:       []chat.Message{{Role: chat.RoleAssistant, Content: "hello"}},
			ToolResults:    []chat.ToolResult{},
			ConversationID: &id,
		})
	})

	result, err := c.Chat(context.Background(), &chat.TurnRequest{
		Messages:   []chat.Message{{Role: chat.RoleUser, Content: "hi"}},
		ProviderID: "claude",
		CallerID:   "alice",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if result.Messages[0].Content != "hello" || result.ConversationID == nil || *result.ConversationID != "conv-1" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestErrorResponses(t *testing.T) {
	c := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"Not connected to MCP server"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("boom"))
		}
	})

	_, err := c.Chat(context.Background(), &chat.TurnRequest{})
	if !IsValidation(err) {
		t.Fatalf("Chat error = %v, want validation error", err)
	}
	if err.Error() != "gateway returned status 400: Not connected to MCP server" {
		t.Errorf("Error() = %q", err.Error())
	}

	_, _, err = c.Providers(context.Background())
	if err == nil || IsValidation(err) {
		t.Fatalf("Providers error = %v, want 500", err)
	}
	if err.Error() != "gateway returned status 500: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestToolEndpoints(t *testing.T) {
	c := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/mcp/connect":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["serverUrl"] != "http://tools:3001" || body["userId"] != "alice" {
				t.Errorf("connect body = %v", body)
			}
			_, _ = w.Write([]byte(`{"success":true,"tools":[{"name":"calculator","description":"adds"}]}`))
		case "/api/mcp/tools":
			if r.URL.Query().Get("userId") != "alice" {
				t.Errorf("tools userId = %q", r.URL.Query().Get("userId"))
			}
			_, _ = w.Write([]byte(`{"connected":true,"serverUrl":"http://tools:3001","tools":[{"name":"calculator","description":"adds"}]}`))
		case "/api/mcp/disconnect":
			_, _ = w.Write([]byte(`{"success":true}`))
		case "/api/providers":
			_, _ = w.Write([]byte(`{"default":"gemini","providers":[{"id":"gemini","name":"Gemini","configured":true,"default":true}]}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	tools, err := c.ConnectTools(ctx, "http://tools:3001", "alice")
	if err != nil || len(tools) != 1 || tools[0].Name != "calculator" {
		t.Fatalf("ConnectTools = %+v, %v", tools, err)
	}
	status, err := c.Tools(ctx, "alice")
	if err != nil || !status.Connected || status.ServerURL != "http://tools:3001" {
		t.Fatalf("Tools = %+v, %v", status, err)
	}
	if err := c.DisconnectTools(ctx, "alice"); err != nil {
		t.Fatalf("DisconnectTools: %v", err)
	}
	providers, def, err := c.Providers(ctx)
	if err != nil || def != "gemini" || len(providers) != 1 || !providers[0].Configured {
		t.Fatalf("Providers = %+v, %q, %v", providers, def, err)
	}
}
