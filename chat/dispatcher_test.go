package chat

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"testing"

	"github.com/aschepis/backscratcher/toolchat/llm"
	"github.com/rs/zerolog"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"GOOGLE_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY", "OLLAMA_MODEL"} {
		t.Setenv(name, "")
	}
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	session    *fakeSession
	persister  *recordingPersister

	mu      sync.Mutex
	clients map[string]*scriptedClient
	built   []llm.ClientKey
}

func newDispatcherFixture(t *testing.T, cfg *llm.ProviderConfig, responses ...*llm.Response) *dispatcherFixture {
	t.Helper()
	clearProviderEnv(t)

	f := &dispatcherFixture{
		session:   newFakeSession(calculatorTool),
		persister: &recordingPersister{id: strPtr("conv-1")},
		clients:   map[string]*scriptedClient{},
	}
	factory := func(ctx context.Context, key *llm.ClientKey) (llm.Client, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.built = append(f.built, *key)
		c := &scriptedClient{responses: responses}
		f.clients[key.Provider] = c
		return c, nil
	}
	registry := llm.NewProviderRegistry(cfg, []string{llm.ProviderGemini, llm.ProviderAnthropic, llm.ProviderOpenAI}, "")
	f.dispatcher = NewDispatcher(
		registry,
		fakeSessions{"user-1": f.session},
		NewClientCache(factory, zerolog.Nop()),
		f.persister,
		DispatcherOptions{System: "be brief"},
		zerolog.Nop(),
	)
	return f
}

func (f *dispatcherFixture) client(provider string) *scriptedClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[provider]
}

func userTurn(text string) *TurnRequest {
	return &TurnRequest{
		Messages: []Message{{Role: RoleUser, Content: text}},
		CallerID: "user-1",
	}
}

func TestDispatcher_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     *TurnRequest
		wantMsg string
	}{
		{"no messages", &TurnRequest{CallerID: "user-1"}, "Messages array is required"},
		{"no messages and no caller", &TurnRequest{}, "Messages array is required"},
		{"no caller", &TurnRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}}, "User ID is required"},
		{"blank caller", &TurnRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}, CallerID: "  "}, "User ID is required"},
		{"no session", &TurnRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}, CallerID: "stranger"}, "Not connected to MCP server"},
		{"bad role", &TurnRequest{Messages: []Message{{Role: "system", Content: "hi"}}, CallerID: "user-1"}, `message 0: unsupported role "system"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatcherFixture(t, &llm.ProviderConfig{GeminiAPIKey: "g"}, textResponse("4"))
			_, err := f.dispatcher.HandleTurn(context.Background(), tt.req)
			if err == nil {
				t.Fatal("Expected a validation error")
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("Expected %q, got %q", tt.wantMsg, err.Error())
			}
			if HTTPStatus(err) != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", HTTPStatus(err))
			}
			if c := f.client(llm.ProviderGemini); c != nil && c.calls() != 0 {
				t.Errorf("Expected no provider calls, got %d", c.calls())
			}
			if len(f.persister.saved) != 0 {
				t.Error("Expected nothing persisted")
			}
		})
	}
}

func TestDispatcher_DisconnectedSessionIsValidationError(t *testing.T) {
	f := newDispatcherFixture(t, &llm.ProviderConfig{GeminiAPIKey: "g"}, textResponse("4"))
	f.session.connected = false

	_, err := f.dispatcher.HandleTurn(context.Background(), userTurn("hi"))
	if !IsValidationError(err) || err.Error() != "Not connected to MCP server" {
		t.Fatalf("Expected not-connected validation error, got %v", err)
	}
	if len(f.built) != 0 {
		t.Error("Expected no provider client to be built")
	}
}

func TestDispatcher_DirectAnswerScenario(t *testing.T) {
	f := newDispatcherFixture(t, &llm.ProviderConfig{GeminiAPIKey: "g"}, textResponse("4"))
	req := userTurn("2+2?")
	req.ProviderID = "gemini"

	result, err := f.dispatcher.HandleTurn(context.Background(), req)
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	want := []Message{{Role: RoleAssistant, Content: "4"}}
	if !reflect.DeepEqual(result.Messages, want) {
		t.Errorf("Expected %+v, got %+v", want, result.Messages)
	}
	if len(result.ToolResults) != 0 {
		t.Errorf("Expected no tool results, got %+v", result.ToolResults)
	}
	if result.ConversationID == nil || *result.ConversationID != "conv-1" {
		t.Errorf("Expected conversation id conv-1, got %v", result.ConversationID)
	}

	sent := f.client(llm.ProviderGemini).requests[0]
	if sent.Model != llm.DefaultGeminiModel || sent.System != "be brief" {
		t.Errorf("Unexpected request parameters: model=%q system=%q", sent.Model, sent.System)
	}
	if len(sent.Tools) != 1 || sent.Tools[0].Name != "calculator" {
		t.Errorf("Expected the caller's tools on the request, got %+v", sent.Tools)
	}
}

func TestDispatcher_ToolScenario(t *testing.T) {
	f := newDispatcherFixture(t, &llm.ProviderConfig{GeminiAPIKey: "g"},
		toolResponse("", llm.ToolUseBlock{ID: "c1", Name: "calculator", Input: map[string]interface{}{"expr": "2+2"}}),
		textResponse("The answer is 4"),
	)
	f.session.results["calculator"] = float64(4)

	result, err := f.dispatcher.HandleTurn(context.Background(), userTurn("2+2?"))
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if !reflect.DeepEqual(result.Messages, []Message{{Role: RoleAssistant, Content: "The answer is 4"}}) {
		t.Errorf("Unexpected messages: %+v", result.Messages)
	}
	wantResults := []ToolResult{{ToolName: "calculator", ToolArgs: map[string]interface{}{"expr": "2+2"}, Result: float64(4)}}
	if !reflect.DeepEqual(result.ToolResults, wantResults) {
		t.Errorf("Expected %+v, got %+v", wantResults, result.ToolResults)
	}
}

func TestDispatcher_ToolFailureStillSucceeds(t *testing.T) {
	f := newDispatcherFixture(t, &llm.ProviderConfig{GeminiAPIKey: "g"},
		toolResponse("", llm.ToolUseBlock{ID: "c1", Name: "calculator", Input: map[string]interface{}{"expr": "x"}}),
	)
	f.session.failures["calculator"] = errors.New("bad expression")

	result, err := f.dispatcher.HandleTurn(context.Background(), userTurn("x?"))
	if err != nil {
		t.Fatalf("Expected the turn to succeed, got %v", err)
	}
	if len(result.Messages) != 1 || result.Messages[0].Content != "Error executing tool calculator: bad expression" {
		t.Errorf("Unexpected messages: %+v", result.Messages)
	}
	if len(f.persister.saved) != 1 {
		t.Error("Expected the turn to be persisted")
	}
}

func TestDispatcher_ProviderResolution(t *testing.T) {
	tests := []struct {
		requested string
		want      string
	}{
		{"", llm.ProviderGemini},
		{"gemini", llm.ProviderGemini},
		{"claude", llm.ProviderAnthropic},
		{"chatgpt", llm.ProviderOpenAI},
		{"mystery", llm.ProviderGemini},
		{"ollama", llm.ProviderGemini}, // not enabled
	}
	for _, tt := range tests {
		t.Run(tt.requested, func(t *testing.T) {
			f := newDispatcherFixture(t, &llm.ProviderConfig{GeminiAPIKey: "g", AnthropicAPIKey: "a", OpenAIAPIKey: "o"}, textResponse("ok"))
			req := userTurn("hi")
			req.ProviderID = tt.requested
			if _, err := f.dispatcher.HandleTurn(context.Background(), req); err != nil {
				t.Fatalf("HandleTurn: %v", err)
			}
			if len(f.built) != 1 || f.built[0].Provider != tt.want {
				t.Fatalf("Expected a %s client, built %+v", tt.want, f.built)
			}
			if got := f.persister.saved[0].ProviderID; got != tt.want {
				t.Errorf("Expected persisted provider %s, got %s", tt.want, got)
			}
		})
	}
}

func TestDispatcher_MissingCredentials(t *testing.T) {
	tests := []struct {
		provider string
		wantMsg  string
	}{
		{"claude", "Claude API key not configured"},
		{"chatgpt", "OpenAI API key not configured"},
		{"", "Gemini API key not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.wantMsg, func(t *testing.T) {
			f := newDispatcherFixture(t, &llm.ProviderConfig{}, textResponse("ok"))
			req := userTurn("hi")
			req.ProviderID = tt.provider
			_, err := f.dispatcher.HandleTurn(context.Background(), req)
			if err == nil || err.Error() != tt.wantMsg {
				t.Fatalf("Expected %q, got %v", tt.wantMsg, err)
			}
			if KindOf(err) != KindConfiguration || HTTPStatus(err) != http.StatusInternalServerError {
				t.Errorf("Expected a 500 configuration error, got kind %s status %d", KindOf(err), HTTPStatus(err))
			}
			if len(f.built) != 0 {
				t.Error("Expected no client to be built")
			}
		})
	}
}

func TestDispatcher_ProviderFailureIsNotPersisted(t *testing.T) {
	f := newDispatcherFixture(t, &llm.ProviderConfig{GeminiAPIKey: "g"})
	_, err := f.dispatcher.HandleTurn(context.Background(), userTurn("hi"))
	if KindOf(err) != KindProvider || HTTPStatus(err) != http.StatusInternalServerError {
		t.Fatalf("Expected provider error, got %v", err)
	}
	if len(f.persister.saved) != 0 {
		t.Error("Expected nothing persisted after a provider failure")
	}
}

func TestDispatcher_PersistenceRequests(t *testing.T) {
	f := newDispatcherFixture(t, &llm.ProviderConfig{GeminiAPIKey: "g"}, textResponse("second answer"))
	req := &TurnRequest{
		Messages: []Message{
			{Role: RoleUser, Content: "first"},
			{Role: RoleAssistant, Content: "first answer"},
			{Role: RoleUser, Content: "second"},
		},
		CallerID:       "user-1",
		ConversationID: strPtr("existing"),
	}

	if _, err := f.dispatcher.HandleTurn(context.Background(), req); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	saved := f.persister.saved[0]
	if saved.ConversationID == nil || *saved.ConversationID != "existing" {
		t.Errorf("Expected the existing conversation id, got %v", saved.ConversationID)
	}
	if len(saved.History) != 4 || saved.FirstNew != 3 {
		t.Errorf("Expected full history of 4 with new messages from 3, got %d/%d", len(saved.History), saved.FirstNew)
	}
	wantNew := []Message{{Role: RoleUser, Content: "second"}, {Role: RoleAssistant, Content: "second answer"}}
	if !reflect.DeepEqual(saved.NewMessages, wantNew) {
		t.Errorf("Expected new messages %+v, got %+v", wantNew, saved.NewMessages)
	}
}

func TestDispatcher_PersistenceFailureYieldsNilID(t *testing.T) {
	f := newDispatcherFixture(t, &llm.ProviderConfig{GeminiAPIKey: "g"}, textResponse("4"))
	f.persister.id = nil

	result, err := f.dispatcher.HandleTurn(context.Background(), userTurn("2+2?"))
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if result.ConversationID != nil {
		t.Errorf("Expected nil conversation id, got %q", *result.ConversationID)
	}
	if len(result.Messages) != 1 {
		t.Error("Expected the answer to be returned despite the persistence failure")
	}
}

func TestDispatcher_ClientsAreCached(t *testing.T) {
	f := newDispatcherFixture(t, &llm.ProviderConfig{GeminiAPIKey: "g"}, textResponse("a"), textResponse("b"))
	for i := 0; i < 2; i++ {
		if _, err := f.dispatcher.HandleTurn(context.Background(), userTurn("hi")); err != nil {
			t.Fatalf("HandleTurn %d: %v", i, err)
		}
	}
	if len(f.built) != 1 {
		t.Errorf("Expected one client to be built, got %d", len(f.built))
	}
}
