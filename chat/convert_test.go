package chat

import (
	"errors"
	"reflect"
	"testing"

	"github.com/aschepis/backscratcher/toolchat/llm"
	"github.com/aschepis/backscratcher/toolchat/mcp"
)

func TestToToolSpecs(t *testing.T) {
	specs, err := ToToolSpecs([]mcp.ToolDescriptor{
		calculatorTool,
		{Name: "gmail.messages.list", Description: "List mail", InputSchema: map[string]interface{}{
			"type":                 "object",
			"additionalProperties": false,
		}},
	}, mcp.NewNameAdapter())
	if err != nil {
		t.Fatalf("ToToolSpecs: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("Expected 2 specs, got %d", len(specs))
	}

	calc := specs[0]
	if calc.Name != "calculator" || calc.Description != "Evaluates an expression" {
		t.Errorf("Unexpected spec: %+v", calc)
	}
	if calc.Schema.Type != "object" || !reflect.DeepEqual(calc.Schema.Required, []string{"expr"}) {
		t.Errorf("Unexpected schema: %+v", calc.Schema)
	}
	if _, ok := calc.Schema.Properties["expr"]; !ok {
		t.Error("Expected expr property")
	}

	gmail := specs[1]
	if gmail.Name != "gmail_messages_list" {
		t.Errorf("Expected safe name, got %q", gmail.Name)
	}
	if gmail.Schema.ExtraFields["additionalProperties"] != false {
		t.Errorf("Expected extra schema fields to be kept, got %+v", gmail.Schema.ExtraFields)
	}
	if _, ok := gmail.Schema.ExtraFields["type"]; ok {
		t.Error("Expected type not to be duplicated into extra fields")
	}
}

func TestToToolSpecs_Invalid(t *testing.T) {
	tests := []struct {
		name string
		tool mcp.ToolDescriptor
	}{
		{"empty name", mcp.ToolDescriptor{InputSchema: map[string]interface{}{"type": "object"}}},
		{"array schema", mcp.ToolDescriptor{Name: "x", InputSchema: map[string]interface{}{"type": "array"}}},
		{"non-string type", mcp.ToolDescriptor{Name: "x", InputSchema: map[string]interface{}{"type": 7}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToToolSpecs([]mcp.ToolDescriptor{calculatorTool, tt.tool}, nil)
			if !IsValidationError(err) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

func TestToToolSpecs_MissingTypeIsObject(t *testing.T) {
	specs, err := ToToolSpecs([]mcp.ToolDescriptor{{Name: "ping"}}, nil)
	if err != nil {
		t.Fatalf("ToToolSpecs: %v", err)
	}
	if specs[0].Schema.Type != "object" || specs[0].Name != "ping" {
		t.Errorf("Unexpected spec: %+v", specs[0])
	}
}

func TestToLLMMessages(t *testing.T) {
	msgs, err := ToLLMMessages([]Message{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: map[string]interface{}{"answer": 4}},
		{Role: RoleUser, Content: nil},
	})
	if err != nil {
		t.Fatalf("ToLLMMessages: %v", err)
	}
	want := []llm.Message{
		llm.NewTextMessage(llm.RoleUser, "hello"),
		llm.NewTextMessage(llm.RoleAssistant, `{"answer":4}`),
		llm.NewTextMessage(llm.RoleUser, ""),
	}
	if !reflect.DeepEqual(msgs, want) {
		t.Errorf("Expected %+v, got %+v", want, msgs)
	}

	if _, err := ToLLMMessages([]Message{{Role: "tool", Content: "x"}}); !IsValidationError(err) {
		t.Errorf("Expected validation error for unknown role, got %v", err)
	}
	if _, err := ToLLMMessages([]Message{{Role: RoleUser, Content: make(chan int)}}); !IsValidationError(err) {
		t.Errorf("Expected validation error for unencodable content, got %v", err)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 200},
		{NewValidationError("bad"), 400},
		{NewConfigurationError("no key", nil), 500},
		{NewProviderError("gemini", errors.New("down")), 500},
		{mcp.ErrNotConnected, 500},
		{&mcp.ConnectionError{ServerURL: "http://x", Err: errors.New("refused")}, 500},
		{errors.New("anything"), 500},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(mcp.ErrNotConnected) != KindNotConnected {
		t.Error("Expected not-connected kind")
	}
	if KindOf(&mcp.ConnectionError{Err: errors.New("x")}) != KindConnection {
		t.Error("Expected connection kind")
	}
	if KindOf(&mcp.ToolExecutionError{Tool: "t", Message: "m"}) != KindToolExecution {
		t.Error("Expected tool execution kind")
	}
	wrapped := errors.Join(errors.New("context"), NewConfigurationError("no key", nil))
	if KindOf(wrapped) != KindConfiguration {
		t.Error("Expected wrapped chat errors to keep their kind")
	}
}
