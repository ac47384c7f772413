package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aschepis/backscratcher/toolchat/llm"
)

func TestOpenAIClient_Synchronous(t *testing.T) {
	var seen map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &seen)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "The answer is 4"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 4, "total_tokens": 7}
		}`)
	}))
	defer srv.Close()

	client, err := NewOpenAIClient("test-key", srv.URL+"/v1", llm.DefaultOpenAIModel, "")
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}

	resp, err := client.Synchronous(context.Background(), &llm.Request{
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "What is 2+2?")},
		Tools:    []llm.ToolSpec{{Name: "calculator"}},
	})
	if err != nil {
		t.Fatalf("Synchronous: %v", err)
	}
	if resp.Text() != "The answer is 4" {
		t.Errorf("Expected answer text, got %q", resp.Text())
	}
	if resp.Usage.OutputTokens != 4 {
		t.Errorf("Expected 4 output tokens, got %d", resp.Usage.OutputTokens)
	}
	if seen["model"] != llm.DefaultOpenAIModel {
		t.Errorf("Expected client default model, got %v", seen["model"])
	}
	if seen["tool_choice"] != "auto" {
		t.Errorf("Expected tool_choice auto, got %v", seen["tool_choice"])
	}
}

func TestOpenAIClient_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	}))
	defer srv.Close()

	client, err := NewOpenAIClient("test-key", srv.URL+"/v1", "gpt-4", "")
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}
	_, err = client.Synchronous(context.Background(), &llm.Request{
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")},
	})
	if !llm.IsRetryableError(err) {
		t.Fatalf("Expected retryable error, got %v", err)
	}
}

func TestOpenAIClient_RequiresModel(t *testing.T) {
	client, err := NewOpenAIClient("test-key", "", "", "")
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}
	if _, err := client.Synchronous(context.Background(), &llm.Request{}); err == nil {
		t.Error("Expected error without a model")
	}
}
