package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aschepis/backscratcher/toolchat/llm"
	openai "github.com/sashabaranov/go-openai"
	// Note: Using loops instead of lo.Map due to error handling requirements
)

// ToOpenAIMessages converts llm.Messages to OpenAI chat message format.
// A message carrying tool results expands into one role "tool" message per
// result, each keyed by the tool_call_id it answers.
func ToOpenAIMessages(msgs []llm.Message) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for i, msg := range msgs {
		converted, err := ToOpenAIMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to convert message %d: %w", i, err)
		}
		result = append(result, converted...)
	}
	return result, nil
}

// ToOpenAIMessage converts a single llm.Message to OpenAI format.
func ToOpenAIMessage(msg llm.Message) ([]openai.ChatCompletionMessage, error) {
	var role string
	switch msg.Role {
	case llm.RoleUser:
		role = openai.ChatMessageRoleUser
	case llm.RoleAssistant:
		role = openai.ChatMessageRoleAssistant
	case llm.RoleSystem:
		role = openai.ChatMessageRoleSystem
	default:
		return nil, fmt.Errorf("unsupported message role %q", msg.Role)
	}

	var text []string
	var toolCalls []openai.ToolCall
	var toolMsgs []openai.ChatCompletionMessage

	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			text = append(text, block.Text)
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse == nil {
				continue
			}
			input := block.ToolUse.Input
			if input == nil {
				input = map[string]interface{}{}
			}
			argsJSON, err := json.Marshal(input)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal tool input: %w", err)
			}
			toolCalls = append(toolCalls, openai.ToolCall{
				ID:   block.ToolUse.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      block.ToolUse.Name,
					Arguments: string(argsJSON),
				},
			})
		case llm.ContentBlockTypeToolResult:
			if block.ToolResult == nil {
				continue
			}
			toolMsgs = append(toolMsgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    block.ToolResult.Content,
				ToolCallID: block.ToolResult.ID,
			})
		default:
			return nil, fmt.Errorf("unsupported content block type %q", block.Type)
		}
	}

	var out []openai.ChatCompletionMessage
	if len(text) > 0 || len(toolCalls) > 0 {
		out = append(out, openai.ChatCompletionMessage{
			Role:      role,
			Content:   strings.Join(text, "\n"),
			ToolCalls: toolCalls,
		})
	}
	return append(out, toolMsgs...), nil
}

// ToOpenAITools converts llm.ToolSpecs to OpenAI function format.
// OpenAI uses a JSON schema format for function definitions.
func ToOpenAITools(specs []llm.ToolSpec) []openai.Tool {
	result := make([]openai.Tool, 0, len(specs))
	for i := range specs {
		result = append(result, ToOpenAITool(&specs[i]))
	}
	return result
}

// ToOpenAITool converts a single llm.ToolSpec to OpenAI Tool format.
func ToOpenAITool(spec *llm.ToolSpec) openai.Tool {
	function := openai.FunctionDefinition{
		Name:        spec.Name,
		Description: spec.Description,
		Parameters:  spec.Schema.AsMap(),
	}

	return openai.Tool{
		Type:     openai.ToolTypeFunction,
		Function: &function,
	}
}

// FromOpenAIToolCall converts an OpenAI tool call response to llm.ToolUseBlock.
// Arguments arrive as a JSON string; malformed arguments decode to an empty map.
func FromOpenAIToolCall(toolCall openai.ToolCall) *llm.ToolUseBlock {
	input := make(map[string]interface{})
	if toolCall.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &input); err != nil || input == nil {
			input = make(map[string]interface{})
		}
	}

	return &llm.ToolUseBlock{
		ID:    toolCall.ID,
		Name:  toolCall.Function.Name,
		Input: input,
	}
}

// FromChatCompletion converts the first choice of a completion to an llm.Response.
func FromChatCompletion(chatResp openai.ChatCompletionResponse) (*llm.Response, error) {
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	choice := chatResp.Choices[0]
	content := make([]llm.ContentBlock, 0, 1+len(choice.Message.ToolCalls))

	if choice.Message.Content != "" {
		content = append(content, llm.ContentBlock{
			Type: llm.ContentBlockTypeText,
			Text: choice.Message.Content,
		})
	}

	for _, toolCall := range choice.Message.ToolCalls {
		content = append(content, llm.ContentBlock{
			Type:    llm.ContentBlockTypeToolUse,
			ToolUse: FromOpenAIToolCall(toolCall),
		})
	}

	stopReason := "stop"
	switch choice.FinishReason {
	case openai.FinishReasonLength:
		stopReason = "max_tokens"
	case openai.FinishReasonToolCalls:
		stopReason = "tool_calls"
	}

	return &llm.Response{
		Content: content,
		Usage: &llm.Usage{
			InputTokens:  int64(chatResp.Usage.PromptTokens),
			OutputTokens: int64(chatResp.Usage.CompletionTokens),
		},
		StopReason: stopReason,
	}, nil
}
