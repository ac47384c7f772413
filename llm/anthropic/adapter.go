package anthropic

import (
	"encoding/json"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/aschepis/backscratcher/toolchat/llm"
	"github.com/samber/lo"
)

// ToMessageParam converts an llm.Message to an Anthropic MessageParam.
// Tool results become tool_result blocks keyed by the tool_use id they answer.
func ToMessageParam(msg llm.Message) (anthropic.MessageParam, error) {
	contentBlocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			if block.Text == "" {
				// the API rejects empty text blocks
				continue
			}
			contentBlocks = append(contentBlocks, anthropic.NewTextBlock(block.Text))
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse != nil {
				input := block.ToolUse.Input
				if input == nil {
					input = map[string]interface{}{}
				}
				contentBlocks = append(contentBlocks, anthropic.NewToolUseBlock(
					block.ToolUse.ID,
					input,
					block.ToolUse.Name,
				))
			}
		case llm.ContentBlockTypeToolResult:
			if block.ToolResult != nil {
				contentBlocks = append(contentBlocks, anthropic.NewToolResultBlock(
					block.ToolResult.ID,
					block.ToolResult.Content,
					block.ToolResult.IsError,
				))
			}
		default:
			return anthropic.MessageParam{}, fmt.Errorf("unsupported content block type %q", block.Type)
		}
	}

	switch msg.Role {
	case llm.RoleUser:
		return anthropic.NewUserMessage(contentBlocks...), nil
	case llm.RoleAssistant:
		return anthropic.NewAssistantMessage(contentBlocks...), nil
	default:
		return anthropic.MessageParam{}, fmt.Errorf("unsupported message role %q", msg.Role)
	}
}

// ToMessageParams converts a slice of llm.Messages to Anthropic MessageParams.
// System messages are not part of the message list; use SystemPrompt for them.
func ToMessageParams(msgs []llm.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(msgs))
	for i, msg := range msgs {
		if msg.Role == llm.RoleSystem {
			continue
		}
		anthMsg, err := ToMessageParam(msg)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		result = append(result, anthMsg)
	}
	return result, nil
}

// SystemPrompt joins the request system prompt with any system-role messages.
func SystemPrompt(req *llm.Request) string {
	system := req.System
	for _, msg := range req.Messages {
		if msg.Role != llm.RoleSystem {
			continue
		}
		if system != "" {
			system += "\n\n"
		}
		system += msg.Text()
	}
	return system
}

// ToToolUnionParam converts an llm.ToolSpec to an Anthropic ToolUnionParam.
func ToToolUnionParam(spec *llm.ToolSpec) anthropic.ToolUnionParam {
	properties := spec.Schema.Properties
	if properties == nil {
		properties = map[string]interface{}{}
	}

	toolParam := anthropic.ToolParam{
		Name: spec.Name,
		InputSchema: anthropic.ToolInputSchemaParam{
			Type:        "object",
			Properties:  properties,
			Required:    spec.Schema.Required,
			ExtraFields: spec.Schema.ExtraFields,
		},
	}
	if spec.Description != "" {
		toolParam.Description = anthropic.String(spec.Description)
	}

	return anthropic.ToolUnionParam{OfTool: &toolParam}
}

// ToToolUnionParams converts a slice of llm.ToolSpecs to Anthropic ToolUnionParams.
func ToToolUnionParams(specs []llm.ToolSpec) []anthropic.ToolUnionParam {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) anthropic.ToolUnionParam {
		return ToToolUnionParam(&spec)
	})
}

// FromMessage converts an Anthropic response message to an llm.Response,
// keeping the block order of the reply.
func FromMessage(message *anthropic.Message) *llm.Response {
	content := make([]llm.ContentBlock, 0, len(message.Content))
	for _, blockUnion := range message.Content {
		switch block := blockUnion.AsAny().(type) {
		case anthropic.TextBlock:
			content = append(content, llm.ContentBlock{
				Type: llm.ContentBlockTypeText,
				Text: block.Text,
			})
		case anthropic.ToolUseBlock:
			content = append(content, llm.ContentBlock{
				Type: llm.ContentBlockTypeToolUse,
				ToolUse: &llm.ToolUseBlock{
					ID:    block.ID,
					Name:  block.Name,
					Input: decodeInput(block.Input),
				},
			})
		}
	}

	return &llm.Response{
		Content: content,
		Usage: &llm.Usage{
			InputTokens:              message.Usage.InputTokens,
			OutputTokens:             message.Usage.OutputTokens,
			CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
		},
		StopReason: string(message.StopReason),
	}
}

func decodeInput(raw json.RawMessage) map[string]interface{} {
	input := make(map[string]interface{})
	if len(raw) == 0 {
		return input
	}
	if err := json.Unmarshal(raw, &input); err != nil || input == nil {
		return make(map[string]interface{})
	}
	return input
}
