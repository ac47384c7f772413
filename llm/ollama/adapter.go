package ollama

import (
	"fmt"
	"strings"

	"github.com/aschepis/backscratcher/toolchat/llm"
	"github.com/ollama/ollama/api"
	"github.com/samber/lo"
)

// validateAndConvertToolArguments validates required parameters and converts
// argument values to their proper types based on the tool schema. Local models
// often emit numbers as strings, which the tool server would reject.
func validateAndConvertToolArguments(toolName string, args map[string]interface{}, schema llm.ToolSchema) (api.ToolCallFunctionArguments, error) {
	result := make(api.ToolCallFunctionArguments)

	// Check that all required parameters are present and non-empty
	for _, reqParam := range schema.Required {
		val, exists := args[reqParam]
		if !exists {
			// Build helpful error message showing what was provided
			providedKeys := make([]string, 0, len(args))
			for k := range args {
				providedKeys = append(providedKeys, k)
			}
			return nil, fmt.Errorf("missing required parameter '%s' for tool '%s' (provided: %v)", reqParam, toolName, providedKeys)
		}
		// Check if value is empty (nil, empty string, etc.)
		if isEmptyValue(val) {
			return nil, fmt.Errorf("required parameter '%s' for tool '%s' cannot be empty", reqParam, toolName)
		}
	}

	// Convert arguments based on schema types
	properties := schema.Properties
	if properties == nil {
		properties = make(map[string]interface{})
	}

	for k, v := range args {
		// Get the property schema for this parameter
		propSchema, exists := properties[k]
		if !exists {
			// Parameter not in schema, pass through as-is
			result[k] = v
			continue
		}

		// Extract type from property schema
		propType := getPropertyType(propSchema)

		// Convert value to the correct type
		converted, err := convertValueToType(v, propType, k)
		if err != nil {
			return nil, fmt.Errorf("failed to convert parameter '%s' for tool '%s': %w", k, toolName, err)
		}

		result[k] = converted
	}

	return result, nil
}

// isEmptyValue checks if a value is considered empty (nil, empty string, empty array, etc.)
func isEmptyValue(v interface{}) bool {
	if v == nil {
		return true
	}

	switch val := v.(type) {
	case string:
		return val == ""
	case []interface{}:
		return len(val) == 0
	case []string:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	}

	return false
}

// getPropertyType extracts the type from a property schema definition
func getPropertyType(propSchema interface{}) string {
	if propMap, ok := propSchema.(map[string]interface{}); ok {
		if propType, ok := propMap["type"].(string); ok {
			return propType
		}
	}
	return "string" // Default type
}

// convertValueToType converts a value to the specified type
func convertValueToType(v interface{}, targetType, paramName string) (interface{}, error) {
	// If already the correct type, return as-is
	switch targetType {
	case "integer", "int":
		return convertToInteger(v, paramName)
	case "number", "float":
		return convertToNumber(v, paramName)
	case "boolean", "bool":
		return convertToBoolean(v, paramName)
	case "string":
		return convertToString(v), nil
	case "array":
		// Arrays are typically passed through, but we could validate
		return v, nil
	case "object":
		// Objects are typically passed through
		return v, nil
	default:
		// Unknown type, pass through
		return v, nil
	}
}

// convertToInteger converts a value to an integer
func convertToInteger(v interface{}, paramName string) (interface{}, error) {
	switch val := v.(type) {
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case float64:
		return int(val), nil
	case string:
		// Try to parse string as integer
		var i int
		if _, err := fmt.Sscanf(val, "%d", &i); err != nil {
			return nil, fmt.Errorf("parameter '%s': cannot convert '%s' to integer", paramName, val)
		}
		return i, nil
	default:
		return nil, fmt.Errorf("parameter '%s': cannot convert %T to integer", paramName, v)
	}
}

// convertToNumber converts a value to a float64
func convertToNumber(v interface{}, paramName string) (interface{}, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(val, "%f", &f); err != nil {
			return nil, fmt.Errorf("parameter '%s': cannot convert '%s' to number", paramName, val)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("parameter '%s': cannot convert %T to number", paramName, v)
	}
}

// convertToBoolean converts a value to a boolean
func convertToBoolean(v interface{}, paramName string) (interface{}, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		default:
			return nil, fmt.Errorf("parameter '%s': cannot convert '%s' to boolean", paramName, val)
		}
	case int:
		return val != 0, nil
	default:
		return nil, fmt.Errorf("parameter '%s': cannot convert %T to boolean", paramName, v)
	}
}

// convertToString converts a value to a string
func convertToString(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// ToOllamaMessages converts llm.Messages to Ollama chat message format.
// Tool specs are used to validate and coerce the arguments of tool calls.
func ToOllamaMessages(msgs []llm.Message, toolSpecs []llm.ToolSpec) ([]api.Message, error) {
	toolSpecMap := lo.KeyBy(toolSpecs, func(spec llm.ToolSpec) string { return spec.Name })

	result := make([]api.Message, 0, len(msgs))
	for i, msg := range msgs {
		converted, err := ToOllamaMessage(msg, toolSpecMap)
		if err != nil {
			return nil, fmt.Errorf("failed to convert message %d: %w", i, err)
		}
		result = append(result, converted...)
	}
	return result, nil
}

// ToOllamaMessage converts a single llm.Message to Ollama format.
// Tool results become separate role "tool" messages.
func ToOllamaMessage(msg llm.Message, toolSpecMap map[string]llm.ToolSpec) ([]api.Message, error) {
	switch msg.Role {
	case llm.RoleUser, llm.RoleAssistant, llm.RoleSystem:
	default:
		return nil, fmt.Errorf("unsupported message role %q", msg.Role)
	}

	var text []string
	var toolCalls []api.ToolCall
	var toolMsgs []api.Message

	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			text = append(text, block.Text)
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse == nil {
				continue
			}
			var args api.ToolCallFunctionArguments
			if spec, ok := toolSpecMap[block.ToolUse.Name]; ok {
				converted, err := validateAndConvertToolArguments(block.ToolUse.Name, block.ToolUse.Input, spec.Schema)
				if err != nil {
					return nil, fmt.Errorf("tool argument validation failed: %w", err)
				}
				args = converted
			} else {
				args = make(api.ToolCallFunctionArguments)
				for k, v := range block.ToolUse.Input {
					args[k] = v
				}
			}
			toolCalls = append(toolCalls, api.ToolCall{
				Function: api.ToolCallFunction{
					Name:      block.ToolUse.Name,
					Arguments: args,
				},
			})
		case llm.ContentBlockTypeToolResult:
			if block.ToolResult == nil {
				continue
			}
			toolMsgs = append(toolMsgs, api.Message{
				Role:    "tool",
				Content: block.ToolResult.Content,
			})
		default:
			return nil, fmt.Errorf("unsupported content block type %q", block.Type)
		}
	}

	var out []api.Message
	if len(text) > 0 || len(toolCalls) > 0 {
		out = append(out, api.Message{
			Role:      string(msg.Role),
			Content:   strings.Join(text, "\n"),
			ToolCalls: toolCalls,
		})
	}
	return append(out, toolMsgs...), nil
}

// ToOllamaTools converts llm.ToolSpecs to Ollama function format.
func ToOllamaTools(specs []llm.ToolSpec) []api.Tool {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) api.Tool {
		return ToOllamaTool(&spec)
	})
}

// ToOllamaTool converts a single llm.ToolSpec to Ollama Tool format.
// Ollama's property schema is flat, so nested schemas keep only their type
// and description.
func ToOllamaTool(spec *llm.ToolSpec) api.Tool {
	properties := make(map[string]api.ToolProperty, len(spec.Schema.Properties))
	for k, v := range spec.Schema.Properties {
		toolProp := api.ToolProperty{Type: []string{getPropertyType(v)}}
		if propMap, ok := v.(map[string]interface{}); ok {
			if desc, ok := propMap["description"].(string); ok {
				toolProp.Description = desc
			}
		}
		properties[k] = toolProp
	}

	schemaType := spec.Schema.Type
	if schemaType == "" {
		schemaType = "object"
	}

	return api.Tool{
		Type: "function",
		Function: api.ToolFunction{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters: api.ToolFunctionParameters{
				Type:       schemaType,
				Properties: properties,
				Required:   spec.Schema.Required,
			},
		},
	}
}

// FromOllamaToolCall converts an Ollama tool call response to llm.ToolUseBlock.
// Ollama does not assign call ids, so one is derived from the call position.
func FromOllamaToolCall(toolCall api.ToolCall, index int) *llm.ToolUseBlock {
	input := make(map[string]interface{}, len(toolCall.Function.Arguments))
	for k, v := range toolCall.Function.Arguments {
		input[k] = v
	}

	return &llm.ToolUseBlock{
		ID:    fmt.Sprintf("call_%s_%d", toolCall.Function.Name, index),
		Name:  toolCall.Function.Name,
		Input: input,
	}
}

// FromChatResponse converts an Ollama chat response to an llm.Response.
func FromChatResponse(chatResp api.ChatResponse) *llm.Response {
	content := make([]llm.ContentBlock, 0, 1+len(chatResp.Message.ToolCalls))
	if chatResp.Message.Content != "" {
		content = append(content, llm.ContentBlock{
			Type: llm.ContentBlockTypeText,
			Text: chatResp.Message.Content,
		})
	}
	for i, toolCall := range chatResp.Message.ToolCalls {
		content = append(content, llm.ContentBlock{
			Type:    llm.ContentBlockTypeToolUse,
			ToolUse: FromOllamaToolCall(toolCall, i),
		})
	}

	stopReason := "end_turn"
	if chatResp.Done {
		stopReason = "stop"
	}
	if chatResp.DoneReason != "" {
		stopReason = chatResp.DoneReason
	}

	return &llm.Response{
		Content: content,
		Usage: &llm.Usage{
			InputTokens:  int64(chatResp.PromptEvalCount),
			OutputTokens: int64(chatResp.EvalCount),
		},
		StopReason: stopReason,
	}
}
