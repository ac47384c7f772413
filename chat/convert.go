package chat

import (
	"encoding/json"
	"fmt"

	"github.com/aschepis/backscratcher/toolchat/llm"
	"github.com/aschepis/backscratcher/toolchat/mcp"
	"github.com/samber/lo"
)

// ToToolSpecs reshapes tool server descriptors into provider-neutral tool
// specs. Names are replaced by provider-safe names registered on names,
// which may be nil to keep names unchanged. A descriptor with no name or
// with a non-object input schema is a ValidationError.
func ToToolSpecs(tools []mcp.ToolDescriptor, names *mcp.NameAdapter) ([]llm.ToolSpec, error) {
	specs := make([]llm.ToolSpec, 0, len(tools))
	for i, tool := range tools {
		spec, err := toToolSpec(tool, names)
		if err != nil {
			return nil, fmt.Errorf("tool %d: %w", i, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func toToolSpec(tool mcp.ToolDescriptor, names *mcp.NameAdapter) (llm.ToolSpec, error) {
	if tool.Name == "" {
		return llm.ToolSpec{}, NewValidationError("tool descriptor has no name")
	}

	schemaType := "object"
	if raw, ok := tool.InputSchema["type"]; ok {
		t, isString := raw.(string)
		if !isString || t != "object" {
			return llm.ToolSpec{}, NewValidationError("tool %q: input schema type must be object, got %v", tool.Name, raw)
		}
	}

	props, _ := tool.InputSchema["properties"].(map[string]interface{})
	extra := lo.OmitByKeys(tool.InputSchema, []string{"type", "properties", "required"})

	name := tool.Name
	if names != nil {
		name = names.GetSafeName(tool.Name)
	}

	return llm.ToolSpec{
		Name:        name,
		Description: tool.Description,
		Schema: llm.ToolSchema{
			Type:        schemaType,
			Properties:  props,
			Required:    requiredFields(tool.InputSchema["required"]),
			ExtraFields: extra,
		},
	}, nil
}

// requiredFields accepts both []string and the []interface{} that JSON decoding produces.
func requiredFields(raw interface{}) []string {
	switch req := raw.(type) {
	case []string:
		return req
	case []interface{}:
		return lo.FilterMap(req, func(v interface{}, _ int) (string, bool) {
			s, ok := v.(string)
			return s, ok
		})
	}
	return nil
}

// ToLLMMessages converts caller messages to provider-neutral messages.
// String content passes through; any other content is sent as its JSON text.
func ToLLMMessages(msgs []Message) ([]llm.Message, error) {
	out := make([]llm.Message, 0, len(msgs))
	for i, msg := range msgs {
		var role llm.MessageRole
		switch msg.Role {
		case RoleUser:
			role = llm.RoleUser
		case RoleAssistant:
			role = llm.RoleAssistant
		default:
			return nil, NewValidationError("message %d: unsupported role %q", i, msg.Role)
		}
		text, err := ContentText(msg.Content)
		if err != nil {
			return nil, NewValidationError("message %d: %v", i, err)
		}
		out = append(out, llm.NewTextMessage(role, text))
	}
	return out, nil
}

// ContentText renders message content as text.
func ContentText(content interface{}) (string, error) {
	switch c := content.(type) {
	case string:
		return c, nil
	case nil:
		return "", nil
	}
	data, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("encode content: %w", err)
	}
	return string(data), nil
}

// resultText is the JSON text of a tool result, as providers that take
// tool output as text receive it.
func resultText(result interface{}) string {
	if s, ok := result.(string); ok {
		return s
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(data)
}
