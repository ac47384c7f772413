package gemini

import (
	"fmt"

	"github.com/aschepis/backscratcher/toolchat/llm"
	"github.com/google/generative-ai-go/genai"
)

const (
	roleUser  = "user"
	roleModel = "model"
)

// ToGenaiTools converts tool specs into a single Gemini tool holding one
// function declaration per spec.
func ToGenaiTools(specs []llm.ToolSpec) ([]*genai.Tool, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for i := range specs {
		decl, err := ToFunctionDeclaration(&specs[i])
		if err != nil {
			return nil, fmt.Errorf("failed to convert tool %s: %w", specs[i].Name, err)
		}
		decls = append(decls, decl)
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}, nil
}

// ToFunctionDeclaration converts a single tool spec. Tools without input
// properties get no Parameters, since Gemini rejects empty object schemas.
func ToFunctionDeclaration(spec *llm.ToolSpec) (*genai.FunctionDeclaration, error) {
	decl := &genai.FunctionDeclaration{
		Name:        spec.Name,
		Description: spec.Description,
	}
	if len(spec.Schema.Properties) == 0 {
		return decl, nil
	}
	params, err := ToSchema(spec.Schema.AsMap())
	if err != nil {
		return nil, err
	}
	decl.Parameters = params
	return decl, nil
}

// ToSchema converts a JSON schema object into Gemini's typed schema.
// A missing type is inferred as object when properties are present and as
// string otherwise. A ["T", "null"] type list becomes a nullable T.
func ToSchema(raw map[string]interface{}) (*genai.Schema, error) {
	schema := &genai.Schema{}

	typeName, nullable, err := schemaType(raw)
	if err != nil {
		return nil, err
	}
	schema.Nullable = nullable

	switch typeName {
	case "string":
		schema.Type = genai.TypeString
	case "number":
		schema.Type = genai.TypeNumber
	case "integer":
		schema.Type = genai.TypeInteger
	case "boolean":
		schema.Type = genai.TypeBoolean
	case "array":
		schema.Type = genai.TypeArray
	case "object":
		schema.Type = genai.TypeObject
	default:
		return nil, fmt.Errorf("unsupported schema type %q", typeName)
	}

	if desc, ok := raw["description"].(string); ok {
		schema.Description = desc
	}
	if format, ok := raw["format"].(string); ok {
		schema.Format = format
	}
	if enum, ok := raw["enum"].([]interface{}); ok {
		for _, v := range enum {
			schema.Enum = append(schema.Enum, fmt.Sprint(v))
		}
	}
	if n, ok := raw["nullable"].(bool); ok && n {
		schema.Nullable = true
	}

	if schema.Type == genai.TypeArray {
		items, ok := raw["items"].(map[string]interface{})
		if !ok {
			items = map[string]interface{}{"type": "string"}
		}
		itemSchema, err := ToSchema(items)
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		schema.Items = itemSchema
	}

	if schema.Type == genai.TypeObject {
		if props, ok := raw["properties"].(map[string]interface{}); ok && len(props) > 0 {
			schema.Properties = make(map[string]*genai.Schema, len(props))
			for name, v := range props {
				propMap, ok := v.(map[string]interface{})
				if !ok {
					return nil, fmt.Errorf("property %s: schema must be an object", name)
				}
				propSchema, err := ToSchema(propMap)
				if err != nil {
					return nil, fmt.Errorf("property %s: %w", name, err)
				}
				schema.Properties[name] = propSchema
			}
		}
		schema.Required = stringList(raw["required"])
	}

	return schema, nil
}

func schemaType(raw map[string]interface{}) (string, bool, error) {
	switch t := raw["type"].(type) {
	case string:
		return t, false, nil
	case []interface{}:
		var chosen string
		nullable := false
		for _, v := range t {
			name, _ := v.(string)
			if name == "null" {
				nullable = true
				continue
			}
			if chosen != "" {
				return "", false, fmt.Errorf("union schema types are not supported: %v", t)
			}
			chosen = name
		}
		if chosen == "" {
			return "", false, fmt.Errorf("schema type list has no concrete type")
		}
		return chosen, nullable, nil
	case nil:
		if _, ok := raw["properties"]; ok {
			return "object", false, nil
		}
		return "string", false, nil
	default:
		return "", false, fmt.Errorf("schema type must be a string, got %T", t)
	}
}

func stringList(v interface{}) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// ToContents converts llm messages into Gemini contents. Assistant turns use
// the "model" role; tool results are sent back as function responses keyed
// by tool name. System messages are skipped; see SystemInstruction.
func ToContents(msgs []llm.Message) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(msgs))
	for i, msg := range msgs {
		var role string
		switch msg.Role {
		case llm.RoleUser:
			role = roleUser
		case llm.RoleAssistant:
			role = roleModel
		case llm.RoleSystem:
			continue
		default:
			return nil, fmt.Errorf("message %d: unsupported message role %q", i, msg.Role)
		}

		parts := make([]genai.Part, 0, len(msg.Content))
		for _, block := range msg.Content {
			switch block.Type {
			case llm.ContentBlockTypeText:
				if block.Text != "" {
					parts = append(parts, genai.Text(block.Text))
				}
			case llm.ContentBlockTypeToolUse:
				if block.ToolUse != nil {
					args := block.ToolUse.Input
					if args == nil {
						args = map[string]interface{}{}
					}
					parts = append(parts, genai.FunctionCall{Name: block.ToolUse.Name, Args: args})
				}
			case llm.ContentBlockTypeToolResult:
				if block.ToolResult != nil {
					parts = append(parts, ToFunctionResponse(block.ToolResult))
				}
			default:
				return nil, fmt.Errorf("message %d: unsupported content block type %q", i, block.Type)
			}
		}
		if len(parts) == 0 {
			// Gemini rejects contents without parts
			parts = append(parts, genai.Text(""))
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents, nil
}

// ToFunctionResponse wraps a tool result as {"result": value}, or
// {"error": message} for failed invocations.
func ToFunctionResponse(result *llm.ToolResultBlock) genai.FunctionResponse {
	if result.IsError {
		return genai.FunctionResponse{
			Name:     result.Name,
			Response: map[string]interface{}{"error": result.Content},
		}
	}
	value := result.Value
	if value == nil {
		value = result.Content
	}
	return genai.FunctionResponse{
		Name:     result.Name,
		Response: map[string]interface{}{"result": value},
	}
}

// SystemInstruction joins the request system prompt and system-role messages.
func SystemInstruction(req *llm.Request) *genai.Content {
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
	if system == "" {
		return nil
	}
	return &genai.Content{Parts: []genai.Part{genai.Text(system)}}
}

// SplitHistory separates the chat history from the final turn that is sent
// as the new message. Any role ordering is accepted: a trailing model turn
// is resent with the user role, since the chat session only sends user
// content.
func SplitHistory(contents []*genai.Content) ([]*genai.Content, *genai.Content, error) {
	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("at least one message is required")
	}
	last := contents[len(contents)-1]
	if last.Role != roleUser {
		last = &genai.Content{Role: roleUser, Parts: last.Parts}
	}
	return contents[:len(contents)-1], last, nil
}

// FromResponse converts the first candidate of a Gemini response. Gemini
// does not assign call ids, so each function call gets one derived from its
// position.
func FromResponse(resp *genai.GenerateContentResponse) (*llm.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}
	candidate := resp.Candidates[0]

	var content []llm.ContentBlock
	if candidate.Content != nil {
		calls := 0
		for _, part := range candidate.Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				content = append(content, llm.ContentBlock{
					Type: llm.ContentBlockTypeText,
					Text: string(p),
				})
			case genai.FunctionCall:
				args := p.Args
				if args == nil {
					args = map[string]interface{}{}
				}
				content = append(content, llm.ContentBlock{
					Type: llm.ContentBlockTypeToolUse,
					ToolUse: &llm.ToolUseBlock{
						ID:    fmt.Sprintf("call_%s_%d", p.Name, calls),
						Name:  p.Name,
						Input: args,
					},
				})
				calls++
			}
		}
	}

	out := &llm.Response{
		Content:    content,
		StopReason: candidate.FinishReason.String(),
		Usage:      &llm.Usage{},
	}
	if resp.UsageMetadata != nil {
		out.Usage.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		out.Usage.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}
