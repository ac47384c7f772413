package mcp

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/lo"
)

// ToolDescriptor describes one tool offered by a tool server.
type ToolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ToolSummary is the name/description pair reported to callers after connecting.
type ToolSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Summaries strips schemas from descriptors.
func Summaries(tools []ToolDescriptor) []ToolSummary {
	return lo.Map(tools, func(tool ToolDescriptor, _ int) ToolSummary {
		return ToolSummary{Name: tool.Name, Description: tool.Description}
	})
}

// fromMCPTool converts an mcp-go tool definition. Servers may send their
// schema raw; otherwise the structured schema is flattened into a map.
func fromMCPTool(tool mcp.Tool) ToolDescriptor {
	inputSchema := make(map[string]interface{})
	if len(tool.RawInputSchema) > 0 {
		if err := json.Unmarshal(tool.RawInputSchema, &inputSchema); err != nil || inputSchema == nil {
			inputSchema = make(map[string]interface{})
		}
	} else {
		inputSchema["type"] = tool.InputSchema.Type
		if tool.InputSchema.Properties != nil {
			inputSchema["properties"] = tool.InputSchema.Properties
		}
		if len(tool.InputSchema.Required) > 0 {
			inputSchema["required"] = tool.InputSchema.Required
		}
		if len(tool.InputSchema.Defs) > 0 {
			inputSchema["$defs"] = tool.InputSchema.Defs
		}
	}
	// tool input schemas are always objects; servers sometimes omit the type
	if t, ok := inputSchema["type"]; !ok || t == "" {
		inputSchema["type"] = "object"
	}

	return ToolDescriptor{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: inputSchema,
	}
}
