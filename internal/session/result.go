package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolError is a failure reported by the provider inside a call result.
type ToolError struct {
	Message string
}

func (e *ToolError) Error() string {
	return "provider reported an error: " + e.Message
}

// Normalize converts a call result into a JSON object. Structured content
// wins; otherwise text parts are joined and decoded as JSON, falling back to
// {"text": ...}. Non-object JSON is returned under "result".
func Normalize(res *mcp.CallToolResult) (map[string]any, error) {
	if res == nil {
		return map[string]any{}, nil
	}
	if res.IsError {
		var msg strings.Builder
		for _, c := range res.Content {
			if tc, ok := c.(*mcp.TextContent); ok {
				msg.WriteString(tc.Text)
			}
		}
		if msg.Len() == 0 {
			return nil, &ToolError{Message: "unknown error"}
		}
		return nil, &ToolError{Message: msg.String()}
	}

	if res.StructuredContent != nil {
		if obj, ok := res.StructuredContent.(map[string]any); ok {
			return obj, nil
		}
		data, err := json.Marshal(res.StructuredContent)
		if err != nil {
			return nil, fmt.Errorf("encode structured content: %w", err)
		}
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode structured content: %w", err)
		}
		return asObject(v), nil
	}

	var texts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	combined := strings.TrimSpace(strings.Join(texts, "\n"))
	if combined == "" {
		return map[string]any{}, nil
	}
	var v any
	if err := json.Unmarshal([]byte(combined), &v); err != nil {
		return map[string]any{"text": combined}, nil
	}
	return asObject(v), nil
}

func asObject(v any) map[string]any {
	if obj, ok := v.(map[string]any); ok {
		return obj
	}
	return map[string]any{"result": v}
}
