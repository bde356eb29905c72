package mcpserver

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"ore-autominer/internal/app/control"
)

func toolResult(data any) *mcp.CallToolResult {
	return mcp.NewToolResultStructuredOnly(data)
}

func toolError(code, message string) *mcp.CallToolResult {
	result := mcp.NewToolResultStructured(
		map[string]any{
			"error": map[string]any{
				"code":    code,
				"message": message,
			},
		},
		fmt.Sprintf("%s: %s", code, message),
	)
	result.IsError = true
	return result
}

// serviceError carries the same codes the HTTP API returns.
func serviceError(err error) *mcp.CallToolResult {
	if err == nil {
		return toolError(control.CodeInternal, "unknown error")
	}
	return toolError(control.Code(err), err.Error())
}
