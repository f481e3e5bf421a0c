package api

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/avoskov/lectern/internal/tools"
)

// ToolExecutor runs a registered tool by name. Satisfied by *tools.Registry.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any) (tools.Result, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Tools   ToolExecutor
	Version string
}

// NewMCPServer creates an MCP server exposing the retrieval tools to
// external MCP clients. The handlers delegate to the same tool
// implementations the query orchestrator uses.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"lectern",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithInstructions("lectern — semantic search over a local course-materials library."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_course_content",
			mcp.WithDescription("Search course materials with smart course name matching and lesson filtering."),
			mcp.WithString("query", mcp.Description("What to search for in the course content"), mcp.Required()),
			mcp.WithString("course_name", mcp.Description("Course title (partial matches work)")),
			mcp.WithNumber("lesson_number", mcp.Description("Specific lesson number to search within")),
		),
		mcpSearchCourseContent(deps),
	)

	s.AddTool(
		mcp.NewTool("get_course_outline",
			mcp.WithDescription("Get the complete outline of a course: its title, link, and full lesson list."),
			mcp.WithString("course_title", mcp.Description("Course title (partial matches work)"), mcp.Required()),
		),
		mcpGetCourseOutline(deps),
	)

	return s
}

func mcpSearchCourseContent(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		args := map[string]any{"query": query}
		if course := req.GetString("course_name", ""); course != "" {
			args["course_name"] = course
		}
		if lesson := req.GetInt("lesson_number", -1); lesson >= 0 {
			args["lesson_number"] = lesson
		}

		result, err := deps.Tools.Execute(ctx, "search_course_content", args)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return mcpText(result.Text), nil
	}
}

func mcpGetCourseOutline(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		courseTitle, err := req.RequireString("course_title")
		if err != nil {
			return mcpError("course_title is required"), nil
		}

		result, err := deps.Tools.Execute(ctx, "get_course_outline", map[string]any{"course_title": courseTitle})
		if err != nil {
			return mcpError(fmt.Sprintf("outline failed: %v", err)), nil
		}
		return mcpText(result.Text), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
