package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/learntube/learntube/internal/oracle"
	"github.com/learntube/learntube/internal/preferences"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Roadmaps    Roadmaps
	Preferences Preferences
	Recommender Recommender
	Assistant   Assistant
}

// NewMCPServer creates an MCP server exposing the learner's roadmap and the
// recommendation oracle as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"learntube",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("learntube: personal learning roadmaps backed by curated YouTube courses."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_roadmap",
			mcp.WithDescription("List every step of a user's learning roadmap in order."),
			mcp.WithString("user_id", mcp.Description("User id"), mcp.Required()),
		),
		mcpGetRoadmap(deps),
	)

	s.AddTool(
		mcp.NewTool("current_step",
			mcp.WithDescription("Return the user's active roadmap step, the first one not completed."),
			mcp.WithString("user_id", mcp.Description("User id"), mcp.Required()),
		),
		mcpCurrentStep(deps),
	)

	s.AddTool(
		mcp.NewTool("complete_step",
			mcp.WithDescription("Mark a step completed and activate the next one."),
			mcp.WithString("user_id", mcp.Description("User id"), mcp.Required()),
			mcp.WithString("step_id", mcp.Description("Step to complete"), mcp.Required()),
		),
		mcpCompleteStep(deps),
	)

	s.AddTool(
		mcp.NewTool("step_videos",
			mcp.WithDescription("Return the saved playlists and videos for a step, resolving them on first use."),
			mcp.WithString("step_id", mcp.Description("Step id"), mcp.Required()),
		),
		mcpStepVideos(deps),
	)

	s.AddTool(
		mcp.NewTool("recommend_courses",
			mcp.WithDescription("Recommend YouTube courses for topics. Uses the user's categories when no topics are given."),
			mcp.WithString("categories", mcp.Description("Comma-separated topics")),
			mcp.WithString("user_id", mcp.Description("User whose categories to use")),
		),
		mcpRecommendCourses(deps),
	)

	s.AddTool(
		mcp.NewTool("ask_learntube",
			mcp.WithDescription("Ask the learning assistant a question."),
			mcp.WithString("message", mcp.Description("The question"), mcp.Required()),
			mcp.WithString("user_id", mcp.Description("Optional user for personalized answers")),
		),
		mcpAsk(deps),
	)

	return s
}

func mcpGetRoadmap(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		return mcpJSON(deps.Roadmaps.GetRoadmapSteps(ctx, userID)), nil
	}
}

func mcpCurrentStep(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		step := deps.Roadmaps.GetCurrentStep(ctx, userID)
		if step == nil {
			return mcpText("No active step: the roadmap is complete or has not been generated."), nil
		}
		return mcpJSON(step), nil
	}
}

func mcpCompleteStep(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		stepID, err := req.RequireString("step_id")
		if err != nil {
			return mcpError("step_id is required"), nil
		}

		next, err := deps.Roadmaps.CompleteStepAndMoveNext(ctx, userID, stepID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to complete step: %v", err)), nil
		}
		if next == nil {
			return mcpText("Step completed. That was the last step of the roadmap."), nil
		}
		return mcpJSON(next), nil
	}
}

func mcpStepVideos(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stepID, err := req.RequireString("step_id")
		if err != nil {
			return mcpError("step_id is required"), nil
		}
		step, err := deps.Roadmaps.GetStep(ctx, stepID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load step: %v", err)), nil
		}
		videos, err := deps.Roadmaps.FetchAndSavePlaylistsForStep(ctx, step)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to resolve content: %v", err)), nil
		}
		return mcpJSON(videos), nil
	}
}

func mcpRecommendCourses(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var cats []string
		for _, c := range strings.Split(req.GetString("categories", ""), ",") {
			if c = strings.TrimSpace(c); c != "" {
				cats = append(cats, c)
			}
		}
		if len(cats) == 0 {
			userID := req.GetString("user_id", "")
			if userID == "" {
				return mcpError("categories or user_id is required"), nil
			}
			p, err := deps.Preferences.Get(ctx, userID)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to load preferences: %v", err)), nil
			}
			cats = p.SelectedCategories
		}
		return mcpJSON(deps.Recommender.GetCourseRecommendations(ctx, cats)), nil
	}
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		var user oracle.UserContext
		if userID := req.GetString("user_id", ""); userID != "" {
			p, err := deps.Preferences.Get(ctx, userID)
			switch {
			case err == nil:
				user.Categories = p.SelectedCategories
				user.Keywords = p.Keywords
			case !errors.Is(err, preferences.ErrNoPreferences):
				return mcpError(fmt.Sprintf("failed to load preferences: %v", err)), nil
			}
		}
		return mcpText(deps.Assistant.Chat(ctx, message, user, nil)), nil
	}
}

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
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

