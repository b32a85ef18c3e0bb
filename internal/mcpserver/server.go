// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes idea board tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/webdevcody/youtube-video-suggestions/internal/apperr"
	"github.com/webdevcody/youtube-video-suggestions/internal/ideaservice"
	"github.com/webdevcody/youtube-video-suggestions/internal/models"
)

// Server wraps the MCP server with idea board tools.
type Server struct {
	mcp    *server.MCPServer
	svc    *ideaservice.Service
	caller ideaservice.Caller
}

// New creates a new MCP server with all tools registered. Writes are
// attributed to caller.
func New(svc *ideaservice.Service, caller ideaservice.Caller) *Server {
	s := &Server{svc: svc, caller: caller}

	s.mcp = server.NewMCPServer(
		"Idea Board",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_ideas",
		mcp.WithDescription("List video ideas, most upvoted first. Filters are optional and combine."),
		mcp.WithBoolean("published", mcp.Description("true for published ideas, false for fresh ones; omit for both")),
		mcp.WithString("tags", mcp.Description("Comma-separated tag names; ideas must carry all of them")),
		mcp.WithString("query", mcp.Description("Case-insensitive search over title and description")),
	), s.listIdeas)

	s.mcp.AddTool(mcp.NewTool("get_idea",
		mcp.WithDescription("Fetch a single idea with its tags and upvote count."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Idea ID")),
	), s.getIdea)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List every tag with the number of ideas carrying it."),
	), s.listTags)

	s.mcp.AddTool(mcp.NewTool("submit_idea",
		mcp.WithDescription("Submit a new video idea. Tags are generated automatically. "+
			"Read the submission guidelines first via the "+GuidelinesURI+" resource."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Idea title, 1 to 100 characters")),
		mcp.WithString("description", mcp.Description("Optional description, up to 500 characters")),
	), s.submitIdea)

	s.mcp.AddTool(mcp.NewTool("upvote_idea",
		mcp.WithDescription("Upvote an existing idea. Upvoting twice has no further effect."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Idea ID")),
	), s.upvoteIdea)

	s.mcp.AddTool(mcp.NewTool("quota_status",
		mcp.WithDescription("Report how many automatic tagging calls remain."),
	), s.quotaStatus)

	s.mcp.AddResource(
		mcp.NewResource(GuidelinesURI, "Submission Guidelines",
			mcp.WithResourceDescription("What a good idea submission looks like."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGuidelines,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listIdeas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var f models.IdeaFilter
	if v, ok := req.GetArguments()["published"]; ok {
		published, isBool := v.(bool)
		if !isBool {
			return mcp.NewToolResultError("published must be a boolean"), nil
		}
		f.Published = &published
	}
	for _, t := range strings.Split(req.GetString("tags", ""), ",") {
		if t = strings.TrimSpace(t); t != "" {
			f.Tags = append(f.Tags, t)
		}
	}
	f.Query = req.GetString("query", "")

	ideas, err := s.svc.ListIdeas(ctx, s.caller.UserID, f)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(ideas), nil
}

func (s *Server) getIdea(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	idea, err := s.svc.GetIdea(ctx, s.caller.UserID, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(idea), nil
}

func (s *Server) listTags(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := s.svc.ListTags(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(tags), nil
}

func (s *Server) submitIdea(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := ideaservice.CreateInput{Title: title}
	if d := req.GetString("description", ""); d != "" {
		in.Description = &d
	}

	idea, err := s.svc.CreateIdea(ctx, s.caller, "", in)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(idea), nil
}

func (s *Server) upvoteIdea(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	idea, err := s.svc.Upvote(ctx, s.caller, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(idea), nil
}

func (s *Server) quotaStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := s.svc.QuotaStatus(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(q), nil
}

func (s *Server) readGuidelines(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      GuidelinesURI,
			MIMEType: "text/markdown",
			Text:     SubmissionGuidelines,
		},
	}, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

// toolError maps service errors to tool errors. Tool failures are
// reported in the result, not as protocol errors.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found")
	case errors.Is(err, apperr.ErrValidation),
		errors.Is(err, apperr.ErrUnauthorized),
		errors.Is(err, apperr.ErrForbidden):
		return mcp.NewToolResultError(err.Error())
	default:
		return mcp.NewToolResultError(fmt.Sprintf("internal error: %v", err))
	}
}
