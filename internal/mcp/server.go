package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/reviewctl/internal/models"
	"github.com/joescharf/reviewctl/internal/store"
)

// Spawner runs fn in the background. app.App.Go satisfies it.
type Spawner func(name string, fn func(ctx context.Context) error)

// Server exposes the review store as MCP tools.
type Server struct {
	store   *store.Store
	spawn   Spawner
	version string
}

// NewServer creates the MCP server wrapper. spawn may be nil, in which case
// create and reanalyze never start background polls.
func NewServer(s *store.Store, spawn Spawner, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{store: s, spawn: spawn, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("reviewctl", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listReviewsTool())
	srv.AddTool(s.getReviewTool())
	srv.AddTool(s.createReviewTool())
	srv.AddTool(s.deleteReviewTool())
	srv.AddTool(s.reanalyzeReviewTool())
	srv.AddTool(s.pollReviewTool())
	srv.AddTool(s.statsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

type listOut struct {
	Reviews    []*models.CodeReview `json:"reviews"`
	Total      int                  `json:"total"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
	TotalPages int                  `json:"total_pages"`
	HasMore    bool                 `json:"has_more"`
}

// review_list
func (s *Server) listReviewsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_list",
		mcp.WithDescription("List one page of code reviews. Returns a JSON object with reviews, total, page, page_size, total_pages and has_more."),
		mcp.WithNumber("page", mcp.Description("Page number, starting at 1 (default: 1)")),
	)
	return tool, s.handleListReviews
}

func (s *Server) handleListReviews(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page := request.GetInt("page", 1)
	if !s.store.FetchReviews(ctx, page) {
		return s.actionError(), nil
	}

	snap := s.store.Snapshot()
	return jsonResult(listOut{
		Reviews:    snap.Reviews,
		Total:      snap.Total,
		Page:       snap.CurrentPage,
		PageSize:   snap.PageSize,
		TotalPages: snap.TotalPages(),
		HasMore:    snap.HasMore(),
	})
}

// review_get
func (s *Server) getReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_get",
		mcp.WithDescription("Get one code review with its summary and security issues."),
		mcp.WithString("review_id", mcp.Required(), mcp.Description("Review ID")),
	)
	return tool, s.handleGetReview
}

func (s *Server) handleGetReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("review_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: review_id"), nil
	}
	if !s.store.FetchReview(ctx, id) {
		return s.actionError(), nil
	}
	return jsonResult(s.store.Snapshot().CurrentReview)
}

// review_create
func (s *Server) createReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_create",
		mcp.WithDescription("Submit code or a repository for review. Either code or repository_url is required. Returns the created review as JSON; analysis continues in the background and can be followed with review_poll."),
		mcp.WithString("title", mcp.Description("Review title")),
		mcp.WithString("language", mcp.Description("Source language, e.g. go, python")),
		mcp.WithString("code", mcp.Description("Source code to review")),
		mcp.WithString("repository_url", mcp.Description("Repository URL to review instead of inline code")),
		mcp.WithString("branch", mcp.Description("Branch to review")),
		mcp.WithBoolean("watch", mcp.Description("Keep polling the review status in the background (default: true)")),
	)
	return tool, s.handleCreateReview
}

func (s *Server) handleCreateReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input := models.CreateReviewInput{
		Title:         request.GetString("title", ""),
		Language:      request.GetString("language", ""),
		Code:          request.GetString("code", ""),
		RepositoryURL: request.GetString("repository_url", ""),
		Branch:        request.GetString("branch", ""),
	}
	if input.Code == "" && input.RepositoryURL == "" {
		return mcp.NewToolResultError("one of code or repository_url is required"), nil
	}

	review := s.store.CreateReview(ctx, input)
	if review == nil {
		return s.actionError(), nil
	}
	if request.GetBool("watch", true) {
		s.watch(review)
	}
	return jsonResult(review)
}

// review_delete
func (s *Server) deleteReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_delete",
		mcp.WithDescription("Delete a code review."),
		mcp.WithString("review_id", mcp.Required(), mcp.Description("Review ID")),
	)
	return tool, s.handleDeleteReview
}

func (s *Server) handleDeleteReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("review_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: review_id"), nil
	}
	if !s.store.DeleteReview(ctx, id) {
		return s.actionError(), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("review %s deleted", id)), nil
}

// review_reanalyze
func (s *Server) reanalyzeReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_reanalyze",
		mcp.WithDescription("Run the analysis of a code review again. Returns the review as JSON, usually back in pending status."),
		mcp.WithString("review_id", mcp.Required(), mcp.Description("Review ID")),
		mcp.WithBoolean("watch", mcp.Description("Keep polling the review status in the background (default: true)")),
	)
	return tool, s.handleReanalyzeReview
}

func (s *Server) handleReanalyzeReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("review_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: review_id"), nil
	}
	review := s.store.ReanalyzeReview(ctx, id)
	if review == nil {
		return s.actionError(), nil
	}
	if request.GetBool("watch", true) {
		s.watch(review)
	}
	return jsonResult(review)
}

// review_poll
func (s *Server) pollReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_poll",
		mcp.WithDescription("Wait for a review to leave pending/processing. Returns the poll outcome (completed, exhausted, failed, cancelled), the number of attempts and the last review fetched."),
		mcp.WithString("review_id", mcp.Required(), mcp.Description("Review ID")),
		mcp.WithNumber("max_attempts", mcp.Description("Maximum number of status fetches (default: configured poll.max_attempts)")),
	)
	return tool, s.handlePollReview
}

func (s *Server) handlePollReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("review_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: review_id"), nil
	}

	res, err := s.store.PollReviewStatus(ctx, id, request.GetInt("max_attempts", 0))
	if res.Reason == store.PollFailed {
		msg := s.store.Snapshot().Error
		if msg == "" && err != nil {
			msg = err.Error()
		}
		return mcp.NewToolResultError(msg), nil
	}

	return jsonResult(map[string]any{
		"review_id": res.ID,
		"reason":    res.Reason,
		"attempts":  res.Attempts,
		"review":    res.Review,
	})
}

// review_stats
func (s *Server) statsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_stats",
		mcp.WithDescription("Summarize one page of reviews: critical and high finding counts, completed and pending review counts."),
		mcp.WithNumber("page", mcp.Description("Page number, starting at 1 (default: 1)")),
	)
	return tool, s.handleStats
}

func (s *Server) handleStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.store.FetchReviews(ctx, request.GetInt("page", 1)) {
		return s.actionError(), nil
	}
	snap := s.store.Snapshot()
	return jsonResult(map[string]any{
		"page":  snap.CurrentPage,
		"total": snap.Total,
		"stats": snap.Stats(),
	})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// watch polls a review that is still in progress until it settles.
func (s *Server) watch(review *models.CodeReview) {
	if s.spawn == nil || !review.Status.InProgress() {
		return
	}
	id := review.ID
	s.spawn("poll "+id, func(ctx context.Context) error {
		res, err := s.store.PollReviewStatus(ctx, id, 0)
		if res.Reason == store.PollFailed {
			return fmt.Errorf("poll review %s: %w", id, err)
		}
		return nil
	})
}

// actionError reports the store's user-facing error message.
func (s *Server) actionError() *mcp.CallToolResult {
	msg := s.store.Snapshot().Error
	if msg == "" {
		msg = "request failed"
	}
	return mcp.NewToolResultError(msg)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
