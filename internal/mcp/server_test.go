package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/reviewctl/internal/api"
	"github.com/joescharf/reviewctl/internal/models"
	"github.com/joescharf/reviewctl/internal/store"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// mockAPI implements store.ReviewsAPI for testing.
type mockAPI struct {
	mu      sync.Mutex
	reviews []*models.CodeReview

	// Track calls for verification.
	createdInputs []models.CreateReviewInput
	deletedIDs    []string
	getCalls      int

	// Optional error injection.
	listErr   error
	getErr    error
	createErr error
	deleteErr error
}

func (m *mockAPI) GetList(_ context.Context, page, pageSize int) (*models.ReviewList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	start := (page - 1) * pageSize
	end := min(start+pageSize, len(m.reviews))
	var out []*models.CodeReview
	if start < len(m.reviews) {
		out = m.reviews[start:end]
	}
	return &models.ReviewList{Reviews: out, Total: len(m.reviews), Page: page, PageSize: pageSize}, nil
}

func (m *mockAPI) GetByID(_ context.Context, id string) (*models.CodeReview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, r := range m.reviews {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, &api.Error{StatusCode: 404, Message: "review " + id + " not found"}
}

func (m *mockAPI) Create(_ context.Context, input models.CreateReviewInput) (*models.CodeReview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createdInputs = append(m.createdInputs, input)
	if m.createErr != nil {
		return nil, m.createErr
	}
	r := &models.CodeReview{
		ID:       "rev-new",
		Title:    input.Title,
		Language: input.Language,
		Status:   models.ReviewStatusPending,
	}
	m.reviews = append([]*models.CodeReview{r}, m.reviews...)
	return r, nil
}

func (m *mockAPI) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deletedIDs = append(m.deletedIDs, id)
	return nil
}

func (m *mockAPI) Reanalyze(_ context.Context, id string) (*models.CodeReview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.reviews {
		if r.ID == id {
			cp := *r
			cp.Status = models.ReviewStatusPending
			cp.SecurityIssues = nil
			m.reviews[i] = &cp
			return &cp, nil
		}
	}
	return nil, &api.Error{StatusCode: 404, Message: "review " + id + " not found"}
}

// settle marks a review as completed so a running poll finishes.
func (m *mockAPI) settle(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.reviews {
		if r.ID == id {
			cp := *r
			cp.Status = models.ReviewStatusCompleted
			m.reviews[i] = &cp
		}
	}
}

// recordingSpawner runs tasks in goroutines and records their names.
type recordingSpawner struct {
	mu    sync.Mutex
	names []string
	errs  []error
	wg    sync.WaitGroup
}

func (r *recordingSpawner) spawn(name string, fn func(ctx context.Context) error) {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := fn(context.Background())
		r.mu.Lock()
		r.errs = append(r.errs, err)
		r.mu.Unlock()
	}()
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// newTestServer creates a Server over a store with a mock API and seed data.
func newTestServer(t *testing.T) (*Server, *mockAPI, *recordingSpawner) {
	t.Helper()

	m := &mockAPI{
		reviews: []*models.CodeReview{
			{
				ID:     "rev-1",
				Title:  "auth handler",
				Status: models.ReviewStatusCompleted,
				SecurityIssues: []models.SecurityIssue{
					{Title: "SQL injection", Severity: models.SeverityCritical},
					{Title: "weak hash", Severity: models.SeverityHigh},
				},
			},
			{ID: "rev-2", Title: "parser", Status: models.ReviewStatusProcessing},
		},
	}
	st := store.New(m, store.WithPollInterval(time.Millisecond), store.WithMaxAttempts(1000))
	t.Cleanup(st.Close)

	sp := &recordingSpawner{}
	srv := NewServer(st, sp.spawn, "test")
	require.NotNil(t, srv)
	return srv, m, sp
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

// ---------------------------------------------------------------------------
// Tests: MCPServer registration
// ---------------------------------------------------------------------------

func TestNewServer(t *testing.T) {
	srv, _, _ := newTestServer(t)
	mcpSrv := srv.MCPServer()
	require.NotNil(t, mcpSrv, "MCPServer() should return non-nil")
}

func TestNewServer_DefaultVersion(t *testing.T) {
	srv := NewServer(nil, nil, "")
	assert.Equal(t, "dev", srv.version)
}

// ---------------------------------------------------------------------------
// Tests: review_list
// ---------------------------------------------------------------------------

func TestHandleListReviews(t *testing.T) {
	srv, _, _ := newTestServer(t)

	result, err := srv.handleListReviews(context.Background(), callToolReq("review_list", nil))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var out listOut
	resultJSON(t, result, &out)
	assert.Len(t, out.Reviews, 2)
	assert.Equal(t, 2, out.Total)
	assert.Equal(t, 1, out.Page)
	assert.Equal(t, store.DefaultPageSize, out.PageSize)
	assert.Equal(t, 1, out.TotalPages)
	assert.False(t, out.HasMore)
}

func TestHandleListReviews_PageBeyondEnd(t *testing.T) {
	srv, _, _ := newTestServer(t)

	result, err := srv.handleListReviews(context.Background(), callToolReq("review_list", map[string]any{"page": float64(3)}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out listOut
	resultJSON(t, result, &out)
	assert.Empty(t, out.Reviews)
	assert.Equal(t, 3, out.Page)
}

func TestHandleListReviews_Error(t *testing.T) {
	srv, m, _ := newTestServer(t)
	m.listErr = errors.New("dial tcp: connection refused")

	result, err := srv.handleListReviews(context.Background(), callToolReq("review_list", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, store.EnglishMessages.FetchReviews, resultText(t, result))
}

// ---------------------------------------------------------------------------
// Tests: review_get
// ---------------------------------------------------------------------------

func TestHandleGetReview(t *testing.T) {
	srv, _, _ := newTestServer(t)

	result, err := srv.handleGetReview(context.Background(), callToolReq("review_get", map[string]any{"review_id": "rev-1"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var r models.CodeReview
	resultJSON(t, result, &r)
	assert.Equal(t, "rev-1", r.ID)
	assert.Len(t, r.SecurityIssues, 2)
}

func TestHandleGetReview_MissingID(t *testing.T) {
	srv, _, _ := newTestServer(t)

	result, err := srv.handleGetReview(context.Background(), callToolReq("review_get", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "review_id")
}

func TestHandleGetReview_NotFoundUsesServerMessage(t *testing.T) {
	srv, _, _ := newTestServer(t)

	result, err := srv.handleGetReview(context.Background(), callToolReq("review_get", map[string]any{"review_id": "missing"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "review missing not found", resultText(t, result))
}

// ---------------------------------------------------------------------------
// Tests: review_create
// ---------------------------------------------------------------------------

func TestHandleCreateReview(t *testing.T) {
	srv, m, sp := newTestServer(t)

	result, err := srv.handleCreateReview(context.Background(), callToolReq("review_create", map[string]any{
		"title":    "new code",
		"language": "go",
		"code":     "package main",
		"watch":    false,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var r models.CodeReview
	resultJSON(t, result, &r)
	assert.Equal(t, "rev-new", r.ID)
	assert.Equal(t, models.ReviewStatusPending, r.Status)

	require.Len(t, m.createdInputs, 1)
	assert.Equal(t, "package main", m.createdInputs[0].Code)
	assert.Empty(t, sp.names, "watch disabled")

	snap := srv.store.Snapshot()
	require.NotNil(t, snap.CurrentReview)
	assert.Equal(t, "rev-new", snap.CurrentReview.ID)
}

func TestHandleCreateReview_WatchesInBackground(t *testing.T) {
	srv, m, sp := newTestServer(t)

	result, err := srv.handleCreateReview(context.Background(), callToolReq("review_create", map[string]any{
		"repository_url": "https://github.com/acme/api",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	m.settle("rev-new")
	sp.wg.Wait()

	assert.Equal(t, []string{"poll rev-new"}, sp.names)
	assert.Equal(t, []error{nil}, sp.errs)
	assert.Equal(t, models.ReviewStatusCompleted, srv.store.Snapshot().CurrentReview.Status)
}

func TestHandleCreateReview_NeedsSource(t *testing.T) {
	srv, m, _ := newTestServer(t)

	result, err := srv.handleCreateReview(context.Background(), callToolReq("review_create", map[string]any{"title": "empty"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Empty(t, m.createdInputs)
}

func TestHandleCreateReview_Error(t *testing.T) {
	srv, m, _ := newTestServer(t)
	m.createErr = &api.Error{StatusCode: 422, Message: "language not supported"}

	result, err := srv.handleCreateReview(context.Background(), callToolReq("review_create", map[string]any{"code": "x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "language not supported", resultText(t, result))
}

// ---------------------------------------------------------------------------
// Tests: review_delete
// ---------------------------------------------------------------------------

func TestHandleDeleteReview(t *testing.T) {
	srv, m, _ := newTestServer(t)

	result, err := srv.handleDeleteReview(context.Background(), callToolReq("review_delete", map[string]any{"review_id": "rev-2"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "rev-2")
	assert.Equal(t, []string{"rev-2"}, m.deletedIDs)
}

func TestHandleDeleteReview_Error(t *testing.T) {
	srv, m, _ := newTestServer(t)
	m.deleteErr = errors.New("timeout")

	result, err := srv.handleDeleteReview(context.Background(), callToolReq("review_delete", map[string]any{"review_id": "rev-2"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, store.EnglishMessages.DeleteReview, resultText(t, result))
}

// ---------------------------------------------------------------------------
// Tests: review_reanalyze
// ---------------------------------------------------------------------------

func TestHandleReanalyzeReview(t *testing.T) {
	srv, _, sp := newTestServer(t)

	result, err := srv.handleReanalyzeReview(context.Background(), callToolReq("review_reanalyze", map[string]any{
		"review_id": "rev-1",
		"watch":     false,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var r models.CodeReview
	resultJSON(t, result, &r)
	assert.Equal(t, models.ReviewStatusPending, r.Status)
	assert.Empty(t, sp.names)
}

func TestHandleReanalyzeReview_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	result, err := srv.handleReanalyzeReview(context.Background(), callToolReq("review_reanalyze", map[string]any{"review_id": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "review nope not found", resultText(t, result))
}

// ---------------------------------------------------------------------------
// Tests: review_poll
// ---------------------------------------------------------------------------

func TestHandlePollReview_Completed(t *testing.T) {
	srv, m, _ := newTestServer(t)

	result, err := srv.handlePollReview(context.Background(), callToolReq("review_poll", map[string]any{"review_id": "rev-1"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out struct {
		Reason   string             `json:"reason"`
		Attempts int                `json:"attempts"`
		Review   *models.CodeReview `json:"review"`
	}
	resultJSON(t, result, &out)
	assert.Equal(t, "completed", out.Reason)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 1, m.getCalls)
}

func TestHandlePollReview_Exhausted(t *testing.T) {
	srv, m, _ := newTestServer(t)

	result, err := srv.handlePollReview(context.Background(), callToolReq("review_poll", map[string]any{
		"review_id":    "rev-2",
		"max_attempts": float64(2),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), `"reason":"exhausted"`)
	assert.Equal(t, 2, m.getCalls)
}

func TestHandlePollReview_Failed(t *testing.T) {
	srv, m, _ := newTestServer(t)
	m.getErr = errors.New("connection reset")

	result, err := srv.handlePollReview(context.Background(), callToolReq("review_poll", map[string]any{"review_id": "rev-2"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, store.EnglishMessages.FetchReview, resultText(t, result))
}

// ---------------------------------------------------------------------------
// Tests: review_stats
// ---------------------------------------------------------------------------

func TestHandleStats(t *testing.T) {
	srv, _, _ := newTestServer(t)

	result, err := srv.handleStats(context.Background(), callToolReq("review_stats", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out struct {
		Page  int         `json:"page"`
		Total int         `json:"total"`
		Stats store.Stats `json:"stats"`
	}
	resultJSON(t, result, &out)
	assert.Equal(t, 2, out.Total)
	assert.Equal(t, store.Stats{CriticalCount: 1, HighCount: 1, CompletedCount: 1, PendingCount: 1}, out.Stats)
}
