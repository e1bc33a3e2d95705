// Package apitest provides an in-memory review backend for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/joescharf/reviewctl/internal/models"
)

// Backend is an in-memory implementation of the review REST API.
type Backend struct {
	mu      sync.Mutex
	reviews map[string]*models.CodeReview
	nextID  int

	// requests counts calls per "METHOD /pattern" key.
	requests map[string]int

	// statusSequence is consumed one entry per GET of a review.
	statusSequence map[string][]models.ReviewStatus
	failNext       *Failure

	lastHeaders http.Header
}

// Failure is a canned error response.
type Failure struct {
	Status  int
	Message string
}

// NewBackend creates an empty backend.
func NewBackend() *Backend {
	return &Backend{
		reviews:        make(map[string]*models.CodeReview),
		requests:       make(map[string]int),
		statusSequence: make(map[string][]models.ReviewStatus),
	}
}

// Start serves the backend on an httptest server closed at test cleanup.
func (b *Backend) Start(t interface{ Cleanup(func()) }) *httptest.Server {
	srv := httptest.NewServer(b.Router())
	t.Cleanup(srv.Close)
	return srv
}

// Seed stores reviews as-is, keeping their ids.
func (b *Backend) Seed(reviews ...*models.CodeReview) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range reviews {
		cp := *r
		b.reviews[r.ID] = &cp
	}
}

// Review returns the stored copy of a review.
func (b *Backend) Review(id string) (*models.CodeReview, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.reviews[id]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// Requests returns how many times the given route key was hit,
// e.g. "GET /api/v1/reviews/{id}".
func (b *Backend) Requests(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[key]
}

// LastHeaders returns the headers of the most recent request.
func (b *Backend) LastHeaders() http.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastHeaders
}

// Fail makes the next request answer with the given status and message.
func (b *Backend) Fail(status int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = &Failure{Status: status, Message: message}
}

// Progress queues statuses returned by successive GETs of one review.
func (b *Backend) Progress(id string, statuses ...models.ReviewStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statusSequence[id] = append(b.statusSequence[id], statuses...)
}

// Router returns an http.Handler for the API routes.
func (b *Backend) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/reviews", b.track("GET /api/v1/reviews", b.listReviews))
	mux.HandleFunc("POST /api/v1/reviews", b.track("POST /api/v1/reviews", b.createReview))
	mux.HandleFunc("GET /api/v1/reviews/{id}", b.track("GET /api/v1/reviews/{id}", b.getReview))
	mux.HandleFunc("DELETE /api/v1/reviews/{id}", b.track("DELETE /api/v1/reviews/{id}", b.deleteReview))
	mux.HandleFunc("POST /api/v1/reviews/{id}/reanalyze", b.track("POST /api/v1/reviews/{id}/reanalyze", b.reanalyzeReview))

	return mux
}

func (b *Backend) track(key string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests[key]++
		b.lastHeaders = r.Header.Clone()
		fail := b.failNext
		b.failNext = nil
		b.mu.Unlock()

		if fail != nil {
			writeError(w, fail.Status, fail.Message)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	if msg == "" {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func (b *Backend) listReviews(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 {
		pageSize = 20
	}

	b.mu.Lock()
	all := make([]*models.CodeReview, 0, len(b.reviews))
	for _, rv := range b.reviews {
		cp := *rv
		all = append(all, &cp)
	}
	b.mu.Unlock()

	// Newest first, id as tie-breaker.
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(all) {
		start = len(all)
	}
	if end > len(all) {
		end = len(all)
	}

	writeJSON(w, http.StatusOK, models.ReviewList{
		Reviews:  all[start:end],
		Total:    len(all),
		Page:     page,
		PageSize: pageSize,
	})
}

func (b *Backend) getReview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	b.mu.Lock()
	rv, ok := b.reviews[id]
	if ok {
		if seq := b.statusSequence[id]; len(seq) > 0 {
			rv.Status = seq[0]
			b.statusSequence[id] = seq[1:]
		}
	}
	var cp models.CodeReview
	if ok {
		cp = *rv
	}
	b.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("review %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, &cp)
}

func (b *Backend) createReview(w http.ResponseWriter, r *http.Request) {
	var input models.CreateReviewInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	now := time.Now().UTC()
	b.mu.Lock()
	b.nextID++
	rv := &models.CodeReview{
		ID:            fmt.Sprintf("rev-%d", b.nextID),
		Title:         input.Title,
		Language:      input.Language,
		RepositoryURL: input.RepositoryURL,
		Branch:        input.Branch,
		Status:        models.ReviewStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	b.reviews[rv.ID] = rv
	cp := *rv
	b.mu.Unlock()

	writeJSON(w, http.StatusCreated, &cp)
}

func (b *Backend) deleteReview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	b.mu.Lock()
	_, ok := b.reviews[id]
	delete(b.reviews, id)
	b.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("review %s not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) reanalyzeReview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	b.mu.Lock()
	rv, ok := b.reviews[id]
	var cp models.CodeReview
	if ok {
		rv.Status = models.ReviewStatusPending
		rv.SecurityIssues = nil
		rv.CompletedAt = nil
		rv.UpdatedAt = time.Now().UTC()
		cp = *rv
	}
	b.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("review %s not found", id))
		return
	}
	writeJSON(w, http.StatusAccepted, &cp)
}
