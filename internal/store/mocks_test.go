package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/joescharf/reviewctl/internal/models"
)

// mockAPI implements ReviewsAPI for testing.
type mockAPI struct {
	mu sync.Mutex

	list    *models.ReviewList
	reviews map[string]*models.CodeReview
	created *models.CodeReview

	// getSequence, when non-empty, is consumed by GetByID before reviews.
	// The last entry repeats.
	getSequence []*models.CodeReview

	// Track calls for verification.
	listCalls     []int
	getCalls      int
	deletedIDs    []string
	reanalyzedIDs []string
	createdInputs []models.CreateReviewInput
	lastPageSize  int

	// Optional error injection.
	listErr      error
	getErr       error
	getErrAfter  int
	createErr    error
	deleteErr    error
	reanalyzeErr error

	// block, when set, holds every call until it is closed.
	block chan struct{}
}

func newMockAPI() *mockAPI {
	return &mockAPI{reviews: make(map[string]*models.CodeReview)}
}

func (m *mockAPI) wait(ctx context.Context) error {
	m.mu.Lock()
	block := m.block
	m.mu.Unlock()
	if block == nil {
		return nil
	}
	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mockAPI) GetList(ctx context.Context, page, pageSize int) (*models.ReviewList, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls = append(m.listCalls, page)
	m.lastPageSize = pageSize
	if m.listErr != nil {
		return nil, m.listErr
	}
	if m.list == nil {
		return &models.ReviewList{Page: page}, nil
	}
	return m.list, nil
}

func (m *mockAPI) GetByID(ctx context.Context, id string) (*models.CodeReview, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.getErr != nil && m.getCalls > m.getErrAfter {
		return nil, m.getErr
	}
	if len(m.getSequence) > 0 {
		r := m.getSequence[0]
		if len(m.getSequence) > 1 {
			m.getSequence = m.getSequence[1:]
		}
		return r, nil
	}
	r, ok := m.reviews[id]
	if !ok {
		return nil, fmt.Errorf("review %s not found", id)
	}
	return r, nil
}

func (m *mockAPI) Create(ctx context.Context, input models.CreateReviewInput) (*models.CodeReview, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createdInputs = append(m.createdInputs, input)
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.created, nil
}

func (m *mockAPI) Delete(ctx context.Context, id string) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deletedIDs = append(m.deletedIDs, id)
	return nil
}

func (m *mockAPI) Reanalyze(ctx context.Context, id string) (*models.CodeReview, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reanalyzeErr != nil {
		return nil, m.reanalyzeErr
	}
	m.reanalyzedIDs = append(m.reanalyzedIDs, id)
	return &models.CodeReview{ID: id, Status: models.ReviewStatusPending}, nil
}

func (m *mockAPI) getCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCalls
}

func review(id string, status models.ReviewStatus, severities ...models.Severity) *models.CodeReview {
	r := &models.CodeReview{ID: id, Status: status}
	for _, sev := range severities {
		r.SecurityIssues = append(r.SecurityIssues, models.SecurityIssue{Severity: sev})
	}
	return r
}
