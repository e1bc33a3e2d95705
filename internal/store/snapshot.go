package store

import "github.com/joescharf/reviewctl/internal/models"

// Snapshot is a point-in-time view of the store.
type Snapshot struct {
	Reviews       []*models.CodeReview
	CurrentReview *models.CodeReview
	Total         int
	CurrentPage   int
	PageSize      int
	IsLoading     bool
	// Error is the user-facing message of the last failed action, or "".
	Error string
}

// Stats aggregates the reviews of the current page.
type Stats struct {
	CriticalCount  int `json:"critical_count"`
	HighCount      int `json:"high_count"`
	CompletedCount int `json:"completed_count"`
	PendingCount   int `json:"pending_count"`
}

// TotalPages is ceil(Total/PageSize), or 0 when PageSize is not positive.
func (s Snapshot) TotalPages() int {
	if s.PageSize <= 0 {
		return 0
	}
	return (s.Total + s.PageSize - 1) / s.PageSize
}

// HasMore reports whether pages exist after the current one.
func (s Snapshot) HasMore() bool {
	return s.CurrentPage < s.TotalPages()
}

// Stats counts issues by severity and reviews by status over the loaded page.
func (s Snapshot) Stats() Stats {
	var st Stats
	for _, r := range s.Reviews {
		st.CriticalCount += r.CountSeverity(models.SeverityCritical)
		st.HighCount += r.CountSeverity(models.SeverityHigh)
		switch {
		case r.Status == models.ReviewStatusCompleted:
			st.CompletedCount++
		case r.Status.InProgress():
			st.PendingCount++
		}
	}
	return st
}

// Find returns the loaded review with the given id.
func (s Snapshot) Find(id string) (*models.CodeReview, bool) {
	for _, r := range s.Reviews {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

func (s Snapshot) clone() Snapshot {
	cp := s
	cp.Reviews = make([]*models.CodeReview, len(s.Reviews))
	copy(cp.Reviews, s.Reviews)
	return cp
}
