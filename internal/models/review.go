package models

import "time"

// ReviewStatus represents the lifecycle state of a code review.
type ReviewStatus string

const (
	ReviewStatusPending    ReviewStatus = "pending"
	ReviewStatusProcessing ReviewStatus = "processing"
	ReviewStatusCompleted  ReviewStatus = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewStatusPending, ReviewStatusProcessing, ReviewStatusCompleted:
		return true
	}
	return false
}

// InProgress reports whether the backend is still working on the review.
func (s ReviewStatus) InProgress() bool {
	return s == ReviewStatusPending || s == ReviewStatusProcessing
}

// Severity is the severity level of a security issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
)

// SecurityIssue is a single finding attached to a review.
type SecurityIssue struct {
	Title          string   `json:"title,omitempty"`
	Description    string   `json:"description,omitempty"`
	Severity       Severity `json:"severity"`
	File           string   `json:"file,omitempty"`
	Line           int      `json:"line,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// CodeReview is one submitted review as returned by the backend.
type CodeReview struct {
	ID             string          `json:"id"`
	Title          string          `json:"title,omitempty"`
	Language       string          `json:"language,omitempty"`
	RepositoryURL  string          `json:"repository_url,omitempty"`
	Branch         string          `json:"branch,omitempty"`
	Status         ReviewStatus    `json:"status"`
	Summary        string          `json:"summary,omitempty"`
	SecurityIssues []SecurityIssue `json:"security_issues,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// CountSeverity returns how many security issues have the given severity.
func (r *CodeReview) CountSeverity(sev Severity) int {
	n := 0
	for _, issue := range r.SecurityIssues {
		if issue.Severity == sev {
			n++
		}
	}
	return n
}

// CreateReviewInput describes a request for a new review.
// Code is required unless RepositoryURL points at the sources.
type CreateReviewInput struct {
	Title         string `json:"title,omitempty" validate:"max=200"`
	Language      string `json:"language,omitempty" validate:"max=32"`
	Code          string `json:"code,omitempty" validate:"required_without=RepositoryURL"`
	RepositoryURL string `json:"repository_url,omitempty" validate:"omitempty,url"`
	Branch        string `json:"branch,omitempty" validate:"max=255"`
}

// ReviewList is one page of reviews.
type ReviewList struct {
	Reviews  []*CodeReview `json:"reviews,omitempty"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size,omitempty"`
}
