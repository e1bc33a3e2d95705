package store

import (
	"context"

	"github.com/joescharf/reviewctl/internal/models"
)

// FetchReviews loads the given page (pages start at 1) and replaces the
// snapshot with it. On failure the snapshot is left unchanged.
func (s *Store) FetchReviews(ctx context.Context, page int) bool {
	if page < 1 {
		page = 1
	}
	s.begin()
	defer s.end()

	list, err := s.api.GetList(ctx, page, s.pageSize())
	if err != nil {
		s.fail("fetch_reviews", err, s.messages.FetchReviews)
		return false
	}

	reviews := list.Reviews
	if reviews == nil {
		reviews = []*models.CodeReview{}
	}
	s.update(func(st *Snapshot) {
		st.Reviews = reviews
		st.Total = list.Total
		st.CurrentPage = list.Page
	})
	return true
}

// FetchReview loads one review as the current review.
func (s *Store) FetchReview(ctx context.Context, id string) bool {
	s.begin()
	defer s.end()

	review, err := s.api.GetByID(ctx, id)
	if err != nil {
		s.fail("fetch_review", err, s.messages.FetchReview)
		return false
	}

	s.update(func(st *Snapshot) {
		st.CurrentReview = review
	})
	return true
}

// CreateReview submits a review, prepends it to the list and makes it
// current. It returns nil on failure.
func (s *Store) CreateReview(ctx context.Context, input models.CreateReviewInput) *models.CodeReview {
	s.begin()
	defer s.end()

	review, err := s.api.Create(ctx, input)
	if err != nil {
		s.fail("create_review", err, s.messages.CreateReview)
		return nil
	}

	s.update(func(st *Snapshot) {
		reviews := make([]*models.CodeReview, 0, len(st.Reviews)+1)
		reviews = append(reviews, review)
		st.Reviews = append(reviews, st.Reviews...)
		st.CurrentReview = review
	})
	return review
}

// DeleteReview deletes a review on the backend and drops it from the
// snapshot. Deleting an id that is not loaded still reports success.
func (s *Store) DeleteReview(ctx context.Context, id string) bool {
	s.begin()
	defer s.end()

	if err := s.api.Delete(ctx, id); err != nil {
		s.fail("delete_review", err, s.messages.DeleteReview)
		return false
	}

	s.update(func(st *Snapshot) {
		reviews := make([]*models.CodeReview, 0, len(st.Reviews))
		for _, r := range st.Reviews {
			if r.ID != id {
				reviews = append(reviews, r)
			}
		}
		st.Reviews = reviews
		if st.CurrentReview != nil && st.CurrentReview.ID == id {
			st.CurrentReview = nil
		}
	})
	return true
}

// ReanalyzeReview asks the backend to analyze a review again and replaces
// the loaded copy in place. It returns nil on failure.
func (s *Store) ReanalyzeReview(ctx context.Context, id string) *models.CodeReview {
	s.begin()
	defer s.end()

	review, err := s.api.Reanalyze(ctx, id)
	if err != nil {
		s.fail("reanalyze_review", err, s.messages.ReanalyzeReview)
		return nil
	}

	s.applyReview(id, review)
	return review
}

// ClearCurrentReview unsets the current review.
func (s *Store) ClearCurrentReview() {
	s.update(func(st *Snapshot) {
		st.CurrentReview = nil
	})
}

// applyReview replaces the list entry and the current review matching id.
func (s *Store) applyReview(id string, review *models.CodeReview) {
	s.update(func(st *Snapshot) {
		for i, r := range st.Reviews {
			if r.ID == id {
				reviews := make([]*models.CodeReview, len(st.Reviews))
				copy(reviews, st.Reviews)
				reviews[i] = review
				st.Reviews = reviews
				break
			}
		}
		if st.CurrentReview != nil && st.CurrentReview.ID == id {
			st.CurrentReview = review
		}
	})
}

// fail records the user-facing message for err.
func (s *Store) fail(action string, err error, fallback string) {
	msg := userMessage(err, fallback)
	s.log.Debug("review action failed", "action", action, "error", err, "message", msg)
	s.update(func(st *Snapshot) {
		st.Error = msg
	})
}
