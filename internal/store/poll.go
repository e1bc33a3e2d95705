package store

import (
	"context"
	"time"

	"github.com/joescharf/reviewctl/internal/models"
)

// PollReason says why a poll stopped.
type PollReason string

const (
	PollCompleted PollReason = "completed"
	PollExhausted PollReason = "exhausted"
	PollFailed    PollReason = "failed"
	PollCancelled PollReason = "cancelled"
)

// PollResult is the outcome of a status poll.
type PollResult struct {
	ID       string
	Reason   PollReason
	Attempts int
	// Review is the last review fetched, nil if no fetch succeeded.
	Review *models.CodeReview
	Err    error
}

// Poll is a handle on a running status poll.
type Poll struct {
	cancel context.CancelFunc
	done   chan struct{}
	result PollResult
}

// Stop cancels the poll. It does not wait for it to finish.
func (p *Poll) Stop() { p.cancel() }

// Done is closed when the poll has finished.
func (p *Poll) Done() <-chan struct{} { return p.done }

// Wait blocks until the poll finishes and returns its result.
func (p *Poll) Wait() PollResult {
	<-p.done
	return p.result
}

// PollReviewStatus fetches the review until its status leaves
// pending/processing, maxAttempts fetches were made, a fetch fails or ctx
// is cancelled. maxAttempts <= 0 uses the store default. Every successful
// fetch updates the list entry and the current review.
func (s *Store) PollReviewStatus(ctx context.Context, id string, maxAttempts int) (PollResult, error) {
	res := s.StartPolling(ctx, id, maxAttempts).Wait()
	return res, res.Err
}

// StartPolling runs PollReviewStatus in the background.
func (s *Store) StartPolling(ctx context.Context, id string, maxAttempts int) *Poll {
	if maxAttempts <= 0 {
		maxAttempts = s.maxAttempts
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &Poll{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		p.result = PollResult{ID: id, Reason: PollCancelled, Err: context.Canceled}
		close(p.done)
		return p
	}
	s.polls[p] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer close(p.done)
		defer cancel()
		p.result = s.poll(ctx, id, maxAttempts)

		s.mu.Lock()
		delete(s.polls, p)
		s.mu.Unlock()
	}()
	return p
}

func (s *Store) poll(ctx context.Context, id string, maxAttempts int) PollResult {
	res := PollResult{ID: id}
	timer := time.NewTimer(s.pollInterval)
	timer.Stop()
	defer timer.Stop()

	for {
		res.Attempts++
		review, err := s.api.GetByID(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				res.Reason, res.Err = PollCancelled, ctx.Err()
				return res
			}
			s.fail("poll_review_status", err, s.messages.FetchReview)
			res.Reason, res.Err = PollFailed, err
			return res
		}

		res.Review = review
		s.applyReview(id, review)

		if !review.Status.InProgress() {
			res.Reason = PollCompleted
			return res
		}
		if res.Attempts >= maxAttempts {
			res.Reason = PollExhausted
			return res
		}

		timer.Reset(s.pollInterval)
		select {
		case <-ctx.Done():
			res.Reason, res.Err = PollCancelled, ctx.Err()
			return res
		case <-timer.C:
		}
	}
}
