package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joescharf/reviewctl/internal/models"
)

const (
	DefaultPageSize     = 20
	DefaultPollInterval = 2 * time.Second
	DefaultMaxAttempts  = 30
)

// ReviewsAPI is the backend contract the store consumes.
type ReviewsAPI interface {
	GetList(ctx context.Context, page, pageSize int) (*models.ReviewList, error)
	GetByID(ctx context.Context, id string) (*models.CodeReview, error)
	Create(ctx context.Context, input models.CreateReviewInput) (*models.CodeReview, error)
	Delete(ctx context.Context, id string) error
	Reanalyze(ctx context.Context, id string) (*models.CodeReview, error)
}

// Store holds an in-memory snapshot of one page of reviews and the
// currently viewed review. All mutation goes through its actions.
//
// IsLoading stays true while any action is in flight. Error is shared by
// all actions and the last writer wins.
type Store struct {
	api          ReviewsAPI
	log          *slog.Logger
	messages     Messages
	pollInterval time.Duration
	maxAttempts  int

	// notifyMu serializes commit+notify so subscribers observe changes
	// in commit order.
	notifyMu sync.Mutex
	mu       sync.RWMutex
	state    Snapshot
	inflight int
	subs     map[int]func(Snapshot)
	nextSub  int
	polls    map[*Poll]struct{}
	closed   bool
}

// Option configures a Store.
type Option func(*Store)

// WithPageSize sets the page size used by FetchReviews.
func WithPageSize(n int) Option {
	return func(s *Store) { s.state.PageSize = n }
}

// WithPollInterval sets the delay between status polls.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) { s.pollInterval = d }
}

// WithMaxAttempts sets the default attempt cap for polling.
func WithMaxAttempts(n int) Option {
	return func(s *Store) { s.maxAttempts = n }
}

// WithMessages sets the fallback messages shown when a failure carries no
// server message.
func WithMessages(m Messages) Option {
	return func(s *Store) { s.messages = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New creates an empty store backed by api.
func New(api ReviewsAPI, opts ...Option) *Store {
	s := &Store{
		api:          api,
		log:          slog.Default(),
		messages:     EnglishMessages,
		pollInterval: DefaultPollInterval,
		maxAttempts:  DefaultMaxAttempts,
		state: Snapshot{
			Reviews:     []*models.CodeReview{},
			CurrentPage: 1,
			PageSize:    DefaultPageSize,
		},
		subs:  make(map[int]func(Snapshot)),
		polls: make(map[*Poll]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current state. The reviews it points to
// are shared with the store and must be treated as read-only.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Subscribe registers fn to be called with the new state after every
// change. fn runs synchronously on the goroutine that made the change and
// must not call store actions itself. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Close stops all active polls and waits for them to finish.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	polls := make([]*Poll, 0, len(s.polls))
	for p := range s.polls {
		polls = append(polls, p)
	}
	s.mu.Unlock()

	for _, p := range polls {
		p.Stop()
		<-p.Done()
	}
}

// update applies fn to the state and notifies subscribers.
func (s *Store) update(fn func(st *Snapshot)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	fn(&s.state)
	snap := s.state.clone()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
}

// begin marks an action as in flight and clears the last error.
func (s *Store) begin() {
	s.update(func(st *Snapshot) {
		s.inflight++
		st.IsLoading = true
		st.Error = ""
	})
}

// end releases what begin acquired.
func (s *Store) end() {
	s.update(func(st *Snapshot) {
		s.inflight--
		st.IsLoading = s.inflight > 0
	})
}

func (s *Store) pageSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.PageSize
}
