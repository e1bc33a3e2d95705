package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/reviewctl/internal/models"
	"github.com/joescharf/reviewctl/internal/validation"
)

const reviewsPath = "/api/v1/reviews"

// Client talks to the review backend over HTTP/JSON.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	timeout    time.Duration
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets a bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout sets the per-request timeout of the default HTTP client. It
// has no effect when WithHTTPClient supplies the client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a client for the backend rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: %q", baseURL)
	}

	c := &Client{
		baseURL: u,
		timeout: 30 * time.Second,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c, nil
}

// GetList returns one page of reviews.
func (c *Client) GetList(ctx context.Context, page, pageSize int) (*models.ReviewList, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	var list models.ReviewList
	if err := c.do(ctx, http.MethodGet, reviewsPath, q, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetByID returns a single review.
func (c *Client) GetByID(ctx context.Context, id string) (*models.CodeReview, error) {
	if err := validation.ValidateID(id); err != nil {
		return nil, err
	}
	var r models.CodeReview
	if err := c.do(ctx, http.MethodGet, reviewsPath+"/"+id, nil, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Create submits a new review request.
func (c *Client) Create(ctx context.Context, input models.CreateReviewInput) (*models.CodeReview, error) {
	if err := validation.ValidateStruct(input); err != nil {
		return nil, err
	}
	var r models.CodeReview
	if err := c.do(ctx, http.MethodPost, reviewsPath, nil, input, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Delete removes a review.
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := validation.ValidateID(id); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, reviewsPath+"/"+id, nil, nil, nil)
}

// Reanalyze asks the backend to run the analysis again.
func (c *Client) Reanalyze(ctx context.Context, id string) (*models.CodeReview, error) {
	if err := validation.ValidateID(id); err != nil {
		return nil, err
	}
	var r models.CodeReview
	if err := c.do(ctx, http.MethodPost, reviewsPath+"/"+id+"/reanalyze", nil, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// do performs one request. body is JSON-encoded when non-nil and the
// response is decoded into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	requestID := newULID()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.log.Debug("failed to close response body", "error", closeErr)
		}
	}()

	c.log.Debug("review api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start),
	)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode, RequestID: requestID}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}
