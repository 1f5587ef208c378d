package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gyanpath/gyanpath-agent/pkg/types"
)

// ErrTokenExpired is returned before a mutating call when the bearer token's
// exp claim has passed. The caller should refresh the token, not retry.
var ErrTokenExpired = errors.New("bearer token expired")

// StatusError reports a non-2xx backend response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Body)
}

// Client is a typed HTTP client for the GyanPath backend.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a backend client. baseURL is the API root without a
// trailing slash, e.g. https://api.gyanpath.io.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// WithHTTPClient overrides the underlying HTTP client (tests, custom timeouts).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// GetCourse fetches one course record.
func (c *Client) GetCourse(ctx context.Context, id string) (*types.Course, error) {
	var course types.Course
	if err := c.getJSON(ctx, "/v1/courses/"+id, &course); err != nil {
		return nil, fmt.Errorf("failed to fetch course %s: %w", id, err)
	}
	return &course, nil
}

// ListPublishedLessons fetches the published lessons of a course ordered by
// position.
func (c *Client) ListPublishedLessons(ctx context.Context, courseID string) ([]*types.Lesson, error) {
	var lessons []*types.Lesson
	if err := c.getJSON(ctx, "/v1/courses/"+courseID+"/lessons?published=true", &lessons); err != nil {
		return nil, fmt.Errorf("failed to fetch lessons for course %s: %w", courseID, err)
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].Position < lessons[j].Position })
	return lessons, nil
}

// FetchAsset downloads a binary asset (video, PDF, thumbnail) from its plain
// HTTP URL into w. Returns the byte count and content type.
func (c *Client) FetchAsset(ctx context.Context, url string, w io.Writer) (int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("asset fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, "", &StatusError{StatusCode: resp.StatusCode, Body: http.StatusText(resp.StatusCode)}
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, "", fmt.Errorf("asset read failed: %w", err)
	}
	return n, resp.Header.Get("Content-Type"), nil
}

// UpsertProgress writes a playback progress record to the backend.
func (c *Client) UpsertProgress(ctx context.Context, update *types.ProgressUpdate) error {
	if err := c.checkToken(); err != nil {
		return err
	}
	return c.postJSON(ctx, "/v1/progress", update, nil)
}

// CompleteLesson marks a lesson complete for the learner.
func (c *Client) CompleteLesson(ctx context.Context, lessonID string) error {
	if err := c.checkToken(); err != nil {
		return err
	}
	return c.postJSON(ctx, "/v1/lessons/"+lessonID+"/complete", nil, nil)
}

// UpdateEnrollmentProgress upserts the aggregate completion percentage onto
// the learner's enrollment record for a course.
func (c *Client) UpdateEnrollmentProgress(ctx context.Context, courseID string, percent int) error {
	if err := c.checkToken(); err != nil {
		return err
	}
	body := map[string]int{"percent_complete": percent}
	return c.postJSON(ctx, "/v1/enrollments/"+courseID+"/progress", body, nil)
}

// Health checks backend reachability.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &StatusError{StatusCode: resp.StatusCode, Body: http.StatusText(resp.StatusCode)}
	}
	return nil
}

// HealthURL returns the health endpoint for external probers.
func (c *Client) HealthURL() string {
	return c.baseURL + "/healthz"
}

// checkToken parses the bearer token without verifying its signature (the
// backend verifies; the agent only wants the exp claim) and rejects calls
// that would certainly fail with 401.
func (c *Client) checkToken() error {
	if c.token == "" {
		return nil // anonymous agents rely on the backend to reject
	}
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(c.token, claims); err != nil {
		// Not a JWT; let the backend decide.
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if time.Now().After(exp.Time) {
		return ErrTokenExpired
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
