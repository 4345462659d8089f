package chorelinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Choreline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	// UserID is sent as X-User-Id when no bearer token is set.
	UserID     int64
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// User represents a household member.
type User struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Active          bool    `json:"active"`
	Credits         int64   `json:"credits"`
	ProfileImageURL *string `json:"profile_image_url,omitempty"`
}

// Assignment represents one occurrence of a task.
type Assignment struct {
	ID             int64   `json:"id"`
	TaskID         int64   `json:"task_id"`
	UserID         *int64  `json:"user_id,omitempty"`
	Status         string  `json:"status"`
	DueAt          *string `json:"due_at,omitempty"`
	DoneAt         *string `json:"done_at,omitempty"`
	CreditsAwarded int64   `json:"credits_awarded"`
}

// Task represents the API task model (partial).
type Task struct {
	ID                int64       `json:"id"`
	Title             string      `json:"title"`
	Type              string      `json:"task_type"`
	IntervalDays      *int        `json:"interval_days,omitempty"`
	Points            int64       `json:"points"`
	NextDueAt         *string     `json:"next_due_at,omitempty"`
	Archived          bool        `json:"archived"`
	RotationUserIDs   []int64     `json:"rotation_user_ids"`
	UrgencyClass      string      `json:"urgency_class,omitempty"`
	RemainingDays     *int        `json:"remaining_days,omitempty"`
	PendingAssignment *Assignment `json:"pending_assignment,omitempty"`
}

// LogEntry represents one action log record.
type LogEntry struct {
	ID         int64          `json:"id"`
	Action     string         `json:"action"`
	ActorID    *int64         `json:"actor_id,omitempty"`
	TaskID     *int64         `json:"task_id,omitempty"`
	Details    map[string]any `json:"details"`
	CreatedAt  string         `json:"created_at"`
	ReversedAt *string        `json:"reversed_at,omitempty"`
	Reversible bool           `json:"reversible"`
}

// CreateTaskInput holds the fields of a new task.
type CreateTaskInput struct {
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	Type            string  `json:"task_type"`
	IntervalDays    *int    `json:"interval_days,omitempty"`
	Points          *int64  `json:"points,omitempty"`
	RotationUserIDs []int64 `json:"rotation_user_ids,omitempty"`
}

// DoneResult is returned by MarkDone.
type DoneResult struct {
	Assignment Assignment  `json:"assignment"`
	Next       *Assignment `json:"next,omitempty"`
	Task       Task        `json:"task"`
	LogID      int64       `json:"log_id"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// StatusOf returns the HTTP status of an APIError, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// CreateUser adds a household member.
func (c *Client) CreateUser(ctx context.Context, name string) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodPost, "users", map[string]any{"name": name}, &resp)
	return resp, err
}

// GetUser fetches a user by id.
func (c *Client) GetUser(ctx context.Context, id int64) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("users/%d", id), nil, &resp)
	return resp, err
}

// AdjustCredits adds delta credits to a user; negative values subtract.
func (c *Client) AdjustCredits(ctx context.Context, userID, delta int64, reason string) (User, int64, error) {
	var resp struct {
		User  User  `json:"user"`
		LogID int64 `json:"log_id"`
	}
	body := map[string]any{"delta": delta}
	if reason != "" {
		body["reason"] = reason
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("users/%d/credits", userID), body, &resp)
	return resp.User, resp.LogID, err
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, in CreateTaskInput) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", in, &resp)
	return resp, err
}

// Tasks lists active tasks.
func (c *Client) Tasks(ctx context.Context) ([]Task, error) {
	var resp struct {
		Items []Task `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "tasks", nil, &resp)
	return resp.Items, err
}

// MarkDone completes an assignment.
func (c *Client) MarkDone(ctx context.Context, assignmentID int64) (DoneResult, error) {
	var resp DoneResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("assignments/%d/done", assignmentID), nil, &resp)
	return resp, err
}

// Log returns recent log entries, newest first.
func (c *Client) Log(ctx context.Context, limit int, action string) ([]LogEntry, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if action != "" {
		q.Set("action", action)
	}
	endpoint := "log"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []LogEntry `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Reverse undoes a log entry.
func (c *Client) Reverse(ctx context.Context, logID int64) (LogEntry, error) {
	var resp struct {
		Entry LogEntry `json:"entry"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("log/%d/reverse", logID), nil, &resp)
	return resp.Entry, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.UserID > 0:
		req.Header.Set("X-User-Id", strconv.FormatInt(c.UserID, 10))
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
