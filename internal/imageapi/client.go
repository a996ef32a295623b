package imageapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"easel/internal/logging"
	"easel/internal/transport"
)

// Client exposes the image service API over the shared transport.
type Client struct {
	http   *transport.Client
	logger *slog.Logger
}

// NewClient wraps the transport with typed service operations.
func NewClient(tp *transport.Client, logger *slog.Logger) *Client {
	return &Client{
		http:   tp,
		logger: logging.NewComponentLogger(logger, "imageapi"),
	}
}

// Login exchanges credentials for a bearer token. A 401 here is a credential
// failure local to the caller, so global unauthorized handling is skipped.
func (c *Client) Login(ctx context.Context, username, password string) (Token, error) {
	body := map[string]string{"username": username, "password": password}
	var token Token
	if err := c.http.PostJSON(ctx, "/auth/login", body, &token, transport.SkipUnauthorizedHandling()); err != nil {
		return Token{}, err
	}
	if token.AccessToken == "" {
		return Token{}, errors.New("login response missing access token")
	}
	return token, nil
}

// Register creates an account. The server may require verification before
// the account can log in; no token is issued here.
func (c *Client) Register(ctx context.Context, username, password, email string) (User, error) {
	body := map[string]string{"username": username, "password": password}
	if email != "" {
		body["email"] = email
	}
	var user User
	if err := c.http.PostJSON(ctx, "/auth/register", body, &user, transport.SkipUnauthorizedHandling()); err != nil {
		return User{}, err
	}
	return user, nil
}

// Me fetches the profile for the current token.
func (c *Client) Me(ctx context.Context) (User, error) {
	var user User
	if err := c.http.GetJSON(ctx, "/auth/me", nil, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// ChangePassword updates the account password.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	body := map[string]string{"old_password": oldPassword, "new_password": newPassword}
	return c.http.PostJSON(ctx, "/auth/change-password", body, nil)
}

// Task fetches the status record for a task.
func (c *Client) Task(ctx context.Context, taskID string) (*Task, error) {
	if taskID == "" {
		return nil, errors.New("task id required")
	}
	var task Task
	if err := c.http.GetJSON(ctx, "/tasks/"+url.PathEscape(taskID), nil, &task); err != nil {
		return nil, err
	}
	if task.ID == "" {
		task.ID = taskID
	}
	return &task, nil
}

// Cancel requests cancellation of a task. Only pending tasks can be
// cancelled; the server rejects anything already running or terminal.
func (c *Client) Cancel(ctx context.Context, taskID string) (*CancelResponse, error) {
	if taskID == "" {
		return nil, errors.New("task id required")
	}
	var resp CancelResponse
	if err := c.http.Delete(ctx, "/tasks/"+url.PathEscape(taskID), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Result fetches the task result. The response may be a binary payload or a
// JSON not-ready body; the caller classifies it. The caller owns the body.
func (c *Client) Result(ctx context.Context, taskID string, wait bool, timeout time.Duration) (*http.Response, error) {
	if taskID == "" {
		return nil, errors.New("task id required")
	}
	query := url.Values{}
	if wait {
		query.Set("wait", "true")
		if timeout > 0 {
			query.Set("timeout", strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64))
		}
	}
	return c.http.GetRaw(ctx, "/tasks/"+url.PathEscape(taskID)+"/result", query)
}

// Quota fetches the current allowance snapshot.
func (c *Client) Quota(ctx context.Context) (*Quota, error) {
	var quota Quota
	if err := c.http.GetJSON(ctx, "/tasks/quota/me", nil, &quota); err != nil {
		return nil, err
	}
	return &quota, nil
}

// Queue fetches queue load information.
func (c *Client) Queue(ctx context.Context) (*QueueStatus, error) {
	var status QueueStatus
	if err := c.http.GetJSON(ctx, "/tasks/queue", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// HistoryQuery filters the server-side task history listing.
type HistoryQuery struct {
	Page     int
	PageSize int
	Status   string
	TaskType string
}

// History fetches a page of the user's server-side task history.
func (c *Client) History(ctx context.Context, q HistoryQuery) (*HistoryPage, error) {
	query := url.Values{}
	if q.Page > 0 {
		query.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		query.Set("page_size", strconv.Itoa(q.PageSize))
	}
	if q.Status != "" {
		query.Set("status", q.Status)
	}
	if q.TaskType != "" {
		query.Set("task_type", q.TaskType)
	}
	var page HistoryPage
	if err := c.http.GetJSON(ctx, "/tasks/history/me", query, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Statistics fetches the user's task statistics.
func (c *Client) Statistics(ctx context.Context) (*Statistics, error) {
	var stats Statistics
	if err := c.http.GetJSON(ctx, "/tasks/statistics/me", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
