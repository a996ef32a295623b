package imageapi

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a server-side task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further transition can occur from the status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Timestamp wraps time.Time to accept the service's ISO-8601 payloads, which
// omit the timezone suffix.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("parse timestamp %q", raw)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.Time.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Time.Format(time.RFC3339Nano) + `"`), nil
}

// Task is the status record returned by GET /tasks/{id}. The server owns all
// transitions; the client never mutates a task locally.
type Task struct {
	ID              string     `json:"task_id"`
	Status          Status     `json:"status"`
	Error           string     `json:"error"`
	CreatedAt       Timestamp  `json:"created_at"`
	StartedAt       *Timestamp `json:"started_at"`
	CompletedAt     *Timestamp `json:"completed_at"`
	PositionInQueue int        `json:"position_in_queue"`
	WaitSeconds     *float64   `json:"wait_time_seconds"`
	ExecSeconds     *float64   `json:"execution_time_seconds"`
}

// IsPending reports whether the task is waiting in the queue.
func (t *Task) IsPending() bool { return t != nil && t.Status == StatusPending }

// IsRunning reports whether the task is executing.
func (t *Task) IsRunning() bool { return t != nil && t.Status == StatusRunning }

// IsCompleted reports whether the task finished successfully.
func (t *Task) IsCompleted() bool { return t != nil && t.Status == StatusCompleted }

// IsFailed reports whether the task finished with an error.
func (t *Task) IsFailed() bool { return t != nil && t.Status == StatusFailed }

// IsTerminal reports whether the task reached a terminal status.
func (t *Task) IsTerminal() bool { return t != nil && t.Status.IsTerminal() }

// ErrorMessage returns the server-supplied failure message or a fallback.
func (t *Task) ErrorMessage() string {
	if t == nil {
		return "task failed"
	}
	if msg := strings.TrimSpace(t.Error); msg != "" {
		return msg
	}
	return "task failed"
}

// Token is the response to POST /auth/login.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// User is the profile returned by GET /auth/me and POST /auth/register.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt Timestamp `json:"created_at"`
}

// Quota is the allowance snapshot returned by GET /tasks/quota/me. It is
// advisory on the client; the server remains the authority.
type Quota struct {
	UserID             int64 `json:"user_id"`
	DailyLimit         int   `json:"daily_limit"`
	MonthlyLimit       int   `json:"monthly_limit"`
	UsedToday          int   `json:"used_today"`
	UsedThisMonth      int   `json:"used_this_month"`
	TotalUsed          int   `json:"total_used"`
	RemainingToday     int   `json:"remaining_today"`
	RemainingThisMonth int   `json:"remaining_this_month"`
}

// QueueInfo summarizes queue load at submission time.
type QueueInfo struct {
	PendingTasks int `json:"pending_tasks"`
	RunningTasks int `json:"running_tasks"`
}

// QueueStatus is the load summary from GET /tasks/queue. Task counts are
// scoped to the authenticated user; queue_size reflects global load.
type QueueStatus struct {
	IsRunning  bool `json:"is_running"`
	GPUCount   int  `json:"gpu_count"`
	MaxWorkers int  `json:"max_workers"`
	QueueSize  int  `json:"queue_size"`
	Tasks      struct {
		Pending   int `json:"pending"`
		Running   int `json:"running"`
		Completed int `json:"completed"`
		Failed    int `json:"failed"`
	} `json:"tasks"`
}

// SubmitResponse is returned by async submissions.
type SubmitResponse struct {
	Message   string    `json:"message"`
	TaskID    string    `json:"task_id"`
	StatusURL string    `json:"status_url"`
	ResultURL string    `json:"result_url"`
	QueueInfo QueueInfo `json:"queue_info"`
}

// CancelResponse is returned by DELETE /tasks/{id}.
type CancelResponse struct {
	Message string `json:"message"`
	TaskID  string `json:"task_id"`
}

// NotReadyBody is the JSON body the result endpoint returns while the task
// has not produced a file yet.
type NotReadyBody struct {
	Status          string `json:"status"`
	Message         string `json:"message"`
	PositionInQueue int    `json:"position_in_queue"`
}

// HistoryEntry is one row of the server-side task history.
type HistoryEntry struct {
	ID             int64      `json:"id"`
	TaskID         string     `json:"task_id"`
	TaskType       string     `json:"task_type"`
	Prompt         string     `json:"prompt"`
	NegativePrompt string     `json:"negative_prompt"`
	Status         string     `json:"status"`
	ResultFilename string     `json:"result_filename"`
	ErrorMessage   string     `json:"error_message"`
	CreatedAt      *Timestamp `json:"created_at"`
	StartedAt      *Timestamp `json:"started_at"`
	CompletedAt    *Timestamp `json:"completed_at"`
	ExecutionTime  *float64   `json:"execution_time"`
}

// HistoryPage is the paged response from GET /tasks/history/me.
type HistoryPage struct {
	Items      []HistoryEntry `json:"items"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalPages int            `json:"total_pages"`
}

// Statistics is the per-user summary from GET /tasks/statistics/me.
type Statistics struct {
	TotalTasks         int      `json:"total_tasks"`
	CompletedTasks     int      `json:"completed_tasks"`
	FailedTasks        int      `json:"failed_tasks"`
	PendingTasks       int      `json:"pending_tasks"`
	TextToImageCount   int      `json:"text_to_image_count"`
	ImageEditCount     int      `json:"image_edit_count"`
	BatchEditCount     int      `json:"batch_edit_count"`
	AvgExecutionTime   *float64 `json:"avg_execution_time"`
	TotalExecutionTime *float64 `json:"total_execution_time"`
}
