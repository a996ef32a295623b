package imageapi_test

import (
	"encoding/json"
	"testing"

	"easel/internal/imageapi"
)

func TestParseStatus(t *testing.T) {
	cases := []struct {
		in   string
		want imageapi.Status
		ok   bool
	}{
		{"pending", imageapi.StatusPending, true},
		{" Running ", imageapi.StatusRunning, true},
		{"COMPLETED", imageapi.StatusCompleted, true},
		{"", "", false},
		{"exploded", "", false},
	}
	for _, tc := range cases {
		got, ok := imageapi.ParseStatus(tc.in)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Fatalf("ParseStatus(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	terminal := map[imageapi.Status]bool{
		imageapi.StatusPending:   false,
		imageapi.StatusRunning:   false,
		imageapi.StatusCompleted: true,
		imageapi.StatusFailed:    true,
		imageapi.StatusCancelled: true,
	}
	for status, want := range terminal {
		if status.IsTerminal() != want {
			t.Fatalf("%s.IsTerminal() = %v, want %v", status, !want, want)
		}
	}
}

func TestTaskProjectionsFollowStatus(t *testing.T) {
	task := &imageapi.Task{ID: "abc", Status: imageapi.StatusRunning}
	if task.IsPending() || !task.IsRunning() || task.IsCompleted() || task.IsFailed() {
		t.Fatal("projections disagree with running status")
	}
	task.Status = imageapi.StatusFailed
	if !task.IsFailed() || task.IsRunning() {
		t.Fatal("projections disagree with failed status")
	}
}

func TestTaskDecodesServiceTimestamps(t *testing.T) {
	// The service emits ISO-8601 without a timezone suffix.
	payload := `{
		"task_id": "abc123",
		"status": "completed",
		"created_at": "2026-08-29T10:15:30.123456",
		"started_at": "2026-08-29T10:15:35",
		"completed_at": null,
		"position_in_queue": 0
	}`
	var task imageapi.Task
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if task.CreatedAt.IsZero() {
		t.Fatal("created_at not parsed")
	}
	if task.StartedAt == nil || task.StartedAt.IsZero() {
		t.Fatal("started_at not parsed")
	}
	if task.CompletedAt != nil && !task.CompletedAt.IsZero() {
		t.Fatal("null completed_at should stay zero")
	}
}

func TestErrorMessageFallback(t *testing.T) {
	task := &imageapi.Task{Status: imageapi.StatusFailed}
	if task.ErrorMessage() != "task failed" {
		t.Fatalf("expected fallback message, got %q", task.ErrorMessage())
	}
	task.Error = "GPU OOM"
	if task.ErrorMessage() != "GPU OOM" {
		t.Fatalf("expected server message, got %q", task.ErrorMessage())
	}
}
