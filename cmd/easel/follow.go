package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"easel/internal/imageapi"
	"easel/internal/logging"
	"easel/internal/result"
	"easel/internal/tracker"
)

// resultWaitTimeout bounds the server-side wait when fetching a result that
// the status endpoint already reported complete.
const resultWaitTimeout = 2 * time.Minute

type followOutcome struct {
	task imageapi.Task
	err  error
}

// followTask tracks taskID until it reaches a terminal status. Cancelled
// tasks fire no terminal handler, so the wait also watches the snapshot.
func followTask(cmd *cobra.Command, app *application, taskID string) (imageapi.Task, error) {
	outcomes := make(chan followOutcome, 1)
	progress := stdoutIsTerminal()

	var lastStatus imageapi.Status
	app.tracker.Track(taskID, tracker.Handlers{
		OnUpdate: func(task imageapi.Task) {
			if !progress || task.Status == lastStatus {
				return
			}
			lastStatus = task.Status
			if task.IsPending() && task.PositionInQueue > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (position %d in queue)\n", statusCaption(task.Status), task.PositionInQueue)
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), statusCaption(task.Status))
		},
		OnComplete: func(task imageapi.Task) {
			outcomes <- followOutcome{task: task}
		},
		OnError: func(task imageapi.Task, message string) {
			outcomes <- followOutcome{task: task, err: errors.New(message)}
		},
	})

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case outcome := <-outcomes:
			recordStatus(cmd, app, outcome.task)
			return outcome.task, outcome.err
		case <-ticker.C:
			if task, ok := app.tracker.Snapshot(taskID); ok && task.Status == imageapi.StatusCancelled {
				recordStatus(cmd, app, task)
				return task, errors.New("task was cancelled")
			}
		case <-cmd.Context().Done():
			app.tracker.Untrack(taskID)
			return imageapi.Task{}, cmd.Context().Err()
		}
	}
}

// followToResult follows the task, then fetches and saves its output and
// refreshes the allowance snapshot.
func followToResult(cmd *cobra.Command, app *application, taskID string) error {
	if _, err := followTask(cmd, app, taskID); err != nil {
		return fmt.Errorf("task %s: %w", taskID, err)
	}
	if err := saveResult(cmd, app, taskID, true); err != nil {
		return err
	}
	if _, err := app.gate.Refresh(cmd.Context()); err != nil {
		app.logger.Warn("refresh quota", logging.Args(logging.Error(err))...)
	}
	return nil
}

// saveResult resolves the task output and reports where it was written.
func saveResult(cmd *cobra.Command, app *application, taskID string, wait bool) error {
	payload, err := app.resolver.Resolve(cmd.Context(), taskID, wait, resultWaitTimeout)
	if err != nil {
		return fmt.Errorf("fetch result for %s: %w", taskID, err)
	}

	out := cmd.OutOrStdout()
	switch p := payload.(type) {
	case result.Image:
		fmt.Fprintf(out, "Saved %s\n", p.Handle.Path())
		recordResultPath(cmd, app, taskID, p.Handle.Path())
	case result.Archive:
		fmt.Fprintf(out, "Saved %s (%d images)\n", p.Handle.Path(), p.ItemCount)
		recordResultPath(cmd, app, taskID, p.Handle.Path())
	case result.NotReady:
		message := p.Message
		if message == "" {
			message = "result not ready yet"
		}
		fmt.Fprintf(out, "%s (status: %s)\n", message, p.Status)
	}
	return nil
}

func recordStatus(cmd *cobra.Command, app *application, task imageapi.Task) {
	if app.history == nil || task.ID == "" {
		return
	}
	errMessage := ""
	if task.IsFailed() {
		errMessage = task.ErrorMessage()
	}
	if err := app.history.UpdateStatus(cmd.Context(), task.ID, string(task.Status), errMessage); err != nil {
		app.logger.Warn("update submission status", logging.Args(logging.Error(err))...)
	}
}

func recordResultPath(cmd *cobra.Command, app *application, taskID, path string) {
	if app.history == nil {
		return
	}
	if err := app.history.SetResultPath(cmd.Context(), taskID, path); err != nil {
		app.logger.Warn("record result path", logging.Args(logging.Error(err))...)
	}
}
