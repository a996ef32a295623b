package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"easel/internal/imageapi"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the status of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.requireAuth()
			if err != nil {
				return err
			}

			task, err := app.api.Task(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printTask(cmd, *task)
			recordStatus(cmd, app, *task)

			if !follow || task.IsTerminal() {
				return nil
			}
			final, err := followTask(cmd, app, task.ID)
			if err != nil {
				return fmt.Errorf("task %s: %w", task.ID, err)
			}
			printTask(cmd, final)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Poll until the task reaches a terminal status")
	return cmd
}

func printTask(cmd *cobra.Command, task imageapi.Task) {
	rows := [][]string{
		{"Task", task.ID},
		{"Status", statusCaption(task.Status)},
		{"Created", formatTimestamp(task.CreatedAt)},
		{"Started", formatOptionalTimestamp(task.StartedAt)},
		{"Completed", formatOptionalTimestamp(task.CompletedAt)},
	}
	if task.IsPending() {
		rows = append(rows, []string{"Queue position", fmt.Sprintf("%d", task.PositionInQueue)})
	}
	if task.WaitSeconds != nil {
		rows = append(rows, []string{"Waited", formatSeconds(task.WaitSeconds)})
	}
	if task.ExecSeconds != nil {
		rows = append(rows, []string{"Execution", formatSeconds(task.ExecSeconds)})
	}
	if task.IsFailed() {
		rows = append(rows, []string{"Error", task.ErrorMessage()})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a pending task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.requireAuth()
			if err != nil {
				return err
			}

			accepted, err := app.tracker.Cancel(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("cancel task: %w", err)
			}
			if !accepted {
				fmt.Fprintln(cmd.OutOrStdout(), "Task is no longer cancellable")
				return nil
			}

			if task, err := app.api.Task(cmd.Context(), args[0]); err == nil {
				recordStatus(cmd, app, *task)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Task cancelled")
			return nil
		},
	}
}

func newResultCommand(ctx *commandContext) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "result <task-id>",
		Short: "Download the result of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.requireAuth()
			if err != nil {
				return err
			}
			return saveResult(cmd, app, args[0], wait)
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Ask the server to hold the request until the task finishes")
	return cmd
}
