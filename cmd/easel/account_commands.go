package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"easel/internal/imageapi"
)

func newQuotaCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show the remaining generation allowance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.requireAuth()
			if err != nil {
				return err
			}

			quota, err := app.gate.Refresh(cmd.Context())
			if err != nil {
				return err
			}

			rows := [][]string{
				{"Today", fmt.Sprintf("%d / %d", quota.UsedToday, quota.DailyLimit), strconv.Itoa(quota.RemainingToday)},
				{"This month", fmt.Sprintf("%d / %d", quota.UsedThisMonth, quota.MonthlyLimit), strconv.Itoa(quota.RemainingThisMonth)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Window", "Used", "Remaining"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}
}

func newQueueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show service queue load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.requireAuth()
			if err != nil {
				return err
			}

			status, err := app.api.Queue(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Workers running: %s (%d workers, %d GPUs)\n",
				yesNo(status.IsRunning), status.MaxWorkers, status.GPUCount)
			fmt.Fprintf(out, "Global queue size: %d\n", status.QueueSize)
			fmt.Fprintln(out, renderTable(
				[]string{"Status", "Your tasks"},
				[][]string{
					{"Pending", strconv.Itoa(status.Tasks.Pending)},
					{"Running", strconv.Itoa(status.Tasks.Running)},
					{"Completed", strconv.Itoa(status.Tasks.Completed)},
					{"Failed", strconv.Itoa(status.Tasks.Failed)},
				},
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-account task statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.requireAuth()
			if err != nil {
				return err
			}

			stats, err := app.api.Statistics(cmd.Context())
			if err != nil {
				return err
			}

			rows := [][]string{
				{"Total tasks", strconv.Itoa(stats.TotalTasks)},
				{"Completed", strconv.Itoa(stats.CompletedTasks)},
				{"Failed", strconv.Itoa(stats.FailedTasks)},
				{"Pending", strconv.Itoa(stats.PendingTasks)},
				{"Text-to-image", strconv.Itoa(stats.TextToImageCount)},
				{"Image edits", strconv.Itoa(stats.ImageEditCount)},
				{"Batch edits", strconv.Itoa(stats.BatchEditCount)},
				{"Avg execution", formatSeconds(stats.AvgExecutionTime)},
				{"Total execution", formatSeconds(stats.TotalExecutionTime)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Metric", "Value"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}
}

func newServerHistoryRows(page *imageapi.HistoryPage) [][]string {
	rows := make([][]string, 0, len(page.Items))
	for _, item := range page.Items {
		status, _ := imageapi.ParseStatus(item.Status)
		rows = append(rows, []string{
			item.TaskID,
			item.TaskType,
			truncate(item.Prompt, 40),
			statusCaption(status),
			formatOptionalTimestamp(item.CreatedAt),
		})
	}
	return rows
}

func truncate(value string, limit int) string {
	if limit <= 3 || len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}
