package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"easel/internal/imageapi"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past submissions",
	}

	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistoryPruneCommand(ctx))
	return historyCmd
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var server bool
	var page int
	var status string
	var taskType string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submissions (local ledger by default, --server for the service's history)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if server {
				return listServerHistory(cmd, ctx, page, limit, status, taskType)
			}
			return listLocalHistory(cmd, ctx, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows to show")
	cmd.Flags().BoolVar(&server, "server", false, "Query the service instead of the local ledger")
	cmd.Flags().IntVar(&page, "page", 1, "Page number (with --server)")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (with --server)")
	cmd.Flags().StringVar(&taskType, "type", "", "Filter by task type (with --server)")
	return cmd
}

func listLocalHistory(cmd *cobra.Command, ctx *commandContext, limit int) error {
	app, err := ctx.ensureApp()
	if err != nil {
		return err
	}
	if app.history == nil {
		return errors.New("local history is disabled; enable it in the config or use --server")
	}

	entries, err := app.history.List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No local submissions recorded")
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		parsed, _ := imageapi.ParseStatus(entry.Status)
		rows = append(rows, []string{
			entry.TaskID,
			entry.Kind,
			truncate(entry.Prompt, 40),
			statusCaption(parsed),
			entry.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Task", "Kind", "Prompt", "Status", "Submitted"},
		rows, nil,
	))
	return nil
}

func listServerHistory(cmd *cobra.Command, ctx *commandContext, page, pageSize int, status, taskType string) error {
	app, err := ctx.requireAuth()
	if err != nil {
		return err
	}

	result, err := app.api.History(cmd.Context(), imageapi.HistoryQuery{
		Page:     page,
		PageSize: pageSize,
		Status:   status,
		TaskType: taskType,
	})
	if err != nil {
		return err
	}
	if len(result.Items) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tasks in server history")
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Task", "Type", "Prompt", "Status", "Created"},
		newServerHistoryRows(result), nil,
	))
	fmt.Fprintf(cmd.OutOrStdout(), "Page %d of %d (%d tasks)\n", result.Page, result.TotalPages, result.Total)
	return nil
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one locally recorded submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			if app.history == nil {
				return errors.New("local history is disabled")
			}

			entry, err := app.history.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if entry == nil {
				return fmt.Errorf("no local record for task %s", args[0])
			}

			rows := [][]string{
				{"Task", entry.TaskID},
				{"Kind", entry.Kind},
				{"Prompt", entry.Prompt},
				{"Status", entry.Status},
				{"Submitted", entry.CreatedAt.Local().Format("2006-01-02 15:04:05")},
			}
			if entry.Error != "" {
				rows = append(rows, []string{"Error", entry.Error})
			}
			if entry.ResultPath != "" {
				rows = append(rows, []string{"Result", entry.ResultPath})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var keep int
	var all bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old rows from the local ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			if app.history == nil {
				return errors.New("local history is disabled")
			}

			target := keep
			if all {
				target = 0
			}
			removed, err := app.history.Prune(cmd.Context(), target)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", pluralize(removed, "submission"))
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 100, "Number of newest rows to keep")
	cmd.Flags().BoolVar(&all, "all", false, "Delete every row")
	return cmd
}

func pluralize(count int64, noun string) string {
	if count == 1 {
		return "1 " + noun
	}
	return strconv.FormatInt(count, 10) + " " + noun + "s"
}
