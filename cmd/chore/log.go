package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"choreline/internal/engine"
	"choreline/internal/repo"
)

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Inspect and undo the action log"}
	lg.AddCommand(logTailCmd())
	lg.AddCommand(logReverseCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var action string
	var taskID, beforeID int64
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.ListLog(ctx, repo.LogFilters{Action: action, TaskID: taskID, BeforeID: beforeID, Limit: n})
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(entries)
				}
				tw := newTable("ID", "When", "Action", "Actor", "Task", "Undo")
				for _, l := range entries {
					undo := "-"
					switch {
					case l.ReversedAt != nil:
						undo = "reversed"
					case l.Reversible() && engine.CanReverse(l.Action):
						undo = "yes"
					}
					tw.AppendRow(table.Row{l.ID, l.CreatedAt, l.Action, idOrDash(l.ActorID), idOrDash(l.TaskID), undo})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	cmd.Flags().StringVar(&action, "action", "", "action filter, e.g. MARK_DONE")
	cmd.Flags().Int64Var(&taskID, "task", 0, "task filter")
	cmd.Flags().Int64Var(&beforeID, "before", 0, "only entries older than this id")
	return cmd
}

func logReverseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reverse ID",
		Short: "Undo a logged action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "log entry")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Reverse(ctx, id, actor())
				if err != nil {
					return err
				}
				return printResult(res, fmt.Sprintf("Reversed %s #%d (log %d)", res.Entry.Action, res.Entry.ID, res.ReverseLogID))
			})
		},
	}
}
