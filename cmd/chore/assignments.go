package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"choreline/internal/engine"
	"choreline/internal/repo"
)

func assignmentCmd() *cobra.Command {
	var userID, taskID int64
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:     "assignments",
		Aliases: []string{"todo"},
		Short:   "List assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListAssignments(ctx, repo.AssignmentFilters{UserID: userID, TaskID: taskID, Status: status, Limit: limit})
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(items)
				}
				tw := newTable("ID", "Task", "User", "Status", "Due", "Done", "Credits")
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.TaskID, idOrDash(a.UserID), a.Status, strOrDash(a.DueAt), strOrDash(a.DoneAt), a.CreditsAwarded})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user filter")
	cmd.Flags().Int64Var(&taskID, "task", 0, "task filter")
	cmd.Flags().StringVar(&status, "status", "pending", "pending|done (empty for all)")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	return cmd
}

func assignCmd() *cobra.Command {
	var dueDays int
	cmd := &cobra.Command{
		Use:   "assign TASK USER",
		Short: "Hand a task to a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			userID, err := parseID(args[1], "user")
			if err != nil {
				return err
			}
			opts := engine.AssignOptions{TaskID: taskID, UserID: userID, ActorID: actor()}
			if cmd.Flags().Changed("due-days") {
				opts.DueDays = &dueDays
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, logID, err := e.Assign(ctx, opts)
				if err != nil {
					return err
				}
				return printResult(map[string]any{"assignment": a, "log_id": logID},
					fmt.Sprintf("Assignment %d for user %d due %s", a.ID, userID, strOrDash(a.DueAt)))
			})
		},
	}
	cmd.Flags().IntVar(&dueDays, "due-days", 0, "days until due (defaults to the task interval)")
	return cmd
}

// userArgOrActor reads an optional USER argument, falling back to --actor.
func userArgOrActor(args []string, idx int) (int64, error) {
	if len(args) > idx {
		return parseID(args[idx], "user")
	}
	if a := actor(); a != nil {
		return *a, nil
	}
	return 0, fmt.Errorf("user required: pass it as argument or use --actor")
}

func claimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim TASK [USER]",
		Short: "Claim the open occurrence of an unassigned task",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			userID, err := userArgOrActor(args, 1)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, logID, err := e.Claim(ctx, taskID, userID, actor())
				if err != nil {
					return err
				}
				return printResult(map[string]any{"assignment": a, "log_id": logID},
					fmt.Sprintf("User %d claimed assignment %d", userID, a.ID))
			})
		},
	}
}

func doneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done ASSIGNMENT",
		Short: "Mark an assignment done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "assignment")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.MarkDone(ctx, id, actor())
				if err != nil {
					return err
				}
				msg := fmt.Sprintf("Done: %s (+%d credits)", res.Task.Title, res.Assignment.CreditsAwarded)
				if res.Next != nil {
					msg += fmt.Sprintf("; next up user %s, due %s", idOrDash(res.Next.UserID), strOrDash(res.Next.DueAt))
				}
				return printResult(res, msg)
			})
		},
	}
}

func switchCmd() *cobra.Command {
	var until string
	cmd := &cobra.Command{
		Use:   "switch ASSIGNMENT USER",
		Short: "Temporarily hand an open assignment to someone else",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "assignment")
			if err != nil {
				return err
			}
			userID, err := parseID(args[1], "user")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, logID, err := e.SwitchTemporarily(ctx, engine.SwitchOptions{
					AssignmentID: id,
					UserID:       userID,
					Until:        optionalString(until),
					ActorID:      actor(),
				})
				if err != nil {
					return err
				}
				return printResult(map[string]any{"assignment": a, "log_id": logID},
					fmt.Sprintf("Assignment %d switched to user %d", a.ID, userID))
			})
		},
	}
	cmd.Flags().StringVar(&until, "until", "", "end of the switch (RFC3339)")
	return cmd
}

func coverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cover ASSIGNMENT [USER]",
		Short: "Cover someone's turn and earn a skip token",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "assignment")
			if err != nil {
				return err
			}
			userID, err := userArgOrActor(args, 1)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Cover(ctx, id, userID, actor())
				if err != nil {
					return err
				}
				return printResult(a, fmt.Sprintf("User %d covers assignment %d and earns a skip", userID, a.ID))
			})
		},
	}
}
