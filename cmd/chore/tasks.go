package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"choreline/internal/domain"
	"choreline/internal/engine"
	"choreline/internal/repo"
)

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskEditCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskActionCmd("archive", "Archive a task and drop its open assignment", engine.Engine.ArchiveTask))
	task.AddCommand(taskActionCmd("unarchive", "Bring an archived task back", engine.Engine.UnarchiveTask))
	task.AddCommand(taskActionCmd("reset", "Restart the interval from now", engine.Engine.ResetTask))
	task.AddCommand(taskActionCmd("escalate", "Bump the escalation level", engine.Engine.Escalate))
	task.AddCommand(taskVoteCmd())
	task.AddCommand(taskBlacklistCmd())
	task.AddCommand(taskNextCmd())
	task.AddCommand(taskRotationCmd())
	task.AddCommand(taskSwapCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var title, desc, taskType, firstDue string
	var interval int
	var points int64
	var rotation []int64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title required")
			}
			opts := engine.TaskCreateOptions{
				Title:           title,
				Description:     desc,
				Type:            domain.TaskType(taskType),
				RotationUserIDs: rotation,
				FirstDueAt:      optionalString(firstDue),
				ActorID:         actor(),
			}
			if cmd.Flags().Changed("interval") {
				opts.IntervalDays = &interval
			}
			if cmd.Flags().Changed("points") {
				opts.Points = &points
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printResult(t, fmt.Sprintf("Created task %d (%s)", t.ID, t.Title))
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&desc, "desc", "", "description")
	cmd.Flags().StringVar(&taskType, "type", string(domain.TaskRotating), "rotating|recurring_unassigned|one_off")
	cmd.Flags().IntVar(&interval, "interval", 0, "days between occurrences")
	cmd.Flags().Int64Var(&points, "points", 0, "credits awarded on completion")
	cmd.Flags().Int64SliceVar(&rotation, "rotation", nil, "rotation order as user ids, e.g. 1,2,3")
	cmd.Flags().StringVar(&firstDue, "first-due", "", "first due date (RFC3339)")
	return cmd
}

func taskListCmd() *cobra.Command {
	var all bool
	var taskType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks with their urgency",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				views, err := e.ListTaskViews(ctx, repo.TaskFilters{IncludeArchived: all, Type: taskType})
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(views)
				}
				tw := newTable("ID", "Title", "Type", "Due", "Days left", "Urgency", "Assignee")
				for _, v := range views {
					days := "-"
					if v.RemainingDays != nil {
						days = strconv.Itoa(*v.RemainingDays)
					}
					assignee := "-"
					if v.PendingAssignment != nil {
						assignee = idOrDash(v.PendingAssignment.UserID)
					}
					title := v.Title
					if v.Archived {
						title += " (archived)"
					}
					tw.AppendRow(table.Row{v.ID, title, v.Type, strOrDash(v.NextDueAt), days, v.UrgencyClass, assignee})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include archived tasks")
	cmd.Flags().StringVar(&taskType, "type", "", "task type filter")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a task with its open assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.DescribeTask(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(v)
			})
		},
	}
}

func taskEditCmd() *cobra.Command {
	var title, desc string
	var interval int
	var points int64
	var rotation []int64
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Edit task fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			opts := engine.TaskEditOptions{ID: id, ActorID: actor()}
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("desc") {
				opts.Description = &desc
			}
			if cmd.Flags().Changed("interval") {
				opts.IntervalDays = &interval
			}
			if cmd.Flags().Changed("points") {
				opts.Points = &points
			}
			if cmd.Flags().Changed("rotation") {
				opts.RotationUserIDs = rotation
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.EditTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&desc, "desc", "", "new description")
	cmd.Flags().IntVar(&interval, "interval", 0, "days between occurrences")
	cmd.Flags().Int64Var(&points, "points", 0, "credits awarded on completion")
	cmd.Flags().Int64SliceVar(&rotation, "rotation", nil, "new rotation order")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a task with its assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteTask(ctx, id, actor()); err != nil {
					return err
				}
				fmt.Printf("Deleted task %d\n", id)
				return nil
			})
		},
	}
}

func taskActionCmd(verb, short string, fn func(engine.Engine, context.Context, int64, *int64) (domain.Task, error)) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := fn(e, ctx, id, actor())
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
}

func taskVoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "vote ID up|down",
		Short:     "Vote the urgency of a task",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			var direction int
			switch args[1] {
			case "up":
				direction = 1
			case "down":
				direction = -1
			default:
				return fmt.Errorf("direction must be up or down")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, logID, err := e.VoteUrgency(ctx, id, direction, actor())
				if err != nil {
					return err
				}
				return printResult(map[string]any{"task": t, "log_id": logID},
					fmt.Sprintf("Urgency of %s is now %d", t.Title, t.UrgencyScore))
			})
		},
	}
}

func taskBlacklistCmd() *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "blacklist TASK USER",
		Short: "Exclude a user from a task (or allow again with --remove)",
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
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SetBlacklist(ctx, engine.BlacklistOptions{
					TaskID:   taskID,
					UserID:   userID,
					Excluded: !remove,
					ActorID:  actor(),
				})
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "remove the user from the blacklist")
	return cmd
}

func taskNextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next ID",
		Short: "Preview who the task goes to next",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				next, err := e.NextAssignee(ctx, id)
				if err != nil {
					return err
				}
				msg := "Nobody is eligible"
				if next.OK {
					msg = fmt.Sprintf("User %d (%s)", next.UserID, next.Source)
				}
				return printResult(next, msg)
			})
		},
	}
}

func taskRotationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotation ID",
		Short: "Show rotation order, skip tokens and countdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.Rotation(ctx, id)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(st)
				}
				skips := map[int64]int{}
				for _, s := range st.Skips {
					skips[s.UserID] = s.Count
				}
				tw := newTable("#", "User", "Skip tokens")
				for i, uid := range st.Order {
					tw.AppendRow(table.Row{i + 1, uid, skips[uid]})
				}
				tw.Render()
				if st.Temporary != nil {
					fmt.Printf("One-cycle swap active: %d completions left, then back to %v\n", st.Temporary.Remaining, st.Temporary.OriginalOrder)
				}
				return nil
			})
		},
	}
}

func taskSwapCmd() *cobra.Command {
	var oneCycle bool
	cmd := &cobra.Command{
		Use:   "swap TASK USER_A USER_B",
		Short: "Swap two members in the rotation",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			a, err := parseID(args[1], "user")
			if err != nil {
				return err
			}
			b, err := parseID(args[2], "user")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.SwapRotation(ctx, engine.SwapOptions{
					TaskID:   taskID,
					UserA:    a,
					UserB:    b,
					OneCycle: oneCycle,
					ActorID:  actor(),
				})
				if err != nil {
					return err
				}
				return printResult(res, fmt.Sprintf("Rotation is now %v", res.Task.RotationUserIDs))
			})
		},
	}
	cmd.Flags().BoolVar(&oneCycle, "one-cycle", false, "revert after one full cycle")
	return cmd
}
