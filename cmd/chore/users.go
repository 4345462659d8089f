package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"choreline/internal/app"
	"choreline/internal/engine"
	"choreline/internal/repo"
	"choreline/internal/uploads"
)

func userCmd() *cobra.Command {
	usr := &cobra.Command{Use: "user", Short: "Manage household members"}
	usr.AddCommand(userAddCmd())
	usr.AddCommand(userListCmd())
	usr.AddCommand(userShowCmd())
	usr.AddCommand(userUpdateCmd())
	usr.AddCommand(userCreditCmd())
	usr.AddCommand(userPhotoCmd())
	return usr
}

func userAddCmd() *cobra.Command {
	var inactive bool
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.UserCreateOptions{Name: args[0], ActorID: actor()}
				if inactive {
					active := false
					opts.Active = &active
				}
				u, err := e.CreateUser(ctx, opts)
				if err != nil {
					return err
				}
				return printResult(u, fmt.Sprintf("Added user %d (%s)", u.ID, u.Name))
			})
		},
	}
	cmd.Flags().BoolVar(&inactive, "inactive", false, "create the user as inactive")
	return cmd
}

func userListCmd() *cobra.Command {
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var f repo.UserFilters
				if activeOnly {
					active := true
					f.Active = &active
				}
				users, err := e.Repo.ListUsers(ctx, f)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(users)
				}
				tw := newTable("ID", "Name", "Active", "Credits")
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Active, u.Credits})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active users")
	return cmd
}

func userShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "user")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.Repo.GetUser(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(u)
			})
		},
	}
}

func userUpdateCmd() *cobra.Command {
	var name string
	var active bool
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Rename or (de)activate a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "user")
			if err != nil {
				return err
			}
			opts := engine.UserUpdateOptions{ID: id, Name: optionalString(name), ActorID: actor()}
			if cmd.Flags().Changed("active") {
				opts.Active = &active
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.UpdateUser(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(u)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().BoolVar(&active, "active", true, "active flag")
	return cmd
}

func userCreditCmd() *cobra.Command {
	var reason string
	var taskID int64
	cmd := &cobra.Command{
		Use:   "credit ID DELTA",
		Short: "Add (or with a negative delta subtract) credits",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "user")
			if err != nil {
				return err
			}
			delta, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid delta %q", args[1])
			}
			opts := engine.CreditOptions{UserID: id, Delta: delta, Reason: reason, ActorID: actor()}
			if taskID > 0 {
				opts.TaskID = &taskID
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, logID, err := e.AdjustCredit(ctx, opts)
				if err != nil {
					return err
				}
				return printResult(map[string]any{"user": u, "log_id": logID},
					fmt.Sprintf("%s now has %d credits (log %d)", u.Name, u.Credits, logID))
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the log")
	cmd.Flags().Int64Var(&taskID, "task", 0, "related task id")
	return cmd
}

func userPhotoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "photo ID FILE",
		Short: "Set a profile photo from an image file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "user")
			if err != nil {
				return err
			}
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				e := ws.Engine()
				if _, err := e.Repo.GetUser(ctx, id); err != nil {
					return err
				}
				store := uploads.Store{Dir: ws.UploadDir(), MaxBytes: ws.Config.Uploads.MaxBytes}
				url, err := store.Save(filepath.Base(args[1]), f)
				if err != nil {
					return err
				}
				u, err := e.SetUserPhoto(ctx, id, url, actor())
				if err != nil {
					return err
				}
				return printResult(u, fmt.Sprintf("Photo of %s stored at %s", u.Name, url))
			})
		},
	}
}
