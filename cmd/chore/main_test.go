package main

import (
	"context"
	"os"
	"testing"

	"choreline/internal/app"
	"choreline/internal/repo"
)

func TestMain(m *testing.M) {
	setupCommands()
	os.Exit(m.Run())
}

func setupCommands() {
	addPersistentFlags()
	registerCommands()
}

func run(t *testing.T, args ...string) {
	t.Helper()
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("chore %v: %v", args, err)
	}
}

func TestCommandsDriveTheEngine(t *testing.T) {
	dir := t.TempDir()
	run(t, "-w", dir, "config", "init", "--household", "Casa")
	run(t, "-w", dir, "user", "add", "Ann")
	run(t, "-w", dir, "user", "add", "Ben")
	run(t, "-w", dir, "task", "create", "--title", "Dishes", "--interval", "2", "--points", "5", "--rotation", "1,2")
	run(t, "-w", dir, "done", "1")
	run(t, "-w", dir, "--actor", "2", "user", "credit", "2", "3", "--reason", "bonus")
	run(t, "-w", dir, "--actor", "0", "log", "tail")

	ws, err := app.Open(context.Background(), dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ws.Close()
	if ws.Config.Household.Name != "Casa" {
		t.Fatalf("expected config written by init, got %q", ws.Config.Household.Name)
	}
	ctx := context.Background()
	ann, err := ws.Engine().Repo.GetUser(ctx, 1)
	if err != nil {
		t.Fatalf("get ann: %v", err)
	}
	if ann.Credits != 5 {
		t.Fatalf("expected Ann credited 5, got %d", ann.Credits)
	}
	pending, err := ws.Engine().ListAssignments(ctx, repo.AssignmentFilters{TaskID: 1, Status: "pending"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 || pending[0].UserID == nil || *pending[0].UserID != 2 {
		t.Fatalf("expected Ben next, got %+v", pending)
	}
	entries, err := ws.Engine().ListLog(ctx, repo.LogFilters{Action: "ADD_CREDIT"})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if len(entries) != 1 || entries[0].ActorID == nil || *entries[0].ActorID != 2 {
		t.Fatalf("expected credit logged with actor 2, got %+v", entries)
	}
}
