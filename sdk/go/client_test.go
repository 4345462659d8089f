package chorelinesdk_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"choreline/internal/config"
	"choreline/internal/db"
	"choreline/internal/engine"
	"choreline/internal/migrate"
	"choreline/internal/server"
	chorelinesdk "choreline/sdk/go"
)

func newClient(t *testing.T) *chorelinesdk.Client {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	handler, err := server.New(server.Config{
		Engine: engine.New(conn, config.Default("sdk")),
		Auth:   server.AuthConfig{AllowUserHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return chorelinesdk.New(srv.URL)
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	ann, err := c.CreateUser(ctx, "Ann")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	c.UserID = ann.ID
	interval := 3
	task, err := c.CreateTask(ctx, chorelinesdk.CreateTaskInput{
		Title:           "Plants",
		Type:            "rotating",
		IntervalDays:    &interval,
		RotationUserIDs: []int64{ann.ID},
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.PendingAssignment == nil {
		t.Fatalf("expected an open assignment")
	}
	done, err := c.MarkDone(ctx, task.PendingAssignment.ID)
	if err != nil {
		t.Fatalf("mark done: %v", err)
	}
	if done.Next == nil || *done.Next.UserID != ann.ID {
		t.Fatalf("expected Ann to keep the rotation, got %+v", done.Next)
	}

	entries, err := c.Log(ctx, 1, "MARK_DONE")
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if len(entries) != 1 || !entries[0].Reversible || entries[0].ActorID == nil || *entries[0].ActorID != ann.ID {
		t.Fatalf("unexpected log %+v", entries)
	}
	if _, err := c.Reverse(ctx, entries[0].ID); err != nil {
		t.Fatalf("reverse: %v", err)
	}
	_, err = c.Reverse(ctx, entries[0].ID)
	if chorelinesdk.StatusOf(err) != http.StatusConflict {
		t.Fatalf("expected 409 on second reverse, got %v", err)
	}
	got, err := c.GetUser(ctx, ann.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Credits != 0 {
		t.Fatalf("expected credits restored, got %d", got.Credits)
	}
}
