package engine_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"choreline/internal/actionlog"
	"choreline/internal/config"
	"choreline/internal/db"
	"choreline/internal/domain"
	"choreline/internal/engine"
	"choreline/internal/migrate"
	"choreline/internal/repo"
)

var testNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default("test"))
	eng.Now = func() time.Time { return testNow }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func (env testEnv) user(t *testing.T, name string) domain.User {
	t.Helper()
	u, err := env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{Name: name})
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func (env testEnv) rotatingTask(t *testing.T, points int64, members ...int64) domain.Task {
	t.Helper()
	interval := 7
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:           "Dishes",
		Type:            domain.TaskRotating,
		IntervalDays:    &interval,
		Points:          &points,
		RotationUserIDs: members,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func (env testEnv) pending(t *testing.T, taskID int64) []domain.Assignment {
	t.Helper()
	p, err := env.Engine.Repo.PendingAssignments(env.Ctx, taskID)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(p) > 1 {
		t.Fatalf("task %d has %d pending assignments", taskID, len(p))
	}
	return p
}

func (env testEnv) markPendingDone(t *testing.T, taskID int64) engine.MarkDoneResult {
	t.Helper()
	p := env.pending(t, taskID)
	if len(p) != 1 {
		t.Fatalf("expected one pending assignment, got %d", len(p))
	}
	res, err := env.Engine.MarkDone(env.Ctx, p[0].ID, nil)
	if err != nil {
		t.Fatalf("mark done: %v", err)
	}
	return res
}

func (env testEnv) credits(t *testing.T, userID int64) int64 {
	t.Helper()
	u, err := env.Engine.Repo.GetUser(env.Ctx, userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	return u.Credits
}

func assignee(a *domain.Assignment) int64 {
	if a == nil || a.UserID == nil {
		return 0
	}
	return *a.UserID
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", Type: "weekly"}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("bad type: %v", err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", Type: domain.TaskRecurringUnassigned}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("missing interval: %v", err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", Type: domain.TaskOneOff, RotationUserIDs: []int64{1}}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("rotation on one-off: %v", err)
	}
	interval := 7
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", Type: domain.TaskRotating, IntervalDays: &interval, RotationUserIDs: []int64{42}}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown member: %v", err)
	}
}

func TestRotationFollowsOrder(t *testing.T) {
	env := newTestEnv(t)
	a, b, c := env.user(t, "Ann"), env.user(t, "Bob"), env.user(t, "Cat")
	task := env.rotatingTask(t, 1, a.ID, b.ID, c.ID)

	p := env.pending(t, task.ID)
	if len(p) != 1 || assignee(&p[0]) != a.ID {
		t.Fatalf("first turn should be Ann, got %+v", p)
	}
	want := []int64{b.ID, c.ID, a.ID, b.ID}
	for i, id := range want {
		res := env.markPendingDone(t, task.ID)
		if got := assignee(res.Next); got != id {
			t.Fatalf("completion %d: next = %d, want %d", i+1, got, id)
		}
	}
	u, _ := env.Engine.Repo.GetUser(env.Ctx, a.ID)
	if u.Credits != 2 {
		t.Fatalf("Ann credits = %d, want 2", u.Credits)
	}
}

func TestCoverGrantsSkipToken(t *testing.T) {
	env := newTestEnv(t)
	a, b, c := env.user(t, "Ann"), env.user(t, "Bob"), env.user(t, "Cat")
	task := env.rotatingTask(t, 1, a.ID, b.ID, c.ID)

	p := env.pending(t, task.ID)
	covered, err := env.Engine.Cover(env.Ctx, p[0].ID, b.ID, nil)
	if err != nil {
		t.Fatalf("cover: %v", err)
	}
	if assignee(&covered) != b.ID || covered.TurnUserID == nil || *covered.TurnUserID != a.ID {
		t.Fatalf("cover should keep Ann's turn: %+v", covered)
	}
	if _, err := env.Engine.Cover(env.Ctx, p[0].ID, b.ID, nil); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("covering own assignment: %v", err)
	}
	skips, _ := env.Engine.Repo.Skips(env.Ctx, task.ID)
	if skips[b.ID] != 1 {
		t.Fatalf("Bob skips = %d, want 1", skips[b.ID])
	}

	res := env.markPendingDone(t, task.ID)
	if assignee(res.Next) != c.ID {
		t.Fatalf("next = %d, want Cat", assignee(res.Next))
	}
	if env.credits(t, b.ID) != 1 || env.credits(t, a.ID) != 0 {
		t.Fatalf("the cover user should be credited")
	}
	skips, _ = env.Engine.Repo.Skips(env.Ctx, task.ID)
	if skips[b.ID] != 0 {
		t.Fatalf("token not consumed: %d", skips[b.ID])
	}
	res = env.markPendingDone(t, task.ID)
	if assignee(res.Next) != a.ID {
		t.Fatalf("after Cat: next = %d, want Ann", assignee(res.Next))
	}
	res = env.markPendingDone(t, task.ID)
	if assignee(res.Next) != b.ID {
		t.Fatalf("after Ann: next = %d, want Bob", assignee(res.Next))
	}
}

func TestCoverNeedsRotatingTask(t *testing.T) {
	env := newTestEnv(t)
	a, b := env.user(t, "Ann"), env.user(t, "Bob")
	interval := 3
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "Trash", Type: domain.TaskRecurringUnassigned, IntervalDays: &interval})
	if err != nil {
		t.Fatal(err)
	}
	claimed, _, err := env.Engine.Claim(env.Ctx, task.ID, a.ID, nil)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := env.Engine.Cover(env.Ctx, claimed.ID, b.ID, nil); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("cover on unassigned task: %v", err)
	}
	skips, _ := env.Engine.Repo.Skips(env.Ctx, task.ID)
	if len(skips) != 0 {
		t.Fatalf("no token expected, got %v", skips)
	}
}

func TestPreviewDoesNotConsume(t *testing.T) {
	env := newTestEnv(t)
	a, b, c := env.user(t, "Ann"), env.user(t, "Bob"), env.user(t, "Cat")
	task := env.rotatingTask(t, 1, a.ID, b.ID, c.ID)

	p := env.pending(t, task.ID)
	if _, err := env.Engine.Cover(env.Ctx, p[0].ID, b.ID, nil); err != nil {
		t.Fatal(err)
	}
	prev, err := env.Engine.NextAssignee(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if prev.Source != "pending" || prev.UserID != b.ID {
		t.Fatalf("preview = %+v", prev)
	}
	for i := 0; i < 2; i++ {
		if _, err := env.Engine.DescribeTask(env.Ctx, task.ID); err != nil {
			t.Fatal(err)
		}
	}
	skips, _ := env.Engine.Repo.Skips(env.Ctx, task.ID)
	if skips[b.ID] != 1 {
		t.Fatalf("preview consumed a token: %d", skips[b.ID])
	}
}

func TestBlacklistAndInactiveAreSkipped(t *testing.T) {
	env := newTestEnv(t)
	a, b, c := env.user(t, "Ann"), env.user(t, "Bob"), env.user(t, "Cat")
	task := env.rotatingTask(t, 1, a.ID, b.ID, c.ID)

	if _, err := env.Engine.SetBlacklist(env.Ctx, engine.BlacklistOptions{TaskID: task.ID, UserID: b.ID, Excluded: true}); err != nil {
		t.Fatalf("blacklist: %v", err)
	}
	res := env.markPendingDone(t, task.ID)
	if assignee(res.Next) != c.ID {
		t.Fatalf("blacklisted Bob selected: %d", assignee(res.Next))
	}
	if !slices.Equal(res.Task.RotationUserIDs, []int64{a.ID, b.ID, c.ID}) {
		t.Fatalf("blacklist must not touch the order: %v", res.Task.RotationUserIDs)
	}
	inactive := false
	if _, err := env.Engine.UpdateUser(env.Ctx, engine.UserUpdateOptions{ID: a.ID, Active: &inactive}); err != nil {
		t.Fatal(err)
	}
	res = env.markPendingDone(t, task.ID)
	if assignee(res.Next) != c.ID {
		t.Fatalf("only Cat is selectable, got %d", assignee(res.Next))
	}
}

func TestOneCycleSwapReverts(t *testing.T) {
	env := newTestEnv(t)
	a, b, c := env.user(t, "Ann"), env.user(t, "Bob"), env.user(t, "Cat")
	task := env.rotatingTask(t, 1, a.ID, b.ID, c.ID)

	swap, err := env.Engine.SwapRotation(env.Ctx, engine.SwapOptions{TaskID: task.ID, UserA: a.ID, UserB: c.ID, OneCycle: true})
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if !slices.Equal(swap.Task.RotationUserIDs, []int64{c.ID, b.ID, a.ID}) {
		t.Fatalf("swapped order = %v", swap.Task.RotationUserIDs)
	}
	if swap.Temporary == nil || swap.Temporary.Remaining != 3 {
		t.Fatalf("countdown = %+v", swap.Temporary)
	}
	if _, err := env.Engine.SwapRotation(env.Ctx, engine.SwapOptions{TaskID: task.ID, UserA: a.ID, UserB: b.ID}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("permanent swap during one-cycle: %v", err)
	}

	var res engine.MarkDoneResult
	for i := 0; i < 2; i++ {
		res = env.markPendingDone(t, task.ID)
		if !slices.Equal(res.Task.RotationUserIDs, []int64{c.ID, b.ID, a.ID}) {
			t.Fatalf("completion %d reverted early: %v", i+1, res.Task.RotationUserIDs)
		}
	}
	res = env.markPendingDone(t, task.ID)
	if !slices.Equal(res.Task.RotationUserIDs, []int64{a.ID, b.ID, c.ID}) {
		t.Fatalf("order not restored: %v", res.Task.RotationUserIDs)
	}
	if _, err := env.Engine.Repo.OrderTemp(env.Ctx, task.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("temp record should be gone: %v", err)
	}

	permanent, err := env.Engine.SwapRotation(env.Ctx, engine.SwapOptions{TaskID: task.ID, UserA: a.ID, UserB: b.ID})
	if err != nil {
		t.Fatalf("permanent swap: %v", err)
	}
	if permanent.Temporary != nil || !slices.Equal(permanent.Task.RotationUserIDs, []int64{b.ID, a.ID, c.ID}) {
		t.Fatalf("permanent swap = %+v", permanent)
	}
}

func TestMarkDoneUndoKeepsLaterSwaps(t *testing.T) {
	env := newTestEnv(t)
	a, b, c := env.user(t, "Ann"), env.user(t, "Bob"), env.user(t, "Cat")
	task := env.rotatingTask(t, 1, a.ID, b.ID, c.ID)
	if _, err := env.Engine.SwapRotation(env.Ctx, engine.SwapOptions{TaskID: task.ID, UserA: a.ID, UserB: c.ID, OneCycle: true}); err != nil {
		t.Fatal(err)
	}
	var last engine.MarkDoneResult
	for i := 0; i < 3; i++ {
		last = env.markPendingDone(t, task.ID)
	}
	if !slices.Equal(last.Task.RotationUserIDs, []int64{a.ID, b.ID, c.ID}) {
		t.Fatalf("order not restored: %v", last.Task.RotationUserIDs)
	}
	if _, err := env.Engine.SwapRotation(env.Ctx, engine.SwapOptions{TaskID: task.ID, UserA: a.ID, UserB: b.ID}); err != nil {
		t.Fatalf("permanent swap: %v", err)
	}
	if _, err := env.Engine.Reverse(env.Ctx, last.LogID, nil); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got.RotationUserIDs, []int64{b.ID, a.ID, c.ID}) {
		t.Fatalf("later swap overwritten: %v", got.RotationUserIDs)
	}
	if _, err := env.Engine.Repo.OrderTemp(env.Ctx, task.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("countdown resurrected: %v", err)
	}
	if len(env.pending(t, task.ID)) != 1 {
		t.Fatalf("follow-up assignment lost")
	}
}

func TestMarkDoneUndoKeepsRestartedCountdown(t *testing.T) {
	env := newTestEnv(t)
	a, b, c := env.user(t, "Ann"), env.user(t, "Bob"), env.user(t, "Cat")
	task := env.rotatingTask(t, 1, a.ID, b.ID, c.ID)
	if _, err := env.Engine.SwapRotation(env.Ctx, engine.SwapOptions{TaskID: task.ID, UserA: a.ID, UserB: c.ID, OneCycle: true}); err != nil {
		t.Fatal(err)
	}
	res := env.markPendingDone(t, task.ID)
	if _, err := env.Engine.SwapRotation(env.Ctx, engine.SwapOptions{TaskID: task.ID, UserA: a.ID, UserB: b.ID, OneCycle: true}); err != nil {
		t.Fatalf("second one-cycle swap: %v", err)
	}
	if _, err := env.Engine.Reverse(env.Ctx, res.LogID, nil); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	temp, err := env.Engine.Repo.OrderTemp(env.Ctx, task.ID)
	if err != nil || temp.Remaining != 3 {
		t.Fatalf("restarted countdown changed: %+v %v", temp, err)
	}
}

func TestAssignIsStrict(t *testing.T) {
	env := newTestEnv(t)
	a, b := env.user(t, "Ann"), env.user(t, "Bob")
	interval := 3
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "Trash", Type: domain.TaskRecurringUnassigned, IntervalDays: &interval})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.Assign(env.Ctx, engine.AssignOptions{TaskID: task.ID, UserID: a.ID}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("assign over pending: %v", err)
	}
	claimed, claimLog, err := env.Engine.Claim(env.Ctx, task.ID, a.ID, nil)
	if err != nil || assignee(&claimed) != a.ID {
		t.Fatalf("claim: %v", err)
	}
	if _, _, err := env.Engine.Claim(env.Ctx, task.ID, b.ID, nil); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("double claim: %v", err)
	}
	if _, err := env.Engine.Reverse(env.Ctx, claimLog, nil); err != nil {
		t.Fatalf("reverse claim: %v", err)
	}
	p := env.pending(t, task.ID)
	if p[0].UserID != nil {
		t.Fatalf("claim undo should clear the user")
	}

	res, err := env.Engine.MarkDone(env.Ctx, p[0].ID, &b.ID)
	if err != nil {
		t.Fatalf("mark done: %v", err)
	}
	if assignee(&res.Assignment) != b.ID || res.Next == nil || res.Next.UserID != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if env.credits(t, b.ID) != 1 {
		t.Fatalf("actor should be credited")
	}
}

func TestOneOffLifecycle(t *testing.T) {
	env := newTestEnv(t)
	a := env.user(t, "Ann")
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "Fix shelf", Type: domain.TaskOneOff})
	if err != nil {
		t.Fatal(err)
	}
	if task.NextDueAt != nil {
		t.Fatalf("one-off without first due should have no due date")
	}
	if _, err := env.Engine.ResetTask(env.Ctx, task.ID, nil); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("reset one-off: %v", err)
	}
	p := env.pending(t, task.ID)
	if _, err := env.Engine.MarkDone(env.Ctx, p[0].ID, nil); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("done without user: %v", err)
	}
	res, err := env.Engine.MarkDone(env.Ctx, p[0].ID, &a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Next != nil || res.Task.NextDueAt != nil {
		t.Fatalf("one-off must not re-trigger: %+v", res)
	}
	if _, err := env.Engine.MarkDone(env.Ctx, p[0].ID, &a.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("double done: %v", err)
	}

	days := 2
	assigned, logID, err := env.Engine.Assign(env.Ctx, engine.AssignOptions{TaskID: task.ID, UserID: a.ID, DueDays: &days})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if *assigned.DueAt != testNow.Add(48*time.Hour).Format(time.RFC3339) {
		t.Fatalf("due_at = %s", *assigned.DueAt)
	}
	if _, err := env.Engine.Reverse(env.Ctx, logID, nil); err != nil {
		t.Fatalf("reverse assign: %v", err)
	}
	if p := env.pending(t, task.ID); len(p) != 0 {
		t.Fatalf("assign undo left %d pending", len(p))
	}
}

func TestSwitchTemporarilyAndUndo(t *testing.T) {
	env := newTestEnv(t)
	a, b := env.user(t, "Ann"), env.user(t, "Bob")
	task := env.rotatingTask(t, 1, a.ID, b.ID)
	p := env.pending(t, task.ID)

	until := "2024-01-03T00:00:00Z"
	sw, logID, err := env.Engine.SwitchTemporarily(env.Ctx, engine.SwitchOptions{AssignmentID: p[0].ID, UserID: b.ID, Until: &until})
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if assignee(&sw) != b.ID || *sw.DueAt != *p[0].DueAt {
		t.Fatalf("switch should keep the due date: %+v", sw)
	}
	if _, err := env.Engine.Reverse(env.Ctx, logID, nil); err != nil {
		t.Fatalf("reverse switch: %v", err)
	}
	p = env.pending(t, task.ID)
	if assignee(&p[0]) != a.ID || p[0].TemporaryUntil != nil {
		t.Fatalf("switch undo = %+v", p[0])
	}
}

func TestCreditRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	a := env.user(t, "Ann")
	if _, _, err := env.Engine.AddCredit(env.Ctx, a.ID, 0, "", nil); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("zero amount: %v", err)
	}
	u, logID, err := env.Engine.AddCredit(env.Ctx, a.ID, 5, "bonus", nil)
	if err != nil || u.Credits != 5 {
		t.Fatalf("add: %v %d", err, u.Credits)
	}
	if _, err := env.Engine.Reverse(env.Ctx, logID, nil); err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if env.credits(t, a.ID) != 0 {
		t.Fatalf("credit not restored")
	}
	if _, err := env.Engine.Reverse(env.Ctx, logID, nil); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second reverse: %v", err)
	}
	if env.credits(t, a.ID) != 0 {
		t.Fatalf("second reverse changed state")
	}
	_, subLog, err := env.Engine.SubtractCredit(env.Ctx, a.ID, 2, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Reverse(env.Ctx, subLog, nil); err != nil {
		t.Fatal(err)
	}
	if env.credits(t, a.ID) != 0 {
		t.Fatalf("subtract undo = %d", env.credits(t, a.ID))
	}
}

func TestMarkDoneRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	a, b, c := env.user(t, "Ann"), env.user(t, "Bob"), env.user(t, "Cat")
	task := env.rotatingTask(t, 3, a.ID, b.ID, c.ID)
	before := env.pending(t, task.ID)[0]
	if _, _, err := env.Engine.VoteUrgency(env.Ctx, task.ID, 1, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Cover(env.Ctx, before.ID, c.ID, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SwapRotation(env.Ctx, engine.SwapOptions{TaskID: task.ID, UserA: a.ID, UserB: c.ID, OneCycle: true}); err != nil {
		t.Fatal(err)
	}

	// Order is now [Cat, Bob, Ann]; after Ann's turn Cat spends her token.
	res := env.markPendingDone(t, task.ID)
	if env.credits(t, c.ID) != 3 || res.Task.UrgencyScore != 0 || assignee(res.Next) != b.ID {
		t.Fatalf("completion effects missing: %+v", res)
	}
	undo, err := env.Engine.Reverse(env.Ctx, res.LogID, nil)
	if err != nil {
		t.Fatalf("reverse mark done: %v", err)
	}
	if undo.Entry.Action != actionlog.MarkDone || undo.ReverseLogID == 0 {
		t.Fatalf("reverse result = %+v", undo)
	}

	p := env.pending(t, task.ID)
	if len(p) != 1 || p[0].ID != before.ID || p[0].DoneAt != nil || p[0].CreditsAwarded != 0 {
		t.Fatalf("assignment not reopened: %+v", p)
	}
	if env.credits(t, c.ID) != 0 {
		t.Fatalf("credits not subtracted")
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if *got.NextDueAt != *task.NextDueAt || got.UrgencyScore != 1 {
		t.Fatalf("task not restored: %+v", got)
	}
	skips, _ := env.Engine.Repo.Skips(env.Ctx, task.ID)
	if skips[c.ID] != 1 {
		t.Fatalf("token not re-issued: %d", skips[c.ID])
	}
	temp, err := env.Engine.Repo.OrderTemp(env.Ctx, task.ID)
	if err != nil || temp.Remaining != 3 {
		t.Fatalf("countdown not restored: %+v %v", temp, err)
	}
	if _, err := env.Engine.Reverse(env.Ctx, res.LogID, nil); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second reverse: %v", err)
	}
}

func TestMarkDoneUndoRejectedAfterFollowUpDone(t *testing.T) {
	env := newTestEnv(t)
	a, b := env.user(t, "Ann"), env.user(t, "Bob")
	task := env.rotatingTask(t, 1, a.ID, b.ID)
	first := env.markPendingDone(t, task.ID)
	env.markPendingDone(t, task.ID)
	if _, err := env.Engine.Reverse(env.Ctx, first.LogID, nil); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	entry, err := env.Engine.GetLogEntry(env.Ctx, first.LogID)
	if err != nil {
		t.Fatal(err)
	}
	if entry.ReversedAt != nil {
		t.Fatalf("failed reversal must not stamp the entry")
	}
}

func TestReverseErrors(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "Ann")
	if _, err := env.Engine.Reverse(env.Ctx, 9999, nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing entry: %v", err)
	}
	entries, err := env.Engine.ListLog(env.Ctx, repo.LogFilters{Action: actionlog.CreateUser})
	if err != nil || len(entries) != 1 {
		t.Fatalf("list log: %v %d", err, len(entries))
	}
	if _, err := env.Engine.Reverse(env.Ctx, entries[0].ID, nil); !errors.Is(err, domain.ErrUnsupported) {
		t.Fatalf("unsupported kind: %v", err)
	}
}

func TestVoteUrgencyClamps(t *testing.T) {
	env := newTestEnv(t)
	a := env.user(t, "Ann")
	task := env.rotatingTask(t, 1, a.ID)
	var (
		got   domain.Task
		logID int64
		err   error
	)
	for i := 0; i < 6; i++ {
		got, logID, err = env.Engine.VoteUrgency(env.Ctx, task.ID, 1, nil)
		if err != nil {
			t.Fatal(err)
		}
	}
	if got.UrgencyScore != 5 {
		t.Fatalf("score = %d, want 5", got.UrgencyScore)
	}
	if _, err := env.Engine.Reverse(env.Ctx, logID, nil); err != nil {
		t.Fatal(err)
	}
	after, _ := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if after.UrgencyScore != 5 {
		t.Fatalf("undoing a saturated vote changed the score: %d", after.UrgencyScore)
	}
	if _, _, err := env.Engine.VoteUrgency(env.Ctx, task.ID, 2, nil); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("bad direction: %v", err)
	}
}

func TestEscalateSaturates(t *testing.T) {
	env := newTestEnv(t)
	a := env.user(t, "Ann")
	task := env.rotatingTask(t, 1, a.ID)
	for i := 0; i < 3; i++ {
		var err error
		if task, err = env.Engine.Escalate(env.Ctx, task.ID, nil); err != nil {
			t.Fatal(err)
		}
	}
	if task.EscalationLevel != 2 {
		t.Fatalf("level = %d", task.EscalationLevel)
	}
	view, err := env.Engine.DescribeTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if view.UrgencyClass != domain.UrgencyRed {
		t.Fatalf("class = %s", view.UrgencyClass)
	}
	res := env.markPendingDone(t, task.ID)
	if res.Task.EscalationLevel != 0 {
		t.Fatalf("completion should reset escalation")
	}
}

func TestArchiveDropsPending(t *testing.T) {
	env := newTestEnv(t)
	a := env.user(t, "Ann")
	task := env.rotatingTask(t, 1, a.ID)
	if _, err := env.Engine.ArchiveTask(env.Ctx, task.ID, nil); err != nil {
		t.Fatal(err)
	}
	list, err := env.Engine.ListAssignments(env.Ctx, repo.AssignmentFilters{TaskID: task.ID})
	if err != nil || len(list) != 0 {
		t.Fatalf("archive left %d assignments (%v)", len(list), err)
	}
	if _, err := env.Engine.ArchiveTask(env.Ctx, task.ID, nil); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("double archive: %v", err)
	}
	un, err := env.Engine.UnarchiveTask(env.Ctx, task.ID, nil)
	if err != nil || un.Archived || un.ArchivedAt != nil {
		t.Fatalf("unarchive: %v", err)
	}
	list, _ = env.Engine.ListAssignments(env.Ctx, repo.AssignmentFilters{TaskID: task.ID})
	if len(list) != 0 {
		t.Fatalf("unarchive recreated assignments")
	}
	views, err := env.Engine.ListTaskViews(env.Ctx, repo.TaskFilters{})
	if err != nil || len(views) != 1 {
		t.Fatalf("list tasks: %v %d", err, len(views))
	}
}

func TestDeleteTaskCascades(t *testing.T) {
	env := newTestEnv(t)
	a := env.user(t, "Ann")
	task := env.rotatingTask(t, 1, a.ID)
	env.markPendingDone(t, task.ID)
	if err := env.Engine.DeleteTask(env.Ctx, task.ID, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.DescribeTask(env.Ctx, task.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("describe deleted: %v", err)
	}
	list, _ := env.Engine.ListAssignments(env.Ctx, repo.AssignmentFilters{TaskID: task.ID})
	if len(list) != 0 {
		t.Fatalf("assignments survived delete")
	}
}

func TestEditTaskRotationOnlyWhenEmpty(t *testing.T) {
	env := newTestEnv(t)
	a, b := env.user(t, "Ann"), env.user(t, "Bob")
	task := env.rotatingTask(t, 1)
	if p := env.pending(t, task.ID); p[0].UserID != nil {
		t.Fatalf("empty rotation should open an unassigned turn")
	}
	edited, err := env.Engine.EditTask(env.Ctx, engine.TaskEditOptions{ID: task.ID, RotationUserIDs: []int64{b.ID, a.ID}})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !slices.Equal(edited.RotationUserIDs, []int64{b.ID, a.ID}) {
		t.Fatalf("order = %v", edited.RotationUserIDs)
	}
	if p := env.pending(t, task.ID); assignee(&p[0]) != b.ID {
		t.Fatalf("open turn should go to Bob")
	}
	if _, err := env.Engine.EditTask(env.Ctx, engine.TaskEditOptions{ID: task.ID, RotationUserIDs: []int64{a.ID, b.ID}}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("reorder via edit: %v", err)
	}
}

func TestRemainingDaysAndClass(t *testing.T) {
	cfg := config.Default("test")
	interval := 10
	due := func(d time.Duration) *string {
		s := testNow.Add(d).Format(time.RFC3339)
		return &s
	}
	task := domain.Task{Type: domain.TaskRotating, IntervalDays: &interval}

	task.NextDueAt = due(30 * time.Hour)
	if days, ok := engine.RemainingDays(task, testNow); !ok || days != 2 {
		t.Fatalf("remaining = %d %v", days, ok)
	}
	if engine.ClassifyUrgency(task, testNow, cfg) != domain.UrgencyRed {
		t.Fatalf("12.5%% left should be red")
	}
	task.NextDueAt = due(3 * 24 * time.Hour)
	if engine.ClassifyUrgency(task, testNow, cfg) != domain.UrgencyYellow {
		t.Fatalf("30%% left should be yellow")
	}
	task.NextDueAt = due(5 * 24 * time.Hour)
	if engine.ClassifyUrgency(task, testNow, cfg) != domain.UrgencyGreen {
		t.Fatalf("50%% left should be green")
	}
	task.NextDueAt = due(-time.Hour)
	if days, _ := engine.RemainingDays(task, testNow); days != 0 {
		t.Fatalf("overdue remaining = %d", days)
	}
	oneOff := domain.Task{Type: domain.TaskOneOff, NextDueAt: due(time.Hour)}
	if _, ok := engine.RemainingDays(oneOff, testNow); ok {
		t.Fatalf("one-off remaining should be undefined")
	}
}

func TestListLogNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	a := env.user(t, "Ann")
	env.rotatingTask(t, 1, a.ID)
	entries, err := env.Engine.ListLog(env.Ctx, repo.LogFilters{Limit: 1})
	if err != nil || len(entries) != 1 {
		t.Fatalf("list: %v %d", err, len(entries))
	}
	if entries[0].Action != actionlog.CreateTask {
		t.Fatalf("newest = %s", entries[0].Action)
	}
}
